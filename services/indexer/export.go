package indexer

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ExportResult lists the files written by Export.
type ExportResult struct {
	CSVPath     string
	ParquetPath string
	Count       int
}

type parquetRecord struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Type       string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Pool       string `parquet:"name=pool, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Account    string `parquet:"name=account, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Attributes string `parquet:"name=attributes, type=UTF8, encoding=PLAIN"`
	CreatedAt  string `parquet:"name=created_at, type=UTF8, encoding=PLAIN"`
}

var csvHeader = []string{"seq", "type", "pool", "account", "attributes", "created_at"}

// Export writes every record matching filter to <dir>/<name>.csv and
// <dir>/<name>.parquet. Filter.AfterSeq is the starting point; Filter.Limit
// is ignored.
func (i *Indexer) Export(ctx context.Context, filter Filter, dir, name string) (*ExportResult, error) {
	var records []Record
	cursor := filter
	cursor.Limit = maxLimit
	for {
		page, err := i.Query(ctx, cursor)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
		if len(page) < maxLimit {
			break
		}
		cursor.AfterSeq = page[len(page)-1].Seq
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("indexer: create export dir: %w", err)
	}
	result := &ExportResult{
		CSVPath:     filepath.Join(dir, name+".csv"),
		ParquetPath: filepath.Join(dir, name+".parquet"),
		Count:       len(records),
	}
	if err := writeCSV(result.CSVPath, records); err != nil {
		return nil, err
	}
	if err := writeParquet(result.ParquetPath, records); err != nil {
		return nil, err
	}
	i.logger.Info("indexer: export written",
		slog.String("csv", result.CSVPath),
		slog.String("parquet", result.ParquetPath),
		slog.Int("records", result.Count))
	return result, nil
}

func writeCSV(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("indexer: write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.Seq, 10),
			rec.Type,
			rec.Pool,
			rec.Account,
			rec.Attributes,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("indexer: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("indexer: flush csv: %w", err)
	}
	return file.Close()
}

func writeParquet(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRecord), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		row := &parquetRecord{
			Seq:        rec.Seq,
			Type:       rec.Type,
			Pool:       rec.Pool,
			Account:    rec.Account,
			Attributes: rec.Attributes,
			CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return nil
}
