package indexer

import (
	"context"
	"encoding/csv"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"arkenstone/core/events"
)

func TestExportWritesCSVAndParquet(t *testing.T) {
	idx := setupTestIndexer(t)
	alice := common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	for i := 0; i < maxLimit+3; i++ {
		idx.Emit(events.StakingDeposited{Pool: "base", Account: alice, Amount: uint256.NewInt(1), Principal: uint256.NewInt(uint64(i + 1)), Timestamp: uint64(i + 1)})
	}
	idx.Emit(events.StakingDeposited{Pool: "reward", Account: alice, Amount: uint256.NewInt(1), Principal: uint256.NewInt(1), Timestamp: 9})

	dir := t.TempDir()
	result, err := idx.Export(context.Background(), Filter{Pool: "base"}, dir, "base-deposits")
	require.NoError(t, err)
	require.Equal(t, maxLimit+3, result.Count)

	file, err := os.Open(result.CSVPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, maxLimit+4)
	require.Equal(t, csvHeader, rows[0])
	require.Equal(t, "1", rows[1][0])
	require.Equal(t, "base", rows[1][2])

	raw, err := os.ReadFile(result.ParquetPath)
	require.NoError(t, err)
	require.Greater(t, len(raw), 8)
	require.Equal(t, "PAR1", string(raw[:4]))
	require.Equal(t, "PAR1", string(raw[len(raw)-4:]))
}

func TestExportParquetReadsBack(t *testing.T) {
	idx := setupTestIndexer(t)
	alice := common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	idx.Emit(events.StakingDeposited{Pool: "base", Account: alice, Amount: uint256.NewInt(5), Principal: uint256.NewInt(5), Timestamp: 1})
	idx.Emit(events.StakingWithdrawn{Pool: "base", Account: alice, Amount: uint256.NewInt(2), Principal: uint256.NewInt(3), Timestamp: 2})

	result, err := idx.Export(context.Background(), Filter{}, t.TempDir(), "all")
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)

	fr, err := local.NewLocalFileReader(result.ParquetPath)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.EqualValues(t, 2, pr.GetNumRows())

	rows := make([]parquetRecord, 2)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, int64(1), rows[0].Seq)
	require.Equal(t, events.TypeStakingDeposited, rows[0].Type)
	require.Equal(t, "base", rows[0].Pool)
	require.Equal(t, events.TypeStakingWithdrawn, rows[1].Type)
	require.Contains(t, rows[1].Attributes, "\"amount\":\"2\"")
}
