package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"arkenstone/core/events"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Indexer persists emitted records so off-chain consumers can page through
// them. It satisfies events.Emitter.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	seq  int64
	subs map[*subscription]struct{}
}

var _ events.Emitter = (*Indexer)(nil)

// Open connects to the database at dsn and migrates the schema. postgres://
// URLs select PostgreSQL; anything else is treated as a SQLite DSN.
func Open(dsn string) (*gorm.DB, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("indexer: dsn required")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

// New resumes the record sequence from the database.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	var last struct{ Max int64 }
	if err := db.Model(&Record{}).Select("COALESCE(MAX(seq), 0) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: resume sequence: %w", err)
	}
	return &Indexer{db: db, logger: log, now: time.Now, seq: last.Max, subs: make(map[*subscription]struct{})}, nil
}

// Emit stores renderable events. Persistence failures are logged and never
// propagated back into the emitting operation, which has already committed.
func (i *Indexer) Emit(evt events.Event) {
	if _, err := i.Append(context.Background(), evt); err != nil {
		i.logger.Error("indexer append failed",
			slog.String("type", evt.EventType()),
			slog.Any("error", err))
	}
}

// Append persists evt and returns the stored record.
func (i *Indexer) Append(ctx context.Context, evt events.Event) (*Record, error) {
	renderable, ok := evt.(events.Renderable)
	if !ok {
		return nil, fmt.Errorf("indexer: event %q cannot be rendered", evt.EventType())
	}
	rendered := renderable.Event()
	if rendered == nil {
		return nil, fmt.Errorf("indexer: event %q rendered empty", evt.EventType())
	}
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return nil, fmt.Errorf("indexer: encode attributes: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	record := &Record{
		ID:         uuid.New(),
		Seq:        i.seq + 1,
		Type:       rendered.Type,
		Pool:       rendered.Attr("pool"),
		Account:    strings.ToLower(accountOf(rendered.Attributes)),
		Attributes: string(attrs),
		CreatedAt:  i.now().UTC(),
	}
	if err := i.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	i.seq = record.Seq
	i.broadcastLocked(*record)
	return record, nil
}

func accountOf(attrs map[string]string) string {
	for _, key := range []string{"addr", "caller", "to"} {
		if value := attrs[key]; value != "" {
			return value
		}
	}
	return ""
}

// Filter narrows record queries. Empty fields match everything.
type Filter struct {
	Type     string
	Pool     string
	Account  string
	AfterSeq int64
	Limit    int
}

// Query returns records in emission order.
func (i *Indexer) Query(ctx context.Context, filter Filter) ([]Record, error) {
	q := i.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", filter.AfterSeq)
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Pool != "" {
		q = q.Where("pool = ?", strings.ToLower(filter.Pool))
	}
	if filter.Account != "" {
		q = q.Where("account = ?", strings.ToLower(filter.Account))
	}
	var records []Record
	if err := q.Order("seq ASC").Limit(clampLimit(filter.Limit)).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// DecodeAttributes unpacks the stored attribute map.
func (r Record) DecodeAttributes() (map[string]string, error) {
	attrs := map[string]string{}
	if r.Attributes == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// RecordSnapshot stores the pool totals observed at takenAt.
func (i *Indexer) RecordSnapshot(ctx context.Context, base, reward *uint256.Int, takenAt time.Time) (*TVLSnapshot, error) {
	if base == nil || reward == nil {
		return nil, errors.New("indexer: snapshot totals required")
	}
	snapshot := &TVLSnapshot{
		ID:      uuid.New(),
		Base:    base.Dec(),
		Reward:  reward.Dec(),
		TakenAt: takenAt.UTC(),
	}
	if err := i.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Snapshots returns the most recent snapshots, newest first.
func (i *Indexer) Snapshots(ctx context.Context, limit int) ([]TVLSnapshot, error) {
	var snapshots []TVLSnapshot
	err := i.db.WithContext(ctx).Order("taken_at DESC").Limit(clampLimit(limit)).Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
