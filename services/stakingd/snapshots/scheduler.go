// Package snapshots periodically records the ledger's TVL into the indexer.
package snapshots

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"

	"arkenstone/native/staking"
	"arkenstone/services/indexer"
)

// Source reports the current pool totals.
type Source interface {
	TVL(ctx context.Context) staking.TVL
}

// Sink persists a TVL observation.
type Sink interface {
	RecordSnapshot(ctx context.Context, base, reward *uint256.Int, takenAt time.Time) (*indexer.TVLSnapshot, error)
}

// Scheduler runs TVL snapshots on a standard five-field cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	source Source
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
	ctx    context.Context
}

func New(ctx context.Context, source Source, sink Sink, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		source: source,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
	}
}

// Register schedules the snapshot task.
func (s *Scheduler) Register(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.task); err != nil {
		return fmt.Errorf("snapshots: register %q: %w", schedule, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("snapshot scheduler started")
}

// Stop halts scheduling and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("snapshot scheduler stopped")
}

// RunNow records a snapshot immediately.
func (s *Scheduler) RunNow() (*indexer.TVLSnapshot, error) {
	tvl := s.source.TVL(s.ctx)
	return s.sink.RecordSnapshot(s.ctx, tvl.Base, tvl.Reward, s.now().UTC())
}

func (s *Scheduler) task() {
	snap, err := s.RunNow()
	if err != nil {
		s.logger.Error("snapshot failed", slog.Any("error", err))
		return
	}
	s.logger.Debug("snapshot recorded",
		slog.String("base", snap.Base),
		slog.String("reward", snap.Reward))
}
