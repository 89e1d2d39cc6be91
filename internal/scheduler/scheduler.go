// Package scheduler fires incremental ingestion batches on a cron
// cadence. It runs as a background goroutine inside rinkd, checking the
// configured expression at a short interval and starting the configured
// sources in order when a firing comes due. A source with a batch
// already in flight is skipped; the next firing picks it up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rinkdata/rink/internal/config"
	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/sources/registry"
)

// DefaultInterval is how often the scheduler checks whether the cron
// expression has come due.
const DefaultInterval = 30 * time.Second

// BatchStarter starts one ingestion batch. Implemented by
// *batch.Coordinator.
type BatchStarter interface {
	StartBatch(ctx context.Context, sourceName string, season int, force bool) (int64, error)
}

// BatchInspector answers whether a source already has a batch in
// flight. Implemented by *postgres.BatchStore.
type BatchInspector interface {
	HasRunningBatch(ctx context.Context, sourceID int16) (bool, error)
}

// Scheduler drives scheduled incremental updates.
type Scheduler struct {
	cfg      config.SchedulerConfig
	starter  BatchStarter
	batches  BatchInspector
	schedule cron.Schedule
	interval time.Duration
	now      func() time.Time

	next   time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// New parses the configured cron expression and builds a stopped
// scheduler. A five-field expression (minute granularity) is expected.
func New(cfg config.SchedulerConfig, starter BatchStarter, batches BatchInspector) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", cfg.Cron, err)
	}
	return &Scheduler{
		cfg:      cfg,
		starter:  starter,
		batches:  batches,
		schedule: schedule,
		interval: DefaultInterval,
		now:      time.Now,
	}, nil
}

// Start begins the background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.next = s.schedule.Next(s.now())
	slog.Info("scheduler started", "cron", s.cfg.Cron, "sources", s.cfg.Sources, "next", s.next)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels the background goroutine and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// tick fires at most once per due time, then advances from now: a
// process that slept through several firings catches up once.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if now.Before(s.next) {
		return
	}
	s.fire(ctx)
	s.next = s.schedule.Next(now)
}

func (s *Scheduler) fire(ctx context.Context) {
	season := s.cfg.Season
	if season <= 0 {
		season = currentSeason(s.now())
	}

	for _, source := range s.cfg.Sources {
		desc, err := registry.ForName(source)
		if err != nil {
			slog.Warn("scheduler: unknown source in config", "source", source)
			continue
		}
		running, err := s.batches.HasRunningBatch(ctx, desc.SourceID)
		if err != nil {
			slog.Error("scheduler: check running batch", "source", source, "error", err)
			continue
		}
		if running {
			slog.Debug("scheduler: source already has a batch in flight, skipping", "source", source)
			continue
		}

		batchID, err := s.starter.StartBatch(ctx, source, season, false)
		if err != nil {
			slog.Error("scheduler: start batch", "source", source, "error", err)
			continue
		}
		slog.Info("scheduler: batch started", "source", source, "season", season, "batch_id", batchID)
	}
}

// currentSeason derives the season id from the clock: seasons roll over
// in July.
func currentSeason(now time.Time) int {
	year := now.Year()
	if now.Month() < time.July {
		year--
	}
	return domain.SeasonForYear(year)
}
