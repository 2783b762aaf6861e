package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// OpenCaseLister lists cases that have not reached the close stage.
type OpenCaseLister interface {
	ListOpenCaseIDs(ctx context.Context) ([]string, error)
}

// SweepRecorder is told the outcome of each case a sweep visits.
type SweepRecorder interface {
	SweepCase(ok bool)
}

// Sweeper periodically re-syncs every open case so blockers converge even
// when a trigger was missed.
type Sweeper struct {
	cases      OpenCaseLister
	reconciler *Reconciler
	schedule   string
	cron       *cron.Cron
	logger     *slog.Logger
	metrics    SweepRecorder

	mu      sync.Mutex
	running bool
}

func NewSweeper(cases OpenCaseLister, reconciler *Reconciler, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cases:      cases,
		reconciler: reconciler,
		schedule:   schedule,
		cron:       cron.New(),
		logger:     logger.With("component", "compliance.sweeper"),
	}
}

func (s *Sweeper) WithRecorder(r SweepRecorder) *Sweeper {
	s.metrics = r
	return s
}

// Start registers the sweep on the cron schedule. An empty schedule
// disables it.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("reconcile schedule not configured, sweeper disabled")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("sweeper started", slog.String("schedule", s.schedule))
	return nil
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

// RunOnce syncs every open case. A failing case is logged and skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ids, err := s.cases.ListOpenCaseIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open cases: %w", err)
	}
	synced := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		_, err := s.reconciler.Sync(ctx, id)
		if s.metrics != nil {
			s.metrics.SweepCase(err == nil)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "case sync failed", slog.String("case_id", id), slog.Any("error", err))
			continue
		}
		synced++
	}
	return synced, nil
}
