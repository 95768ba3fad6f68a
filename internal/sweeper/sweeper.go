// Package sweeper moves tasks whose deadline has lapsed to Overdue.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"task_tracker/internal/domain"
	"task_tracker/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overdue_sweeps_total",
			Help: "Overdue sweep runs",
		},
		[]string{"outcome"},
	)

	tasksMarked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "overdue_tasks_marked_total",
			Help: "Tasks moved to overdue by the sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(sweepsTotal, tasksMarked)
}

type Store interface {
	ListOverdueCandidates(ctx context.Context, now time.Time) ([]*domain.Task, error)
	UpdateTask(ctx context.Context, t *domain.Task, expected time.Time) error
}

type Notifier interface {
	NotifyOverdue(ctx context.Context, t *domain.Task)
}

type Sweeper struct {
	store    Store
	notifier Notifier
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func New(store Store, notifier Notifier, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		store:    store,
		notifier: notifier,
		interval: interval,
		now:      time.Now,
		log:      logger.With("component", "sweeper"),
	}
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("overdue sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("overdue sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce marks every eligible task overdue and returns how many moved.
// Each task is written on its own; a task changed concurrently is skipped and
// picked up by a later sweep if it is still eligible.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	now := s.now()
	candidates, err := s.store.ListOverdueCandidates(ctx, now)
	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		s.log.Error("list overdue candidates", "error", err)
		return 0
	}

	marked := 0
	for _, cur := range candidates {
		if ctx.Err() != nil {
			break
		}
		next := cur.Clone()
		if !next.MarkOverdue(now) {
			continue
		}
		if err := s.store.UpdateTask(ctx, next, cur.UpdatedAt); err != nil {
			if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
				s.log.Debug("task changed during sweep", "task_id", cur.ID, "error", err)
			} else {
				s.log.Error("mark task overdue", "task_id", cur.ID, "error", err)
			}
			continue
		}

		marked++
		tasksMarked.Inc()
		s.notifier.NotifyOverdue(ctx, next)
	}

	sweepsTotal.WithLabelValues("ok").Inc()
	if marked > 0 {
		s.log.Info("overdue sweep finished", "candidates", len(candidates), "marked", marked)
	}
	return marked
}
