// Package scheduler runs periodic background sweeps.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Reconciler converges conversions stuck in the converting step.
type Reconciler interface {
	Reconcile(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// Config configures a Scheduler.
type Config struct {
	// Schedule is a five-field cron expression or a descriptor such as "@every 1m".
	Schedule string
	// Age is how long a file must have been converting before it is swept.
	Age time.Duration
	// Limit bounds the files visited per sweep.
	Limit int
	// Timeout bounds a single sweep.
	Timeout time.Duration
}

// Scheduler fires the conversion reconciler on a cron schedule.
type Scheduler struct {
	reconciler Reconciler
	schedule   cron.Schedule
	cfg        Config
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Scheduler. It fails when the schedule does not parse.
func New(reconciler Reconciler, cfg Config) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse reconcile schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Scheduler{
		reconciler: reconciler,
		schedule:   schedule,
		cfg:        cfg,
		now:        time.Now,
		stop:       make(chan struct{}),
	}, nil
}

// Start begins firing sweeps in the background.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	slog.Info("reconcile scheduler started", "schedule", s.cfg.Schedule, "age", s.cfg.Age.String())
}

// Stop halts the scheduler and waits for an in-flight sweep. It is safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		now := s.now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.Age)
	n, err := s.reconciler.Reconcile(ctx, cutoff, s.cfg.Limit)
	if err != nil {
		slog.Error("reconcile sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("reconcile sweep", "files", n)
	}
}
