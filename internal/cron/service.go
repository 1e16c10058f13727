// Package cron runs the ledger maintenance jobs: outbox retention and the
// reconciliation sweep.
package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Now      func() time.Time
}

// Service runs every registered job once per interval while holding the
// cluster-wide lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

// Report summarises one cycle.
type Report struct {
	Skipped   bool
	Succeeded []string
	Failed    map[string]error
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      now,
	}, nil
}

// Run starts with an immediate cycle and then ticks until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single cycle. Job failures land in the report; the error
// return is reserved for lock failures.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	report := Report{Failed: map[string]error{}}

	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron lock held by another replica; skipping cycle")
		report.Skipped = true
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		if err := s.runJob(ctx, job); err != nil {
			report.Failed[job.Name()] = err
			continue
		}
		report.Succeeded = append(report.Succeeded, job.Name())
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_succeeded": len(report.Succeeded),
		"jobs_failed":    len(report.Failed),
	}), "cron cycle complete")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	start := s.now()
	err := job.Run(jobCtx)
	finished := s.now()
	s.metrics.ObserveRun(job.Name(), finished.Sub(start), finished, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", finished.Sub(start).Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
		return err
	}
	s.logg.Info(jobCtx, "cron job completed")
	return nil
}
