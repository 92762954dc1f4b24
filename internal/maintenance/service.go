package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/lock"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
)

const (
	defaultInterval = time.Hour
	lockScope       = "maintenance"
)

// Job is one unit of scheduled maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	Locker   lock.Locker
	Metrics  *metrics.MaintenanceMetrics
	Jobs     []Job
	Interval time.Duration
	// LockID scopes the cycle lock, usually the deployment environment.
	LockID string
}

// Service runs its jobs on a fixed cadence, one replica at a time.
type Service struct {
	logg     *logger.Logger
	locker   lock.Locker
	metrics  *metrics.MaintenanceMetrics
	jobs     []Job
	interval time.Duration
	lockID   string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	lockID := params.LockID
	if lockID == "" {
		lockID = "local"
	}
	return &Service{
		logg:     params.Logger,
		locker:   params.Locker,
		metrics:  params.Metrics,
		jobs:     jobs,
		interval: interval,
		lockID:   lockID,
	}, nil
}

// Jobs returns a copy of the registered jobs in run order.
func (s *Service) Jobs() []Job {
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.runAndLog(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "maintenance loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Service) runAndLog(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "maintenance cycle failed", err)
	}
}

// RunOnce runs every job under the cycle lock. A cycle already held by
// another replica is skipped without error. Job failures do not stop later
// jobs; they are combined into the returned error.
func (s *Service) RunOnce(ctx context.Context) error {
	err := s.locker.WithLock(ctx, lockScope, s.lockID, func(ctx context.Context) error {
		var errs error
		for _, job := range s.jobs {
			errs = multierr.Append(errs, s.runJob(ctx, job))
		}
		return errs
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		s.logg.Info(ctx, "maintenance cycle held by another replica; skipping")
		return nil
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	s.metrics.ObserveRun(job.Name(), elapsed, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "maintenance job failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(jobCtx, "maintenance job completed")
	return nil
}
