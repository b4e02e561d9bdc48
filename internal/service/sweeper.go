package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"apkrelay/internal/apperr"
	"apkrelay/internal/artifact"
	"apkrelay/internal/model"
	"apkrelay/internal/repository"
)

// Sweeper fails records that never reached a terminal state, e.g. because
// the process died mid-transfer.
type Sweeper struct {
	repo      repository.UploadRepository
	artifacts artifact.Resolver
	timeout   time.Duration
	interval  time.Duration
	metrics   *Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewSweeper returns a sweeper. timeout <= 0 disables it.
func NewSweeper(repo repository.UploadRepository, artifacts artifact.Resolver, timeout, interval time.Duration, metrics *Metrics, log *zap.Logger) *Sweeper {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		repo:      repo,
		artifacts: artifacts,
		timeout:   timeout,
		interval:  interval,
		metrics:   metrics,
		log:       log.With(zap.String("component", "sweeper")),
		now:       time.Now,
	}
}

// Enabled reports whether a timeout is configured.
func (s *Sweeper) Enabled() bool { return s.timeout > 0 }

// Run sweeps once immediately, then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	s.log.Info("stuck-record sweep enabled", zap.Duration("timeout", s.timeout), zap.Duration("interval", s.interval))

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Sweep marks every non-terminal record older than the timeout as failed
// and returns how many it changed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	res, err := s.repo.List(ctx, repository.PageQuery{})
	if err != nil {
		return 0, err
	}

	cutoff := s.now().UTC().Add(-s.timeout)
	detail := fmt.Sprintf("handoff interrupted: no terminal outcome within %s", s.timeout)
	var (
		swept int
		errs  []error
	)
	for _, rec := range res.Items {
		if rec.Status.IsTerminal() || !rec.CreatedAt.Before(cutoff) {
			continue
		}
		updated, err := s.repo.Update(ctx, rec.ID, model.MarkFailed(detail))
		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrValidation):
			continue
		default:
			errs = append(errs, fmt.Errorf("sweep %s: %w", rec.ID, err))
			continue
		}
		swept++
		s.metrics.swept.Inc()
		s.log.Warn("stuck record failed", zap.String("upload_id", rec.ID), zap.Time("created_at", rec.CreatedAt))
		s.cleanup(ctx, updated)
	}
	return swept, errors.Join(errs...)
}

func (s *Sweeper) cleanup(ctx context.Context, rec *model.UploadRecord) {
	if s.artifacts == nil || rec == nil || rec.SourceLocation == nil {
		return
	}
	ref, err := artifact.ParseLocation(*rec.SourceLocation)
	if err != nil || !ref.IsStored() {
		return
	}
	if err := s.artifacts.Release(ctx, ref); err != nil {
		s.log.Warn("artifact cleanup failed", zap.String("upload_id", rec.ID), zap.Error(err))
		return
	}
	if _, err := s.repo.Update(ctx, rec.ID, model.ClearSource()); err != nil {
		s.log.Warn("could not clear source location", zap.String("upload_id", rec.ID), zap.Error(err))
	}
}
