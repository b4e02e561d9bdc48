package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"apkrelay/internal/apperr"
	"apkrelay/internal/artifact"
	"apkrelay/internal/model"
	"apkrelay/internal/remote"
	"apkrelay/internal/repository"
	"apkrelay/internal/worker"
)

const (
	requiredExtension = ".apk"
	maxCustomIDLength = 100
	maxErrorDetail    = 1024
)

var tracer = otel.Tracer("apkrelay/internal/service")

// Metadata describes the artifact being handed off.
type Metadata struct {
	FileName    string
	Size        int64
	ContentType string
	CustomID    string
}

// Submitter schedules background work. *worker.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, t worker.Task) error
}

// HandoffService accepts uploads and moves them to the remote provider in the background.
type HandoffService interface {
	// UploadFile stages r in intermediate storage and hands it off. The staged
	// object is removed again if no record could be created.
	UploadFile(ctx context.Context, r io.Reader, meta Metadata) (*model.UploadRecord, error)

	// Handoff validates meta, persists a pending record and schedules the
	// transfer. It returns as soon as the record exists; validation errors
	// are the only synchronous failures after which no record is created.
	Handoff(ctx context.Context, ref artifact.Ref, meta Metadata) (*model.UploadRecord, error)
}

// HandoffOptions tunes the orchestrator.
type HandoffOptions struct {
	MaxUploadSize    int64
	TransferTimeout  time.Duration
	TerminalRetryMax time.Duration
	URLPassthrough   bool
}

type handoffService struct {
	repo      repository.UploadRepository
	artifacts artifact.Resolver
	remote    remote.Uploader
	tasks     Submitter
	opts      HandoffOptions
	metrics   *Metrics
	log       *zap.Logger

	now        func() time.Time
	newID      func() string
	newBackOff func() backoff.BackOff
}

// NewHandoffService constructs a HandoffService.
func NewHandoffService(
	repo repository.UploadRepository,
	artifacts artifact.Resolver,
	uploader remote.Uploader,
	tasks Submitter,
	opts HandoffOptions,
	metrics *Metrics,
	log *zap.Logger,
) HandoffService {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &handoffService{
		repo:      repo,
		artifacts: artifacts,
		remote:    uploader,
		tasks:     tasks,
		opts:      opts,
		metrics:   metrics,
		log:       log.With(zap.String("component", "handoff")),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	s.newBackOff = s.terminalBackOff
	return s
}

func (s *handoffService) terminalBackOff() backoff.BackOff {
	if s.opts.TerminalRetryMax <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = s.opts.TerminalRetryMax
	return b
}

func (s *handoffService) validate(meta Metadata) error {
	name := strings.TrimSpace(meta.FileName)
	if name == "" {
		return apperr.Validation("fileName is required")
	}
	if !strings.EqualFold(filepath.Ext(name), requiredExtension) {
		return apperr.Validation("only %s files are accepted, got %q", requiredExtension, name)
	}
	if meta.Size < 0 {
		return apperr.Validation("size must not be negative")
	}
	if s.opts.MaxUploadSize > 0 && meta.Size > s.opts.MaxUploadSize {
		return apperr.Validation("file is %s, limit is %s",
			units.HumanSize(float64(meta.Size)), units.HumanSize(float64(s.opts.MaxUploadSize)))
	}
	if len(meta.CustomID) > maxCustomIDLength {
		return apperr.Validation("customId must be at most %d characters", maxCustomIDLength)
	}
	return nil
}

func (s *handoffService) UploadFile(ctx context.Context, r io.Reader, meta Metadata) (*model.UploadRecord, error) {
	if r == nil {
		return nil, apperr.Validation("file is required")
	}
	if err := s.validate(meta); err != nil {
		return nil, err
	}

	ref, err := s.artifacts.Stage(ctx, meta.FileName, r, meta.Size, meta.ContentType)
	if err != nil {
		return nil, err
	}

	rec, err := s.Handoff(ctx, ref, meta)
	if err != nil {
		if relErr := s.artifacts.Release(context.WithoutCancel(ctx), ref); relErr != nil {
			s.log.Warn("rollback of staged artifact failed", zap.String("location", ref.Location()), zap.Error(relErr))
		}
		return nil, err
	}
	return rec, nil
}

func (s *handoffService) Handoff(ctx context.Context, ref artifact.Ref, meta Metadata) (*model.UploadRecord, error) {
	if err := s.validate(meta); err != nil {
		return nil, err
	}
	if ref.Location() == "" {
		return nil, apperr.Validation("artifact reference is required")
	}

	// microseconds: the finest createdAt every backend stores
	now := s.now().UTC().Truncate(time.Microsecond)
	rec := &model.UploadRecord{
		ID:             s.newID(),
		FileName:       meta.FileName,
		Size:           meta.Size,
		ContentType:    meta.ContentType,
		CustomID:       model.StringPtr(meta.CustomID),
		Status:         model.StatusPending,
		SourceLocation: model.StringPtr(ref.Location()),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	stored, err := s.repo.Create(ctx, rec)
	if err != nil {
		return nil, err
	}

	log := s.log.With(zap.String("upload_id", stored.ID))
	log.Info("upload accepted",
		zap.String("file_name", stored.FileName),
		zap.String("size", units.HumanSize(float64(stored.Size))),
	)

	id := stored.ID
	if err := s.tasks.Submit(ctx, func(taskCtx context.Context) {
		s.run(taskCtx, id, ref, meta)
	}); err != nil {
		log.Error("could not schedule handoff", zap.Error(err))
		cause := apperr.UpstreamTransfer("handoff could not be scheduled", err)
		if failed := s.finish(ctx, log, id, ref, nil, cause, time.Now()); failed != nil {
			return failed, nil
		}
	}
	return stored, nil
}

// run is the background half of a handoff. Every outcome ends in exactly one
// terminal write through the store.
func (s *handoffService) run(ctx context.Context, id string, ref artifact.Ref, meta Metadata) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "handoff", trace.WithAttributes(
		attribute.String("upload.id", id),
		attribute.String("upload.file_name", meta.FileName),
		attribute.Int64("upload.size", meta.Size),
	))
	defer span.End()
	log := s.log.With(zap.String("upload_id", id))

	if _, err := s.repo.Update(ctx, id, model.MarkProcessing()); err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			log.Info("record deleted before transfer started")
			s.release(ctx, log, ref)
			s.observe(OutcomeDeleted, start)
			return
		case errors.Is(err, apperr.ErrValidation):
			log.Warn("record no longer accepts a transfer", zap.Error(err))
			s.release(ctx, log, ref)
			s.observe(OutcomeSuperseded, start)
			return
		}
		log.Error("mark processing failed", zap.Error(err))
		s.finish(ctx, log, id, ref, nil, err, start)
		return
	}

	res, err := s.transfer(ctx, log, ref, meta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
	} else {
		span.SetAttributes(attribute.String("upload.remote_handle", res.Handle))
	}
	s.finish(ctx, log, id, ref, res, err, start)
}

func (s *handoffService) transfer(ctx context.Context, log *zap.Logger, ref artifact.Ref, meta Metadata) (*remote.Result, error) {
	if s.opts.TransferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TransferTimeout)
		defer cancel()
	}

	var (
		res *remote.Result
		err error
	)
	if s.opts.URLPassthrough {
		res, err = s.transferURL(ctx, ref, meta)
	} else {
		res, err = s.transferFile(ctx, log, ref, meta)
	}
	if err == nil {
		return res, nil
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.UpstreamTransfer(fmt.Sprintf("transfer timed out after %s", s.opts.TransferTimeout), err)
		}
		return nil, apperr.UpstreamTransfer("transfer failed", err)
	}
	return nil, err
}

func (s *handoffService) transferURL(ctx context.Context, ref artifact.Ref, meta Metadata) (*remote.Result, error) {
	ctx, span := tracer.Start(ctx, "handoff.upload_url")
	defer span.End()

	u, err := s.artifacts.PublicURL(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.remote.UploadURL(ctx, u, meta.CustomID)
}

func (s *handoffService) transferFile(ctx context.Context, log *zap.Logger, ref artifact.Ref, meta Metadata) (*remote.Result, error) {
	fetchCtx, fetchSpan := tracer.Start(ctx, "handoff.fetch")
	sp, err := s.artifacts.Open(fetchCtx, ref)
	fetchSpan.End()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sp.Close(); err != nil {
			log.Warn("spool cleanup failed", zap.Error(err))
		}
	}()
	if meta.Size > 0 && sp.Size != meta.Size {
		log.Warn("artifact size differs from declared size",
			zap.Int64("declared", meta.Size), zap.Int64("actual", sp.Size))
	}

	ctx, span := tracer.Start(ctx, "handoff.upload_file", trace.WithAttributes(attribute.Int64("upload.size", sp.Size)))
	defer span.End()
	return s.remote.UploadFile(ctx, meta.FileName, sp, sp.Size, meta.CustomID)
}

// finish writes the terminal state and cleans up. It returns the terminal
// record, or nil when the write did not land.
func (s *handoffService) finish(ctx context.Context, log *zap.Logger, id string, ref artifact.Ref, res *remote.Result, cause error, start time.Time) *model.UploadRecord {
	ctx = context.WithoutCancel(ctx)

	outcome := OutcomeCompleted
	var mutate model.Mutation
	if cause == nil {
		mutate = model.MarkCompleted(res.Handle, res.ShareableID)
	} else {
		outcome = OutcomeFailed
		mutate = model.MarkFailed(errorDetail(cause))
		log.Warn("handoff failed", zap.String("kind", string(apperr.KindOf(cause))), zap.Error(cause))
	}

	rec, err := s.writeTerminal(ctx, log, id, mutate)
	switch {
	case err == nil:
		log.Info("handoff finished", zap.String("status", string(rec.Status)), zap.Duration("elapsed", time.Since(start)))
		if s.release(ctx, log, ref) && ref.IsStored() {
			cleared, err := s.repo.Update(ctx, id, model.ClearSource())
			if err != nil {
				log.Warn("could not clear source location", zap.Error(err))
			} else {
				rec = cleared
			}
		}
	case errors.Is(err, apperr.ErrNotFound):
		outcome = OutcomeDeleted
		rec = nil
		log.Info("record deleted during transfer, result dropped")
		s.release(ctx, log, ref)
	case errors.Is(err, apperr.ErrValidation):
		outcome = OutcomeSuperseded
		rec = nil
		log.Warn("terminal write rejected", zap.Error(err))
		s.release(ctx, log, ref)
	default:
		outcome = OutcomeLost
		rec = nil
		s.metrics.terminalWriteFailures.Inc()
		log.Error("terminal write failed, record left non-terminal", zap.Error(err))
	}
	s.observe(outcome, start)
	return rec
}

// writeTerminal retries store failures. Any other error is final.
func (s *handoffService) writeTerminal(ctx context.Context, log *zap.Logger, id string, mutate model.Mutation) (*model.UploadRecord, error) {
	op := func() (*model.UploadRecord, error) {
		rec, err := s.repo.Update(ctx, id, mutate)
		if err != nil && !errors.Is(err, apperr.ErrStore) {
			return nil, backoff.Permanent(err)
		}
		return rec, err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("terminal write failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	return backoff.RetryNotifyWithData(op, backoff.WithContext(s.newBackOff(), ctx), notify)
}

func (s *handoffService) release(ctx context.Context, log *zap.Logger, ref artifact.Ref) bool {
	if err := s.artifacts.Release(ctx, ref); err != nil {
		log.Warn("artifact cleanup failed", zap.String("location", ref.Location()), zap.Error(err))
		return false
	}
	return true
}

func (s *handoffService) observe(outcome string, start time.Time) {
	s.metrics.handoffs.WithLabelValues(outcome).Inc()
	s.metrics.duration.Observe(time.Since(start).Seconds())
}

func errorDetail(err error) string {
	detail := strings.TrimSpace(err.Error())
	if detail == "" {
		detail = string(apperr.KindOf(err))
	}
	if len(detail) > maxErrorDetail {
		cut := maxErrorDetail
		for cut > 0 && !utf8.RuneStart(detail[cut]) {
			cut--
		}
		detail = detail[:cut] + "..."
	}
	return detail
}
