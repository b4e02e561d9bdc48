package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"apkrelay/internal/apperr"
	"apkrelay/internal/artifact"
	"apkrelay/internal/model"
	"apkrelay/internal/repository"
)

// HistoryListResult is the service-level DTO for paginated history.
type HistoryListResult struct {
	Items []model.UploadRecord `json:"data"`
	Total int                  `json:"total"`
}

// HistoryService is the read/delete surface over the history store.
type HistoryService interface {
	// List returns records newest first. limit 0 returns everything from offset on.
	List(ctx context.Context, limit, offset int) (*HistoryListResult, error)

	// Get returns a single record by its ID.
	Get(ctx context.Context, id string) (*model.UploadRecord, error)

	// Delete removes the record, then best-effort removes its staged artifact.
	Delete(ctx context.Context, id string) error

	// Ping checks the backing store.
	Ping(ctx context.Context) error
}

type historyService struct {
	repo      repository.UploadRepository
	artifacts artifact.Resolver
	log       *zap.Logger
}

// NewHistoryService constructs a HistoryService. artifacts may be nil.
func NewHistoryService(repo repository.UploadRepository, artifacts artifact.Resolver, log *zap.Logger) HistoryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &historyService{repo: repo, artifacts: artifacts, log: log.With(zap.String("component", "history"))}
}

func (s *historyService) List(ctx context.Context, limit, offset int) (*HistoryListResult, error) {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	items := res.Items
	if items == nil {
		items = []model.UploadRecord{}
	}
	return &HistoryListResult{Items: items, Total: res.Total}, nil
}

func (s *historyService) Get(ctx context.Context, id string) (*model.UploadRecord, error) {
	if id == "" {
		return nil, apperr.Validation("id is required")
	}
	return s.repo.FindByID(ctx, id)
}

func (s *historyService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperr.Validation("id is required")
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("upload %s not found", id)
	}
	s.log.Info("upload deleted", zap.String("upload_id", id), zap.String("status", string(rec.Status)))

	if s.artifacts == nil || rec.SourceLocation == nil {
		return nil
	}
	ref, err := artifact.ParseLocation(*rec.SourceLocation)
	if err != nil {
		s.log.Warn("unparseable source location", zap.String("upload_id", id), zap.Error(err))
		return nil
	}
	if !ref.IsStored() || !rec.Status.IsTerminal() {
		// An in-flight handoff still reads the object; it releases it when done.
		return nil
	}
	if err := s.artifacts.Release(context.WithoutCancel(ctx), ref); err != nil {
		s.log.Warn("artifact cleanup after delete failed", zap.String("upload_id", id), zap.Error(err))
	}
	return nil
}

func (s *historyService) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		if errors.Is(err, apperr.ErrStore) {
			return err
		}
		return apperr.Store("history store unreachable", err)
	}
	return nil
}
