package mocks

import (
	"context"

	"apkrelay/internal/model"
	"apkrelay/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockUploadRepository struct {
	mock.Mock
}

var _ repository.UploadRepository = (*MockUploadRepository)(nil)

func (m *MockUploadRepository) Create(ctx context.Context, rec *model.UploadRecord) (*model.UploadRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadRecord), args.Error(1)
}

func (m *MockUploadRepository) FindByID(ctx context.Context, id string) (*model.UploadRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadRecord), args.Error(1)
}

func (m *MockUploadRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.UploadRecord], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.UploadRecord]), args.Error(1)
}

// Update records the call; when a *model.UploadRecord is configured as the
// first return value the mutation is applied to it so callers observe the change.
func (m *MockUploadRepository) Update(ctx context.Context, id string, mutate model.Mutation) (*model.UploadRecord, error) {
	args := m.Called(ctx, id, mutate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	rec := args.Get(0).(*model.UploadRecord)
	if args.Error(1) == nil && mutate != nil {
		_ = mutate(rec)
	}
	return rec, args.Error(1)
}

func (m *MockUploadRepository) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockUploadRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
