package mocks

import (
	"context"

	"apkrelay/internal/model"
	"apkrelay/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockHistoryService struct {
	mock.Mock
}

var _ service.HistoryService = (*MockHistoryService)(nil)

func (m *MockHistoryService) List(ctx context.Context, limit, offset int) (*service.HistoryListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.HistoryListResult), args.Error(1)
}

func (m *MockHistoryService) Get(ctx context.Context, id string) (*model.UploadRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadRecord), args.Error(1)
}

func (m *MockHistoryService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockHistoryService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
