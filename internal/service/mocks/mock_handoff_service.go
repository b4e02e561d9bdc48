package mocks

import (
	"context"
	"io"

	"apkrelay/internal/artifact"
	"apkrelay/internal/model"
	"apkrelay/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockHandoffService struct {
	mock.Mock
}

var _ service.HandoffService = (*MockHandoffService)(nil)

func (m *MockHandoffService) UploadFile(ctx context.Context, r io.Reader, meta service.Metadata) (*model.UploadRecord, error) {
	args := m.Called(ctx, r, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadRecord), args.Error(1)
}

func (m *MockHandoffService) Handoff(ctx context.Context, ref artifact.Ref, meta service.Metadata) (*model.UploadRecord, error) {
	args := m.Called(ctx, ref, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadRecord), args.Error(1)
}
