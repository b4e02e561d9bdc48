package mocks

import (
	"context"
	"io"

	"apkrelay/internal/remote"

	"github.com/stretchr/testify/mock"
)

type MockUploader struct {
	mock.Mock
}

var _ remote.Uploader = (*MockUploader)(nil)

func (m *MockUploader) UploadFile(ctx context.Context, fileName string, content io.ReaderAt, size int64, customID string) (*remote.Result, error) {
	args := m.Called(ctx, fileName, content, size, customID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.Result), args.Error(1)
}

func (m *MockUploader) UploadURL(ctx context.Context, artifactURL, customID string) (*remote.Result, error) {
	args := m.Called(ctx, artifactURL, customID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.Result), args.Error(1)
}
