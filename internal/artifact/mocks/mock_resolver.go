package mocks

import (
	"context"
	"io"

	"apkrelay/internal/artifact"

	"github.com/stretchr/testify/mock"
)

type MockResolver struct {
	mock.Mock
}

var _ artifact.Resolver = (*MockResolver)(nil)

func (m *MockResolver) Stage(ctx context.Context, fileName string, body io.Reader, size int64, contentType string) (artifact.Ref, error) {
	args := m.Called(ctx, fileName, body, size, contentType)
	return args.Get(0).(artifact.Ref), args.Error(1)
}

func (m *MockResolver) Open(ctx context.Context, ref artifact.Ref) (*artifact.Spooled, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*artifact.Spooled), args.Error(1)
}

func (m *MockResolver) PublicURL(ctx context.Context, ref artifact.Ref) (string, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Error(1)
}

func (m *MockResolver) Release(ctx context.Context, ref artifact.Ref) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}
