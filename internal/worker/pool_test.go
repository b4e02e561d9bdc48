package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPool(t *testing.T, p *Pool) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- p.Run(context.Background()) }()
	require.Eventually(t, p.started.Load, time.Second, 5*time.Millisecond)
	return errc
}

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := NewPool(3, 16, nil)
	errc := startPool(t, p)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	assert.EqualValues(t, 10, ran.Load())

	require.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, <-errc)
}

func TestPool_SubmitErrors(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(p *Pool) context.Context
		wantErr error
	}{
		{
			name: "queue full",
			prepare: func(p *Pool) context.Context {
				_ = p.Submit(context.Background(), func(context.Context) {})
				return context.Background()
			},
			wantErr: ErrQueueFull,
		},
		{
			name: "closed",
			prepare: func(p *Pool) context.Context {
				_ = p.Shutdown(context.Background())
				return context.Background()
			},
			wantErr: ErrClosed,
		},
		{
			name: "cancelled context",
			prepare: func(p *Pool) context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPool(1, 1, nil)
			ctx := tt.prepare(p)
			err := p.Submit(ctx, func(context.Context) {})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPool_RecoversFromPanic(t *testing.T) {
	p := NewPool(1, 4, nil)
	errc := startPool(t, p)

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task after panic never ran")
	}
	require.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, <-errc)
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	p := NewPool(1, 8, nil)
	release := make(chan struct{})
	var ran atomic.Int32

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			<-release
			ran.Add(1)
		}))
	}
	errc := startPool(t, p)

	shut := make(chan error, 1)
	go func() { shut <- p.Shutdown(context.Background()) }()

	require.Eventually(t, func() bool {
		return errors.Is(p.Submit(context.Background(), func(context.Context) {}), ErrClosed)
	}, 2*time.Second, 5*time.Millisecond)
	close(release)

	require.NoError(t, <-shut)
	require.NoError(t, <-errc)
	assert.EqualValues(t, 5, ran.Load())
	assert.Zero(t, p.Pending())
}

func TestPool_ShutdownTimeoutCancelsTasks(t *testing.T) {
	p := NewPool(1, 1, nil)
	errc := startPool(t, p)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("task context was not cancelled")
	}
	assert.NoError(t, <-errc)
}

func TestPool_RunContextStopsIntake(t *testing.T) {
	p := NewPool(1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	require.Eventually(t, p.started.Load, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) {}), ErrClosed)
}

func TestPool_RunTwice(t *testing.T) {
	p := NewPool(1, 1, nil)
	errc := startPool(t, p)
	assert.Error(t, p.Run(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, <-errc)
}
