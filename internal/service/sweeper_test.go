package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"apkrelay/internal/apperr"
	"apkrelay/internal/artifact"
	artifactMocks "apkrelay/internal/artifact/mocks"
	"apkrelay/internal/model"
	"apkrelay/internal/repository"
	"apkrelay/internal/repository/filestore"
	repoMocks "apkrelay/internal/repository/mocks"
)

func TestSweeper_FailsStuckRecords(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store, err := filestore.Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	staged := artifact.Ref{StorageKey: "apk-uploads/old.apk"}
	seed := []model.UploadRecord{
		{ID: "old-pending", FileName: "a.apk", Status: model.StatusPending, SourceLocation: model.StringPtr(staged.Location()), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "old-processing", FileName: "b.apk", Status: model.StatusPending, CreatedAt: now.Add(-90 * time.Minute)},
		{ID: "fresh", FileName: "c.apk", Status: model.StatusPending, CreatedAt: now.Add(-10 * time.Minute)},
		{ID: "done", FileName: "d.apk", Status: model.StatusPending, CreatedAt: now.Add(-3 * time.Hour)},
	}
	for i := range seed {
		seed[i].UpdatedAt = seed[i].CreatedAt
		_, err := store.Create(ctx, &seed[i])
		require.NoError(t, err)
	}
	_, err = store.Update(ctx, "old-processing", model.MarkProcessing())
	require.NoError(t, err)
	_, err = store.Update(ctx, "done", model.MarkFailed("earlier failure"))
	require.NoError(t, err)

	mRes := new(artifactMocks.MockResolver)
	mRes.On("Release", mock.Anything, staged).Return(nil).Once()
	metrics := NewMetrics(nil)
	sw := NewSweeper(store, mRes, time.Hour, time.Minute, metrics, zap.NewNop())
	sw.now = func() time.Time { return now }

	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.swept))

	for _, id := range []string{"old-pending", "old-processing"} {
		rec, err := store.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, rec.Status, id)
		require.NotNil(t, rec.ErrorDetail)
		assert.Equal(t, "handoff interrupted: no terminal outcome within 1h0m0s", *rec.ErrorDetail)
		assert.Nil(t, rec.SourceLocation)
	}

	fresh, err := store.FindByID(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, fresh.Status)

	done, err := store.FindByID(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, "earlier failure", *done.ErrorDetail)

	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep is a no-op")
	mRes.AssertExpectations(t)
}

func TestSweeper_Disabled(t *testing.T) {
	mRepo := new(repoMocks.MockUploadRepository)
	sw := NewSweeper(mRepo, nil, 0, 0, nil, nil)

	assert.False(t, sw.Enabled())
	n, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, sw.Run(context.Background()))
	mRepo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestSweeper_ToleratesRacesAndReportsStoreErrors(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-time.Hour)
	mRepo := new(repoMocks.MockUploadRepository)

	mRepo.On("List", ctx, repository.PageQuery{}).Return(&repository.PageResult[model.UploadRecord]{
		Items: []model.UploadRecord{
			{ID: "gone", Status: model.StatusProcessing, CreatedAt: old},
			{ID: "finished", Status: model.StatusProcessing, CreatedAt: old},
			{ID: "broken", Status: model.StatusProcessing, CreatedAt: old},
		},
		Total: 3,
	}, nil)
	mRepo.On("Update", ctx, "gone", mock.Anything).Return(nil, apperr.NotFound("upload gone not found"))
	mRepo.On("Update", ctx, "finished", mock.Anything).Return(nil, apperr.Validation("completed record is final"))
	mRepo.On("Update", ctx, "broken", mock.Anything).Return(nil, apperr.Store("write history record", errors.New("disk full")))

	sw := NewSweeper(mRepo, nil, time.Minute, time.Minute, nil, nil)
	n, err := sw.Sweep(ctx)
	assert.Zero(t, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStore)
	assert.Contains(t, err.Error(), "sweep broken")
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	mRepo := new(repoMocks.MockUploadRepository)
	var calls atomic.Int32
	mRepo.On("List", mock.Anything, repository.PageQuery{}).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(&repository.PageResult[model.UploadRecord]{}, nil)
	sw := NewSweeper(mRepo, nil, time.Hour, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
