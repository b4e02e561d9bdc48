package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"apkrelay/internal/apperr"
	"apkrelay/internal/model"
	"apkrelay/internal/repository"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, "test", zap.NewNop()), mr
}

func newRecord(id string, created time.Time) *model.UploadRecord {
	return &model.UploadRecord{
		ID:        id,
		FileName:  id + ".apk",
		Size:      10,
		Status:    model.StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestStore_CreateFindDuplicate(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	_, err := s.Create(ctx, newRecord("r1", base))
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:upload:r1"))

	got, err := s.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1.apk", got.FileName)
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = s.Create(ctx, newRecord("r1", base))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStore_ListOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for _, r := range []*model.UploadRecord{
		newRecord("old", base),
		newRecord("tie-first", base.Add(time.Minute)),
		newRecord("tie-second", base.Add(time.Minute)),
	} {
		_, err := s.Create(ctx, r)
		require.NoError(t, err)
	}

	res, err := s.List(ctx, repository.PageQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	ids := []string{}
	for _, r := range res.Items {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"tie-second", "tie-first", "old"}, ids)

	page, err := s.List(ctx, repository.PageQuery{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "old", page.Items[0].ID)

	empty, err := s.List(ctx, repository.PageQuery{Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 3, empty.Total)
}

func TestStore_UpdateLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	_, err := s.Create(ctx, newRecord("r1", base))
	require.NoError(t, err)

	_, err = s.Update(ctx, "r1", model.MarkCompleted("bs://x", ""))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Update(ctx, "r1", model.MarkProcessing())
	require.NoError(t, err)
	done, err := s.Update(ctx, "r1", model.MarkCompleted("bs://x", "share"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)

	again, err := s.Update(ctx, "r1", model.MarkCompleted("bs://x", "share"))
	require.NoError(t, err)
	assert.Equal(t, "bs://x", *again.RemoteHandle)

	_, err = s.Update(ctx, "r1", model.MarkFailed("late"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := s.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Nil(t, got.ErrorDetail)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	_, err := s.Create(ctx, newRecord("r1", base))
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "r1", func(r *model.UploadRecord) error {
				r.Size++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(10+n), got.Size)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	_, err := s.Create(ctx, newRecord("r1", base))
	require.NoError(t, err)

	ok, err := s.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("test:upload:r1"))

	members, err := mr.ZMembers("test:uploads")
	if err == nil {
		assert.Empty(t, members)
	}

	ok, err = s.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Update(ctx, "r1", model.MarkFailed("late"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStore_PingAndOutage(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	assert.NoError(t, s.Ping(ctx))

	mr.Close()
	assert.ErrorIs(t, s.Ping(ctx), apperr.ErrStore)
	_, err := s.FindByID(ctx, "r1")
	assert.ErrorIs(t, err, apperr.ErrStore)
}

func TestIndexMember(t *testing.T) {
	m := indexMember(42, "abc:def")
	assert.Equal(t, "00000000000000000042:abc:def", m)
	assert.Equal(t, "abc:def", idFromMember(m))
}

func TestStore_ListOrdersWithinAMillisecond(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	// created out of order, 800µs apart
	for _, r := range []*model.UploadRecord{
		newRecord("newer", base.Add(900*time.Microsecond)),
		newRecord("older", base.Add(100*time.Microsecond)),
	} {
		_, err := s.Create(ctx, r)
		require.NoError(t, err)
	}

	res, err := s.List(ctx, repository.PageQuery{})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "newer", res.Items[0].ID)
	assert.Equal(t, "older", res.Items[1].ID)
	assert.Equal(t, float64(base.UnixMicro()+900), indexScore(res.Items[0].CreatedAt))
}
