// Package redisstore keeps upload history in Redis. Each record is one JSON
// value; a sorted set indexes them by creation time. Mutations use
// WATCH/MULTI so concurrent updates of one id are applied one at a time.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"apkrelay/internal/apperr"
	"apkrelay/internal/model"
	"apkrelay/internal/repository"
)

const maxTxRetries = 64

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type envelope struct {
	Seq    int64              `json:"seq"`
	Record model.UploadRecord `json:"record"`
}

// Store is a repository.UploadRepository backed by Redis.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	log    *zap.Logger
	now    func() time.Time
}

var _ repository.UploadRepository = (*Store)(nil)

// New wraps an existing client. prefix namespaces every key.
func New(rdb redis.UniversalClient, prefix string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "apkrelay"
	}
	return &Store{
		rdb:    rdb,
		prefix: prefix,
		log:    log.With(zap.String("component", "redisstore")),
		now:    time.Now,
	}
}

// Connect creates a client and verifies connectivity.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *Store) recordKey(id string) string { return s.prefix + ":upload:" + id }
func (s *Store) indexKey() string          { return s.prefix + ":uploads" }
func (s *Store) seqKey() string            { return s.prefix + ":upload:seq" }

// indexMember sorts lexicographically by seq, so ZREVRANGE breaks createdAt ties newest-first.
func indexMember(seq int64, id string) string {
	return fmt.Sprintf("%020d:%s", seq, id)
}

func idFromMember(member string) string {
	if i := strings.IndexByte(member, ':'); i >= 0 {
		return member[i+1:]
	}
	return member
}

// indexScore is createdAt in microseconds, exact in a float64 for any realistic date.
func indexScore(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// Create persists a new record.
func (s *Store) Create(ctx context.Context, rec *model.UploadRecord) (*model.UploadRecord, error) {
	if rec == nil {
		return nil, apperr.Validation("record is required")
	}
	if rec.ID == "" {
		return nil, apperr.Validation("record id is required")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	seq, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, apperr.Store("allocate sequence", err)
	}
	env := envelope{Seq: seq, Record: rec.Clone()}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, apperr.Store("encode record", err)
	}

	key := s.recordKey(rec.ID)
	var dup bool
	err = s.withRetry(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			dup = true
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			p.ZAdd(ctx, s.indexKey(), redis.Z{Score: indexScore(rec.CreatedAt), Member: indexMember(seq, rec.ID)})
			return nil
		})
		return err
	})
	if err != nil {
		return nil, apperr.Store("create record", err)
	}
	if dup {
		return nil, apperr.Validation("record %s already exists", rec.ID)
	}
	out := env.Record.Clone()
	return &out, nil
}

// FindByID returns the record or a not-found error.
func (s *Store) FindByID(ctx context.Context, id string) (*model.UploadRecord, error) {
	env, err := s.get(ctx, s.rdb, id)
	if err != nil {
		return nil, err
	}
	return &env.Record, nil
}

// List reads one page of ids from the index and fetches them in a single MGET.
func (s *Store) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.UploadRecord], error) {
	total, err := s.rdb.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, apperr.Store("count uploads", err)
	}

	start := int64(pq.Offset)
	if start < 0 {
		start = 0
	}
	stop := int64(-1)
	if pq.Limit > 0 {
		stop = start + int64(pq.Limit) - 1
	}
	members, err := s.rdb.ZRevRange(ctx, s.indexKey(), start, stop).Result()
	if err != nil {
		return nil, apperr.Store("list uploads", err)
	}

	items := make([]model.UploadRecord, 0, len(members))
	if len(members) == 0 {
		return &repository.PageResult[model.UploadRecord]{Items: items, Total: int(total)}, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.recordKey(idFromMember(m))
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.Store("load uploads", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between ZREVRANGE and MGET
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			s.log.Warn("skip unreadable record", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		items = append(items, env.Record)
	}
	return &repository.PageResult[model.UploadRecord]{Items: items, Total: int(total)}, nil
}

// Update applies mutate inside a WATCH on the record key and retries when another writer wins.
func (s *Store) Update(ctx context.Context, id string, mutate model.Mutation) (*model.UploadRecord, error) {
	key := s.recordKey(id)
	var out *model.UploadRecord
	var opErr error

	err := s.withRetry(ctx, key, func(tx *redis.Tx) error {
		out, opErr = nil, nil
		env, err := s.get(ctx, tx, id)
		if err != nil {
			opErr = err
			return nil
		}
		next, err := model.ApplyMutation(env.Record, mutate, s.now())
		if errors.Is(err, model.ErrAlreadyApplied) {
			out = &env.Record
			return nil
		}
		if err != nil {
			opErr = err
			return nil
		}
		data, err := json.Marshal(envelope{Seq: env.Seq, Record: next})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			out = &next
		}
		return err
	})
	if err != nil {
		return nil, apperr.Store("update record", err)
	}
	if opErr != nil {
		return nil, opErr
	}
	return out, nil
}

// Delete removes the record and its index entry in one transaction.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	key := s.recordKey(id)
	var existed bool
	err := s.withRetry(ctx, key, func(tx *redis.Tx) error {
		existed = false
		env, err := s.get(ctx, tx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			p.ZRem(ctx, s.indexKey(), indexMember(env.Seq, id))
			return nil
		})
		if err == nil {
			existed = true
		}
		return err
	})
	if err != nil {
		return false, apperr.Store("delete record", err)
	}
	return existed, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return apperr.Store("ping redis", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, c getter, id string) (*envelope, error) {
	raw, err := c.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.NotFound("upload %s not found", id)
	}
	if err != nil {
		return nil, apperr.Store("get record", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Store("decode record "+strconv.Quote(id), err)
	}
	return &env, nil
}

func (s *Store) withRetry(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug("optimistic transaction conflict, retrying", zap.String("key", key), zap.Int("attempt", i+1))
			continue
		}
		return err
	}
	return fmt.Errorf("transaction on %s: too many conflicts", key)
}
