// Package filestore keeps upload history as one JSON file per record.
// Every write goes temp file → fsync → rename → directory fsync, so a crash
// leaves either the previous version or the new one on disk.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"apkrelay/internal/apperr"
	"apkrelay/internal/model"
	"apkrelay/internal/repository"
)

const (
	recordsDir   = "records"
	recordSuffix = ".json"
	tmpMarker    = ".tmp-"
)

// envelope is the on-disk form. Seq breaks createdAt ties in List.
type envelope struct {
	Seq    uint64             `json:"seq"`
	Record model.UploadRecord `json:"record"`
}

// Store is a crash-consistent repository.UploadRepository on the local filesystem.
type Store struct {
	dir   string
	log   *zap.Logger
	now   func() time.Time
	locks *keyedLocks

	mu    sync.RWMutex
	index map[string]envelope
	seq   uint64
}

var _ repository.UploadRepository = (*Store)(nil)

// Open prepares dir, removes temp files left by an interrupted write and
// loads every readable record into memory. Unreadable files are skipped with a warning.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	root := filepath.Join(dir, recordsDir)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, apperr.Store("create history directory", err)
	}

	s := &Store{
		dir:   root,
		log:   log.With(zap.String("component", "filestore")),
		now:   time.Now,
		locks: newKeyedLocks(),
		index: make(map[string]envelope),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.log.Info("history store opened", zap.String("dir", root), zap.Int("records", len(s.index)))
	return s, nil
}

func (s *Store) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return apperr.Store("scan history directory", err)
	}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(s.dir, name)
		if strings.Contains(name, tmpMarker) {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.log.Warn("remove stale temp file", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		if e.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		env, err := readEnvelope(path)
		if err != nil {
			s.log.Warn("skip unreadable record", zap.String("path", path), zap.Error(err))
			continue
		}
		if env.Record.ID+recordSuffix != name {
			s.log.Warn("skip record with mismatched id", zap.String("path", path), zap.String("id", env.Record.ID))
			continue
		}
		s.index[env.Record.ID] = env
		if env.Seq > s.seq {
			s.seq = env.Seq
		}
	}
	return nil
}

// Create persists a new record.
func (s *Store) Create(ctx context.Context, rec *model.UploadRecord) (*model.UploadRecord, error) {
	if rec == nil {
		return nil, apperr.Validation("record is required")
	}
	if err := checkID(rec.ID); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Store("create record", err)
	}

	unlock := s.locks.Lock(rec.ID)
	defer unlock()

	s.mu.Lock()
	if _, exists := s.index[rec.ID]; exists {
		s.mu.Unlock()
		return nil, apperr.Validation("record %s already exists", rec.ID)
	}
	s.seq++
	env := envelope{Seq: s.seq, Record: rec.Clone()}
	s.mu.Unlock()

	if err := s.write(env); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.index[rec.ID] = env
	s.mu.Unlock()

	out := env.Record.Clone()
	return &out, nil
}

// FindByID returns a copy of the stored record.
func (s *Store) FindByID(ctx context.Context, id string) (*model.UploadRecord, error) {
	s.mu.RLock()
	env, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("upload %s not found", id)
	}
	out := env.Record.Clone()
	return &out, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.UploadRecord], error) {
	s.mu.RLock()
	envs := make([]envelope, 0, len(s.index))
	for _, env := range s.index {
		envs = append(envs, env)
	}
	s.mu.RUnlock()

	sort.Slice(envs, func(i, j int) bool {
		a, b := envs[i], envs[j]
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Seq > b.Seq
	})

	items := make([]model.UploadRecord, len(envs))
	for i, env := range envs {
		items[i] = env.Record.Clone()
	}
	return &repository.PageResult[model.UploadRecord]{
		Items: repository.Page(items, pq),
		Total: len(items),
	}, nil
}

// Update applies mutate under the record's lock and persists the result.
func (s *Store) Update(ctx context.Context, id string, mutate model.Mutation) (*model.UploadRecord, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	env, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("upload %s not found", id)
	}

	next, err := model.ApplyMutation(env.Record, mutate, s.now())
	if errors.Is(err, model.ErrAlreadyApplied) {
		out := env.Record.Clone()
		return &out, nil
	}
	if err != nil {
		return nil, err
	}

	updated := envelope{Seq: env.Seq, Record: next}
	if err := s.write(updated); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.index[id] = updated
	s.mu.Unlock()

	out := next.Clone()
	return &out, nil
}

// Delete removes the record file and its index entry. Holding the id lock keeps a concurrent
// Update from writing the record back.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	_, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, apperr.Store("delete record", err)
	}
	// the file is gone; the index must follow even if the sync below fails
	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()

	if err := syncDir(s.dir); err != nil {
		return true, apperr.Store("sync history directory", err)
	}
	return true, nil
}

// Ping checks the records directory is still there.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return apperr.Store("stat history directory", err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+recordSuffix)
}

func (s *Store) write(env envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return apperr.Store("encode record", err)
	}

	f, err := os.CreateTemp(s.dir, env.Record.ID+recordSuffix+tmpMarker+"*")
	if err != nil {
		return apperr.Store("create temp file", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperr.Store("write temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperr.Store("fsync temp file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperr.Store("close temp file", err)
	}
	if err := os.Rename(tmp, s.path(env.Record.ID)); err != nil {
		os.Remove(tmp)
		return apperr.Store("rename record", err)
	}
	if err := syncDir(s.dir); err != nil {
		return apperr.Store("sync history directory", err)
	}
	return nil
}

func readEnvelope(path string) (envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if err := env.Record.Validate(); err != nil {
		return envelope{}, err
	}
	return env, nil
}

var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// checkID rejects ids that cannot be used as a single file name.
func checkID(id string) error {
	if id == "" {
		return apperr.Validation("record id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.Contains(id, tmpMarker) {
		return apperr.Validation("record id %q is not allowed", id)
	}
	return nil
}
