package repository

import (
	"context"

	"apkrelay/internal/model"
)

// UploadRepository is the durable history store for upload attempts.
//
// Implementations serialize mutations per record id, persist each change
// atomically (a reader sees the old record or the new one, never a mix) and
// survive restarts with every acknowledged write intact.
type UploadRepository interface {
	// Create persists a new record. It fails with a validation error if the id already exists.
	Create(ctx context.Context, rec *model.UploadRecord) (*model.UploadRecord, error)

	// FindByID returns the record or an apperr not-found error.
	FindByID(ctx context.Context, id string) (*model.UploadRecord, error)

	// List returns records newest first (createdAt desc, insertion order desc on ties).
	// A zero Limit returns every record from Offset on.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.UploadRecord], error)

	// Update applies mutate to the current record under the per-id lock and
	// persists the result. model.ErrAlreadyApplied from mutate is reported as
	// success with the unchanged record.
	Update(ctx context.Context, id string, mutate model.Mutation) (*model.UploadRecord, error)

	// Delete removes a record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}

// Page slices items according to pq. Backends that hold the full ordered set
// in memory use it to apply pagination.
func Page[T any](items []T, pq PageQuery) []T {
	if pq.Offset < 0 {
		pq.Offset = 0
	}
	if pq.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if pq.Limit > 0 && pq.Offset+pq.Limit < end {
		end = pq.Offset + pq.Limit
	}
	out := make([]T, end-pq.Offset)
	copy(out, items[pq.Offset:end])
	return out
}
