package model

import (
	"errors"
	"fmt"
	"time"

	"apkrelay/internal/apperr"
)

// Status is the lifecycle state of one upload attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// validTransitions is keyed by the current status. A status mapping to itself
// allows field updates without a status change. Terminal states map to nothing.
// pending → failed covers attempts that never started (scheduling failure, stuck sweep).
var validTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusPending: true, StatusProcessing: true, StatusFailed: true},
	StatusProcessing: {StatusProcessing: true, StatusCompleted: true, StatusFailed: true},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// UploadRecord is the durable history entry for one upload attempt.
type UploadRecord struct {
	ID             string    `json:"id"`
	FileName       string    `json:"fileName"`
	Size           int64     `json:"size"`
	ContentType    string    `json:"contentType,omitempty"`
	CustomID       *string   `json:"customId"`
	Status         Status    `json:"status"`
	RemoteHandle   *string   `json:"remoteHandle"`
	ShareableID    *string   `json:"shareableId"`
	ErrorDetail    *string   `json:"errorDetail"`
	SourceLocation *string   `json:"sourceLocation"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Mutation changes a record in place. Stores call it on a private copy and
// persist the result only if it returns nil and the result passes validation.
type Mutation func(r *UploadRecord) error

// ErrAlreadyApplied is returned by a mutation whose effect is already present.
// Callers treat it as success; stores treat it as "nothing to write".
var ErrAlreadyApplied = errors.New("mutation already applied")

// ValidateTransition checks that moving from → to follows the forward-only lifecycle.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return apperr.Validation("unknown status %q", to)
	}
	if !validTransitions[from][to] {
		return apperr.Validation("invalid status transition %s → %s", from, to)
	}
	return nil
}

// CanTransitionTo reports whether r may move to status next.
func (r *UploadRecord) CanTransitionTo(next Status) bool {
	return ValidateTransition(r.Status, next) == nil
}

// Validate checks the field invariants that depend on status.
func (r *UploadRecord) Validate() error {
	if r.ID == "" {
		return apperr.Validation("record id is required")
	}
	if r.Size < 0 {
		return apperr.Validation("size must not be negative")
	}
	if !r.Status.Valid() {
		return apperr.Validation("unknown status %q", r.Status)
	}
	hasHandle := r.RemoteHandle != nil && *r.RemoteHandle != ""
	hasError := r.ErrorDetail != nil && *r.ErrorDetail != ""
	switch r.Status {
	case StatusCompleted:
		if !hasHandle || r.ErrorDetail != nil {
			return apperr.Validation("completed record needs a remote handle and no error detail")
		}
	case StatusFailed:
		if !hasError || r.RemoteHandle != nil {
			return apperr.Validation("failed record needs an error detail and no remote handle")
		}
	default:
		if r.RemoteHandle != nil || r.ErrorDetail != nil {
			return apperr.Validation("%s record cannot carry a remote handle or error detail", r.Status)
		}
	}
	return nil
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (r UploadRecord) Clone() UploadRecord {
	out := r
	out.CustomID = cloneString(r.CustomID)
	out.RemoteHandle = cloneString(r.RemoteHandle)
	out.ShareableID = cloneString(r.ShareableID)
	out.ErrorDetail = cloneString(r.ErrorDetail)
	out.SourceLocation = cloneString(r.SourceLocation)
	return out
}

// ApplyMutation runs mutate on a copy of cur and validates the outcome.
// Changing id or createdAt is rejected. A terminal record keeps its status
// and outcome fields; only bookkeeping such as sourceLocation may change.
// The returned error is ErrAlreadyApplied, a validation error, or whatever mutate returned.
func ApplyMutation(cur UploadRecord, mutate Mutation, now time.Time) (UploadRecord, error) {
	next := cur.Clone()
	if err := mutate(&next); err != nil {
		return cur, err
	}
	if next.ID != cur.ID || !next.CreatedAt.Equal(cur.CreatedAt) {
		return cur, apperr.Validation("id and createdAt are immutable")
	}
	if cur.Status.IsTerminal() && next.Status == cur.Status {
		if !sameOutcome(cur, next) {
			return cur, apperr.Validation("%s record is final", cur.Status)
		}
	} else if err := ValidateTransition(cur.Status, next.Status); err != nil {
		return cur, err
	}
	if err := next.Validate(); err != nil {
		return cur, err
	}
	next.UpdatedAt = now.UTC()
	return next, nil
}

// MarkProcessing moves a pending record to processing.
func MarkProcessing() Mutation {
	return func(r *UploadRecord) error {
		if r.Status == StatusProcessing {
			return ErrAlreadyApplied
		}
		r.Status = StatusProcessing
		return nil
	}
}

// MarkCompleted records the remote handle as the terminal outcome.
func MarkCompleted(handle, shareableID string) Mutation {
	return func(r *UploadRecord) error {
		if r.Status == StatusCompleted && r.RemoteHandle != nil && *r.RemoteHandle == handle {
			return ErrAlreadyApplied
		}
		r.Status = StatusCompleted
		r.RemoteHandle = &handle
		r.ErrorDetail = nil
		if shareableID != "" {
			r.ShareableID = &shareableID
		}
		return nil
	}
}

// MarkFailed records detail as the terminal outcome.
func MarkFailed(detail string) Mutation {
	return func(r *UploadRecord) error {
		if r.Status == StatusFailed && r.ErrorDetail != nil && *r.ErrorDetail == detail {
			return ErrAlreadyApplied
		}
		if detail == "" {
			detail = "upload failed"
		}
		r.Status = StatusFailed
		r.ErrorDetail = &detail
		r.RemoteHandle = nil
		return nil
	}
}

// ClearSource drops the intermediate-storage reference once it has been cleaned up.
func ClearSource() Mutation {
	return func(r *UploadRecord) error {
		if r.SourceLocation == nil {
			return ErrAlreadyApplied
		}
		r.SourceLocation = nil
		return nil
	}
}

// sameOutcome reports whether the terminal fields of a and b match.
func sameOutcome(a, b UploadRecord) bool {
	return eqString(a.RemoteHandle, b.RemoteHandle) &&
		eqString(a.ErrorDetail, b.ErrorDetail) &&
		eqString(a.ShareableID, b.ShareableID)
}

func eqString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns nil for "" and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r UploadRecord) String() string {
	return fmt.Sprintf("upload %s (%s, %s)", r.ID, r.FileName, r.Status)
}
