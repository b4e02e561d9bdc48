package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apkrelay/internal/apperr"
)

func newPending() UploadRecord {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return UploadRecord{
		ID:        "a1b2",
		FileName:  "app.apk",
		Size:      1024,
		Status:    StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPending, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusFailed, StatusProcessing, false},
		{StatusPending, Status("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestApplyMutation_Lifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)
	rec := newPending()

	rec, err := ApplyMutation(rec, MarkProcessing(), now)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.Equal(t, now, rec.UpdatedAt)

	rec, err = ApplyMutation(rec, MarkCompleted("bs://abc", "share-1"), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	require.NotNil(t, rec.RemoteHandle)
	assert.Equal(t, "bs://abc", *rec.RemoteHandle)
	require.NotNil(t, rec.ShareableID)
	assert.Equal(t, "share-1", *rec.ShareableID)
	assert.Nil(t, rec.ErrorDetail)

	_, err = ApplyMutation(rec, MarkFailed("late"), now.Add(2*time.Minute))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestApplyMutation_RejectsCompletedFromPending(t *testing.T) {
	rec := newPending()
	out, err := ApplyMutation(rec, MarkCompleted("bs://x", ""), time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, rec, out)
}

func TestApplyMutation_ImmutableFields(t *testing.T) {
	rec := newPending()
	_, err := ApplyMutation(rec, func(r *UploadRecord) error {
		r.ID = "other"
		return nil
	}, time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ApplyMutation(rec, func(r *UploadRecord) error {
		r.CreatedAt = r.CreatedAt.Add(time.Hour)
		return nil
	}, time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestApplyMutation_InvariantViolation(t *testing.T) {
	rec := newPending()
	handle := "bs://x"
	_, err := ApplyMutation(rec, func(r *UploadRecord) error {
		r.RemoteHandle = &handle
		return nil
	}, time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestApplyMutation_PropagatesMutationError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ApplyMutation(newPending(), func(*UploadRecord) error { return boom }, time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestApplyMutation_DoesNotAliasInput(t *testing.T) {
	rec := newPending()
	rec.SourceLocation = StringPtr("storage://k")
	out, err := ApplyMutation(rec, ClearSource(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, out.SourceLocation)
	require.NotNil(t, rec.SourceLocation)
	assert.Equal(t, "storage://k", *rec.SourceLocation)
}

func TestMutations_AlreadyApplied(t *testing.T) {
	rec := newPending()
	rec.Status = StatusProcessing
	_, err := ApplyMutation(rec, MarkProcessing(), time.Now())
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	rec, err = ApplyMutation(rec, MarkFailed("boom"), time.Now())
	require.NoError(t, err)
	_, err = ApplyMutation(rec, MarkFailed("boom"), time.Now())
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	_, err = ApplyMutation(rec, ClearSource(), time.Now())
	assert.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestMarkFailed_EmptyDetail(t *testing.T) {
	rec := newPending()
	out, err := ApplyMutation(rec, MarkFailed(""), time.Now())
	require.NoError(t, err)
	require.NotNil(t, out.ErrorDetail)
	assert.Equal(t, "upload failed", *out.ErrorDetail)
}

func TestValidate(t *testing.T) {
	handle := "bs://x"
	detail := "nope"
	tests := []struct {
		name    string
		mutate  func(r *UploadRecord)
		wantErr bool
	}{
		{"pending ok", func(r *UploadRecord) {}, false},
		{"missing id", func(r *UploadRecord) { r.ID = "" }, true},
		{"negative size", func(r *UploadRecord) { r.Size = -1 }, true},
		{"completed without handle", func(r *UploadRecord) { r.Status = StatusCompleted }, true},
		{"completed ok", func(r *UploadRecord) { r.Status = StatusCompleted; r.RemoteHandle = &handle }, false},
		{"completed with error", func(r *UploadRecord) {
			r.Status = StatusCompleted
			r.RemoteHandle = &handle
			r.ErrorDetail = &detail
		}, true},
		{"failed ok", func(r *UploadRecord) { r.Status = StatusFailed; r.ErrorDetail = &detail }, false},
		{"failed with handle", func(r *UploadRecord) {
			r.Status = StatusFailed
			r.ErrorDetail = &detail
			r.RemoteHandle = &handle
		}, true},
		{"processing with error", func(r *UploadRecord) { r.Status = StatusProcessing; r.ErrorDetail = &detail }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newPending()
			tt.mutate(&rec)
			err := rec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	rec := newPending()
	assert.True(t, rec.CanTransitionTo(StatusProcessing))
	assert.False(t, rec.CanTransitionTo(StatusCompleted))
	rec.Status = StatusFailed
	assert.False(t, rec.CanTransitionTo(StatusFailed))
}

func TestApplyMutation_TerminalBookkeeping(t *testing.T) {
	rec := newPending()
	rec.Status = StatusProcessing
	rec.SourceLocation = StringPtr("storage://apk-uploads/k.apk")

	rec, err := ApplyMutation(rec, MarkCompleted("bs://abc", ""), time.Now())
	require.NoError(t, err)

	cleared, err := ApplyMutation(rec, ClearSource(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, cleared.SourceLocation)
	assert.Equal(t, StatusCompleted, cleared.Status)

	_, err = ApplyMutation(cleared, MarkCompleted("bs://other", ""), time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidation)

	failed := newPending()
	failed, err = ApplyMutation(failed, MarkFailed("first"), time.Now())
	require.NoError(t, err)
	_, err = ApplyMutation(failed, MarkFailed("second"), time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
