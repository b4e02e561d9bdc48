package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"apkrelay/internal/apperr"
	"apkrelay/internal/model"
	"apkrelay/internal/repository"
)

const uniqueViolation = "23505"

const selectColumns = `id, file_name, size, content_type, custom_id, status, remote_handle,
		shareable_id, error_detail, source_location, created_at, updated_at`

// UploadPostgres is a PostgreSQL implementation of repository.UploadRepository.
// Updates run inside a transaction that holds a row lock (SELECT ... FOR UPDATE),
// so mutations of the same id are applied one at a time.
type UploadPostgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewUploadPostgres creates a new UploadPostgres repository.
func NewUploadPostgres(db *sql.DB) *UploadPostgres {
	return &UploadPostgres{db: db, now: time.Now}
}

var _ repository.UploadRepository = (*UploadPostgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*model.UploadRecord, error) {
	var (
		r                                         model.UploadRecord
		status                                    string
		customID, handle, shareable, detail, src sql.NullString
	)
	if err := row.Scan(
		&r.ID,
		&r.FileName,
		&r.Size,
		&r.ContentType,
		&customID,
		&status,
		&handle,
		&shareable,
		&detail,
		&src,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = model.Status(status)
	r.CustomID = nullable(customID)
	r.RemoteHandle = nullable(handle)
	r.ShareableID = nullable(shareable)
	r.ErrorDetail = nullable(detail)
	r.SourceLocation = nullable(src)
	return &r, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Create inserts a new upload row and returns the stored record.
func (r *UploadPostgres) Create(ctx context.Context, rec *model.UploadRecord) (*model.UploadRecord, error) {
	if rec == nil {
		return nil, apperr.Validation("record is required")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	const q = `
		INSERT INTO uploads (id, file_name, size, content_type, custom_id, status, remote_handle,
			shareable_id, error_detail, source_location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + selectColumns
	row := r.db.QueryRowContext(ctx, q,
		rec.ID,
		rec.FileName,
		rec.Size,
		rec.ContentType,
		toNull(rec.CustomID),
		string(rec.Status),
		toNull(rec.RemoteHandle),
		toNull(rec.ShareableID),
		toNull(rec.ErrorDetail),
		toNull(rec.SourceLocation),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	out, err := scanUpload(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.Validation("record %s already exists", rec.ID)
		}
		return nil, apperr.Store("insert upload", err)
	}
	return out, nil
}

// FindByID fetches a single upload by its ID.
func (r *UploadPostgres) FindByID(ctx context.Context, id string) (*model.UploadRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM uploads WHERE id = $1`
	out, err := scanUpload(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("upload %s not found", id)
		}
		return nil, apperr.Store("select upload", err)
	}
	return out, nil
}

// List returns uploads newest first. A zero limit becomes LIMIT NULL, which Postgres treats as no limit.
func (r *UploadPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.UploadRecord], error) {
	const qCount = `SELECT COUNT(*) FROM uploads`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, apperr.Store("count uploads", err)
	}

	offset := pq.Offset
	if offset < 0 {
		offset = 0
	}
	qList := `SELECT ` + selectColumns + `
		FROM uploads
		ORDER BY created_at DESC, seq DESC
		LIMIT NULLIF($1, 0) OFFSET $2`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, offset)
	if err != nil {
		return nil, apperr.Store("list uploads", err)
	}
	defer rows.Close()

	items := make([]model.UploadRecord, 0)
	for rows.Next() {
		rec, err := scanUpload(rows)
		if err != nil {
			return nil, apperr.Store("scan upload", err)
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("iterate uploads", err)
	}

	return &repository.PageResult[model.UploadRecord]{
		Items: items,
		Total: total,
	}, nil
}

// Update locks the row, applies mutate and writes every mutable column back in the same transaction.
func (r *UploadPostgres) Update(ctx context.Context, id string, mutate model.Mutation) (*model.UploadRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Store("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := `SELECT ` + selectColumns + ` FROM uploads WHERE id = $1 FOR UPDATE`
	cur, err := scanUpload(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("upload %s not found", id)
		}
		return nil, apperr.Store("lock upload", err)
	}

	next, err := model.ApplyMutation(*cur, mutate, r.now())
	if errors.Is(err, model.ErrAlreadyApplied) {
		return cur, nil
	}
	if err != nil {
		return nil, err
	}

	const qUpdate = `
		UPDATE uploads
		SET file_name = $2, size = $3, content_type = $4, custom_id = $5, status = $6,
			remote_handle = $7, shareable_id = $8, error_detail = $9, source_location = $10,
			updated_at = $11
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, qUpdate,
		next.ID,
		next.FileName,
		next.Size,
		next.ContentType,
		toNull(next.CustomID),
		string(next.Status),
		toNull(next.RemoteHandle),
		toNull(next.ShareableID),
		toNull(next.ErrorDetail),
		toNull(next.SourceLocation),
		next.UpdatedAt,
	); err != nil {
		return nil, apperr.Store("update upload", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Store("commit upload", err)
	}
	return &next, nil
}

// Delete removes an upload by ID and reports whether a row was deleted.
func (r *UploadPostgres) Delete(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM uploads WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, apperr.Store("delete upload", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Store("delete upload", err)
	}
	return n > 0, nil
}

// Ping verifies the database connection.
func (r *UploadPostgres) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return apperr.Store("ping database", err)
	}
	return nil
}
