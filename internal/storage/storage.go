// Package storage is the intermediate object store that holds uploaded
// artifacts between the client upload and the remote handoff.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"apkrelay/internal/config"
)

// PutObjectOptions define optional parameters for uploading objects.
// Size is the exact byte count, or -1 when unknown.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is an S3-compatible object store.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ObjectKey builds "<prefix>/<uuid>-<base name>" so two uploads of the same file never collide.
func ObjectKey(prefix, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "artifact"
	}
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+"-"+name)
}

// New builds the backend selected by STORAGE_DRIVER. "none" returns a nil
// Storage, which leaves file staging unconfigured.
func New(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (Storage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Storage.Driver {
	case "minio":
		st, err := NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		log.Info("object storage ready", zap.String("driver", "minio"), zap.String("bucket", cfg.MinIO.Bucket))
		return st, nil
	case "s3":
		st, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		log.Info("object storage ready", zap.String("driver", "s3"), zap.String("bucket", cfg.S3.Bucket))
		return st, nil
	case "none", "":
		log.Warn("object storage disabled, multipart uploads will be rejected")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
