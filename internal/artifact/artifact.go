// Package artifact moves upload bytes in and out of intermediate storage.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"apkrelay/internal/apperr"
	"apkrelay/internal/logger"
	"apkrelay/internal/storage"
)

const storageScheme = "storage://"

// Ref points at artifact bytes: an intermediate-storage key or a fetchable URL.
type Ref struct {
	StorageKey string
	URL        string
}

// ParseLocation turns a record's sourceLocation back into a Ref.
func ParseLocation(loc string) (Ref, error) {
	switch {
	case strings.HasPrefix(loc, storageScheme):
		key := strings.TrimPrefix(loc, storageScheme)
		if key == "" {
			return Ref{}, apperr.Validation("storage location has no key")
		}
		return Ref{StorageKey: key}, nil
	case loc != "":
		u, err := url.Parse(loc)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Ref{}, apperr.Validation("artifact url must be an absolute http(s) url")
		}
		return Ref{URL: loc}, nil
	default:
		return Ref{}, apperr.Validation("artifact location is required")
	}
}

// Location is the string stored as the record's sourceLocation.
func (r Ref) Location() string {
	if r.StorageKey != "" {
		return storageScheme + r.StorageKey
	}
	return r.URL
}

// IsStored reports whether the bytes live in intermediate storage.
func (r Ref) IsStored() bool { return r.StorageKey != "" }

// Spooled is a local copy of the artifact. Close deletes it.
type Spooled struct {
	f    *os.File
	Size int64
}

func (s *Spooled) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }

// Close removes the spool file.
func (s *Spooled) Close() error {
	name := s.f.Name()
	cerr := s.f.Close()
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return cerr
}

// Resolver stages, fetches and releases artifacts.
type Resolver interface {
	Stage(ctx context.Context, fileName string, body io.Reader, size int64, contentType string) (Ref, error)
	Open(ctx context.Context, ref Ref) (*Spooled, error)
	PublicURL(ctx context.Context, ref Ref) (string, error)
	Release(ctx context.Context, ref Ref) error
}

// Options tunes a Manager.
type Options struct {
	Prefix       string
	SpoolDir     string
	MaxSize      int64
	PresignTTL   time.Duration
	FetchTimeout time.Duration
	FetchRetries int
}

// Manager is the Resolver backed by storage.Storage and an HTTP fetcher.
type Manager struct {
	store storage.Storage
	http  *retryablehttp.Client
	opts  Options
	log   *zap.Logger
}

var _ Resolver = (*Manager)(nil)

// NewManager builds a Manager. store may be nil, in which case only URL refs work.
func NewManager(store storage.Storage, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "artifact"))
	if opts.Prefix == "" {
		opts.Prefix = "apk-uploads"
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = time.Hour
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.FetchRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = logger.NewLeveled(log)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient.Timeout = opts.FetchTimeout
	rc.HTTPClient.Transport = otelhttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone())

	return &Manager{store: store, http: rc, opts: opts, log: log}
}

func (m *Manager) requireStore() error {
	if m.store == nil {
		return apperr.Configuration("intermediate storage is not configured")
	}
	return nil
}

// Stage writes body to intermediate storage under a fresh key.
func (m *Manager) Stage(ctx context.Context, fileName string, body io.Reader, size int64, contentType string) (Ref, error) {
	if err := m.requireStore(); err != nil {
		return Ref{}, err
	}
	key := storage.ObjectKey(m.opts.Prefix, fileName)
	if _, err := m.store.Put(ctx, key, body, storage.PutObjectOptions{
		Size:        size,
		ContentType: contentType,
		Metadata:    map[string]string{"original-name": fileName},
	}); err != nil {
		return Ref{}, apperr.UpstreamFetch("stage artifact in intermediate storage", err)
	}
	m.log.Debug("artifact staged", zap.String("key", key), zap.String("size", units.HumanSize(float64(size))))
	return Ref{StorageKey: key}, nil
}

// Open copies the artifact to a spool file so the upload can be replayed on retry.
func (m *Manager) Open(ctx context.Context, ref Ref) (*Spooled, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch {
	case ref.IsStored():
		if err := m.requireStore(); err != nil {
			return nil, err
		}
		rc, _, err = m.store.Get(ctx, ref.StorageKey)
		if err != nil {
			return nil, apperr.UpstreamFetch("fetch artifact from intermediate storage", err)
		}
	case ref.URL != "":
		rc, err = m.fetch(ctx, ref.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Validation("artifact reference is empty")
	}
	defer rc.Close()

	return Spool(m.opts.SpoolDir, rc, m.opts.MaxSize)
}

func (m *Manager) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.UpstreamFetch("build artifact request", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, apperr.UpstreamFetch("fetch artifact", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, apperr.UpstreamFetch(fmt.Sprintf("fetch artifact: HTTP %d", resp.StatusCode), nil)
	}
	if m.opts.MaxSize > 0 && resp.ContentLength > m.opts.MaxSize {
		resp.Body.Close()
		return nil, apperr.UpstreamFetch(fmt.Sprintf("artifact is %s, limit is %s",
			units.HumanSize(float64(resp.ContentLength)), units.HumanSize(float64(m.opts.MaxSize))), nil)
	}
	return resp.Body, nil
}

// Spool copies r into a temp file under dir. maxSize > 0 caps the copy.
func Spool(dir string, r io.Reader, maxSize int64) (*Spooled, error) {
	f, err := os.CreateTemp(dir, "apkrelay-spool-*.apk")
	if err != nil {
		return nil, apperr.UpstreamFetch("create spool file", err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		cleanup()
		return nil, apperr.UpstreamFetch("read artifact", err)
	}
	if maxSize > 0 && n > maxSize {
		cleanup()
		return nil, apperr.UpstreamFetch(fmt.Sprintf("artifact exceeds limit of %s", units.HumanSize(float64(maxSize))), nil)
	}
	return &Spooled{f: f, Size: n}, nil
}

// PublicURL returns a URL the remote provider can fetch the artifact from.
func (m *Manager) PublicURL(ctx context.Context, ref Ref) (string, error) {
	if !ref.IsStored() {
		if ref.URL == "" {
			return "", apperr.Validation("artifact reference is empty")
		}
		return ref.URL, nil
	}
	if err := m.requireStore(); err != nil {
		return "", err
	}
	u, err := m.store.PresignGet(ctx, ref.StorageKey, m.opts.PresignTTL)
	if err != nil {
		return "", apperr.UpstreamFetch("presign artifact url", err)
	}
	return u, nil
}

// Release deletes a staged object. URL refs are owned by someone else and are left alone.
func (m *Manager) Release(ctx context.Context, ref Ref) error {
	if !ref.IsStored() || m.store == nil {
		return nil
	}
	if err := m.store.Delete(ctx, ref.StorageKey); err != nil {
		return fmt.Errorf("release %s: %w", ref.StorageKey, err)
	}
	return nil
}
