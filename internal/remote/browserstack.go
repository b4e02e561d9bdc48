// Package remote uploads artifacts to the BrowserStack App Automate API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"apkrelay/internal/apperr"
	"apkrelay/internal/config"
	"apkrelay/internal/logger"
)

const maxErrorBody = 64 * 1024

// Result is the provider's answer to a successful upload.
type Result struct {
	Handle      string `json:"app_url"`
	CustomID    string `json:"custom_id,omitempty"`
	ShareableID string `json:"shareable_id,omitempty"`
}

// Uploader sends an artifact to the remote provider.
type Uploader interface {
	// UploadFile streams size bytes of content as the multipart field "file".
	UploadFile(ctx context.Context, fileName string, content io.ReaderAt, size int64, customID string) (*Result, error)
	// UploadURL asks the provider to fetch the artifact itself.
	UploadURL(ctx context.Context, artifactURL, customID string) (*Result, error)
}

// Client is the BrowserStack Uploader.
type Client struct {
	http *retryablehttp.Client
	cfg  config.BrowserStackConfig
	log  *zap.Logger
}

var _ Uploader = (*Client)(nil)

// New builds a client with retries on connection errors, 429 and 5xx.
// cfg.Timeout bounds each attempt.
func New(cfg config.BrowserStackConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "browserstack"))

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = logger.NewLeveled(log)
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.HTTPClient.Transport = otelhttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone())

	return &Client{http: rc, cfg: cfg, log: log}
}

// checkRetry is the default policy minus retries for 4xx other than 429.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (c *Client) checkConfig() error {
	if c.cfg.Username == "" || c.cfg.AccessKey == "" {
		return apperr.Configuration("browserstack credentials are not configured")
	}
	if c.cfg.UploadURL == "" {
		return apperr.Configuration("browserstack upload url is not configured")
	}
	return nil
}

// UploadFile sends the artifact as multipart/form-data. The body is rebuilt
// from content on every attempt, so retries never re-read a drained stream.
func (c *Client) UploadFile(ctx context.Context, fileName string, content io.ReaderAt, size int64, customID string) (*Result, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	if customID != "" {
		if err := mw.WriteField("custom_id", customID); err != nil {
			return nil, apperr.UpstreamTransfer("build multipart body", err)
		}
	}
	if _, err := mw.CreateFormFile("file", fileName); err != nil {
		return nil, apperr.UpstreamTransfer("build multipart body", err)
	}
	prefix := head.Bytes()
	trailer := fmt.Sprintf("\r\n--%s--\r\n", mw.Boundary())
	length := int64(len(prefix)) + size + int64(len(trailer))

	body := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		return io.MultiReader(
			bytes.NewReader(prefix),
			io.NewSectionReader(content, 0, size),
			strings.NewReader(trailer),
		), nil
	})
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, body)
	if err != nil {
		return nil, apperr.UpstreamTransfer("build upload request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.ContentLength = length

	return c.do(ctx, req, fileName)
}

// UploadURL sends the artifact location as the "url" form field.
func (c *Client) UploadURL(ctx context.Context, artifactURL, customID string) (*Result, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("url", artifactURL)
	if customID != "" {
		form.Set("custom_id", customID)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, []byte(form.Encode()))
	if err != nil {
		return nil, apperr.UpstreamTransfer("build upload request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(ctx, req, redactURL(artifactURL))
}

func (c *Client) do(ctx context.Context, req *retryablehttp.Request, subject string) (*Result, error) {
	req.SetBasicAuth(c.cfg.Username, c.cfg.AccessKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, apperr.UpstreamTransfer(fmt.Sprintf("browserstack upload timed out after %s", time.Since(start).Round(time.Millisecond)), err)
		}
		return nil, apperr.UpstreamTransfer("browserstack upload failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, apperr.UpstreamTransfer("read browserstack response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.UpstreamTransfer(fmt.Sprintf("browserstack upload failed: HTTP %d: %s", resp.StatusCode, errorDetail(raw)), nil)
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.UpstreamTransfer("browserstack returned malformed JSON", err)
	}
	if out.Handle == "" {
		return nil, apperr.UpstreamTransfer("browserstack response is missing app_url", nil)
	}

	c.log.Info("artifact uploaded",
		zap.String("subject", subject),
		zap.String("app_url", out.Handle),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &out, nil
}

// errorDetail prefers the provider's {"error": "..."} message over the raw body.
func errorDetail(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	detail := strings.TrimSpace(string(raw))
	if detail == "" {
		return "empty response body"
	}
	return detail
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// redactURL drops the query string, which for presigned URLs carries credentials.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
