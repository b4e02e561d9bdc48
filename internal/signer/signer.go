// Package signer issues signed credentials for direct browser uploads to
// Cloudinary. The signature covers every non-empty parameter plus a
// server-chosen timestamp, so a client cannot alter any parameter without
// invalidating it.
package signer

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"strings"
	"time"

	"apkrelay/internal/apperr"
	"apkrelay/internal/config"
)

const (
	AlgorithmSHA1   = "sha1"
	AlgorithmSHA256 = "sha256"

	ParamTimestamp    = "timestamp"
	ParamFolder       = "folder"
	ParamResourceType = "resource_type"
	ParamPublicID     = "public_id"

	defaultFolder       = "apk-uploads"
	defaultResourceType = "raw"
)

// never part of the string to sign
var unsignedParams = map[string]bool{
	"signature":  true,
	"api_key":    true,
	"file":       true,
	"cloud_name": true,
}

// Credential is what the client needs to upload straight to Cloudinary.
type Credential struct {
	CloudName          string            `json:"cloudName"`
	APIKey             string            `json:"apiKey"`
	Timestamp          int64             `json:"timestamp"`
	Signature          string            `json:"signature"`
	SignatureAlgorithm string            `json:"signatureAlgorithm"`
	Folder             string            `json:"folder"`
	ResourceType       string            `json:"resourceType"`
	PublicID           *string           `json:"publicId"`
	UploadURL          string            `json:"uploadUrl"`
	Params             map[string]string `json:"params"`
}

// Signer computes Cloudinary-compatible upload signatures.
type Signer struct {
	cfg config.CloudinaryConfig
	now func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// New builds a Signer. Missing secrets are reported by Sign, not here.
func New(cfg config.CloudinaryConfig, opts ...Option) *Signer {
	s := &Signer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Signer) checkConfig() error {
	var missing []string
	if s.cfg.CloudName == "" {
		missing = append(missing, "CLOUDINARY_CLOUD_NAME")
	}
	if s.cfg.APIKey == "" {
		missing = append(missing, "CLOUDINARY_API_KEY")
	}
	if s.cfg.APISecret == "" {
		missing = append(missing, "CLOUDINARY_API_SECRET")
	}
	if len(missing) > 0 {
		return apperr.Configuration("cloudinary is not configured: missing %s", strings.Join(missing, ", "))
	}
	if _, err := newHash(s.algorithm()); err != nil {
		return err
	}
	return nil
}

func (s *Signer) algorithm() string {
	if s.cfg.SignatureAlgorithm == "" {
		return AlgorithmSHA1
	}
	return s.cfg.SignatureAlgorithm
}

// Sign stamps params with the current time, fills in the default folder and
// resource type, and signs the result. A caller-supplied timestamp is replaced.
func (s *Signer) Sign(params map[string]string) (*Credential, error) {
	if err := s.checkConfig(); err != nil {
		return nil, err
	}

	signed := make(map[string]string, len(params)+3)
	for k, v := range params {
		if unsignedParams[k] {
			continue
		}
		if err := checkParam(k, v); err != nil {
			return nil, err
		}
		signed[k] = v
	}
	if signed[ParamFolder] == "" {
		signed[ParamFolder] = s.cfg.Folder
		if signed[ParamFolder] == "" {
			signed[ParamFolder] = defaultFolder
		}
	}
	if signed[ParamResourceType] == "" {
		signed[ParamResourceType] = defaultResourceType
	}
	ts := s.now().Unix()
	signed[ParamTimestamp] = strconv.FormatInt(ts, 10)

	sig, err := digest(s.algorithm(), StringToSign(signed), s.cfg.APISecret)
	if err != nil {
		return nil, err
	}

	for k, v := range signed {
		if v == "" {
			delete(signed, k)
		}
	}
	cred := &Credential{
		CloudName:          s.cfg.CloudName,
		APIKey:             s.cfg.APIKey,
		Timestamp:          ts,
		Signature:          sig,
		SignatureAlgorithm: s.algorithm(),
		Folder:             signed[ParamFolder],
		ResourceType:       signed[ParamResourceType],
		UploadURL:          fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/%s/upload", s.cfg.CloudName, signed[ParamResourceType]),
		Params:             signed,
	}
	if v := signed[ParamPublicID]; v != "" {
		cred.PublicID = &v
	}
	return cred, nil
}

// Verify reports whether signature matches params (which must include the timestamp).
func (s *Signer) Verify(params map[string]string, signature string) bool {
	if s.checkConfig() != nil {
		return false
	}
	filtered := make(map[string]string, len(params))
	for k, v := range params {
		if !unsignedParams[k] {
			filtered[k] = v
		}
	}
	want, err := digest(s.algorithm(), StringToSign(filtered), s.cfg.APISecret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(signature)) == 1
}

// StringToSign joins the non-empty params as key=value pairs sorted by key.
func StringToSign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

func digest(algorithm, toSign, secret string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	h.Write([]byte(toSign))
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case AlgorithmSHA1:
		return sha1.New(), nil
	case AlgorithmSHA256:
		return sha256.New(), nil
	default:
		return nil, apperr.Configuration("unsupported signature algorithm %q", algorithm)
	}
}

// checkParam rejects keys and values that would make two different parameter
// sets canonicalize to the same string.
func checkParam(k, v string) error {
	if k == "" {
		return apperr.Validation("parameter name must not be empty")
	}
	if strings.ContainsAny(k, "&=") {
		return apperr.Validation("parameter name %q contains a reserved character", k)
	}
	if strings.Contains(v, "&") {
		return apperr.Validation("parameter %s contains a reserved character", k)
	}
	return nil
}
