// Package storage uploads transformation results to Supabase Storage and
// builds their public URLs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Object is a stored file.
type Object struct {
	Key       string
	PublicURL string
	Size      int64
}

// Config configures the Supabase Storage client.
type Config struct {
	URL        string // project URL, e.g. https://xyz.supabase.co
	ServiceKey string
	Bucket     string
	Retries    uint64
	HTTPClient *http.Client
}

// Supabase talks to the Storage REST API.
type Supabase struct {
	hc      *http.Client
	base    string
	key     string
	bucket  string
	retries uint64
}

// NewSupabase constructs the client.
func NewSupabase(cfg Config) *Supabase {
	s := &Supabase{
		hc:      cfg.HTTPClient,
		base:    strings.TrimRight(cfg.URL, "/"),
		key:     cfg.ServiceKey,
		bucket:  cfg.Bucket,
		retries: cfg.Retries,
	}
	if s.hc == nil {
		s.hc = &http.Client{Timeout: 60 * time.Second}
	}
	return s
}

// ObjectKey builds the storage key of a user's file.
func ObjectKey(folder, userID, filename string) string {
	return path.Join(folder, userID, filename)
}

// PublicURL returns the public URL of key.
func (s *Supabase) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.base, s.bucket, escapePath(key))
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("storage returned status %d: %s", e.code, e.body)
}

// Upload stores data under folder/userID/filename, overwriting an existing
// object. Network errors and 5xx responses are retried.
func (s *Supabase) Upload(ctx context.Context, data []byte, userID, filename, mime, folder string) (Object, error) {
	key := ObjectKey(folder, userID, filename)
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.base, s.bucket, escapePath(key))

	b := retry.WithMaxRetries(s.retries, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.key)
		req.Header.Set("apikey", s.key)
		req.Header.Set("Content-Type", mime)
		req.Header.Set("x-upsert", "true")

		resp, err := s.hc.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 == 2 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		serr := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(serr)
		}
		return serr
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Object{Key: key, PublicURL: s.PublicURL(key), Size: int64(len(data))}, nil
}

// KeyFromURL extracts the storage key from an image URL: its path without the
// leading slash.
func KeyFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", errors.New("url has no path")
	}
	return key, nil
}

func escapePath(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
