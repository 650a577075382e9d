// Package provider contains clients for the AI image transformation backends.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxImageBytes caps any image downloaded by this package.
const MaxImageBytes = 20 << 20

// ErrUnknownProvider is returned by Router for a name with no configured client.
var ErrUnknownProvider = errors.New("provider not configured")

// Image is a downloaded image.
type Image struct {
	Data     []byte
	MimeType string
}

// Request describes one transformation.
type Request struct {
	ImageURL   string
	Prompt     string
	References []Image
}

// Result is a provider output: either inline base64 data or a URL to fetch.
type Result struct {
	ImageBase64   string
	ImageURL      string
	MimeType      string
	TokensUsed    *int64
	EstimatedCost *float64
	Provider      string
}

// Transformer turns a photo into a styled image.
type Transformer interface {
	Transform(ctx context.Context, req Request) (*Result, error)
}

// Router dispatches to a Transformer by provider name.
type Router struct {
	clients map[string]Transformer
}

// NewRouter builds a router; nil clients are skipped.
func NewRouter(clients map[string]Transformer) *Router {
	r := &Router{clients: make(map[string]Transformer, len(clients))}
	for name, c := range clients {
		if c != nil {
			r.clients[name] = c
		}
	}
	return r
}

// Has reports whether name is configured.
func (r *Router) Has(name string) bool {
	_, ok := r.clients[name]
	return ok
}

// Transform runs req on the named provider.
func (r *Router) Transform(ctx context.Context, name string, req Request) (*Result, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	res, err := c.Transform(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Provider == "" {
		res.Provider = name
	}
	return res, nil
}

// DefaultHTTPClient is used by clients constructed without one.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}

// Fetch downloads an image, rejecting non-2xx responses and bodies over MaxImageBytes.
func Fetch(ctx context.Context, hc *http.Client, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Image{}, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return Image{}, fmt.Errorf("image exceeds %d bytes", MaxImageBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return Image{Data: data, MimeType: mime}, nil
}

func readError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return strings.TrimSpace(string(body))
}

// HTTPFetcher downloads images with a fixed client.
type HTTPFetcher struct{ Client *http.Client }

// Fetch implements the service's image fetcher.
func (f HTTPFetcher) Fetch(ctx context.Context, url string) (Image, error) {
	hc := f.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	return Fetch(ctx, hc, url)
}
