// Package service contains application services for image transformation and
// ledger reporting.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/footprint-prints/footprint/internal/cache"
	"github.com/footprint-prints/footprint/internal/errs"
	"github.com/footprint-prints/footprint/internal/limiter"
	"github.com/footprint-prints/footprint/internal/model"
	"github.com/footprint-prints/footprint/internal/provider"
	"github.com/footprint-prints/footprint/internal/repository"
	"github.com/footprint-prints/footprint/internal/storage"
	"github.com/footprint-prints/footprint/internal/styles"
)

// Defaults for TransformConfig.
const (
	DefaultProviderTimeout = 90 * time.Second
	DefaultFetchTimeout    = 30 * time.Second
	DefaultDetachTimeout   = 5 * time.Second
	DefaultResultFolder    = "transformed"
)

// Error codes reported with errs.ErrInvalidInput.
const (
	CodeMissingField    = "MISSING_FIELD"
	CodeInvalidURL      = "INVALID_URL"
	CodeInvalidStyle    = "INVALID_STYLE"
	CodeInvalidProvider = "INVALID_PROVIDER"
)

// TransformRequest is one call of the transform endpoint.
type TransformRequest struct {
	UserID   string
	ImageURL string
	Style    string
	Provider string
}

// TransformResult is what the caller gets back.
type TransformResult struct {
	TransformedURL   string
	Style            string
	Provider         string
	ProcessingTimeMs int64
	Cost             *float64
	TokensUsed       *int64
	TransformationID string
	Cached           bool
}

// TransformService turns an uploaded photo into a styled image.
type TransformService interface {
	// Transform serves from cache when possible, otherwise calls the provider
	// under the user's concurrency cap.
	Transform(ctx context.Context, req TransformRequest) (*TransformResult, error)
}

// Providers dispatches a request to a named AI provider.
type Providers interface {
	Transform(ctx context.Context, name string, req provider.Request) (*provider.Result, error)
}

// Uploader stores result images.
type Uploader interface {
	Upload(ctx context.Context, data []byte, userID, filename, mime, folder string) (storage.Object, error)
	PublicURL(key string) string
}

// Fetcher downloads images by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (provider.Image, error)
}

// TransformConfig tunes timeouts and defaults; zero values use the package defaults.
type TransformConfig struct {
	ProviderTimeout time.Duration
	FetchTimeout    time.Duration
	DetachTimeout   time.Duration
	DefaultProvider string
	ResultFolder    string
}

type TransformServiceImpl struct {
	cache     cache.Cache
	ledger    repository.TransformationRepository
	lim       limiter.Limiter
	providers Providers
	store     Uploader
	fetch     Fetcher
	styles    *styles.Catalog
	cfg       TransformConfig
	log       *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time

	bg sync.WaitGroup
}

// NewTransformService constructs TransformService with required dependencies.
func NewTransformService(
	c cache.Cache,
	ledger repository.TransformationRepository,
	lim limiter.Limiter,
	providers Providers,
	store Uploader,
	fetch Fetcher,
	catalog *styles.Catalog,
	cfg TransformConfig,
	log *zap.Logger,
) *TransformServiceImpl {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.DetachTimeout <= 0 {
		cfg.DetachTimeout = DefaultDetachTimeout
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = model.ProviderNanoBanana
	}
	if cfg.ResultFolder == "" {
		cfg.ResultFolder = DefaultResultFolder
	}
	if catalog == nil {
		catalog = styles.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TransformServiceImpl{
		cache:     c,
		ledger:    ledger,
		lim:       lim,
		providers: providers,
		store:     store,
		fetch:     fetch,
		styles:    catalog,
		cfg:       cfg,
		log:       log,
		tracer:    otel.Tracer("footprint/service"),
		now:       time.Now,
	}
}

// Wait blocks until every detached side effect has finished.
func (s *TransformServiceImpl) Wait() { s.bg.Wait() }

// Transform runs validation, the two cache tiers, admission control and the
// provider call, in that order.
func (s *TransformServiceImpl) Transform(ctx context.Context, req TransformRequest) (*TransformResult, error) {
	ctx, span := s.tracer.Start(ctx, "Transform")
	defer span.End()

	res, err := s.transform(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("cached", res.Cached),
		attribute.String("provider", res.Provider),
	)
	return res, nil
}

func (s *TransformServiceImpl) transform(ctx context.Context, req TransformRequest) (*TransformResult, error) {
	start := s.now()
	key, err := s.validate(&req)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("user", req.UserID),
		attribute.String("style", req.Style),
	)
	log := s.log.With(zap.String("user", req.UserID), zap.String("key", key), zap.String("style", req.Style))

	if hit := s.fastCache(ctx, log, key, req.Style); hit != nil {
		return s.cachedResult(hit.URL, hit.Provider, hit.TransformationID, req.Style, start), nil
	}

	if t := s.durableCache(ctx, key, req.Style); t != nil {
		pub := s.store.PublicURL(*t.TransformedImageKey)
		entry := cache.Entry{URL: pub, Provider: t.Provider, TransformationID: t.ID.String()}
		s.detach("cache backfill", func(ctx context.Context) error {
			return s.cache.Set(ctx, key, req.Style, entry)
		})
		log.Info("durable cache hit", zap.String("id", entry.TransformationID))
		return s.cachedResult(pub, t.Provider, entry.TransformationID, req.Style, start), nil
	}

	var res *TransformResult
	err = limiter.WithSlot(ctx, s.lim, req.UserID, log, func(ctx context.Context) error {
		r, err := s.run(ctx, log, req, key, start)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *TransformServiceImpl) validate(req *TransformRequest) (string, error) {
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	req.Style = strings.TrimSpace(req.Style)
	req.Provider = strings.TrimSpace(req.Provider)
	if req.UserID == "" {
		req.UserID = model.AnonymousUserID
	}

	if req.ImageURL == "" {
		return "", errs.WithCode(errs.ErrInvalidInput, CodeMissingField, "imageUrl is required")
	}
	if req.Style == "" {
		return "", errs.WithCode(errs.ErrInvalidInput, CodeMissingField, "style is required")
	}
	u, err := url.Parse(req.ImageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errs.WithCode(errs.ErrInvalidInput, CodeInvalidURL, "imageUrl must be an http(s) URL")
	}
	key, err := storage.KeyFromURL(req.ImageURL)
	if err != nil {
		return "", errs.WithCode(errs.ErrInvalidInput, CodeInvalidURL, "imageUrl must point to an image")
	}
	if !s.styles.Valid(req.Style) {
		return "", errs.WithCode(errs.ErrInvalidInput, CodeInvalidStyle,
			fmt.Sprintf("Invalid style. Must be one of: %s", strings.Join(s.styles.IDs(), ", ")))
	}
	if req.Provider == "" {
		req.Provider = s.cfg.DefaultProvider
	}
	if req.Provider != model.ProviderNanoBanana && req.Provider != model.ProviderReplicate {
		return "", errs.WithCode(errs.ErrInvalidInput, CodeInvalidProvider,
			fmt.Sprintf("Invalid provider. Must be one of: %s, %s", model.ProviderNanoBanana, model.ProviderReplicate))
	}
	return key, nil
}

func (s *TransformServiceImpl) fastCache(ctx context.Context, log *zap.Logger, key, style string) *cache.Entry {
	ctx, span := s.tracer.Start(ctx, "cache.Get")
	defer span.End()

	e, err := s.cache.Get(ctx, key, style)
	if err != nil {
		log.Warn("fast cache read failed", zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.Bool("hit", e != nil))
	return e
}

func (s *TransformServiceImpl) durableCache(ctx context.Context, key, style string) *model.Transformation {
	ctx, span := s.tracer.Start(ctx, "ledger.FindCompleted")
	defer span.End()

	t := s.ledger.FindCompleted(ctx, key, style)
	if t == nil || t.TransformedImageKey == nil || *t.TransformedImageKey == "" {
		return nil
	}
	return t
}

func (s *TransformServiceImpl) cachedResult(pub, prov, id, style string, start time.Time) *TransformResult {
	zero := 0.0
	return &TransformResult{
		TransformedURL:   pub,
		Style:            style,
		Provider:         prov,
		ProcessingTimeMs: s.now().Sub(start).Milliseconds(),
		Cost:             &zero,
		TransformationID: id,
		Cached:           true,
	}
}

// run is the slow path; it executes while holding a concurrency slot.
func (s *TransformServiceImpl) run(ctx context.Context, log *zap.Logger, req TransformRequest, key string, start time.Time) (*TransformResult, error) {
	t, err := s.ledger.Create(ctx, model.NewTransformation{
		UserID:           req.UserID,
		OriginalImageKey: key,
		Style:            req.Style,
		Provider:         req.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("create transformation: %w", err)
	}
	log = log.With(zap.String("id", t.ID.String()))

	if err := s.ledger.Start(ctx, t.ID); err != nil {
		log.Warn("mark transformation processing", zap.Error(err))
	}

	style, _ := s.styles.Get(req.Style)
	out, err := s.callProvider(ctx, req.Provider, provider.Request{
		ImageURL:   req.ImageURL,
		Prompt:     style.Prompt,
		References: s.references(ctx, log, style),
	})
	if err != nil {
		log.Error("provider call failed", zap.String("provider", req.Provider), zap.Error(err))
		s.fail(ctx, log, t.ID, err.Error(), start)
		return nil, errs.WithCode(errs.ErrTransformFailed, "TRANSFORM_FAILED", "Failed to transform image")
	}

	img, err := s.resultImage(ctx, out)
	if err != nil {
		log.Error("provider result unusable", zap.Error(err))
		s.fail(ctx, log, t.ID, err.Error(), start)
		return nil, errs.WithCode(errs.ErrTransformFailed, "TRANSFORM_FAILED", "Failed to transform image")
	}

	obj, err := s.upload(ctx, img, req.UserID, t.ID.String())
	if err != nil {
		log.Error("upload failed", zap.Error(err))
		s.fail(ctx, log, t.ID, "UPLOAD_FAILED: "+err.Error(), start)
		return nil, errs.WithCode(errs.ErrUploadFailed, "UPLOAD_FAILED", "Failed to save transformed image")
	}

	elapsed := s.now().Sub(start).Milliseconds()
	if err := s.ledger.Complete(ctx, t.ID, model.CompleteParams{
		TransformedImageKey: obj.Key,
		TokensUsed:          out.TokensUsed,
		EstimatedCost:       out.EstimatedCost,
		ProcessingTimeMs:    elapsed,
	}); err != nil {
		return nil, fmt.Errorf("complete transformation: %w", err)
	}

	prov := out.Provider
	if prov == "" {
		prov = req.Provider
	}
	entry := cache.Entry{URL: obj.PublicURL, Provider: prov, TransformationID: t.ID.String()}
	s.detach("cache write", func(ctx context.Context) error {
		return s.cache.Set(ctx, key, req.Style, entry)
	})

	log.Info("transformation completed", zap.String("provider", prov), zap.Int64("ms", elapsed))
	return &TransformResult{
		TransformedURL:   obj.PublicURL,
		Style:            req.Style,
		Provider:         prov,
		ProcessingTimeMs: elapsed,
		Cost:             out.EstimatedCost,
		TokensUsed:       out.TokensUsed,
		TransformationID: t.ID.String(),
	}, nil
}

func (s *TransformServiceImpl) callProvider(ctx context.Context, name string, req provider.Request) (*provider.Result, error) {
	ctx, span := s.tracer.Start(ctx, "provider.Transform", trace.WithAttributes(attribute.String("provider", name)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	out, err := s.providers.Transform(ctx, name, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// references loads the style's reference images; failures only shrink the list.
func (s *TransformServiceImpl) references(ctx context.Context, log *zap.Logger, st styles.Style) []provider.Image {
	var out []provider.Image
	for _, ref := range st.References {
		fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		img, err := s.fetch.Fetch(fctx, ref)
		cancel()
		if err != nil {
			log.Warn("reference image skipped", zap.String("url", ref), zap.Error(err))
			continue
		}
		out = append(out, img)
	}
	return out
}

func (s *TransformServiceImpl) resultImage(ctx context.Context, out *provider.Result) (provider.Image, error) {
	switch {
	case out.ImageBase64 != "":
		data, err := base64.StdEncoding.DecodeString(out.ImageBase64)
		if err != nil {
			return provider.Image{}, fmt.Errorf("decode provider image: %w", err)
		}
		return provider.Image{Data: data, MimeType: out.MimeType}, nil
	case out.ImageURL != "":
		fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
		img, err := s.fetch.Fetch(fctx, out.ImageURL)
		if err != nil {
			return provider.Image{}, fmt.Errorf("fetch provider image: %w", err)
		}
		if out.MimeType != "" {
			img.MimeType = out.MimeType
		}
		return img, nil
	default:
		return provider.Image{}, errors.New("provider returned no image")
	}
}

func (s *TransformServiceImpl) upload(ctx context.Context, img provider.Image, userID, id string) (storage.Object, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Upload")
	defer span.End()

	mime := img.MimeType
	if mime == "" {
		mime = "image/png"
	}
	obj, err := s.store.Upload(ctx, img.Data, userID, id+extension(mime), mime, s.cfg.ResultFolder)
	if err != nil {
		span.RecordError(err)
	}
	return obj, err
}

func extension(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
