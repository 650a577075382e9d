// Package httpserver exposes the Footprint HTTP API handlers.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/footprint-prints/footprint/internal/convert"
	"github.com/footprint-prints/footprint/internal/delivery"
	"github.com/footprint-prints/footprint/internal/errs"
	"github.com/footprint-prints/footprint/internal/order"
	"github.com/footprint-prints/footprint/internal/pricing"
	"github.com/footprint-prints/footprint/internal/service"
	"github.com/footprint-prints/footprint/internal/styles"
)

const maxBodyBytes = 1 << 20

// HealthFunc reports the mode of each backing component ("postgres", "memory", ...).
type HealthFunc func(ctx context.Context) (map[string]string, error)

// Deps are the collaborators behind the handlers. Optional ones fall back to
// the package defaults.
type Deps struct {
	Auth      service.AuthService
	Transform service.TransformService
	Ledger    service.LedgerService
	Discounts *pricing.Engine
	Styles    *styles.Catalog
	Drafts    order.Persister
	Calendar  *delivery.Calendar
	Health    HealthFunc
	Log       *zap.Logger
}

// Server wires services into HTTP handlers.
type Server struct {
	auth      service.AuthService
	transform service.TransformService
	ledger    service.LedgerService
	discounts *pricing.Engine
	styles    *styles.Catalog
	drafts    order.Persister
	calendar  *delivery.Calendar
	health    HealthFunc
	log       *zap.Logger
}

// New constructs a server with injected services.
func New(d Deps) *Server {
	s := &Server{
		auth:      d.Auth,
		transform: d.Transform,
		ledger:    d.Ledger,
		discounts: d.Discounts,
		styles:    d.Styles,
		drafts:    d.Drafts,
		calendar:  d.Calendar,
		health:    d.Health,
		log:       d.Log,
	}
	if s.discounts == nil {
		s.discounts = pricing.DefaultEngine()
	}
	if s.styles == nil {
		s.styles = styles.Default()
	}
	if s.drafts == nil {
		s.drafts = order.NewMemoryPersister()
	}
	if s.calendar == nil {
		s.calendar = delivery.NewCalendar(nil, nil)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logging(s.log))
	r.Use(Recover(s.log))
	r.Use(Trace)

	r.Get("/healthz", s.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(s.auth, s.log))

		r.Post("/transform", s.Transform)
		r.Get("/transform", s.ListTransformations)
		r.Get("/transform/{id}", s.GetTransformation)
		r.Get("/styles", s.ListStyles)

		r.Post("/pricing/quote", s.Quote)
		r.Post("/discounts/validate", s.ValidateDiscount)
		r.Get("/shipping", s.Shipping)

		r.Get("/order/draft", s.GetDraft)
		r.Patch("/order/draft", s.PatchDraft)
		r.Delete("/order/draft", s.DeleteDraft)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/transformations/stats", s.Stats)
			r.Get("/users/{id}/cost", s.UserCost)
		})
	})
	return r
}

// --- Transform ---

// Transform runs one style transformation for the caller.
func (s *Server) Transform(w http.ResponseWriter, r *http.Request) {
	var req convert.TransformRequest
	if !decode(w, r, &req) {
		return
	}
	p, _ := PrincipalFromCtx(r.Context())
	res, err := s.transform.Transform(r.Context(), req.ToService(p.UserID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToTransformResponse(res))
}

// GetTransformation returns one ledger row visible to the caller.
func (s *Server) GetTransformation(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	t, err := s.ledger.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToTransformation(*t))
}

// ListTransformations returns the caller's newest transformations.
func (s *Server) ListTransformations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errs.WithCode(errs.ErrInvalidInput, "INVALID_LIMIT", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	p, _ := PrincipalFromCtx(r.Context())
	ts, err := s.ledger.List(r.Context(), p, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transformations": convert.ToTransformations(ts)})
}

// ListStyles returns the allowed styles.
func (s *Server) ListStyles(w http.ResponseWriter, _ *http.Request) {
	type item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	ids := s.styles.IDs()
	out := make([]item, 0, len(ids))
	for _, id := range ids {
		st, _ := s.styles.Get(id)
		out = append(out, item{ID: st.ID, Name: st.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"styles": out})
}

// --- Pricing ---

// Quote prices a full checkout selection.
func (s *Server) Quote(w http.ResponseWriter, r *http.Request) {
	var req convert.QuoteRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := convert.FromQuoteRequest(req)
	if err != nil {
		writeError(w, errs.WithCode(errs.ErrInvalidInput, "INVALID_OPTION", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, pricing.QuoteCheckout(in, s.discounts))
}

// ValidateDiscount applies a code to a subtotal. Rejections are data, not errors.
func (s *Server) ValidateDiscount(w http.ResponseWriter, r *http.Request) {
	var req convert.DiscountRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.discounts.Apply(req.Code, req.Subtotal))
}

// Shipping prices shipping for ?region=&method=.
func (s *Server) Shipping(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	region, err := pricing.ParseRegion(q.Get("region"))
	if err != nil {
		writeError(w, errs.WithCode(errs.ErrInvalidInput, "INVALID_OPTION", err.Error()))
		return
	}
	method, err := pricing.ParseMethod(q.Get("method"))
	if err != nil {
		writeError(w, errs.WithCode(errs.ErrInvalidInput, "INVALID_OPTION", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, convert.ToShipping(region, method))
}

// --- Admin ---

// Stats reports ledger aggregates for ?from=&to=.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.window(w, r)
	if !ok {
		return
	}
	st, err := s.ledger.Stats(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToStats(st, from, to))
}

// UserCost reports one user's spend for ?from=&to=.
func (s *Server) UserCost(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.window(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	c, err := s.ledger.UserCost(r.Context(), id, from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToUserCost(c, from, to))
}

func (s *Server) window(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err := convert.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, errs.WithCode(errs.ErrInvalidInput, "INVALID_RANGE", err.Error()))
		return time.Time{}, time.Time{}, false
	}
	to, err := convert.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, errs.WithCode(errs.ErrInvalidInput, "INVALID_RANGE", err.Error()))
		return time.Time{}, time.Time{}, false
	}
	from, to, err = s.ledger.Window(from, to)
	if err != nil {
		writeError(w, err)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// --- Health ---

// Healthz reports liveness and the storage modes in use.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if s.health == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	modes, err := s.health(ctx)
	for k, v := range modes {
		body[k] = v
	}
	if err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		body["status"] = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// --- errors / encoding ---

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// fail logs unexpected errors and writes the mapped response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _, _ := classify(err); status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.String("code", errs.Code(err)), zap.Error(err))
	}
	writeError(w, err)
}

// classify maps an error to status, code and the message shown to clients.
func classify(err error) (int, string, string) {
	var ce *errs.CodedError
	coded := errors.As(err, &ce)
	pick := func(status int, code, msg string) (int, string, string) {
		if coded {
			return status, ce.Code, ce.Msg
		}
		return status, code, msg
	}
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return pick(http.StatusBadRequest, "INVALID_INPUT", "Invalid request")
	case errors.Is(err, errs.ErrNotFound):
		return pick(http.StatusNotFound, "NOT_FOUND", "Not found")
	case errors.Is(err, errs.ErrUnauthorized):
		return pick(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	case errors.Is(err, errs.ErrForbidden):
		return pick(http.StatusForbidden, "FORBIDDEN", "Admin access required")
	case errors.Is(err, errs.ErrConcurrentLimit):
		return pick(http.StatusTooManyRequests, "CONCURRENT_LIMIT", "Too many concurrent transformations. Please wait for one to finish.")
	case errors.Is(err, errs.ErrTransformFailed):
		return pick(http.StatusInternalServerError, "TRANSFORM_FAILED", "Failed to transform image")
	case errors.Is(err, errs.ErrUploadFailed):
		return pick(http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to save transformed image")
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code, msg := classify(err)
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v, answering 400 INVALID_JSON on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, errs.WithCode(errs.ErrInvalidInput, "INVALID_JSON", "Invalid JSON body"))
		return false
	}
	return true
}
