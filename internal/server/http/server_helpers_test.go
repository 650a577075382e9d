package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/footprint-prints/footprint/internal/errs"
	"github.com/footprint-prints/footprint/internal/model"
	"github.com/footprint-prints/footprint/internal/order"
	"github.com/footprint-prints/footprint/internal/service"
)

const testSecret = "test-secret"

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

/************ fakes ************/
type fakeTransform struct {
	last service.TransformRequest
	res  *service.TransformResult
	err  error
}

func (f *fakeTransform) Transform(_ context.Context, req service.TransformRequest) (*service.TransformResult, error) {
	f.last = req
	return f.res, f.err
}

type fakeLedger struct {
	rows      map[string]model.Transformation
	lastLimit int
	lastUser  string
	from, to  time.Time
}

func (f *fakeLedger) Get(_ context.Context, caller service.Principal, id string) (*model.Transformation, error) {
	if _, err := uuid.FromString(id); err != nil {
		return nil, errs.WithCode(errs.ErrInvalidInput, "INVALID_ID", "invalid transformation id")
	}
	t, ok := f.rows[id]
	if !ok || (!caller.IsAdmin() && t.UserID != caller.UserID) {
		return nil, errs.ErrNotFound
	}
	return &t, nil
}

func (f *fakeLedger) List(_ context.Context, caller service.Principal, limit int) ([]model.Transformation, error) {
	f.lastLimit, f.lastUser = limit, caller.UserID
	var out []model.Transformation
	for _, t := range f.rows {
		if t.UserID == caller.UserID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLedger) UserCost(_ context.Context, userID string, from, to time.Time) (model.UserCost, error) {
	f.lastUser, f.from, f.to = userID, from, to
	return model.UserCost{UserID: userID, TotalCost: 0.12, TotalTokens: 300, Transformations: 3}, nil
}

func (f *fakeLedger) Stats(_ context.Context, from, to time.Time) (model.TransformationStats, error) {
	f.from, f.to = from, to
	return model.TransformationStats{Total: 4, Completed: 3, Failed: 1, ByStyle: map[string]int{"pop_art": 4}}, nil
}

func (f *fakeLedger) Window(from, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = fixedNow
	}
	if from.IsZero() {
		from = to.Add(-service.DefaultReportWindow)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errs.WithCode(errs.ErrInvalidInput, "INVALID_RANGE", "from must be before to")
	}
	return from, to, nil
}

/************ harness ************/
type testEnv struct {
	srv    *httptest.Server
	auth   *service.AuthServiceImpl
	tr     *fakeTransform
	ledger *fakeLedger
	drafts *order.MemoryPersister
	health HealthFunc
}

func startServer(t *testing.T, mod func(*Deps)) *testEnv {
	t.Helper()
	env := &testEnv{
		auth:   service.NewAuthService([]byte(testSecret)),
		tr:     &fakeTransform{},
		ledger: &fakeLedger{rows: map[string]model.Transformation{}},
		drafts: order.NewMemoryPersister(),
	}
	d := Deps{
		Auth:      env.auth,
		Transform: env.tr,
		Ledger:    env.ledger,
		Drafts:    env.drafts,
		Log:       zaptest.NewLogger(t),
	}
	if mod != nil {
		mod(&d)
	}
	env.srv = httptest.NewServer(New(d).Routes())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, _, err := e.auth.Issue(userID, role, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

type call struct {
	method string
	path   string
	body   any
	token  string
	header map[string]string
}

func (e *testEnv) do(t *testing.T, c call) (int, []byte) {
	t.Helper()
	var rd io.Reader
	switch b := c.body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(c.method, e.srv.URL+c.path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp.StatusCode, out
}

func decodeInto[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return v
}

var errBoom = errors.New("boom")
