package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/footprint-prints/footprint/internal/cache"
	"github.com/footprint-prints/footprint/internal/errs"
	"github.com/footprint-prints/footprint/internal/model"
	"github.com/footprint-prints/footprint/internal/provider"
	"github.com/footprint-prints/footprint/internal/repository"
	"github.com/footprint-prints/footprint/internal/storage"
)

/************ ledger ************/
type fakeLedger struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Transformation
	seq  int

	found     *model.Transformation
	createErr error
	failErr   error

	failMsgs       []string
	lastFrom       time.Time
	lastTo         time.Time
	findCalls      int
	completeCalled int
}

var _ repository.TransformationRepository = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[uuid.UUID]*model.Transformation{}}
}

func (f *fakeLedger) Create(_ context.Context, in model.NewTransformation) (*model.Transformation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	t := &model.Transformation{
		ID:               uuid.Must(uuid.NewV4()),
		UserID:           in.UserID,
		OriginalImageKey: in.OriginalImageKey,
		Style:            in.Style,
		Provider:         in.Provider,
		Status:           model.StatusPending,
		CreatedAt:        time.Unix(int64(f.seq), 0),
	}
	f.rows[t.ID] = t
	c := *t
	return &c, nil
}

func (f *fakeLedger) setStatus(id uuid.UUID, st model.TransformationStatus, fn func(*model.Transformation)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	t.Status = st
	if fn != nil {
		fn(t)
	}
	return nil
}

func (f *fakeLedger) Start(_ context.Context, id uuid.UUID) error {
	return f.setStatus(id, model.StatusProcessing, nil)
}

func (f *fakeLedger) Complete(_ context.Context, id uuid.UUID, p model.CompleteParams) error {
	f.mu.Lock()
	f.completeCalled++
	f.mu.Unlock()
	return f.setStatus(id, model.StatusCompleted, func(t *model.Transformation) {
		k := p.TransformedImageKey
		t.TransformedImageKey = &k
		t.TokensUsed = p.TokensUsed
		t.EstimatedCost = p.EstimatedCost
		ms := p.ProcessingTimeMs
		t.ProcessingTimeMs = &ms
	})
}

func (f *fakeLedger) Fail(_ context.Context, id uuid.UUID, p model.FailParams) error {
	f.mu.Lock()
	f.failMsgs = append(f.failMsgs, p.ErrorMessage)
	failErr := f.failErr
	f.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	return f.setStatus(id, model.StatusFailed, func(t *model.Transformation) {
		m := p.ErrorMessage
		t.ErrorMessage = &m
	})
}

func (f *fakeLedger) Get(_ context.Context, id uuid.UUID) (*model.Transformation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeLedger) ListByUser(_ context.Context, userID string, limit int) ([]model.Transformation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Transformation
	for _, t := range f.rows {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLedger) UserCost(_ context.Context, userID string, from, to time.Time) (model.UserCost, error) {
	f.lastFrom, f.lastTo = from, to
	return model.UserCost{UserID: userID}, nil
}

func (f *fakeLedger) Stats(_ context.Context, from, to time.Time) (model.TransformationStats, error) {
	f.lastFrom, f.lastTo = from, to
	return model.TransformationStats{}, nil
}

func (f *fakeLedger) FindCompleted(context.Context, string, string) *model.Transformation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	return f.found
}

func (f *fakeLedger) only() *model.Transformation {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		c := *t
		return &c
	}
	return nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

/************ cache ************/
type fakeCache struct {
	mu     sync.Mutex
	m      map[string]cache.Entry
	getErr error
	setErr error
	sets   int
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[string]cache.Entry{}} }

func (c *fakeCache) Get(_ context.Context, key, style string) (*cache.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	e, ok := c.m[cache.Key(key, style)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *fakeCache) Set(_ context.Context, key, style string, e cache.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.m[cache.Key(key, style)] = e
	return nil
}

func (c *fakeCache) entry(key, style string) (cache.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[cache.Key(key, style)]
	return e, ok
}

/************ providers ************/
type fakeProviders struct {
	calls atomic.Int32
	last  atomic.Pointer[provider.Request]
	fn    func(ctx context.Context, name string, req provider.Request) (*provider.Result, error)
}

func (p *fakeProviders) Transform(ctx context.Context, name string, req provider.Request) (*provider.Result, error) {
	p.calls.Add(1)
	p.last.Store(&req)
	if p.fn == nil {
		return nil, errors.New("no provider configured in test")
	}
	return p.fn(ctx, name, req)
}

/************ storage ************/
type fakeUploader struct {
	mu      sync.Mutex
	err     error
	calls   int
	folder  string
	name    string
	mime    string
	payload []byte
}

func (u *fakeUploader) Upload(_ context.Context, data []byte, userID, filename, mime, folder string) (storage.Object, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		return storage.Object{}, u.err
	}
	u.folder, u.name, u.mime, u.payload = folder, filename, mime, data
	key := storage.ObjectKey(folder, userID, filename)
	return storage.Object{Key: key, PublicURL: u.PublicURL(key), Size: int64(len(data))}, nil
}

func (u *fakeUploader) PublicURL(key string) string { return "https://cdn.test/" + key }

/************ fetcher ************/
type fakeFetcher struct {
	images map[string]provider.Image
}

func (f fakeFetcher) Fetch(_ context.Context, url string) (provider.Image, error) {
	img, ok := f.images[url]
	if !ok {
		return provider.Image{}, errors.New("404")
	}
	return img, nil
}
