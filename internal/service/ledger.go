package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/footprint-prints/footprint/internal/errs"
	"github.com/footprint-prints/footprint/internal/model"
	"github.com/footprint-prints/footprint/internal/repository"
)

// DefaultReportWindow is used when a report range has no start.
const DefaultReportWindow = 30 * 24 * time.Hour

// LedgerService exposes the transformations ledger to callers.
type LedgerService interface {
	// Get returns a transformation owned by caller; admins see every row.
	// Anonymous callers share one user id, so they own nothing.
	Get(ctx context.Context, caller Principal, id string) (*model.Transformation, error)
	// List returns caller's newest transformations; empty for anonymous callers.
	List(ctx context.Context, caller Principal, limit int) ([]model.Transformation, error)
	// UserCost sums a user's spend in [from, to).
	UserCost(ctx context.Context, userID string, from, to time.Time) (model.UserCost, error)
	// Stats aggregates all transformations in [from, to).
	Stats(ctx context.Context, from, to time.Time) (model.TransformationStats, error)
	// Window resolves an open report range the way UserCost and Stats do.
	Window(from, to time.Time) (time.Time, time.Time, error)
}

type LedgerServiceImpl struct {
	repo repository.TransformationRepository
	now  func() time.Time
}

// NewLedgerService constructs LedgerService.
func NewLedgerService(repo repository.TransformationRepository) *LedgerServiceImpl {
	return &LedgerServiceImpl{repo: repo, now: time.Now}
}

func (s *LedgerServiceImpl) Get(ctx context.Context, caller Principal, id string) (*model.Transformation, error) {
	tid, err := uuid.FromString(id)
	if err != nil {
		return nil, errs.WithCode(errs.ErrInvalidInput, "INVALID_ID", "invalid transformation id")
	}
	if caller.IsAnonymous() {
		return nil, errs.ErrNotFound
	}
	t, err := s.repo.Get(ctx, tid)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && t.UserID != caller.UserID {
		return nil, errs.ErrNotFound
	}
	return t, nil
}

func (s *LedgerServiceImpl) List(ctx context.Context, caller Principal, limit int) ([]model.Transformation, error) {
	if caller.IsAnonymous() {
		return []model.Transformation{}, nil
	}
	return s.repo.ListByUser(ctx, caller.UserID, limit)
}

func (s *LedgerServiceImpl) UserCost(ctx context.Context, userID string, from, to time.Time) (model.UserCost, error) {
	if userID == "" {
		return model.UserCost{}, errs.WithCode(errs.ErrInvalidInput, "MISSING_FIELD", "user id is required")
	}
	from, to, err := s.Window(from, to)
	if err != nil {
		return model.UserCost{}, err
	}
	return s.repo.UserCost(ctx, userID, from, to)
}

func (s *LedgerServiceImpl) Stats(ctx context.Context, from, to time.Time) (model.TransformationStats, error) {
	from, to, err := s.Window(from, to)
	if err != nil {
		return model.TransformationStats{}, err
	}
	return s.repo.Stats(ctx, from, to)
}

// Window fills an open range: to defaults to now, from to DefaultReportWindow before to.
func (s *LedgerServiceImpl) Window(from, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-DefaultReportWindow)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errs.WithCode(errs.ErrInvalidInput, "INVALID_RANGE", "from must be before to")
	}
	return from, to, nil
}
