// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/footprint-prints/footprint/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TransformationRepository is the transformations ledger: audit trail, cost
// accounting and the durable result cache.
type TransformationRepository interface {
	// Create inserts a new row in status pending.
	Create(ctx context.Context, in model.NewTransformation) (*model.Transformation, error)
	// Start moves a row to processing.
	Start(ctx context.Context, id uuid.UUID) error
	// Complete stores the result key and metrics and stamps completed_at.
	Complete(ctx context.Context, id uuid.UUID, p model.CompleteParams) error
	// Fail stores the error and timing and stamps completed_at.
	Fail(ctx context.Context, id uuid.UUID, p model.FailParams) error
	// Get loads a row by id; errs.ErrNotFound when it does not exist.
	Get(ctx context.Context, id uuid.UUID) (*model.Transformation, error)
	// ListByUser returns the newest rows of a user first.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Transformation, error)
	// UserCost sums a user's spend in [from, to).
	UserCost(ctx context.Context, userID string, from, to time.Time) (model.UserCost, error)
	// Stats aggregates all rows in [from, to).
	Stats(ctx context.Context, from, to time.Time) (model.TransformationStats, error)
	// FindCompleted returns the newest completed row for (originalKey, style).
	// Any failure is reported as a miss.
	FindCompleted(ctx context.Context, originalKey, style string) *model.Transformation
}
