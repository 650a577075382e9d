package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/footprint-prints/footprint/internal/errs"
	"github.com/footprint-prints/footprint/internal/model"
)

// List limits for ListByUser.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

const transformationCols = `id, user_id, original_image_key, transformed_image_key, style, provider, status,
tokens_used, estimated_cost, processing_time_ms, error_message, created_at, completed_at`

// TransformationRepo implements TransformationRepository using PostgreSQL.
type TransformationRepo struct {
	db  *DB
	log *zap.Logger
}

// NewTransformationRepo constructs a transformations ledger.
func NewTransformationRepo(db *DB, log *zap.Logger) *TransformationRepo {
	if log == nil {
		log = zap.NewNop()
	}
	return &TransformationRepo{db: db, log: log}
}

// Create inserts a pending row with a fresh id.
func (r *TransformationRepo) Create(ctx context.Context, in model.NewTransformation) (*model.Transformation, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO transformations (id, user_id, original_image_key, style, provider, status)
VALUES ($1,$2,$3,$4,$5,'pending')
RETURNING created_at`
	t := model.Transformation{
		ID:               id,
		UserID:           in.UserID,
		OriginalImageKey: in.OriginalImageKey,
		Style:            in.Style,
		Provider:         in.Provider,
		Status:           model.StatusPending,
	}
	if err := r.db.Pool.QueryRow(ctx, q, id, in.UserID, in.OriginalImageKey, in.Style, in.Provider).Scan(&t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Start moves a row to processing.
func (r *TransformationRepo) Start(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE transformations SET status='processing' WHERE id=$1`
	return r.execOne(ctx, q, id)
}

// Complete marks a row completed with its result key and metrics.
func (r *TransformationRepo) Complete(ctx context.Context, id uuid.UUID, p model.CompleteParams) error {
	const q = `
UPDATE transformations
SET status='completed', transformed_image_key=$2, tokens_used=$3, estimated_cost=$4,
    processing_time_ms=$5, completed_at=now()
WHERE id=$1`
	return r.execOne(ctx, q, id, p.TransformedImageKey, p.TokensUsed, p.EstimatedCost, p.ProcessingTimeMs)
}

// Fail marks a row failed with the error and elapsed time.
func (r *TransformationRepo) Fail(ctx context.Context, id uuid.UUID, p model.FailParams) error {
	const q = `
UPDATE transformations
SET status='failed', error_message=$2, processing_time_ms=$3, completed_at=now()
WHERE id=$1`
	return r.execOne(ctx, q, id, p.ErrorMessage, p.ProcessingTimeMs)
}

func (r *TransformationRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Get loads a row by id. Missing rows map to errs.ErrNotFound; other errors propagate.
func (r *TransformationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Transformation, error) {
	q := `SELECT ` + transformationCols + ` FROM transformations WHERE id=$1`
	t, err := scanTransformation(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListByUser returns up to limit rows of a user, newest first.
func (r *TransformationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Transformation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	q := `SELECT ` + transformationCols + `
FROM transformations
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Transformation, 0, limit)
	for rows.Next() {
		t, err := scanTransformation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UserCost sums cost and tokens for a user in [from, to).
func (r *TransformationRepo) UserCost(ctx context.Context, userID string, from, to time.Time) (model.UserCost, error) {
	const q = `
SELECT estimated_cost, tokens_used
FROM transformations
WHERE user_id=$1 AND created_at >= $2 AND created_at < $3`
	rows, err := r.db.Pool.Query(ctx, q, userID, from, to)
	if err != nil {
		return model.UserCost{}, err
	}
	defer rows.Close()

	out := model.UserCost{UserID: userID}
	total := decimal.Zero
	for rows.Next() {
		var (
			cost   *float64
			tokens *int64
		)
		if err := rows.Scan(&cost, &tokens); err != nil {
			return model.UserCost{}, err
		}
		out.Transformations++
		if cost != nil {
			total = total.Add(decimal.NewFromFloat(*cost))
		}
		if tokens != nil {
			out.TotalTokens += *tokens
		}
	}
	if err := rows.Err(); err != nil {
		return model.UserCost{}, err
	}
	out.TotalCost = total.Round(6).InexactFloat64()
	return out, nil
}

// Stats aggregates every row created in [from, to).
func (r *TransformationRepo) Stats(ctx context.Context, from, to time.Time) (model.TransformationStats, error) {
	const q = `
SELECT style, provider, status, tokens_used, estimated_cost, processing_time_ms
FROM transformations
WHERE created_at >= $1 AND created_at < $2`
	rows, err := r.db.Pool.Query(ctx, q, from, to)
	if err != nil {
		return model.TransformationStats{}, err
	}
	defer rows.Close()

	st := model.TransformationStats{ByStyle: map[string]int{}, ByProvider: map[string]int{}}
	cost := decimal.Zero
	var timed, timeSum int64
	for rows.Next() {
		var (
			style, provider string
			status          model.TransformationStatus
			tokens          *int64
			c               *float64
			ms              *int64
		)
		if err := rows.Scan(&style, &provider, &status, &tokens, &c, &ms); err != nil {
			return model.TransformationStats{}, err
		}
		st.Total++
		st.ByStyle[style]++
		st.ByProvider[provider]++
		switch status {
		case model.StatusCompleted:
			st.Completed++
		case model.StatusFailed:
			st.Failed++
		default:
			st.Pending++
		}
		if tokens != nil {
			st.TotalTokens += *tokens
		}
		if c != nil {
			cost = cost.Add(decimal.NewFromFloat(*c))
		}
		if ms != nil {
			timed++
			timeSum += *ms
		}
	}
	if err := rows.Err(); err != nil {
		return model.TransformationStats{}, err
	}
	st.TotalCost = cost.Round(6).InexactFloat64()
	if timed > 0 {
		st.AvgProcessingTimeMs = float64(timeSum) / float64(timed)
	}
	return st, nil
}

// FindCompleted is the durable cache lookup. It never fails: errors, including
// a missing row, are reported as a miss.
func (r *TransformationRepo) FindCompleted(ctx context.Context, originalKey, style string) *model.Transformation {
	q := `SELECT ` + transformationCols + `
FROM transformations
WHERE original_image_key=$1 AND style=$2 AND status='completed' AND transformed_image_key IS NOT NULL
ORDER BY created_at DESC
LIMIT 1`
	t, err := scanTransformation(r.db.Pool.QueryRow(ctx, q, originalKey, style))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.log.Warn("durable cache lookup failed",
				zap.String("key", originalKey),
				zap.String("style", style),
				zap.Error(err),
			)
		}
		return nil
	}
	return t
}

func scanTransformation(row pgx.Row) (*model.Transformation, error) {
	var t model.Transformation
	err := row.Scan(
		&t.ID, &t.UserID, &t.OriginalImageKey, &t.TransformedImageKey, &t.Style, &t.Provider, &t.Status,
		&t.TokensUsed, &t.EstimatedCost, &t.ProcessingTimeMs, &t.ErrorMessage, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
