package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/footprint-prints/footprint/internal/errs"
	"github.com/footprint-prints/footprint/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var rowCols = []string{
	"id", "user_id", "original_image_key", "transformed_image_key", "style", "provider", "status",
	"tokens_used", "estimated_cost", "processing_time_ms", "error_message", "created_at", "completed_at",
}

func strp(s string) *string        { return &s }
func i64p(v int64) *int64          { return &v }
func f64p(v float64) *float64      { return &v }
func timep(v time.Time) *time.Time { return &v }

func completedRow(id uuid.UUID, created time.Time) []any {
	return []any{
		id, "u1", "uploads/u1/a.jpg", strp("transformed/u1/a-pop.png"), "pop_art", model.ProviderNanoBanana,
		model.StatusCompleted, i64p(1290), f64p(0.039), i64p(5400), (*string)(nil), created, timep(created.Add(6 * time.Second)),
	}
}

func TestTransformationRepo_Create_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTransformationRepo(db, zaptest.NewLogger(t))

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO transformations \(id, user_id, original_image_key, style, provider, status\)`).
		WithArgs(pgxmock.AnyArg(), "u1", "uploads/u1/a.jpg", "pop_art", model.ProviderNanoBanana).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	got, err := r.Create(context.Background(), model.NewTransformation{
		UserID: "u1", OriginalImageKey: "uploads/u1/a.jpg", Style: "pop_art", Provider: model.ProviderNanoBanana,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, now, got.CreatedAt)
	assert.Nil(t, got.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransformationRepo_Create_DBError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTransformationRepo(db, nil)

	mock.ExpectQuery(`INSERT INTO transformations`).WillReturnError(errors.New("db down"))

	_, err := r.Create(context.Background(), model.NewTransformation{UserID: "u1"})
	require.Error(t, err)
}

func TestTransformationRepo_Lifecycle(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTransformationRepo(db, nil)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE transformations SET status='processing' WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET status='completed', transformed_image_key=\$2`).
		WithArgs(id, "transformed/u1/a.png", i64p(10), f64p(0.04), int64(1500)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET status='failed', error_message=\$2, processing_time_ms=\$3`).
		WithArgs(id, "provider timeout", int64(90000)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, r.Start(ctx, id))
	require.NoError(t, r.Complete(ctx, id, model.CompleteParams{
		TransformedImageKey: "transformed/u1/a.png",
		TokensUsed:          i64p(10),
		EstimatedCost:       f64p(0.04),
		ProcessingTimeMs:    1500,
	}))
	require.NoError(t, r.Fail(ctx, id, model.FailParams{ErrorMessage: "provider timeout", ProcessingTimeMs: 90000}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransformationRepo_Start_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTransformationRepo(db, nil)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE transformations SET status='processing'`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := r.Start(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTransformationRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTransformationRepo(db, nil)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	created := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM transformations WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(rowCols).AddRow(completedRow(id, created)...))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.TransformedImageKey)
	assert.Equal(t, "transformed/u1/a-pop.png", *got.TransformedImageKey)
	assert.Nil(t, got.ErrorMessage)

	mock.ExpectQuery(`FROM transformations WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`FROM transformations WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(errors.New("conn reset"))
	_, err = r.Get(ctx, id)
	require.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrNotFound))
}

func TestTransformationRepo_ListByUser_Limits(t *testing.T) {
	cases := []struct {
		name string
		in   int
		want int
	}{
		{"default", 0, DefaultListLimit},
		{"negative", -5, DefaultListLimit},
		{"custom", 7, 7},
		{"capped", 1000, MaxListLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newDB(t)
			defer mock.Close()
			r := NewTransformationRepo(db, nil)
			id := uuid.Must(uuid.NewV4())

			mock.ExpectQuery(`WHERE user_id=\$1\s+ORDER BY created_at DESC\s+LIMIT \$2`).
				WithArgs("u1", tc.want).
				WillReturnRows(pgxmock.NewRows(rowCols).AddRow(completedRow(id, time.Now().UTC())...))

			out, err := r.ListByUser(context.Background(), "u1", tc.in)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, id, out[0].ID)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransformationRepo_UserCost(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTransformationRepo(db, nil)
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery(`SELECT estimated_cost, tokens_used\s+FROM transformations\s+WHERE user_id=\$1`).
		WithArgs("u1", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"estimated_cost", "tokens_used"}).
			AddRow(f64p(0.1), i64p(100)).
			AddRow(f64p(0.2), i64p(50)).
			AddRow((*float64)(nil), (*int64)(nil)))

	got, err := r.UserCost(context.Background(), "u1", from, to)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 3, got.Transformations)
	assert.Equal(t, int64(150), got.TotalTokens)
	assert.Equal(t, 0.3, got.TotalCost)
}

func TestTransformationRepo_Stats(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTransformationRepo(db, nil)
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	mock.ExpectQuery(`SELECT style, provider, status, tokens_used, estimated_cost, processing_time_ms`).
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"style", "provider", "status", "tokens_used", "estimated_cost", "processing_time_ms"}).
			AddRow("pop_art", model.ProviderNanoBanana, model.StatusCompleted, i64p(1000), f64p(0.04), i64p(4000)).
			AddRow("pop_art", model.ProviderReplicate, model.StatusFailed, (*int64)(nil), (*float64)(nil), i64p(2000)).
			AddRow("watercolor", model.ProviderNanoBanana, model.StatusProcessing, (*int64)(nil), (*float64)(nil), (*int64)(nil)))

	st, err := r.Stats(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, int64(1000), st.TotalTokens)
	assert.Equal(t, 0.04, st.TotalCost)
	assert.Equal(t, 3000.0, st.AvgProcessingTimeMs)
	assert.Equal(t, map[string]int{"pop_art": 2, "watercolor": 1}, st.ByStyle)
	assert.Equal(t, map[string]int{model.ProviderNanoBanana: 2, model.ProviderReplicate: 1}, st.ByProvider)
}

func TestTransformationRepo_FindCompleted(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTransformationRepo(db, zaptest.NewLogger(t))
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`WHERE original_image_key=\$1 AND style=\$2 AND status='completed'`).
		WithArgs("uploads/u1/a.jpg", "pop_art").
		WillReturnRows(pgxmock.NewRows(rowCols).AddRow(completedRow(id, time.Now().UTC())...))
	got := r.FindCompleted(ctx, "uploads/u1/a.jpg", "pop_art")
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)

	mock.ExpectQuery(`WHERE original_image_key=\$1`).
		WithArgs("uploads/u1/b.jpg", "pop_art").
		WillReturnError(pgx.ErrNoRows)
	assert.Nil(t, r.FindCompleted(ctx, "uploads/u1/b.jpg", "pop_art"))

	mock.ExpectQuery(`WHERE original_image_key=\$1`).
		WithArgs("uploads/u1/c.jpg", "pop_art").
		WillReturnError(errors.New("timeout"))
	assert.Nil(t, r.FindCompleted(ctx, "uploads/u1/c.jpg", "pop_art"))
	require.NoError(t, mock.ExpectationsWereMet())
}
