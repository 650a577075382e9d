// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// TransformationStatus is the lifecycle state of a single AI invocation.
type TransformationStatus string

const (
	StatusPending    TransformationStatus = "pending"
	StatusProcessing TransformationStatus = "processing"
	StatusCompleted  TransformationStatus = "completed"
	StatusFailed     TransformationStatus = "failed"
)

// Provider names accepted by the transform endpoint.
const (
	ProviderNanoBanana = "nano-banana"
	ProviderReplicate  = "replicate"
)

// AnonymousUserID is used for callers without a verified session.
const AnonymousUserID = "anonymous"

// Transformation is one row of the transformations ledger.
type Transformation struct {
	ID                  uuid.UUID
	UserID              string
	OriginalImageKey    string
	TransformedImageKey *string
	Style               string
	Provider            string
	Status              TransformationStatus
	TokensUsed          *int64
	EstimatedCost       *float64 // USD
	ProcessingTimeMs    *int64
	ErrorMessage        *string
	CreatedAt           time.Time
	CompletedAt         *time.Time
}

// NewTransformation is the insert intent; status is always forced to pending.
type NewTransformation struct {
	UserID           string
	OriginalImageKey string
	Style            string
	Provider         string
}

// CompleteParams carries the terminal success metrics.
type CompleteParams struct {
	TransformedImageKey string
	TokensUsed          *int64
	EstimatedCost       *float64
	ProcessingTimeMs    int64
}

// FailParams carries the terminal failure details.
type FailParams struct {
	ErrorMessage     string
	ProcessingTimeMs int64
}

// UserCost aggregates spend for one user over a date range.
type UserCost struct {
	UserID          string
	TotalCost       float64
	TotalTokens     int64
	Transformations int
}

// TransformationStats aggregates the ledger over a date range.
type TransformationStats struct {
	Total               int
	Completed           int
	Failed              int
	Pending             int // pending + processing
	TotalCost           float64
	TotalTokens         int64
	AvgProcessingTimeMs float64 // over rows with timing
	ByStyle             map[string]int
	ByProvider          map[string]int
}
