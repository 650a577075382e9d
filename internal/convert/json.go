// Package convert maps service and domain values to the JSON shapes of the HTTP API.
package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/footprint-prints/footprint/internal/model"
	"github.com/footprint-prints/footprint/internal/order"
	"github.com/footprint-prints/footprint/internal/pricing"
	"github.com/footprint-prints/footprint/internal/service"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// --- helpers ---

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses a calendar date; empty input gives the zero time.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(DateLayout, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	return t, nil
}

// --- Transform ---

// TransformRequest is the body of POST /api/transform.
type TransformRequest struct {
	ImageURL string `json:"imageUrl"`
	Style    string `json:"style"`
	Provider string `json:"provider,omitempty"`
}

// ToService builds the service request for userID.
func (r TransformRequest) ToService(userID string) service.TransformRequest {
	return service.TransformRequest{
		UserID:   userID,
		ImageURL: r.ImageURL,
		Style:    r.Style,
		Provider: r.Provider,
	}
}

// TransformResponse is the 200 body of POST /api/transform.
type TransformResponse struct {
	TransformedURL   string   `json:"transformedUrl"`
	Style            string   `json:"style"`
	Provider         string   `json:"provider"`
	ProcessingTime   int64    `json:"processingTime"`
	Cost             *float64 `json:"cost,omitempty"`
	TokensUsed       *int64   `json:"tokensUsed,omitempty"`
	TransformationID string   `json:"transformationId"`
	Cached           bool     `json:"cached,omitempty"`
}

// ToTransformResponse converts a service result.
func ToTransformResponse(r *service.TransformResult) TransformResponse {
	if r == nil {
		return TransformResponse{}
	}
	return TransformResponse{
		TransformedURL:   r.TransformedURL,
		Style:            r.Style,
		Provider:         r.Provider,
		ProcessingTime:   r.ProcessingTimeMs,
		Cost:             r.Cost,
		TokensUsed:       r.TokensUsed,
		TransformationID: r.TransformationID,
		Cached:           r.Cached,
	}
}

// --- Ledger ---

// Transformation is one ledger row as served to clients.
type Transformation struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"userId"`
	OriginalImageKey    string     `json:"originalImageKey"`
	TransformedImageKey *string    `json:"transformedImageKey,omitempty"`
	Style               string     `json:"style"`
	Provider            string     `json:"provider"`
	Status              string     `json:"status"`
	TokensUsed          *int64     `json:"tokensUsed,omitempty"`
	EstimatedCost       *float64   `json:"estimatedCost,omitempty"`
	ProcessingTimeMs    *int64     `json:"processingTimeMs,omitempty"`
	ErrorMessage        *string    `json:"errorMessage,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

// ToTransformation converts a ledger row.
func ToTransformation(t model.Transformation) Transformation {
	return Transformation{
		ID:                  t.ID.String(),
		UserID:              t.UserID,
		OriginalImageKey:    t.OriginalImageKey,
		TransformedImageKey: t.TransformedImageKey,
		Style:               t.Style,
		Provider:            t.Provider,
		Status:              string(t.Status),
		TokensUsed:          t.TokensUsed,
		EstimatedCost:       t.EstimatedCost,
		ProcessingTimeMs:    t.ProcessingTimeMs,
		ErrorMessage:        t.ErrorMessage,
		CreatedAt:           t.CreatedAt,
		CompletedAt:         t.CompletedAt,
	}
}

// ToTransformations converts a slice of ledger rows; never returns nil.
func ToTransformations(ts []model.Transformation) []Transformation {
	out := make([]Transformation, 0, len(ts))
	for _, t := range ts {
		out = append(out, ToTransformation(t))
	}
	return out
}

// Stats is the admin ledger report.
type Stats struct {
	From                time.Time      `json:"from"`
	To                  time.Time      `json:"to"`
	Total               int            `json:"total"`
	Completed           int            `json:"completed"`
	Failed              int            `json:"failed"`
	Pending             int            `json:"pending"`
	TotalCost           float64        `json:"totalCost"`
	TotalTokens         int64          `json:"totalTokens"`
	AvgProcessingTimeMs float64        `json:"avgProcessingTimeMs"`
	ByStyle             map[string]int `json:"byStyle"`
	ByProvider          map[string]int `json:"byProvider"`
}

// ToStats converts ledger aggregates for the window [from, to).
func ToStats(s model.TransformationStats, from, to time.Time) Stats {
	out := Stats{
		From:                from,
		To:                  to,
		Total:               s.Total,
		Completed:           s.Completed,
		Failed:              s.Failed,
		Pending:             s.Pending,
		TotalCost:           s.TotalCost,
		TotalTokens:         s.TotalTokens,
		AvgProcessingTimeMs: s.AvgProcessingTimeMs,
		ByStyle:             s.ByStyle,
		ByProvider:          s.ByProvider,
	}
	if out.ByStyle == nil {
		out.ByStyle = map[string]int{}
	}
	if out.ByProvider == nil {
		out.ByProvider = map[string]int{}
	}
	return out
}

// UserCost is one user's spend report.
type UserCost struct {
	UserID          string    `json:"userId"`
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	TotalCost       float64   `json:"totalCost"`
	TotalTokens     int64     `json:"totalTokens"`
	Transformations int       `json:"transformations"`
}

// ToUserCost converts a spend aggregate.
func ToUserCost(c model.UserCost, from, to time.Time) UserCost {
	return UserCost{
		UserID:          c.UserID,
		From:            from,
		To:              to,
		TotalCost:       c.TotalCost,
		TotalTokens:     c.TotalTokens,
		Transformations: c.Transformations,
	}
}

// --- Pricing ---

// QuoteRequest is the body of POST /api/pricing/quote. Empty options take the
// draft defaults (A4, matte, no frame, standard shipping in Israel).
type QuoteRequest struct {
	Size         string `json:"size"`
	Paper        string `json:"paperType"`
	Frame        string `json:"frameType"`
	Region       string `json:"region,omitempty"`
	Method       string `json:"method,omitempty"`
	DiscountCode string `json:"discountCode,omitempty"`
}

// FromQuoteRequest validates the closed enums of q.
func FromQuoteRequest(q QuoteRequest) (pricing.CheckoutInput, error) {
	in := pricing.CheckoutInput{
		Size:         pricing.SizeA4,
		Paper:        pricing.PaperMatte,
		Frame:        pricing.FrameNone,
		DiscountCode: strings.TrimSpace(q.DiscountCode),
	}
	var err error
	if q.Size != "" {
		if in.Size, err = pricing.ParseSize(q.Size); err != nil {
			return pricing.CheckoutInput{}, err
		}
	}
	if q.Paper != "" {
		if in.Paper, err = pricing.ParsePaper(q.Paper); err != nil {
			return pricing.CheckoutInput{}, err
		}
	}
	if q.Frame != "" {
		if in.Frame, err = pricing.ParseFrame(q.Frame); err != nil {
			return pricing.CheckoutInput{}, err
		}
	}
	if in.Region, err = pricing.ParseRegion(q.Region); err != nil {
		return pricing.CheckoutInput{}, err
	}
	if in.Method, err = pricing.ParseMethod(q.Method); err != nil {
		return pricing.CheckoutInput{}, err
	}
	return in, nil
}

// DiscountRequest is the body of POST /api/discounts/validate.
type DiscountRequest struct {
	Code     string `json:"code"`
	Subtotal int    `json:"subtotal"`
}

// Shipping is the body of GET /api/shipping.
type Shipping struct {
	pricing.ShippingResult
	EstimateText string `json:"estimateText"`
}

// ToShipping prices shipping for region and method.
func ToShipping(region pricing.Region, method pricing.Method) Shipping {
	return Shipping{
		ShippingResult: pricing.CalculateShipping(region, method),
		EstimateText:   pricing.ShippingEstimate(region, method),
	}
}

// --- Order draft ---

// Gift is the gift section of a draft patch.
type Gift struct {
	IsGift    bool   `json:"isGift"`
	Message   string `json:"message,omitempty"`
	HidePrice bool   `json:"hidePrice"`
}

// DraftPatch is the body of PATCH /api/order/draft. Nil fields are left alone.
type DraftPatch struct {
	Step                  *string          `json:"currentStep,omitempty"`
	Advance               int              `json:"advance,omitempty"`
	OriginalImage         *string          `json:"originalImage,omitempty"`
	TransformedImage      *string          `json:"transformedImage,omitempty"`
	Style                 *string          `json:"selectedStyle,omitempty"`
	Orientation           *string          `json:"orientation,omitempty"`
	Size                  *string          `json:"size,omitempty"`
	Paper                 *string          `json:"paperType,omitempty"`
	Frame                 *string          `json:"frameType,omitempty"`
	Gift                  *Gift            `json:"gift,omitempty"`
	Recipient             *order.Recipient `json:"recipient,omitempty"`
	ScheduledDeliveryDate *string          `json:"scheduledDeliveryDate,omitempty"`
	DiscountCode          *string          `json:"discountCode,omitempty"`
}

// Draft is the draft as served to clients.
type Draft struct {
	order.Persisted
	Pricing         *pricing.PriceBreakdown  `json:"pricing,omitempty"`
	Discount        order.DiscountValidation `json:"discountValidation"`
	MinDeliveryDate string                   `json:"minDeliveryDate"`
	MaxDeliveryDate string                   `json:"maxDeliveryDate"`
}

// ToDraft converts a store snapshot plus its delivery window.
func ToDraft(st order.State, minDate, maxDate time.Time) Draft {
	return Draft{
		Persisted:       st.Persisted,
		Pricing:         st.Volatile.Pricing,
		Discount:        st.Volatile.DiscountValidation,
		MinDeliveryDate: date(minDate),
		MaxDeliveryDate: date(maxDate),
	}
}
