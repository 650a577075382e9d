package pricing

import (
	"fmt"
	"strings"
	"time"
)

// DiscountType selects how a code's value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Discount validation messages surfaced to the UI.
const (
	MsgCodeRequired = "Discount code is required"
	MsgCodeInvalid  = "Invalid discount code"
	MsgCodeExpired  = "Discount code has expired"
)

// DiscountCode is a static promotion entry. Zero MinPurchase/MaxDiscount and a
// nil ExpiresAt mean "not set".
type DiscountCode struct {
	Code        string       `json:"code"`
	Type        DiscountType `json:"type"`
	Value       int          `json:"value"`
	MinPurchase int          `json:"minPurchase,omitempty"`
	MaxDiscount int          `json:"maxDiscount,omitempty"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
}

// DefaultDiscountCodes is the table loaded at process start.
var DefaultDiscountCodes = []DiscountCode{
	{Code: "SAVE10", Type: DiscountPercentage, Value: 10},
	{Code: "SAVE20", Type: DiscountPercentage, Value: 20, MaxDiscount: 100},
	{Code: "WELCOME15", Type: DiscountPercentage, Value: 15, MaxDiscount: 75},
	{Code: "FLAT50", Type: DiscountFixed, Value: 50, MinPurchase: 200},
	{Code: "VIP25", Type: DiscountPercentage, Value: 25, MinPurchase: 200},
	{Code: "EXPIRED", Type: DiscountPercentage, Value: 10, ExpiresAt: timePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
}

// DiscountValidation is the outcome of a code lookup.
type DiscountValidation struct {
	Valid bool          `json:"valid"`
	Code  *DiscountCode `json:"code,omitempty"`
	Error string        `json:"error,omitempty"`
}

// DiscountResult is the outcome of applying a code to a subtotal.
type DiscountResult struct {
	Valid            bool          `json:"valid"`
	OriginalSubtotal int           `json:"originalSubtotal"`
	Discount         int           `json:"discount"`
	NewSubtotal      int           `json:"newSubtotal"`
	Code             *DiscountCode `json:"code,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// Engine validates codes against an in-memory table.
type Engine struct {
	codes map[string]DiscountCode
	now   func() time.Time
}

// NewEngine builds an engine over codes; now defaults to time.Now.
func NewEngine(codes []DiscountCode, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	m := make(map[string]DiscountCode, len(codes))
	for _, c := range codes {
		m[strings.ToUpper(strings.TrimSpace(c.Code))] = c
	}
	return &Engine{codes: m, now: now}
}

var defaultEngine = NewEngine(DefaultDiscountCodes, nil)

// DefaultEngine returns the engine over DefaultDiscountCodes.
func DefaultEngine() *Engine { return defaultEngine }

// Validate looks a code up case-insensitively and checks expiry.
func (e *Engine) Validate(input string) DiscountValidation {
	code := strings.TrimSpace(input)
	if code == "" {
		return DiscountValidation{Error: MsgCodeRequired}
	}
	dc, ok := e.codes[strings.ToUpper(code)]
	if !ok {
		return DiscountValidation{Error: MsgCodeInvalid}
	}
	if dc.ExpiresAt != nil && e.now().After(*dc.ExpiresAt) {
		return DiscountValidation{Error: MsgCodeExpired}
	}
	return DiscountValidation{Valid: true, Code: &dc}
}

// Apply validates input, enforces the minimum purchase and computes the discount.
func (e *Engine) Apply(input string, subtotal int) DiscountResult {
	res := DiscountResult{OriginalSubtotal: subtotal, NewSubtotal: subtotal}

	v := e.Validate(input)
	if !v.Valid {
		res.Error = v.Error
		return res
	}
	if v.Code.MinPurchase > 0 && subtotal < v.Code.MinPurchase {
		res.Error = fmt.Sprintf("Minimum purchase of ₪%d required for this code", v.Code.MinPurchase)
		return res
	}

	d := DiscountValue(*v.Code, subtotal)
	res.Valid = true
	res.Code = v.Code
	res.Discount = d
	res.NewSubtotal = subtotal - d
	return res
}

// DiscountValue computes the amount code takes off subtotal; never above subtotal.
// Percentages round half up.
func DiscountValue(code DiscountCode, subtotal int) int {
	if subtotal <= 0 {
		return 0
	}
	var d int
	switch code.Type {
	case DiscountPercentage:
		d = (subtotal*code.Value + 50) / 100
		if code.MaxDiscount > 0 && d > code.MaxDiscount {
			d = code.MaxDiscount
		}
	case DiscountFixed:
		d = code.Value
	}
	return clamp(d, 0, subtotal)
}

// ValidateDiscountCode validates input against the default table.
func ValidateDiscountCode(input string) DiscountValidation { return defaultEngine.Validate(input) }

// ApplyDiscount applies input to subtotal using the default table.
func ApplyDiscount(input string, subtotal int) DiscountResult {
	return defaultEngine.Apply(input, subtotal)
}

func timePtr(t time.Time) *time.Time { return &t }
