// Package pricing implements the print price calculator, the discount engine and
// the shipping calculator. All amounts are whole shekels (ILS).
package pricing

import "fmt"

// Size is the print size.
type Size string

const (
	SizeA5 Size = "A5"
	SizeA4 Size = "A4"
	SizeA3 Size = "A3"
	SizeA2 Size = "A2"
)

// PaperType is the print paper.
type PaperType string

const (
	PaperMatte  PaperType = "matte"
	PaperGlossy PaperType = "glossy"
	PaperCanvas PaperType = "canvas"
)

// FrameType is the frame option.
type FrameType string

const (
	FrameNone  FrameType = "none"
	FrameBlack FrameType = "black"
	FrameWhite FrameType = "white"
	FrameOak   FrameType = "oak"
)

// DefaultShippingCost is applied when the caller does not supply a shipping cost.
const DefaultShippingCost = 29

var (
	basePrices = map[Size]int{
		SizeA5: 89,
		SizeA4: 129,
		SizeA3: 179,
		SizeA2: 249,
	}
	paperModifiers = map[PaperType]int{
		PaperMatte:  0,
		PaperGlossy: 20,
		PaperCanvas: 50,
	}
	framePrices = map[FrameType]int{
		FrameNone:  0,
		FrameBlack: 79,
		FrameWhite: 79,
		FrameOak:   99,
	}
)

// Sizes, Papers and Frames list the closed enums in display order.
var (
	Sizes  = []Size{SizeA5, SizeA4, SizeA3, SizeA2}
	Papers = []PaperType{PaperMatte, PaperGlossy, PaperCanvas}
	Frames = []FrameType{FrameNone, FrameBlack, FrameWhite, FrameOak}
)

// Valid reports whether s is a known size.
func (s Size) Valid() bool { _, ok := basePrices[s]; return ok }

// Valid reports whether p is a known paper type.
func (p PaperType) Valid() bool { _, ok := paperModifiers[p]; return ok }

// Valid reports whether f is a known frame type.
func (f FrameType) Valid() bool { _, ok := framePrices[f]; return ok }

// ParseSize converts boundary input into a Size.
func ParseSize(v string) (Size, error) {
	s := Size(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown size %q", v)
	}
	return s, nil
}

// ParsePaper converts boundary input into a PaperType.
func ParsePaper(v string) (PaperType, error) {
	p := PaperType(v)
	if !p.Valid() {
		return "", fmt.Errorf("unknown paper type %q", v)
	}
	return p, nil
}

// ParseFrame converts boundary input into a FrameType.
func ParseFrame(v string) (FrameType, error) {
	f := FrameType(v)
	if !f.Valid() {
		return "", fmt.Errorf("unknown frame type %q", v)
	}
	return f, nil
}

// BasePrice returns the base price for a size.
func BasePrice(s Size) int { return basePrices[s] }

// PaperModifier returns the surcharge for a paper type.
func PaperModifier(p PaperType) int { return paperModifiers[p] }

// FramePrice returns the price of a frame.
func FramePrice(f FrameType) int { return framePrices[f] }

// PriceInput is the calculator input. Nil pointers mean "not supplied".
type PriceInput struct {
	Size         Size
	Paper        PaperType
	Frame        FrameType
	ShippingCost *int
	Discount     *int
}

// PriceBreakdown is recomputed on demand and never persisted on its own.
// Invariants: Subtotal = BasePrice + PaperModifier + FramePrice,
// Discount <= Subtotal, Total = Subtotal - Discount + Shipping.
type PriceBreakdown struct {
	BasePrice     int `json:"basePrice"`
	PaperModifier int `json:"paperModifier"`
	FramePrice    int `json:"framePrice"`
	Subtotal      int `json:"subtotal"`
	Shipping      int `json:"shipping"`
	Discount      int `json:"discount"`
	Total         int `json:"total"`
}

// CalculatePrice maps a product configuration to a price breakdown.
// Enum values are expected to be validated by the caller.
func CalculatePrice(in PriceInput) PriceBreakdown {
	b := PriceBreakdown{
		BasePrice:     BasePrice(in.Size),
		PaperModifier: PaperModifier(in.Paper),
		FramePrice:    FramePrice(in.Frame),
		Shipping:      DefaultShippingCost,
	}
	b.Subtotal = b.BasePrice + b.PaperModifier + b.FramePrice
	if in.ShippingCost != nil && *in.ShippingCost >= 0 {
		b.Shipping = *in.ShippingCost
	}
	if in.Discount != nil {
		b.Discount = clamp(*in.Discount, 0, b.Subtotal)
	}
	b.Total = b.Subtotal - b.Discount + b.Shipping
	return b
}

// WithDiscount returns b with discount d applied (clamped) and Total recomputed.
func (b PriceBreakdown) WithDiscount(d int) PriceBreakdown {
	b.Discount = clamp(d, 0, b.Subtotal)
	b.Total = b.Subtotal - b.Discount + b.Shipping
	return b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Int is a small helper for optional inputs.
func Int(v int) *int { return &v }
