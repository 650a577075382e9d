package pricing

// FreeShippingThreshold waives shipping for subtotals at or above it.
const FreeShippingThreshold = 299

// ShippingFor returns the shipping charged on subtotal given the looked-up fee,
// and whether it was waived.
func ShippingFor(subtotal, fee int) (int, bool) {
	if subtotal >= FreeShippingThreshold {
		return 0, true
	}
	return fee, false
}

// CheckoutInput is a full checkout selection. DiscountCode may be empty.
type CheckoutInput struct {
	Size         Size
	Paper        PaperType
	Frame        FrameType
	Region       Region
	Method       Method
	DiscountCode string
}

// CheckoutQuote is the priced checkout.
type CheckoutQuote struct {
	Pricing      PriceBreakdown  `json:"pricing"`
	Shipping     ShippingResult  `json:"shipping"`
	FreeShipping bool            `json:"freeShipping"`
	Discount     *DiscountResult `json:"discount,omitempty"`
}

// QuoteCheckout prices a checkout with engine e (nil means the default table).
// Shipping is looked up by region/method and waived at FreeShippingThreshold;
// the threshold applies to the subtotal before any discount.
func QuoteCheckout(in CheckoutInput, e *Engine) CheckoutQuote {
	if e == nil {
		e = defaultEngine
	}
	base := CalculatePrice(PriceInput{Size: in.Size, Paper: in.Paper, Frame: in.Frame})

	q := CheckoutQuote{Shipping: CalculateShipping(in.Region, in.Method)}
	var shipping int
	shipping, q.FreeShipping = ShippingFor(base.Subtotal, q.Shipping.Cost)

	var discount int
	if in.DiscountCode != "" {
		r := e.Apply(in.DiscountCode, base.Subtotal)
		q.Discount = &r
		if r.Valid {
			discount = r.Discount
		}
	}

	q.Pricing = CalculatePrice(PriceInput{
		Size:         in.Size,
		Paper:        in.Paper,
		Frame:        in.Frame,
		ShippingCost: &shipping,
		Discount:     &discount,
	})
	return q
}
