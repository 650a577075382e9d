package order

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/footprint-prints/footprint/internal/delivery"
	"github.com/footprint-prints/footprint/internal/pricing"
)

func newTestStore(t *testing.T) (*Store, *MemoryPersister) {
	t.Helper()
	p := NewMemoryPersister()
	now := func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	return NewStore("sess-1", p, nil, delivery.NewCalendar(now, nil), zaptest.NewLogger(t)), p
}

func TestStore_Defaults(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	st := s.State()
	assert.Equal(t, StepUpload, st.Persisted.Step)
	assert.Equal(t, OrientationPortrait, st.Persisted.Orientation)
	assert.Equal(t, pricing.SizeA4, st.Persisted.Size)
	assert.Equal(t, pricing.PaperMatte, st.Persisted.Paper)
	assert.Equal(t, pricing.FrameNone, st.Persisted.Frame)
	assert.Nil(t, st.Volatile.Pricing)
	assert.Equal(t, DiscountValidation{}, st.Volatile.DiscountValidation)
}

func TestStore_SetOriginalImageResetsTransformed(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.SetOriginalImage("https://cdn/a.jpg", &FileRef{Name: "a.jpg", ContentType: "image/jpeg", Size: 10})
	s.SetTransformedImage("https://cdn/a-pop.png")
	require.Equal(t, "https://cdn/a-pop.png", s.State().Persisted.TransformedImage)

	s.SetOriginalImage("https://cdn/b.jpg", nil)
	st := s.State()
	assert.Equal(t, "https://cdn/b.jpg", st.Persisted.OriginalImage)
	assert.Empty(t, st.Persisted.TransformedImage)
	assert.Nil(t, st.Volatile.OriginalFile)
}

func TestStore_SetStyleDropsOtherStyleResult(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.SetStyle("pop_art")
	s.SetTransformedImage("https://cdn/x.png")
	s.SetStyle("pop_art")
	assert.Equal(t, "https://cdn/x.png", s.State().Persisted.TransformedImage)

	s.SetStyle("watercolor")
	assert.Empty(t, s.State().Persisted.TransformedImage)
}

func TestStore_ApplyAndClearDiscount(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.SetSize(pricing.SizeA3)
	s.RecalculatePrice()
	before := *s.State().Volatile.Pricing
	require.Equal(t, 179, before.Subtotal)
	require.Equal(t, 179+29, before.Total)

	s.SetDiscountCode("save10")
	s.ApplyDiscountCode()

	st := s.State()
	require.True(t, s.HasAppliedDiscount())
	assert.Equal(t, 18, s.DiscountAmount())
	assert.Empty(t, st.Volatile.DiscountValidation.Error)
	assert.False(t, st.Volatile.DiscountValidation.IsValidating)
	assert.Equal(t, 18, st.Volatile.Pricing.Discount)
	assert.Equal(t, 179-18+29, st.Volatile.Pricing.Total)

	s.ClearDiscount()
	st = s.State()
	assert.Equal(t, "", st.Volatile.DiscountCode)
	assert.Equal(t, DiscountValidation{}, st.Volatile.DiscountValidation)
	assert.Equal(t, before.Total, st.Volatile.Pricing.Total)
	assert.Equal(t, 0, st.Volatile.Pricing.Discount)
	assert.False(t, s.HasAppliedDiscount())
	assert.Equal(t, 0, s.DiscountAmount())
}

func TestStore_ApplyDiscountFailureLeavesPricing(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.RecalculatePrice()
	before := *s.State().Volatile.Pricing

	s.SetDiscountCode("VIP25")
	s.ApplyDiscountCode()

	st := s.State()
	assert.Equal(t, before, *st.Volatile.Pricing)
	assert.Contains(t, st.Volatile.DiscountValidation.Error, "Minimum purchase")
	require.NotNil(t, st.Volatile.DiscountValidation.AppliedDiscount)
	assert.False(t, st.Volatile.DiscountValidation.AppliedDiscount.Valid)
	assert.False(t, s.HasAppliedDiscount())
}

func TestStore_ApplyWithoutPricingUsesZeroSubtotal(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.SetDiscountCode("FLAT50")
	s.ApplyDiscountCode()
	st := s.State()
	assert.Nil(t, st.Volatile.Pricing)
	assert.Contains(t, st.Volatile.DiscountValidation.Error, "Minimum purchase")
}

func TestStore_SetDiscountCodeClearsValidation(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.SetDiscountCode("nope")
	s.ApplyDiscountCode()
	require.Equal(t, pricing.MsgCodeInvalid, s.State().Volatile.DiscountValidation.Error)

	s.SetDiscountCode("SAVE10")
	assert.Equal(t, DiscountValidation{}, s.State().Volatile.DiscountValidation)
}

func TestStore_RepriceReappliesDiscount(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.SetSize(pricing.SizeA2)
	s.RecalculatePrice()
	s.SetDiscountCode("VIP25")
	s.ApplyDiscountCode()
	require.Equal(t, 62, s.DiscountAmount()) // 25% of 249 = 62.25

	s.SetFrame(pricing.FrameOak)
	st := s.State()
	assert.Equal(t, 348, st.Volatile.Pricing.Subtotal)
	assert.Equal(t, 87, st.Volatile.Pricing.Discount)
	assert.Equal(t, 0, st.Volatile.Pricing.Shipping, "subtotal above the free-shipping threshold")
	assert.Equal(t, 348-87, st.Volatile.Pricing.Total)

	// dropping below the minimum purchase removes the discount
	s.SetSize(pricing.SizeA5)
	s.SetFrame(pricing.FrameNone)
	st = s.State()
	assert.Equal(t, 0, st.Volatile.Pricing.Discount)
	assert.Equal(t, 89+29, st.Volatile.Pricing.Total)
	assert.False(t, s.HasAppliedDiscount())
	assert.Contains(t, st.Volatile.DiscountValidation.Error, "Minimum purchase")
}

func TestStore_FreeShippingMatchesCheckoutQuote(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.SetSize(pricing.SizeA2)
	s.SetPaper(pricing.PaperCanvas)
	s.RecalculatePrice()
	st := s.State()
	q := pricing.QuoteCheckout(pricing.CheckoutInput{
		Size: pricing.SizeA2, Paper: pricing.PaperCanvas, Frame: pricing.FrameNone,
		Region: pricing.RegionIsrael, Method: pricing.MethodStandard,
	}, nil)
	require.True(t, q.FreeShipping)
	assert.Equal(t, q.Pricing, *st.Volatile.Pricing)

	// the fee comes back once the subtotal drops under the threshold
	s.SetPaper(pricing.PaperMatte)
	st = s.State()
	assert.Equal(t, pricing.DefaultShippingCost, st.Volatile.Pricing.Shipping)
	assert.Equal(t, 249+29, st.Volatile.Pricing.Total)
}

func TestStore_SetPricingFeeSurvivesRecalculation(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.SetPricing(&pricing.PriceBreakdown{Shipping: 49})
	s.RecalculatePrice()
	st := s.State()
	assert.Equal(t, 49, st.Volatile.Pricing.Shipping)
	assert.Equal(t, 129+49, st.Volatile.Pricing.Total)
}

func TestStore_SubscribeNotifies(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	var seen []Step
	unsub := s.Subscribe(func(st State) { seen = append(seen, st.Persisted.Step) })

	s.NextStep()
	s.NextStep()
	s.PrevStep()
	unsub()
	s.NextStep()

	assert.Equal(t, []Step{StepStyle, StepCustomize, StepStyle}, seen)
}

func TestStore_StepBounds(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.PrevStep()
	assert.Equal(t, StepUpload, s.State().Persisted.Step)

	s.SetStep(StepComplete)
	s.NextStep()
	assert.Equal(t, StepComplete, s.State().Persisted.Step)
}

func TestStore_PersistsOnlyWhitelistedFields(t *testing.T) {
	t.Parallel()
	s, p := newTestStore(t)

	d := time.Date(2026, 10, 27, 0, 0, 0, 0, time.UTC)
	s.SetOriginalImage("https://cdn/a.jpg", nil)
	s.SetStyle("watercolor")
	s.SetGift(true, "Happy birthday", true)
	s.SetRecipient(&Recipient{Name: "Dana", Address: Address{Street: "Herzl 1", City: "Tel Aviv", Country: "IL"}})
	s.SetScheduledDeliveryDate(&d)
	s.RecalculatePrice()
	s.SetDiscountCode("SAVE10")
	s.ApplyDiscountCode()
	s.SetOrderID("ord-1")
	s.SetShippingAddress(&Address{Street: "x"})

	raw, ok := p.m["sess-1"]
	require.True(t, ok)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	for _, k := range []string{"pricing", "discountCode", "discountValidation", "orderId", "shippingAddress", "isTransforming"} {
		_, present := generic[k]
		assert.False(t, present, "volatile field %q leaked", k)
	}

	restored := NewStore("sess-1", p, nil, nil, nil)
	restored.Hydrate(context.Background())
	st := restored.State()
	assert.Equal(t, "https://cdn/a.jpg", st.Persisted.OriginalImage)
	assert.Equal(t, "watercolor", st.Persisted.SelectedStyle)
	assert.True(t, st.Persisted.IsGift)
	require.NotNil(t, st.Persisted.Recipient)
	assert.Equal(t, "Dana", st.Persisted.Recipient.Name)
	require.NotNil(t, st.Persisted.ScheduledDeliveryDate)
	assert.True(t, d.Equal(*st.Persisted.ScheduledDeliveryDate))
	assert.Nil(t, st.Volatile.Pricing)
	assert.Empty(t, st.Volatile.DiscountCode)
	assert.Empty(t, st.Volatile.OrderID)
}

func TestStore_Reset(t *testing.T) {
	t.Parallel()
	s, p := newTestStore(t)

	s.SetOrientation(OrientationLandscape)
	s.SetSize(pricing.SizeA2)
	s.RecalculatePrice()
	s.SetOrderID("ord-9")
	s.Reset()

	assert.Equal(t, initialState(), s.State())
	_, ok := p.m["sess-1"]
	assert.False(t, ok)
}

type failingPersister struct{}

func (failingPersister) Load(context.Context, string) (*Persisted, error) {
	return nil, errors.New("load boom")
}
func (failingPersister) Save(context.Context, string, Persisted) error {
	return errors.New("save boom")
}
func (failingPersister) Delete(context.Context, string) error { return errors.New("del boom") }

func TestStore_PersistenceFailuresNeverSurface(t *testing.T) {
	t.Parallel()
	s := NewStore("k", failingPersister{}, nil, nil, zaptest.NewLogger(t))

	s.Hydrate(context.Background())
	s.SetStyle("vintage")
	s.Reset()
	assert.Equal(t, initialState(), s.State())
}

func TestStore_DeliveryDatePassThrough(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	assert.Equal(t, time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC), s.MinDeliveryDate())
	assert.Equal(t, time.Date(2026, 12, 17, 0, 0, 0, 0, time.UTC), s.MaxDeliveryDate())
	assert.True(t, s.IsValidDeliveryDate(time.Date(2026, 10, 22, 0, 0, 0, 0, time.UTC)))
	assert.False(t, s.IsValidDeliveryDate(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)))
}

func TestStore_StateIsASnapshot(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	s.RecalculatePrice()
	st := s.State()
	st.Volatile.Pricing.Total = 1
	assert.NotEqual(t, 1, s.State().Volatile.Pricing.Total)
}
