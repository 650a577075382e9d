package order

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/footprint-prints/footprint/internal/delivery"
	"github.com/footprint-prints/footprint/internal/pricing"
)

const persistTimeout = 2 * time.Second

// Store is the single source of truth for one purchase draft.
// Every action mutates the state and then synchronously notifies subscribers.
// Actions never fail: validation problems are recorded in the state.
type Store struct {
	mu    sync.Mutex
	state State

	subs   map[int]func(State)
	nextID int

	key       string
	persister Persister
	engine    *pricing.Engine
	calendar  *delivery.Calendar
	log       *zap.Logger
}

// NewStore constructs a store for session key. Nil collaborators fall back to
// in-memory persistence, the default discount table and the default calendar.
func NewStore(key string, p Persister, engine *pricing.Engine, cal *delivery.Calendar, log *zap.Logger) *Store {
	if p == nil {
		p = NewMemoryPersister()
	}
	if engine == nil {
		engine = pricing.DefaultEngine()
	}
	if cal == nil {
		cal = delivery.NewCalendar(nil, nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		state:     initialState(),
		subs:      make(map[int]func(State)),
		key:       key,
		persister: p,
		engine:    engine,
		calendar:  cal,
		log:       log,
	}
}

// Hydrate restores the persisted subset saved by a previous session.
func (s *Store) Hydrate(ctx context.Context) {
	p, err := s.persister.Load(ctx, s.key)
	if err != nil {
		s.log.Warn("order draft load failed", zap.String("key", s.key), zap.Error(err))
		return
	}
	if p == nil {
		return
	}
	s.update(false, func(st *State) { st.Persisted = *p })
}

// Subscribe registers fn for every state change and returns an unsubscribe func.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// State returns a snapshot of the draft.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// update applies fn under the lock, then persists (if asked) and notifies.
func (s *Store) update(persist bool, fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.state.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, f := range s.subs {
		subs = append(subs, f)
	}
	s.mu.Unlock()

	if persist {
		s.save(snap.Persisted)
	}
	for _, f := range subs {
		f(snap)
	}
}

func (s *Store) save(p Persisted) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, s.key, p); err != nil {
		s.log.Warn("order draft save failed", zap.String("key", s.key), zap.Error(err))
	}
}

// --- wizard navigation ---

// SetStep moves the cursor.
func (s *Store) SetStep(step Step) {
	s.update(true, func(st *State) { st.Persisted.Step = step })
}

// NextStep advances one step; the last step is sticky.
func (s *Store) NextStep() {
	s.update(true, func(st *State) { st.Persisted.Step = shift(st.Persisted.Step, 1) })
}

// PrevStep goes back one step; the first step is sticky.
func (s *Store) PrevStep() {
	s.update(true, func(st *State) { st.Persisted.Step = shift(st.Persisted.Step, -1) })
}

func shift(cur Step, by int) Step {
	for i, st := range Steps {
		if st == cur {
			j := i + by
			if j < 0 || j >= len(Steps) {
				return cur
			}
			return Steps[j]
		}
	}
	return StepUpload
}

// --- images and style ---

// SetOriginalImage replaces the source image; any transformed image derived
// from the previous source is dropped.
func (s *Store) SetOriginalImage(url string, file *FileRef) {
	s.update(true, func(st *State) {
		st.Persisted.OriginalImage = url
		st.Persisted.TransformedImage = ""
		st.Volatile.OriginalFile = file
	})
}

// SetTransformedImage records the AI result for the current source.
func (s *Store) SetTransformedImage(url string) {
	s.update(true, func(st *State) { st.Persisted.TransformedImage = url })
}

// SetStyle selects a style; a result rendered in another style is dropped.
func (s *Store) SetStyle(style string) {
	s.update(true, func(st *State) {
		if st.Persisted.SelectedStyle != style {
			st.Persisted.TransformedImage = ""
		}
		st.Persisted.SelectedStyle = style
	})
}

// SetTransforming flags an in-flight transform request.
func (s *Store) SetTransforming(v bool) {
	s.update(false, func(st *State) { st.Volatile.IsTransforming = v })
}

// --- product configuration ---

// SetOrientation selects portrait or landscape.
func (s *Store) SetOrientation(o Orientation) {
	s.update(true, func(st *State) { st.Persisted.Orientation = o })
}

// SetSize selects the print size and reprices an existing quote.
func (s *Store) SetSize(size pricing.Size) {
	s.update(true, func(st *State) {
		st.Persisted.Size = size
		s.repriceLocked(st)
	})
}

// SetPaper selects the paper and reprices an existing quote.
func (s *Store) SetPaper(p pricing.PaperType) {
	s.update(true, func(st *State) {
		st.Persisted.Paper = p
		s.repriceLocked(st)
	})
}

// SetFrame selects the frame and reprices an existing quote.
func (s *Store) SetFrame(f pricing.FrameType) {
	s.update(true, func(st *State) {
		st.Persisted.Frame = f
		s.repriceLocked(st)
	})
}

// SetGift sets the gift options.
func (s *Store) SetGift(isGift bool, message string, hidePrice bool) {
	s.update(true, func(st *State) {
		st.Persisted.IsGift = isGift
		st.Persisted.GiftMessage = message
		st.Persisted.HidePrice = hidePrice
	})
}

// SetRecipient sets the gift recipient.
func (s *Store) SetRecipient(r *Recipient) {
	s.update(true, func(st *State) { st.Persisted.Recipient = r })
}

// SetShippingAddress sets the shipping address.
func (s *Store) SetShippingAddress(a *Address) {
	s.update(false, func(st *State) { st.Volatile.ShippingAddress = a })
}

// SetBillingAddress sets the billing address.
func (s *Store) SetBillingAddress(a *Address) {
	s.update(false, func(st *State) { st.Volatile.BillingAddress = a })
}

// SetScheduledDeliveryDate stores the requested delivery day (nil clears it).
func (s *Store) SetScheduledDeliveryDate(d *time.Time) {
	s.update(true, func(st *State) { st.Persisted.ScheduledDeliveryDate = d })
}

// SetOrderID records the id returned by order creation.
func (s *Store) SetOrderID(id string) {
	s.update(false, func(st *State) { st.Volatile.OrderID = id })
}

// --- pricing and discounts ---

// SetPricing replaces the price breakdown. Its shipping becomes the fee later
// recalculations start from.
func (s *Store) SetPricing(p *pricing.PriceBreakdown) {
	if p != nil {
		c := *p
		p = &c
	}
	s.update(false, func(st *State) {
		st.Volatile.Pricing = p
		if p != nil {
			st.Volatile.ShippingFee = p.Shipping
		}
	})
}

// RecalculatePrice prices the current configuration with the current shipping
// fee (standard delivery in Israel until one is set), waiving it at the
// free-shipping threshold, and re-applies an applied discount code to the new subtotal.
func (s *Store) RecalculatePrice() {
	s.update(false, func(st *State) {
		if st.Volatile.Pricing == nil {
			st.Volatile.ShippingFee = pricing.CalculateShipping(pricing.RegionIsrael, pricing.MethodStandard).Cost
			b := s.price(st)
			st.Volatile.Pricing = &b
		}
		s.repriceLocked(st)
	})
}

func (s *Store) price(st *State) pricing.PriceBreakdown {
	in := pricing.PriceInput{
		Size:  st.Persisted.Size,
		Paper: st.Persisted.Paper,
		Frame: st.Persisted.Frame,
	}
	shipping, _ := pricing.ShippingFor(pricing.CalculatePrice(in).Subtotal, st.Volatile.ShippingFee)
	in.ShippingCost = &shipping
	return pricing.CalculatePrice(in)
}

// repriceLocked is a no-op until a quote exists. The fresh breakdown carries no
// discount, so a code that stopped qualifying simply falls away.
func (s *Store) repriceLocked(st *State) {
	if st.Volatile.Pricing == nil {
		return
	}
	b := s.price(st)
	st.Volatile.Pricing = &b

	applied := st.Volatile.DiscountValidation.AppliedDiscount
	if applied == nil || !applied.Valid {
		return
	}
	res := s.engine.Apply(st.Volatile.DiscountCode, b.Subtotal)
	s.recordDiscountLocked(st, res)
}

// SetDiscountCode stores the typed code and drops any previous validation.
func (s *Store) SetDiscountCode(code string) {
	s.update(false, func(st *State) {
		st.Volatile.DiscountCode = code
		st.Volatile.DiscountValidation = DiscountValidation{}
	})
}

// ApplyDiscountCode validates the current code against the current subtotal
// (0 without a quote). Success updates the quote; failure leaves it untouched.
func (s *Store) ApplyDiscountCode() {
	s.update(false, func(st *State) { st.Volatile.DiscountValidation.IsValidating = true })
	s.update(false, func(st *State) {
		subtotal := 0
		if st.Volatile.Pricing != nil {
			subtotal = st.Volatile.Pricing.Subtotal
		}
		res := s.engine.Apply(st.Volatile.DiscountCode, subtotal)
		s.recordDiscountLocked(st, res)
	})
}

func (s *Store) recordDiscountLocked(st *State, res pricing.DiscountResult) {
	if !res.Valid {
		st.Volatile.DiscountValidation = DiscountValidation{Error: res.Error, AppliedDiscount: &res}
		return
	}
	if st.Volatile.Pricing != nil {
		b := st.Volatile.Pricing.WithDiscount(res.Discount)
		st.Volatile.Pricing = &b
	}
	st.Volatile.DiscountValidation = DiscountValidation{AppliedDiscount: &res}
}

// ClearDiscount removes the code and restores the undiscounted total.
func (s *Store) ClearDiscount() {
	s.update(false, func(st *State) {
		st.Volatile.DiscountCode = ""
		st.Volatile.DiscountValidation = DiscountValidation{}
		if st.Volatile.Pricing != nil {
			b := st.Volatile.Pricing.WithDiscount(0)
			st.Volatile.Pricing = &b
		}
	})
}

// HasAppliedDiscount reports whether a valid code is applied.
func (s *Store) HasAppliedDiscount() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.state.Volatile.DiscountValidation.AppliedDiscount
	return a != nil && a.Valid
}

// DiscountAmount is the applied discount, 0 without one.
func (s *Store) DiscountAmount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.state.Volatile.DiscountValidation.AppliedDiscount
	if a == nil || !a.Valid {
		return 0
	}
	return a.Discount
}

// --- delivery dates ---

// MinDeliveryDate is the earliest schedulable day.
func (s *Store) MinDeliveryDate() time.Time { return s.calendar.MinDate() }

// MaxDeliveryDate is the latest schedulable day.
func (s *Store) MaxDeliveryDate() time.Time { return s.calendar.MaxDate() }

// IsValidDeliveryDate reports whether d may be scheduled.
func (s *Store) IsValidDeliveryDate(d time.Time) bool { return s.calendar.IsValid(d) }

// Reset restores the initial draft and forgets the persisted copy.
func (s *Store) Reset() {
	s.update(false, func(st *State) { *st = initialState() })

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persister.Delete(ctx, s.key); err != nil {
		s.log.Warn("order draft delete failed", zap.String("key", s.key), zap.Error(err))
	}
}
