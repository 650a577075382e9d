// Package order holds the state machine behind the multi-step purchase wizard.
package order

import (
	"time"

	"github.com/footprint-prints/footprint/internal/pricing"
)

// Step is the wizard cursor.
type Step string

const (
	StepUpload    Step = "upload"
	StepStyle     Step = "style"
	StepCustomize Step = "customize"
	StepCheckout  Step = "checkout"
	StepComplete  Step = "complete"
)

// Steps lists the wizard in order.
var Steps = []Step{StepUpload, StepStyle, StepCustomize, StepCheckout, StepComplete}

// Orientation of the print.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// Address is a postal address.
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
}

// Recipient is the gift recipient.
type Recipient struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

// FileRef describes the uploaded file held by the session only.
type FileRef struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Persisted is the subset of the draft that survives a reload.
type Persisted struct {
	OriginalImage         string            `json:"originalImage,omitempty"`
	TransformedImage      string            `json:"transformedImage,omitempty"`
	SelectedStyle         string            `json:"selectedStyle,omitempty"`
	Orientation           Orientation       `json:"orientation"`
	Size                  pricing.Size      `json:"size"`
	Paper                 pricing.PaperType `json:"paperType"`
	Frame                 pricing.FrameType `json:"frameType"`
	IsGift                bool              `json:"isGift"`
	GiftMessage           string            `json:"giftMessage,omitempty"`
	HidePrice             bool              `json:"hidePrice"`
	Step                  Step              `json:"currentStep"`
	Recipient             *Recipient        `json:"recipient,omitempty"`
	ScheduledDeliveryDate *time.Time        `json:"scheduledDeliveryDate,omitempty"`
}

// DiscountValidation tracks the code check shown next to the discount field.
type DiscountValidation struct {
	IsValidating    bool                    `json:"isValidating"`
	Error           string                  `json:"error,omitempty"`
	AppliedDiscount *pricing.DiscountResult `json:"appliedDiscount,omitempty"`
}

// Volatile is recomputed or re-entered every session and never serialized.
type Volatile struct {
	OriginalFile       *FileRef
	IsTransforming     bool
	Pricing            *pricing.PriceBreakdown
	ShippingFee        int // before the free-shipping waiver
	DiscountCode       string
	DiscountValidation DiscountValidation
	ShippingAddress    *Address
	BillingAddress     *Address
	OrderID            string
}

// State is the full draft.
type State struct {
	Persisted Persisted
	Volatile  Volatile
}

func initialState() State {
	return State{
		Persisted: Persisted{
			Orientation: OrientationPortrait,
			Size:        pricing.SizeA4,
			Paper:       pricing.PaperMatte,
			Frame:       pricing.FrameNone,
			Step:        StepUpload,
		},
	}
}

// clone copies pointer fields so subscribers cannot mutate the store.
func (s State) clone() State {
	c := s
	if s.Persisted.Recipient != nil {
		r := *s.Persisted.Recipient
		c.Persisted.Recipient = &r
	}
	if s.Persisted.ScheduledDeliveryDate != nil {
		d := *s.Persisted.ScheduledDeliveryDate
		c.Persisted.ScheduledDeliveryDate = &d
	}
	if s.Volatile.OriginalFile != nil {
		f := *s.Volatile.OriginalFile
		c.Volatile.OriginalFile = &f
	}
	if s.Volatile.Pricing != nil {
		p := *s.Volatile.Pricing
		c.Volatile.Pricing = &p
	}
	if s.Volatile.DiscountValidation.AppliedDiscount != nil {
		a := *s.Volatile.DiscountValidation.AppliedDiscount
		c.Volatile.DiscountValidation.AppliedDiscount = &a
	}
	if s.Volatile.ShippingAddress != nil {
		a := *s.Volatile.ShippingAddress
		c.Volatile.ShippingAddress = &a
	}
	if s.Volatile.BillingAddress != nil {
		a := *s.Volatile.BillingAddress
		c.Volatile.BillingAddress = &a
	}
	return c
}
