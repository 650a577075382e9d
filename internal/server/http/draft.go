package httpserver

import (
	"net/http"
	"slices"
	"strings"

	"github.com/footprint-prints/footprint/internal/convert"
	"github.com/footprint-prints/footprint/internal/errs"
	"github.com/footprint-prints/footprint/internal/order"
	"github.com/footprint-prints/footprint/internal/pricing"
)

// DraftSessionHeader keys drafts of anonymous callers.
const DraftSessionHeader = "X-Draft-Session"

// draftKey picks the persistence key: the session header when present,
// otherwise the authenticated user.
func draftKey(r *http.Request) (string, error) {
	if v := strings.TrimSpace(r.Header.Get(DraftSessionHeader)); v != "" {
		return "session:" + v, nil
	}
	p, _ := PrincipalFromCtx(r.Context())
	if p.IsAnonymous() {
		return "", errs.WithCode(errs.ErrInvalidInput, "MISSING_FIELD", DraftSessionHeader+" header is required without a session")
	}
	return "user:" + p.UserID, nil
}

func (s *Server) openDraft(r *http.Request) (*order.Store, error) {
	key, err := draftKey(r)
	if err != nil {
		return nil, err
	}
	st := order.NewStore(key, s.drafts, s.discounts, s.calendar, s.log)
	st.Hydrate(r.Context())
	return st, nil
}

func (s *Server) writeDraft(w http.ResponseWriter, st *order.Store) {
	writeJSON(w, http.StatusOK, convert.ToDraft(st.State(), st.MinDeliveryDate(), st.MaxDeliveryDate()))
}

// GetDraft returns the caller's draft with a fresh quote.
func (s *Server) GetDraft(w http.ResponseWriter, r *http.Request) {
	st, err := s.openDraft(r)
	if err != nil {
		writeError(w, err)
		return
	}
	st.RecalculatePrice()
	s.writeDraft(w, st)
}

// DeleteDraft forgets the caller's draft.
func (s *Server) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	st, err := s.openDraft(r)
	if err != nil {
		writeError(w, err)
		return
	}
	st.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// PatchDraft validates the whole patch, then applies it as store actions.
func (s *Server) PatchDraft(w http.ResponseWriter, r *http.Request) {
	var p convert.DraftPatch
	if !decode(w, r, &p) {
		return
	}
	st, err := s.openDraft(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actions, err := s.draftActions(st, p)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, a := range actions {
		a()
	}
	st.RecalculatePrice()
	if p.DiscountCode != nil {
		if code := strings.TrimSpace(*p.DiscountCode); code != "" {
			st.SetDiscountCode(code)
			st.ApplyDiscountCode()
		} else {
			st.ClearDiscount()
		}
	}
	s.writeDraft(w, st)
}

func invalidOption(msg string) error {
	return errs.WithCode(errs.ErrInvalidInput, "INVALID_OPTION", msg)
}

// draftActions turns a patch into store actions. Nothing is applied when any
// field is invalid.
func (s *Server) draftActions(st *order.Store, p convert.DraftPatch) ([]func(), error) {
	var out []func()

	if p.OriginalImage != nil {
		v := strings.TrimSpace(*p.OriginalImage)
		out = append(out, func() { st.SetOriginalImage(v, nil) })
	}
	if p.Style != nil {
		v := strings.TrimSpace(*p.Style)
		if v != "" && !s.styles.Valid(v) {
			return nil, errs.WithCode(errs.ErrInvalidInput, "INVALID_STYLE", "Invalid style. Must be one of: "+strings.Join(s.styles.IDs(), ", "))
		}
		out = append(out, func() { st.SetStyle(v) })
	}
	if p.TransformedImage != nil {
		v := strings.TrimSpace(*p.TransformedImage)
		out = append(out, func() { st.SetTransformedImage(v) })
	}
	if p.Orientation != nil {
		o := order.Orientation(*p.Orientation)
		if o != order.OrientationPortrait && o != order.OrientationLandscape {
			return nil, invalidOption("unknown orientation " + *p.Orientation)
		}
		out = append(out, func() { st.SetOrientation(o) })
	}
	if p.Size != nil {
		v, err := pricing.ParseSize(*p.Size)
		if err != nil {
			return nil, invalidOption(err.Error())
		}
		out = append(out, func() { st.SetSize(v) })
	}
	if p.Paper != nil {
		v, err := pricing.ParsePaper(*p.Paper)
		if err != nil {
			return nil, invalidOption(err.Error())
		}
		out = append(out, func() { st.SetPaper(v) })
	}
	if p.Frame != nil {
		v, err := pricing.ParseFrame(*p.Frame)
		if err != nil {
			return nil, invalidOption(err.Error())
		}
		out = append(out, func() { st.SetFrame(v) })
	}
	if p.Gift != nil {
		g := *p.Gift
		out = append(out, func() { st.SetGift(g.IsGift, g.Message, g.HidePrice) })
	}
	if p.Recipient != nil {
		rc := *p.Recipient
		out = append(out, func() { st.SetRecipient(&rc) })
	}
	if p.ScheduledDeliveryDate != nil {
		d, err := convert.ParseDate(*p.ScheduledDeliveryDate)
		if err != nil {
			return nil, errs.WithCode(errs.ErrInvalidInput, "INVALID_DATE", err.Error())
		}
		if d.IsZero() {
			out = append(out, func() { st.SetScheduledDeliveryDate(nil) })
		} else {
			if !st.IsValidDeliveryDate(d) {
				return nil, errs.WithCode(errs.ErrInvalidInput, "INVALID_DATE",
					"Delivery date must be a business day between "+st.MinDeliveryDate().Format(convert.DateLayout)+
						" and "+st.MaxDeliveryDate().Format(convert.DateLayout))
			}
			out = append(out, func() { st.SetScheduledDeliveryDate(&d) })
		}
	}
	if p.Step != nil {
		step := order.Step(*p.Step)
		if !slices.Contains(order.Steps, step) {
			return nil, invalidOption("unknown step " + *p.Step)
		}
		out = append(out, func() { st.SetStep(step) })
	}
	n := min(max(p.Advance, -len(order.Steps)), len(order.Steps))
	for ; n > 0; n-- {
		out = append(out, st.NextStep)
	}
	for ; n < 0; n++ {
		out = append(out, st.PrevStep)
	}
	return out, nil
}
