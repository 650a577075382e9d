package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/footprint-prints/footprint/internal/pricing"
	"github.com/footprint-prints/footprint/internal/service"
)

func Test_cmdPrice(t *testing.T) {
	t.Parallel()

	b, err := cmdPrice(nil)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if b.Subtotal != 129 || b.Shipping != pricing.DefaultShippingCost || b.Total != 158 {
		t.Fatalf("defaults: %+v", b)
	}

	b, err = cmdPrice([]string{"-size", "A3", "-paper", "glossy", "-frame", "black", "-shipping", "0", "-discount", "1000"})
	if err != nil {
		t.Fatalf("custom: %v", err)
	}
	if b.Subtotal != 179+20+79 || b.Discount != b.Subtotal || b.Total != 0 {
		t.Fatalf("discount must clamp to subtotal: %+v", b)
	}

	if _, err := cmdPrice([]string{"-size", "A0"}); err == nil {
		t.Fatalf("unknown size should error")
	}
	if _, err := cmdPrice([]string{"-nope"}); err == nil {
		t.Fatalf("unknown flag should error")
	}
}

func Test_cmdQuote_FreeShippingAndCode(t *testing.T) {
	t.Parallel()

	q, err := cmdQuote([]string{"-size", "A2", "-paper", "canvas", "-frame", "oak", "-code", " flat50 "})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.FreeShipping || q.Pricing.Shipping != 0 {
		t.Fatalf("398 should ship free: %+v", q)
	}
	if q.Discount == nil || !q.Discount.Valid || q.Pricing.Discount != 50 || q.Pricing.Total != 348 {
		t.Fatalf("FLAT50: %+v %+v", q.Pricing, q.Discount)
	}

	if _, err := cmdQuote([]string{"-region", "mars"}); err == nil {
		t.Fatalf("unknown region should error")
	}
}

func Test_cmdDiscount(t *testing.T) {
	t.Parallel()

	r, err := cmdDiscount([]string{"-code", "FLAT50", "-subtotal", "150"})
	if err != nil {
		t.Fatalf("discount: %v", err)
	}
	if r.Valid || r.Error == "" {
		t.Fatalf("FLAT50 below its minimum should be rejected: %+v", r)
	}
	if _, err := cmdDiscount([]string{"-subtotal", "150"}); err == nil {
		t.Fatalf("missing code should error")
	}
}

func Test_cmdShipping(t *testing.T) {
	t.Parallel()

	s, err := cmdShipping([]string{"-region", "international", "-method", "express"})
	if err != nil {
		t.Fatalf("shipping: %v", err)
	}
	if s.Cost != 129 || s.Estimate.MinDays != 3 || s.Estimate.MaxDays != 5 || s.EstimateText == "" {
		t.Fatalf("shipping: %+v", s)
	}
}

func Test_cmdStyles(t *testing.T) {
	t.Parallel()

	rows, err := cmdStyles(nil)
	if err != nil || len(rows) != 8 {
		t.Fatalf("default catalog: %v %v", rows, err)
	}

	path := filepath.Join(t.TempDir(), "styles.yaml")
	_ = os.WriteFile(path, []byte("styles:\n  - id: mosaic\n    prompt: Tiles.\n  - id: vintage\n    references: [https://cdn/r1.jpg]\n"), 0o600)
	rows, err = cmdStyles([]string{"-file", path})
	if err != nil || len(rows) != 9 {
		t.Fatalf("overlay: %v %v", rows, err)
	}
	for _, r := range rows {
		if r.ID == "mosaic" && r.Name != "mosaic" {
			t.Fatalf("new style name should default to id: %+v", r)
		}
		if r.ID == "vintage" && r.References != 1 {
			t.Fatalf("vintage refs: %+v", r)
		}
	}
}

func Test_cmdToken_MintAndSave(t *testing.T) {
	_ = withTmpConfig(t)

	exp, err := cmdToken("mint", []string{"-secret", "s3cret", "-user", "admin-1", "-role", "admin", "-ttl", "10m"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if time.Until(exp) < 9*time.Minute {
		t.Fatalf("exp too soon: %v", exp)
	}
	tok, err := loadToken()
	if err != nil {
		t.Fatalf("loadToken: %v", err)
	}
	p, err := service.NewAuthService([]byte("s3cret")).Authenticate(tok)
	if err != nil || p.UserID != "admin-1" || !p.IsAdmin() {
		t.Fatalf("minted token: %+v %v", p, err)
	}

	path := filepath.Join(t.TempDir(), "tok")
	_ = os.WriteFile(path, []byte(tok+"\n"), 0o600)
	if _, err := cmdToken("save", []string{"-file", path}); err != nil {
		t.Fatalf("save -file: %v", err)
	}
	if got, _ := loadToken(); got != tok {
		t.Fatalf("saved token mismatch")
	}

	if _, err := cmdToken("save", nil); err == nil {
		t.Fatalf("save without token should error")
	}
	if _, err := cmdToken("save", []string{"-token", "garbage"}); err == nil {
		t.Fatalf("unparsable token should error")
	}
	if _, err := cmdToken("rotate", nil); err == nil {
		t.Fatalf("unknown subcommand should error")
	}
}

func Test_choose(t *testing.T) {
	t.Parallel()
	if choose("a", "b") != "a" {
		t.Fatalf("choose a")
	}
	if choose("", "b") != "b" {
		t.Fatalf("choose b")
	}
}

func Test_withTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := withTimeout()
	defer cancel()
	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("deadline not set")
	}
	if rem := time.Until(dl); rem < 115*time.Second || rem > 2*time.Minute {
		t.Fatalf("unexpected timeout window: %v", rem)
	}
}
