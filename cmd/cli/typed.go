package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/footprint-prints/footprint/internal/convert"
	"github.com/footprint-prints/footprint/internal/pricing"
	"github.com/footprint-prints/footprint/internal/service"
	"github.com/footprint-prints/footprint/internal/styles"
)

// newFlagSet returns a subcommand flag set that reports errors to the caller.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// ------- local price tables -------

func cmdPrice(args []string) (pricing.PriceBreakdown, error) {
	fs := newFlagSet("price")
	size := fs.String("size", string(pricing.SizeA4), "print size")
	paper := fs.String("paper", string(pricing.PaperMatte), "paper type")
	frame := fs.String("frame", string(pricing.FrameNone), "frame type")
	ship := fs.Int("shipping", -1, "shipping cost (default table value when negative)")
	disc := fs.Int("discount", 0, "discount amount")
	if err := fs.Parse(args); err != nil {
		return pricing.PriceBreakdown{}, err
	}

	in := pricing.PriceInput{Discount: pricing.Int(*disc)}
	var err error
	if in.Size, err = pricing.ParseSize(*size); err != nil {
		return pricing.PriceBreakdown{}, err
	}
	if in.Paper, err = pricing.ParsePaper(*paper); err != nil {
		return pricing.PriceBreakdown{}, err
	}
	if in.Frame, err = pricing.ParseFrame(*frame); err != nil {
		return pricing.PriceBreakdown{}, err
	}
	if *ship >= 0 {
		in.ShippingCost = pricing.Int(*ship)
	}
	return pricing.CalculatePrice(in), nil
}

func cmdQuote(args []string) (pricing.CheckoutQuote, error) {
	fs := newFlagSet("quote")
	var q convert.QuoteRequest
	fs.StringVar(&q.Size, "size", "", "print size")
	fs.StringVar(&q.Paper, "paper", "", "paper type")
	fs.StringVar(&q.Frame, "frame", "", "frame type")
	fs.StringVar(&q.Region, "region", "", "shipping region")
	fs.StringVar(&q.Method, "method", "", "shipping method")
	fs.StringVar(&q.DiscountCode, "code", "", "discount code")
	if err := fs.Parse(args); err != nil {
		return pricing.CheckoutQuote{}, err
	}
	in, err := convert.FromQuoteRequest(q)
	if err != nil {
		return pricing.CheckoutQuote{}, err
	}
	return pricing.QuoteCheckout(in, nil), nil
}

func cmdDiscount(args []string) (pricing.DiscountResult, error) {
	fs := newFlagSet("discount")
	code := fs.String("code", "", "discount code")
	subtotal := fs.Int("subtotal", 0, "order subtotal")
	if err := fs.Parse(args); err != nil {
		return pricing.DiscountResult{}, err
	}
	if strings.TrimSpace(*code) == "" {
		return pricing.DiscountResult{}, errors.New("need -code")
	}
	return pricing.ApplyDiscount(*code, *subtotal), nil
}

func cmdShipping(args []string) (convert.Shipping, error) {
	fs := newFlagSet("shipping")
	region := fs.String("region", "", "israel or international")
	method := fs.String("method", "", "standard or express")
	if err := fs.Parse(args); err != nil {
		return convert.Shipping{}, err
	}
	r, err := pricing.ParseRegion(*region)
	if err != nil {
		return convert.Shipping{}, err
	}
	m, err := pricing.ParseMethod(*method)
	if err != nil {
		return convert.Shipping{}, err
	}
	return convert.ToShipping(r, m), nil
}

type styleRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	References int    `json:"references"`
}

func cmdStyles(args []string) ([]styleRow, error) {
	fs := newFlagSet("styles")
	file := fs.String("file", "", "YAML style overrides")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	catalog := styles.Default()
	if *file != "" {
		var err error
		if catalog, err = styles.LoadFile(*file); err != nil {
			return nil, err
		}
	}
	rows := make([]styleRow, 0, len(catalog.IDs()))
	for _, id := range catalog.IDs() {
		s, _ := catalog.Get(id)
		rows = append(rows, styleRow{ID: id, Name: choose(s.Name, id), References: len(s.References)})
	}
	return rows, nil
}

// ------- token -------

// cmdToken stores a bearer token, either given (save) or signed locally (mint).
func cmdToken(sub string, args []string) (time.Time, error) {
	switch sub {
	case "save":
		fs := newFlagSet("token save")
		tok := fs.String("token", "", "access token")
		file := fs.String("file", "", "read the token from a file ('-'=stdin)")
		if err := fs.Parse(args); err != nil {
			return time.Time{}, err
		}
		if *tok == "" && *file != "" {
			b, err := readAll(*file)
			if err != nil {
				return time.Time{}, err
			}
			*tok = strings.TrimSpace(string(b))
		}
		if *tok == "" {
			return time.Time{}, errors.New("need -token or -file")
		}
		exp, err := tokenExpiry(*tok)
		if err != nil {
			return time.Time{}, err
		}
		return exp, saveToken(*tok, exp)

	case "mint":
		fs := newFlagSet("token mint")
		secret := fs.String("secret", "", "HS256 secret (SUPABASE_JWT_SECRET)")
		user := fs.String("user", "", "user id")
		role := fs.String("role", "", "app role, e.g. admin")
		ttl := fs.Duration("ttl", time.Hour, "token lifetime")
		if err := fs.Parse(args); err != nil {
			return time.Time{}, err
		}
		key := choose(*secret, envOr("SUPABASE_JWT_SECRET", ""))
		if key == "" {
			return time.Time{}, errors.New("need -secret or SUPABASE_JWT_SECRET")
		}
		tok, exp, err := service.NewAuthService([]byte(key)).Issue(*user, *role, *ttl)
		if err != nil {
			return time.Time{}, err
		}
		return exp, saveToken(tok, exp)
	}
	return time.Time{}, fmt.Errorf("unknown token command %q (save|mint)", sub)
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}

func choose(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
