package httpserver

import (
	"context"

	"github.com/footprint-prints/footprint/internal/service"
)

type ctxKey string

const principalKey ctxKey = "fp.principal"

// WithPrincipal stores the caller in context.
func WithPrincipal(ctx context.Context, p service.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromCtx fetches the caller from context; callers without one are anonymous.
func PrincipalFromCtx(ctx context.Context) (service.Principal, bool) {
	v := ctx.Value(principalKey)
	if v == nil {
		return service.Anonymous, false
	}
	p, ok := v.(service.Principal)
	if !ok {
		return service.Anonymous, false
	}
	return p, true
}
