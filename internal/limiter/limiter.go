// Package limiter bounds the number of in-flight transformations per user.
package limiter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/footprint-prints/footprint/internal/errs"
)

// DefaultMaxConcurrent is the per-user cap on in-flight transformations.
const DefaultMaxConcurrent = 3

// releaseTimeout bounds the release call made after the request context may be gone.
const releaseTimeout = 5 * time.Second

// Limiter hands out per-user concurrency slots.
type Limiter interface {
	// Acquire takes a slot for userID. allowed is false when the cap is reached;
	// count is the number of slots held after the call.
	Acquire(ctx context.Context, userID string) (allowed bool, count int64, err error)
	// Release returns a slot previously taken by Acquire.
	Release(ctx context.Context, userID string) error
}

// WithSlot runs fn while holding one of userID's slots and returns
// errs.ErrConcurrentLimit when none is free. The slot is released exactly once
// on every exit path of fn, panics included, using a context that survives
// cancellation of ctx.
//
// A limiter error admits the request without a slot.
func WithSlot(ctx context.Context, lim Limiter, userID string, log *zap.Logger, fn func(ctx context.Context) error) error {
	if log == nil {
		log = zap.NewNop()
	}
	allowed, count, err := lim.Acquire(ctx, userID)
	if err != nil {
		log.Warn("concurrency limiter unavailable, admitting", zap.String("user", userID), zap.Error(err))
		return fn(ctx)
	}
	if !allowed {
		log.Info("concurrency limit reached", zap.String("user", userID), zap.Int64("count", count))
		return errs.WithCode(errs.ErrConcurrentLimit, "CONCURRENT_LIMIT",
			"Too many concurrent transformations. Please wait for one to finish.")
	}

	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lim.Release(rctx, userID); err != nil {
			log.Error("release concurrency slot", zap.String("user", userID), zap.Error(err))
		}
	}()
	return fn(ctx)
}
