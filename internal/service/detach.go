package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/footprint-prints/footprint/internal/model"
)

// detach runs fn in the background with its own timeout. Its outcome is logged
// and never reaches the request that started it.
func (s *TransformServiceImpl) detach(name string, fn func(ctx context.Context) error) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("detached task panic", zap.String("task", name), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DetachTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warn("detached task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// fail records a failed attempt. It runs on a context detached from the
// request, and its own errors are only logged.
func (s *TransformServiceImpl) fail(ctx context.Context, log *zap.Logger, id uuid.UUID, msg string, start time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("record failure panic", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DetachTimeout)
	defer cancel()

	err := s.ledger.Fail(fctx, id, model.FailParams{
		ErrorMessage:     msg,
		ProcessingTimeMs: s.now().Sub(start).Milliseconds(),
	})
	if err != nil {
		log.Warn("record transformation failure", zap.Error(err))
	}
}
