package logging

import (
	"context"

	"github.com/psantana5/timinghooks/pkg/timers"
)

// IntervalHook logs every closed interval at DEBUG level.
type IntervalHook struct {
	logger *Logger
}

// NewIntervalHook returns a timers.Hook that writes to logger
func NewIntervalHook(logger *Logger) *IntervalHook {
	return &IntervalHook{logger: logger}
}

// Begin implements timers.Hook
func (h *IntervalHook) Begin(ctx context.Context, name string) context.Context {
	return ctx
}

// End implements timers.Hook
func (h *IntervalHook) End(ctx context.Context, name string, rec timers.Record) {
	if h.logger.Level() > DEBUG {
		return
	}
	h.logger.Debug("interval closed", map[string]interface{}{
		"interval":         name,
		"duration_seconds": rec.Duration(),
	})
}
