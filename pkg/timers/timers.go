// Package timers accumulates named time intervals marked anywhere in an
// application and summarizes them per name.
//
// A single *Timers is shared by every call site that wants to contribute.
// Intervals may be nested and may be opened from any number of goroutines:
//
//	timings := timers.New()
//	timings.Time(ctx, "walltime", func(ctx context.Context) error {
//		for i := 0; i < count; i++ {
//			timings.Time(ctx, "reading", readChunk)
//			timings.Time(ctx, "computation", compute)
//		}
//		return nil
//	})
//	summary := timings.Summary()
//
// All times are in seconds. The nesting stack of open intervals travels in the
// context.Context, so each goroutine (or request) carries its own stack and
// only the final append of a closed interval touches shared state.
package timers

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
)

// Record is one closed interval. End is never before Start.
type Record struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Duration returns End - Start in seconds.
func (r Record) Duration() float64 {
	return r.End - r.Start
}

// Hook observes intervals as they open and close. Begin may return a derived
// context (for example one carrying a trace span); that context is handed
// back to End for the same interval. End runs after the record is visible
// and outside the accumulator lock.
type Hook interface {
	Begin(ctx context.Context, name string) context.Context
	End(ctx context.Context, name string, rec Record)
}

// Timers manages multiple named timers. For each name it keeps the list of
// (start, end) pairs of every completed interval, in completion order.
//
// The zero value is ready to use with the default clock.
type Timers struct {
	mu    sync.Mutex
	pairs map[string][]Record

	clock   Clock
	hooks   []Hook
	onError func(error)

	active atomic.Int64
}

// Option configures a Timers.
type Option func(*Timers)

// WithClock overrides the clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(t *Timers) {
		t.clock = c
	}
}

// WithHooks registers interval observers. Begin hooks run in registration
// order, End hooks in reverse order.
func WithHooks(hooks ...Hook) Option {
	return func(t *Timers) {
		for _, h := range hooks {
			if h != nil {
				t.hooks = append(t.hooks, h)
			}
		}
	}
}

// WithErrorHandler sets the function that receives errors the defer form of
// Interval has no way to return. The default logs them.
func WithErrorHandler(fn func(error)) Option {
	return func(t *Timers) {
		t.onError = fn
	}
}

// New creates an empty accumulator.
func New(opts ...Option) *Timers {
	t := &Timers{
		pairs: make(map[string][]Record),
		clock: defaultClock,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// append makes rec visible under name. The lock covers one append only.
func (t *Timers) append(name string, rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pairs == nil {
		t.pairs = make(map[string][]Record)
	}
	t.pairs[name] = append(t.pairs[name], rec)
}

func (t *Timers) reportError(err error) {
	if t.onError != nil {
		t.onError(err)
		return
	}
	log.Printf("timinghooks: %v", err)
}

// Durations returns the durations of every recorded interval for name, in
// completion order. ok is false when nothing was recorded under name.
func (t *Timers) Durations(name string) (durations []float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	recs := t.pairs[name]
	if len(recs) == 0 {
		return nil, false
	}
	durations = make([]float64, len(recs))
	for i, r := range recs {
		durations[i] = r.Duration()
	}
	return durations, true
}

// Count returns the number of closed intervals recorded under name.
func (t *Timers) Count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pairs[name])
}

// Names returns every name with at least one record, sorted.
func (t *Timers) Names() []string {
	t.mu.Lock()
	names := make([]string, 0, len(t.pairs))
	for name, recs := range t.pairs {
		if len(recs) > 0 {
			names = append(names, name)
		}
	}
	t.mu.Unlock()

	sort.Strings(names)
	return names
}

// Active returns the number of intervals that have been opened and not yet
// closed. A value that keeps growing points at a missing End.
func (t *Timers) Active() int {
	return int(t.active.Load())
}

// Reset discards every recorded interval. Intervals still open are not
// affected and will be recorded when they close.
func (t *Timers) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pairs = make(map[string][]Record)
}
