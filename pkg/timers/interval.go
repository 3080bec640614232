package timers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Handle is an open interval returned by Begin. It moves from open to closed
// exactly once; closing it again fails with ErrScopeReuse.
type Handle struct {
	owner  *Timers
	name   string
	start  float64
	parent *Handle
	depth  int

	// hookCtx is the context produced by the Begin hooks
	hookCtx context.Context
	closed  atomic.Bool
}

// Name returns the operation name the interval was opened with.
func (h *Handle) Name() string { return h.name }

// Start returns the clock reading taken when the interval was opened.
func (h *Handle) Start() float64 { return h.start }

// Depth returns the nesting level of the interval within the context chain it
// was opened from. Top-level intervals have depth 0.
func (h *Handle) Depth() int { return h.depth }

// Closed reports whether End has succeeded for this handle.
func (h *Handle) Closed() bool { return h.closed.Load() }

// End closes the interval. See Timers.End.
func (h *Handle) End() error {
	if h == nil || h.owner == nil {
		return ErrInvalidHandle
	}
	return h.owner.End(h)
}

// handleKey scopes the context value to one accumulator, so intervals of
// different accumulators nest independently.
type handleKey struct {
	t *Timers
}

func (t *Timers) current(ctx context.Context) *Handle {
	if ctx == nil {
		return nil
	}
	h, _ := ctx.Value(handleKey{t}).(*Handle)
	return h
}

// Begin opens an interval named name. The returned context carries the new
// interval on top of the nesting stack found in ctx; pass it to code that
// opens nested intervals. The handle must be passed to End exactly once.
//
// Most callers should use Time or Interval, which guarantee the close.
func (t *Timers) Begin(ctx context.Context, name string) (context.Context, *Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start, err := t.now()
	if err != nil {
		return ctx, nil, fmt.Errorf("begin %q: %w", name, err)
	}

	h := &Handle{
		owner:  t,
		name:   name,
		start:  start,
		parent: t.current(ctx),
	}
	if h.parent != nil {
		h.depth = h.parent.depth + 1
	}

	for _, hook := range t.hooks {
		ctx = hook.Begin(ctx, name)
	}
	h.hookCtx = ctx

	t.active.Add(1)
	return context.WithValue(ctx, handleKey{t}, h), h, nil
}

// End closes h and records (start, now) under its name. The append is atomic
// with respect to every other caller: readers see either no record or the
// complete one.
//
// A nil handle or one from another accumulator fails with ErrInvalidHandle,
// a handle that is already closed fails with ErrScopeReuse. If the clock
// cannot be read the handle stays open and End may be retried.
func (t *Timers) End(h *Handle) error {
	if t == nil || h == nil || h.owner != t {
		return ErrInvalidHandle
	}
	if h.closed.Load() {
		return fmt.Errorf("end %q: %w", h.name, ErrScopeReuse)
	}

	end, err := t.now()
	if err != nil {
		return fmt.Errorf("end %q: %w", h.name, err)
	}
	if !h.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("end %q: %w", h.name, ErrScopeReuse)
	}

	// a clock that steps backwards must not produce a negative duration
	if end < h.start {
		end = h.start
	}
	rec := Record{Start: h.start, End: end}
	t.append(h.name, rec)
	t.active.Add(-1)

	for i := len(t.hooks) - 1; i >= 0; i-- {
		t.hooks[i].End(h.hookCtx, h.name, rec)
	}
	return nil
}

// Time runs fn inside an interval named name. The interval is closed exactly
// once however fn exits: normal return, returned error, panic or
// runtime.Goexit. The error from fn is returned unchanged, joined with the
// close error if closing failed.
func (t *Timers) Time(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	ctx, h, err := t.Begin(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if endErr := h.End(); endErr != nil {
			err = errors.Join(err, endErr)
		}
	}()

	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Interval opens an interval and returns the nested context together with
// the function that closes it, for use with defer:
//
//	ctx, done := timings.Interval(ctx, "reading")
//	defer done()
//
// Errors (an unreadable clock, calling done twice) go to the error handler
// configured with WithErrorHandler.
func (t *Timers) Interval(ctx context.Context, name string) (context.Context, func()) {
	ctx, h, err := t.Begin(ctx, name)
	if err != nil {
		t.reportError(err)
		return ctx, func() {}
	}
	return ctx, func() {
		if err := h.End(); err != nil {
			t.reportError(err)
		}
	}
}

// Depth returns the number of intervals of t still open in ctx.
func (t *Timers) Depth(ctx context.Context) int {
	n := 0
	for h := t.current(ctx); h != nil; h = h.parent {
		if !h.Closed() {
			n++
		}
	}
	return n
}

// Path returns the names of the intervals of t still open in ctx, outermost
// first.
func (t *Timers) Path(ctx context.Context) []string {
	var path []string
	for h := t.current(ctx); h != nil; h = h.parent {
		if !h.Closed() {
			path = append(path, h.name)
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
