package timers

import (
	"errors"
	"fmt"
)

var (
	// ErrClockUnavailable is returned when the clock cannot be read.
	// No record is written and no interval is opened or closed.
	ErrClockUnavailable = errors.New("timers: clock unavailable")

	// ErrInvalidHandle is returned when End receives a nil handle or one
	// that was opened by a different accumulator.
	ErrInvalidHandle = errors.New("timers: invalid interval handle")

	// ErrScopeReuse is returned when a handle is closed a second time.
	// errors.Is(ErrScopeReuse, ErrInvalidHandle) reports true.
	ErrScopeReuse = fmt.Errorf("%w: interval already closed", ErrInvalidHandle)

	// ErrInvalidState is returned when imported state holds records that
	// could not have been produced by an accumulator.
	ErrInvalidState = errors.New("timers: invalid state")
)
