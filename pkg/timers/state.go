package timers

import (
	"encoding/json"
	"fmt"
	"math"
)

// State is the plain form of an accumulator: every closed interval grouped
// by name, in completion order. It is what Export produces and FromState
// consumes, and it encodes to JSON or YAML as
//
//	{"reading": [{"start": 12.5, "end": 13.5}, ...], ...}
type State map[string][]Record

// Records returns the total number of records across all names.
func (s State) Records() int {
	n := 0
	for _, recs := range s {
		n += len(recs)
	}
	return n
}

// Validate checks that every record is finite and ends no earlier than it
// starts.
func (s State) Validate() error {
	for name, recs := range s {
		for i, r := range recs {
			if !finite(r.Start) || !finite(r.End) {
				return fmt.Errorf("%w: %q record %d is not finite", ErrInvalidState, name, i)
			}
			if r.End < r.Start {
				return fmt.Errorf("%w: %q record %d ends before it starts", ErrInvalidState, name, i)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of s without empty record lists.
func (s State) Clone() State {
	out := make(State, len(s))
	for name, recs := range s {
		if len(recs) == 0 {
			continue
		}
		cp := make([]Record, len(recs))
		copy(cp, recs)
		out[name] = cp
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Export returns a deep copy of every closed interval. Intervals still open
// are not part of the state.
func (t *Timers) Export() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State(t.pairs).Clone()
}

// Drain returns the recorded intervals and clears them in one step, so no
// record closed concurrently is lost between an Export and a Reset.
func (t *Timers) Drain() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := State(t.pairs)
	t.pairs = make(map[string][]Record)
	return s.Clone()
}

// FromState builds an accumulator holding the records in s.
func FromState(s State, opts ...Option) (*Timers, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	t := New(opts...)
	t.pairs = s.Clone()
	return t, nil
}

// MergeState appends the records in s to t. Nothing is merged if s is
// invalid.
func (t *Timers) MergeState(s State) error {
	if err := s.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pairs == nil {
		t.pairs = make(map[string][]Record)
	}
	for name, recs := range s {
		if len(recs) == 0 {
			continue
		}
		t.pairs[name] = append(t.pairs[name], recs...)
	}
	return nil
}

// Merge appends every record of other to t. Merging an accumulator into
// itself doubles its records.
func (t *Timers) Merge(other *Timers) {
	if other == nil {
		return
	}
	// other is copied before t is locked, so the two locks are never held
	// together.
	_ = t.MergeState(other.Export())
}

// MarshalJSON encodes the exported state.
func (t *Timers) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Export())
}

// UnmarshalJSON replaces the recorded intervals with the decoded state.
// Clock, hooks and open intervals are left as they are.
func (t *Timers) UnmarshalJSON(data []byte) error {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := s.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pairs = s.Clone()
	return nil
}
