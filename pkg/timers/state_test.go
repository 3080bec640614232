package timers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func populated(t *testing.T) *Timers {
	t.Helper()
	clock := &fakeClock{now: 100}
	timings := New(WithClock(clock))
	ctx := context.Background()
	timings.Time(ctx, "walltime", func(ctx context.Context) error {
		for i := 0; i < 3; i++ {
			timings.Time(ctx, "reading", func(context.Context) error {
				clock.Advance(1)
				return nil
			})
			timings.Time(ctx, "computation", func(context.Context) error {
				clock.Advance(2 + float64(i))
				return nil
			})
		}
		return nil
	})
	return timings
}

func TestState_RoundTrip(t *testing.T) {
	original := populated(t)

	restored, err := FromState(original.Export())
	if err != nil {
		t.Fatalf("FromState failed: %v", err)
	}
	if !reflect.DeepEqual(original.Summary(), restored.Summary()) {
		t.Errorf("summaries differ after round trip:\n%+v\n%+v", original.Summary(), restored.Summary())
	}
}

func TestState_JSONRoundTrip(t *testing.T) {
	original := populated(t)

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var restored Timers
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(original.Export(), restored.Export()) {
		t.Errorf("state differs after JSON round trip")
	}
	if !reflect.DeepEqual(original.Summary(), restored.Summary()) {
		t.Errorf("summary differs after JSON round trip")
	}

	// the restored accumulator keeps working
	if err := restored.Time(context.Background(), "reading", nil); err != nil {
		t.Fatalf("Time on restored accumulator failed: %v", err)
	}
	if got := restored.Count("reading"); got != 4 {
		t.Errorf("Count(reading) = %d, expected 4", got)
	}
}

func TestState_JSONShape(t *testing.T) {
	data, err := json.Marshal(State{"x": {{Start: 1, End: 2.5}}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	expected := `{"x":[{"start":1,"end":2.5}]}`
	if string(data) != expected {
		t.Errorf("JSON = %s, expected %s", data, expected)
	}
}

func TestState_YAMLRoundTrip(t *testing.T) {
	state := populated(t).Export()

	data, err := yaml.Marshal(state)
	if err != nil {
		t.Fatalf("yaml.Marshal failed: %v", err)
	}
	var decoded State
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(state, decoded) {
		t.Errorf("state differs after YAML round trip:\n%v\n%v", state, decoded)
	}
}

func TestState_Validate(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"zero length", State{"x": {{Start: 1, End: 1}}}, true},
		{"reversed", State{"x": {{Start: 2, End: 1}}}, false},
		{"nan", State{"x": {{Start: math.NaN(), End: 1}}}, false},
		{"inf", State{"x": {{Start: 0, End: math.Inf(1)}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, expected nil", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidState) {
				t.Errorf("Validate() = %v, expected ErrInvalidState", err)
			}
		})
	}
}

func TestFromState_RejectsInvalid(t *testing.T) {
	if _, err := FromState(State{"x": {{Start: 5, End: 4}}}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("FromState error = %v, expected ErrInvalidState", err)
	}

	var timings Timers
	if err := json.Unmarshal([]byte(`{"x":[{"start":5,"end":4}]}`), &timings); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Unmarshal error = %v, expected ErrInvalidState", err)
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &timings); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Unmarshal of wrong shape = %v, expected ErrInvalidState", err)
	}
}

func TestExport_IsACopy(t *testing.T) {
	timings := populated(t)
	state := timings.Export()
	state["reading"][0].End = 1e9
	delete(state, "walltime")

	if timings.Count("walltime") != 1 {
		t.Error("deleting from the export changed the accumulator")
	}
	if d, _ := timings.Durations("reading"); d[0] > 10 {
		t.Error("modifying the export changed the accumulator")
	}
}

func TestMerge(t *testing.T) {
	a := populated(t)
	b := populated(t)

	a.Merge(b)
	if got := a.Count("reading"); got != 6 {
		t.Errorf("Count(reading) after merge = %d, expected 6", got)
	}
	if got := b.Count("reading"); got != 3 {
		t.Errorf("merge changed the source: Count(reading) = %d", got)
	}

	a.Merge(a)
	if got := a.Count("walltime"); got != 4 {
		t.Errorf("Count(walltime) after self merge = %d, expected 4", got)
	}

	a.Merge(nil)
	if got := a.Count("walltime"); got != 4 {
		t.Errorf("Merge(nil) changed the accumulator")
	}
}

func TestMergeState(t *testing.T) {
	timings := New()
	if err := timings.MergeState(State{"x": {{Start: 0, End: 1}}, "empty": {}}); err != nil {
		t.Fatalf("MergeState failed: %v", err)
	}
	if names := timings.Names(); len(names) != 1 || names[0] != "x" {
		t.Errorf("Names = %v, expected [x]", names)
	}

	bad := State{"x": {{Start: 0, End: 1}}, "y": {{Start: 1, End: 0}}}
	if err := timings.MergeState(bad); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MergeState error = %v, expected ErrInvalidState", err)
	}
	if got := timings.Count("x"); got != 1 {
		t.Errorf("invalid merge was partially applied: Count(x) = %d", got)
	}
}

func TestState_Records(t *testing.T) {
	if got := populated(t).Export().Records(); got != 7 {
		t.Errorf("Records() = %d, expected 7", got)
	}
}

func TestDrain(t *testing.T) {
	timings := populated(t)
	drained := timings.Drain()

	if got := drained.Records(); got != 7 {
		t.Errorf("drained %d records, expected 7", got)
	}
	if names := timings.Names(); len(names) != 0 {
		t.Errorf("Names after Drain = %v, expected none", names)
	}
	if err := timings.Time(context.Background(), "after", nil); err != nil {
		t.Fatalf("Time after Drain failed: %v", err)
	}
	if _, ok := drained["after"]; ok {
		t.Error("drained state shares storage with the accumulator")
	}
}
