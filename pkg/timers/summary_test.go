package timers

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name      string
		durations []float64
		expected  Stats
	}{
		{
			name:      "single",
			durations: []float64{2},
			expected:  Stats{Count: 1, Total: 2, Min: 2, Max: 2, Mean: 2, LowerQ: 2, Median: 2, UpperQ: 2},
		},
		{
			name:      "even count interpolates",
			durations: []float64{4, 1, 3, 2},
			expected: Stats{
				Count: 4, Total: 10, Min: 1, Max: 4, Mean: 2.5,
				StdDev: math.Sqrt(1.25),
				LowerQ: 1.75, Median: 2.5, UpperQ: 3.25,
			},
		},
		{
			name:      "odd count",
			durations: []float64{5, 1, 3},
			expected: Stats{
				Count: 3, Total: 9, Min: 1, Max: 5, Mean: 3,
				StdDev: math.Sqrt(8.0 / 3.0),
				LowerQ: 2, Median: 3, UpperQ: 4,
			},
		},
		{
			name:      "zero durations",
			durations: []float64{0, 0},
			expected:  Stats{Count: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeStats(tt.durations)
			if got.Count != tt.expected.Count {
				t.Errorf("Count = %d, expected %d", got.Count, tt.expected.Count)
			}
			checks := []struct {
				field     string
				got, want float64
			}{
				{"Total", got.Total, tt.expected.Total},
				{"Min", got.Min, tt.expected.Min},
				{"Max", got.Max, tt.expected.Max},
				{"Mean", got.Mean, tt.expected.Mean},
				{"StdDev", got.StdDev, tt.expected.StdDev},
				{"LowerQ", got.LowerQ, tt.expected.LowerQ},
				{"Median", got.Median, tt.expected.Median},
				{"UpperQ", got.UpperQ, tt.expected.UpperQ},
			}
			for _, c := range checks {
				if !almostEqual(c.got, c.want) {
					t.Errorf("%s = %v, expected %v", c.field, c.got, c.want)
				}
			}
		})
	}
}

func TestComputeStats_DoesNotReorderInput(t *testing.T) {
	durations := []float64{3, 1, 2}
	computeStats(durations)
	if !reflect.DeepEqual(durations, []float64{3, 1, 2}) {
		t.Errorf("input reordered to %v", durations)
	}
}

func TestSummary_Idempotent(t *testing.T) {
	clock := &fakeClock{}
	timings := New(WithClock(clock))
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		timings.Time(ctx, "op", func(context.Context) error {
			clock.Advance(float64(i) / 10)
			return nil
		})
	}

	first := timings.Summary()
	second := timings.Summary()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("summaries differ:\n%+v\n%+v", first, second)
	}
	if got := timings.Count("op"); got != 5 {
		t.Errorf("Summary changed the record count to %d", got)
	}
}

func TestSummary_NonNegative(t *testing.T) {
	timings := New()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		timings.Time(ctx, "fast", nil)
	}

	for name, s := range timings.Summary() {
		for field, v := range map[string]float64{
			"total": s.Total, "min": s.Min, "max": s.Max, "mean": s.Mean,
			"stddev": s.StdDev, "lowerq": s.LowerQ, "median": s.Median, "upperq": s.UpperQ,
		} {
			if v < 0 {
				t.Errorf("%s.%s = %v, expected >= 0", name, field, v)
			}
		}
	}
}

func TestSummarize_OmitsEmptyNames(t *testing.T) {
	summary := Summarize(State{
		"empty": {},
		"nil":   nil,
		"one":   {{Start: 1, End: 2}},
	})

	if len(summary) != 1 {
		t.Fatalf("summary = %+v, expected only %q", summary, "one")
	}
	if _, ok := summary["empty"]; ok {
		t.Error("summary includes a name without records")
	}
	if names := summary.Names(); len(names) != 1 || names[0] != "one" {
		t.Errorf("Names = %v, expected [one]", names)
	}
}

func TestTimers_Stats(t *testing.T) {
	clock := &fakeClock{}
	timings := New(WithClock(clock))
	timings.Time(context.Background(), "x", func(context.Context) error {
		clock.Advance(3)
		return nil
	})

	s, ok := timings.Stats("x")
	if !ok || s.Count != 1 || !almostEqual(s.Mean, 3) {
		t.Errorf("Stats(x) = %+v, %v; expected one 3s record", s, ok)
	}
	if _, ok := timings.Stats("y"); ok {
		t.Error("Stats(y) reported ok for an unknown name")
	}
}
