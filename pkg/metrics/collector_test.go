package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/psantana5/timinghooks/pkg/timers"
)

func TestCollector(t *testing.T) {
	timings, err := timers.FromState(timers.State{
		"reading":     {{Start: 0, End: 1}, {Start: 3, End: 4}},
		"computation": {{Start: 1, End: 3}},
	})
	if err != nil {
		t.Fatalf("FromState failed: %v", err)
	}
	c := NewCollector("", timings)

	// two names x (count + total + four stats) + active gauge
	if got := testutil.CollectAndCount(c); got != 13 {
		t.Errorf("CollectAndCount = %d, expected 13", got)
	}
	if got := testutil.CollectAndCount(c, "timinghooks_interval_count"); got != 2 {
		t.Errorf("interval_count series = %d, expected 2", got)
	}
}

func TestCollector_EmptyAccumulator(t *testing.T) {
	c := NewCollector("app", timers.New())
	if got := testutil.CollectAndCount(c); got != 1 {
		t.Errorf("CollectAndCount = %d, expected only the active gauge", got)
	}
}

func TestSummaryCollector(t *testing.T) {
	summary := timers.Summary{"reading": {Count: 3, Total: 3, Min: 1, Max: 1, Mean: 1, Median: 1}}
	c := NewSummaryCollector("", summary)

	if got := testutil.CollectAndCount(c); got != 6 {
		t.Errorf("CollectAndCount = %d, expected 6", got)
	}
	expected := `
# HELP timinghooks_interval_count Number of closed intervals by operation name
# TYPE timinghooks_interval_count counter
timinghooks_interval_count{name="reading"} 3
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "timinghooks_interval_count"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestHandler(t *testing.T) {
	timings := timers.New()
	timings.Time(context.Background(), "reading", nil)

	srv := httptest.NewServer(Handler(NewRegistry(NewCollector("", timings))))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`timinghooks_interval_count{name="reading"} 1`,
		`timinghooks_interval_seconds{name="reading",stat="max"}`,
		`timinghooks_active_intervals 0`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("response does not contain %q:\n%s", want, body)
		}
	}
}
