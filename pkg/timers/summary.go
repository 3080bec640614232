package timers

import (
	"math"
	"sort"
)

// Stats are the summary statistics of one name. All values except Count are
// in seconds. The JSON/YAML keys are consumed by report generators and must
// not change.
type Stats struct {
	Count  int     `json:"count" yaml:"count"`
	Total  float64 `json:"total" yaml:"total"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
	LowerQ float64 `json:"lowerq" yaml:"lowerq"`
	Median float64 `json:"median" yaml:"median"`
	UpperQ float64 `json:"upperq" yaml:"upperq"`
}

// Summary maps operation names to their statistics. Names without any
// record are never present.
type Summary map[string]Stats

// Names returns the names in s, sorted.
func (s Summary) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary computes statistics for every name recorded so far. It copies the
// records under the lock and computes outside it, so it never holds up
// writers for longer than the copy. Intervals still open are not included.
func (t *Timers) Summary() Summary {
	return Summarize(t.Export())
}

// Stats computes the statistics of a single name.
func (t *Timers) Stats(name string) (Stats, bool) {
	durations, ok := t.Durations(name)
	if !ok {
		return Stats{}, false
	}
	return computeStats(durations), true
}

// Summarize computes statistics for a plain state. Names with an empty record
// list are left out.
func Summarize(state State) Summary {
	summary := make(Summary, len(state))
	for name, recs := range state {
		if len(recs) == 0 {
			continue
		}
		durations := make([]float64, len(recs))
		for i, r := range recs {
			durations[i] = r.Duration()
		}
		summary[name] = computeStats(durations)
	}
	return summary
}

// computeStats expects at least one duration. Quartiles use linear
// interpolation between closest ranks; StdDev is the population deviation.
func computeStats(durations []float64) Stats {
	n := len(durations)
	sorted := make([]float64, n)
	copy(sorted, durations)
	sort.Float64s(sorted)

	var total float64
	for _, d := range durations {
		total += d
	}
	mean := total / float64(n)

	var sq float64
	for _, d := range durations {
		sq += (d - mean) * (d - mean)
	}

	return Stats{
		Count:  n,
		Total:  total,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   mean,
		StdDev: math.Sqrt(sq / float64(n)),
		LowerQ: percentile(sorted, 25),
		Median: percentile(sorted, 50),
		UpperQ: percentile(sorted, 75),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
