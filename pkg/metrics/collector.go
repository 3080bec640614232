package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psantana5/timinghooks/pkg/timers"
)

// Collector exposes the summary of an accumulator as Prometheus metrics.
// Values are computed from a fresh Summary on every scrape.
type Collector struct {
	summarize func() timers.Summary
	active    func() int

	count      *prometheus.Desc
	total      *prometheus.Desc
	stat       *prometheus.Desc
	activeDesc *prometheus.Desc
}

// NewCollector creates a collector for t. namespace prefixes every metric
// name and defaults to "timinghooks".
func NewCollector(namespace string, t *timers.Timers) *Collector {
	c := newCollector(namespace)
	c.summarize = t.Summary
	c.active = t.Active
	return c
}

// NewSummaryCollector exposes a fixed summary, such as one loaded from a
// file. It has no active intervals gauge.
func NewSummaryCollector(namespace string, summary timers.Summary) *Collector {
	c := newCollector(namespace)
	c.summarize = func() timers.Summary { return summary }
	return c
}

func newCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "timinghooks"
	}
	return &Collector{
		count: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "interval", "count"),
			"Number of closed intervals by operation name",
			[]string{"name"}, nil,
		),
		total: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "interval", "seconds_total"),
			"Total time spent in closed intervals by operation name",
			[]string{"name"}, nil,
		),
		stat: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "interval", "seconds"),
			"Interval duration statistics by operation name",
			[]string{"name", "stat"}, nil,
		),
		activeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_intervals"),
			"Intervals opened and not yet closed",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.count
	ch <- c.total
	ch <- c.stat
	if c.active != nil {
		ch <- c.activeDesc
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	summary := c.summarize()
	for _, name := range summary.Names() {
		s := summary[name]
		ch <- prometheus.MustNewConstMetric(c.count, prometheus.CounterValue, float64(s.Count), name)
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, s.Total, name)

		stats := []struct {
			label string
			value float64
		}{
			{"min", s.Min},
			{"max", s.Max},
			{"mean", s.Mean},
			{"median", s.Median},
		}
		for _, st := range stats {
			ch <- prometheus.MustNewConstMetric(c.stat, prometheus.GaugeValue, st.value, name, st.label)
		}
	}
	if c.active != nil {
		ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(c.active()))
	}
}

// NewRegistry returns a registry holding only c
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return reg
}

// Handler serves the metrics of reg in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
