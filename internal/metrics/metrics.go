// Package metrics exposes Prometheus collectors for the matching engine.
//
// All methods are safe on a nil *Collectors, so components can be built without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hla_engine"

// Lookup outcomes.
const (
	LookupHit      = "hit"
	LookupFallback = "fallback"
	LookupMiss     = "miss"
)

// Collectors groups the engine's Prometheus metrics.
type Collectors struct {
	Lookups            *prometheus.CounterVec
	GeneratedEntries   *prometheus.CounterVec
	SkippedLines       *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	DonorsScored       prometheus.Counter
	GradeMemo          *prometheus.CounterVec
	ActiveVersionSwaps prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Dictionary lookups by metadata kind and outcome.",
		}, []string{"kind", "outcome"}),
		GeneratedEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generated_entries_total",
			Help:      "Metadata entries produced by dictionary generation.",
		}, []string{"locus", "kind"}),
		SkippedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nomenclature_skipped_lines_total",
			Help:      "Malformed nomenclature lines skipped during ingestion.",
		}, []string{"file"}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of dictionary generation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		DonorsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donors_scored_total",
			Help:      "Donors scored by searches.",
		}),
		GradeMemo: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grade_memo_total",
			Help:      "Request-scoped grade memo hits and misses.",
		}, []string{"outcome"}),
		ActiveVersionSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "active_version_swaps_total",
			Help:      "Nomenclature version activations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.Lookups, c.GeneratedEntries, c.SkippedLines, c.GenerationDuration,
			c.DonorsScored, c.GradeMemo, c.ActiveVersionSwaps)
	}
	return c
}

// ObserveLookup counts one lookup.
func (c *Collectors) ObserveLookup(kind, outcome string) {
	if c == nil {
		return
	}
	c.Lookups.WithLabelValues(kind, outcome).Inc()
}

// ObserveGenerated adds generated entries for a locus and kind.
func (c *Collectors) ObserveGenerated(locus, kind string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.GeneratedEntries.WithLabelValues(locus, kind).Add(float64(n))
}

// ObserveSkippedLines adds skipped nomenclature lines for a file.
func (c *Collectors) ObserveSkippedLines(file string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.SkippedLines.WithLabelValues(file).Add(float64(n))
}

// ObserveGeneration records the duration of a generation run.
func (c *Collectors) ObserveGeneration(d time.Duration) {
	if c == nil {
		return
	}
	c.GenerationDuration.Observe(d.Seconds())
}

// ObserveDonorScored counts one scored donor.
func (c *Collectors) ObserveDonorScored() {
	if c == nil {
		return
	}
	c.DonorsScored.Inc()
}

// ObserveGradeMemo counts a memo hit or miss.
func (c *Collectors) ObserveGradeMemo(hit bool) {
	if c == nil {
		return
	}
	outcome := LookupMiss
	if hit {
		outcome = LookupHit
	}
	c.GradeMemo.WithLabelValues(outcome).Inc()
}

// ObserveActivation counts a version activation.
func (c *Collectors) ObserveActivation() {
	if c == nil {
		return
	}
	c.ActiveVersionSwaps.Inc()
}
