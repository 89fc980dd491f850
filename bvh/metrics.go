package bvh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	skipDisjoint   = "disjoint"
	skipCommonGeom = "common_geometry"
	skipBudget     = "budget"
)

// Metrics exposes build counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	builds         prometheus.Counter
	buildDuration  prometheus.Histogram
	openedNodes    prometheus.Counter
	extraElements  prometheus.Counter
	skippedOpening *prometheus.CounterVec
	fallbackSplits prometheus.Counter
}

// Create and register build metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		builds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bvh",
			Name:      "builds_total",
			Help:      "Number of completed BVH builds.",
		}),
		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bvh",
			Name:      "build_duration_seconds",
			Help:      "Time spent building a BVH.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		openedNodes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bvh",
			Name:      "opened_nodes_total",
			Help:      "Number of node references replaced by their children.",
		}),
		extraElements: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bvh",
			Name:      "extra_elements_total",
			Help:      "Number of spare slots populated by node opening.",
		}),
		skippedOpening: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bvh",
			Name:      "skipped_openings_total",
			Help:      "Number of ranges with spare capacity where opening was skipped.",
		}, []string{"reason"}),
		fallbackSplits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bvh",
			Name:      "fallback_splits_total",
			Help:      "Number of splits that fell back to index bisection.",
		}),
	}
}

func (m *Metrics) observeBuild(seconds float64) {
	if m == nil {
		return
	}
	m.builds.Inc()
	m.buildDuration.Observe(seconds)
}

func (m *Metrics) openedNode() {
	if m == nil {
		return
	}
	m.openedNodes.Inc()
}

func (m *Metrics) addExtraElements(n int) {
	if m == nil || n == 0 {
		return
	}
	m.extraElements.Add(float64(n))
}

func (m *Metrics) skipOpening(reason string) {
	if m == nil {
		return
	}
	m.skippedOpening.WithLabelValues(reason).Inc()
}

func (m *Metrics) fallbackSplit() {
	if m == nil {
		return
	}
	m.fallbackSplits.Inc()
}
