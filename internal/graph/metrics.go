package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tgraph"

var (
	// linesTotal counts trace lines by what the builder did with them.
	// Labels: outcome (accepted, no_match, unsupported_function, filtered)
	linesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "trace_lines_total",
			Help:      "Trace lines processed, by outcome",
		},
		[]string{"outcome"},
	)

	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of a full trace-to-graph build",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	graphNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "graph_nodes",
			Help:      "Nodes in the most recently built graph, by kind",
		},
		[]string{"kind"},
	)

	graphEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "graph_edges",
			Help:      "Edges in the most recently built graph",
		},
	)
)
