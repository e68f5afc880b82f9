package search

import "github.com/prometheus/client_golang/prometheus"

// metrics are the Prometheus instruments a running engine publishes,
// grounded on the same "a handful of counters/gauges per subsystem"
// style the pack's Prometheus-using example reaches for. Registration is
// left to the caller (NewEngine does not touch the default registerer)
// so embedding an engine in a larger process never fights over global
// registration.
type metrics struct {
	cycles     prometheus.Counter
	collisions prometheus.Counter
	cps        prometheus.Gauge
	treeNodes  prometheus.Gauge
	batchSize  prometheus.Histogram
}

// newMetrics builds a fresh metrics set under the given namespace,
// suitable for registering into any prometheus.Registerer.
func newMetrics(namespace string) *metrics {
	return &metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "search_cycles_total",
			Help: "Completed selection+backup cycles across all selectors.",
		}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "search_collisions_total",
			Help: "Times a selector found a node already being expanded by another selector.",
		}),
		cps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "search_cycles_per_second",
			Help: "Most recently computed cycles-per-second estimate.",
		}),
		treeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "search_tree_nodes",
			Help: "Nodes currently allocated in the arena.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_eval_batch_size",
			Help:    "Size of batches submitted to the evaluator.",
			Buckets: prometheus.LinearBuckets(1, 16, 8),
		}),
	}
}

// Collectors returns every instrument, for bulk registration:
//
//	reg.MustRegister(m.Collectors()...)
func (m *metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.cycles, m.collisions, m.cps, m.treeNodes, m.batchSize}
}
