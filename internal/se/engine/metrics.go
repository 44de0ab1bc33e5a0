package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts exploration work. A nil *Metrics records nothing.
type Metrics struct {
	Steps      prometheus.Counter
	Nodes      prometheus.Counter
	Edges      prometheus.Counter
	Merged     prometheus.Counter
	Procedures prometheus.Counter
	Exhausted  prometheus.Counter
	StepsPer   prometheus.Histogram
}

// NewMetrics registers the exploration collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Steps: f.NewCounter(prometheus.CounterOpts{
			Name: "symex_exploration_steps_total",
			Help: "Elements and terminators executed by the walker",
		}),
		Nodes: f.NewCounter(prometheus.CounterOpts{
			Name: "symex_graph_nodes_total",
			Help: "State-graph nodes created",
		}),
		Edges: f.NewCounter(prometheus.CounterOpts{
			Name: "symex_graph_edges_total",
			Help: "State-graph edges created",
		}),
		Merged: f.NewCounter(prometheus.CounterOpts{
			Name: "symex_graph_merged_total",
			Help: "Successor states merged into an existing node",
		}),
		Procedures: f.NewCounter(prometheus.CounterOpts{
			Name: "symex_procedures_explored_total",
			Help: "Procedures explored",
		}),
		Exhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "symex_step_budget_exhausted_total",
			Help: "Explorations stopped by the step budget",
		}),
		StepsPer: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "symex_exploration_steps",
			Help:    "Steps taken per procedure exploration",
			Buckets: []float64{10, 100, 1000, 10000, 100000},
		}),
	}
}

func (m *Metrics) explored(steps int, exhausted bool) {
	if m == nil {
		return
	}
	m.Procedures.Inc()
	m.Steps.Add(float64(steps))
	m.StepsPer.Observe(float64(steps))
	if exhausted {
		m.Exhausted.Inc()
	}
}

func (m *Metrics) node() {
	if m != nil {
		m.Nodes.Inc()
	}
}

func (m *Metrics) edge(merged bool) {
	if m == nil {
		return
	}
	m.Edges.Inc()
	if merged {
		m.Merged.Inc()
	}
}
