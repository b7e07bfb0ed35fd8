// Package monitor records statistics about parfor optimizations.
package monitor

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
)

// Record describes one optimization of a parfor loop.
type Record struct {
	RunID          ksuid.KSUID   `yaml:"run_id" json:"run_id"`
	LoopID         int64         `yaml:"loop_id" json:"loop_id"`
	Optimizer      string        `yaml:"optimizer" json:"optimizer"`
	Elapsed        time.Duration `yaml:"elapsed" json:"elapsed"`
	TotalPlans     int64         `yaml:"total_plans" json:"total_plans"`
	EvaluatedPlans int64         `yaml:"evaluated_plans" json:"evaluated_plans"`
}

// Monitor keeps the records of every optimization, keyed by loop, and
// exports them as Prometheus metrics.  It is safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	records map[int64][]Record

	optimizations *prometheus.CounterVec
	elapsed       *prometheus.HistogramVec
	totalPlans    *prometheus.CounterVec
	evalPlans     *prometheus.CounterVec
	loops         prometheus.Gauge
}

// New returns a Monitor whose collectors are registered with reg.  A nil
// reg leaves them unregistered.
func New(reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		records: make(map[int64][]Record),
		optimizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parfor_optimizations_total",
			Help: "Number of parfor loop optimizations.",
		}, []string{"optimizer"}),
		elapsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parfor_optimization_seconds",
			Help:    "Time spent optimizing parfor loops.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"optimizer"}),
		totalPlans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parfor_plans_total",
			Help: "Number of candidate plans generated.",
		}, []string{"optimizer"}),
		evalPlans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parfor_plans_evaluated_total",
			Help: "Number of candidate plans costed.",
		}, []string{"optimizer"}),
		loops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parfor_loops",
			Help: "Number of distinct parfor loops optimized.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.optimizations, m.elapsed, m.totalPlans, m.evalPlans, m.loops)
	}
	return m
}

// Put adds r, assigning it a run identifier if it has none, and returns
// the stored record.
func (m *Monitor) Put(r Record) Record {
	if r.RunID == ksuid.Nil {
		r.RunID = ksuid.New()
	}
	m.mu.Lock()
	if _, ok := m.records[r.LoopID]; !ok {
		m.loops.Inc()
	}
	m.records[r.LoopID] = append(m.records[r.LoopID], r)
	m.mu.Unlock()
	m.optimizations.WithLabelValues(r.Optimizer).Inc()
	m.elapsed.WithLabelValues(r.Optimizer).Observe(r.Elapsed.Seconds())
	m.totalPlans.WithLabelValues(r.Optimizer).Add(float64(r.TotalPlans))
	m.evalPlans.WithLabelValues(r.Optimizer).Add(float64(r.EvaluatedPlans))
	return r
}

// Records returns the records of loop in the order they were put.
func (m *Monitor) Records(loop int64) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records[loop])
}

// All returns every record ordered by loop and then by insertion.
func (m *Monitor) All() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, loop := range slices.Sorted(maps.Keys(m.records)) {
		out = append(out, m.records[loop]...)
	}
	return out
}
