package cost

import (
	"sync"

	"github.com/brimdata/parfor/compiler/optimizer/plan"
	"github.com/brimdata/parfor/runtime/prog"
)

// Trace is the measured cost of one execution of a statement.
type Trace struct {
	Mem  float64 `yaml:"mem"`
	Time float64 `yaml:"time"`
}

// Traces is a store of execution traces keyed by statement identifier
// and execution location.
type Traces interface {
	Lookup(id int64, exec prog.ExecType) (Trace, bool)
}

type traceKey struct {
	id   int64
	exec prog.ExecType
}

// TraceTable is an in-memory Traces safe for concurrent use.
type TraceTable struct {
	mu     sync.RWMutex
	traces map[traceKey]Trace
}

var _ Traces = (*TraceTable)(nil)

func NewTraceTable() *TraceTable {
	return &TraceTable{traces: make(map[traceKey]Trace)}
}

// Put records a trace, replacing any earlier trace for the same
// statement and location.
func (t *TraceTable) Put(id int64, exec prog.ExecType, trace Trace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traces[traceKey{id, exec}] = trace
}

func (t *TraceTable) Lookup(id int64, exec prog.ExecType) (Trace, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	trace, ok := t.traces[traceKey{id, exec}]
	return trace, ok
}

func (t *TraceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.traces)
}

// Runtime estimates leaves from measured traces of earlier executions
// and falls back to the static formulas for leaves never measured.
type Runtime struct {
	static *Static
	traces Traces
}

var _ Estimator = (*Runtime)(nil)

func NewRuntime(conf Config, traces Traces) *Runtime {
	return &Runtime{static: NewStatic(conf), traces: traces}
}

func (*Runtime) Model() Model {
	return RuntimeMetrics
}

func (r *Runtime) Estimate(t *plan.Tree, i int) (plan.Cost, error) {
	return estimate(t, i, r.static.conf, r.leaf)
}

func (r *Runtime) leaf(n *plan.Node) plan.Cost {
	exec := n.Exec
	if exec == prog.ExecUnset {
		exec = prog.ExecLocal
	}
	if trace, ok := r.traces.Lookup(n.ID, exec); ok {
		return plan.Cost{Mem: trace.Mem, Time: trace.Time}
	}
	return r.static.leaf(n)
}
