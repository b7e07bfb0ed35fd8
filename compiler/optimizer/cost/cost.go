// Package cost estimates the memory and time of plan tree nodes.
package cost

import (
	"fmt"
	"math"
	"strings"

	"github.com/brimdata/parfor/compiler/optimizer/plan"
	"github.com/brimdata/parfor/pkg/anymath"
	"github.com/brimdata/parfor/pkg/bytesize"
	"github.com/brimdata/parfor/runtime/prog"
)

// Model names a cost model.
type Model int

const (
	StaticMemMetric Model = iota
	RuntimeMetrics
)

func (m Model) String() string {
	switch m {
	case StaticMemMetric:
		return "static-mem-metric"
	case RuntimeMetrics:
		return "runtime-metrics"
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

func ParseModel(s string) (Model, error) {
	switch strings.ToLower(s) {
	case "static", "static-mem-metric":
		return StaticMemMetric, nil
	case "runtime", "runtime-metrics":
		return RuntimeMetrics, nil
	}
	return 0, fmt.Errorf("unknown cost model %q", s)
}

type Config struct {
	// DefaultMem is the worst-case footprint in bytes assumed for a
	// statement whose size is unknown.
	DefaultMem bytesize.Bytes `yaml:"default_mem"`
	// DefaultIterations is assumed for loops with unknown bounds.
	DefaultIterations int64 `yaml:"default_iterations"`
	// BlockSize is the row and column count of a distributed matrix
	// block.
	BlockSize int `yaml:"block_size"`
	// LocalBandwidth and ClusterBandwidth are in bytes per second.
	LocalBandwidth   float64 `yaml:"local_bandwidth"`
	ClusterBandwidth float64 `yaml:"cluster_bandwidth"`
	// JobLatency and WorkerStartup are in seconds.
	JobLatency    float64 `yaml:"job_latency"`
	WorkerStartup float64 `yaml:"worker_startup"`
}

func DefaultConfig() Config {
	return Config{
		DefaultMem:        1 << 30,
		DefaultIterations: 10,
		BlockSize:         1000,
		LocalBandwidth:    2e9,
		ClusterBandwidth:  2e8,
		JobLatency:        20,
		WorkerStartup:     0.01,
	}
}

// BlockMem is the memory a distributed task needs to hold the blocks of
// one binary operator: two inputs and an output.
func (c Config) BlockMem() float64 {
	b := float64(c.BlockSize)
	return 3 * b * b * 8
}

type Estimator interface {
	// Estimate returns the cost of node i of t under its current
	// annotations and stores it on the subtree's nodes.
	Estimate(t *plan.Tree, i int) (plan.Cost, error)
	Model() Model
}

// New returns the estimator of model.  A runtime-metrics estimator
// requires traces.
func New(model Model, conf Config, traces Traces) (Estimator, error) {
	switch model {
	case StaticMemMetric:
		return NewStatic(conf), nil
	case RuntimeMetrics:
		if traces == nil {
			return nil, fmt.Errorf("cost model %s requires execution traces", model)
		}
		return NewRuntime(conf, traces), nil
	}
	return nil, fmt.Errorf("unknown cost model %s", model)
}

type Static struct {
	conf Config
}

var _ Estimator = (*Static)(nil)

func NewStatic(conf Config) *Static {
	return &Static{conf: conf}
}

func (*Static) Model() Model {
	return StaticMemMetric
}

func (s *Static) Estimate(t *plan.Tree, i int) (plan.Cost, error) {
	return estimate(t, i, s.conf, s.leaf)
}

// leaf costs a statement from its size estimate, falling back to the
// worst-case default for unknown sizes.
func (s *Static) leaf(n *plan.Node) plan.Cost {
	mem := n.Mem
	if mem < 0 {
		mem = float64(s.conf.DefaultMem)
	}
	in, out := n.InMem, n.OutMem
	if in < 0 {
		in = mem
	}
	if out < 0 {
		out = mem
	}
	if n.Exec == prog.ExecDistributed {
		return plan.Cost{
			Mem:  min(mem, s.conf.BlockMem()),
			Time: s.conf.JobLatency + (in+out)/s.conf.ClusterBandwidth,
		}
	}
	return plan.Cost{Mem: mem, Time: (in + out) / s.conf.LocalBandwidth}
}

func estimate(t *plan.Tree, i int, conf Config, leaf func(*plan.Node) plan.Cost) (plan.Cost, error) {
	n := t.Node(i)
	var c plan.Cost
	switch n.Kind {
	case plan.KindLeaf:
		c = leaf(n)
	case plan.KindSeq:
		kids, err := children(t, n, conf, leaf)
		if err != nil {
			return c, err
		}
		c = sequence(kids)
	case plan.KindIf:
		kids, err := children(t, n, conf, leaf)
		if err != nil {
			return c, err
		}
		for _, k := range kids {
			c.Mem = max(c.Mem, k.Mem)
			c.Time = max(c.Time, k.Time)
		}
	case plan.KindLoop:
		kids, err := children(t, n, conf, leaf)
		if err != nil {
			return c, err
		}
		body := sequence(kids)
		c = plan.Cost{Mem: body.Mem, Time: float64(Iterations(n, conf)) * body.Time}
	case plan.KindParFor:
		kids, err := children(t, n, conf, leaf)
		if err != nil {
			return c, err
		}
		body := sequence(kids)
		N := Iterations(n, conf)
		k := int64(max(1, n.DOP))
		waves := float64(anymath.CeilDiv(N, k))
		if n.Exec == prog.ExecDistributed {
			c = plan.Cost{Mem: body.Mem, Time: conf.JobLatency + waves*body.Time}
		} else {
			c = plan.Cost{
				Mem:  float64(min(k, N)) * body.Mem,
				Time: waves*body.Time + float64(k)*conf.WorkerStartup,
			}
		}
	default:
		return c, fmt.Errorf("cannot estimate plan node of kind %s", n.Kind)
	}
	if math.IsNaN(c.Mem) || math.IsNaN(c.Time) {
		return c, fmt.Errorf("cost of node %d is not a number", n.ID)
	}
	n.Cost = &c
	return c, nil
}

func children(t *plan.Tree, n *plan.Node, conf Config, leaf func(*plan.Node) plan.Cost) ([]plan.Cost, error) {
	out := make([]plan.Cost, 0, len(n.Children))
	for _, k := range n.Children {
		c, err := estimate(t, k, conf, leaf)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func sequence(kids []plan.Cost) plan.Cost {
	var c plan.Cost
	times := make([]float64, 0, len(kids))
	for _, k := range kids {
		c.Mem = max(c.Mem, k.Mem)
		times = append(times, k.Time)
	}
	c.Time = anymath.Sum(times...)
	return c
}

// Iterations returns the iteration count of loop node n, substituting
// the configured default when it is unknown.
func Iterations(n *plan.Node, conf Config) int64 {
	if n.Iterations < 0 {
		return conf.DefaultIterations
	}
	return n.Iterations
}
