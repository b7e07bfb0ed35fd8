package optimizer

import (
	"math"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/optimizer/cost"
	"github.com/brimdata/parfor/compiler/optimizer/plan"
	"github.com/brimdata/parfor/pkg/anymath"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/prog"
)

// HeuristicInputFraction is the fraction of the memory ceiling above
// which the inputs of a statement send it to the cluster.
const HeuristicInputFraction = 1.0

// Heuristic makes a single top-down pass over the plan: statements
// whose inputs or footprint exceed the memory ceiling run distributed,
// the outermost loop runs locally with as many workers as fit the
// ceilings and nested loops run sequentially.
type Heuristic struct {
	conf  cost.Config
	model cost.Model
}

var _ Optimizer = (*Heuristic)(nil)

func (h *Heuristic) Optimize(_ *dag.ParFor, _ *prog.ParFor, t *plan.Tree, est cost.Estimator, _ *exec.Context) error {
	for _, i := range t.Leaves(t.Root) {
		n := t.Node(i)
		in := n.InMem
		if in < 0 {
			in = float64(h.conf.DefaultMem)
		}
		if in > HeuristicInputFraction*t.CM || leafMem(n, h.conf) > t.CM {
			n.Exec = prog.ExecDistributed
		} else {
			n.Exec = prog.ExecLocal
		}
	}
	for _, i := range t.ParFors(t.Root) {
		n := t.Node(i)
		n.Exec = prog.ExecLocal
		n.DOP = 1
	}
	root := t.Node(t.Root)
	mem, err := bodyMem(t, t.Root, est)
	if err != nil {
		return err
	}
	k := min(t.CK, int(min(cost.Iterations(root, h.conf), math.MaxInt32)))
	if mem > 0 {
		k = min(k, int(math.Floor(t.CM/mem)))
	}
	root.DOP = anymath.Clamp(k, 1, max(1, t.CK))
	for _, i := range t.ParFors(t.Root) {
		finishParFor(t, i)
	}
	if err := checkCeilings(t, est); err != nil {
		return err
	}
	return apply(t)
}

func (*Heuristic) NumTotalPlans() int64      { return 1 }
func (*Heuristic) NumEvaluatedPlans() int64  { return 1 }
func (h *Heuristic) CostModel() cost.Model   { return h.model }
func (*Heuristic) PlanInput() plan.InputType { return plan.RuntimePlan }
func (*Heuristic) Mode() Mode                { return ModeHeuristic }
