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

// RuleBased applies a fixed sequence of rules to each parfor loop,
// outermost first.  The first rule that applies decides the loop, whose
// nested loops are then decided within the remaining budget.
type RuleBased struct {
	conf  cost.Config
	model cost.Model
	est   cost.Estimator
}

var _ Optimizer = (*RuleBased)(nil)

// A rule decides the parfor node i for the worker budget ck and memory
// budget cm and reports whether it applied.
type rule func(r *RuleBased, t *plan.Tree, i, ck int, cm float64) (bool, error)

var rules = []rule{
	(*RuleBased).shuffleRule,
	(*RuleBased).localFitRule,
	(*RuleBased).remoteRule,
	(*RuleBased).fallbackRule,
}

func (r *RuleBased) Optimize(_ *dag.ParFor, _ *prog.ParFor, t *plan.Tree, est cost.Estimator, _ *exec.Context) error {
	r.est = est
	for _, i := range t.Leaves(t.Root) {
		n := t.Node(i)
		n.Exec = prog.ExecLocal
		if leafMem(n, r.conf) > t.CM {
			n.Exec = prog.ExecDistributed
		}
	}
	for _, i := range t.ParFors(t.Root) {
		n := t.Node(i)
		n.Exec = prog.ExecLocal
		n.DOP = 1
	}
	if err := r.decide(t, t.Root, t.CK, t.CM); err != nil {
		return err
	}
	if err := checkCeilings(t, est); err != nil {
		return err
	}
	return apply(t)
}

func (r *RuleBased) decide(t *plan.Tree, i, ck int, cm float64) error {
	for _, rule := range rules {
		ok, err := rule(r, t, i, ck, cm)
		if err != nil {
			return err
		}
		if ok {
			break
		}
	}
	finishParFor(t, i)
	n := t.Node(i)
	nestedCK := max(1, ck/n.DOP)
	nestedCM := cm
	if n.Exec == prog.ExecLocal {
		nestedCM = cm / float64(r.concurrent(n))
	}
	for _, j := range nestedParFors(t, i) {
		if err := r.decide(t, j, nestedCK, nestedCM); err != nil {
			return err
		}
	}
	return nil
}

// concurrent is the number of iterations of n that run at once.
func (r *RuleBased) concurrent(n *plan.Node) int {
	return int(max(1, min(int64(n.DOP), cost.Iterations(n, r.conf))))
}

func (r *RuleBased) iterations(n *plan.Node) int {
	return int(min(cost.Iterations(n, r.conf), math.MaxInt32))
}

// maxLocalDOP is the largest degree of parallelism up to limit for which
// the body memory mem fits cm.
func maxLocalDOP(limit int, mem, cm float64) int {
	if mem > 0 {
		limit = min(limit, int(math.Min(math.Floor(cm/mem), math.MaxInt32)))
	}
	return max(1, limit)
}

// shuffleRule applies to loops with statements too large to run
// locally.  Those statements run distributed and compete for the
// cluster with the loop's workers, so the loop runs locally with at
// most half of the available workers.
func (r *RuleBased) shuffleRule(t *plan.Tree, i, ck int, cm float64) (bool, error) {
	var oversized bool
	for _, j := range ownLeaves(t, i) {
		n := t.Node(j)
		if leafMem(n, r.conf) > cm {
			n.Exec = prog.ExecDistributed
			oversized = true
		}
	}
	if !oversized {
		return false, nil
	}
	mem, err := bodyMem(t, i, r.est)
	if err != nil {
		return false, err
	}
	n := t.Node(i)
	n.Exec = prog.ExecLocal
	n.DOP = maxLocalDOP(min(max(1, ck/2), r.iterations(n)), mem, cm)
	return true, nil
}

// localFitRule runs the loop locally with maximal parallelism if the
// memory of all concurrent iterations fits.
func (r *RuleBased) localFitRule(t *plan.Tree, i, ck int, cm float64) (bool, error) {
	mem, err := bodyMem(t, i, r.est)
	if err != nil {
		return false, err
	}
	n := t.Node(i)
	k := anymath.Clamp(min(ck, r.iterations(n)), 1, max(1, ck))
	if float64(k)*mem > cm {
		return false, nil
	}
	n.Exec = prog.ExecLocal
	n.DOP = k
	return true, nil
}

// remoteRule runs the loop on the cluster if one iteration fits a
// cluster slot.
func (r *RuleBased) remoteRule(t *plan.Tree, i, ck int, cm float64) (bool, error) {
	mem, err := bodyMem(t, i, r.est)
	if err != nil {
		return false, err
	}
	if mem > cm || ck < 2 {
		return false, nil
	}
	n := t.Node(i)
	n.Exec = prog.ExecDistributed
	n.DOP = anymath.Clamp(r.iterations(n), 1, ck)
	return true, nil
}

// fallbackRule runs the loop locally with as many workers as fit.
func (r *RuleBased) fallbackRule(t *plan.Tree, i, ck int, cm float64) (bool, error) {
	mem, err := bodyMem(t, i, r.est)
	if err != nil {
		return false, err
	}
	n := t.Node(i)
	n.Exec = prog.ExecLocal
	n.DOP = maxLocalDOP(min(ck, r.iterations(n)), mem, cm)
	return true, nil
}

func (*RuleBased) NumTotalPlans() int64      { return 1 }
func (*RuleBased) NumEvaluatedPlans() int64  { return 1 }
func (r *RuleBased) CostModel() cost.Model   { return r.model }
func (*RuleBased) PlanInput() plan.InputType { return plan.AbstractPlan }
func (*RuleBased) Mode() Mode                { return ModeRuleBased }
