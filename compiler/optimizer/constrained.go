package optimizer

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/optimizer/cost"
	"github.com/brimdata/parfor/compiler/optimizer/plan"
	"github.com/brimdata/parfor/pkg/anymath"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/prog"
)

// Constrained searches the execution location of every statement and
// the execution location and degree of parallelism of every parfor
// loop for the assignment with the lowest estimated time that fits the
// ceilings.  Ties go to the assignment with fewer distributed nodes and
// then to the one with lower degrees of parallelism.
//
// The search is bounded: parfor loops only consider powers of two up
// to the ceiling and the ceiling itself, and a candidate is pruned
// before it is costed when a lower bound of its memory exceeds the
// budget.
type Constrained struct {
	conf  cost.Config
	model cost.Model

	est       cost.Estimator
	total     int64
	evaluated int64
}

var _ Optimizer = (*Constrained)(nil)

// assignment is a plan for a subtree: the nodes that run distributed,
// the degree of parallelism of each parfor node and the resulting cost.
type assignment struct {
	cost plan.Cost
	dist *roaring.Bitmap
	dop  map[int]int
	// ksum is the sum of the degrees of parallelism.
	ksum int
}

func newAssignment() *assignment {
	return &assignment{dist: roaring.New(), dop: make(map[int]int)}
}

func (a *assignment) merge(b *assignment) {
	a.dist.Or(b.dist)
	for k, v := range b.dop {
		a.dop[k] = v
	}
	a.ksum += b.ksum
}

// better reports whether a is preferred over b.
func (a *assignment) better(b *assignment) bool {
	if b == nil {
		return true
	}
	if d := a.cost.Time - b.cost.Time; math.Abs(d) > 1e-9*max(math.Abs(a.cost.Time), math.Abs(b.cost.Time)) {
		return d < 0
	}
	if ad, bd := a.dist.GetCardinality(), b.dist.GetCardinality(); ad != bd {
		return ad < bd
	}
	return a.ksum < b.ksum
}

func (c *Constrained) Optimize(_ *dag.ParFor, _ *prog.ParFor, t *plan.Tree, est cost.Estimator, _ *exec.Context) error {
	c.est = est
	c.total, c.evaluated = 0, 0
	best, err := c.search(t, t.Root, t.CK, t.CM)
	if err != nil {
		return err
	}
	if best == nil {
		return fmt.Errorf("%w: no assignment of %d statements fits %d workers and %.0f bytes",
			ErrSearchExhaustion, len(t.Leaves(t.Root)), t.CK, t.CM)
	}
	c.assign(t, t.Root, best)
	for _, i := range t.ParFors(t.Root) {
		finishParFor(t, i)
	}
	if err := checkCeilings(t, est); err != nil {
		return err
	}
	return apply(t)
}

// search returns the best assignment of the subtree at i for the
// worker budget ck and memory budget cm, or nil if none fits.
func (c *Constrained) search(t *plan.Tree, i, ck int, cm float64) (*assignment, error) {
	n := t.Node(i)
	switch n.Kind {
	case plan.KindLeaf:
		return c.searchLeaf(t, i, cm)
	case plan.KindParFor:
		return c.searchParFor(t, i, ck, cm)
	}
	a := newAssignment()
	for _, j := range n.Children {
		b, err := c.search(t, j, ck, cm)
		if err != nil || b == nil {
			return nil, err
		}
		a.merge(b)
	}
	c.assign(t, i, a)
	cc, err := c.est.Estimate(t, i)
	if err != nil {
		return nil, err
	}
	a.cost = cc
	return a, nil
}

func (c *Constrained) searchLeaf(t *plan.Tree, i int, cm float64) (*assignment, error) {
	n := t.Node(i)
	var best *assignment
	for _, e := range []prog.ExecType{prog.ExecLocal, prog.ExecDistributed} {
		c.total++
		if c.leafLowerBound(n, e) > cm {
			continue
		}
		n.Exec = e
		cc, err := c.est.Estimate(t, i)
		if err != nil {
			return nil, err
		}
		c.evaluated++
		if cc.Mem > cm {
			continue
		}
		a := newAssignment()
		a.cost = cc
		if e == prog.ExecDistributed {
			a.dist.Add(uint32(i))
		}
		if a.better(best) {
			best = a
		}
	}
	return best, nil
}

func (c *Constrained) searchParFor(t *plan.Tree, i, ck int, cm float64) (*assignment, error) {
	n := t.Node(i)
	N := cost.Iterations(n, c.conf)
	limit := max(1, min(ck, int(min(N, math.MaxInt32))))
	ks := anymath.PowersOfTwo(limit)
	if ks[len(ks)-1] != limit {
		ks = append(ks, limit)
	}
	lb := c.lowerBound(t, i)
	var best *assignment
	for _, e := range []prog.ExecType{prog.ExecLocal, prog.ExecDistributed} {
		for _, k := range ks {
			c.total++
			concurrent := float64(max(1, min(int64(k), N)))
			bodyCM := cm
			if e == prog.ExecLocal {
				bodyCM = cm / concurrent
			}
			if lb > bodyCM {
				continue
			}
			body := newAssignment()
			feasible := true
			for _, j := range n.Children {
				b, err := c.search(t, j, max(1, ck/k), bodyCM)
				if err != nil {
					return nil, err
				}
				if b == nil {
					feasible = false
					break
				}
				body.merge(b)
			}
			if !feasible {
				continue
			}
			a := newAssignment()
			a.merge(body)
			a.dop[i] = k
			a.ksum += k
			if e == prog.ExecDistributed {
				a.dist.Add(uint32(i))
			}
			c.assign(t, i, a)
			cc, err := c.est.Estimate(t, i)
			if err != nil {
				return nil, err
			}
			c.evaluated++
			if cc.Mem > cm {
				continue
			}
			a.cost = cc
			if a.better(best) {
				best = a
			}
		}
	}
	return best, nil
}

// leafLowerBound is the memory of leaf n at execution location e.
func (c *Constrained) leafLowerBound(n *plan.Node, e prog.ExecType) float64 {
	mem := leafMem(n, c.conf)
	if e == prog.ExecDistributed {
		return min(mem, c.conf.BlockMem())
	}
	return mem
}

// lowerBound is the least memory the subtree at i can need under any
// assignment.  For a loop, this is the memory of one iteration.
func (c *Constrained) lowerBound(t *plan.Tree, i int) float64 {
	n := t.Node(i)
	if n.Kind == plan.KindLeaf {
		return min(c.leafLowerBound(n, prog.ExecLocal), c.leafLowerBound(n, prog.ExecDistributed))
	}
	var lb float64
	for _, j := range n.Children {
		lb = max(lb, c.lowerBound(t, j))
	}
	return lb
}

// assign annotates the subtree at i with a.
func (c *Constrained) assign(t *plan.Tree, i int, a *assignment) {
	t.Walk(i, func(j int) {
		n := t.Node(j)
		switch n.Kind {
		case plan.KindLeaf, plan.KindParFor:
			n.Exec = prog.ExecLocal
			if a.dist.Contains(uint32(j)) {
				n.Exec = prog.ExecDistributed
			}
			if n.Kind == plan.KindParFor {
				n.DOP = max(1, a.dop[j])
			}
		}
	})
}

func (c *Constrained) NumTotalPlans() int64     { return c.total }
func (c *Constrained) NumEvaluatedPlans() int64 { return c.evaluated }
func (c *Constrained) CostModel() cost.Model    { return c.model }
func (*Constrained) PlanInput() plan.InputType  { return plan.AbstractPlan }
func (*Constrained) Mode() Mode                 { return ModeConstrained }
