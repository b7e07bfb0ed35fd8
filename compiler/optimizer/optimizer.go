// Package optimizer chooses how parfor loops execute.  For each loop,
// a Wrapper recompiles the loop body with current statistics, builds a
// plan tree and hands it to one of the Heuristic, RuleBased or
// Constrained optimizers, which decide the execution location of every
// statement and the degree of parallelism, data partitioning and result
// merge of every parfor loop.
package optimizer

import (
	"fmt"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/optimizer/cost"
	"github.com/brimdata/parfor/compiler/optimizer/plan"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/prog"
)

type Optimizer interface {
	// Optimize decides the plan of tree and applies it to the loop sb
	// and its runtime block pb.
	Optimize(sb *dag.ParFor, pb *prog.ParFor, tree *plan.Tree, est cost.Estimator, ectx *exec.Context) error
	NumTotalPlans() int64
	NumEvaluatedPlans() int64
	CostModel() cost.Model
	PlanInput() plan.InputType
	Mode() Mode
}

// New returns the optimizer for mode.
func New(mode Mode, conf Config) (Optimizer, error) {
	model, err := conf.costModel()
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeHeuristic:
		return &Heuristic{conf: conf.Cost, model: model}, nil
	case ModeRuleBased:
		return &RuleBased{conf: conf.Cost, model: model}, nil
	case ModeConstrained:
		return &Constrained{conf: conf.Cost, model: model}, nil
	}
	return nil, fmt.Errorf("no optimizer for mode %s", mode)
}

// leafMem is the local footprint of a leaf, the worst-case default if
// unknown.
func leafMem(n *plan.Node, conf cost.Config) float64 {
	if n.Mem < 0 {
		return float64(conf.DefaultMem)
	}
	return n.Mem
}

// bodyMem estimates the per-iteration memory of the loop at i under the
// tree's current annotations.
func bodyMem(t *plan.Tree, i int, est cost.Estimator) (float64, error) {
	var mem float64
	for _, c := range t.Node(i).Children {
		cc, err := est.Estimate(t, c)
		if err != nil {
			return 0, err
		}
		mem = max(mem, cc.Mem)
	}
	return mem, nil
}

// ownLeaves returns the leaves of the loop at i that are not inside a
// nested parfor loop.
func ownLeaves(t *plan.Tree, i int) []int {
	var out []int
	var walk func(int)
	walk = func(j int) {
		for _, c := range t.Node(j).Children {
			switch t.Node(c).Kind {
			case plan.KindLeaf:
				out = append(out, c)
			case plan.KindParFor:
			default:
				walk(c)
			}
		}
	}
	walk(i)
	return out
}

// nestedParFors returns the outermost parfor loops below i.
func nestedParFors(t *plan.Tree, i int) []int {
	var out []int
	var walk func(int)
	walk = func(j int) {
		for _, c := range t.Node(j).Children {
			if t.Node(c).Kind == plan.KindParFor {
				out = append(out, c)
			} else {
				walk(c)
			}
		}
	}
	walk(i)
	return out
}

// finishParFor chooses the data partitioner and result merge of the
// parfor node i from its execution location.
func finishParFor(t *plan.Tree, i int) {
	n := t.Node(i)
	n.Partitioner = prog.PartitionNone
	n.ResultMerge = prog.MergeLocalMem
	if n.Exec == prog.ExecDistributed {
		n.ResultMerge = prog.MergeRemote
	}
	sb, _, ok := t.Mapping().ParFor(n.ID)
	if !ok || (n.DOP <= 1 && n.Exec != prog.ExecDistributed) {
		return
	}
	switch indexedBy(sb.Body, sb.Var) {
	case "row":
		n.Partitioner = prog.PartitionLocalRow
		if n.Exec == prog.ExecDistributed {
			n.Partitioner = prog.PartitionRemoteRow
		}
	case "col":
		n.Partitioner = prog.PartitionLocalCol
		if n.Exec == prog.ExecDistributed {
			n.Partitioner = prog.PartitionRemoteCol
		}
	}
}

// indexedBy reports whether seq reads a matrix row-wise ("row") or
// column-wise ("col") by the loop variable v.  Only the first matching
// access is considered.
func indexedBy(seq dag.Seq, v string) string {
	isVar := func(e dag.Expr) bool {
		x, ok := e.(*dag.Var)
		return ok && x.Name == v
	}
	var dir string
	dag.WalkBlocks(seq, func(b dag.Block) {
		basic, ok := b.(*dag.Basic)
		if !ok {
			return
		}
		for _, stmt := range basic.Stmts {
			dag.WalkExpr(stmt.RHS, func(e dag.Expr) {
				ix, ok := e.(*dag.Index)
				if !ok || dir != "" {
					return
				}
				if _, ok := ix.Expr.(*dag.Var); !ok {
					return
				}
				switch {
				case isVar(ix.RowLo) && isVar(ix.RowHi) && ix.ColLo == nil && ix.ColHi == nil:
					dir = "row"
				case isVar(ix.ColLo) && isVar(ix.ColHi) && ix.RowLo == nil && ix.RowHi == nil:
					dir = "col"
				}
			})
		}
	})
	return dir
}

// checkCeilings verifies the plan of t against its ceilings.
func checkCeilings(t *plan.Tree, est cost.Estimator) error {
	c, err := est.Estimate(t, t.Root)
	if err != nil {
		return err
	}
	if c.Mem > t.CM {
		return fmt.Errorf("%w: plan needs %.0f bytes but the memory ceiling is %.0f", ErrSearchExhaustion, c.Mem, t.CM)
	}
	if w := t.Workers(t.Root); w > t.CK {
		return fmt.Errorf("%w: plan needs %d workers but the parallelism ceiling is %d", ErrSearchExhaustion, w, t.CK)
	}
	return nil
}

// apply writes the decisions recorded in t to the statements,
// instructions and parfor blocks it was built from.
func apply(t *plan.Tree) error {
	m := t.Mapping()
	for i := range t.Nodes {
		n := t.Node(i)
		switch n.Kind {
		case plan.KindLeaf:
			stmt, inst, ok := m.Stmt(n.ID)
			if !ok {
				return fmt.Errorf("leaf %d: statement not found", n.ID)
			}
			if n.Exec == prog.ExecUnset {
				return fmt.Errorf("leaf %d: no execution location", n.ID)
			}
			stmt.Exec = n.Exec
			if inst != nil {
				inst.Exec = n.Exec
			}
		case plan.KindParFor:
			_, pb, ok := m.ParFor(n.ID)
			if !ok {
				return fmt.Errorf("parfor %d: runtime block not found", n.ID)
			}
			pb.DOP = max(1, n.DOP)
			pb.Exec = n.Exec
			pb.Partitioner = n.Partitioner
			pb.ResultMerge = n.ResultMerge
		}
	}
	return nil
}
