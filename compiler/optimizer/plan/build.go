package plan

import (
	"errors"
	"fmt"
	"math"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/rungen"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/prog"
)

type builder struct {
	tree  *Tree
	input InputType
	sizer *rungen.Sizer
}

// Build creates the plan tree of the parfor loop sb and its runtime
// block pb for the ceilings ck and cm.  Loop bounds that are not literals
// are resolved against the scalars of ectx.
func Build(ck int, cm float64, input InputType, sb *dag.ParFor, pb *prog.ParFor, ectx *exec.Context) (*Tree, error) {
	if sb == nil || pb == nil {
		return nil, errors.New("missing parfor block")
	}
	if pb.Source != sb {
		return nil, fmt.Errorf("runtime block %d was not generated from parfor %d", pb.ID(), sb.ID)
	}
	vars := exec.NewVars()
	if ectx != nil && ectx.Vars() != nil {
		vars = ectx.Vars().Clone()
	}
	b := &builder{
		tree: &Tree{
			CK:      ck,
			CM:      cm,
			Input:   input,
			index:   make(map[int64]int),
			mapping: newMapping(),
		},
		input: input,
		sizer: rungen.NewSizer(vars),
	}
	root, err := b.block(sb, pb)
	if err != nil {
		return nil, err
	}
	b.tree.Root = root
	return b.tree, nil
}

func (b *builder) add(n Node) (int, error) {
	if n.ID != 0 {
		if _, ok := b.tree.index[n.ID]; ok {
			return 0, fmt.Errorf("duplicate construct identifier %d", n.ID)
		}
		b.tree.index[n.ID] = len(b.tree.Nodes)
	}
	if n.DOP == 0 {
		n.DOP = 1
	}
	b.tree.Nodes = append(b.tree.Nodes, n)
	return len(b.tree.Nodes) - 1, nil
}

func (b *builder) seq(seq dag.Seq, blocks []prog.Block) ([]int, error) {
	if len(seq) != len(blocks) {
		return nil, fmt.Errorf("%d statement blocks but %d runtime blocks", len(seq), len(blocks))
	}
	var out []int
	for k, sb := range seq {
		i, err := b.block(sb, blocks[k])
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

func (b *builder) block(sb dag.Block, pb prog.Block) (int, error) {
	if sb == nil || pb == nil {
		return 0, errors.New("nil block")
	}
	if sb.BlockID() != pb.ID() {
		return 0, fmt.Errorf("statement block %d does not match runtime block %d", sb.BlockID(), pb.ID())
	}
	switch sb := sb.(type) {
	case *dag.Basic:
		pb, ok := pb.(*prog.Basic)
		if !ok {
			return 0, mismatch(sb, pb)
		}
		return b.basic(sb, pb)
	case *dag.If:
		pb, ok := pb.(*prog.If)
		if !ok {
			return 0, mismatch(sb, pb)
		}
		i, err := b.add(Node{Kind: KindIf, ID: sb.ID, Label: "if"})
		if err != nil {
			return 0, err
		}
		then, err := b.branch(sb.Then, pb.Then)
		if err != nil {
			return 0, err
		}
		kids := []int{then}
		if len(sb.Else) > 0 {
			els, err := b.branch(sb.Else, pb.Else)
			if err != nil {
				return 0, err
			}
			kids = append(kids, els)
		} else if len(pb.Else) > 0 {
			return 0, fmt.Errorf("if block %d: runtime else branch without statements", sb.ID)
		}
		b.tree.Nodes[i].Children = kids
		return i, nil
	case *dag.While:
		pb, ok := pb.(*prog.While)
		if !ok {
			return 0, mismatch(sb, pb)
		}
		return b.loop(Node{Kind: KindLoop, ID: sb.ID, Label: "while", Iterations: -1}, sb.Body, pb.Body)
	case *dag.For:
		pb, ok := pb.(*prog.For)
		if !ok {
			return 0, mismatch(sb, pb)
		}
		n := Node{Kind: KindLoop, ID: sb.ID, Label: "for " + sb.Var, Iterations: b.iterations(sb.From, sb.To, sb.Incr)}
		b.sizer.BindLoopVar(sb.Var)
		return b.loop(n, sb.Body, pb.Body)
	case *dag.ParFor:
		pb, ok := pb.(*prog.ParFor)
		if !ok {
			return 0, mismatch(sb, pb)
		}
		n := Node{
			Kind:       KindParFor,
			ID:         sb.ID,
			Label:      "parfor " + sb.Var,
			Iterations: b.iterations(sb.From, sb.To, sb.Incr),
			Exec:       pb.Exec,
			DOP:        pb.DOP,
		}
		b.sizer.BindLoopVar(sb.Var)
		i, err := b.loop(n, sb.Body, pb.Body)
		if err != nil {
			return 0, err
		}
		b.tree.mapping.parfors[sb.ID] = pb
		b.tree.mapping.sources[sb.ID] = sb
		return i, nil
	}
	return 0, fmt.Errorf("unsupported statement block %T", sb)
}

func (b *builder) branch(seq dag.Seq, blocks []prog.Block) (int, error) {
	i, err := b.add(Node{Kind: KindSeq, Label: "branch"})
	if err != nil {
		return 0, err
	}
	kids, err := b.seq(seq, blocks)
	if err != nil {
		return 0, err
	}
	b.tree.Nodes[i].Children = kids
	return i, nil
}

func (b *builder) loop(n Node, seq dag.Seq, blocks []prog.Block) (int, error) {
	if seq == nil {
		return 0, fmt.Errorf("%s %d: missing body", n.Label, n.ID)
	}
	i, err := b.add(n)
	if err != nil {
		return 0, err
	}
	kids, err := b.seq(seq, blocks)
	if err != nil {
		return 0, err
	}
	b.tree.Nodes[i].Children = kids
	return i, nil
}

func (b *builder) basic(sb *dag.Basic, pb *prog.Basic) (int, error) {
	if len(sb.Stmts) != len(pb.Insts) {
		return 0, fmt.Errorf("block %d: %d statements but %d instructions", sb.ID, len(sb.Stmts), len(pb.Insts))
	}
	i, err := b.add(Node{Kind: KindSeq, ID: sb.ID, Label: "block"})
	if err != nil {
		return 0, err
	}
	var kids []int
	for k, stmt := range sb.Stmts {
		inst := pb.Insts[k]
		if inst.ID != stmt.ID {
			return 0, fmt.Errorf("block %d: statement %d does not match instruction %d", sb.ID, stmt.ID, inst.ID)
		}
		est := stmt.Est
		if est == nil {
			est = b.sizer.Estimate(stmt)
		}
		b.sizer.Bind(stmt, est)
		leaf := Node{
			Kind:   KindLeaf,
			ID:     stmt.ID,
			Label:  dag.Opcode(stmt.RHS) + " " + stmt.LHS,
			InMem:  est.InMem,
			OutMem: est.OutMem,
			Mem:    est.Mem,
			Exec:   stmt.Exec,
		}
		if b.input == RuntimePlan {
			leaf.Label = inst.String()
			leaf.Mem = inst.Mem
			leaf.Exec = inst.Exec
		}
		j, err := b.add(leaf)
		if err != nil {
			return 0, err
		}
		b.tree.mapping.stmts[stmt.ID] = stmt
		b.tree.mapping.insts[stmt.ID] = inst
		kids = append(kids, j)
	}
	b.tree.Nodes[i].Children = kids
	return i, nil
}

// iterations returns the number of iterations of a loop over
// [from, to] by incr or -1 if the bounds are unknown.  Counts beyond
// the range of int64 saturate.
func (b *builder) iterations(from, to, incr dag.Expr) int64 {
	lo, ok1 := b.sizer.Scalar(from)
	hi, ok2 := b.sizer.Scalar(to)
	step := 1.0
	if incr != nil {
		var ok bool
		if step, ok = b.sizer.Scalar(incr); !ok {
			return -1
		}
	}
	if !ok1 || !ok2 || step == 0 {
		return -1
	}
	n := math.Floor((hi-lo)/step) + 1
	switch {
	case math.IsNaN(n):
		return -1
	case n <= 0:
		return 0
	case n >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(n)
}

func mismatch(sb dag.Block, pb prog.Block) error {
	return fmt.Errorf("statement block %d (%T) does not match runtime block %T", sb.BlockID(), sb, pb)
}
