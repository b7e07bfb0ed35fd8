package rungen

import (
	"math"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/runtime/exec"
)

const (
	// Matrices sparser than this are assumed to be stored in sparse
	// format.
	SparsityTurnPoint = 0.4
	ScalarSize        = 8
)

// MatrixSize returns the in-memory size in bytes of a matrix with the
// characteristics c, or -1 if its dimensions are unknown.
func MatrixSize(c exec.Chars) float64 {
	if !c.DimsKnown() {
		return -1
	}
	if c.NNZ >= 0 && c.Sparsity() < SparsityTurnPoint {
		return float64(c.NNZ)*16 + float64(c.Rows)*8
	}
	return float64(c.Rows) * float64(c.Cols) * 8
}

// ValueSize is like MatrixSize but also sizes scalars.
func ValueSize(v exec.Value) float64 {
	if v.Scalar {
		return ScalarSize
	}
	return MatrixSize(v.Chars)
}

// Sizer infers the characteristics of statement DAGs.  Each statement's
// output is bound in the Sizer's own symbol table so that sizes
// propagate to later statements.
type Sizer struct {
	vars *exec.Vars
}

// NewSizer returns a Sizer that owns vars.
func NewSizer(vars *exec.Vars) *Sizer {
	if vars == nil {
		vars = exec.NewVars()
	}
	return &Sizer{vars: vars}
}

func (s *Sizer) Vars() *exec.Vars {
	return s.vars
}

// BindLoopVar binds the iteration variable of a loop, whose value is
// unknown at compile time.
func (s *Sizer) BindLoopVar(name string) {
	s.vars.Set(name, exec.NewScalar(math.NaN()))
}

// Scalar returns the value of e if it can be computed from literals and
// known scalar variables.
func (s *Sizer) Scalar(e dag.Expr) (float64, bool) {
	switch e := e.(type) {
	case *dag.Literal:
		return e.Value, true
	case *dag.Var:
		if v, ok := s.vars.Get(e.Name); ok && v.Scalar && !math.IsNaN(v.Num) {
			return v.Num, true
		}
	case *dag.Unary:
		if a, ok := s.Scalar(e.Expr); ok {
			return dag.EvalUnary(e.Op, a)
		}
	case *dag.Binary:
		a, ok1 := s.Scalar(e.LHS)
		b, ok2 := s.Scalar(e.RHS)
		if ok1 && ok2 {
			return dag.EvalBinary(e.Op, a, b)
		}
	}
	return 0, false
}

func (s *Sizer) dim(e dag.Expr) int64 {
	if v, ok := s.Scalar(e); ok && v >= 0 {
		return int64(v)
	}
	return -1
}

// Infer returns the value shape computed by e.
func (s *Sizer) Infer(e dag.Expr) exec.Value {
	switch e := e.(type) {
	case *dag.Literal:
		return exec.NewScalar(e.Value)
	case *dag.Var:
		if v, ok := s.vars.Get(e.Name); ok {
			return v
		}
		return exec.Value{Chars: exec.Unknown}
	case *dag.Rand:
		rows, cols := s.dim(e.Rows), s.dim(e.Cols)
		nnz := int64(-1)
		if rows >= 0 && cols >= 0 {
			sparsity := e.Sparsity
			if sparsity <= 0 || sparsity > 1 {
				sparsity = 1
			}
			nnz = int64(math.Round(float64(rows*cols) * sparsity))
		}
		return exec.NewMatrix(rows, cols, nnz)
	case *dag.Unary:
		in := s.Infer(e.Expr)
		switch e.Op {
		case "nrow", "ncol", "length":
			return s.scalarOf(e)
		}
		if in.Scalar {
			return s.scalarOf(e)
		}
		switch e.Op {
		case "t":
			return exec.NewMatrix(in.Chars.Cols, in.Chars.Rows, in.Chars.NNZ)
		case "abs", "sqrt", "round", "-":
			return in
		}
		return exec.NewMatrix(in.Chars.Rows, in.Chars.Cols, -1)
	case *dag.Binary:
		lhs, rhs := s.Infer(e.LHS), s.Infer(e.RHS)
		switch {
		case lhs.Scalar && rhs.Scalar:
			return s.scalarOf(e)
		case rhs.Scalar:
			return exec.NewMatrix(lhs.Chars.Rows, lhs.Chars.Cols, -1)
		case lhs.Scalar:
			return exec.NewMatrix(rhs.Chars.Rows, rhs.Chars.Cols, -1)
		}
		rows, cols := lhs.Chars.Rows, lhs.Chars.Cols
		if rows < 0 {
			rows = rhs.Chars.Rows
		}
		if cols < 0 {
			cols = rhs.Chars.Cols
		}
		return exec.NewMatrix(rows, cols, -1)
	case *dag.MatMul:
		lhs, rhs := s.Infer(e.LHS), s.Infer(e.RHS)
		if lhs.Scalar || rhs.Scalar {
			return s.Infer(dag.NewBinary("*", e.LHS, e.RHS))
		}
		return exec.NewMatrix(lhs.Chars.Rows, rhs.Chars.Cols, -1)
	case *dag.Agg:
		in := s.Infer(e.Expr)
		switch e.Dir {
		case "row":
			return exec.NewMatrix(in.Chars.Rows, 1, -1)
		case "col":
			return exec.NewMatrix(1, in.Chars.Cols, -1)
		}
		return exec.NewScalar(math.NaN())
	case *dag.Index:
		in := s.Infer(e.Expr)
		rows := s.extent(e.RowLo, e.RowHi, in.Chars.Rows)
		cols := s.extent(e.ColLo, e.ColHi, in.Chars.Cols)
		return exec.NewMatrix(rows, cols, -1)
	}
	return exec.Value{Chars: exec.Unknown}
}

func (s *Sizer) scalarOf(e dag.Expr) exec.Value {
	if v, ok := s.Scalar(e); ok {
		return exec.NewScalar(v)
	}
	return exec.NewScalar(math.NaN())
}

func (s *Sizer) extent(lo, hi dag.Expr, full int64) int64 {
	from, to := int64(1), full
	if lo != nil {
		from = s.dim(lo)
	}
	if hi != nil {
		to = s.dim(hi)
	}
	if from < 0 || to < 0 {
		// A single cell selected by an unknown index still has extent 1.
		if lo != nil && hi != nil && exprEqual(lo, hi) {
			return 1
		}
		return -1
	}
	return to - from + 1
}

func exprEqual(a, b dag.Expr) bool {
	switch a := a.(type) {
	case *dag.Var:
		if b, ok := b.(*dag.Var); ok {
			return a.Name == b.Name
		}
	case *dag.Literal:
		if b, ok := b.(*dag.Literal); ok {
			return a.Value == b.Value
		}
	}
	return false
}

// Estimate computes the size estimate of stmt.  The footprint of a
// statement is that of its most expensive operator: the operator's
// inputs plus its output.
func (s *Sizer) Estimate(stmt *dag.Assign) *dag.Estimate {
	out := s.Infer(stmt.RHS)
	est := &dag.Estimate{
		Rows:   out.Chars.Rows,
		Cols:   out.Chars.Cols,
		NNZ:    out.Chars.NNZ,
		Scalar: out.Scalar,
		OutMem: ValueSize(out),
	}
	if out.Scalar {
		est.Rows, est.Cols, est.NNZ = 0, 0, 0
	}
	est.InMem = s.inputSize(stmt.RHS)
	est.Mem = s.footprint(stmt.RHS)
	return est
}

func (s *Sizer) inputSize(e dag.Expr) float64 {
	var total float64
	seen := make(map[string]struct{})
	dag.WalkExpr(e, func(e dag.Expr) {
		v, ok := e.(*dag.Var)
		if !ok || total < 0 {
			return
		}
		if _, ok := seen[v.Name]; ok {
			return
		}
		seen[v.Name] = struct{}{}
		size := ValueSize(s.Infer(v))
		if size < 0 {
			total = -1
			return
		}
		total += size
	})
	return total
}

func (s *Sizer) footprint(e dag.Expr) float64 {
	var worst float64
	var unknown bool
	dag.WalkExpr(e, func(e dag.Expr) {
		switch e.(type) {
		case *dag.Literal, *dag.Var:
			return
		}
		mem := ValueSize(s.Infer(e))
		if mem < 0 {
			unknown = true
			return
		}
		for _, o := range dag.Operands(e) {
			size := ValueSize(s.Infer(o))
			if size < 0 {
				mem = -1
				break
			}
			mem += size
		}
		if mem < 0 {
			unknown = true
			return
		}
		worst = max(worst, mem)
	})
	if unknown {
		return -1
	}
	if worst == 0 {
		worst = ValueSize(s.Infer(e))
	}
	return worst
}

// Bind records the value computed by stmt so later statements see it.
func (s *Sizer) Bind(stmt *dag.Assign, est *dag.Estimate) {
	if est.Scalar {
		v := math.NaN()
		if n, ok := s.Scalar(stmt.RHS); ok {
			v = n
		}
		s.vars.Set(stmt.LHS, exec.NewScalar(v))
		return
	}
	s.vars.Set(stmt.LHS, exec.NewMatrix(est.Rows, est.Cols, est.NNZ))
}
