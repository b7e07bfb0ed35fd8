// Package rewrite implements the statement-level rewrites applied to a
// parfor body before it is recompiled: constant propagation, constant
// folding and dead-branch elimination.
package rewrite

import (
	"math"
	"reflect"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/runtime/exec"
)

// Status accumulates what a sequence of rewrites changed.
type Status struct {
	Propagated      int
	Folded          int
	RemovedBranches int
}

// Rule rewrites seq, recording its changes in status, and returns the
// rewritten sequence.
type Rule func(seq dag.Seq, status *Status) dag.Seq

type Rewriter struct {
	rules []Rule
}

func NewRewriter(rules ...Rule) *Rewriter {
	return &Rewriter{rules: rules}
}

// NewDefault returns the rule set applied to parfor bodies: expression
// rules precede block rules so that folded conditions can select a
// branch.
func NewDefault() *Rewriter {
	return NewRewriter(FoldConstants, RemoveUnnecessaryBranches)
}

func (r *Rewriter) Rewrite(seq dag.Seq) (dag.Seq, Status) {
	var status Status
	for _, rule := range r.rules {
		seq = rule(seq, &status)
	}
	return seq, status
}

// ReusableScalars returns the scalars of vars whose values are known and
// which are neither updated by seq nor named in volatile.  These may be
// replaced by literals in seq.
func ReusableScalars(seq dag.Seq, vars *exec.Vars, volatile dag.VarSet) map[string]float64 {
	read, updated := dag.Vars(seq)
	consts := make(map[string]float64)
	for _, name := range read.Sorted() {
		if updated.Has(name) || volatile.Has(name) {
			continue
		}
		if v, ok := vars.Get(name); ok && v.Scalar && !math.IsNaN(v.Num) {
			consts[name] = v.Num
		}
	}
	return consts
}

// PropagateConstants replaces every reference in seq to a variable in
// consts with its literal value and returns the number of replacements.
func PropagateConstants(seq dag.Seq, consts map[string]float64) int {
	if len(consts) == 0 {
		return 0
	}
	var n int
	dag.WalkT(reflect.ValueOf(seq), func(e dag.Expr) dag.Expr {
		if v, ok := e.(*dag.Var); ok {
			if val, ok := consts[v.Name]; ok {
				n++
				return dag.NewLiteral(val)
			}
		}
		return e
	})
	return n
}

// FoldConstants replaces scalar operators over literals with their
// values.
func FoldConstants(seq dag.Seq, status *Status) dag.Seq {
	dag.WalkT(reflect.ValueOf(seq), func(e dag.Expr) dag.Expr {
		switch e := e.(type) {
		case *dag.Unary:
			if a, ok := dag.LiteralValue(e.Expr); ok {
				if v, ok := dag.EvalUnary(e.Op, a); ok {
					status.Folded++
					return dag.NewLiteral(v)
				}
			}
		case *dag.Binary:
			a, ok1 := dag.LiteralValue(e.LHS)
			b, ok2 := dag.LiteralValue(e.RHS)
			if ok1 && ok2 {
				if v, ok := dag.EvalBinary(e.Op, a, b); ok {
					status.Folded++
					return dag.NewLiteral(v)
				}
			}
		}
		return e
	})
	return seq
}

// RemoveUnnecessaryBranches replaces each if block whose condition is a
// literal with the blocks of the branch it selects.
func RemoveUnnecessaryBranches(seq dag.Seq, status *Status) dag.Seq {
	out := make(dag.Seq, 0, len(seq))
	for _, b := range seq {
		switch b := b.(type) {
		case *dag.If:
			b.Then = RemoveUnnecessaryBranches(b.Then, status)
			b.Else = RemoveUnnecessaryBranches(b.Else, status)
			if cond, ok := dag.LiteralValue(b.Cond); ok {
				status.RemovedBranches++
				if cond != 0 {
					out = append(out, b.Then...)
				} else {
					out = append(out, b.Else...)
				}
				continue
			}
		case *dag.While:
			b.Body = RemoveUnnecessaryBranches(b.Body, status)
		case *dag.For:
			b.Body = RemoveUnnecessaryBranches(b.Body, status)
		case *dag.ParFor:
			b.Body = RemoveUnnecessaryBranches(b.Body, status)
		}
		out = append(out, b)
	}
	return out
}
