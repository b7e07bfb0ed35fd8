// Package recompile regenerates the instructions of runtime blocks from
// current variable statistics.
package recompile

import (
	"fmt"
	"math"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/rungen"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/prog"
	"go.uber.org/zap"
)

type Recompiler struct {
	builder *rungen.Builder
	logger  *zap.Logger
}

func New(builder *rungen.Builder, logger *zap.Logger) *Recompiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recompiler{builder: builder, logger: logger}
}

// RecompileHierarchy recompiles blocks in place.  Statistics propagate
// from block to block through vars, which the caller must own.  Unless
// force is set, only instructions whose footprint was unknown are
// regenerated.
func (r *Recompiler) RecompileHierarchy(blocks []prog.Block, vars *exec.Vars, depth int, force bool) error {
	sizer := rungen.NewSizer(vars)
	for _, b := range blocks {
		if err := r.recompile(b, sizer, depth, force); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recompiler) recompile(b prog.Block, sizer *rungen.Sizer, depth int, force bool) error {
	switch b := b.(type) {
	case *prog.Basic:
		r.recompileBasic(b, sizer, depth, force)
	case *prog.If:
		vars := sizer.Vars()
		thenVars, elseVars := vars.Clone(), vars.Clone()
		if err := r.RecompileHierarchy(b.Then, thenVars, depth, force); err != nil {
			return err
		}
		if err := r.RecompileHierarchy(b.Else, elseVars, depth, force); err != nil {
			return err
		}
		reconcileBranches(vars, thenVars, elseVars)
	case *prog.While:
		return r.recompileLoop(b.Source.Body, b.Body, "", sizer, depth, force)
	case *prog.For:
		return r.recompileLoop(b.Source.Body, b.Body, b.Source.Var, sizer, depth, force)
	case *prog.ParFor:
		return r.recompileLoop(b.Source.Body, b.Body, b.Source.Var, sizer, depth, force)
	default:
		return fmt.Errorf("recompile: unknown block type %T", b)
	}
	return nil
}

func (r *Recompiler) recompileBasic(b *prog.Basic, sizer *rungen.Sizer, depth int, force bool) {
	if len(b.Source.Stmts) != len(b.Insts) || force {
		b.Insts = r.builder.Compile(b.Source, sizer, depth)
		r.logger.Debug("recompiled block", zap.Int64("block", b.ID()), zap.Int("instructions", len(b.Insts)))
		return
	}
	fresh := r.builder.Compile(b.Source, sizer, depth)
	var n int
	for i, inst := range b.Insts {
		if inst.Mem < 0 {
			b.Insts[i] = fresh[i]
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("recompiled block", zap.Int64("block", b.ID()), zap.Int("instructions", n))
	}
}

// recompileLoop recompiles a loop body.  Characteristics of variables
// the body updates that change across an iteration become unknown and
// the body is recompiled once more under that assumption.
func (r *Recompiler) recompileLoop(seq dag.Seq, body []prog.Block, loopVar string, sizer *rungen.Sizer, depth int, force bool) error {
	vars := sizer.Vars()
	if loopVar != "" {
		sizer.BindLoopVar(loopVar)
	}
	_, updated := dag.Vars(seq)
	first := vars.Clone()
	if err := r.RecompileHierarchy(body, first, depth+1, force); err != nil {
		return err
	}
	if !reconcileLoop(vars, first, updated) {
		return nil
	}
	second := vars.Clone()
	if err := r.RecompileHierarchy(body, second, depth+1, force); err != nil {
		return err
	}
	reconcileLoop(vars, second, updated)
	return nil
}

// reconcileLoop merges the characteristics of the updated variables
// after an iteration into vars and reports whether any changed.
func reconcileLoop(vars, after *exec.Vars, updated dag.VarSet) bool {
	var changed bool
	for _, name := range updated.Sorted() {
		a, ok := after.Get(name)
		if !ok {
			continue
		}
		before, ok := vars.Get(name)
		if !ok {
			vars.Set(name, a)
			continue
		}
		if merged := merge(before, a); !sameShape(merged, before) {
			vars.Set(name, merged)
			changed = true
		}
	}
	return changed
}

// reconcileBranches merges the outcomes of the two branches of an if
// block into vars.  A characteristic survives only if both branches
// agree on it.
func reconcileBranches(vars, thenVars, elseVars *exec.Vars) {
	names := make(dag.VarSet)
	for _, name := range thenVars.Names() {
		names.Add(name)
	}
	for _, name := range elseVars.Names() {
		names.Add(name)
	}
	for _, name := range names.Sorted() {
		t, tok := thenVars.Get(name)
		e, eok := elseVars.Get(name)
		switch {
		case tok && eok:
			vars.Set(name, merge(t, e))
		case tok:
			vars.Set(name, unknownLike(t))
		default:
			vars.Set(name, unknownLike(e))
		}
	}
}

func merge(a, b exec.Value) exec.Value {
	if a.Scalar != b.Scalar {
		return exec.Value{Chars: exec.Unknown}
	}
	if a.Scalar {
		if sameShape(a, b) {
			return a
		}
		return exec.NewScalar(math.NaN())
	}
	agree := func(x, y int64) int64 {
		if x == y {
			return x
		}
		return -1
	}
	return exec.NewMatrix(agree(a.Chars.Rows, b.Chars.Rows), agree(a.Chars.Cols, b.Chars.Cols), agree(a.Chars.NNZ, b.Chars.NNZ))
}

func sameShape(a, b exec.Value) bool {
	if a.Scalar != b.Scalar {
		return false
	}
	if a.Scalar {
		return a.Num == b.Num || (math.IsNaN(a.Num) && math.IsNaN(b.Num))
	}
	return a.Chars == b.Chars
}

func unknownLike(v exec.Value) exec.Value {
	if v.Scalar {
		return exec.NewScalar(math.NaN())
	}
	return exec.Value{Chars: exec.Unknown}
}
