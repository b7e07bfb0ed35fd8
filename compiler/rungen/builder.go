// Package rungen generates the runtime program from statement blocks.
package rungen

import (
	"errors"
	"fmt"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/prog"
)

type Builder struct {
	// localMem is the budget in bytes an instruction may use when
	// executed locally.  Larger or unknown instructions run distributed.
	localMem float64
}

func NewBuilder(localMem float64) *Builder {
	return &Builder{localMem: localMem}
}

func (b *Builder) LocalMem() float64 {
	return b.localMem
}

// GenerateProgram builds the runtime program of p with sizes inferred
// from vars, which is not modified.
func (b *Builder) GenerateProgram(p *dag.Program, vars *exec.Vars) (*prog.Program, error) {
	rp := &prog.Program{Funcs: make(map[string]*prog.Func)}
	for _, key := range p.FuncKeys() {
		f := p.Funcs[key]
		fvars := exec.NewVars()
		for _, param := range f.Params {
			fvars.Set(param, exec.Value{Chars: exec.Unknown})
		}
		body, err := b.GenerateBlocks(rp, f.Body, fvars, 0)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", key, err)
		}
		rp.Funcs[key] = &prog.Func{Source: f, Body: body, RecompileOnce: f.RecompileOnce}
	}
	if vars == nil {
		vars = exec.NewVars()
	}
	blocks, err := b.GenerateBlocks(rp, p.Body, vars.Clone(), 0)
	if err != nil {
		return nil, err
	}
	rp.Blocks = blocks
	return rp, nil
}

// GenerateBlocks builds the runtime blocks of seq.  vars is owned by the
// call and updated with the outputs of seq.
func (b *Builder) GenerateBlocks(rp *prog.Program, seq dag.Seq, vars *exec.Vars, depth int) ([]prog.Block, error) {
	return b.generate(rp, seq, NewSizer(vars), depth)
}

func (b *Builder) generate(rp *prog.Program, seq dag.Seq, sizer *Sizer, depth int) ([]prog.Block, error) {
	var blocks []prog.Block
	for _, blk := range seq {
		var out prog.Block
		var err error
		switch blk := blk.(type) {
		case *dag.Basic:
			out = &prog.Basic{Source: blk, Insts: b.Compile(blk, sizer, depth)}
		case *dag.If:
			var then, els []prog.Block
			if then, err = b.generate(rp, blk.Then, sizer, depth); err != nil {
				return nil, err
			}
			if els, err = b.generate(rp, blk.Else, sizer, depth); err != nil {
				return nil, err
			}
			out = &prog.If{Source: blk, Then: then, Else: els}
		case *dag.While:
			body, err := b.generate(rp, blk.Body, sizer, depth+1)
			if err != nil {
				return nil, err
			}
			out = &prog.While{Source: blk, Body: body}
		case *dag.For:
			sizer.BindLoopVar(blk.Var)
			body, err := b.generate(rp, blk.Body, sizer, depth+1)
			if err != nil {
				return nil, err
			}
			out = &prog.For{Source: blk, Body: body}
		case *dag.ParFor:
			sizer.BindLoopVar(blk.Var)
			body, err := b.generate(rp, blk.Body, sizer, depth+1)
			if err != nil {
				return nil, err
			}
			out = &prog.ParFor{
				Source:  blk,
				Body:    body,
				Program: rp,
				DOP:     1,
				Exec:    prog.ExecLocal,
			}
		case nil:
			return nil, errors.New("nil statement block")
		default:
			return nil, fmt.Errorf("unknown statement block type %T", blk)
		}
		blocks = append(blocks, out)
	}
	return blocks, nil
}

// Compile generates the instructions of blk, annotating each statement
// with its size estimate and binding its output in sizer.
func (b *Builder) Compile(blk *dag.Basic, sizer *Sizer, depth int) []*prog.Instruction {
	insts := make([]*prog.Instruction, 0, len(blk.Stmts))
	for _, stmt := range blk.Stmts {
		est := sizer.Estimate(stmt)
		stmt.Est = est
		sizer.Bind(stmt, est)
		insts = append(insts, b.instruction(stmt, depth))
	}
	return insts
}

func (b *Builder) instruction(stmt *dag.Assign, depth int) *prog.Instruction {
	return &prog.Instruction{
		ID:     stmt.ID,
		Opcode: dag.Opcode(stmt.RHS),
		Output: stmt.LHS,
		Inputs: inputs(stmt.RHS),
		Exec:   b.ExecType(stmt),
		Mem:    stmt.Est.Mem,
		Depth:  depth,
	}
}

// ExecType selects where stmt runs: where a plan decision forced it,
// otherwise locally if its estimate fits the local budget.
func (b *Builder) ExecType(stmt *dag.Assign) dag.ExecType {
	if stmt.Exec != dag.ExecUnset {
		return stmt.Exec
	}
	if stmt.Est.Known() && stmt.Est.Mem <= b.localMem {
		return dag.ExecLocal
	}
	return dag.ExecDistributed
}

func inputs(e dag.Expr) []string {
	var names []string
	seen := make(map[string]struct{})
	dag.WalkExpr(e, func(e dag.Expr) {
		if v, ok := e.(*dag.Var); ok {
			if _, ok := seen[v.Name]; !ok {
				seen[v.Name] = struct{}{}
				names = append(names, v.Name)
			}
		}
	})
	return names
}
