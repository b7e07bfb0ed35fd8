package recompile

import (
	"maps"
	"slices"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/rungen"
	"github.com/brimdata/parfor/runtime/exec"
)

// Candidate is a function that may be specialized to the arguments it
// is called with.
type Candidate struct {
	Key  string
	Args []exec.Value
}

// Params binds the parameters of f to the candidate's arguments.
func (c Candidate) Params(f *dag.Func) *exec.Vars {
	vars := exec.NewVars()
	for i, name := range f.Params {
		if i < len(c.Args) {
			vars.Set(name, c.Args[i])
		} else {
			vars.Set(name, exec.Value{Chars: exec.Unknown})
		}
	}
	return vars
}

// AnalyzeSubProgram returns, in key order, the functions called from seq
// whose every call site passes the same, fully known argument
// characteristics.  Functions that call other functions are never
// candidates.
func AnalyzeSubProgram(seq dag.Seq, funcs map[string]*dag.Func, vars *exec.Vars) []Candidate {
	sites := make(map[string][][]exec.Value)
	unsafe := make(dag.VarSet)
	sizer := rungen.NewSizer(vars.Clone())
	var walk func(dag.Seq)
	walk = func(seq dag.Seq) {
		for _, b := range seq {
			switch b := b.(type) {
			case *dag.Basic:
				for _, stmt := range b.Stmts {
					dag.WalkExpr(stmt.RHS, func(e dag.Expr) {
						if call, ok := e.(*dag.Call); ok {
							args := make([]exec.Value, 0, len(call.Args))
							for _, arg := range call.Args {
								args = append(args, sizer.Infer(arg))
							}
							sites[call.Key()] = append(sites[call.Key()], args)
						}
					})
					sizer.Bind(stmt, sizer.Estimate(stmt))
				}
			case *dag.If:
				walk(b.Then)
				walk(b.Else)
			case *dag.While:
				walk(b.Body)
			case *dag.For:
				sizer.BindLoopVar(b.Var)
				walk(b.Body)
			case *dag.ParFor:
				sizer.BindLoopVar(b.Var)
				walk(b.Body)
			}
		}
	}
	walk(seq)
	for key, calls := range sites {
		f, ok := funcs[key]
		if !ok || len(dag.Calls(f.Body)) > 0 {
			unsafe.Add(key)
			continue
		}
		for _, args := range calls {
			if len(args) != len(f.Params) || !slices.EqualFunc(args, calls[0], sameShape) || !known(args) {
				unsafe.Add(key)
				break
			}
		}
	}
	var out []Candidate
	for _, key := range slices.Sorted(maps.Keys(sites)) {
		if !unsafe.Has(key) {
			out = append(out, Candidate{Key: key, Args: sites[key][0]})
		}
	}
	return out
}

func known(args []exec.Value) bool {
	for _, a := range args {
		if !a.Scalar && !a.Chars.DimsKnown() {
			return false
		}
	}
	return true
}
