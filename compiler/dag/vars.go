package dag

import (
	"maps"
	"slices"
)

type VarSet map[string]struct{}

func (s VarSet) Add(name string) {
	s[name] = struct{}{}
}

func (s VarSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s VarSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

func (s VarSet) Equal(other VarSet) bool {
	if len(s) != len(other) {
		return false
	}
	for name := range s {
		if !other.Has(name) {
			return false
		}
	}
	return true
}

// Vars returns the variables read and the variables updated by seq,
// including loop variables and the variables referenced by loop bounds
// and branch conditions.
func Vars(seq Seq) (read VarSet, updated VarSet) {
	read, updated = make(VarSet), make(VarSet)
	readExpr := func(e Expr) {
		WalkExpr(e, func(e Expr) {
			if v, ok := e.(*Var); ok {
				read.Add(v.Name)
			}
		})
	}
	WalkBlocks(seq, func(b Block) {
		switch b := b.(type) {
		case *Basic:
			for _, s := range b.Stmts {
				readExpr(s.RHS)
				updated.Add(s.LHS)
			}
		case *If:
			readExpr(b.Cond)
		case *While:
			readExpr(b.Cond)
		case *For:
			readExpr(b.From)
			readExpr(b.To)
			readExpr(b.Incr)
			updated.Add(b.Var)
		case *ParFor:
			readExpr(b.From)
			readExpr(b.To)
			readExpr(b.Incr)
			updated.Add(b.Var)
		}
	})
	return read, updated
}

// Calls returns the keys of the functions called anywhere in seq.
func Calls(seq Seq) VarSet {
	calls := make(VarSet)
	visit := func(e Expr) {
		WalkExpr(e, func(e Expr) {
			if c, ok := e.(*Call); ok {
				calls.Add(c.Key())
			}
		})
	}
	WalkBlocks(seq, func(b Block) {
		switch b := b.(type) {
		case *Basic:
			for _, s := range b.Stmts {
				visit(s.RHS)
			}
		case *If:
			visit(b.Cond)
		case *While:
			visit(b.Cond)
		case *For:
			visit(b.From)
			visit(b.To)
			visit(b.Incr)
		case *ParFor:
			visit(b.From)
			visit(b.To)
			visit(b.Incr)
		}
	})
	return calls
}
