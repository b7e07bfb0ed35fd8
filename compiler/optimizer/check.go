package optimizer

import (
	"fmt"
	"strings"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/runtime/prog"
)

type varSnapshot struct {
	read    dag.VarSet
	updated dag.VarSet
}

func snapshotVars(sb *dag.ParFor) varSnapshot {
	read, updated := dag.Vars(sb.Body)
	return varSnapshot{read: read, updated: updated}
}

// checkCorrectness verifies that optimizing the loop sb changed neither
// the variables its body reads and updates nor the correspondence of its
// statements and instructions, and that every instruction was placed.
func checkCorrectness(sb *dag.ParFor, pb *prog.ParFor, before varSnapshot) error {
	after := snapshotVars(sb)
	if !before.read.Equal(after.read) {
		return fmt.Errorf("%w: variables read changed from [%s] to [%s]", ErrCorrectness,
			strings.Join(before.read.Sorted(), ","), strings.Join(after.read.Sorted(), ","))
	}
	if !before.updated.Equal(after.updated) {
		return fmt.Errorf("%w: variables updated changed from [%s] to [%s]", ErrCorrectness,
			strings.Join(before.updated.Sorted(), ","), strings.Join(after.updated.Sorted(), ","))
	}
	insts := prog.Instructions(pb.Body)
	var nstmts int
	var err error
	dag.WalkBlocks(sb.Body, func(b dag.Block) {
		basic, ok := b.(*dag.Basic)
		if !ok || err != nil {
			return
		}
		for _, stmt := range basic.Stmts {
			nstmts++
			inst, ok := insts[stmt.ID]
			switch {
			case !ok:
				err = fmt.Errorf("%w: statement %d has no instruction", ErrCorrectness, stmt.ID)
			case inst.Output != stmt.LHS:
				err = fmt.Errorf("%w: instruction %d writes %s instead of %s", ErrCorrectness, inst.ID, inst.Output, stmt.LHS)
			case inst.Exec == prog.ExecUnset:
				err = fmt.Errorf("%w: instruction %d has no execution location", ErrCorrectness, inst.ID)
			}
			if err != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if nstmts != len(insts) {
		return fmt.Errorf("%w: %d statements but %d instructions", ErrCorrectness, nstmts, len(insts))
	}
	var bad *prog.ParFor
	prog.Walk([]prog.Block{pb}, func(b prog.Block) {
		if p, ok := b.(*prog.ParFor); ok && p.DOP < 1 && bad == nil {
			bad = p
		}
	})
	if bad != nil {
		return fmt.Errorf("%w: parfor %d has degree of parallelism %d", ErrCorrectness, bad.ID(), bad.DOP)
	}
	return nil
}

type parforParams struct {
	dop         int
	exec        prog.ExecType
	partitioner prog.Partitioner
	merge       prog.ResultMerge
}

// savedPlan holds the plan of a loop as it was before an optimization.
type savedPlan struct {
	pb      *prog.ParFor
	body    []prog.Block
	parfors map[*prog.ParFor]parforParams
	insts   map[*prog.Instruction]prog.Instruction
	stmts   map[*dag.Assign]dag.ExecType
}

func savePlan(sb *dag.ParFor, pb *prog.ParFor) *savedPlan {
	s := &savedPlan{
		pb:      pb,
		body:    pb.Body,
		parfors: make(map[*prog.ParFor]parforParams),
		insts:   make(map[*prog.Instruction]prog.Instruction),
		stmts:   make(map[*dag.Assign]dag.ExecType),
	}
	prog.Walk([]prog.Block{pb}, func(b prog.Block) {
		switch b := b.(type) {
		case *prog.ParFor:
			s.parfors[b] = parforParams{b.DOP, b.Exec, b.Partitioner, b.ResultMerge}
		case *prog.Basic:
			for _, inst := range b.Insts {
				s.insts[inst] = *inst
			}
		}
	})
	dag.WalkBlocks(sb.Body, func(b dag.Block) {
		if basic, ok := b.(*dag.Basic); ok {
			for _, stmt := range basic.Stmts {
				s.stmts[stmt] = stmt.Exec
			}
		}
	})
	return s
}

func (s *savedPlan) restore() {
	s.pb.Body = s.body
	for p, params := range s.parfors {
		p.DOP = params.dop
		p.Exec = params.exec
		p.Partitioner = params.partitioner
		p.ResultMerge = params.merge
	}
	for inst, saved := range s.insts {
		*inst = saved
	}
	for stmt, exec := range s.stmts {
		stmt.Exec = exec
	}
}

// copyExec sets the execution type of each statement of to from the
// statement of from with the same identifier.
func copyExec(from, to dag.Seq) {
	execs := make(map[int64]dag.ExecType)
	dag.WalkBlocks(from, func(b dag.Block) {
		if basic, ok := b.(*dag.Basic); ok {
			for _, stmt := range basic.Stmts {
				execs[stmt.ID] = stmt.Exec
			}
		}
	})
	dag.WalkBlocks(to, func(b dag.Block) {
		if basic, ok := b.(*dag.Basic); ok {
			for _, stmt := range basic.Stmts {
				if exec, ok := execs[stmt.ID]; ok {
					stmt.Exec = exec
				}
			}
		}
	})
}
