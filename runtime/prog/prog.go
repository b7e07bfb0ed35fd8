// Package prog is the executable form of a program: blocks of
// instructions mirroring the statement blocks they were generated from.
package prog

import (
	"fmt"
	"strings"

	"github.com/brimdata/parfor/compiler/dag"
)

type ExecType = dag.ExecType

const (
	ExecUnset       = dag.ExecUnset
	ExecLocal       = dag.ExecLocal
	ExecDistributed = dag.ExecDistributed
)

type Program struct {
	Blocks []Block
	Funcs  map[string]*Func
}

func (p *Program) Func(namespace, name string) (*Func, error) {
	key := dag.FuncKey(namespace, name)
	f, ok := p.Funcs[key]
	if !ok {
		return nil, fmt.Errorf("no such function: %s", key)
	}
	return f, nil
}

type Func struct {
	Source        *dag.Func
	Body          []Block
	RecompileOnce bool
}

type Block interface {
	blockNode()
	ID() int64
}

type (
	Basic struct {
		Source *dag.Basic
		Insts  []*Instruction
	}
	If struct {
		Source *dag.If
		Then   []Block
		Else   []Block
	}
	While struct {
		Source *dag.While
		Body   []Block
	}
	For struct {
		Source *dag.For
		Body   []Block
	}
	// ParFor carries the runtime parameters chosen by the optimizer.
	ParFor struct {
		Source      *dag.ParFor
		Body        []Block
		Program     *Program
		DOP         int
		Exec        ExecType
		Partitioner Partitioner
		ResultMerge ResultMerge
	}
)

func (*Basic) blockNode()  {}
func (*If) blockNode()     {}
func (*While) blockNode()  {}
func (*For) blockNode()    {}
func (*ParFor) blockNode() {}

func (b *Basic) ID() int64  { return b.Source.ID }
func (b *If) ID() int64     { return b.Source.ID }
func (b *While) ID() int64  { return b.Source.ID }
func (b *For) ID() int64    { return b.Source.ID }
func (b *ParFor) ID() int64 { return b.Source.ID }

// HasFunctions reports whether the body of p calls any function.
func (p *ParFor) HasFunctions() bool {
	return len(dag.Calls(p.Source.Body)) > 0
}

// Instruction is the executable form of one statement.
type Instruction struct {
	ID     int64
	Opcode string
	Output string
	Inputs []string
	Exec   ExecType
	// Mem is the estimated memory footprint in bytes, or negative if
	// unknown.
	Mem float64
	// Depth is the loop nesting depth at which the instruction was
	// (re)compiled.
	Depth int
}

func (i *Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", i.Exec, i.Opcode, i.Output)
	if len(i.Inputs) > 0 {
		fmt.Fprintf(&b, " <- %s", strings.Join(i.Inputs, ","))
	}
	return b.String()
}

type Partitioner int

const (
	PartitionNone Partitioner = iota
	PartitionLocalRow
	PartitionLocalCol
	PartitionRemoteRow
	PartitionRemoteCol
)

func (p Partitioner) String() string {
	switch p {
	case PartitionLocalRow:
		return "local-row"
	case PartitionLocalCol:
		return "local-col"
	case PartitionRemoteRow:
		return "remote-row"
	case PartitionRemoteCol:
		return "remote-col"
	}
	return "none"
}

type ResultMerge int

const (
	MergeLocalMem ResultMerge = iota
	MergeLocalFile
	MergeRemote
)

func (m ResultMerge) String() string {
	switch m {
	case MergeLocalFile:
		return "local-file"
	case MergeRemote:
		return "remote"
	}
	return "local-mem"
}

// Walk calls visit on every block of blocks in pre-order, descending
// into branches and loop bodies including nested parfor loops.
func Walk(blocks []Block, visit func(Block)) {
	for _, b := range blocks {
		visit(b)
		switch b := b.(type) {
		case *If:
			Walk(b.Then, visit)
			Walk(b.Else, visit)
		case *While:
			Walk(b.Body, visit)
		case *For:
			Walk(b.Body, visit)
		case *ParFor:
			Walk(b.Body, visit)
		}
	}
}

// Instructions returns the instructions of blocks keyed by statement
// identifier.
func Instructions(blocks []Block) map[int64]*Instruction {
	insts := make(map[int64]*Instruction)
	Walk(blocks, func(b Block) {
		if basic, ok := b.(*Basic); ok {
			for _, inst := range basic.Insts {
				insts[inst.ID] = inst
			}
		}
	})
	return insts
}
