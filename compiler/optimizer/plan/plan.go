// Package plan implements the plan tree the parfor optimizers search
// over.  A tree mirrors the nested block structure of one parfor loop and
// carries the cost annotations and execution decisions for each
// construct.
package plan

import (
	"fmt"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/runtime/prog"
)

type Kind int

const (
	KindSeq Kind = iota
	KindIf
	KindLoop
	KindParFor
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindSeq:
		return "SEQ"
	case KindIf:
		return "IF"
	case KindLoop:
		return "LOOP"
	case KindParFor:
		return "PARFOR"
	case KindLeaf:
		return "LEAF"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// InputType selects what a plan's leaves are derived from.
type InputType int

const (
	// AbstractPlan leaves are statements sized by recompilation.
	AbstractPlan InputType = iota
	// RuntimePlan leaves are generated instructions and start out at
	// the instruction's current execution location.
	RuntimePlan
)

func (i InputType) String() string {
	if i == RuntimePlan {
		return "runtime"
	}
	return "abstract"
}

type Cost struct {
	// Mem is the peak memory in bytes.
	Mem float64
	// Time is the estimated execution time in seconds.
	Time float64
}

type Node struct {
	Kind Kind
	// ID identifies the construct the node represents.  Synthetic
	// sequence nodes for the branches of an if have ID zero.
	ID       int64
	Label    string
	Children []int
	Exec     prog.ExecType
	DOP      int
	// Partitioner and ResultMerge are chosen for parfor nodes.
	Partitioner prog.Partitioner
	ResultMerge prog.ResultMerge
	// Iterations is the iteration count of a loop or -1 if unknown.
	Iterations int64
	// InMem, OutMem and Mem are the input, output and total sizes in
	// bytes of a leaf, negative if unknown.
	InMem  float64
	OutMem float64
	Mem    float64
	Cost   *Cost
}

func (n *Node) IsLoop() bool {
	return n.Kind == KindLoop || n.Kind == KindParFor
}

// Tree is an arena of nodes rooted at the parfor loop it was built for.
type Tree struct {
	Nodes []Node
	Root  int
	// CK and CM are the parallelism and memory ceilings.
	CK    int
	CM    float64
	Input InputType

	index   map[int64]int
	mapping *Mapping
}

func (t *Tree) Node(i int) *Node {
	return &t.Nodes[i]
}

// Lookup returns the arena index of the node for construct id.
func (t *Tree) Lookup(id int64) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

func (t *Tree) Mapping() *Mapping {
	return t.mapping
}

// Walk calls visit on the subtree at i in pre-order.
func (t *Tree) Walk(i int, visit func(int)) {
	visit(i)
	for _, c := range t.Nodes[i].Children {
		t.Walk(c, visit)
	}
}

// Leaves returns the leaves of the subtree at i in pre-order.
func (t *Tree) Leaves(i int) []int {
	var out []int
	t.Walk(i, func(j int) {
		if t.Nodes[j].Kind == KindLeaf {
			out = append(out, j)
		}
	})
	return out
}

// ParFors returns the parfor nodes of the subtree at i in pre-order,
// including i itself.
func (t *Tree) ParFors(i int) []int {
	var out []int
	t.Walk(i, func(j int) {
		if t.Nodes[j].Kind == KindParFor {
			out = append(out, j)
		}
	})
	return out
}

// ResetCosts discards the cost annotations of the subtree at i.
func (t *Tree) ResetCosts(i int) {
	t.Walk(i, func(j int) {
		t.Nodes[j].Cost = nil
	})
}

// Clear drops the tree's associations with the program it was built
// from.  The tree can still be explained but no longer applied.
func (t *Tree) Clear() {
	t.mapping.clear()
}

// Mapping associates construct identifiers with the statement blocks,
// statements, runtime blocks and instructions of one build.
type Mapping struct {
	stmts   map[int64]*dag.Assign
	insts   map[int64]*prog.Instruction
	parfors map[int64]*prog.ParFor
	sources map[int64]*dag.ParFor
}

func newMapping() *Mapping {
	return &Mapping{
		stmts:   make(map[int64]*dag.Assign),
		insts:   make(map[int64]*prog.Instruction),
		parfors: make(map[int64]*prog.ParFor),
		sources: make(map[int64]*dag.ParFor),
	}
}

func (m *Mapping) clear() {
	clear(m.stmts)
	clear(m.insts)
	clear(m.parfors)
	clear(m.sources)
}

func (m *Mapping) Len() int {
	return len(m.stmts) + len(m.parfors)
}

// Stmt returns the statement and instruction of leaf id.  The
// instruction is nil in abstract plans built without runtime blocks.
func (m *Mapping) Stmt(id int64) (*dag.Assign, *prog.Instruction, bool) {
	stmt, ok := m.stmts[id]
	return stmt, m.insts[id], ok
}

func (m *Mapping) ParFor(id int64) (*dag.ParFor, *prog.ParFor, bool) {
	pb, ok := m.parfors[id]
	return m.sources[id], pb, ok
}

// Workers returns the number of workers the subtree at i schedules
// concurrently: the product of the degrees of parallelism along its
// most parallel path of nested parfor loops.
func (t *Tree) Workers(i int) int {
	n := &t.Nodes[i]
	w := 1
	for _, c := range n.Children {
		w = max(w, t.Workers(c))
	}
	if n.Kind == KindParFor {
		return max(1, n.DOP) * w
	}
	return w
}
