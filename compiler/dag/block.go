package dag

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Program is a compiled script: its function definitions keyed by
// FuncKey and its top-level statement blocks.
type Program struct {
	Funcs map[string]*Func `json:"funcs"`
	Body  Seq              `json:"body"`
}

type Func struct {
	Kind          string   `json:"kind" unpack:""`
	Namespace     string   `json:"namespace"`
	Name          string   `json:"name"`
	Params        []string `json:"params"`
	Outputs       []string `json:"outputs"`
	Body          Seq      `json:"body"`
	RecompileOnce bool     `json:"recompile_once"`
}

const (
	DefaultNamespace = ".defaultNS"
	KeyDelim         = "::"
)

func FuncKey(namespace, name string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + KeyDelim + name
}

func SplitFuncKey(key string) (string, string) {
	namespace, name, ok := strings.Cut(key, KeyDelim)
	if !ok {
		return DefaultNamespace, key
	}
	return namespace, name
}

// FuncKeys returns the keys of p.Funcs in sorted order.
func (p *Program) FuncKeys() []string {
	keys := make([]string, 0, len(p.Funcs))
	for k := range p.Funcs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type Block interface {
	blockNode()
	BlockID() int64
}

type Seq []Block

func (seq *Seq) Prepend(front Block) {
	*seq = append([]Block{front}, *seq...)
}

func (seq *Seq) Append(b Block) {
	*seq = append(*seq, b)
}

func (seq *Seq) Delete(from, to int) {
	*seq = slices.Delete(*seq, from, to)
}

type (
	// Basic is a straight-line block of assignments whose right-hand
	// sides are operator DAGs.
	Basic struct {
		Kind  string    `json:"kind" unpack:""`
		ID    int64     `json:"id"`
		Stmts []*Assign `json:"stmts"`
	}
	If struct {
		Kind string `json:"kind" unpack:""`
		ID   int64  `json:"id"`
		Cond Expr   `json:"cond"`
		Then Seq    `json:"then"`
		Else Seq    `json:"else"`
	}
	While struct {
		Kind string `json:"kind" unpack:""`
		ID   int64  `json:"id"`
		Cond Expr   `json:"cond"`
		Body Seq    `json:"body"`
	}
	For struct {
		Kind string `json:"kind" unpack:""`
		ID   int64  `json:"id"`
		Var  string `json:"var"`
		From Expr   `json:"from"`
		To   Expr   `json:"to"`
		Incr Expr   `json:"incr"`
		Body Seq    `json:"body"`
	}
	// ParFor is a for loop whose iterations are independent and may be
	// executed by parallel workers.  Mode names the optimizer that
	// decides how it runs ("none" disables optimization).
	ParFor struct {
		Kind string `json:"kind" unpack:""`
		ID   int64  `json:"id"`
		Var  string `json:"var"`
		From Expr   `json:"from"`
		To   Expr   `json:"to"`
		Incr Expr   `json:"incr"`
		Body Seq    `json:"body"`
		Mode string `json:"mode"`
	}
)

func (*Basic) blockNode()  {}
func (*If) blockNode()     {}
func (*While) blockNode()  {}
func (*For) blockNode()    {}
func (*ParFor) blockNode() {}

func (b *Basic) BlockID() int64  { return b.ID }
func (b *If) BlockID() int64     { return b.ID }
func (b *While) BlockID() int64  { return b.ID }
func (b *For) BlockID() int64    { return b.ID }
func (b *ParFor) BlockID() int64 { return b.ID }

// Assign binds the value of the operator DAG RHS to the variable LHS.
// It is the unit of computation the optimizer places: Exec is the
// execution location forced by a plan decision (ExecUnset lets the
// instruction generator decide) and Est carries the size estimate
// computed by the most recent recompilation.
type Assign struct {
	Kind string    `json:"kind" unpack:""`
	ID   int64     `json:"id"`
	LHS  string    `json:"lhs"`
	RHS  Expr      `json:"rhs"`
	Exec ExecType  `json:"exec,omitempty"`
	Est  *Estimate `json:"-"`
}

// Estimate holds the output characteristics and memory footprint, in
// bytes, of a statement.  Negative values mean unknown.
type Estimate struct {
	Rows   int64
	Cols   int64
	NNZ    int64
	Scalar bool
	InMem  float64
	OutMem float64
	Mem    float64
}

func (e *Estimate) Known() bool {
	return e != nil && e.Mem >= 0
}

type ExecType int

const (
	ExecUnset ExecType = iota
	ExecLocal
	ExecDistributed
)

func ParseExecType(s string) (ExecType, error) {
	switch strings.ToLower(s) {
	case "", "unset":
		return ExecUnset, nil
	case "local", "cp":
		return ExecLocal, nil
	case "distributed", "remote":
		return ExecDistributed, nil
	}
	return ExecUnset, fmt.Errorf("unknown execution type: %q", s)
}

func (e ExecType) String() string {
	switch e {
	case ExecLocal:
		return "local"
	case ExecDistributed:
		return "distributed"
	}
	return "unset"
}

func (e ExecType) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *ExecType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	typ, err := ParseExecType(s)
	if err != nil {
		return err
	}
	*e = typ
	return nil
}

// Number assigns identifiers to every block and statement of p that
// lacks one, continuing after the largest identifier already present.
func Number(p *Program) {
	var next int64
	visit := func(b Block) {
		next = max(next, b.BlockID())
		if basic, ok := b.(*Basic); ok {
			for _, s := range basic.Stmts {
				next = max(next, s.ID)
			}
		}
	}
	for _, k := range p.FuncKeys() {
		WalkBlocks(p.Funcs[k].Body, visit)
	}
	WalkBlocks(p.Body, visit)
	assign := func(b Block) {
		switch b := b.(type) {
		case *Basic:
			if b.ID == 0 {
				next++
				b.ID = next
			}
			for _, s := range b.Stmts {
				if s.ID == 0 {
					next++
					s.ID = next
				}
			}
		case *If:
			if b.ID == 0 {
				next++
				b.ID = next
			}
		case *While:
			if b.ID == 0 {
				next++
				b.ID = next
			}
		case *For:
			if b.ID == 0 {
				next++
				b.ID = next
			}
		case *ParFor:
			if b.ID == 0 {
				next++
				b.ID = next
			}
		}
	}
	for _, k := range p.FuncKeys() {
		WalkBlocks(p.Funcs[k].Body, assign)
	}
	WalkBlocks(p.Body, assign)
}

// WalkBlocks calls visit on every block of seq in pre-order, including
// the bodies of nested loops and branches.
func WalkBlocks(seq Seq, visit func(Block)) {
	for _, b := range seq {
		visit(b)
		switch b := b.(type) {
		case *If:
			WalkBlocks(b.Then, visit)
			WalkBlocks(b.Else, visit)
		case *While:
			WalkBlocks(b.Body, visit)
		case *For:
			WalkBlocks(b.Body, visit)
		case *ParFor:
			WalkBlocks(b.Body, visit)
		}
	}
}
