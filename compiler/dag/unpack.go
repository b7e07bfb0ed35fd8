package dag

import (
	"encoding/json"
	"fmt"

	"github.com/brimdata/parfor/pkg/unpack"
	"github.com/goccy/go-yaml"
)

var unpacker = unpack.New(
	Agg{},
	Assign{},
	Basic{},
	Binary{},
	Call{},
	For{},
	Func{},
	If{},
	Index{},
	Literal{},
	MatMul{},
	ParFor{},
	Rand{},
	Unary{},
	Var{},
	While{},
)

// UnmarshalProgram transforms a JSON representation of a program into a
// Program and numbers any blocks and statements lacking identifiers.
func UnmarshalProgram(buf []byte) (*Program, error) {
	var p Program
	if err := unpacker.Unmarshal(buf, &p); err != nil {
		return nil, fmt.Errorf("JSON object is not a program: %w", err)
	}
	return &p, Prepare(&p)
}

// UnmarshalProgramYAML is like UnmarshalProgram but takes YAML.
func UnmarshalProgramYAML(buf []byte) (*Program, error) {
	b, err := yaml.YAMLToJSON(buf)
	if err != nil {
		return nil, err
	}
	return UnmarshalProgram(b)
}

// Prepare numbers p and fills in defaults the front end would supply:
// the namespace of functions and unit increments of loops.
func Prepare(p *Program) error {
	for key, f := range p.Funcs {
		if f == nil {
			return fmt.Errorf("function %q: missing definition", key)
		}
		if f.Name == "" {
			f.Namespace, f.Name = SplitFuncKey(key)
		}
		if f.Namespace == "" {
			f.Namespace = DefaultNamespace
		}
	}
	var err error
	fill := func(b Block) {
		switch b := b.(type) {
		case *For:
			if b.Incr == nil {
				b.Incr = NewLiteral(1)
			}
			if b.From == nil || b.To == nil {
				err = fmt.Errorf("for loop %q: missing bounds", b.Var)
			}
		case *ParFor:
			if b.Incr == nil {
				b.Incr = NewLiteral(1)
			}
			if b.From == nil || b.To == nil {
				err = fmt.Errorf("parfor loop %q: missing bounds", b.Var)
			}
		}
	}
	for _, k := range p.FuncKeys() {
		WalkBlocks(p.Funcs[k].Body, fill)
	}
	WalkBlocks(p.Body, fill)
	if err != nil {
		return err
	}
	Number(p)
	return nil
}

// CopySeq returns a deep copy of seq that keeps the identifiers of its
// blocks and statements.  Statement estimates are not copied.
func CopySeq(seq Seq) (Seq, error) {
	b, err := json.Marshal(seq)
	if err != nil {
		return nil, err
	}
	var out Seq
	if err := unpacker.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
