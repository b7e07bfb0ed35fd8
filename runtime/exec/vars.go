package exec

import (
	"maps"
	"slices"
	"sync"
)

// Chars are the characteristics of a matrix.  Negative values mean
// unknown.
type Chars struct {
	Rows int64 `yaml:"rows" json:"rows"`
	Cols int64 `yaml:"cols" json:"cols"`
	NNZ  int64 `yaml:"nnz" json:"nnz"`
}

var Unknown = Chars{-1, -1, -1}

func (c Chars) DimsKnown() bool {
	return c.Rows >= 0 && c.Cols >= 0
}

// Sparsity returns the fraction of non-zero cells, assuming a dense
// matrix when the non-zero count is unknown.
func (c Chars) Sparsity() float64 {
	if !c.DimsKnown() || c.NNZ < 0 || c.Rows*c.Cols == 0 {
		return 1
	}
	return float64(c.NNZ) / float64(c.Rows*c.Cols)
}

// Value is a symbol table entry: either a scalar or a matrix described
// by its characteristics.
type Value struct {
	Scalar bool
	Num    float64
	Chars  Chars
}

func NewScalar(v float64) Value {
	return Value{Scalar: true, Num: v}
}

func NewMatrix(rows, cols, nnz int64) Value {
	return Value{Chars: Chars{rows, cols, nnz}}
}

// Stats is the statistics provider consulted for cost estimation and
// recompilation.
type Stats interface {
	Lookup(name string) (Chars, bool)
}

// Vars is a symbol table.  It is safe for concurrent readers; writers
// must own the table, typically a Clone.
type Vars struct {
	mu   sync.RWMutex
	vals map[string]Value
}

var _ Stats = (*Vars)(nil)

func NewVars() *Vars {
	return &Vars{vals: make(map[string]Value)}
}

func (v *Vars) Set(name string, val Value) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vals[name] = val
}

func (v *Vars) Get(name string) (Value, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.vals[name]
	return val, ok
}

func (v *Vars) Delete(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.vals, name)
}

// Lookup returns the characteristics of the matrix named name.
// Scalars and unbound names report false.
func (v *Vars) Lookup(name string) (Chars, bool) {
	val, ok := v.Get(name)
	if !ok || val.Scalar || !val.Chars.DimsKnown() {
		return Unknown, false
	}
	return val.Chars, true
}

func (v *Vars) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Sorted(maps.Keys(v.vals))
}

func (v *Vars) Clone() *Vars {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return &Vars{vals: maps.Clone(v.vals)}
}
