// Package parfor optimizes the parfor loops of compiled programs: it
// generates a runtime program, recompiles each loop body with the
// statistics of the variables in scope and decides how the loop and the
// statements within it execute.
package parfor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/optimizer"
	"github.com/brimdata/parfor/compiler/rungen"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/infra"
	"github.com/brimdata/parfor/runtime/prog"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// VarSpec describes a variable in scope.  A scalar has Scalar set; a
// matrix has its dimensions, with omitted or negative values for those
// unknown.  An unset NNZ means a dense matrix if both dimensions are
// known.
type VarSpec struct {
	Scalar  *float64 `yaml:"scalar,omitempty" json:"scalar,omitempty"`
	Unknown bool     `yaml:"unknown,omitempty" json:"unknown,omitempty"`
	Rows    *int64   `yaml:"rows,omitempty" json:"rows,omitempty"`
	Cols    *int64   `yaml:"cols,omitempty" json:"cols,omitempty"`
	NNZ     *int64   `yaml:"nnz,omitempty" json:"nnz,omitempty"`
}

// Matrix returns the VarSpec of a dense rows-by-cols matrix.
func Matrix(rows, cols int64) VarSpec {
	return VarSpec{Rows: &rows, Cols: &cols}
}

func (v VarSpec) Value() exec.Value {
	switch {
	case v.Scalar != nil:
		return exec.NewScalar(*v.Scalar)
	case v.Unknown:
		return exec.NewScalar(math.NaN())
	}
	rows, cols := dim(v.Rows), dim(v.Cols)
	nnz := int64(-1)
	if v.NNZ != nil {
		nnz = *v.NNZ
	} else if rows >= 0 && cols >= 0 {
		nnz = rows * cols
	}
	return exec.NewMatrix(rows, cols, nnz)
}

func dim(p *int64) int64 {
	if p == nil || *p < 0 {
		return -1
	}
	return *p
}

// ParseProgram decodes a program in YAML or JSON.
func ParseProgram(b []byte) (*dag.Program, error) {
	return dag.UnmarshalProgramYAML(b)
}

// ParseVars decodes a YAML or JSON mapping of variable names to
// VarSpecs into a symbol table.
func ParseVars(b []byte) (*exec.Vars, error) {
	var specs map[string]VarSpec
	if err := yaml.UnmarshalWithOptions(b, &specs, yaml.DisallowUnknownField()); err != nil {
		return nil, err
	}
	return NewVars(specs), nil
}

func NewVars(specs map[string]VarSpec) *exec.Vars {
	vars := exec.NewVars()
	for name, spec := range specs {
		vars.Set(name, spec.Value())
	}
	return vars
}

// Optimize generates the runtime program of p for the variables vars
// and optimizes all of its parfor loops.  If optimization fails, the
// returned program is still executable but its loops may run with their
// default, sequential parameters.
func Optimize(ctx context.Context, conf optimizer.Config, logger *zap.Logger, p *dag.Program, vars *exec.Vars, opts ...optimizer.WrapperOption) (*prog.Program, error) {
	if p == nil {
		return nil, errors.New("no program")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", optimizer.ErrConfiguration, err)
	}
	if vars == nil {
		vars = exec.NewVars()
	}
	analyzer := infra.NewLocal(conf.Cluster)
	_, cm := infra.Ceilings(analyzer, conf.ParFactorInfrastructure, conf.MemUtilFactor)
	rp, err := rungen.NewBuilder(cm).GenerateProgram(p, vars)
	if err != nil {
		return nil, err
	}
	w := optimizer.NewWrapper(conf, analyzer, logger, opts...)
	return rp, w.OptimizeAll(ctx, p, rp, exec.NewContext(vars))
}
