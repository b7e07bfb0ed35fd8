package parfor_test

import (
	"context"
	"math"
	"testing"

	"github.com/brimdata/parfor"
	"github.com/brimdata/parfor/compiler/optimizer"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/prog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestParseVars(t *testing.T) {
	vars, err := parfor.ParseVars([]byte(`
n: {scalar: 10}
u: {unknown: true}
X: {rows: 100, cols: 10}
S: {rows: 100, cols: 10, nnz: 50}
Y: {rows: -1, cols: 10}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "X", "Y", "n", "u"}, vars.Names())

	n, ok := vars.Get("n")
	require.True(t, ok)
	assert.Equal(t, exec.NewScalar(10), n)
	u, _ := vars.Get("u")
	assert.True(t, u.Scalar)
	assert.True(t, math.IsNaN(u.Num))

	chars, ok := vars.Lookup("X")
	require.True(t, ok)
	assert.Equal(t, exec.Chars{Rows: 100, Cols: 10, NNZ: 1000}, chars)
	chars, _ = vars.Lookup("S")
	assert.Equal(t, 0.05, chars.Sparsity())
	_, ok = vars.Lookup("Y")
	assert.False(t, ok)

	_, err = parfor.ParseVars([]byte(`X: {rows: 1, colums: 2}`))
	assert.Error(t, err)
}

func TestParseVarsOmittedDims(t *testing.T) {
	vars, err := parfor.ParseVars([]byte(`
P: {}
R: {rows: 100}
C: {cols: 10, nnz: 20}
`))
	require.NoError(t, err)
	p, ok := vars.Get("P")
	require.True(t, ok)
	assert.False(t, p.Scalar)
	assert.Equal(t, exec.Unknown, p.Chars)
	r, _ := vars.Get("R")
	assert.Equal(t, exec.Chars{Rows: 100, Cols: -1, NNZ: -1}, r.Chars)
	c, _ := vars.Get("C")
	assert.Equal(t, exec.Chars{Rows: -1, Cols: 10, NNZ: 20}, c.Chars)

	assert.Equal(t, exec.Unknown, parfor.VarSpec{}.Value().Chars)
	assert.Equal(t, exec.NewMatrix(0, 0, 0), parfor.Matrix(0, 0).Value())
}

func TestOptimizeErrors(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	_, err := parfor.Optimize(ctx, optimizer.DefaultConfig(), logger, nil, nil)
	assert.EqualError(t, err, "no program")

	p, err := parfor.ParseProgram([]byte(`body: []`))
	require.NoError(t, err)
	conf := optimizer.DefaultConfig()
	conf.MemUtilFactor = 2
	_, err = parfor.Optimize(ctx, conf, logger, p, nil)
	assert.ErrorIs(t, err, optimizer.ErrConfiguration)
	assert.ErrorContains(t, err, "mem_util_factor must be in (0, 1]")
}

func TestOptimizeModeNone(t *testing.T) {
	p, err := parfor.ParseProgram([]byte(`
body:
  - kind: ParFor
    var: i
    from: {kind: Literal, value: 1}
    to: {kind: Var, name: n}
    mode: none
    body:
      - kind: Basic
        stmts:
          - {kind: Assign, lhs: x, rhs: {kind: Agg, op: sum, dir: all, expr: {kind: Var, name: X}}}
`))
	require.NoError(t, err)
	vars := parfor.NewVars(map[string]parfor.VarSpec{
		"X": parfor.Matrix(10, 10),
	})
	rp, err := parfor.Optimize(context.Background(), optimizer.DefaultConfig(), zaptest.NewLogger(t), p, vars)
	require.NoError(t, err)
	require.Len(t, rp.Blocks, 1)
	pf := rp.Blocks[0].(*prog.ParFor)
	assert.Equal(t, 1, pf.DOP)
	assert.Equal(t, prog.ExecLocal, pf.Exec)
	// The caller's symbol table is left untouched.
	assert.Equal(t, []string{"X"}, vars.Names())
}
