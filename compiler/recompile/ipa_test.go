package recompile

import (
	"testing"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fn(name string, params []string, body ...*dag.Assign) *dag.Func {
	return &dag.Func{Kind: "Func", Namespace: dag.DefaultNamespace, Name: name, Params: params, Body: dag.Seq{basic(body...)}}
}

func TestAnalyzeSubProgram(t *testing.T) {
	funcs := map[string]*dag.Func{
		dag.FuncKey("", "f"): fn("f", []string{"M"}, dag.NewAssign("r", dag.NewAgg("sum", "all", dag.NewVar("M")))),
		dag.FuncKey("", "g"): fn("g", []string{"M"}, dag.NewAssign("r", dag.NewVar("M"))),
		dag.FuncKey("", "h"): fn("h", []string{"M"}, dag.NewAssign("r", dag.NewCall("", "f", dag.NewVar("M")))),
		dag.FuncKey("", "u"): fn("u", []string{"M"}, dag.NewAssign("r", dag.NewVar("M"))),
	}
	body := dag.Seq{basic(
		dag.NewAssign("a", dag.NewCall("", "f", dag.NewVar("A"))),
		dag.NewAssign("b", dag.NewCall("", "f", dag.NewVar("A"))),
		dag.NewAssign("c", dag.NewCall("", "g", dag.NewVar("A"))),
		dag.NewAssign("d", dag.NewCall("", "g", dag.NewVar("B"))),
		dag.NewAssign("e", dag.NewCall("", "h", dag.NewVar("A"))),
		dag.NewAssign("f", dag.NewCall("", "u", dag.NewVar("Z"))),
	)}
	vars := exec.NewVars()
	vars.Set("A", exec.NewMatrix(10, 10, 100))
	vars.Set("B", exec.NewMatrix(20, 10, 200))
	cands := AnalyzeSubProgram(body, funcs, vars)
	require.Len(t, cands, 1)
	assert.Equal(t, dag.FuncKey("", "f"), cands[0].Key)

	params := cands[0].Params(funcs[cands[0].Key])
	m, ok := params.Lookup("M")
	require.True(t, ok)
	assert.Equal(t, exec.Chars{Rows: 10, Cols: 10, NNZ: 100}, m)
}
