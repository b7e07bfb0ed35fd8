package plan

import (
	"math"
	"testing"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/rungen"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/prog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const program = `
body:
  - kind: ParFor
    var: i
    from: {kind: Literal, value: 1}
    to: {kind: Var, name: n}
    mode: heuristic
    body:
      - kind: Basic
        stmts:
          - kind: Assign
            lhs: x
            rhs: {kind: Agg, op: sum, dir: all, expr: {kind: Var, name: A}}
      - kind: If
        cond: {kind: Var, name: c}
        then:
          - kind: Basic
            stmts:
              - kind: Assign
                lhs: y
                rhs: {kind: Binary, op: "*", lhs: {kind: Var, name: A}, rhs: {kind: Literal, value: 2}}
        else:
          - kind: ParFor
            var: j
            from: {kind: Literal, value: 1}
            to: {kind: Literal, value: 4}
            mode: none
            body:
              - kind: Basic
                stmts:
                  - kind: Assign
                    lhs: z
                    rhs: {kind: Var, name: j}
`

func setup(t *testing.T) (*dag.ParFor, *prog.ParFor, *exec.Context) {
	p, err := dag.UnmarshalProgramYAML([]byte(program))
	require.NoError(t, err)
	vars := exec.NewVars()
	vars.Set("A", exec.NewMatrix(10000, 1, 10000))
	vars.Set("n", exec.NewScalar(8))
	rp, err := rungen.NewBuilder(100000).GenerateProgram(p, vars)
	require.NoError(t, err)
	return p.Body[0].(*dag.ParFor), rp.Blocks[0].(*prog.ParFor), exec.NewContext(vars)
}

func TestBuild(t *testing.T) {
	sb, pb, ectx := setup(t)
	tree, err := Build(4, 100000, AbstractPlan, sb, pb, ectx)
	require.NoError(t, err)
	root := tree.Node(tree.Root)
	assert.Equal(t, KindParFor, root.Kind)
	assert.Equal(t, sb.ID, root.ID)
	assert.Equal(t, int64(8), root.Iterations)
	require.Len(t, root.Children, 2)
	assert.Equal(t, KindSeq, tree.Node(root.Children[0]).Kind)
	assert.Equal(t, KindIf, tree.Node(root.Children[1]).Kind)
	assert.Len(t, tree.Leaves(tree.Root), 3)
	assert.Len(t, tree.ParFors(tree.Root), 2)

	leaf := tree.Node(tree.Leaves(tree.Root)[0])
	assert.Equal(t, 80000.0, leaf.InMem)
	assert.Equal(t, 80008.0, leaf.Mem)

	inner := sb.Body[1].(*dag.If).Else[0].(*dag.ParFor)
	i, ok := tree.Lookup(inner.ID)
	require.True(t, ok)
	assert.Equal(t, int64(4), tree.Node(i).Iterations)
	_, rpb, ok := tree.Mapping().ParFor(inner.ID)
	require.True(t, ok)
	assert.Equal(t, inner, rpb.Source)
}

func TestBuildIdempotent(t *testing.T) {
	sb, pb, ectx := setup(t)
	t1, err := Build(4, 100000, RuntimePlan, sb, pb, ectx)
	require.NoError(t, err)
	t2, err := Build(4, 100000, RuntimePlan, sb, pb, ectx)
	require.NoError(t, err)
	assert.Equal(t, t1.Explain(), t2.Explain())
	require.Len(t, t2.Nodes, len(t1.Nodes))
	for k := range t1.Nodes {
		assert.Equal(t, t1.Nodes[k].Kind, t2.Nodes[k].Kind)
		assert.Equal(t, t1.Nodes[k].Children, t2.Nodes[k].Children)
	}
}

func TestBuildUnknownBound(t *testing.T) {
	sb, pb, _ := setup(t)
	tree, err := Build(4, 100000, AbstractPlan, sb, pb, exec.NewContext(exec.NewVars()))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), tree.Node(tree.Root).Iterations)
}

func TestBuildHugeBound(t *testing.T) {
	sb, pb, ectx := setup(t)
	vars := ectx.Vars().Clone()
	vars.Set("n", exec.NewScalar(1e19))
	tree, err := Build(4, 100000, AbstractPlan, sb, pb, exec.NewContext(vars))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), tree.Node(tree.Root).Iterations)

	vars.Set("n", exec.NewScalar(math.Inf(1)))
	tree, err = Build(4, 100000, AbstractPlan, sb, pb, exec.NewContext(vars))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), tree.Node(tree.Root).Iterations)
}

func TestBuildMismatch(t *testing.T) {
	sb, pb, ectx := setup(t)
	pb.Body = pb.Body[:1]
	_, err := Build(4, 100000, AbstractPlan, sb, pb, ectx)
	assert.ErrorContains(t, err, "2 statement blocks but 1 runtime blocks")
}

func TestClear(t *testing.T) {
	sb, pb, ectx := setup(t)
	tree, err := Build(4, 100000, AbstractPlan, sb, pb, ectx)
	require.NoError(t, err)
	assert.Equal(t, 5, tree.Mapping().Len())
	tree.Clear()
	assert.Zero(t, tree.Mapping().Len())
	_, _, ok := tree.Mapping().Stmt(sb.Body[0].(*dag.Basic).Stmts[0].ID)
	assert.False(t, ok)
}
