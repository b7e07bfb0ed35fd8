package optimizer

import (
	"context"
	"fmt"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/optimizer/cost"
	"github.com/brimdata/parfor/compiler/optimizer/plan"
	"github.com/brimdata/parfor/compiler/rungen"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/infra/mock"
	"github.com/brimdata/parfor/runtime/prog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
)

// sumProgram is a parfor loop over n iterations that aggregates A.
const sumProgram = `
body:
  - kind: ParFor
    var: i
    from: {kind: Literal, value: 1}
    to: {kind: Var, name: n}
    mode: %s
    body:
      - kind: Basic
        stmts:
          - kind: Assign
            lhs: x
            rhs: {kind: Agg, op: sum, dir: all, expr: {kind: Var, name: A}}
`

// rowProgram aggregates row i of A in iteration i.
const rowProgram = `
body:
  - kind: ParFor
    var: i
    from: {kind: Literal, value: 1}
    to: {kind: Var, name: n}
    body:
      - kind: Basic
        stmts:
          - kind: Assign
            lhs: x
            rhs:
              kind: Agg
              op: sum
              dir: all
              expr:
                kind: Index
                expr: {kind: Var, name: A}
                row_lo: {kind: Var, name: i}
                row_hi: {kind: Var, name: i}
`

type fixture struct {
	sb   *dag.ParFor
	pb   *prog.ParFor
	ectx *exec.Context
}

func load(t *testing.T, src string, vars *exec.Vars) fixture {
	t.Helper()
	p, err := dag.UnmarshalProgramYAML([]byte(src))
	require.NoError(t, err)
	rp, err := rungen.NewBuilder(1e6).GenerateProgram(p, vars)
	require.NoError(t, err)
	return fixture{
		sb:   p.Body[0].(*dag.ParFor),
		pb:   rp.Blocks[0].(*prog.ParFor),
		ectx: exec.NewContext(vars),
	}
}

func sumVars(rows int64, n float64) *exec.Vars {
	vars := exec.NewVars()
	if rows > 0 {
		vars.Set("A", exec.NewMatrix(rows, 1, rows))
	}
	if n > 0 {
		vars.Set("n", exec.NewScalar(n))
	}
	return vars
}

func sumSource(mode string) string {
	return fmt.Sprintf(sumProgram, mode)
}

// newWrapper returns a Wrapper whose ceilings are ck workers and cm
// bytes.
func newWrapper(t *testing.T, ck int, cm float64, conf Config, opts ...WrapperOption) *Wrapper {
	ctrl := gomock.NewController(t)
	a := mock.NewMockAnalyzer(ctrl)
	a.EXPECT().LocalParallelism().Return(ck).AnyTimes()
	a.EXPECT().RemoteParallelism().Return(0).AnyTimes()
	a.EXPECT().MaxMemory().Return(cm).AnyTimes()
	conf.ParFactorInfrastructure = 1
	conf.MemUtilFactor = 1
	conf.CheckPlanCorrectness = true
	return NewWrapper(conf, a, zaptest.NewLogger(t), opts...)
}

func TestHeuristicSmallInput(t *testing.T) {
	f := load(t, sumSource("heuristic"), sumVars(10000, 8))
	w := newWrapper(t, 4, 100000, DefaultConfig())
	require.NoError(t, w.Optimize(context.Background(), ModeHeuristic, f.sb, f.pb, f.ectx))
	assert.Equal(t, prog.ExecLocal, f.pb.Exec)
	assert.Equal(t, 1, f.pb.DOP)
	assert.Equal(t, prog.PartitionNone, f.pb.Partitioner)
	assert.Equal(t, prog.MergeLocalMem, f.pb.ResultMerge)
	stmt := f.sb.Body[0].(*dag.Basic).Stmts[0]
	assert.Equal(t, dag.ExecLocal, stmt.Exec)
	assert.Equal(t, dag.ExecLocal, f.pb.Body[0].(*prog.Basic).Insts[0].Exec)
}

func TestHeuristicLargeInput(t *testing.T) {
	f := load(t, sumSource("heuristic"), sumVars(1000000, 8))
	conf := DefaultConfig()
	conf.Cost.BlockSize = 100
	// 8MB of input against a 1MB memory ceiling.
	w := newWrapper(t, 4, 1e6, conf)
	require.NoError(t, w.Optimize(context.Background(), ModeHeuristic, f.sb, f.pb, f.ectx))
	assert.Equal(t, dag.ExecDistributed, f.sb.Body[0].(*dag.Basic).Stmts[0].Exec)
	assert.Equal(t, prog.ExecLocal, f.pb.Exec)
	assert.Equal(t, 4, f.pb.DOP)
}

func TestRuleBasedRemote(t *testing.T) {
	f := load(t, sumSource("rulebased"), sumVars(10000, 8))
	w := newWrapper(t, 4, 100000, DefaultConfig())
	require.NoError(t, w.Optimize(context.Background(), ModeRuleBased, f.sb, f.pb, f.ectx))
	assert.Equal(t, prog.ExecDistributed, f.pb.Exec)
	assert.Equal(t, 4, f.pb.DOP)
	assert.Equal(t, prog.MergeRemote, f.pb.ResultMerge)
	assert.Equal(t, prog.PartitionNone, f.pb.Partitioner)
}

func TestRuleBasedRowPartitioner(t *testing.T) {
	f := load(t, rowProgram, sumVars(10000, 8))
	w := newWrapper(t, 4, 1e6, DefaultConfig())
	require.NoError(t, w.Optimize(context.Background(), ModeRuleBased, f.sb, f.pb, f.ectx))
	assert.Equal(t, prog.ExecLocal, f.pb.Exec)
	assert.Equal(t, 4, f.pb.DOP)
	assert.Equal(t, prog.PartitionLocalRow, f.pb.Partitioner)
}

func TestRuleBasedDeterministic(t *testing.T) {
	var results []prog.ParFor
	for range 3 {
		f := load(t, rowProgram, sumVars(10000, 8))
		w := newWrapper(t, 4, 1e6, DefaultConfig())
		require.NoError(t, w.Optimize(context.Background(), ModeRuleBased, f.sb, f.pb, f.ectx))
		results = append(results, prog.ParFor{
			DOP:         f.pb.DOP,
			Exec:        f.pb.Exec,
			Partitioner: f.pb.Partitioner,
			ResultMerge: f.pb.ResultMerge,
		})
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

func TestConstrained(t *testing.T) {
	f := load(t, sumSource("constrained"), sumVars(10000, 8))
	w := newWrapper(t, 4, 100000, DefaultConfig())
	opt, err := New(ModeConstrained, w.conf)
	require.NoError(t, err)
	require.NoError(t, w.optimizeWith(opt, f))
	assert.Equal(t, prog.ExecLocal, f.pb.Exec)
	assert.Equal(t, 1, f.pb.DOP)
	assert.GreaterOrEqual(t, opt.NumEvaluatedPlans(), int64(1))
	assert.LessOrEqual(t, opt.NumEvaluatedPlans(), opt.NumTotalPlans())
	// Two degrees of parallelism were pruned before costing.
	assert.Less(t, opt.NumEvaluatedPlans(), opt.NumTotalPlans())
}

// optimizeWith runs opt directly on the fixture without recompilation.
func (w *Wrapper) optimizeWith(opt Optimizer, f fixture) error {
	tree, err := plan.Build(4, 100000, opt.PlanInput(), f.sb, f.pb, f.ectx)
	if err != nil {
		return err
	}
	defer tree.Clear()
	est, err := costEstimator(w.conf)
	if err != nil {
		return err
	}
	return opt.Optimize(f.sb, f.pb, tree, est, f.ectx)
}

func costEstimator(conf Config) (cost.Estimator, error) {
	return cost.New(cost.StaticMemMetric, conf.Cost, nil)
}

func TestConstrainedTieBreak(t *testing.T) {
	a, b := newAssignment(), newAssignment()
	a.cost = plan.Cost{Mem: 10, Time: 1}
	b.cost = plan.Cost{Mem: 5, Time: 1 + 1e-12}
	b.dist.Add(3)
	assert.True(t, a.better(b))
	assert.False(t, b.better(a))

	a.dist = roaring.BitmapOf(1)
	a.ksum, b.ksum = 4, 2
	assert.False(t, a.better(b))
	assert.True(t, b.better(a))

	b.cost.Time = 0.5
	assert.True(t, b.better(a))
	assert.True(t, a.better(nil))
}

func TestUnknownStatistics(t *testing.T) {
	for _, mode := range []Mode{ModeHeuristic, ModeRuleBased, ModeConstrained} {
		t.Run(mode.String(), func(t *testing.T) {
			f := load(t, sumSource(mode.String()), sumVars(0, 8))
			w := newWrapper(t, 4, 1e8, DefaultConfig())
			err := w.Optimize(context.Background(), mode, f.sb, f.pb, f.ectx)
			if err != nil {
				assert.ErrorIs(t, err, ErrSearchExhaustion)
				return
			}
			assert.GreaterOrEqual(t, f.pb.DOP, 1)
			assert.LessOrEqual(t, f.pb.DOP, 4)
			assert.Equal(t, dag.ExecDistributed, f.sb.Body[0].(*dag.Basic).Stmts[0].Exec)
		})
	}
}

func TestRuleBasedUnknownStatisticsExhausted(t *testing.T) {
	f := load(t, sumSource("rulebased"), sumVars(0, 8))
	w := newWrapper(t, 4, 100000, DefaultConfig())
	err := w.Optimize(context.Background(), ModeRuleBased, f.sb, f.pb, f.ectx)
	assert.ErrorIs(t, err, ErrSearchExhaustion)
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, f.sb.ID, oerr.LoopID)
	assert.Equal(t, "optimize", oerr.Phase)
}

func TestCeilingsRespected(t *testing.T) {
	for _, mode := range []Mode{ModeHeuristic, ModeRuleBased, ModeConstrained} {
		t.Run(mode.String(), func(t *testing.T) {
			f := load(t, rowProgram, sumVars(10000, 100))
			w := newWrapper(t, 3, 2e5, DefaultConfig())
			require.NoError(t, w.Optimize(context.Background(), mode, f.sb, f.pb, f.ectx))
			assert.GreaterOrEqual(t, f.pb.DOP, 1)
			assert.LessOrEqual(t, f.pb.DOP, 3)
			tree, err := plan.Build(3, 2e5, plan.AbstractPlan, f.sb, f.pb, f.ectx)
			require.NoError(t, err)
			defer tree.Clear()
			root := tree.Node(tree.Root)
			root.DOP, root.Exec = f.pb.DOP, f.pb.Exec
			for _, i := range tree.Leaves(tree.Root) {
				stmt, _, ok := tree.Mapping().Stmt(tree.Node(i).ID)
				require.True(t, ok)
				tree.Node(i).Exec = stmt.Exec
			}
			est, err := costEstimator(w.conf)
			require.NoError(t, err)
			c, err := est.Estimate(tree, tree.Root)
			require.NoError(t, err)
			assert.LessOrEqual(t, c.Mem, 2e5)
		})
	}
}
