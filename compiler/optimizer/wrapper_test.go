package optimizer

import (
	"context"
	"testing"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/optimizer/cost"
	"github.com/brimdata/parfor/compiler/rungen"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/monitor"
	"github.com/brimdata/parfor/runtime/prog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedProgram = `
funcs:
  ".defaultNS::f":
    params: [B]
    outputs: [s]
    body:
      - kind: ParFor
        var: k
        from: {kind: Literal, value: 1}
        to: {kind: Literal, value: 2}
        mode: heuristic
        body:
          - kind: Basic
            stmts:
              - kind: Assign
                lhs: s
                rhs: {kind: Agg, op: sum, dir: all, expr: {kind: Var, name: B}}
body:
  - kind: For
    var: t
    from: {kind: Literal, value: 1}
    to: {kind: Literal, value: 3}
    body:
      - kind: Basic
        stmts:
          - kind: Assign
            lhs: w
            rhs: {kind: Binary, op: "+", lhs: {kind: Var, name: w}, rhs: {kind: Literal, value: 1}}
      - kind: ParFor
        var: i
        from: {kind: Literal, value: 1}
        to: {kind: Var, name: n}
        mode: rule-based
        body:
          - kind: ParFor
            var: j
            from: {kind: Literal, value: 1}
            to: {kind: Literal, value: 4}
            mode: constrained
            body:
              - kind: Basic
                stmts:
                  - kind: Assign
                    lhs: x
                    rhs: {kind: Binary, op: "*", lhs: {kind: Var, name: w}, rhs: {kind: Var, name: j}}
  - kind: ParFor
    var: i
    from: {kind: Literal, value: 1}
    to: {kind: Literal, value: 2}
    mode: none
    body:
      - kind: ParFor
        var: j
        from: {kind: Literal, value: 1}
        to: {kind: Literal, value: 2}
        mode: heuristic
        body:
          - kind: Basic
            stmts:
              - kind: Assign
                lhs: y
                rhs: {kind: Var, name: j}
`

func loadProgram(t *testing.T, src string, vars *exec.Vars) (*dag.Program, *prog.Program) {
	t.Helper()
	p, err := dag.UnmarshalProgramYAML([]byte(src))
	require.NoError(t, err)
	rp, err := rungen.NewBuilder(1e6).GenerateProgram(p, vars)
	require.NoError(t, err)
	return p, rp
}

func TestDiscover(t *testing.T) {
	p, rp := loadProgram(t, nestedProgram, exec.NewVars())
	targets, err := Discover(p, rp)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, ModeHeuristic, targets[0].Mode)
	assert.Equal(t, "k", targets[0].Source.Var)
	assert.Empty(t, targets[0].Volatile)

	assert.Equal(t, ModeRuleBased, targets[1].Mode)
	assert.Equal(t, "i", targets[1].Source.Var)
	assert.Equal(t, []string{"i", "j", "t", "w", "x"}, targets[1].Volatile.Sorted())
	for _, target := range targets {
		assert.Equal(t, target.Source, target.Runtime.Source)
	}
}

func TestDiscoverBadMode(t *testing.T) {
	p, rp := loadProgram(t, sumSource("heuristc"), sumVars(10, 2))
	_, err := Discover(p, rp)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorContains(t, err, `did you mean "heuristic"`)
}

func TestOptimizeAll(t *testing.T) {
	vars := exec.NewVars()
	vars.Set("n", exec.NewScalar(16))
	vars.Set("w", exec.NewScalar(1))
	p, rp := loadProgram(t, nestedProgram, vars)
	m := monitor.New(prometheus.NewRegistry())
	conf := DefaultConfig()
	conf.Concurrency = 2
	conf.Cost.BlockSize = 100
	w := newWrapper(t, 4, 1e6, conf, WithMonitor(m))
	require.NoError(t, w.OptimizeAll(context.Background(), p, rp, exec.NewContext(vars)))

	records := m.All()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotEqual(t, ksuid.Nil, r.RunID)
		assert.LessOrEqual(t, r.EvaluatedPlans, r.TotalPlans)
	}

	outer := rp.Blocks[0].(*prog.For).Body[1].(*prog.ParFor)
	assert.GreaterOrEqual(t, outer.DOP, 1)
	assert.LessOrEqual(t, outer.DOP, 4)
	require.Len(t, m.Records(outer.ID()), 1)
	assert.Equal(t, "rulebased", m.Records(outer.ID())[0].Optimizer)

	// The loop declared with mode none and its nested loop are untouched.
	skipped := rp.Blocks[1].(*prog.ParFor)
	assert.Equal(t, 1, skipped.DOP)
	assert.Empty(t, m.Records(skipped.ID()))
	assert.Empty(t, m.Records(skipped.Body[0].ID()))
}

func TestRuntimeCostModelUnsupported(t *testing.T) {
	f := load(t, sumSource("rulebased"), sumVars(10000, 8))
	stmt := f.sb.Body[0].(*dag.Basic).Stmts[0]
	stmt.Exec = dag.ExecDistributed
	conf := DefaultConfig()
	conf.CostModel = "runtime"
	w := newWrapper(t, 4, 1e6, conf)
	err := w.Optimize(context.Background(), ModeRuleBased, f.sb, f.pb, f.ectx)
	assert.ErrorIs(t, err, ErrConfiguration)
	// Nothing was recompiled or planned.
	assert.Equal(t, dag.ExecDistributed, stmt.Exec)
	assert.Equal(t, 1, f.pb.DOP)

	conf.AllowRuntimeCostModel = true
	w = newWrapper(t, 4, 1e6, conf)
	err = w.Optimize(context.Background(), ModeRuleBased, f.sb, f.pb, f.ectx)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRuntimeCostModel(t *testing.T) {
	f := load(t, sumSource("rulebased"), sumVars(10000, 8))
	stmt := f.sb.Body[0].(*dag.Basic).Stmts[0]
	traces := cost.NewTraceTable()
	traces.Put(stmt.ID, prog.ExecLocal, cost.Trace{Mem: 1000, Time: 0.5})
	traces.Put(stmt.ID, prog.ExecDistributed, cost.Trace{Mem: 1000, Time: 30})
	conf := DefaultConfig()
	conf.CostModel = "runtime"
	conf.AllowRuntimeCostModel = true
	w := newWrapper(t, 4, 1e6, conf, WithTraces(traces))
	require.NoError(t, w.Optimize(context.Background(), ModeConstrained, f.sb, f.pb, f.ectx))
	assert.Equal(t, dag.ExecLocal, stmt.Exec)
	assert.Equal(t, prog.ExecLocal, f.pb.Exec)
	assert.Equal(t, 4, f.pb.DOP)
}

// randProgram draws an m-by-10 matrix and aggregates it when m > 5.
const randProgram = `
body:
  - kind: ParFor
    var: i
    from: {kind: Literal, value: 1}
    to: {kind: Literal, value: 4}
    body:
      - kind: Basic
        stmts:
          - kind: Assign
            lhs: R
            rhs: {kind: Rand, rows: {kind: Var, name: m}, cols: {kind: Literal, value: 10}, sparsity: 1}
      - kind: If
        cond: {kind: Binary, op: ">", lhs: {kind: Var, name: m}, rhs: {kind: Literal, value: 5}}
        then:
          - kind: Basic
            stmts:
              - kind: Assign
                lhs: x
                rhs: {kind: Agg, op: sum, dir: all, expr: {kind: Var, name: R}}
        else:
          - kind: Basic
            stmts:
              - kind: Assign
                lhs: x
                rhs: {kind: Literal, value: 0}
`

func scalarContext(name string, v float64) *exec.Context {
	vars := exec.NewVars()
	vars.Set(name, exec.NewScalar(v))
	return exec.NewContext(vars)
}

func TestRecompilationPropagatesConstants(t *testing.T) {
	p, rp := loadProgram(t, randProgram, exec.NewVars())
	sb, pb := p.Body[0].(*dag.ParFor), rp.Blocks[0].(*prog.ParFor)
	assert.Equal(t, -1.0, pb.Body[0].(*prog.Basic).Insts[0].Mem)

	w := newWrapper(t, 4, 1e6, DefaultConfig())
	require.NoError(t, w.Optimize(context.Background(), ModeRuleBased, sb, pb, scalarContext("m", 100)))
	require.Len(t, pb.Body, 2)
	_, ok := pb.Body[1].(*prog.Basic)
	assert.True(t, ok, "branch was not removed")
	assert.Equal(t, 8016.0, pb.Body[0].(*prog.Basic).Insts[0].Mem)
	assert.Equal(t, 4, pb.DOP)

	// The statement blocks keep the branch and the reads of m.
	require.Len(t, sb.Body, 2)
	_, ok = sb.Body[1].(*dag.If)
	assert.True(t, ok)
	read, _ := dag.Vars(sb.Body)
	assert.True(t, read.Has("m"))
	assert.Equal(t, dag.ExecLocal, sb.Body[0].(*dag.Basic).Stmts[0].Exec)
}

func TestReoptimizeWithNewStatistics(t *testing.T) {
	p, rp := loadProgram(t, randProgram, exec.NewVars())
	sb, pb := p.Body[0].(*dag.ParFor), rp.Blocks[0].(*prog.ParFor)
	w := newWrapper(t, 4, 1e6, DefaultConfig())

	require.NoError(t, w.Optimize(context.Background(), ModeRuleBased, sb, pb, scalarContext("m", 10)))
	assert.Equal(t, 816.0, pb.Body[0].(*prog.Basic).Insts[0].Mem)

	require.NoError(t, w.Optimize(context.Background(), ModeRuleBased, sb, pb, scalarContext("m", 1000)))
	assert.Equal(t, 80016.0, pb.Body[0].(*prog.Basic).Insts[0].Mem)

	// With m <= 5 the other branch is selected.
	require.NoError(t, w.Optimize(context.Background(), ModeRuleBased, sb, pb, scalarContext("m", 3)))
	require.Len(t, pb.Body, 2)
	basic := pb.Body[1].(*prog.Basic)
	assert.Equal(t, sb.Body[1].(*dag.If).Else[0].BlockID(), basic.ID())
	assert.Equal(t, 256.0, pb.Body[0].(*prog.Basic).Insts[0].Mem)
}

func TestFunctionLoopUsesFunctionScope(t *testing.T) {
	const src = `
funcs:
  ".defaultNS::f":
    params: [m]
    outputs: [x]
    body:
      - kind: ParFor
        var: i
        from: {kind: Literal, value: 1}
        to: {kind: Literal, value: 4}
        mode: heuristic
        body:
          - kind: Basic
            stmts:
              - kind: Assign
                lhs: x
                rhs: {kind: Rand, rows: {kind: Var, name: m}, cols: {kind: Literal, value: 10}, sparsity: 1}
body: []
`
	ectx := scalarContext("m", 10)
	p, rp := loadProgram(t, src, ectx.Vars())
	targets, err := Discover(p, rp)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	v, ok := targets[0].Context(ectx).Vars().Get("m")
	require.True(t, ok)
	assert.Equal(t, exec.Unknown, v.Chars)
	assert.Same(t, ectx, Target{}.Context(ectx))

	w := newWrapper(t, 4, 1e12, DefaultConfig())
	require.NoError(t, w.OptimizeAll(context.Background(), p, rp, ectx))
	pb := rp.Funcs[".defaultNS::f"].Body[0].(*prog.ParFor)
	assert.Equal(t, -1.0, pb.Body[0].(*prog.Basic).Insts[0].Mem)
	read, _ := dag.Vars(p.Funcs[".defaultNS::f"].Body)
	assert.True(t, read.Has("m"))
}

func TestDiscoverStopsAtOptimizedLoop(t *testing.T) {
	const src = `
body:
  - kind: ParFor
    var: i
    from: {kind: Literal, value: 1}
    to: {kind: Literal, value: 4}
    mode: rulebased
    body:
      - kind: If
        cond: {kind: Binary, op: ">", lhs: {kind: Var, name: i}, rhs: {kind: Literal, value: 2}}
        then:
          - kind: ParFor
            var: j
            from: {kind: Literal, value: 1}
            to: {kind: Literal, value: 2}
            mode: heuristic
            body:
              - kind: Basic
                stmts:
                  - {kind: Assign, lhs: y, rhs: {kind: Var, name: j}}
`
	p, rp := loadProgram(t, src, exec.NewVars())
	targets, err := Discover(p, rp)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "i", targets[0].Source.Var)
	assert.Equal(t, ModeRuleBased, targets[0].Mode)
}

func TestFailedOptimizationKeepsPlan(t *testing.T) {
	f := load(t, sumSource("rulebased"), sumVars(10000, 8))
	w := newWrapper(t, 4, 100000, DefaultConfig())
	require.NoError(t, w.Optimize(context.Background(), ModeRuleBased, f.sb, f.pb, f.ectx))
	stmt := f.sb.Body[0].(*dag.Basic).Stmts[0]
	body := f.pb.Body
	inst := *body[0].(*prog.Basic).Insts[0]
	params := prog.ParFor{DOP: f.pb.DOP, Exec: f.pb.Exec, Partitioner: f.pb.Partitioner, ResultMerge: f.pb.ResultMerge}
	stmtExec := stmt.Exec

	err := w.Optimize(context.Background(), ModeRuleBased, f.sb, f.pb, load(t, sumSource("rulebased"), sumVars(0, 8)).ectx)
	assert.ErrorIs(t, err, ErrSearchExhaustion)
	assert.Equal(t, stmtExec, stmt.Exec)
	require.Len(t, f.pb.Body, 1)
	assert.Same(t, body[0], f.pb.Body[0])
	assert.Equal(t, inst, *f.pb.Body[0].(*prog.Basic).Insts[0])
	assert.Equal(t, params.DOP, f.pb.DOP)
	assert.Equal(t, params.Exec, f.pb.Exec)
	assert.Equal(t, params.Partitioner, f.pb.Partitioner)
	assert.Equal(t, params.ResultMerge, f.pb.ResultMerge)
}

func TestCheckCorrectness(t *testing.T) {
	f := load(t, sumSource("rulebased"), sumVars(100, 8))
	before := snapshotVars(f.sb)
	require.NoError(t, checkCorrectness(f.sb, f.pb, before))

	stmt := f.sb.Body[0].(*dag.Basic).Stmts[0]
	stmt.LHS = "renamed"
	assert.ErrorIs(t, checkCorrectness(f.sb, f.pb, before), ErrCorrectness)
	stmt.LHS = "x"

	inst := f.pb.Body[0].(*prog.Basic).Insts[0]
	inst.Exec = prog.ExecUnset
	assert.ErrorContains(t, checkCorrectness(f.sb, f.pb, before), "has no execution location")
	inst.Exec = prog.ExecLocal

	f.pb.DOP = 0
	assert.ErrorContains(t, checkCorrectness(f.sb, f.pb, before), "degree of parallelism 0")
}

func TestOptimizeCanceled(t *testing.T) {
	f := load(t, sumSource("rulebased"), sumVars(100, 8))
	w := newWrapper(t, 4, 1e6, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Optimize(ctx, ModeRuleBased, f.sb, f.pb, f.ectx), context.Canceled)
}
