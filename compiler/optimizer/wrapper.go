package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/compiler/optimizer/cost"
	"github.com/brimdata/parfor/compiler/optimizer/plan"
	"github.com/brimdata/parfor/compiler/recompile"
	"github.com/brimdata/parfor/compiler/rewrite"
	"github.com/brimdata/parfor/compiler/rungen"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/infra"
	"github.com/brimdata/parfor/runtime/monitor"
	"github.com/brimdata/parfor/runtime/prog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Wrapper finds the parfor loops of a program and optimizes each with
// the optimizer its mode selects.
type Wrapper struct {
	conf     Config
	analyzer infra.Analyzer
	logger   *zap.Logger
	monitor  *monitor.Monitor
	traces   cost.Traces

	// funcMu serializes the recompilation of function bodies, which
	// are shared by all loops.
	funcMu sync.Mutex
}

type WrapperOption func(*Wrapper)

// WithMonitor records every optimization in m.
func WithMonitor(m *monitor.Monitor) WrapperOption {
	return func(w *Wrapper) {
		w.monitor = m
	}
}

// WithTraces supplies the execution traces of the runtime cost model.
func WithTraces(t cost.Traces) WrapperOption {
	return func(w *Wrapper) {
		w.traces = t
	}
}

func NewWrapper(conf Config, analyzer infra.Analyzer, logger *zap.Logger, opts ...WrapperOption) *Wrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if analyzer == nil {
		analyzer = infra.NewLocal(conf.Cluster)
	}
	w := &Wrapper{
		conf:     conf,
		analyzer: analyzer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Target is a parfor loop found by Discover.
type Target struct {
	Mode    Mode
	Source  *dag.ParFor
	Runtime *prog.ParFor
	// Volatile holds the variables updated by the loops enclosing the
	// target, whose values may differ on the next optimization.
	Volatile dag.VarSet
	// Scope holds the variables visible to a loop in a function body:
	// the function's parameters, whose values are unknown.  It is nil
	// for loops in the program body.
	Scope *exec.Vars
}

// Context returns the context the target is optimized in: ectx for a
// loop in the program body and a context over the function's own scope
// for a loop in a function.
func (t Target) Context(ectx *exec.Context) *exec.Context {
	if t.Scope != nil {
		return exec.NewContext(t.Scope.Clone())
	}
	return ectx
}

func funcScope(f *dag.Func) *exec.Vars {
	vars := exec.NewVars()
	for _, param := range f.Params {
		vars.Set(param, exec.Value{Chars: exec.Unknown})
	}
	return vars
}

// Discover returns the parfor loops of the program with an optimization
// mode other than none, those in functions first in function key order.
// Loops nested in a parfor loop are not returned; they are optimized
// when their enclosing loop runs.
func Discover(sprog *dag.Program, rprog *prog.Program) ([]Target, error) {
	var targets []Target
	for _, key := range sprog.FuncKeys() {
		f, ok := rprog.Funcs[key]
		if !ok {
			return nil, newError(ErrPlanConstruction, 0, "discover", fmt.Errorf("function %s has no runtime program", key))
		}
		sf := sprog.Funcs[key]
		if err := discover(sf.Body, f.Body, nil, funcScope(sf), &targets); err != nil {
			return nil, err
		}
	}
	if err := discover(sprog.Body, rprog.Blocks, nil, nil, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

func discover(seq dag.Seq, blocks []prog.Block, volatile dag.VarSet, scope *exec.Vars, targets *[]Target) error {
	if len(seq) != len(blocks) {
		return newError(ErrPlanConstruction, 0, "discover", fmt.Errorf("%d statement blocks but %d runtime blocks", len(seq), len(blocks)))
	}
	for k, sb := range seq {
		pb := blocks[k]
		if sb.BlockID() != pb.ID() {
			return newError(ErrPlanConstruction, sb.BlockID(), "discover", fmt.Errorf("runtime block %d out of place", pb.ID()))
		}
		var err error
		switch sb := sb.(type) {
		case *dag.ParFor:
			pb, ok := pb.(*prog.ParFor)
			if !ok {
				return newError(ErrPlanConstruction, sb.ID, "discover", fmt.Errorf("runtime block is %T", blocks[k]))
			}
			mode, err := ParseMode(sb.Mode)
			if err != nil {
				return newError(ErrConfiguration, sb.ID, "discover", err)
			}
			if mode != ModeNone {
				*targets = append(*targets, Target{Mode: mode, Source: sb, Runtime: pb, Volatile: volatile, Scope: scope})
			}
		case *dag.If:
			pb, ok := pb.(*prog.If)
			if !ok {
				return newError(ErrPlanConstruction, sb.ID, "discover", fmt.Errorf("runtime block is %T", blocks[k]))
			}
			if err = discover(sb.Then, pb.Then, volatile, scope, targets); err == nil {
				err = discover(sb.Else, pb.Else, volatile, scope, targets)
			}
		case *dag.While:
			pb, ok := pb.(*prog.While)
			if !ok {
				return newError(ErrPlanConstruction, sb.ID, "discover", fmt.Errorf("runtime block is %T", blocks[k]))
			}
			err = discover(sb.Body, pb.Body, loopVolatile(volatile, sb.Body, ""), scope, targets)
		case *dag.For:
			pb, ok := pb.(*prog.For)
			if !ok {
				return newError(ErrPlanConstruction, sb.ID, "discover", fmt.Errorf("runtime block is %T", blocks[k]))
			}
			err = discover(sb.Body, pb.Body, loopVolatile(volatile, sb.Body, sb.Var), scope, targets)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func loopVolatile(outer dag.VarSet, body dag.Seq, loopVar string) dag.VarSet {
	_, updated := dag.Vars(body)
	for name := range outer {
		updated.Add(name)
	}
	if loopVar != "" {
		updated.Add(loopVar)
	}
	return updated
}

// OptimizeAll optimizes every loop Discover finds in the program, at most
// Config.Concurrency at a time.  ectx holds the statistics of the
// variables in scope and is not modified.
func (w *Wrapper) OptimizeAll(ctx context.Context, sprog *dag.Program, rprog *prog.Program, ectx *exec.Context) error {
	targets, err := Discover(sprog, rprog)
	if err != nil {
		return err
	}
	w.logger.Debug("discovered parfor loops", zap.Int("count", len(targets)))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, w.conf.Concurrency))
	for _, target := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return w.optimize(target, ectx)
		})
	}
	return g.Wait()
}

// Optimize optimizes the parfor loop sb with runtime block pb using the
// optimizer selected by mode.  The statements of sb are rewritten only
// in a copy from which the body of pb is regenerated, so each call sees
// the current values of ectx.  On error, the loop keeps the plan it had
// before the call; function bodies recompiled for its call sites stay
// recompiled.
func (w *Wrapper) Optimize(ctx context.Context, mode Mode, sb *dag.ParFor, pb *prog.ParFor, ectx *exec.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.optimize(Target{Mode: mode, Source: sb, Runtime: pb}, ectx)
}

func (w *Wrapper) optimize(target Target, ectx *exec.Context) (err error) {
	start := time.Now()
	sb, pb := target.Source, target.Runtime
	if sb == nil || pb == nil {
		return newError(ErrPlanConstruction, 0, "optimize", errors.New("missing parfor block"))
	}
	id := sb.ID
	logger := w.logger.With(zap.Int64("parfor", id), zap.Stringer("mode", target.Mode))
	if ectx == nil {
		ectx = exec.NewContext(exec.NewVars())
	}
	ectx = target.Context(ectx)
	ck, cm := infra.Ceilings(w.analyzer, w.conf.ParFactorInfrastructure, w.conf.MemUtilFactor)
	logger.Debug("resource ceilings", zap.Int("ck", ck), zap.Float64("cm", cm))

	opt, err := New(target.Mode, w.conf)
	if err != nil {
		return newError(ErrConfiguration, id, "create optimizer", err)
	}
	model := opt.CostModel()
	if model == cost.RuntimeMetrics && (!w.conf.AllowRuntimeCostModel || w.traces == nil) {
		return newError(ErrConfiguration, id, "create optimizer",
			fmt.Errorf("optimizer %s requires cost model %s that is not supported", opt.Mode(), model))
	}
	saved := savePlan(sb, pb)
	defer func() {
		if err != nil {
			saved.restore()
			logger.Debug("restored previous plan", zap.Error(err))
		}
	}()
	work := sb
	if w.conf.AllowDynRecompilation {
		if logger.Core().Enabled(zap.DebugLevel) {
			tree, err := plan.Build(ck, cm, opt.PlanInput(), sb, pb, ectx)
			if err != nil {
				return newError(ErrPlanConstruction, id, "build plan", err)
			}
			logger.Debug("input plan before recompilation", zap.String("plan", tree.Explain()))
			tree.Clear()
		}
		if work, err = w.recompile(target, ectx, rungen.NewBuilder(cm), logger); err != nil {
			return newError(ErrRecompilation, id, "recompile", err)
		}
	}
	tree, err := plan.Build(ck, cm, opt.PlanInput(), work, pb, ectx)
	if err != nil {
		return newError(ErrPlanConstruction, id, "build plan", err)
	}
	defer tree.Clear()
	logger.Debug("input plan", zap.String("plan", tree.Explain()))
	est, err := cost.New(model, w.conf.Cost, w.traces)
	if err != nil {
		return newError(ErrConfiguration, id, "create cost estimator", err)
	}
	before := snapshotVars(work)
	if err := opt.Optimize(work, pb, tree, est, ectx); err != nil {
		kind := ErrPlanConstruction
		if errors.Is(err, ErrSearchExhaustion) {
			kind = ErrSearchExhaustion
		}
		return newError(kind, id, "optimize", err)
	}
	logger.Debug("optimized plan", zap.String("plan", tree.Explain()))
	if w.conf.CheckPlanCorrectness {
		if err := checkCorrectness(work, pb, before); err != nil {
			return newError(ErrCorrectness, id, "check plan", err)
		}
		logger.Debug("checked plan and program correctness")
	}
	if work != sb {
		copyExec(work.Body, sb.Body)
	}
	elapsed := time.Since(start)
	if w.monitor != nil {
		w.monitor.Put(monitor.Record{
			LoopID:         id,
			Optimizer:      opt.Mode().String(),
			Elapsed:        elapsed,
			TotalPlans:     opt.NumTotalPlans(),
			EvaluatedPlans: opt.NumEvaluatedPlans(),
		})
	}
	logger.Info("optimized parfor loop",
		zap.Stringer("exec", pb.Exec),
		zap.Int("k", pb.DOP),
		zap.Stringer("partitioner", pb.Partitioner),
		zap.Stringer("result_merge", pb.ResultMerge),
		zap.Int64("total_plans", opt.NumTotalPlans()),
		zap.Int64("evaluated_plans", opt.NumEvaluatedPlans()),
		zap.Duration("elapsed", elapsed))
	return nil
}

// recompile propagates constants into a copy of the body of the target
// loop, rewrites the copy and regenerates the runtime body from it.  It
// then recompiles the functions the loop calls that can be specialized.
// The returned loop holds the rewritten copy.
func (w *Wrapper) recompile(target Target, ectx *exec.Context, builder *rungen.Builder, logger *zap.Logger) (*dag.ParFor, error) {
	sb, pb := target.Source, target.Runtime
	vars := ectx.Vars()
	body, err := dag.CopySeq(sb.Body)
	if err != nil {
		return nil, err
	}
	work := *sb
	work.Body = body
	dag.WalkBlocks(work.Body, func(b dag.Block) {
		if basic, ok := b.(*dag.Basic); ok {
			for _, stmt := range basic.Stmts {
				stmt.Exec = dag.ExecUnset
			}
		}
	})
	volatile := make(dag.VarSet)
	for name := range target.Volatile {
		volatile.Add(name)
	}
	volatile.Add(sb.Var)
	consts := rewrite.ReusableScalars(work.Body, vars, volatile)
	propagated := rewrite.PropagateConstants(work.Body, consts)
	var status rewrite.Status
	work.Body, status = rewrite.NewDefault().Rewrite(work.Body)
	status.Propagated = propagated
	logger.Debug("rewrote parfor body",
		zap.Int("propagated", status.Propagated),
		zap.Int("folded", status.Folded),
		zap.Int("removed_branches", status.RemovedBranches))
	blocks, err := builder.GenerateBlocks(pb.Program, work.Body, vars.Clone(), 0)
	if err != nil {
		return nil, err
	}
	pb.Body = blocks
	rec := recompile.New(builder, logger)
	if err := rec.RecompileHierarchy(pb.Body, vars.Clone(), 0, true); err != nil {
		return nil, err
	}
	if pb.Program == nil || !pb.HasFunctions() {
		return &work, nil
	}
	funcs := make(map[string]*dag.Func, len(pb.Program.Funcs))
	for key, f := range pb.Program.Funcs {
		funcs[key] = f.Source
	}
	cands := recompile.AnalyzeSubProgram(work.Body, funcs, vars)
	w.funcMu.Lock()
	defer w.funcMu.Unlock()
	for _, c := range cands {
		f := pb.Program.Funcs[c.Key]
		logger.Debug("recompiling function", zap.String("function", c.Key), zap.Bool("recompile_once", f.RecompileOnce))
		if err := rec.RecompileHierarchy(f.Body, c.Params(f.Source), 0, f.RecompileOnce); err != nil {
			return nil, fmt.Errorf("function %s: %w", c.Key, err)
		}
	}
	return &work, nil
}
