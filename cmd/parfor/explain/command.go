package explain

import (
	"flag"
	"fmt"

	"github.com/brimdata/parfor/cli/optflags"
	"github.com/brimdata/parfor/cmd/parfor/root"
	"github.com/brimdata/parfor/compiler/optimizer"
	"github.com/brimdata/parfor/compiler/optimizer/cost"
	"github.com/brimdata/parfor/compiler/optimizer/plan"
	"github.com/brimdata/parfor/compiler/rungen"
	"github.com/brimdata/parfor/pkg/charm"
	"github.com/brimdata/parfor/runtime/exec"
	"github.com/brimdata/parfor/runtime/infra"
)

var spec = &charm.Spec{
	Name:  "explain",
	Usage: "explain [options] file",
	Short: "display the plan trees of the parfor loops of a program",
	Long: `
The explain command displays the plan tree the optimizer of each parfor loop
in file ("-" for standard input) would search over, annotated with the
static cost estimates of the loop's default, sequential parameters.
Loops are listed in the order they would be optimized.  The program is
neither recompiled nor optimized.
`,
	New: New,
}

func init() {
	root.Parfor.Add(spec)
}

type Command struct {
	*root.Command
	optFlags optflags.Flags
	vars     string
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.optFlags.SetFlags(f)
	f.StringVar(&c.vars, "vars", "", "YAML or JSON file of variable statistics")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init(&c.optFlags)
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) != 1 {
		return charm.NeedHelp
	}
	conf := c.optFlags.Config
	p, err := root.LoadProgram(ctx, args[0])
	if err != nil {
		return err
	}
	if mode, ok, err := c.optFlags.Mode(); err != nil {
		return err
	} else if ok {
		root.SetMode(p, mode.String())
	}
	vars, err := root.LoadVars(ctx, c.vars)
	if err != nil {
		return err
	}
	ck, cm := infra.Ceilings(infra.NewLocal(conf.Cluster), conf.ParFactorInfrastructure, conf.MemUtilFactor)
	rp, err := rungen.NewBuilder(cm).GenerateProgram(p, vars)
	if err != nil {
		return err
	}
	targets, err := optimizer.Discover(p, rp)
	if err != nil {
		return err
	}
	est := cost.NewStatic(conf.Cost)
	ectx := exec.NewContext(vars)
	fmt.Printf("ceilings: k=%d mem=%.0f\n", ck, cm)
	for _, target := range targets {
		opt, err := optimizer.New(target.Mode, conf)
		if err != nil {
			return err
		}
		tree, err := plan.Build(ck, cm, opt.PlanInput(), target.Source, target.Runtime, target.Context(ectx))
		if err != nil {
			return err
		}
		_, err = est.Estimate(tree, tree.Root)
		if err == nil {
			fmt.Printf("\n%s (%s plan)\n%s", target.Mode, tree.Input, tree.Explain())
		}
		tree.Clear()
		if err != nil {
			return err
		}
	}
	return nil
}
