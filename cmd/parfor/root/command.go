package root

import (
	"context"
	"flag"
	"fmt"

	"github.com/brimdata/parfor"
	"github.com/brimdata/parfor/cli"
	"github.com/brimdata/parfor/cli/logflags"
	"github.com/brimdata/parfor/compiler/dag"
	"github.com/brimdata/parfor/pkg/charm"
	"github.com/brimdata/parfor/pkg/storage"
	"github.com/brimdata/parfor/runtime/exec"
)

var Parfor = &charm.Spec{
	Name:        "parfor",
	Usage:       "parfor [options] <command> [options] [arguments...]",
	Short:       "optimize the parfor loops of a program",
	HiddenFlags: "cpuprofile,memprofile",
	Long: `
The "parfor" command decides how the parfor loops of a compiled program
execute.  A program is a YAML or JSON description of statement blocks
whose statements compute matrix and scalar expressions.  A parfor loop
is a for loop whose iterations are independent; its "mode" names the
optimizer that decides the degree of parallelism, the data partitioning
and the result merge of the loop as well as whether each statement in
its body runs locally or distributed on the cluster.

The statistics of the variables in scope, given with -vars, drive the
size estimates the optimizers rely on.  Variables without statistics are
assumed to be as large as the configured default.

The resources the optimizers plan for are those of this machine and of
the cluster described in the optimizer config file.
`,
	New: New,
}

type Command struct {
	cli.Flags
	LogFlags logflags.Flags
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{}
	c.Flags.SetFlags(f)
	c.LogFlags.SetFlags(f)
	return c, nil
}

func (c *Command) Run(args []string) error {
	if len(args) == 0 {
		return charm.NeedHelp
	}
	return fmt.Errorf("unknown command: %s", args[0])
}

// LoadProgram reads the program in the file named path or standard input
// if path is "-".
func LoadProgram(ctx context.Context, path string) (*dag.Program, error) {
	b, err := storage.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}
	p, err := parfor.ParseProgram(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadVars reads variable statistics from the file named path.  An
// empty path means no statistics.
func LoadVars(ctx context.Context, path string) (*exec.Vars, error) {
	if path == "" {
		return exec.NewVars(), nil
	}
	b, err := storage.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}
	vars, err := parfor.ParseVars(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vars, nil
}

// SetMode overrides the mode of every parfor loop of p that declares
// one other than none.
func SetMode(p *dag.Program, mode string) {
	set := func(b dag.Block) {
		if pf, ok := b.(*dag.ParFor); ok && pf.Mode != "none" {
			pf.Mode = mode
		}
	}
	for _, key := range p.FuncKeys() {
		dag.WalkBlocks(p.Funcs[key].Body, set)
	}
	dag.WalkBlocks(p.Body, set)
}
