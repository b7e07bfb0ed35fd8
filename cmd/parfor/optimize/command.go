package optimize

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/brimdata/parfor"
	"github.com/brimdata/parfor/cli/optflags"
	"github.com/brimdata/parfor/cmd/parfor/root"
	"github.com/brimdata/parfor/compiler/optimizer"
	"github.com/brimdata/parfor/pkg/charm"
	"github.com/brimdata/parfor/runtime/monitor"
	"github.com/brimdata/parfor/runtime/prog"
	"github.com/prometheus/client_golang/prometheus"
)

var spec = &charm.Spec{
	Name:  "optimize",
	Usage: "optimize [options] file",
	Short: "optimize the parfor loops of a program",
	Long: `
The optimize command generates the runtime program of the program in
file ("-" for standard input), optimizes each of its parfor loops and
writes the explained runtime program to standard output.  Each parfor
loop is listed with its execution location (exec), degree of
parallelism (k), data partitioner (dp) and result merge (rm), and each
instruction with its execution location.

Loops are optimized with the mode they declare unless -mode is given.
Loops declaring mode "none" are never optimized, nor are the loops
nested in a parfor loop, which are decided along with it.

If a loop cannot be optimized, the error is reported and the loop keeps
its sequential default parameters.  With -f json, the statement program
is written as JSON instead, with the execution location chosen for each
statement.
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
	format   string
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.optFlags.SetFlags(f)
	f.StringVar(&c.vars, "vars", "", "YAML or JSON file of variable statistics")
	f.StringVar(&c.format, "f", "text", "format of output (text or json)")
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
	if c.format != "text" && c.format != "json" {
		return fmt.Errorf("unknown output format: %s", c.format)
	}
	conf := c.optFlags.Config
	c.LogFlags.SetDefaultLevel(conf.LogLevel)
	logger, err := c.LogFlags.Open()
	if err != nil {
		return err
	}
	defer logger.Sync()
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
	var opts []optimizer.WrapperOption
	var m *monitor.Monitor
	if conf.Monitor {
		m = monitor.New(prometheus.NewRegistry())
		opts = append(opts, optimizer.WithMonitor(m))
	}
	rp, err := parfor.Optimize(ctx, conf, logger, p, vars, opts...)
	if rp == nil {
		return err
	}
	if c.format == "json" {
		b, jerr := json.MarshalIndent(p, "", "  ")
		if jerr != nil {
			return errors.Join(err, jerr)
		}
		fmt.Println(string(b))
	} else {
		fmt.Print(prog.ExplainProgram(rp))
	}
	c.optFlags.PrintStats(os.Stderr, m)
	return err
}
