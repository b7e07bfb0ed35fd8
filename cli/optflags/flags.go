// Package optflags holds the flags that configure the parfor optimizer.
package optflags

import (
	"flag"
	"fmt"
	"io"

	"github.com/brimdata/parfor/compiler/optimizer"
	"github.com/brimdata/parfor/pkg/bytesize"
	"github.com/brimdata/parfor/runtime/monitor"
	"github.com/goccy/go-yaml"
)

type Flags struct {
	Config optimizer.Config
	Stats  bool

	configPath  string
	mode        string
	memFactor   float64
	parFactor   float64
	concurrency int
	localMem    bytesize.Bytes
	check       bool
	noRecompile bool
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "path of optimizer YAML config file")
	fs.StringVar(&f.mode, "mode", "", "optimize every parfor loop with this mode (none, heuristic, rulebased, constrained)")
	fs.Float64Var(&f.memFactor, "memfactor", 0, "fraction of slot memory available to a plan (overrides config)")
	fs.Float64Var(&f.parFactor, "parfactor", 0, "fraction of available parallelism available to a plan (overrides config)")
	fs.Var(&f.localMem, "localmem", "local memory in bytes or with a unit such as 16GiB (overrides config)")
	fs.IntVar(&f.concurrency, "P", 0, "number of loops optimized concurrently (overrides config)")
	fs.BoolVar(&f.check, "check", false, "verify each optimized plan")
	fs.BoolVar(&f.noRecompile, "norecompile", false, "disable recompilation of loop bodies")
	fs.BoolVar(&f.Stats, "stats", false, "display optimizer statistics on stderr")
}

// Init loads the config file, if any, and applies the command-line
// overrides.
func (f *Flags) Init() error {
	f.Config = optimizer.DefaultConfig()
	if f.configPath != "" {
		conf, err := optimizer.LoadConfig(f.configPath)
		if err != nil {
			return err
		}
		f.Config = conf
	}
	if f.memFactor != 0 {
		f.Config.MemUtilFactor = f.memFactor
	}
	if f.parFactor != 0 {
		f.Config.ParFactorInfrastructure = f.parFactor
	}
	if f.localMem > 0 {
		f.Config.Cluster.LocalMemory = f.localMem
	}
	if f.concurrency != 0 {
		f.Config.Concurrency = f.concurrency
	}
	if f.check {
		f.Config.CheckPlanCorrectness = true
	}
	if f.noRecompile {
		f.Config.AllowDynRecompilation = false
	}
	if f.Stats {
		f.Config.Monitor = true
	}
	return f.Config.Validate()
}

// Mode returns the mode given by -mode and whether it was given.
func (f *Flags) Mode() (optimizer.Mode, bool, error) {
	if f.mode == "" {
		return optimizer.ModeNone, false, nil
	}
	m, err := optimizer.ParseMode(f.mode)
	return m, true, err
}

// PrintStats writes the records of m as YAML to w.
func (f *Flags) PrintStats(w io.Writer, m *monitor.Monitor) {
	if !f.Stats || m == nil {
		return
	}
	out, err := yaml.Marshal(m.All())
	if err != nil {
		fmt.Fprintf(w, "error marshaling stats: %s\n", err)
		return
	}
	w.Write(out)
}
