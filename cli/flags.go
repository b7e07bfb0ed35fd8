// Package cli holds the flags shared by the parfor commands.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
)

type Initializer interface {
	Init() error
}

type Flags struct {
	cpuprofile string
	memprofile string
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&f.cpuprofile, "cpuprofile", "", "write cpu profile to given file name")
	fs.StringVar(&f.memprofile, "memprofile", "", "write memory profile to given file name")
}

// Init initializes each of its arguments and starts profiling if
// requested.  The returned cleanup function stops profiling and must be
// called once the command is done.
func (f *Flags) Init(all ...Initializer) (context.Context, func(), error) {
	for _, flags := range all {
		if err := flags.Init(); err != nil {
			return nil, nil, err
		}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	stop, err := f.startProfiling()
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

func (f *Flags) startProfiling() (func(), error) {
	var cpu *os.File
	if f.cpuprofile != "" {
		var err error
		cpu, err = os.Create(f.cpuprofile)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(cpu); err != nil {
			cpu.Close()
			return nil, err
		}
	}
	return func() {
		if cpu != nil {
			pprof.StopCPUProfile()
			cpu.Close()
		}
		if f.memprofile != "" {
			if err := writeHeapProfile(f.memprofile); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}, nil
}

func writeHeapProfile(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return pprof.Lookup("heap").WriteTo(out, 0)
}
