// Package charm is minimilast CLI framework inspired by cobra and urfave/cli.
package charm

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

var (
	NeedHelp = errors.New("help")
	ErrNoRun = errors.New("no run method")
)

type Constructor func(Command, *flag.FlagSet) (Command, error)

type Command interface {
	Run([]string) error
}

type Spec struct {
	Name  string
	Usage string
	Short string
	Long  string
	New   Constructor
	// Hidden hides this command from help.
	Hidden bool
	// Hidden flags (comma-separated) marks these flags as hidden.
	HiddenFlags string
	children    []*Spec
	parent      *Spec
}

func (c *Spec) Add(child *Spec) {
	c.children = append(c.children, child)
	child.parent = c
}

func (c *Spec) lookupSub(name string) *Spec {
	for _, child := range c.children {
		if name == child.Name {
			return child
		}
	}
	return nil
}

// Exec parses args into the command path they name and runs the last
// command of the path with the remaining arguments.
func (s *Spec) Exec(args []string) error {
	path, rest, showHidden, err := parse(s, args, nil)
	if err == nil {
		err = path.run(rest)
	}
	if err == NeedHelp {
		displayHelp(os.Stdout, path, showHidden)
		return nil
	}
	return err
}

func NoRun(args []string) error {
	if len(args) == 0 {
		return NeedHelp
	}
	return ErrNoRun
}

type instance struct {
	spec    *Spec
	command Command
	flags   *flag.FlagSet
}

type path []instance

func (p path) run(args []string) error {
	if len(p) == 0 {
		return ErrNoRun
	}
	return p[len(p)-1].command.Run(args)
}

// parse builds the command of spec and, if the first argument after its
// flags names a subcommand, the commands below it.  Flags of a command
// must precede its subcommand.
func parse(spec *Spec, args []string, parent Command) (path, []string, bool, error) {
	fs := flag.NewFlagSet(spec.Name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	help := fs.Bool("h", false, "display help")
	fs.BoolVar(help, "help", false, "display help")
	showHidden := fs.Bool("hidden", false, "show hidden options")
	cmd, err := spec.New(parent, fs)
	if err != nil {
		return nil, nil, false, err
	}
	p := path{{spec: spec, command: cmd, flags: fs}}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return p, nil, *showHidden, NeedHelp
		}
		return p, nil, false, fmt.Errorf("%s: %w", spec.Name, err)
	}
	if *help {
		return p, nil, *showHidden, NeedHelp
	}
	rest := fs.Args()
	if len(rest) > 0 {
		if child := spec.lookupSub(rest[0]); child != nil {
			sub, rest, hidden, err := parse(child, rest[1:], cmd)
			return append(p, sub...), rest, hidden || *showHidden, err
		}
	}
	return p, rest, *showHidden, nil
}

func displayHelp(w io.Writer, p path, showHidden bool) {
	if len(p) == 0 {
		return
	}
	last := p[len(p)-1]
	spec := last.spec
	fmt.Fprintf(w, "NAME\n    %s - %s\n\n", spec.Name, spec.Short)
	fmt.Fprintf(w, "USAGE\n    %s\n", spec.Usage)
	hidden := strings.Split(spec.HiddenFlags, ",")
	var options []string
	last.flags.VisitAll(func(f *flag.Flag) {
		switch f.Name {
		case "h", "help", "hidden":
			return
		}
		if !showHidden && slices.Contains(hidden, f.Name) {
			return
		}
		opt := fmt.Sprintf("    -%s %s", f.Name, f.Usage)
		if f.DefValue != "" {
			opt += fmt.Sprintf(" (default %q)", f.DefValue)
		}
		options = append(options, opt)
	})
	if len(options) > 0 {
		fmt.Fprintf(w, "\nOPTIONS\n%s\n", strings.Join(options, "\n"))
	}
	var commands []string
	for _, child := range spec.children {
		if child.Hidden && !showHidden {
			continue
		}
		commands = append(commands, fmt.Sprintf("    %-12s %s", child.Name, child.Short))
	}
	if len(commands) > 0 {
		fmt.Fprintf(w, "\nCOMMANDS\n%s\n", strings.Join(commands, "\n"))
	}
	if long := strings.TrimSpace(spec.Long); long != "" {
		fmt.Fprintf(w, "\nDESCRIPTION\n%s\n", long)
	}
}
