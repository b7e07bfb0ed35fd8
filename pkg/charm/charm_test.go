package charm

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCommand struct {
	name   string
	parent *testCommand
	level  string
	ran    *[]string
}

func (c *testCommand) Run(args []string) error {
	*c.ran = append(*c.ran, c.name)
	*c.ran = append(*c.ran, args...)
	if c.parent != nil {
		*c.ran = append(*c.ran, "level="+c.parent.level)
	}
	return nil
}

func testSpecs(ran *[]string) *Spec {
	root := &Spec{
		Name:        "root",
		Usage:       "root <command>",
		Short:       "test root",
		HiddenFlags: "secret",
		New: func(_ Command, f *flag.FlagSet) (Command, error) {
			c := &testCommand{name: "root", ran: ran}
			f.StringVar(&c.level, "level", "info", "log level")
			f.Bool("secret", false, "hidden flag")
			return c, nil
		},
	}
	root.Add(&Spec{
		Name:  "sub",
		Usage: "root sub [file]",
		Short: "test sub",
		New: func(parent Command, f *flag.FlagSet) (Command, error) {
			return &testCommand{name: "sub", parent: parent.(*testCommand), ran: ran}, nil
		},
	})
	return root
}

func TestExec(t *testing.T) {
	var ran []string
	root := testSpecs(&ran)
	require.NoError(t, root.Exec([]string{"-level", "debug", "sub", "a", "b"}))
	assert.Equal(t, []string{"sub", "a", "b", "level=debug"}, ran)

	ran = nil
	require.NoError(t, root.Exec([]string{"x"}))
	assert.Equal(t, []string{"root", "x"}, ran)

	assert.ErrorContains(t, root.Exec([]string{"-bogus"}), "flag provided but not defined")
}

func TestHelp(t *testing.T) {
	var ran []string
	root := testSpecs(&ran)
	p, _, showHidden, err := parse(root, []string{"-h"}, nil)
	assert.Equal(t, NeedHelp, err)
	var buf bytes.Buffer
	displayHelp(&buf, p, showHidden)
	assert.Contains(t, buf.String(), "-level log level")
	assert.Contains(t, buf.String(), "sub          test sub")
	assert.NotContains(t, buf.String(), "secret")

	p, _, showHidden, err = parse(root, []string{"-hidden", "-h"}, nil)
	assert.Equal(t, NeedHelp, err)
	buf.Reset()
	displayHelp(&buf, p, showHidden)
	assert.Contains(t, buf.String(), "-secret")
	assert.Empty(t, ran)
}

func TestNoRun(t *testing.T) {
	assert.Equal(t, NeedHelp, NoRun(nil))
	assert.Equal(t, ErrNoRun, NoRun([]string{"x"}))
}
