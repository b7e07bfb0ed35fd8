// Package ptest runs formulaic tests ("ptests") that can be (1) run in-process
// with the compiled-in code base or (2) run as a bash script running a sequence
// of arbitrary shell commands invoking any of the build artifacts.  Case (1)
// is easier to debug by simply running "go test" compared to replicating the
// test using "go run".  Script-style tests don't have this convenience.
//
// In the in-process style, ptest optimizes the parfor loops of a program
// given the statistics of its variables and checks the explained runtime
// program or the error against the expected output.
//
// A ptest is defined in a YAML file.
//
//	config: |
//	  mem_util_factor: 1
//	  cluster: {local_cores: 4, local_memory: 100000}
//
//	vars:
//	  A: {rows: 10000, cols: 1}
//	  n: {scalar: 8}
//
//	program: |
//	  body:
//	    - kind: ParFor
//	      var: i
//	      from: {kind: Literal, value: 1}
//	      to: {kind: Var, name: n}
//	      mode: heuristic
//	      body:
//	        - kind: Basic
//	          stmts:
//	            - kind: Assign
//	              lhs: x
//	              rhs: {kind: Agg, op: sum, dir: all, expr: {kind: Var, name: A}}
//
//	output: |
//	  PARFOR (1) exec=local k=1 dp=none rm=local-mem
//	    BASIC (2)
//	      local uasum x <- A
//
// The config field is decoded over the default optimizer configuration.
// A failed optimization is matched against the error field instead.
//
// Alternatively, tests can be configured to run as shell scripts.
// In this style of test, arbitrary bash scripts can run chaining together
// any of the tools in cmd/.  Scripts are executed by "bash -e -o pipefail",
// and a nonzero shell exit code causes a test failure, so any failed
// command generally results in a test failure.  Here, the yaml sets up a
// collection of input files and stdin, the script runs, and the test driver
// compares expected output files, stdout, and stderr with data in the yaml
// spec.  In this case, instead of specifying "program" and "output", you
// specify the yaml arrays "inputs" and "outputs" --- where each array
// element defines a file, stdin, stdout, or stderr --- and a "script" that
// specifies a multi-line yaml string defining the script, e.g.,
//
//	inputs:
//	  - name: prog.yaml
//	  - name: vars.yaml
//	script: |
//	  parfor optimize -vars vars.yaml prog.yaml
//	outputs:
//	  - name: stdout
//	    data: |
//	      PARFOR (1) exec=local k=4 dp=none rm=local-mem
//	      ...
//
// Each input and output has a name.  For inputs, a file (source)
// or inline data (data) may be specified.
// If no data is specified, then a file of the same name as the
// name field is looked for in the same directory as the yaml file.
// The source spec is a file path relative to the directory of the
// yaml file.  For outputs, expected output is defined in the same
// fashion as the inputs though you can also specify a "regexp" string
// instead of expected data.  If an output is named "stdout" or "stderr"
// then the actual output is taken from the stdout or stderr of the
// the shell script.
//
// Ptest YAML files for a package should reside in a subdirectory named
// ptests.
//
//	pkg/
//	  pkg.go
//	  pkg_test.go
//	  ptests/
//	    test-1.yaml
//	    test-2.yaml
//	    ...
//
// Name YAML files descriptively since each ptest runs as a subtest
// named for the file that defines it.
//
// If the PTEST_PATH environment variable is unset or empty and the test
// is not a script test, Run runs ptests in the current process and skips
// the script tests.  Otherwise, Run runs each script test in a separate
// process using the parfor executable in the directories specified by
// PTEST_PATH.
//
// Tests of either style can be skipped by setting the skip field to a non-empty
// string.  A message containing the string will be written to the test log.
package ptest

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/brimdata/parfor"
	"github.com/brimdata/parfor/compiler/optimizer"
	"github.com/brimdata/parfor/runtime/prog"
	"github.com/goccy/go-yaml"
	yamlparser "github.com/goccy/go-yaml/parser"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
)

func ShellPath() string {
	return os.Getenv("PTEST_PATH")
}

type Bundle struct {
	TestName string
	FileName string
	Test     *PTest
	Error    error
}

func Load(dirname string) ([]Bundle, error) {
	var bundles []Bundle
	fileinfos, err := os.ReadDir(dirname)
	if err != nil {
		return nil, err
	}
	for _, fi := range fileinfos {
		filename := fi.Name()
		const dotyaml = ".yaml"
		if !strings.HasSuffix(filename, dotyaml) {
			continue
		}
		testname := strings.TrimSuffix(filename, dotyaml)
		filename = filepath.Join(dirname, filename)
		pt, err := FromYAMLFile(filename)
		bundles = append(bundles, Bundle{testname, filename, pt, err})
	}
	return bundles, nil
}

// Run runs the ptests in the directory named dirname.  For each file f.yaml in
// the directory, Run calls FromYAMLFile to load a ptest and then runs it in
// subtest named f.
func Run(t *testing.T, dirname string) {
	shellPath := ShellPath()
	bundles, err := Load(dirname)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range bundles {
		t.Run(b.TestName, func(t *testing.T) {
			t.Parallel()
			if b.Error != nil {
				t.Fatalf("%s: %s", b.FileName, b.Error)
			}
			b.Test.Run(t, shellPath, b.FileName)
		})
	}
}

type File struct {
	// Name is the name of the file with respect to the directory in which
	// the test script runs.  For inputs, if no data source is specified,
	// then name is also the name of a data file in the directory containing
	// the yaml test file, which is copied to the test script directory.
	// Name can also be stdin (for inputs) or stdout or stderr (for outputs).
	Name string `yaml:"name"`
	// Data and Source represent the different ways file data can
	// be defined for this file.  Data is a string turned into the contents
	// of the file. Source is a string representing
	// the pathname of a file the repo that is read to comprise the data.
	Data   *string `yaml:"data,omitempty"`
	Source string  `yaml:"source,omitempty"`
	// Re is a regular expression describing the contents of the file,
	// which is only applicable to output files.
	Re string `yaml:"regexp,omitempty"`
}

func (f *File) check() error {
	cnt := 0
	if f.Data != nil {
		cnt++
	}
	if f.Source != "" {
		cnt++
	}
	if cnt > 1 {
		return fmt.Errorf("%s: must specify at most one of data or source", f.Name)
	}
	return nil
}

func (f *File) load(dir string) ([]byte, *regexp.Regexp, error) {
	if f.Data != nil {
		return []byte(*f.Data), nil, nil
	}
	if f.Source != "" {
		b, err := os.ReadFile(filepath.Join(dir, f.Source))
		return b, nil, err
	}
	if f.Re != "" {
		re, err := regexp.Compile(f.Re)
		return nil, re, err
	}
	b, err := os.ReadFile(filepath.Join(dir, f.Name))
	if err == nil {
		return b, nil, nil
	}
	if os.IsNotExist(err) {
		err = fmt.Errorf("%s: no data source", f.Name)
	}
	return nil, nil, err
}

// PTest defines a ptest.
type PTest struct {
	Skip string `yaml:"skip,omitempty"`
	Tag  string `yaml:"tag,omitempty"`

	// For in-process tests.
	Program string                    `yaml:"program,omitempty"`
	Vars    map[string]parfor.VarSpec `yaml:"vars,omitempty"`
	Config  string                    `yaml:"config,omitempty"`
	Output  string                    `yaml:"output,omitempty"`
	Error   string                    `yaml:"error,omitempty"`

	// For script-style tests.
	Script  string   `yaml:"script,omitempty"`
	Inputs  []File   `yaml:"inputs,omitempty"`
	Outputs []File   `yaml:"outputs,omitempty"`
	Env     []string `yaml:"env,omitempty"`
}

func (p *PTest) check() error {
	if p.Script != "" {
		if p.Outputs == nil {
			return errors.New("outputs field missing in a sh test")
		}
		for _, f := range p.Inputs {
			if err := f.check(); err != nil {
				return err
			}
			if f.Re != "" {
				return fmt.Errorf("%s: cannot use regexp in an input", f.Name)
			}
		}
		for _, f := range p.Outputs {
			if err := f.check(); err != nil {
				return err
			}
		}
	} else if p.Program == "" {
		return errors.New("either a program field or script field must be present")
	}
	return nil
}

// FromYAMLFile loads a PTest from the YAML file named filename.
func FromYAMLFile(filename string) (*PTest, error) {
	f, err := yamlparser.ParseFile(filename, 0)
	if err != nil {
		return nil, err
	}
	if len(f.Docs) != 1 {
		return nil, errors.New("file must contain one YAML document")
	}
	var p PTest
	if err := yaml.NodeToValue(f.Docs[0].Body, &p, yaml.DisallowUnknownField()); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *PTest) ShouldSkip(path string) string {
	switch {
	case p.Script != "" && path == "":
		return "script test on in-process run"
	case p.Program != "" && path != "":
		return "in-process test on script run"
	case p.Skip != "":
		return p.Skip
	case p.Tag != "" && p.Tag != os.Getenv("PTEST_TAG"):
		return fmt.Sprintf("tag %q does not match PTEST_TAG=%q", p.Tag, os.Getenv("PTEST_TAG"))
	}
	return ""
}

func (p *PTest) RunScript(ctx context.Context, shellPath, testDir, tempDir string) error {
	if err := p.check(); err != nil {
		return fmt.Errorf("bad yaml format: %w", err)
	}
	return runsh(ctx, shellPath, testDir, tempDir, p)
}

func (p *PTest) RunInternal(ctx context.Context) error {
	if err := p.check(); err != nil {
		return fmt.Errorf("bad yaml format: %w", err)
	}
	return p.diffInternal(runInternal(ctx, p.Program, p.Vars, p.Config))
}

func (p *PTest) diffInternal(out string, err error) error {
	var outDiffErr, errDiffErr error
	if p.Output != out {
		outDiffErr = diffErr("output", p.Output, out)
	}
	var errStr string
	if err != nil {
		// Append newline if err doesn't end with one.
		errStr = strings.TrimSuffix(err.Error(), "\n") + "\n"
	}
	if p.Error != errStr {
		errDiffErr = diffErr("error", p.Error, errStr)
	}
	return errors.Join(outDiffErr, errDiffErr)
}

func (p *PTest) Run(t *testing.T, path, filename string) {
	if msg := p.ShouldSkip(path); msg != "" {
		t.Skip("skipping test:", msg)
	}
	var err error
	if p.Script != "" {
		err = p.RunScript(t.Context(), path, filepath.Dir(filename), t.TempDir())
	} else {
		err = p.RunInternal(t.Context())
	}
	if err != nil {
		t.Fatalf("%s: %s", filename, err)
	}
}

func diffErr(name, expected, actual string) error {
	if !utf8.ValidString(expected) {
		expected = hex.Dump([]byte(expected))
		actual = hex.Dump([]byte(actual))
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		FromFile: "expected",
		B:        difflib.SplitLines(actual),
		ToFile:   "actual",
		Context:  5,
	})
	if err != nil {
		panic("ptest: " + err.Error())
	}
	return fmt.Errorf("expected and actual %s differ:\n%s", name, diff)
}

func runsh(ctx context.Context, path, testDir, tempDir string, pt *PTest) error {
	var stdin io.Reader
	for _, f := range pt.Inputs {
		b, _, err := f.load(testDir)
		if err != nil {
			return err
		}
		if f.Name == "stdin" {
			stdin = bytes.NewReader(b)
			continue
		}
		if err := os.WriteFile(filepath.Join(tempDir, f.Name), b, 0644); err != nil {
			return err
		}
	}
	stdout, stderr, err := RunShell(ctx, tempDir, path, pt.Script, stdin, pt.Env)
	if err != nil {
		return fmt.Errorf("script failed: %w\n=== stdout ===\n%s=== stderr ===\n%s",
			err, stdout, stderr)
	}
	for _, f := range pt.Outputs {
		var actual string
		switch f.Name {
		case "stdout":
			actual = stdout
		case "stderr":
			actual = stderr
		default:
			b, err := os.ReadFile(filepath.Join(tempDir, f.Name))
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			actual = string(b)
		}
		expected, expectedRE, err := f.load(testDir)
		if err != nil {
			return err
		}
		if expected != nil && string(expected) != actual {
			return diffErr(f.Name, string(expected), actual)
		}
		if expectedRE != nil && !expectedRE.MatchString(actual) {
			return fmt.Errorf("%s: regexp %q does not match %q", f.Name, expectedRE, actual)
		}
	}
	return nil
}

// runInternal optimizes program for the variables vars under the
// configuration conf and returns the explained runtime program.
func runInternal(ctx context.Context, program string, vars map[string]parfor.VarSpec, conf string) (string, error) {
	p, err := parfor.ParseProgram([]byte(program))
	if err != nil {
		return "", err
	}
	c := optimizer.DefaultConfig()
	if conf != "" {
		if err := yaml.UnmarshalWithOptions([]byte(conf), &c, yaml.DisallowUnknownField()); err != nil {
			return "", err
		}
	}
	rp, err := parfor.Optimize(ctx, c, zap.NewNop(), p, parfor.NewVars(vars))
	if err != nil {
		return "", err
	}
	return prog.ExplainProgram(rp), nil
}
