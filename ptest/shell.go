package ptest

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RunShell runs script with bash in dir, with the directories of path
// ahead of the inherited PATH, and returns its stdout and stderr.
func RunShell(ctx context.Context, dir, path, script string, stdin io.Reader, env []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "bash", "-e", "-o", "pipefail", "-c", script)
	cmd.Dir = dir
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	dirs := filepath.SplitList(path)
	for k, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			dirs[k] = abs
		}
	}
	searchPath := strings.Join(append(dirs, os.Getenv("PATH")), string(filepath.ListSeparator))
	cmd.Env = append(os.Environ(), "PATH="+searchPath)
	cmd.Env = append(cmd.Env, env...)
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
