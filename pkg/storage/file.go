// Package storage opens the inputs of the parfor command: files named by
// path and standard input, named by "-" or "stdio:stdin".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

const Stdin = "stdio:stdin"

type Reader interface {
	io.ReadCloser
	Sizer
}

type Sizer interface {
	Size() (int64, error)
}

// Get opens the input named by path.  Closing a reader of standard input
// leaves standard input open.
func Get(_ context.Context, path string) (Reader, error) {
	switch path {
	case "":
		return nil, errors.New("no file name")
	case "-", Stdin:
		return stdin{}, nil
	}
	r, err := os.Open(path)
	if err != nil {
		return nil, fileErr(path, err)
	}
	return &fileSizer{r}, nil
}

// ReadAll returns the content of the input named by path.
func ReadAll(ctx context.Context, path string) ([]byte, error) {
	r, err := Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func fileErr(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return err
}

type fileSizer struct {
	*os.File
}

var _ Reader = (*fileSizer)(nil)

func (f *fileSizer) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fileErr(f.Name(), err)
	}
	return info.Size(), nil
}

type stdin struct{}

var _ Reader = stdin{}

func (stdin) Read(b []byte) (int, error) {
	return os.Stdin.Read(b)
}

func (stdin) Close() error {
	return nil
}

func (stdin) Size() (int64, error) {
	return 0, errors.ErrUnsupported
}
