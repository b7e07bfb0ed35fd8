package main

import (
	"fmt"
	"os"

	_ "github.com/brimdata/parfor/cmd/parfor/explain"
	_ "github.com/brimdata/parfor/cmd/parfor/optimize"
	"github.com/brimdata/parfor/cmd/parfor/root"
)

func main() {
	if err := root.Parfor.Exec(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
