package prog

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Explain renders blocks as indented text, one line per block and
// instruction.
func Explain(blocks []Block) string {
	var b strings.Builder
	explain(&b, blocks, 0)
	return b.String()
}

func explain(b *strings.Builder, blocks []Block, indent int) {
	line := func(indent int, format string, args ...any) {
		b.WriteString(strings.Repeat("  ", indent))
		fmt.Fprintf(b, format, args...)
		b.WriteByte('\n')
	}
	for _, blk := range blocks {
		switch blk := blk.(type) {
		case *Basic:
			line(indent, "BASIC (%d)", blk.ID())
			for _, inst := range blk.Insts {
				line(indent+1, "%s", inst)
			}
		case *If:
			line(indent, "IF (%d)", blk.ID())
			explain(b, blk.Then, indent+1)
			if len(blk.Else) > 0 {
				line(indent, "ELSE (%d)", blk.ID())
				explain(b, blk.Else, indent+1)
			}
		case *While:
			line(indent, "WHILE (%d)", blk.ID())
			explain(b, blk.Body, indent+1)
		case *For:
			line(indent, "FOR (%d)", blk.ID())
			explain(b, blk.Body, indent+1)
		case *ParFor:
			line(indent, "PARFOR (%d) exec=%s k=%d dp=%s rm=%s", blk.ID(), blk.Exec, blk.DOP, blk.Partitioner, blk.ResultMerge)
			explain(b, blk.Body, indent+1)
		}
	}
}

// ExplainProgram is like Explain but renders the function bodies of p,
// in key order, before its main body.
func ExplainProgram(p *Program) string {
	var b strings.Builder
	for _, key := range slices.Sorted(maps.Keys(p.Funcs)) {
		fmt.Fprintf(&b, "FUNCTION %s\n", key)
		explain(&b, p.Funcs[key].Body, 1)
	}
	explain(&b, p.Blocks, 0)
	return b.String()
}
