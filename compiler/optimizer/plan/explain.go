package plan

import (
	"fmt"
	"strings"
)

// Explain renders the tree as indented text.  Costs are included once
// they have been estimated.
func (t *Tree) Explain() string {
	var b strings.Builder
	if len(t.Nodes) > 0 {
		t.explain(&b, t.Root, 0)
	}
	return b.String()
}

func (t *Tree) explain(b *strings.Builder, i, indent int) {
	n := &t.Nodes[i]
	b.WriteString(strings.Repeat("  ", indent))
	fmt.Fprintf(b, "%s", n.Kind)
	if n.ID != 0 {
		fmt.Fprintf(b, " (%d)", n.ID)
	}
	fmt.Fprintf(b, " %s", n.Label)
	switch n.Kind {
	case KindLeaf:
		fmt.Fprintf(b, " exec=%s mem=%s", n.Exec, bytes(n.Mem))
	case KindParFor:
		fmt.Fprintf(b, " exec=%s k=%d N=%d", n.Exec, n.DOP, n.Iterations)
	case KindLoop:
		fmt.Fprintf(b, " N=%d", n.Iterations)
	}
	if n.Cost != nil {
		fmt.Fprintf(b, " [mem=%s time=%.3g]", bytes(n.Cost.Mem), n.Cost.Time)
	}
	b.WriteByte('\n')
	for _, c := range n.Children {
		t.explain(b, c, indent+1)
	}
}

func bytes(v float64) string {
	if v < 0 {
		return "?"
	}
	return fmt.Sprintf("%.0f", v)
}
