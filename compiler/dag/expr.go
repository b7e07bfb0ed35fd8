package dag

type Expr interface {
	exprNode()
}

// Exprs are the operators of a statement's DAG.  Scalars and matrices
// share one value space; scalar-ness is a property of the operands
// established during size inference.

type (
	Literal struct {
		Kind  string  `json:"kind" unpack:""`
		Value float64 `json:"value"`
	}
	Var struct {
		Kind string `json:"kind" unpack:""`
		Name string `json:"name"`
	}
	// Rand generates a Rows x Cols matrix with the given fraction of
	// non-zero cells.
	Rand struct {
		Kind     string  `json:"kind" unpack:""`
		Rows     Expr    `json:"rows"`
		Cols     Expr    `json:"cols"`
		Sparsity float64 `json:"sparsity"`
	}
	Unary struct {
		Kind string `json:"kind" unpack:""`
		Op   string `json:"op"`
		Expr Expr   `json:"expr"`
	}
	Binary struct {
		Kind string `json:"kind" unpack:""`
		Op   string `json:"op"`
		LHS  Expr   `json:"lhs"`
		RHS  Expr   `json:"rhs"`
	}
	MatMul struct {
		Kind string `json:"kind" unpack:""`
		LHS  Expr   `json:"lhs"`
		RHS  Expr   `json:"rhs"`
	}
	// Agg aggregates Expr over all cells ("all"), per row ("row") or
	// per column ("col").
	Agg struct {
		Kind string `json:"kind" unpack:""`
		Op   string `json:"op"`
		Dir  string `json:"dir"`
		Expr Expr   `json:"expr"`
	}
	// Index selects the inclusive, one-based cell range of Expr.  A nil
	// bound selects the full extent of that dimension.
	Index struct {
		Kind  string `json:"kind" unpack:""`
		Expr  Expr   `json:"expr"`
		RowLo Expr   `json:"row_lo"`
		RowHi Expr   `json:"row_hi"`
		ColLo Expr   `json:"col_lo"`
		ColHi Expr   `json:"col_hi"`
	}
	Call struct {
		Kind      string `json:"kind" unpack:""`
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
		Args      []Expr `json:"args"`
	}
)

func (*Literal) exprNode() {}
func (*Var) exprNode()     {}
func (*Rand) exprNode()    {}
func (*Unary) exprNode()   {}
func (*Binary) exprNode()  {}
func (*MatMul) exprNode()  {}
func (*Agg) exprNode()     {}
func (*Index) exprNode()   {}
func (*Call) exprNode()    {}

func NewLiteral(v float64) *Literal {
	return &Literal{Kind: "Literal", Value: v}
}

func NewVar(name string) *Var {
	return &Var{Kind: "Var", Name: name}
}

func NewBinary(op string, lhs, rhs Expr) *Binary {
	return &Binary{Kind: "Binary", Op: op, LHS: lhs, RHS: rhs}
}

func NewUnary(op string, e Expr) *Unary {
	return &Unary{Kind: "Unary", Op: op, Expr: e}
}

func NewMatMul(lhs, rhs Expr) *MatMul {
	return &MatMul{Kind: "MatMul", LHS: lhs, RHS: rhs}
}

func NewRand(rows, cols Expr, sparsity float64) *Rand {
	return &Rand{Kind: "Rand", Rows: rows, Cols: cols, Sparsity: sparsity}
}

func NewAgg(op, dir string, e Expr) *Agg {
	return &Agg{Kind: "Agg", Op: op, Dir: dir, Expr: e}
}

func NewCall(namespace, name string, args ...Expr) *Call {
	return &Call{Kind: "Call", Namespace: namespace, Name: name, Args: args}
}

func NewAssign(lhs string, rhs Expr) *Assign {
	return &Assign{Kind: "Assign", LHS: lhs, RHS: rhs}
}

func (c *Call) Key() string {
	return FuncKey(c.Namespace, c.Name)
}

// Opcode returns the name of the instruction that computes e.
func Opcode(e Expr) string {
	switch e := e.(type) {
	case *Literal:
		return "assignvar"
	case *Var:
		return "cpvar"
	case *Rand:
		return "rand"
	case *Unary:
		return e.Op
	case *Binary:
		return e.Op
	case *MatMul:
		return "ba+*"
	case *Agg:
		switch e.Dir {
		case "row":
			return "uar" + e.Op
		case "col":
			return "uac" + e.Op
		}
		return "ua" + e.Op
	case *Index:
		return "rix"
	case *Call:
		return "fcall"
	}
	return "unknown"
}

// Operands returns the direct inputs of e in evaluation order.  Nil
// index bounds are omitted.
func Operands(e Expr) []Expr {
	var out []Expr
	add := func(exprs ...Expr) {
		for _, e := range exprs {
			if e != nil {
				out = append(out, e)
			}
		}
	}
	switch e := e.(type) {
	case *Rand:
		add(e.Rows, e.Cols)
	case *Unary:
		add(e.Expr)
	case *Binary:
		add(e.LHS, e.RHS)
	case *MatMul:
		add(e.LHS, e.RHS)
	case *Agg:
		add(e.Expr)
	case *Index:
		add(e.Expr, e.RowLo, e.RowHi, e.ColLo, e.ColHi)
	case *Call:
		add(e.Args...)
	}
	return out
}

// WalkExpr calls visit on e and every operator below it in pre-order.
func WalkExpr(e Expr, visit func(Expr)) {
	if e == nil {
		return
	}
	visit(e)
	for _, o := range Operands(e) {
		WalkExpr(o, visit)
	}
}

// LiteralValue returns the value of e if it is a literal.
func LiteralValue(e Expr) (float64, bool) {
	if l, ok := e.(*Literal); ok {
		return l.Value, true
	}
	return 0, false
}
