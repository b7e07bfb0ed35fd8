package exec

// Context is the execution context of a program: the symbol table of the
// scope in which a parfor loop is about to run.
type Context struct {
	vars *Vars
}

func NewContext(vars *Vars) *Context {
	if vars == nil {
		vars = NewVars()
	}
	return &Context{vars: vars}
}

func (c *Context) Vars() *Vars {
	return c.vars
}
