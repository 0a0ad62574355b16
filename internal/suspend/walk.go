package suspend

import "github.com/sharpts/compiler/internal/ast"

func (a *analyzer) walkStatements(stmts []ast.Statement) {
	for _, s := range stmts {
		a.walkStatement(s)
	}
}

func (a *analyzer) walkBlock(stmts []ast.Statement) {
	a.pushScope()
	a.walkStatements(stmts)
	a.popScope()
}

func (a *analyzer) walkStatement(s ast.Statement) {
	switch n := s.(type) {
	case *ast.VarStatement:
		if n.Value != nil {
			a.walkExpr(n.Value)
		}
		a.declare(n.Name)
	case *ast.ConstStatement:
		if n.Value != nil {
			a.walkExpr(n.Value)
		}
		a.declare(n.Name)
	case *ast.FunctionStatement:
		// A nested named function declaration compiles to its own method,
		// independent of this function's suspension/coroutine state; its
		// body is analysed separately by its own Analyze call.
		a.declare(n.Name)
	case *ast.ClassStatement:
		a.declare(n.Name)
		// Methods compile independently; field initialisers run in the
		// constructor's own body, not this function's.
	case *ast.IfStatement:
		a.walkExpr(n.Cond)
		a.walkBlock(n.Then)
		if n.Else != nil {
			a.walkBlock(n.Else)
		}
	case *ast.WhileStatement:
		a.walkExpr(n.Cond)
		a.walkBlock(n.Body)
	case *ast.ForStatement:
		a.pushScope()
		if n.Init != nil {
			a.walkStatement(n.Init)
		}
		if n.Cond != nil {
			a.walkExpr(n.Cond)
		}
		if n.Post != nil {
			a.walkStatement(n.Post)
		}
		a.walkStatements(n.Body)
		a.popScope()
	case *ast.ForOfStatement:
		a.walkExpr(n.Iterable)
		a.pushScope()
		a.declare(n.VarName)
		a.walkStatements(n.Body)
		a.popScope()
	case *ast.ForInStatement:
		a.walkExpr(n.Object)
		a.pushScope()
		a.declare(n.VarName)
		a.walkStatements(n.Body)
		a.popScope()
	case *ast.TryCatchStatement:
		a.walkTryCatch(n)
	case *ast.SwitchStatement:
		a.walkExpr(n.Discriminant)
		for _, c := range n.Cases {
			if c.Test != nil {
				a.walkExpr(c.Test)
			}
			a.walkBlock(c.Body)
		}
	case *ast.ReturnStatement:
		if n.Value != nil {
			a.walkExpr(n.Value)
		}
	case *ast.ThrowStatement:
		a.walkExpr(n.Value)
	case *ast.BlockStatement:
		a.walkBlock(n.Body)
	case *ast.SequenceStatement:
		for _, e := range n.Expressions {
			a.walkExpr(e)
		}
	case *ast.ExpressionStatement:
		a.walkExpr(n.Expr)
	}
}

func (a *analyzer) walkTryCatch(n *ast.TryCatchStatement) {
	tb := &TryBlock{ID: a.nextTryID + 1}
	a.nextTryID++
	a.record.TryBlocks = append(a.record.TryBlocks, tb)
	a.tryStack = append(a.tryStack, tb)

	prevRegion := a.curRegion
	prevTB := a.curTryForRegion
	a.curTryForRegion = tb

	a.curRegion = "try"
	a.walkBlock(n.Try)

	if n.Catch != nil {
		a.curRegion = "catch"
		a.pushScope()
		a.declare(n.Catch.Param)
		a.walkStatements(n.Catch.Body)
		a.popScope()
	}

	a.tryStack = a.tryStack[:len(a.tryStack)-1]

	if n.Finally != nil {
		a.curRegion = "finally"
		a.walkBlock(n.Finally)
	}
	a.curRegion = prevRegion
	a.curTryForRegion = prevTB
}

func (a *analyzer) walkExpr(e ast.Expression) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *ast.Variable:
		a.reference(n.Name)
	case *ast.Assign:
		a.walkExpr(n.Target)
		a.walkExpr(n.Value)
	case *ast.CompoundAssign:
		a.walkExpr(n.Target)
		a.walkExpr(n.Value)
	case *ast.LogicalAssign:
		a.walkExpr(n.Target)
		a.walkExpr(n.Value)
	case *ast.Binary:
		a.walkExpr(n.Left)
		a.walkExpr(n.Right)
	case *ast.Logical:
		a.walkExpr(n.Left)
		a.walkExpr(n.Right)
	case *ast.Unary:
		a.walkExpr(n.Operand)
	case *ast.Ternary:
		a.walkExpr(n.Cond)
		a.walkExpr(n.Then)
		a.walkExpr(n.Else)
	case *ast.NullishCoalescing:
		a.walkExpr(n.Left)
		a.walkExpr(n.Right)
	case *ast.Call:
		a.walkExpr(n.Callee)
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
	case *ast.New:
		a.walkExpr(n.Callee)
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
	case *ast.MemberExpression:
		a.walkExpr(n.Left)
	case *ast.IndexExpression:
		a.walkExpr(n.Left)
		a.walkExpr(n.Index)
	case *ast.GetPrivate:
		a.walkExpr(n.Left)
	case *ast.SetPrivate:
		a.walkExpr(n.Left)
		a.walkExpr(n.Value)
	case *ast.CallPrivate:
		a.walkExpr(n.Left)
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
	case *ast.ArrayLiteral:
		for _, el := range n.Elements {
			a.walkExpr(el)
		}
	case *ast.ObjectLiteral:
		for _, p := range n.Properties {
			if p.Computed != nil {
				a.walkExpr(p.Computed)
			}
			a.walkExpr(p.Value)
		}
	case *ast.TemplateLiteral:
		for _, ex := range n.Exprs {
			a.walkExpr(ex)
		}
	case *ast.TaggedTemplateLiteral:
		a.walkExpr(n.Tag)
		a.walkExpr(n.Template)
	case *ast.ArrowFunction:
		a.walkNestedFunc(n)
	case *ast.ClassExpr:
		// Methods compile independently.
	case *ast.Await:
		a.walkExpr(n.Value)
		a.markSuspension(n, false)
	case *ast.Yield:
		if n.Value != nil {
			a.walkExpr(n.Value)
		}
		a.markSuspension(n, n.Delegate)
	case *ast.Spread:
		a.walkExpr(n.Value)
	case *ast.Delete:
		a.walkExpr(n.Target)
	case *ast.TypeAssertion:
		a.walkExpr(n.Value)
	case *ast.NonNullAssertion:
		a.walkExpr(n.Value)
	case *ast.Satisfies:
		a.walkExpr(n.Value)
	case *ast.DynamicImport:
		a.walkExpr(n.Specifier)
	case *ast.PrefixIncrement:
		a.walkExpr(n.Operand)
	case *ast.PostfixIncrement:
		a.walkExpr(n.Operand)
	}
}

// walkNestedFunc handles a nested arrow function. A non-async arrow
// compiles to its own method and captures enclosing locals through a
// display class, so it contributes nothing to this function's
// suspension/live-variable analysis. An async arrow additionally gets
// its own independent suspension analysis, tracked as a child of the
// arrow currently being analysed (or of the top-level function, if none).
func (a *analyzer) walkNestedFunc(n *ast.ArrowFunction) {
	if !n.IsAsync() {
		return
	}
	level := a.nestingLevel + 1
	info := analyzeNestedArrow(n, a.parentArrowOrSelf(), level)
	a.record.AsyncArrows = append(a.record.AsyncArrows, info)
}

// parentArrowOrSelf returns the FuncLike that should be recorded as the
// parent of a newly discovered nested async arrow: nil when this
// analyzer is walking the top-level function being analysed (a direct
// child arrow has no arrow parent), or this analyzer's own arrow node
// when it is itself a nested arrow.
func (a *analyzer) parentArrowOrSelf() ast.FuncLike {
	if a.nestingLevel == 0 {
		return nil
	}
	return a.selfNode
}
