package closure

import "github.com/sharpts/compiler/internal/ast"

// walkStatements walks a statement list in the current scope.
func (a *analyzer) walkStatements(stmts []ast.Statement, depths []int) {
	for _, s := range stmts {
		a.walkStatement(s, depths)
	}
}

func (a *analyzer) walkBlock(stmts []ast.Statement, depths []int) {
	a.pushScope()
	a.walkStatements(stmts, depths)
	a.popScope()
}

func (a *analyzer) walkStatement(s ast.Statement, depths []int) {
	switch n := s.(type) {
	case *ast.VarStatement:
		if n.Value != nil {
			a.walkExpr(n.Value, depths)
		}
		a.declare(n.Name)
	case *ast.ConstStatement:
		if n.Value != nil {
			a.walkExpr(n.Value, depths)
		}
		a.declare(n.Name)
	case *ast.FunctionStatement:
		a.declare(n.Name)
		a.withFunction(n, depths, func(next []int) {
			a.walkStatements(n.Body, next)
		})
	case *ast.ClassStatement:
		a.declare(n.Name)
		a.walkClassMembers(n.Members, depths)
	case *ast.IfStatement:
		a.walkExpr(n.Cond, depths)
		a.walkBlock(n.Then, depths)
		if n.Else != nil {
			a.walkBlock(n.Else, depths)
		}
	case *ast.WhileStatement:
		a.walkExpr(n.Cond, depths)
		a.walkBlock(n.Body, depths)
	case *ast.ForStatement:
		a.pushScope()
		if n.Init != nil {
			a.walkStatement(n.Init, depths)
		}
		if n.Cond != nil {
			a.walkExpr(n.Cond, depths)
		}
		if n.Post != nil {
			a.walkStatement(n.Post, depths)
		}
		a.walkStatements(n.Body, depths)
		a.popScope()
	case *ast.ForOfStatement:
		a.walkExpr(n.Iterable, depths)
		a.pushScope()
		a.declare(n.VarName)
		a.walkStatements(n.Body, depths)
		a.popScope()
	case *ast.ForInStatement:
		a.walkExpr(n.Object, depths)
		a.pushScope()
		a.declare(n.VarName)
		a.walkStatements(n.Body, depths)
		a.popScope()
	case *ast.TryCatchStatement:
		a.walkBlock(n.Try, depths)
		if n.Catch != nil {
			a.pushScope()
			a.declare(n.Catch.Param)
			a.walkStatements(n.Catch.Body, depths)
			a.popScope()
		}
		if n.Finally != nil {
			a.walkBlock(n.Finally, depths)
		}
	case *ast.SwitchStatement:
		a.walkExpr(n.Discriminant, depths)
		for _, c := range n.Cases {
			if c.Test != nil {
				a.walkExpr(c.Test, depths)
			}
			a.walkBlock(c.Body, depths)
		}
	case *ast.ReturnStatement:
		if n.Value != nil {
			a.walkExpr(n.Value, depths)
		}
	case *ast.ThrowStatement:
		a.walkExpr(n.Value, depths)
	case *ast.BlockStatement:
		a.walkBlock(n.Body, depths)
	case *ast.SequenceStatement:
		for _, e := range n.Expressions {
			a.walkExpr(e, depths)
		}
	case *ast.ExpressionStatement:
		a.walkExpr(n.Expr, depths)
	case *ast.BreakStatement, *ast.ContinueStatement:
		// no sub-expressions
	}
}

// walkClassMembers walks the bodies of a class's members. Each member is
// its own FuncLike (wrapped with a dedicated NodeId), descended from the
// enclosing scope exactly like a nested function declaration: methods
// are ordinary closures over the enclosing lexical scope, distinct from
// their `this` binding, which the emitter/resolver handle separately.
func (a *analyzer) walkClassMembers(members []*ast.ClassMember, depths []int) {
	for _, m := range members {
		if m.Kind == ast.MemberField {
			if m.FieldInit != nil {
				a.walkExpr(m.FieldInit, depths)
			}
			continue
		}
		fn := ast.WrapClassMember(a.arena(), 0, m)
		a.withFunction(fn, depths, func(next []int) {
			a.walkStatements(m.Body, next)
		})
	}
}

// arena lazily creates a private arena for synthesising FuncLike wrapper
// identities for class members during analysis. These ids are local to
// this analysis pass and never escape it, so reusing the program's arena
// is unnecessary.
func (a *analyzer) arena() *ast.Arena {
	if a.memberArena == nil {
		a.memberArena = ast.NewArena()
	}
	return a.memberArena
}

func (a *analyzer) walkExpr(e ast.Expression, depths []int) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *ast.Literal, *ast.This, *ast.Super, *ast.ImportMeta, *ast.RegexLiteral:
		if _, ok := e.(*ast.This); ok {
			a.referenceThis(depths)
		}
	case *ast.Variable:
		a.reference(n.Name, depths)
	case *ast.Assign:
		a.walkExpr(n.Target, depths)
		a.walkExpr(n.Value, depths)
	case *ast.CompoundAssign:
		a.walkExpr(n.Target, depths)
		a.walkExpr(n.Value, depths)
	case *ast.LogicalAssign:
		a.walkExpr(n.Target, depths)
		a.walkExpr(n.Value, depths)
	case *ast.Binary:
		a.walkExpr(n.Left, depths)
		a.walkExpr(n.Right, depths)
	case *ast.Logical:
		a.walkExpr(n.Left, depths)
		a.walkExpr(n.Right, depths)
	case *ast.Unary:
		a.walkExpr(n.Operand, depths)
	case *ast.Ternary:
		a.walkExpr(n.Cond, depths)
		a.walkExpr(n.Then, depths)
		a.walkExpr(n.Else, depths)
	case *ast.NullishCoalescing:
		a.walkExpr(n.Left, depths)
		a.walkExpr(n.Right, depths)
	case *ast.Call:
		a.walkExpr(n.Callee, depths)
		for _, arg := range n.Args {
			a.walkExpr(arg, depths)
		}
	case *ast.New:
		a.walkExpr(n.Callee, depths)
		for _, arg := range n.Args {
			a.walkExpr(arg, depths)
		}
	case *ast.MemberExpression:
		a.walkExpr(n.Left, depths)
	case *ast.Identifier:
		// bare member/pattern names are not variable references
	case *ast.IndexExpression:
		a.walkExpr(n.Left, depths)
		a.walkExpr(n.Index, depths)
	case *ast.GetPrivate:
		a.walkExpr(n.Left, depths)
	case *ast.SetPrivate:
		a.walkExpr(n.Left, depths)
		a.walkExpr(n.Value, depths)
	case *ast.CallPrivate:
		a.walkExpr(n.Left, depths)
		for _, arg := range n.Args {
			a.walkExpr(arg, depths)
		}
	case *ast.ArrayLiteral:
		for _, el := range n.Elements {
			a.walkExpr(el, depths)
		}
	case *ast.ObjectLiteral:
		for _, p := range n.Properties {
			if p.Computed != nil {
				a.walkExpr(p.Computed, depths)
			}
			a.walkExpr(p.Value, depths)
		}
	case *ast.TemplateLiteral:
		for _, ex := range n.Exprs {
			a.walkExpr(ex, depths)
		}
	case *ast.TaggedTemplateLiteral:
		a.walkExpr(n.Tag, depths)
		a.walkExpr(n.Template, depths)
	case *ast.ArrowFunction:
		a.withFunction(n, depths, func(next []int) {
			a.walkStatements(n.Body, next)
		})
	case *ast.ClassExpr:
		a.walkClassMembers(n.Members, depths)
	case *ast.Await:
		a.walkExpr(n.Value, depths)
	case *ast.Yield:
		if n.Value != nil {
			a.walkExpr(n.Value, depths)
		}
	case *ast.Spread:
		a.walkExpr(n.Value, depths)
	case *ast.Delete:
		a.walkExpr(n.Target, depths)
	case *ast.TypeAssertion:
		a.walkExpr(n.Value, depths)
	case *ast.NonNullAssertion:
		a.walkExpr(n.Value, depths)
	case *ast.Satisfies:
		a.walkExpr(n.Value, depths)
	case *ast.DynamicImport:
		a.walkExpr(n.Specifier, depths)
	case *ast.PrefixIncrement:
		a.walkExpr(n.Operand, depths)
	case *ast.PostfixIncrement:
		a.walkExpr(n.Operand, depths)
	}
}
