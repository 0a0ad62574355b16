package driver

import "github.com/sharpts/compiler/internal/ast"

// bodyScan collects one function's own locally-declared variable names
// and its directly-nested arrow functions/class expressions. It does not
// recurse into a discovered arrow's or class expression's own body —
// those get their own bodyScan once the worklist in Compile dequeues
// them — so nesting of arbitrary depth is handled by repetition of a
// shallow pass, not by one deep recursive walk.
//
// A named function or class declared inside another function's body is
// not discovered here (only arrow functions and class expressions are):
// a reference to it will surface as an unresolved-identifier error at
// emission time rather than silently miscompiling.
type bodyScan struct {
	locals  []string
	arrows  []*ast.ArrowFunction
	classes []*ast.ClassExpr
}

func scanStatements(stmts []ast.Statement, out *bodyScan) {
	for _, s := range stmts {
		scanStatement(s, out)
	}
}

func scanStatement(s ast.Statement, out *bodyScan) {
	switch n := s.(type) {
	case *ast.VarStatement:
		out.locals = append(out.locals, n.Name)
		scanExpr(n.Value, out)
	case *ast.ConstStatement:
		out.locals = append(out.locals, n.Name)
		scanExpr(n.Value, out)
	case *ast.IfStatement:
		scanExpr(n.Cond, out)
		scanStatements(n.Then, out)
		scanStatements(n.Else, out)
	case *ast.WhileStatement:
		scanExpr(n.Cond, out)
		scanStatements(n.Body, out)
	case *ast.ForStatement:
		if n.Init != nil {
			scanStatement(n.Init, out)
		}
		scanExpr(n.Cond, out)
		if n.Post != nil {
			scanStatement(n.Post, out)
		}
		scanStatements(n.Body, out)
	case *ast.ForOfStatement:
		out.locals = append(out.locals, n.VarName)
		scanExpr(n.Iterable, out)
		scanStatements(n.Body, out)
	case *ast.ForInStatement:
		out.locals = append(out.locals, n.VarName)
		scanExpr(n.Object, out)
		scanStatements(n.Body, out)
	case *ast.TryCatchStatement:
		scanStatements(n.Try, out)
		if n.Catch != nil {
			if n.Catch.Param != "" {
				out.locals = append(out.locals, n.Catch.Param)
			}
			scanStatements(n.Catch.Body, out)
		}
		scanStatements(n.Finally, out)
	case *ast.SwitchStatement:
		scanExpr(n.Discriminant, out)
		for _, c := range n.Cases {
			scanExpr(c.Test, out)
			scanStatements(c.Body, out)
		}
	case *ast.ReturnStatement:
		scanExpr(n.Value, out)
	case *ast.ThrowStatement:
		scanExpr(n.Value, out)
	case *ast.BlockStatement:
		scanStatements(n.Body, out)
	case *ast.SequenceStatement:
		for _, e := range n.Expressions {
			scanExpr(e, out)
		}
	case *ast.ExpressionStatement:
		scanExpr(n.Expr, out)
	}
	// BreakStatement/ContinueStatement/FunctionStatement/ClassStatement
	// carry nothing this scan cares about.
}

func scanExpr(e ast.Expression, out *bodyScan) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *ast.ArrowFunction:
		out.arrows = append(out.arrows, n)
	case *ast.ClassExpr:
		out.classes = append(out.classes, n)
	case *ast.Assign:
		scanExpr(n.Target, out)
		scanExpr(n.Value, out)
	case *ast.CompoundAssign:
		scanExpr(n.Target, out)
		scanExpr(n.Value, out)
	case *ast.LogicalAssign:
		scanExpr(n.Target, out)
		scanExpr(n.Value, out)
	case *ast.Binary:
		scanExpr(n.Left, out)
		scanExpr(n.Right, out)
	case *ast.Logical:
		scanExpr(n.Left, out)
		scanExpr(n.Right, out)
	case *ast.Unary:
		scanExpr(n.Operand, out)
	case *ast.Ternary:
		scanExpr(n.Cond, out)
		scanExpr(n.Then, out)
		scanExpr(n.Else, out)
	case *ast.NullishCoalescing:
		scanExpr(n.Left, out)
		scanExpr(n.Right, out)
	case *ast.Call:
		scanExpr(n.Callee, out)
		for _, a := range n.Args {
			scanExpr(a, out)
		}
	case *ast.New:
		scanExpr(n.Callee, out)
		for _, a := range n.Args {
			scanExpr(a, out)
		}
	case *ast.MemberExpression:
		scanExpr(n.Left, out)
	case *ast.IndexExpression:
		scanExpr(n.Left, out)
		scanExpr(n.Index, out)
	case *ast.GetPrivate:
		scanExpr(n.Left, out)
	case *ast.SetPrivate:
		scanExpr(n.Left, out)
		scanExpr(n.Value, out)
	case *ast.CallPrivate:
		scanExpr(n.Left, out)
		for _, a := range n.Args {
			scanExpr(a, out)
		}
	case *ast.ArrayLiteral:
		for _, el := range n.Elements {
			scanExpr(el, out)
		}
	case *ast.ObjectLiteral:
		for _, p := range n.Properties {
			scanExpr(p.Computed, out)
			scanExpr(p.Value, out)
		}
	case *ast.TemplateLiteral:
		for _, ex := range n.Exprs {
			scanExpr(ex, out)
		}
	case *ast.TaggedTemplateLiteral:
		scanExpr(n.Tag, out)
		scanExpr(n.Template, out)
	case *ast.Spread:
		scanExpr(n.Value, out)
	case *ast.Delete:
		scanExpr(n.Target, out)
	case *ast.TypeAssertion:
		scanExpr(n.Value, out)
	case *ast.NonNullAssertion:
		scanExpr(n.Value, out)
	case *ast.Satisfies:
		scanExpr(n.Value, out)
	case *ast.DynamicImport:
		scanExpr(n.Specifier, out)
	case *ast.PrefixIncrement:
		scanExpr(n.Operand, out)
	case *ast.PostfixIncrement:
		scanExpr(n.Operand, out)
	case *ast.Await:
		scanExpr(n.Value, out)
	case *ast.Yield:
		scanExpr(n.Value, out)
	}
	// Literal/Variable/Identifier/This/Super/ImportMeta/RegexLiteral are
	// leaves; nothing to descend into.
}
