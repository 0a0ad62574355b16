package astjson

import (
	"fmt"

	"github.com/sharpts/compiler/internal/ast"
)

func encodeStatements(stmts []ast.Statement) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(stmts))
	for _, s := range stmts {
		m, err := encodeStatement(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func encodeOptStatement(s ast.Statement) (map[string]any, error) {
	if s == nil {
		return nil, nil
	}
	return encodeStatement(s)
}

func encodeStatement(s ast.Statement) (map[string]any, error) {
	switch n := s.(type) {
	case *ast.VarStatement:
		v, err := encodeOptExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "var", "name": n.Name, "type": encodeType(n.Type), "value": v, "const": n.IsConst}, nil
	case *ast.ConstStatement:
		v, err := encodeOptExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "const", "name": n.Name, "type": encodeType(n.Type), "value": v}, nil
	case *ast.FunctionStatement:
		params, err := encodeParams(n.Params)
		if err != nil {
			return nil, err
		}
		body, err := encodeStatements(n.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"kind": "function", "name": n.Name, "params": params, "returnType": encodeType(n.ReturnType),
			"body": body, "async": n.Async, "generator": n.Generator,
		}, nil
	case *ast.ClassStatement:
		members, err := encodeClassMembers(n.Members)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "class", "name": n.Name, "superClass": n.SuperClass, "members": members}, nil
	case *ast.IfStatement:
		cond, err := encodeExpression(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := encodeStatements(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := encodeStatements(n.Else)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "if", "cond": cond, "then": then, "else": els}, nil
	case *ast.WhileStatement:
		cond, err := encodeExpression(n.Cond)
		if err != nil {
			return nil, err
		}
		body, err := encodeStatements(n.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "while", "cond": cond, "body": body}, nil
	case *ast.ForStatement:
		init, err := encodeOptStatement(n.Init)
		if err != nil {
			return nil, err
		}
		cond, err := encodeOptExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		post, err := encodeOptStatement(n.Post)
		if err != nil {
			return nil, err
		}
		body, err := encodeStatements(n.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "for", "init": init, "cond": cond, "post": post, "body": body}, nil
	case *ast.ForOfStatement:
		iter, err := encodeExpression(n.Iterable)
		if err != nil {
			return nil, err
		}
		body, err := encodeStatements(n.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "forOf", "varName": n.VarName, "const": n.IsConst, "iterable": iter, "body": body}, nil
	case *ast.ForInStatement:
		obj, err := encodeExpression(n.Object)
		if err != nil {
			return nil, err
		}
		body, err := encodeStatements(n.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "forIn", "varName": n.VarName, "const": n.IsConst, "object": obj, "body": body}, nil
	case *ast.TryCatchStatement:
		try, err := encodeStatements(n.Try)
		if err != nil {
			return nil, err
		}
		var catch map[string]any
		if n.Catch != nil {
			body, err := encodeStatements(n.Catch.Body)
			if err != nil {
				return nil, err
			}
			catch = map[string]any{"param": n.Catch.Param, "body": body}
		}
		fin, err := encodeStatements(n.Finally)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "tryCatch", "try": try, "catch": catch, "finally": fin}, nil
	case *ast.SwitchStatement:
		disc, err := encodeExpression(n.Discriminant)
		if err != nil {
			return nil, err
		}
		cases := make([]map[string]any, 0, len(n.Cases))
		for _, c := range n.Cases {
			test, err := encodeOptExpr(c.Test)
			if err != nil {
				return nil, err
			}
			body, err := encodeStatements(c.Body)
			if err != nil {
				return nil, err
			}
			cases = append(cases, map[string]any{"test": test, "body": body})
		}
		return map[string]any{"kind": "switch", "discriminant": disc, "cases": cases}, nil
	case *ast.ReturnStatement:
		v, err := encodeOptExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "return", "value": v}, nil
	case *ast.ThrowStatement:
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "throw", "value": v}, nil
	case *ast.BreakStatement:
		return map[string]any{"kind": "break", "label": n.Label}, nil
	case *ast.ContinueStatement:
		return map[string]any{"kind": "continue", "label": n.Label}, nil
	case *ast.BlockStatement:
		body, err := encodeStatements(n.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "block", "body": body}, nil
	case *ast.SequenceStatement:
		exprs, err := encodeExpressions(n.Expressions)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "sequence", "expressions": exprs}, nil
	case *ast.ExpressionStatement:
		v, err := encodeExpression(n.Expr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "expr", "expr": v}, nil
	default:
		return nil, fmt.Errorf("astjson: unsupported statement node %T", s)
	}
}

func encodeExpressions(exprs []ast.Expression) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(exprs))
	for _, e := range exprs {
		m, err := encodeExpression(e)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func encodeOptExpr(e ast.Expression) (map[string]any, error) {
	if e == nil {
		return nil, nil
	}
	return encodeExpression(e)
}

func encodeExpression(e ast.Expression) (map[string]any, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return encodeLiteral(n), nil
	case *ast.Variable:
		return map[string]any{"kind": "variable", "name": n.Name}, nil
	case *ast.Assign:
		t, err := encodeExpression(n.Target)
		if err != nil {
			return nil, err
		}
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "assign", "target": t, "value": v}, nil
	case *ast.CompoundAssign:
		t, err := encodeExpression(n.Target)
		if err != nil {
			return nil, err
		}
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "compoundAssign", "target": t, "operator": n.Operator, "value": v}, nil
	case *ast.LogicalAssign:
		t, err := encodeExpression(n.Target)
		if err != nil {
			return nil, err
		}
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "logicalAssign", "target": t, "operator": n.Operator, "value": v}, nil
	case *ast.Binary:
		l, err := encodeExpression(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := encodeExpression(n.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "binary", "operator": n.Operator, "left": l, "right": r}, nil
	case *ast.Logical:
		l, err := encodeExpression(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := encodeExpression(n.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "logical", "operator": n.Operator, "left": l, "right": r}, nil
	case *ast.Unary:
		op, err := encodeExpression(n.Operand)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "unary", "operator": n.Operator, "operand": op}, nil
	case *ast.Ternary:
		cond, err := encodeExpression(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := encodeExpression(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := encodeExpression(n.Else)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "ternary", "cond": cond, "then": then, "else": els}, nil
	case *ast.NullishCoalescing:
		l, err := encodeExpression(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := encodeExpression(n.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "nullish", "left": l, "right": r}, nil
	case *ast.Call:
		callee, err := encodeExpression(n.Callee)
		if err != nil {
			return nil, err
		}
		args, err := encodeExpressions(n.Args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "call", "callee": callee, "args": args, "optional": n.IsOptional}, nil
	case *ast.New:
		callee, err := encodeExpression(n.Callee)
		if err != nil {
			return nil, err
		}
		args, err := encodeExpressions(n.Args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "new", "callee": callee, "args": args}, nil
	case *ast.MemberExpression:
		left, err := encodeExpression(n.Left)
		if err != nil {
			return nil, err
		}
		name := ""
		if n.Member != nil {
			name = n.Member.Value
		}
		return map[string]any{"kind": "member", "left": left, "member": name, "optional": n.IsOptional}, nil
	case *ast.IndexExpression:
		left, err := encodeExpression(n.Left)
		if err != nil {
			return nil, err
		}
		idx, err := encodeExpression(n.Index)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "index", "left": left, "index": idx, "optional": n.IsOptional}, nil
	case *ast.GetPrivate:
		left, err := encodeExpression(n.Left)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "getPrivate", "left": left, "name": n.Name}, nil
	case *ast.SetPrivate:
		left, err := encodeExpression(n.Left)
		if err != nil {
			return nil, err
		}
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "setPrivate", "left": left, "name": n.Name, "value": v}, nil
	case *ast.CallPrivate:
		left, err := encodeExpression(n.Left)
		if err != nil {
			return nil, err
		}
		args, err := encodeExpressions(n.Args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "callPrivate", "left": left, "name": n.Name, "args": args}, nil
	case *ast.ArrayLiteral:
		elems, err := encodeExpressions(n.Elements)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "array", "elements": elems}, nil
	case *ast.ObjectLiteral:
		props := make([]map[string]any, 0, len(n.Properties))
		for _, p := range n.Properties {
			computed, err := encodeOptExpr(p.Computed)
			if err != nil {
				return nil, err
			}
			val, err := encodeOptExpr(p.Value)
			if err != nil {
				return nil, err
			}
			props = append(props, map[string]any{"key": p.Key, "computed": computed, "value": val, "spread": p.IsSpread})
		}
		return map[string]any{"kind": "object", "properties": props}, nil
	case *ast.TemplateLiteral:
		exprs, err := encodeExpressions(n.Exprs)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "template", "quasis": n.Quasis, "exprs": exprs}, nil
	case *ast.TaggedTemplateLiteral:
		tag, err := encodeExpression(n.Tag)
		if err != nil {
			return nil, err
		}
		var tmpl map[string]any
		if n.Template != nil {
			tmpl, err = encodeExpression(n.Template)
			if err != nil {
				return nil, err
			}
		}
		return map[string]any{"kind": "taggedTemplate", "tag": tag, "template": tmpl}, nil
	case *ast.ArrowFunction:
		params, err := encodeParams(n.Params)
		if err != nil {
			return nil, err
		}
		body, err := encodeStatements(n.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"kind": "arrow", "params": params, "returnType": encodeType(n.ReturnType), "body": body,
			"async": n.Async, "generator": n.Generator, "functionExpr": n.IsFunctionExpr, "name": n.Name,
		}, nil
	case *ast.ClassExpr:
		members, err := encodeClassMembers(n.Members)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "classExpr", "name": n.Name, "superClass": n.SuperClass, "members": members}, nil
	case *ast.This:
		return map[string]any{"kind": "this"}, nil
	case *ast.Super:
		return map[string]any{"kind": "super"}, nil
	case *ast.Await:
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "await", "value": v}, nil
	case *ast.Yield:
		v, err := encodeOptExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "yield", "value": v, "delegate": n.Delegate}, nil
	case *ast.Spread:
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "spread", "value": v}, nil
	case *ast.Delete:
		t, err := encodeExpression(n.Target)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "delete", "target": t}, nil
	case *ast.TypeAssertion:
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "typeAssertion", "value": v, "type": encodeType(n.Type)}, nil
	case *ast.NonNullAssertion:
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "nonNullAssertion", "value": v}, nil
	case *ast.Satisfies:
		v, err := encodeExpression(n.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "satisfies", "value": v, "type": encodeType(n.Type)}, nil
	case *ast.DynamicImport:
		v, err := encodeExpression(n.Specifier)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "dynamicImport", "specifier": v}, nil
	case *ast.ImportMeta:
		return map[string]any{"kind": "importMeta"}, nil
	case *ast.PrefixIncrement:
		op, err := encodeExpression(n.Operand)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "preIncrement", "operand": op, "decrement": n.Decrement}, nil
	case *ast.PostfixIncrement:
		op, err := encodeExpression(n.Operand)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "postIncrement", "operand": op, "decrement": n.Decrement}, nil
	case *ast.RegexLiteral:
		return map[string]any{"kind": "regex", "pattern": n.Pattern, "flags": n.Flags}, nil
	default:
		return nil, fmt.Errorf("astjson: unsupported expression node %T", e)
	}
}

func encodeLiteral(n *ast.Literal) map[string]any {
	switch n.Kind {
	case ast.LitNumber:
		return map[string]any{"kind": "literal", "litKind": "number", "value": n.Value}
	case ast.LitString:
		return map[string]any{"kind": "literal", "litKind": "string", "value": n.Value}
	case ast.LitBoolean:
		return map[string]any{"kind": "literal", "litKind": "boolean", "value": n.Value}
	case ast.LitNull:
		return map[string]any{"kind": "literal", "litKind": "null"}
	default:
		return map[string]any{"kind": "literal", "litKind": "undefined"}
	}
}

// encodeType only round-trips NamedType; every other annotation shape is
// dropped to nil on encode, matching decodeType's symmetric narrowing.
func encodeType(t ast.Type) map[string]any {
	nt, ok := t.(*ast.NamedType)
	if !ok || nt == nil {
		return nil
	}
	name := ""
	if nt.Name != nil {
		name = nt.Name.Value
	}
	args := make([]map[string]any, 0, len(nt.Args))
	for _, a := range nt.Args {
		if enc := encodeType(a); enc != nil {
			args = append(args, enc)
		}
	}
	return map[string]any{"kind": "named", "name": name, "args": args}
}

func encodeParams(params []*ast.Param) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(params))
	for _, p := range params {
		def, err := encodeOptExpr(p.Default)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"name": p.Name, "type": encodeType(p.Type), "default": def,
			"rest": p.IsRest, "optional": p.IsOptional,
		})
	}
	return out, nil
}

var classMemberKindNames = map[ast.ClassMemberKind]string{
	ast.MemberMethod: "method", ast.MemberGetter: "getter", ast.MemberSetter: "setter",
	ast.MemberField: "field", ast.MemberConstructor: "constructor",
}

func encodeClassMembers(members []*ast.ClassMember) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(members))
	for _, mbr := range members {
		params, err := encodeParams(mbr.Params)
		if err != nil {
			return nil, err
		}
		body, err := encodeStatements(mbr.Body)
		if err != nil {
			return nil, err
		}
		fieldInit, err := encodeOptExpr(mbr.FieldInit)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"name": mbr.Name, "memberKind": classMemberKindNames[mbr.Kind], "params": params,
			"returnType": encodeType(mbr.ReturnType), "body": body, "async": mbr.Async, "generator": mbr.Generator,
			"static": mbr.Static, "private": mbr.Private, "fieldInit": fieldInit, "synchronized": mbr.Synchronized,
		})
	}
	return out, nil
}
