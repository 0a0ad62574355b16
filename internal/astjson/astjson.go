// Package astjson is the wire format the command-line front end reads
// and writes: a JSON encoding of internal/ast's node tree, tagged with a
// "kind" discriminator per node so a plain Statement/Expression
// interface value round-trips through encoding/json without reflection
// over the AST package itself.
//
// Lexing and parsing TypeScript source is out of scope for this module;
// it consumes an already-built AST, as internal/ast's own package
// comment says. This package is the concrete shape that AST takes on
// disk for the CLI's emit/rewrite/disasm commands, not a general
// serializer: node kinds outside the switch below fail decoding with a
// named error rather than silently dropping data.
package astjson

import (
	"encoding/json"
	"fmt"

	"github.com/sharpts/compiler/internal/ast"
)

// Decode parses a JSON document of the shape Encode produces back into
// a Program. The returned nodes carry a zero NodeId (this package has no
// Arena of its own); callers that need stable identity across an
// analysis pass construct their own Arena-backed wrapper the same way
// internal/driver does for synthesised nodes.
func Decode(data []byte) (*ast.Program, error) {
	var doc struct {
		Statements []json.RawMessage `json:"statements"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("astjson: %w", err)
	}
	stmts, err := decodeStatements(doc.Statements)
	if err != nil {
		return nil, err
	}
	return &ast.Program{Statements: stmts}, nil
}

// Encode serializes a Program to the JSON shape Decode reads.
func Encode(prog *ast.Program) ([]byte, error) {
	stmts := make([]map[string]any, 0, len(prog.Statements))
	for _, s := range prog.Statements {
		enc, err := encodeStatement(s)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, enc)
	}
	return json.Marshal(map[string]any{"statements": stmts})
}

func decodeObj(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("astjson: %w", err)
	}
	return m, nil
}

func kindOf(m map[string]any) string {
	k, _ := m["kind"].(string)
	return k
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func boolean(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func num(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func rawField(m map[string]any, key string) json.RawMessage {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}

func rawList(m map[string]any, key string) []json.RawMessage {
	v, _ := m[key].([]any)
	out := make([]json.RawMessage, len(v))
	for i, e := range v {
		b, _ := json.Marshal(e)
		out[i] = b
	}
	return out
}

// decodeStatements decodes a list of statement-shaped JSON values.
func decodeStatements(raws []json.RawMessage) ([]ast.Statement, error) {
	out := make([]ast.Statement, 0, len(raws))
	for _, raw := range raws {
		s, err := decodeStatement(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeOptStatement(m map[string]any, key string) (ast.Statement, error) {
	raw := rawField(m, key)
	if raw == nil {
		return nil, nil
	}
	return decodeStatement(raw)
}

func decodeStatement(raw json.RawMessage) (ast.Statement, error) {
	m, err := decodeObj(raw)
	if err != nil || m == nil {
		return nil, err
	}
	switch kindOf(m) {
	case "var":
		v, err := decodeOptExpr(m, "value")
		if err != nil {
			return nil, err
		}
		return &ast.VarStatement{Name: str(m, "name"), Type: decodeType(m, "type"), Value: v, IsConst: boolean(m, "const")}, nil
	case "const":
		v, err := decodeOptExpr(m, "value")
		if err != nil {
			return nil, err
		}
		return &ast.ConstStatement{Name: str(m, "name"), Type: decodeType(m, "type"), Value: v}, nil
	case "function":
		params, err := decodeParams(rawList(m, "params"))
		if err != nil {
			return nil, err
		}
		body, err := decodeStatements(rawList(m, "body"))
		if err != nil {
			return nil, err
		}
		return &ast.FunctionStatement{
			Name: str(m, "name"), Params: params, ReturnType: decodeType(m, "returnType"),
			Body: body, Async: boolean(m, "async"), Generator: boolean(m, "generator"),
		}, nil
	case "class":
		members, err := decodeClassMembers(rawList(m, "members"))
		if err != nil {
			return nil, err
		}
		return &ast.ClassStatement{Name: str(m, "name"), SuperClass: str(m, "superClass"), Members: members}, nil
	case "if":
		cond, err := decodeExpr(rawField(m, "cond"))
		if err != nil {
			return nil, err
		}
		then, err := decodeStatements(rawList(m, "then"))
		if err != nil {
			return nil, err
		}
		els, err := decodeStatements(rawList(m, "else"))
		if err != nil {
			return nil, err
		}
		return &ast.IfStatement{Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := decodeExpr(rawField(m, "cond"))
		if err != nil {
			return nil, err
		}
		body, err := decodeStatements(rawList(m, "body"))
		if err != nil {
			return nil, err
		}
		return &ast.WhileStatement{Cond: cond, Body: body}, nil
	case "for":
		init, err := decodeOptStatement(m, "init")
		if err != nil {
			return nil, err
		}
		cond, err := decodeOptExpr(m, "cond")
		if err != nil {
			return nil, err
		}
		post, err := decodeOptStatement(m, "post")
		if err != nil {
			return nil, err
		}
		body, err := decodeStatements(rawList(m, "body"))
		if err != nil {
			return nil, err
		}
		return &ast.ForStatement{Init: init, Cond: cond, Post: post, Body: body}, nil
	case "forOf":
		iter, err := decodeExpr(rawField(m, "iterable"))
		if err != nil {
			return nil, err
		}
		body, err := decodeStatements(rawList(m, "body"))
		if err != nil {
			return nil, err
		}
		return &ast.ForOfStatement{VarName: str(m, "varName"), IsConst: boolean(m, "const"), Iterable: iter, Body: body}, nil
	case "forIn":
		obj, err := decodeExpr(rawField(m, "object"))
		if err != nil {
			return nil, err
		}
		body, err := decodeStatements(rawList(m, "body"))
		if err != nil {
			return nil, err
		}
		return &ast.ForInStatement{VarName: str(m, "varName"), IsConst: boolean(m, "const"), Object: obj, Body: body}, nil
	case "tryCatch":
		try, err := decodeStatements(rawList(m, "try"))
		if err != nil {
			return nil, err
		}
		var catch *ast.CatchClause
		if cm, err := decodeObj(rawField(m, "catch")); err != nil {
			return nil, err
		} else if cm != nil {
			body, err := decodeStatements(rawList(cm, "body"))
			if err != nil {
				return nil, err
			}
			catch = &ast.CatchClause{Param: str(cm, "param"), Body: body}
		}
		fin, err := decodeStatements(rawList(m, "finally"))
		if err != nil {
			return nil, err
		}
		return &ast.TryCatchStatement{Try: try, Catch: catch, Finally: fin}, nil
	case "switch":
		disc, err := decodeExpr(rawField(m, "discriminant"))
		if err != nil {
			return nil, err
		}
		var cases []*ast.SwitchCase
		for _, raw := range rawList(m, "cases") {
			cm, err := decodeObj(raw)
			if err != nil {
				return nil, err
			}
			test, err := decodeOptExpr(cm, "test")
			if err != nil {
				return nil, err
			}
			body, err := decodeStatements(rawList(cm, "body"))
			if err != nil {
				return nil, err
			}
			cases = append(cases, &ast.SwitchCase{Test: test, Body: body})
		}
		return &ast.SwitchStatement{Discriminant: disc, Cases: cases}, nil
	case "return":
		v, err := decodeOptExpr(m, "value")
		if err != nil {
			return nil, err
		}
		return &ast.ReturnStatement{Value: v}, nil
	case "throw":
		v, err := decodeExpr(rawField(m, "value"))
		if err != nil {
			return nil, err
		}
		return &ast.ThrowStatement{Value: v}, nil
	case "break":
		return &ast.BreakStatement{Label: str(m, "label")}, nil
	case "continue":
		return &ast.ContinueStatement{Label: str(m, "label")}, nil
	case "block":
		body, err := decodeStatements(rawList(m, "body"))
		if err != nil {
			return nil, err
		}
		return &ast.BlockStatement{Body: body}, nil
	case "sequence":
		exprs, err := decodeExprs(rawList(m, "expressions"))
		if err != nil {
			return nil, err
		}
		return &ast.SequenceStatement{Expressions: exprs}, nil
	case "expr":
		v, err := decodeExpr(rawField(m, "expr"))
		if err != nil {
			return nil, err
		}
		return &ast.ExpressionStatement{Expr: v}, nil
	default:
		return nil, fmt.Errorf("astjson: unsupported statement kind %q", kindOf(m))
	}
}

func decodeOptExpr(m map[string]any, key string) (ast.Expression, error) {
	if m == nil {
		return nil, nil
	}
	return decodeExpr(rawField(m, key))
}

func decodeExprs(raws []json.RawMessage) ([]ast.Expression, error) {
	out := make([]ast.Expression, 0, len(raws))
	for _, raw := range raws {
		e, err := decodeExpr(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeExpr(raw json.RawMessage) (ast.Expression, error) {
	m, err := decodeObj(raw)
	if err != nil || m == nil {
		return nil, err
	}
	switch kindOf(m) {
	case "literal":
		return decodeLiteral(m)
	case "variable":
		return &ast.Variable{Name: str(m, "name")}, nil
	case "assign":
		return decodeBinaryLike(m, func(t, v ast.Expression) ast.Expression { return &ast.Assign{Target: t, Value: v} }, "target", "value")
	case "compoundAssign":
		t, err := decodeExpr(rawField(m, "target"))
		if err != nil {
			return nil, err
		}
		v, err := decodeExpr(rawField(m, "value"))
		if err != nil {
			return nil, err
		}
		return &ast.CompoundAssign{Target: t, Operator: str(m, "operator"), Value: v}, nil
	case "logicalAssign":
		t, err := decodeExpr(rawField(m, "target"))
		if err != nil {
			return nil, err
		}
		v, err := decodeExpr(rawField(m, "value"))
		if err != nil {
			return nil, err
		}
		return &ast.LogicalAssign{Target: t, Operator: str(m, "operator"), Value: v}, nil
	case "binary":
		l, err := decodeExpr(rawField(m, "left"))
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(rawField(m, "right"))
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Operator: str(m, "operator"), Left: l, Right: r}, nil
	case "logical":
		l, err := decodeExpr(rawField(m, "left"))
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(rawField(m, "right"))
		if err != nil {
			return nil, err
		}
		return &ast.Logical{Operator: str(m, "operator"), Left: l, Right: r}, nil
	case "unary":
		op, err := decodeExpr(rawField(m, "operand"))
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Operator: str(m, "operator"), Operand: op}, nil
	case "ternary":
		cond, err := decodeExpr(rawField(m, "cond"))
		if err != nil {
			return nil, err
		}
		then, err := decodeExpr(rawField(m, "then"))
		if err != nil {
			return nil, err
		}
		els, err := decodeExpr(rawField(m, "else"))
		if err != nil {
			return nil, err
		}
		return &ast.Ternary{Cond: cond, Then: then, Else: els}, nil
	case "nullish":
		l, err := decodeExpr(rawField(m, "left"))
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(rawField(m, "right"))
		if err != nil {
			return nil, err
		}
		return &ast.NullishCoalescing{Left: l, Right: r}, nil
	case "call":
		callee, err := decodeExpr(rawField(m, "callee"))
		if err != nil {
			return nil, err
		}
		args, err := decodeExprs(rawList(m, "args"))
		if err != nil {
			return nil, err
		}
		return &ast.Call{Callee: callee, Args: args, IsOptional: boolean(m, "optional")}, nil
	case "new":
		callee, err := decodeExpr(rawField(m, "callee"))
		if err != nil {
			return nil, err
		}
		args, err := decodeExprs(rawList(m, "args"))
		if err != nil {
			return nil, err
		}
		return &ast.New{Callee: callee, Args: args}, nil
	case "member":
		left, err := decodeExpr(rawField(m, "left"))
		if err != nil {
			return nil, err
		}
		return &ast.MemberExpression{Left: left, Member: &ast.Identifier{Value: str(m, "member")}, IsOptional: boolean(m, "optional")}, nil
	case "index":
		left, err := decodeExpr(rawField(m, "left"))
		if err != nil {
			return nil, err
		}
		idx, err := decodeExpr(rawField(m, "index"))
		if err != nil {
			return nil, err
		}
		return &ast.IndexExpression{Left: left, Index: idx, IsOptional: boolean(m, "optional")}, nil
	case "getPrivate":
		left, err := decodeExpr(rawField(m, "left"))
		if err != nil {
			return nil, err
		}
		return &ast.GetPrivate{Left: left, Name: str(m, "name")}, nil
	case "setPrivate":
		left, err := decodeExpr(rawField(m, "left"))
		if err != nil {
			return nil, err
		}
		v, err := decodeExpr(rawField(m, "value"))
		if err != nil {
			return nil, err
		}
		return &ast.SetPrivate{Left: left, Name: str(m, "name"), Value: v}, nil
	case "callPrivate":
		left, err := decodeExpr(rawField(m, "left"))
		if err != nil {
			return nil, err
		}
		args, err := decodeExprs(rawList(m, "args"))
		if err != nil {
			return nil, err
		}
		return &ast.CallPrivate{Left: left, Name: str(m, "name"), Args: args}, nil
	case "array":
		elems, err := decodeExprs(rawList(m, "elements"))
		if err != nil {
			return nil, err
		}
		return &ast.ArrayLiteral{Elements: elems}, nil
	case "object":
		var props []*ast.ObjectProperty
		for _, raw := range rawList(m, "properties") {
			pm, err := decodeObj(raw)
			if err != nil {
				return nil, err
			}
			computed, err := decodeOptExpr(pm, "computed")
			if err != nil {
				return nil, err
			}
			val, err := decodeOptExpr(pm, "value")
			if err != nil {
				return nil, err
			}
			props = append(props, &ast.ObjectProperty{Key: str(pm, "key"), Computed: computed, Value: val, IsSpread: boolean(pm, "spread")})
		}
		return &ast.ObjectLiteral{Properties: props}, nil
	case "template":
		exprs, err := decodeExprs(rawList(m, "exprs"))
		if err != nil {
			return nil, err
		}
		quasis := make([]string, len(rawList(m, "quasis")))
		for i, raw := range rawList(m, "quasis") {
			var s string
			_ = json.Unmarshal(raw, &s)
			quasis[i] = s
		}
		return &ast.TemplateLiteral{Quasis: quasis, Exprs: exprs}, nil
	case "taggedTemplate":
		tag, err := decodeExpr(rawField(m, "tag"))
		if err != nil {
			return nil, err
		}
		tmpl, err := decodeExpr(rawField(m, "template"))
		if err != nil {
			return nil, err
		}
		t, _ := tmpl.(*ast.TemplateLiteral)
		return &ast.TaggedTemplateLiteral{Tag: tag, Template: t}, nil
	case "arrow":
		params, err := decodeParams(rawList(m, "params"))
		if err != nil {
			return nil, err
		}
		body, err := decodeStatements(rawList(m, "body"))
		if err != nil {
			return nil, err
		}
		return &ast.ArrowFunction{
			Params: params, ReturnType: decodeType(m, "returnType"), Body: body,
			Async: boolean(m, "async"), Generator: boolean(m, "generator"),
			IsFunctionExpr: boolean(m, "functionExpr"), Name: str(m, "name"),
		}, nil
	case "classExpr":
		members, err := decodeClassMembers(rawList(m, "members"))
		if err != nil {
			return nil, err
		}
		return &ast.ClassExpr{Name: str(m, "name"), SuperClass: str(m, "superClass"), Members: members}, nil
	case "this":
		return &ast.This{}, nil
	case "super":
		return &ast.Super{}, nil
	case "await":
		v, err := decodeExpr(rawField(m, "value"))
		if err != nil {
			return nil, err
		}
		return &ast.Await{Value: v}, nil
	case "yield":
		v, err := decodeOptExpr(m, "value")
		if err != nil {
			return nil, err
		}
		return &ast.Yield{Value: v, Delegate: boolean(m, "delegate")}, nil
	case "spread":
		v, err := decodeExpr(rawField(m, "value"))
		if err != nil {
			return nil, err
		}
		return &ast.Spread{Value: v}, nil
	case "delete":
		t, err := decodeExpr(rawField(m, "target"))
		if err != nil {
			return nil, err
		}
		return &ast.Delete{Target: t}, nil
	case "typeAssertion":
		v, err := decodeExpr(rawField(m, "value"))
		if err != nil {
			return nil, err
		}
		return &ast.TypeAssertion{Value: v, Type: decodeType(m, "type")}, nil
	case "nonNullAssertion":
		v, err := decodeExpr(rawField(m, "value"))
		if err != nil {
			return nil, err
		}
		return &ast.NonNullAssertion{Value: v}, nil
	case "satisfies":
		v, err := decodeExpr(rawField(m, "value"))
		if err != nil {
			return nil, err
		}
		return &ast.Satisfies{Value: v, Type: decodeType(m, "type")}, nil
	case "dynamicImport":
		v, err := decodeExpr(rawField(m, "specifier"))
		if err != nil {
			return nil, err
		}
		return &ast.DynamicImport{Specifier: v}, nil
	case "importMeta":
		return &ast.ImportMeta{}, nil
	case "preIncrement":
		op, err := decodeExpr(rawField(m, "operand"))
		if err != nil {
			return nil, err
		}
		return &ast.PrefixIncrement{Operand: op, Decrement: boolean(m, "decrement")}, nil
	case "postIncrement":
		op, err := decodeExpr(rawField(m, "operand"))
		if err != nil {
			return nil, err
		}
		return &ast.PostfixIncrement{Operand: op, Decrement: boolean(m, "decrement")}, nil
	case "regex":
		return &ast.RegexLiteral{Pattern: str(m, "pattern"), Flags: str(m, "flags")}, nil
	default:
		return nil, fmt.Errorf("astjson: unsupported expression kind %q", kindOf(m))
	}
}

func decodeBinaryLike(m map[string]any, build func(a, b ast.Expression) ast.Expression, keyA, keyB string) (ast.Expression, error) {
	a, err := decodeExpr(rawField(m, keyA))
	if err != nil {
		return nil, err
	}
	b, err := decodeExpr(rawField(m, keyB))
	if err != nil {
		return nil, err
	}
	return build(a, b), nil
}

func decodeLiteral(m map[string]any) (ast.Expression, error) {
	switch str(m, "litKind") {
	case "number":
		return &ast.Literal{Kind: ast.LitNumber, Value: num(m, "value")}, nil
	case "string":
		return &ast.Literal{Kind: ast.LitString, Value: str(m, "value")}, nil
	case "boolean":
		return &ast.Literal{Kind: ast.LitBoolean, Value: boolean(m, "value")}, nil
	case "null":
		return &ast.Literal{Kind: ast.LitNull}, nil
	case "undefined":
		return &ast.Literal{Kind: ast.LitUndefined}, nil
	default:
		return nil, fmt.Errorf("astjson: unsupported literal kind %q", str(m, "litKind"))
	}
}

// decodeType only supports named type annotations (`string`, `number`,
// a class name, and its generic-argument form) — the vast majority of
// annotations the emitter's type mapping actually distinguishes; every
// other annotation shape decodes as nil, which internal/types.Map
// already treats as Unknown/boxed, the same fallback an omitted
// annotation gets.
func decodeType(m map[string]any, key string) ast.Type {
	return decodeTypeRaw(rawField(m, key))
}

func decodeTypeRaw(raw json.RawMessage) ast.Type {
	if raw == nil {
		return nil
	}
	tm, err := decodeObj(raw)
	if err != nil || tm == nil || kindOf(tm) != "named" {
		return nil
	}
	var args []ast.Type
	for _, araw := range rawList(tm, "args") {
		if t := decodeTypeRaw(araw); t != nil {
			args = append(args, t)
		}
	}
	return &ast.NamedType{Name: &ast.Identifier{Value: str(tm, "name")}, Args: args}
}

func decodeParams(raws []json.RawMessage) ([]*ast.Param, error) {
	out := make([]*ast.Param, 0, len(raws))
	for _, raw := range raws {
		pm, err := decodeObj(raw)
		if err != nil {
			return nil, err
		}
		if pm == nil {
			continue
		}
		def, err := decodeOptExpr(pm, "default")
		if err != nil {
			return nil, err
		}
		out = append(out, &ast.Param{
			Name: str(pm, "name"), Type: decodeType(pm, "type"), Default: def,
			IsRest: boolean(pm, "rest"), IsOptional: boolean(pm, "optional"),
		})
	}
	return out, nil
}

var classMemberKinds = map[string]ast.ClassMemberKind{
	"method": ast.MemberMethod, "getter": ast.MemberGetter, "setter": ast.MemberSetter,
	"field": ast.MemberField, "constructor": ast.MemberConstructor,
}

func decodeClassMembers(raws []json.RawMessage) ([]*ast.ClassMember, error) {
	out := make([]*ast.ClassMember, 0, len(raws))
	for _, raw := range raws {
		mm, err := decodeObj(raw)
		if err != nil {
			return nil, err
		}
		if mm == nil {
			continue
		}
		kind, ok := classMemberKinds[str(mm, "memberKind")]
		if !ok {
			return nil, fmt.Errorf("astjson: unsupported class member kind %q", str(mm, "memberKind"))
		}
		params, err := decodeParams(rawList(mm, "params"))
		if err != nil {
			return nil, err
		}
		body, err := decodeStatements(rawList(mm, "body"))
		if err != nil {
			return nil, err
		}
		fieldInit, err := decodeOptExpr(mm, "fieldInit")
		if err != nil {
			return nil, err
		}
		out = append(out, &ast.ClassMember{
			Name: str(mm, "name"), Kind: kind, Params: params, ReturnType: decodeType(mm, "returnType"),
			Body: body, Async: boolean(mm, "async"), Generator: boolean(mm, "generator"),
			Static: boolean(mm, "static"), Private: boolean(mm, "private"),
			FieldInit: fieldInit, Synchronized: boolean(mm, "synchronized"),
		})
	}
	return out, nil
}
