package astjson

import (
	"testing"

	"github.com/sharpts/compiler/internal/ast"
)

// sampleProgram builds a small program exercising a closure counter, a
// class with a method, a for-of loop and an await expression — enough
// node variety to catch a decode/encode field mismatch.
func sampleProgram() *ast.Program {
	makeCounter := &ast.FunctionStatement{
		Name: "makeCounter",
		Body: []ast.Statement{
			&ast.VarStatement{Name: "count", Value: &ast.Literal{Kind: ast.LitNumber, Value: float64(0)}},
			&ast.ReturnStatement{
				Value: &ast.ArrowFunction{
					Body: []ast.Statement{
						&ast.ExpressionStatement{
							Expr: &ast.CompoundAssign{
								Target:   &ast.Variable{Name: "count"},
								Operator: "+=",
								Value:    &ast.Literal{Kind: ast.LitNumber, Value: float64(1)},
							},
						},
						&ast.ReturnStatement{Value: &ast.Variable{Name: "count"}},
					},
				},
			},
		},
	}

	greeter := &ast.ClassStatement{
		Name: "Greeter",
		Members: []*ast.ClassMember{
			{
				Name: "greet",
				Kind: ast.MemberMethod,
				Params: []*ast.Param{
					{Name: "name", Type: &ast.NamedType{Name: &ast.Identifier{Value: "string"}}},
				},
				Body: []ast.Statement{
					&ast.ReturnStatement{
						Value: &ast.TemplateLiteral{
							Quasis: []string{"hello, ", "!"},
							Exprs:  []ast.Expression{&ast.Variable{Name: "name"}},
						},
					},
				},
			},
		},
	}

	asyncSum := &ast.FunctionStatement{
		Name:  "asyncSum",
		Async: true,
		Body: []ast.Statement{
			&ast.ForOfStatement{
				VarName:  "x",
				IsConst:  true,
				Iterable: &ast.Variable{Name: "xs"},
				Body: []ast.Statement{
					&ast.ExpressionStatement{
						Expr: &ast.Await{Value: &ast.Call{Callee: &ast.Variable{Name: "settle"}, Args: []ast.Expression{&ast.Variable{Name: "x"}}}},
					},
				},
			},
		},
	}

	return &ast.Program{Statements: []ast.Statement{makeCounter, greeter, asyncSum}}
}

func TestRoundTrip_PreservesStatementShape(t *testing.T) {
	prog := sampleProgram()

	data, err := Encode(prog)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(got.Statements) != len(prog.Statements) {
		t.Fatalf("got %d statements, want %d", len(got.Statements), len(prog.Statements))
	}

	fn, ok := got.Statements[0].(*ast.FunctionStatement)
	if !ok {
		t.Fatalf("statement 0 = %T, want *ast.FunctionStatement", got.Statements[0])
	}
	if fn.Name != "makeCounter" {
		t.Errorf("fn.Name = %q, want makeCounter", fn.Name)
	}
	if len(fn.Body) != 2 {
		t.Fatalf("fn.Body has %d statements, want 2", len(fn.Body))
	}
	ret, ok := fn.Body[1].(*ast.ReturnStatement)
	if !ok {
		t.Fatalf("fn.Body[1] = %T, want *ast.ReturnStatement", fn.Body[1])
	}
	arrow, ok := ret.Value.(*ast.ArrowFunction)
	if !ok {
		t.Fatalf("ret.Value = %T, want *ast.ArrowFunction", ret.Value)
	}
	if len(arrow.Body) != 2 {
		t.Fatalf("arrow.Body has %d statements, want 2", len(arrow.Body))
	}

	cls, ok := got.Statements[1].(*ast.ClassStatement)
	if !ok {
		t.Fatalf("statement 1 = %T, want *ast.ClassStatement", got.Statements[1])
	}
	if cls.Name != "Greeter" || len(cls.Members) != 1 {
		t.Fatalf("unexpected class shape: %+v", cls)
	}
	method := cls.Members[0]
	if method.Name != "greet" || len(method.Params) != 1 {
		t.Fatalf("unexpected method shape: %+v", method)
	}
	paramType, ok := method.Params[0].Type.(*ast.NamedType)
	if !ok || paramType.Name.Value != "string" {
		t.Fatalf("unexpected param type: %+v", method.Params[0].Type)
	}

	asyncFn, ok := got.Statements[2].(*ast.FunctionStatement)
	if !ok || !asyncFn.Async {
		t.Fatalf("statement 2 should be an async function, got %+v", got.Statements[2])
	}
	forOf, ok := asyncFn.Body[0].(*ast.ForOfStatement)
	if !ok || !forOf.IsConst || forOf.VarName != "x" {
		t.Fatalf("unexpected forOf shape: %+v", asyncFn.Body[0])
	}
}

func TestRoundTrip_LiteralKinds(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{
		&ast.ExpressionStatement{Expr: &ast.Literal{Kind: ast.LitNumber, Value: float64(42)}},
		&ast.ExpressionStatement{Expr: &ast.Literal{Kind: ast.LitString, Value: "hi"}},
		&ast.ExpressionStatement{Expr: &ast.Literal{Kind: ast.LitBoolean, Value: true}},
		&ast.ExpressionStatement{Expr: &ast.Literal{Kind: ast.LitNull}},
		&ast.ExpressionStatement{Expr: &ast.Literal{Kind: ast.LitUndefined}},
	}}

	data, err := Encode(prog)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	wantKinds := []ast.LiteralKind{ast.LitNumber, ast.LitString, ast.LitBoolean, ast.LitNull, ast.LitUndefined}
	for i, want := range wantKinds {
		es, ok := got.Statements[i].(*ast.ExpressionStatement)
		if !ok {
			t.Fatalf("statement %d = %T, want *ast.ExpressionStatement", i, got.Statements[i])
		}
		lit, ok := es.Expr.(*ast.Literal)
		if !ok {
			t.Fatalf("statement %d expr = %T, want *ast.Literal", i, es.Expr)
		}
		if lit.Kind != want {
			t.Errorf("statement %d literal kind = %v, want %v", i, lit.Kind, want)
		}
	}
	if got.Statements[0].(*ast.ExpressionStatement).Expr.(*ast.Literal).Value.(float64) != 42 {
		t.Error("number literal value did not round-trip")
	}
}

func TestDecode_UnsupportedKindErrors(t *testing.T) {
	_, err := Decode([]byte(`{"statements":[{"kind":"notarealkind"}]}`))
	if err == nil {
		t.Fatal("expected an error decoding an unrecognised statement kind")
	}
}

func TestDecode_UnknownTypeAnnotationDegradesToNil(t *testing.T) {
	data := []byte(`{"statements":[{"kind":"var","name":"x","type":{"kind":"array"},"value":null,"const":false}]}`)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v := got.Statements[0].(*ast.VarStatement)
	if v.Type != nil {
		t.Errorf("expected unsupported type annotation shape to decode to nil, got %#v", v.Type)
	}
}
