package rewriter

import (
	"testing"

	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/module"
)

// buildSourceModule builds a small module image by hand: a TypeRef into
// a "System.Console" assembly, a MemberRef naming a method on it, and a
// class with one method whose body loads a string literal and passes it
// to that MemberRef with a Call.
func buildSourceModule(t *testing.T) *module.Module {
	t.Helper()

	m := module.New("Source")
	m.AssemblyRefs = append(m.AssemblyRefs, module.AssemblyRef{Name: corlibName})
	m.AssemblyRefs = append(m.AssemblyRefs, module.AssemblyRef{Name: "System.Console"})

	typeRefTok := m.AddTypeRef(module.TypeRefRow{ResolutionScope: 1, Namespace: "System", Name: "Console"})
	strTok := m.AddUserString("hello")
	memberTok := m.AddMemberRef(module.MemberRefRow{Class: typeRefTok, Name: "WriteLine", Signature: "(string)"})

	cls := &module.Class{Name: "Program", Kind: module.KindProgram}
	m.AddClass(cls)

	meth := &module.Method{Name: "Main", Static: true}
	cls.AddMethod(meth)
	m.AssignMethodToken(meth)

	stream := bytecode.NewStream()
	stream.EmitToken(bytecode.LdStr, strTok, 1)
	stream.EmitToken(bytecode.Call, memberTok, 1)
	stream.Emit(bytecode.Pop, 1)
	stream.Emit(bytecode.Ret, 1)
	meth.Body = &bytecode.MethodBody{Code: stream.Code, MaxStack: 2}

	return m
}

func TestRewrite_RemapsTokensAndPreservesBehaviorShape(t *testing.T) {
	src := buildSourceModule(t)

	res, err := Rewrite(src, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Module.Classes) != 1 {
		t.Fatalf("expected 1 class in the rewritten module, got %d", len(res.Module.Classes))
	}
	newMeth := res.Module.Classes[0].Methods[0]
	if newMeth.Body == nil || len(newMeth.Body.Code) != len(src.Classes[0].Methods[0].Body.Code) {
		t.Fatalf("expected the rewritten body to keep the same instruction length")
	}

	// The Call operand must now decode to a MemberRef token in the new
	// module's own table, not the source token value.
	oldMemberTok := bytecode.MakeToken(bytecode.TableMemberRef, 1)
	wantNewTok, ok := res.Maps.MemberRef[oldMemberTok]
	if !ok {
		t.Fatal("expected a MemberRef handle map entry for the source's only MemberRef")
	}

	foundCall := false
	code := newMeth.Body.Code
	for i := 0; i < len(code); i++ {
		if bytecode.Opcode(code[i]) == bytecode.Call {
			foundCall = true
			got := bytecode.ReadToken(code, i+1)
			if got != wantNewTok {
				t.Errorf("Call operand = %#x, want %#x", uint32(got), uint32(wantNewTok))
			}
		}
	}
	if !foundCall {
		t.Fatal("expected the rewritten body to still contain a Call instruction")
	}
}

func TestRewrite_TargetsNarrowAssemblySetFallsBackToCorlib(t *testing.T) {
	src := buildSourceModule(t)

	// Request only corlib: the System.Console TypeRef has nowhere to
	// land and must fall back to corlib's index.
	res, err := Rewrite(src, []module.AssemblyRef{{Name: corlibName}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Module.AssemblyRefs) != 1 {
		t.Fatalf("expected exactly one assembly ref (corlib), got %d", len(res.Module.AssemblyRefs))
	}
	if len(res.Module.TypeRefs) != 1 {
		t.Fatalf("expected the TypeRef row to survive, got %d", len(res.Module.TypeRefs))
	}
	if res.Module.TypeRefs[0].ResolutionScope != 0 {
		t.Errorf("expected the orphaned TypeRef to fall back to corlib's index 0, got %d", res.Module.TypeRefs[0].ResolutionScope)
	}
}

func TestRewrite_DanglingTokenIsFatal(t *testing.T) {
	m := module.New("Broken")
	m.AssemblyRefs = append(m.AssemblyRefs, module.AssemblyRef{Name: corlibName})

	cls := &module.Class{Name: "Program", Kind: module.KindProgram}
	m.AddClass(cls)
	meth := &module.Method{Name: "Main", Static: true}
	cls.AddMethod(meth)
	m.AssignMethodToken(meth)

	stream := bytecode.NewStream()
	// References a MemberRef that was never added to the module: the
	// source image itself is malformed.
	stream.EmitToken(bytecode.Call, bytecode.MakeToken(bytecode.TableMemberRef, 99), 1)
	stream.Emit(bytecode.Ret, 1)
	meth.Body = &bytecode.MethodBody{Code: stream.Code, MaxStack: 1}

	if _, err := Rewrite(m, nil); err == nil {
		t.Fatal("expected a dangling-token error to abort the whole rewrite")
	}
}

func TestRewrite_NilSourceRejected(t *testing.T) {
	if _, err := Rewrite(nil, nil); err == nil {
		t.Fatal("expected an error for a nil source module")
	}
}

func TestRewrite_EmptyModuleProducesEmptyImage(t *testing.T) {
	m := module.New("Empty")
	m.AssemblyRefs = append(m.AssemblyRefs, module.AssemblyRef{Name: corlibName})

	res, err := Rewrite(m, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Module.Classes) != 0 {
		t.Errorf("expected no classes in the rewritten empty module, got %d", len(res.Module.Classes))
	}
	if len(res.Module.AssemblyRefs) != 1 {
		t.Errorf("expected exactly the inferred corlib assembly ref, got %d", len(res.Module.AssemblyRefs))
	}
}
