package runtimestub

import (
	"testing"

	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/module"
)

func TestEmitRegistersEveryWellKnownMethod(t *testing.T) {
	m := module.New("test")
	d := Emit(m)

	for _, name := range methodNames {
		tok, ok := d.Handle(name)
		if !ok {
			t.Fatalf("expected handle for %q", name)
		}
		if tok.Table() != bytecode.TableMethodDef {
			t.Fatalf("expected %q to resolve to a MethodDef token, got %v", name, tok)
		}
	}

	if _, ok := d.Handle("NotAHelper"); ok {
		t.Fatalf("expected unknown helper name to report false")
	}
}

func TestEmitRegistersEveryHelperType(t *testing.T) {
	m := module.New("test")
	d := Emit(m)

	for _, name := range typeNames {
		tok, ok := d.TypeToken(name)
		if !ok {
			t.Fatalf("expected type token for %q", name)
		}
		if tok.Table() != bytecode.TableTypeDef {
			t.Fatalf("expected %q to resolve to a TypeDef token, got %v", name, tok)
		}
	}
}

func TestStubTypeIsRegisteredInModule(t *testing.T) {
	m := module.New("test")
	Emit(m)

	cls, ok := m.FindClass(StubTypeName)
	if !ok {
		t.Fatalf("expected %q to be registered as a class", StubTypeName)
	}
	if cls.Kind != module.KindRuntimeStub {
		t.Fatalf("expected stub type to have KindRuntimeStub, got %v", cls.Kind)
	}
	if len(cls.Methods) != len(methodNames) {
		t.Fatalf("expected %d methods on the stub type, got %d", len(methodNames), len(cls.Methods))
	}
}

func TestMustHandlePanicsOnUnknownName(t *testing.T) {
	m := module.New("test")
	d := Emit(m)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustHandle to panic for an unknown helper name")
		}
	}()
	d.MustHandle("NotAHelper")
}
