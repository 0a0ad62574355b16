package compileroptions

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseOptions_Empty(t *testing.T) {
	o, err := ParseOptions([]byte(``), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !o.IsValidatingBuilderEnabled() {
		t.Error("expected validating builder to default to enabled")
	}
	if o.MonomorphizationDepthLimit != 8 {
		t.Errorf("monomorphization depth limit = %d, want 8", o.MonomorphizationDepthLimit)
	}
	if o.SynchronizedMethodStrategy != StrategyNone {
		t.Errorf("strategy = %q, want %q", o.SynchronizedMethodStrategy, StrategyNone)
	}
}

func TestParseOptions_ValidatingBuilderDisabled(t *testing.T) {
	yaml := `
validating_builder: false
monomorphization_depth_limit: 3
synchronized_method_strategy: semaphore
`
	o, err := ParseOptions([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.IsValidatingBuilderEnabled() {
		t.Error("expected validating builder to be disabled")
	}
	if o.MonomorphizationDepthLimit != 3 {
		t.Errorf("monomorphization depth limit = %d, want 3", o.MonomorphizationDepthLimit)
	}
	if o.SynchronizedMethodStrategy != StrategySemaphore {
		t.Errorf("strategy = %q, want %q", o.SynchronizedMethodStrategy, StrategySemaphore)
	}
}

func TestParseOptions_NegativeDepthLimitRejected(t *testing.T) {
	yaml := `monomorphization_depth_limit: -1`
	if _, err := ParseOptions([]byte(yaml), "test.yaml"); err == nil {
		t.Fatal("expected an error for a negative depth limit")
	}
}

func TestParseOptions_UnknownStrategyRejected(t *testing.T) {
	yaml := `synchronized_method_strategy: rwlock`
	if _, err := ParseOptions([]byte(yaml), "test.yaml"); err == nil {
		t.Fatal("expected an error for an unknown synchronization strategy")
	}
}

func TestParseOptions_TargetRuntimeAssemblies(t *testing.T) {
	yaml := `
target_runtime_assemblies:
  - name: System.Private.CoreLib
    public_key_token: 7cec85d7bea7798e
`
	o, err := ParseOptions([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(o.TargetRuntimeAssemblies) != 1 {
		t.Fatalf("expected 1 target runtime assembly, got %d", len(o.TargetRuntimeAssemblies))
	}
	ref, err := o.TargetRuntimeAssemblies[0].ToAssemblyRef()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Name != "System.Private.CoreLib" {
		t.Errorf("name = %q, want System.Private.CoreLib", ref.Name)
	}
	want := [8]byte{0x7c, 0xec, 0x85, 0xd7, 0xbe, 0xa7, 0x79, 0x8e}
	if ref.PublicKeyToken != want {
		t.Errorf("public key token = %x, want %x", ref.PublicKeyToken, want)
	}
}

func TestParseOptions_BadPublicKeyTokenRejected(t *testing.T) {
	yaml := `
target_runtime_assemblies:
  - name: System.Private.CoreLib
    public_key_token: not-hex
`
	if _, err := ParseOptions([]byte(yaml), "test.yaml"); err == nil {
		t.Fatal("expected an error for a malformed public key token")
	}
}

func TestParseOptions_MissingAssemblyNameRejected(t *testing.T) {
	yaml := `
target_runtime_assemblies:
  - public_key_token: 7cec85d7bea7798e
`
	if _, err := ParseOptions([]byte(yaml), "test.yaml"); err == nil {
		t.Fatal("expected an error for a missing assembly name")
	}
}

func TestFindOptions_WalksUpToParent(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sharptsc.yaml"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	found, err := FindOptions(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(root, "sharptsc.yaml")
	if found != want {
		t.Errorf("found = %q, want %q", found, want)
	}
}

func TestFindOptions_NotFound(t *testing.T) {
	dir := t.TempDir()
	found, err := FindOptions(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != "" {
		t.Errorf("expected no config to be found, got %q", found)
	}
}
