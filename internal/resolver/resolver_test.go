package resolver

import (
	"testing"

	"github.com/sharpts/compiler/internal/types"
)

func TestNormalBodyResolutionOrder(t *testing.T) {
	// "x" exists both as a parameter and (implausibly) as an entry-point
	// field; the parameter must win because it is checked first.
	r := NewNormalBodyResolver(NormalBodyInputs{
		Parameters:       map[string]*types.RuntimeType{"x": types.Double},
		ParamSlots:       map[string]int{"x": 0},
		EntryPointFields: map[string]*types.RuntimeType{"x": types.String},
	})
	loc, ok := r.Resolve("x")
	if !ok {
		t.Fatalf("expected x to resolve")
	}
	if loc.Kind != LocParameter {
		t.Fatalf("expected parameter to take priority, got kind %v", loc.Kind)
	}
}

func TestNormalBodyFallsThroughToStatic(t *testing.T) {
	r := NewNormalBodyResolver(NormalBodyInputs{
		StaticFields: map[string]*types.RuntimeType{"topLevel": types.Unknown},
	})
	loc, ok := r.Resolve("topLevel")
	if !ok || loc.Kind != LocStaticField {
		t.Fatalf("expected fallthrough to static field, got %+v ok=%v", loc, ok)
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Fatalf("expected unresolved name to report false")
	}
}

func TestStateMachineBodyResolutionOrder(t *testing.T) {
	r := NewStateMachineBodyResolver(StateMachineBodyInputs{
		HoistedParameters:  map[string]*types.RuntimeType{"n": types.Double},
		CapturedOuterTypes: map[string]*types.RuntimeType{"n": types.String},
		CapturedOuterChain: map[string][]string{"n": {"<>5__n"}},
	})
	loc, ok := r.Resolve("n")
	if !ok || loc.Kind != LocHoistedParameter {
		t.Fatalf("expected hoisted parameter to take priority over captured outer, got %+v ok=%v", loc, ok)
	}
}

func TestResolveThisChain(t *testing.T) {
	if loc := ResolveThis(ThisOptions{CapturedThisChain: []string{"<>5__this"}}); loc.Kind != LocThisCapturedField {
		t.Fatalf("expected captured-this field to take priority")
	}
	if loc := ResolveThis(ThisOptions{HasShorthandThisParam: true}); loc.Kind != LocThisParameter {
		t.Fatalf("expected shorthand this parameter")
	}
	if loc := ResolveThis(ThisOptions{IsInstanceMethod: true}); loc.Kind != LocThisReceiver {
		t.Fatalf("expected instance receiver")
	}
	if loc := ResolveThis(ThisOptions{StaticConstructorToken: true}); loc.Kind != LocThisStaticToken {
		t.Fatalf("expected static constructor token")
	}
	if loc := ResolveThis(ThisOptions{}); loc.Kind != LocThisNull {
		t.Fatalf("expected null fallback")
	}
}

func TestNeedsEagerBoxing(t *testing.T) {
	union := &types.RuntimeType{Kind: types.KindUnion}
	if !NeedsEagerBoxing(union) {
		t.Fatalf("union-typed parameter must require eager boxing")
	}
	if NeedsEagerBoxing(types.Double) {
		t.Fatalf("a concrete primitive type must not require eager boxing")
	}
}
