package resolver

import "github.com/sharpts/compiler/internal/types"

// NormalBodyInputs carries the per-rung tables for compiling an ordinary
// (non-state-machine) method or function body.
type NormalBodyInputs struct {
	Parameters      map[string]*types.RuntimeType
	ParamSlots      map[string]int
	CapturedChain   map[string][]string // function-locals captured from an enclosing function, reached via chained display-class fields
	CapturedTypes   map[string]*types.RuntimeType
	Locals          map[string]*types.RuntimeType
	LocalSlots      map[string]int
	ClosureFields   map[string]*types.RuntimeType // this function's own display-class fields
	ClosureChain    map[string][]string
	EntryPointFields map[string]*types.RuntimeType // outermost/entry-point display-class fields
	EntryPointChain  map[string][]string
	StaticFields    map[string]*types.RuntimeType
}

// NewNormalBodyResolver builds the resolver for an ordinary method body,
// in the fixed order: parameter → captured function-local (chained
// display-class field) → ordinary local → closure display-class field →
// entry-point display-class field → static top-level field.
func NewNormalBodyResolver(in NormalBodyInputs) *Resolver {
	return New().
		WithParameters(LocParameter, in.Parameters, in.ParamSlots).
		WithFieldChain(LocCapturedLocalChain, in.CapturedTypes, in.CapturedChain).
		WithLocals(LocLocal, in.Locals, in.LocalSlots).
		WithFieldChain(LocClosureField, in.ClosureFields, in.ClosureChain).
		WithFieldChain(LocEntryPointField, in.EntryPointFields, in.EntryPointChain).
		WithStaticFields(in.StaticFields)
}

// StateMachineBodyInputs carries the per-rung tables for compiling a
// state machine's MoveNext/Resume body.
type StateMachineBodyInputs struct {
	HoistedParameters    map[string]*types.RuntimeType
	HoistedParamSlots    map[string]int
	HoistedLocals        map[string]*types.RuntimeType
	HoistedLocalSlots    map[string]int
	CapturedOuterTypes   map[string]*types.RuntimeType
	CapturedOuterChain   map[string][]string
	OrdinaryLocals       map[string]*types.RuntimeType
	OrdinaryLocalSlots   map[string]int
}

// NewStateMachineBodyResolver builds the resolver for a state-machine
// body, in the fixed order: hoisted parameter → hoisted local →
// captured outer (chained through `<>5__` fields) → ordinary local.
func NewStateMachineBodyResolver(in StateMachineBodyInputs) *Resolver {
	return New().
		WithParameters(LocHoistedParameter, in.HoistedParameters, in.HoistedParamSlots).
		WithParameters(LocHoistedLocal, in.HoistedLocals, in.HoistedLocalSlots).
		WithFieldChain(LocCapturedOuterChain, in.CapturedOuterTypes, in.CapturedOuterChain).
		WithLocals(LocLocal, in.OrdinaryLocals, in.OrdinaryLocalSlots)
}
