// Package resolver decides, given a name, the load/store sequence that
// reaches it — a parameter slot, an ordinary local slot, a chain of
// display-class field reads, a hoisted state-machine field, or a static
// field on the entry-point class — following two distinct resolution
// orders, one for normal method bodies and one for state-machine
// bodies.
//
// Generalises a three-rung local → upvalue → global resolution chain
// into a longer ordered sequence of lookups, first match wins.
package resolver

import "github.com/sharpts/compiler/internal/types"

// LocationKind identifies which rung of the resolution order produced a
// Location.
type LocationKind int

const (
	LocParameter LocationKind = iota
	LocCapturedLocalChain
	LocLocal
	LocClosureField
	LocEntryPointField
	LocStaticField

	LocHoistedParameter
	LocHoistedLocal
	LocCapturedOuterChain

	LocThisCapturedField
	LocThisParameter
	LocThisReceiver
	LocThisStaticToken
	LocThisNull
)

// Location is the resolved access path for one name.
type Location struct {
	Kind  LocationKind
	Slot  int      // local/parameter slot, when Kind uses one
	Chain []string // field names walked through nested display-class/state-machine instances
	Type  *types.RuntimeType
}

// entry is one rung of a resolver's ordered lookup chain.
type entry struct {
	kind  LocationKind
	table map[string]*types.RuntimeType
	slots map[string]int
	chain map[string][]string
}

// Resolver is an ordered sequence of lookup rungs; Resolve returns the
// first rung that has an entry for name, matching the fixed resolution
// order for the body kind being compiled via the order rungs are
// appended in.
type Resolver struct {
	rungs []entry
}

// New starts an empty resolver; callers append rungs via With* in the
// exact priority order documented for the body kind being compiled.
func New() *Resolver { return &Resolver{} }

func (r *Resolver) with(kind LocationKind, table map[string]*types.RuntimeType, slots map[string]int, chain map[string][]string) *Resolver {
	r.rungs = append(r.rungs, entry{kind: kind, table: table, slots: slots, chain: chain})
	return r
}

// WithParameters adds a parameter-slot rung (ordinary or hoisted,
// selected via kind).
func (r *Resolver) WithParameters(kind LocationKind, types_ map[string]*types.RuntimeType, slots map[string]int) *Resolver {
	return r.with(kind, types_, slots, nil)
}

// WithLocals adds an ordinary-local-slot rung.
func (r *Resolver) WithLocals(kind LocationKind, types_ map[string]*types.RuntimeType, slots map[string]int) *Resolver {
	return r.with(kind, types_, slots, nil)
}

// WithFieldChain adds a rung resolved via a chain of field reads (display
// class, entry-point display class, state-machine captured-outer chain).
func (r *Resolver) WithFieldChain(kind LocationKind, types_ map[string]*types.RuntimeType, chains map[string][]string) *Resolver {
	return r.with(kind, types_, nil, chains)
}

// WithStaticFields adds the final top-level-static-field rung.
func (r *Resolver) WithStaticFields(types_ map[string]*types.RuntimeType) *Resolver {
	return r.with(LocStaticField, types_, nil, nil)
}

// Resolve returns the Location for name: the first rung (in the order
// rungs were added) that declares it.
func (r *Resolver) Resolve(name string) (*Location, bool) {
	for _, rung := range r.rungs {
		t, ok := rung.table[name]
		if !ok {
			continue
		}
		loc := &Location{Kind: rung.kind, Type: t}
		if rung.slots != nil {
			loc.Slot = rung.slots[name]
		}
		if rung.chain != nil {
			loc.Chain = rung.chain[name]
		}
		return loc, true
	}
	return nil, false
}

// ThisOptions carries the facts needed to resolve `this` via its fixed
// chain: captured-this field → `__this` parameter (object-method
// shorthand) → instance receiver → class static-constructor token →
// null.
type ThisOptions struct {
	CapturedThisChain []string // non-nil if `this` reaches here via a display-class/state-machine chain
	HasShorthandThisParam bool // object-method shorthand binds `this` as an explicit `__this` parameter
	IsInstanceMethod      bool // ordinary instance method: `this` is the receiver
	StaticConstructorToken bool // inside a static initializer: a class-token placeholder stands in for `this`
}

// ResolveThis applies the fixed `this` chain.
func ResolveThis(opts ThisOptions) *Location {
	switch {
	case opts.CapturedThisChain != nil:
		return &Location{Kind: LocThisCapturedField, Chain: opts.CapturedThisChain, Type: types.Unknown}
	case opts.HasShorthandThisParam:
		return &Location{Kind: LocThisParameter, Type: types.Unknown}
	case opts.IsInstanceMethod:
		return &Location{Kind: LocThisReceiver, Type: types.Unknown}
	case opts.StaticConstructorToken:
		return &Location{Kind: LocThisStaticToken, Type: types.Unknown}
	default:
		return &Location{Kind: LocThisNull, Type: types.Null}
	}
}

// NeedsEagerBoxing reports whether a parameter of this type must be
// boxed immediately on load so the known-stack-type discipline stays
// sound: a union-typed parameter's runtime value may switch
// representation across reads. It is a predicate only: neither the
// resolver nor the emitter calls it, so no load site is boxed by it.
func NeedsEagerBoxing(t *types.RuntimeType) bool {
	return t != nil && t.Kind == types.KindUnion
}
