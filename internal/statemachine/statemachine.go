// Package statemachine implements the state-machine builder and the
// hoisting manager together: given one async/generator function, its
// closure record, and its suspension record, build the fixed-name
// field layout and expose a single lookup from user-level name to
// hoisted field, so no other code computes a field name for a hoisted
// value independently.
//
// A compiled function value is already a flat struct of named fields
// (name, arity, code, upvalue count); this package keeps that
// "function as a named-field record" shape but grows the field set to
// the much larger one a coroutine state machine needs.
package statemachine

import (
	"fmt"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/closure"
	"github.com/sharpts/compiler/internal/suspend"
	"github.com/sharpts/compiler/internal/types"
)

// Fixed field-name templates.
const (
	StateField           = "<>1__state"
	BuilderField         = "<>t__builder"
	CurrentField         = "<>2__current" // generator/async-generator current yielded value
	ThisField             = "<>4__this"
	SelfBoxedField        = "<>__selfBoxed"
	DefaultsAppliedField  = "<>__defaultsApplied"

	// Lock fields, emitted only when the method is marked synchronised.
	LockPrevReentrancyField    = "<>__prevReentrancy"
	LockAcquiredField          = "<>__lockAcquired"
	LockAwaiterField           = "<>__lockAwaiter"
	LockSemaphoreField         = "<>__semaphore"
	LockReentrancyCounterField = "<>__reentrancyCounter"
)

// State field sentinel values.
const (
	StateInitial = -1
	StateDone    = -2
)

// AwaiterField names the field backing the k-th awaiter.
func AwaiterField(k int) string { return fmt.Sprintf("<>u__%d", k) }

// hoistedFieldName is the single naming rule for every hoisted
// parameter, local, or captured-outer variable: captured-outer
// variables use the `<>5__<name>` template, and hoisted
// parameters/locals get one field per, sharing the same family of
// generated names.
func hoistedFieldName(name string) string { return "<>5__" + name }

// Kind distinguishes the three suspending function shapes.
type Kind int

const (
	KindAsync Kind = iota
	KindGenerator
	KindAsyncGenerator
)

// HoistedSource tells the resolver which resolution rule produced a
// hoisted field, so it can still prefer parameter/local lookups over a
// captured-outer forward when both exist.
type HoistedSource int

const (
	SourceParameter HoistedSource = iota
	SourceLocal
	SourceCapturedOuter
)

// HoistedField is one field of the hoisting manager's name→field map.
type HoistedField struct {
	Name   string
	Type   *types.RuntimeType
	Source HoistedSource
}

// FieldName returns the state-machine field name backing this value.
func (f *HoistedField) FieldName() string { return hoistedFieldName(f.Name) }

// Options carries the per-method facts the builder needs beyond the
// closure/suspension records.
type Options struct {
	HasThis        bool // true for instance methods and arrows capturing `this`
	Synchronized   bool // decorator requesting lock fields
	NeedsSelfBoxed bool // true for a nested async arrow sharing its parent's instance
}

// Machine is the built state-machine type: its field layout plus enough
// metadata for the state-machine body emitter to emit the
// MoveNext/Resume skeleton.
type Machine struct {
	Func ast.FuncLike
	Kind Kind

	HasThis        bool
	HasSelfBoxed   bool
	DefaultsApplied bool
	Synchronized   bool

	// Awaiters holds one field name per suspension index: suspension
	// indices are dense, 0..N-1.
	Awaiters []string

	hoisted map[string]*HoistedField
	order   []string // insertion order, for deterministic field emission
}

// Build constructs the state-machine field layout for fn.
func Build(fn ast.FuncLike, capRec *closure.Record, suspendRec *suspend.Record, opts Options) *Machine {
	kind := KindGenerator
	switch {
	case fn.IsAsync() && fn.IsGenerator():
		kind = KindAsyncGenerator
	case fn.IsAsync():
		kind = KindAsync
	case fn.IsGenerator():
		kind = KindGenerator
	}

	m := &Machine{
		Func:            fn,
		Kind:            kind,
		HasThis:         opts.HasThis,
		HasSelfBoxed:    opts.NeedsSelfBoxed,
		DefaultsApplied: true,
		Synchronized:    opts.Synchronized,
		hoisted:         map[string]*HoistedField{},
	}

	// Parameters are always hoisted.
	for _, p := range fn.FuncParams() {
		m.addHoisted(&HoistedField{Name: p.Name, Type: types.Map(p.Type), Source: SourceParameter})
	}

	// Locals live across at least one suspension point are hoisted: a
	// local is live iff declared before a suspension and read/written
	// after it.
	seenLocal := map[string]bool{}
	for _, pt := range suspendRec.Points {
		for name := range pt.Live {
			if _, isParam := m.hoisted[name]; isParam {
				continue
			}
			if seenLocal[name] {
				continue
			}
			seenLocal[name] = true
			m.addHoisted(&HoistedField{Name: name, Type: types.Unknown, Source: SourceLocal})
		}
	}

	// Captured outer variables are forwarded into the state machine so
	// the rewritten body can still reach them, chained through the
	// enclosing display class via `<>5__` fields.
	if capRec != nil {
		for name := range capRec.Captures {
			if name == closure.ThisName {
				m.HasThis = true
				continue
			}
			if _, exists := m.hoisted[name]; exists {
				continue
			}
			m.addHoisted(&HoistedField{Name: name, Type: types.Unknown, Source: SourceCapturedOuter})
		}
	}

	m.Awaiters = make([]string, len(suspendRec.Points))
	for i := range suspendRec.Points {
		m.Awaiters[i] = AwaiterField(i)
	}

	return m
}

func (m *Machine) addHoisted(f *HoistedField) {
	m.hoisted[f.Name] = f
	m.order = append(m.order, f.Name)
}

// Lookup is the hoisting manager's single source of truth: every load or
// store of a hoisted value must go through this call.
func (m *Machine) Lookup(name string) (*HoistedField, bool) {
	f, ok := m.hoisted[name]
	return f, ok
}

// Fields returns every hoisted field in deterministic declaration order.
func (m *Machine) Fields() []*HoistedField {
	out := make([]*HoistedField, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.hoisted[name])
	}
	return out
}
