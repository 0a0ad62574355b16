// Package runtimestub implements the runtime descriptor: emitting, into
// the output module, a static type holding handles to every runtime
// helper compiled bytecode calls into (boxing/coercion, arithmetic,
// property/index access, iterator protocol, big integers, dates, crypto
// primitives, URL handling, Promise combinators), plus the module's
// helper types ($Array, $Object, $Hash, $Hmac, $Buffer, $TSDate,
// $IteratorWrapper, $TSSymbol, $Promise).
//
// A content-addressed registry, one handle per well-known name, the
// same shape as a builtin-function table populated by name and
// consulted by name at call sites — here producing MethodDef/TypeDef
// tokens in a module image instead of Go closures in a Go map.
package runtimestub

import (
	"fmt"

	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/module"
)

// Well-known helper method names, content-addressed by the emitter.
const (
	NumberCoerce  = "NumberCoerce"
	StringCoerce  = "StringCoerce"
	Truthy        = "Truthy"
	Add           = "Add"
	JSEquals      = "JSEquals"
	GetProperty   = "GetProperty"
	SetProperty   = "SetProperty"
	GetIndex      = "GetIndex"
	SetIndex      = "SetIndex"
	InvokeValue   = "InvokeValue"

	ArrayNew   = "ArrayNew"
	MapNew     = "MapNew"
	SetNew     = "SetNew"
	WeakMapNew = "WeakMapNew"
	WeakSetNew = "WeakSetNew"

	GetIteratorFunction = "GetIteratorFunction"
	InvokeIteratorNext  = "InvokeIteratorNext"
	GetIteratorDone     = "GetIteratorDone"
	GetIteratorValue    = "GetIteratorValue"

	BigIntAdd     = "BigIntAdd"
	BigIntCompare = "BigIntCompare"

	DateNew       = "DateNew"
	DynamicImport = "DynamicImport"

	HashNew     = "HashNew"
	HmacNew     = "HmacNew"
	RandomBytes = "RandomBytes"
	RandomUUID  = "RandomUUID"
	RandomInt   = "RandomInt"

	URLParse   = "URLParse"
	URLFormat  = "URLFormat"
	URLResolve = "URLResolve"

	PromiseAll        = "PromiseAll"
	PromiseRace       = "PromiseRace"
	PromiseAllSettled = "PromiseAllSettled"
	PromiseFinally    = "PromiseFinally"

	ConsoleLog = "ConsoleLog"
	RegExpNew  = "RegExpNew"
	Stringify  = "Stringify"

	// Coroutine-lowering helpers: the awaiter protocol internal/asyncgen
	// compiles await/yield into, and the async-generator return-value
	// wrapper it uses to signal "more values"/"done" from a Resume method.
	GetAwaiter             = "GetAwaiter"
	AwaiterIsCompleted     = "AwaiterIsCompleted"
	AwaiterGetResult       = "AwaiterGetResult"
	AwaitUnsafeOnCompleted = "AwaitUnsafeOnCompleted"
	ValueTaskFromBool      = "ValueTaskFromBool"
)

// methodNames lists every helper method the stub type contains.
var methodNames = []string{
	NumberCoerce, StringCoerce, Truthy, Add, JSEquals,
	GetProperty, SetProperty, GetIndex, SetIndex, InvokeValue,
	ArrayNew, MapNew, SetNew, WeakMapNew, WeakSetNew,
	GetIteratorFunction, InvokeIteratorNext, GetIteratorDone, GetIteratorValue,
	BigIntAdd, BigIntCompare,
	DateNew, DynamicImport,
	HashNew, HmacNew, RandomBytes, RandomUUID, RandomInt,
	URLParse, URLFormat, URLResolve,
	PromiseAll, PromiseRace, PromiseAllSettled, PromiseFinally,
	ConsoleLog, RegExpNew, Stringify,
	GetAwaiter, AwaiterIsCompleted, AwaiterGetResult, AwaitUnsafeOnCompleted, ValueTaskFromBool,
}

// Well-known helper type names.
const (
	TypeArray           = "$Array"
	TypeObject          = "$Object"
	TypeHash            = "$Hash"
	TypeHmac            = "$Hmac"
	TypeBuffer          = "$Buffer"
	TypeDate            = "$TSDate"
	TypeIteratorWrapper = "$IteratorWrapper"
	TypeSymbol          = "$TSSymbol"
	TypePromise         = "$Promise"
)

var typeNames = []string{
	TypeArray, TypeObject, TypeHash, TypeHmac, TypeBuffer,
	TypeDate, TypeIteratorWrapper, TypeSymbol, TypePromise,
}

// StubTypeName is the synthesised static type holding every helper
// method handle.
const StubTypeName = "$Runtime"

// Descriptor is the runtime descriptor: content-addressed handles to
// every pre-emitted helper method and helper type, populated once per
// output module.
type Descriptor struct {
	methods map[string]bytecode.Token
	types   map[string]bytecode.Token
}

// Handle looks up a helper method's MethodDef token by its well-known
// name.
func (d *Descriptor) Handle(name string) (bytecode.Token, bool) {
	t, ok := d.methods[name]
	return t, ok
}

// MustHandle is Handle, panicking if name is not a well-known helper —
// a programmer error in the emitter, not a user-facing failure.
func (d *Descriptor) MustHandle(name string) bytecode.Token {
	t, ok := d.methods[name]
	if !ok {
		panic(fmt.Sprintf("runtimestub: unknown helper %q", name))
	}
	return t
}

// TypeToken looks up a helper type's TypeDef token by its well-known
// name.
func (d *Descriptor) TypeToken(name string) (bytecode.Token, bool) {
	t, ok := d.types[name]
	return t, ok
}

// Emit synthesises the $Runtime stub type and every helper type into m,
// returning the descriptor the emitter consults for handles. Each helper
// method body is a placeholder (`ret`): the concrete runtime semantics
// (actual crypto, URL, Date, Promise scheduling behaviour) belong to the
// runtime these stubs are compiled against, an external collaborator —
// this pass only guarantees every well-known name resolves to a stable
// token the emitter can call through.
func Emit(m *module.Module) *Descriptor {
	d := &Descriptor{methods: map[string]bytecode.Token{}, types: map[string]bytecode.Token{}}

	stub := &module.Class{Name: StubTypeName, Kind: module.KindRuntimeStub}
	for _, name := range methodNames {
		meth := stub.AddMethod(&module.Method{
			Name:   name,
			Static: true,
			Body:   &bytecode.MethodBody{Code: []byte{byte(bytecode.Ret)}, MaxStack: 0},
		})
		_ = meth
	}
	m.AddClass(stub)
	for _, meth := range stub.Methods {
		d.methods[meth.Name] = meth.Token()
	}

	for _, name := range typeNames {
		cls := &module.Class{Name: name, Kind: module.KindRuntimeStub}
		m.AddClass(cls)
		d.types[name] = cls.Token()
	}

	return d
}
