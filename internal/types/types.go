// Package types maps source (TypeScript-like) type annotations to target
// runtime types understood by the emitter and the runtime stub
// descriptor.
//
// A sum-of-type-constructors shape (TCon/TApp/TFunc/TUnion), adapted to
// the CLR-ish runtime type vocabulary the module image targets ($Array,
// $Object, $Hash, $TSDate, $Promise, ...).
package types

import "github.com/sharpts/compiler/internal/ast"

// Kind enumerates the target runtime type categories.
type Kind int

const (
	KindUnknown Kind = iota // boxed `object`, the Unknown stack type on load
	KindDouble
	KindBoolean
	KindString
	KindNull
	KindArray
	KindFunction
	KindPromise
	KindClass
	KindUnion
	KindTuple
	KindRecord
	KindVoid
)

// RuntimeType is the target-side type produced by mapping a source Type.
type RuntimeType struct {
	Kind      Kind
	Elem      *RuntimeType   // Array/Promise element
	Params    []*RuntimeType // Function parameter types
	Return    *RuntimeType   // Function return type
	ClassName string         // Kind == KindClass
	Members   []*RuntimeType // Kind == KindUnion/KindTuple
	Fields    map[string]*RuntimeType
}

var (
	Unknown = &RuntimeType{Kind: KindUnknown}
	Double  = &RuntimeType{Kind: KindDouble}
	Boolean = &RuntimeType{Kind: KindBoolean}
	String  = &RuntimeType{Kind: KindString}
	Null    = &RuntimeType{Kind: KindNull}
	Void    = &RuntimeType{Kind: KindVoid}
)

// wellKnownPrimitives maps source primitive names to runtime types.
var wellKnownPrimitives = map[string]*RuntimeType{
	"number":    Double,
	"boolean":   Boolean,
	"string":    String,
	"null":      Null,
	"undefined": Null,
	"void":      Void,
	"any":       Unknown,
	"unknown":   Unknown,
	"object":    Unknown,
}

// Map converts a source ast.Type into a target RuntimeType. A nil input
// (no annotation present) maps to Unknown, matching the emitter's boxed
// default stack type.
func Map(t ast.Type) *RuntimeType {
	if t == nil {
		return Unknown
	}
	switch n := t.(type) {
	case *ast.NamedType:
		return mapNamed(n)
	case *ast.ArrayType:
		return &RuntimeType{Kind: KindArray, Elem: Map(n.Elem)}
	case *ast.FunctionType:
		params := make([]*RuntimeType, len(n.Parameters))
		for i, p := range n.Parameters {
			params[i] = Map(p)
		}
		return &RuntimeType{Kind: KindFunction, Params: params, Return: Map(n.ReturnType)}
	case *ast.PromiseType:
		return &RuntimeType{Kind: KindPromise, Elem: Map(n.Elem)}
	case *ast.UnionType:
		members := make([]*RuntimeType, len(n.Types))
		for i, m := range n.Types {
			members[i] = Map(m)
		}
		return &RuntimeType{Kind: KindUnion, Members: members}
	case *ast.TupleType:
		members := make([]*RuntimeType, len(n.Types))
		for i, m := range n.Types {
			members[i] = Map(m)
		}
		return &RuntimeType{Kind: KindTuple, Members: members}
	case *ast.RecordType:
		fields := make(map[string]*RuntimeType, len(n.Fields))
		for k, v := range n.Fields {
			fields[k] = Map(v)
		}
		return &RuntimeType{Kind: KindRecord, Fields: fields}
	default:
		return Unknown
	}
}

func mapNamed(n *ast.NamedType) *RuntimeType {
	if n.Name == nil {
		return Unknown
	}
	name := n.Name.Value
	if len(n.Args) == 0 {
		if prim, ok := wellKnownPrimitives[name]; ok {
			return prim
		}
	}
	switch name {
	case "Array":
		if len(n.Args) == 1 {
			return &RuntimeType{Kind: KindArray, Elem: Map(n.Args[0])}
		}
		return &RuntimeType{Kind: KindArray, Elem: Unknown}
	case "Promise":
		if len(n.Args) == 1 {
			return &RuntimeType{Kind: KindPromise, Elem: Map(n.Args[0])}
		}
		return &RuntimeType{Kind: KindPromise, Elem: Unknown}
	default:
		// Any other identifier is assumed to name a compiled class; the
		// resolver/emitter is responsible for confirming it against the
		// symbol table.
		return &RuntimeType{Kind: KindClass, ClassName: name}
	}
}

// IsValueType reports whether values of this runtime type live unboxed on
// the evaluation stack (the Double/Boolean/String/Null stack tags), as
// opposed to behind a boxed object reference.
func (r *RuntimeType) IsValueType() bool {
	switch r.Kind {
	case KindDouble, KindBoolean, KindString, KindNull:
		return true
	default:
		return false
	}
}

// IsReferenceDefault reports whether the zero value of this type is the
// null reference (used by the forwarder synthesiser to decide between a
// typed zero-value default and a bare `ldnull`).
func (r *RuntimeType) IsReferenceDefault() bool {
	return !r.IsValueType() || r.Kind == KindNull
}
