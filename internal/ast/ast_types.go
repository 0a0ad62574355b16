package ast

// Type is a source-level type annotation, consumed by internal/types to
// map to a target runtime type.
type Type interface {
	typeNode()
}

// NamedType: `string`, `number`, `MyClass`, `Array<T>` (Args holds `<T>`).
type NamedType struct {
	Name *Identifier
	Args []Type
}

func (*NamedType) typeNode() {}

// ArrayType: `T[]`.
type ArrayType struct {
	Elem Type
}

func (*ArrayType) typeNode() {}

// FunctionType: `(a: A, b: B) => R`.
type FunctionType struct {
	Parameters []Type
	ReturnType Type
}

func (*FunctionType) typeNode() {}

// PromiseType: `Promise<T>`.
type PromiseType struct {
	Elem Type
}

func (*PromiseType) typeNode() {}

// UnionType: `A | B | C`.
type UnionType struct {
	Types []Type
}

func (*UnionType) typeNode() {}

// TupleType: `[A, B, C]`.
type TupleType struct {
	Types []Type
}

func (*TupleType) typeNode() {}

// RecordType: `{ a: A; b: B }` (structural object type).
type RecordType struct {
	Fields map[string]Type
}

func (*RecordType) typeNode() {}
