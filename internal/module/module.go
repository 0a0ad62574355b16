// Package module implements the emitted module image: classes, static
// methods on a $Program class, synthesised state-machine/display-class
// types, and a runtime-stub type, backed by a fixed set of metadata
// tables (TypeRef, TypeDef, FieldDef, MethodDef, MemberRef,
// StandAloneSig, TypeSpec, MethodSpec, UserString).
//
// Generalises a compiled-function/chunk aggregate-of-types shape from
// "one function, one chunk" to "many classes, many methods, shared
// metadata tables".
package module

import (
	"github.com/google/uuid"
	"github.com/sharpts/compiler/internal/bytecode"
)

// Field is one field of a class, display-class, or state-machine type.
type Field struct {
	Name     string
	TypeName string // target runtime type name, e.g. "object", "int", "$Program"
	Static   bool
}

// Method is a method on a Class: its signature and its compiled body.
type Method struct {
	Name       string
	ParamTypes []string
	ReturnType string
	Static     bool
	Body       *bytecode.MethodBody

	// token is assigned by the module when the method is added, giving
	// every method a stable MethodDef row for other methods' `call`/
	// `callvirt`/`ldftn` instructions to reference.
	token bytecode.Token
}

// Token returns this method's MethodDef token.
func (m *Method) Token() bytecode.Token { return m.token }

// ClassKind distinguishes ordinary user classes from the compiler's
// synthesised type families.
type ClassKind int

const (
	KindUserClass ClassKind = iota
	KindProgram             // the $Program static class holding top-level functions
	KindDisplayClass        // <>c__DisplayClassN
	KindStateMachine        // <Method>d__N
	KindRuntimeStub         // the runtime helper type
)

// Class is a type in the module image: a user class, the $Program class,
// a display class, or a state-machine type.
type Class struct {
	Name    string
	Kind    ClassKind
	Super   string // "" if none
	Fields  []*Field
	Methods []*Method

	typeToken bytecode.Token
}

// Token returns this class's TypeDef token.
func (c *Class) Token() bytecode.Token { return c.typeToken }

// AddField appends a field and returns it.
func (c *Class) AddField(f *Field) *Field {
	c.Fields = append(c.Fields, f)
	return f
}

// AddMethod appends a method and returns it; it assigns no token. A
// method added before the class is registered gets its MethodDef token
// from Module.AddClass; one added afterwards needs
// Module.AssignMethodToken.
func (c *Class) AddMethod(m *Method) *Method {
	c.Methods = append(c.Methods, m)
	return m
}

// Module is the emitted artefact: a named image with an Mvid (module
// version id — a real GUID, exactly as a CLR module header carries one)
// and the full set of classes plus the shared metadata tables the
// assembly reference rewriter operates on.
type Module struct {
	Name string
	Mvid uuid.UUID

	Classes []*Class

	// TypeRefs/MemberRefs/etc. are the metadata tables consulted and
	// rewritten by internal/rewriter.
	TypeRefs       []TypeRefRow
	MemberRefs     []MemberRefRow
	StandAloneSigs []StandAloneSigRow
	TypeSpecs      []TypeSpecRow
	MethodSpecs    []MethodSpecRow
	UserStrings    []string
	AssemblyRefs   []AssemblyRef

	nextMethodRow uint32
	nextTypeRow   uint32
}

// TypeRefRow is a TypeRef table entry: a reference to a type defined in
// another assembly.
type TypeRefRow struct {
	ResolutionScope int // index into AssemblyRefs
	Namespace       string
	Name            string
}

// MemberRefRow is a MemberRef table entry: a reference to a field or
// method defined elsewhere (often in another assembly via a TypeRef).
type MemberRefRow struct {
	Class     bytecode.Token // owning TypeRef/TypeDef/TypeSpec token
	Name      string
	Signature string
}

// StandAloneSigRow is a locals-signature or calli-signature blob.
type StandAloneSigRow struct {
	Signature string
}

// TypeSpecRow is a TypeSpec table entry: a constructed generic type.
type TypeSpecRow struct {
	Signature string
}

// MethodSpecRow is a MethodSpec table entry: a constructed generic method.
type MethodSpecRow struct {
	Method        bytecode.Token
	Instantiation string
}

// AssemblyRef names one referenced runtime assembly.
type AssemblyRef struct {
	Name           string
	Version        [4]uint16
	PublicKeyToken [8]byte
}

// New creates an empty module image with a freshly generated Mvid.
func New(name string) *Module {
	return &Module{Name: name, Mvid: uuid.New()}
}

// AddClass registers a class, assigning it (and every method it already
// holds) stable TypeDef/MethodDef tokens.
func (m *Module) AddClass(c *Class) *Class {
	m.nextTypeRow++
	c.typeToken = bytecode.MakeToken(bytecode.TableTypeDef, m.nextTypeRow)
	for _, meth := range c.Methods {
		m.nextMethodRow++
		meth.token = bytecode.MakeToken(bytecode.TableMethodDef, m.nextMethodRow)
	}
	m.Classes = append(m.Classes, c)
	return c
}

// AssignMethodToken allocates a MethodDef token for a method added to a
// class after that class was already registered via AddClass.
func (m *Module) AssignMethodToken(meth *Method) {
	m.nextMethodRow++
	meth.token = bytecode.MakeToken(bytecode.TableMethodDef, m.nextMethodRow)
}

// AddTypeRef appends a TypeRef row and returns its token; an equal row
// already in the table is not reused.
func (m *Module) AddTypeRef(row TypeRefRow) bytecode.Token {
	m.TypeRefs = append(m.TypeRefs, row)
	return bytecode.MakeToken(bytecode.TableTypeRef, uint32(len(m.TypeRefs)))
}

// AddMemberRef appends a MemberRef row and returns its token; an equal
// row already in the table is not reused.
func (m *Module) AddMemberRef(row MemberRefRow) bytecode.Token {
	m.MemberRefs = append(m.MemberRefs, row)
	return bytecode.MakeToken(bytecode.TableMemberRef, uint32(len(m.MemberRefs)))
}

// AddUserString appends a string literal and returns its UserString
// token; an equal string already in the table is not reused.
func (m *Module) AddUserString(v string) bytecode.Token {
	m.UserStrings = append(m.UserStrings, v)
	return bytecode.MakeToken(bytecode.TableUserString, uint32(len(m.UserStrings)))
}

// FindClass looks up a class by name (used when resolving `new Foo()` /
// static field targets against already-declared symbols).
func (m *Module) FindClass(name string) (*Class, bool) {
	for _, c := range m.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// UniqueName returns name if it doesn't collide with any existing class
// name, otherwise a name disambiguated with a short uuid-derived suffix.
// Used when two closures in the same lexical block would otherwise
// synthesise colliding display-class/state-machine type names: these
// names are templated (e.g. `<>c__DisplayClassN`) and N must be unique
// within the enclosing method, but the module-wide name also must not
// collide with a user class of the same generated name.
func (m *Module) UniqueName(name string) string {
	if _, exists := m.FindClass(name); !exists {
		return name
	}
	return name + "_" + uuid.New().String()[:8]
}
