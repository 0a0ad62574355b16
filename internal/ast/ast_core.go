// Package ast defines the stable AST node shapes the compiler core consumes.
//
// The AST is external input: something upstream (an out-of-scope
// lexer/parser) has already built it. This package exists only to give
// the compiler a concrete Go shape to walk. Every node is identity-bearing
// via a NodeId assigned from an Arena, rather than via pointer identity,
// so that side tables (capture sets, suspension records, hoisted-field
// maps) can be keyed by a plain comparable value instead of a *Node map.
package ast

// NodeId identifies an AST node across every analysis side table.
type NodeId int

// Arena assigns monotonically increasing NodeIds. One Arena per parsed
// program; the same Arena must be used for every node of that program so
// NodeId stays unique within it.
type Arena struct {
	next NodeId
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Alloc returns the next unused NodeId.
func (a *Arena) Alloc() NodeId {
	a.next++
	return a.next
}

// Node is the base interface for every AST node.
type Node interface {
	ID() NodeId
	Line() int
}

// base is embedded by every concrete node to provide ID()/Line().
type base struct {
	id   NodeId
	line int
}

func (b base) ID() NodeId { return b.id }
func (b base) Line() int  { return b.line }

func newBase(a *Arena, line int) base {
	return base{id: a.Alloc(), line: line}
}

// Statement is a Node that appears in statement position.
type Statement interface {
	Node
	statementNode()
}

// Expression is a Node that appears in expression position.
type Expression interface {
	Node
	expressionNode()
}

// FuncLike is any function-like node: a top-level function, a class
// method, an arrow function, a class-expression method, or an accessor.
// The closure analyser and suspension analyser key every side table by
// FuncLike.ID(), so the same node is used as the lookup key across
// analyses.
type FuncLike interface {
	Node
	FuncBody() []Statement
	FuncParams() []*Param
	IsArrow() bool
	IsAsync() bool
	IsGenerator() bool
	// FuncName is "" for anonymous arrows/expressions.
	FuncName() string
}

// Program is the root of a parsed file.
type Program struct {
	base
	Statements []Statement
}

func NewProgram(a *Arena, line int, stmts []Statement) *Program {
	return &Program{base: newBase(a, line), Statements: stmts}
}

// Param is a function parameter.
type Param struct {
	Name       string
	Type       Type
	Default    Expression // nil if no default
	IsRest     bool       // `...args`
	IsOptional bool       // `x?: T`
}
