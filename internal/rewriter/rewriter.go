// Package rewriter retargets a compiled module image onto a concrete set
// of runtime assemblies: it copies every metadata table into a fresh
// module, builds an old-handle-to-new-handle map per table, and patches
// every method body's token operands to point at the copies.
//
// Grounded on the decode/remap/re-encode shape of an instruction-operand
// rewrite pass over a fixed binary instruction format (the same texture
// as an assembler's operand-patching stage), adapted here from a
// register/immediate operand model to a metadata-token operand model.
package rewriter

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/module"
)

// corlibName is the well-known name the driver always gives the runtime's
// own assembly, and the fallback target when a type reference's original
// assembly has no corresponding entry in the requested target set.
const corlibName = "System.Private.CoreLib"

// HandleMaps records, per metadata table, the map from an old module's
// token to the corresponding token in the rewritten module. Exposed so
// callers (and tests) can check the "every old handle has exactly one
// new handle" bijection directly instead of only through its effects.
type HandleMaps struct {
	TypeRef       map[bytecode.Token]bytecode.Token
	TypeDef       map[bytecode.Token]bytecode.Token
	MethodDef     map[bytecode.Token]bytecode.Token
	MemberRef     map[bytecode.Token]bytecode.Token
	StandAloneSig map[bytecode.Token]bytecode.Token
	TypeSpec      map[bytecode.Token]bytecode.Token
	MethodSpec    map[bytecode.Token]bytecode.Token
	UserString    map[bytecode.Token]bytecode.Token
}

func newHandleMaps() *HandleMaps {
	return &HandleMaps{
		TypeRef:       map[bytecode.Token]bytecode.Token{},
		TypeDef:       map[bytecode.Token]bytecode.Token{},
		MethodDef:     map[bytecode.Token]bytecode.Token{},
		MemberRef:     map[bytecode.Token]bytecode.Token{},
		StandAloneSig: map[bytecode.Token]bytecode.Token{},
		TypeSpec:      map[bytecode.Token]bytecode.Token{},
		MethodSpec:    map[bytecode.Token]bytecode.Token{},
		UserString:    map[bytecode.Token]bytecode.Token{},
	}
}

func (h *HandleMaps) tableFor(tag bytecode.TableTag) (map[bytecode.Token]bytecode.Token, bool) {
	switch tag {
	case bytecode.TableTypeRef:
		return h.TypeRef, true
	case bytecode.TableTypeDef:
		return h.TypeDef, true
	case bytecode.TableMethodDef:
		return h.MethodDef, true
	case bytecode.TableMemberRef:
		return h.MemberRef, true
	case bytecode.TableStandAloneSig:
		return h.StandAloneSig, true
	case bytecode.TableTypeSpec:
		return h.TypeSpec, true
	case bytecode.TableMethodSpec:
		return h.MethodSpec, true
	case bytecode.TableUserString:
		return h.UserString, true
	default:
		return nil, false
	}
}

// remap resolves an old token to its new-module counterpart. Every
// table-tag byte the opcode set's token operands can carry must already
// have a map, or the opcode list and this switch have drifted apart.
func (h *HandleMaps) remap(old bytecode.Token) (bytecode.Token, error) {
	table, ok := h.tableFor(old.Table())
	if !ok {
		return 0, fmt.Errorf("token %#08x names an unrewritable table", uint32(old))
	}
	newTok, ok := table[old]
	if !ok {
		return 0, fmt.Errorf("token %#08x has no entry in the rewritten module (dangling reference)", uint32(old))
	}
	return newTok, nil
}

// Result is the outcome of a successful rewrite.
type Result struct {
	Module  *module.Module
	Maps    *HandleMaps
	Summary string
}

// Rewrite copies src into a new module image retargeted onto targets,
// the minimum set of runtime assemblies the caller wants the image to
// reference. An empty targets infers the set from src's own assembly
// references, the same default internal/compileroptions documents for
// an omitted target_runtime_assemblies list.
//
// Any error here is fatal to the whole rewrite: unlike the emitter's
// accumulate-and-continue policy for structural source errors, a
// dangling metadata reference or an unsupported opcode means the source
// module itself is malformed, and there is no well-formed partial image
// to hand back.
func Rewrite(src *module.Module, targets []module.AssemblyRef) (*Result, error) {
	if src == nil {
		return nil, fmt.Errorf("rewriter: nil source module")
	}

	dst := module.New(src.Name)
	assemblyIndex := copyAssemblyRefs(dst, src, targets)

	maps := newHandleMaps()
	copyTypeRefs(dst, src, maps, assemblyIndex)
	copyStandAloneSigs(dst, src, maps)
	copyTypeSpecs(dst, src, maps)
	methodPairs := copyClassesAndMethods(dst, src, maps)

	if err := copyMethodSpecs(dst, src, maps); err != nil {
		return nil, fmt.Errorf("rewriter: %w", err)
	}
	if err := copyMemberRefs(dst, src, maps); err != nil {
		return nil, fmt.Errorf("rewriter: %w", err)
	}
	copyUserStrings(dst, src, maps)

	oldSize, newSize, err := rewriteMethodBodies(methodPairs, maps)
	if err != nil {
		return nil, fmt.Errorf("rewriter: %w", err)
	}

	return &Result{
		Module: dst,
		Maps:   maps,
		Summary: fmt.Sprintf("rewrote %d methods across %d classes: %s -> %s of method-body bytecode",
			len(methodPairs), len(src.Classes), humanize.Bytes(uint64(oldSize)), humanize.Bytes(uint64(newSize))),
	}, nil
}

// copyAssemblyRefs builds dst's AssemblyRef table from targets (deduped
// by name, corlib forced present), and returns the index every resolved
// assembly name lands at in that table.
func copyAssemblyRefs(dst, src *module.Module, targets []module.AssemblyRef) map[string]int {
	if len(targets) == 0 {
		targets = src.AssemblyRefs
	}

	haveCorlib := false
	for _, t := range targets {
		if t.Name == corlibName {
			haveCorlib = true
			break
		}
	}
	if !haveCorlib {
		targets = append([]module.AssemblyRef{{Name: corlibName}}, targets...)
	}

	index := make(map[string]int, len(targets))
	for _, t := range targets {
		if _, seen := index[t.Name]; seen {
			continue
		}
		index[t.Name] = len(dst.AssemblyRefs)
		dst.AssemblyRefs = append(dst.AssemblyRefs, t)
	}
	return index
}

// resolveAssemblyIndex maps a TypeRef's old ResolutionScope to the new
// AssemblyRefs index it should point at, falling back to corlib when the
// original assembly isn't part of the target set.
func resolveAssemblyIndex(src *module.Module, assemblyIndex map[string]int, oldScope int) int {
	name := corlibName
	if oldScope >= 0 && oldScope < len(src.AssemblyRefs) {
		name = src.AssemblyRefs[oldScope].Name
	}
	if idx, ok := assemblyIndex[name]; ok {
		return idx
	}
	return assemblyIndex[corlibName]
}

// copyTypeRefs rebuilds the TypeRef table against the new assembly
// index, deduplicating rows that become identical once retargeted (two
// TypeRefs that pointed at distinct assemblies for the same type can
// collapse onto one assembly in a narrowed target set).
func copyTypeRefs(dst, src *module.Module, maps *HandleMaps, assemblyIndex map[string]int) {
	type key struct {
		scope int
		ns    string
		name  string
	}
	seen := map[key]bytecode.Token{}
	for i, row := range src.TypeRefs {
		oldTok := bytecode.MakeToken(bytecode.TableTypeRef, uint32(i+1))
		newScope := resolveAssemblyIndex(src, assemblyIndex, row.ResolutionScope)
		k := key{newScope, row.Namespace, row.Name}
		if newTok, ok := seen[k]; ok {
			maps.TypeRef[oldTok] = newTok
			continue
		}
		newTok := dst.AddTypeRef(module.TypeRefRow{ResolutionScope: newScope, Namespace: row.Namespace, Name: row.Name})
		seen[k] = newTok
		maps.TypeRef[oldTok] = newTok
	}
}

// copyStandAloneSigs and copyTypeSpecs copy their tables 1:1: neither row
// shape references another metadata table by field (both are opaque
// signature blobs), so there is nothing to remap beyond the row's own
// token. A signature blob that embedded its own token references would
// need its own recursive patch step; this module's emitters never
// produce one, so that case isn't implemented.
func copyStandAloneSigs(dst, src *module.Module, maps *HandleMaps) {
	for i, row := range src.StandAloneSigs {
		oldTok := bytecode.MakeToken(bytecode.TableStandAloneSig, uint32(i+1))
		dst.StandAloneSigs = append(dst.StandAloneSigs, row)
		newTok := bytecode.MakeToken(bytecode.TableStandAloneSig, uint32(len(dst.StandAloneSigs)))
		maps.StandAloneSig[oldTok] = newTok
	}
}

func copyTypeSpecs(dst, src *module.Module, maps *HandleMaps) {
	for i, row := range src.TypeSpecs {
		oldTok := bytecode.MakeToken(bytecode.TableTypeSpec, uint32(i+1))
		dst.TypeSpecs = append(dst.TypeSpecs, row)
		newTok := bytecode.MakeToken(bytecode.TableTypeSpec, uint32(len(dst.TypeSpecs)))
		maps.TypeSpec[oldTok] = newTok
	}
}

// copyMethodSpecs copies the MethodSpec table, remapping each row's
// Method field (a MethodDef or MemberRef token) through whichever of
// those two maps already covers it. This module never synthesises a
// MethodSpec row today (no generic-method instantiation support), so the
// table is always empty in practice; the remap is still implemented in
// full rather than stubbed, since a dangling Method reference here would
// be exactly the kind of malformed-source condition this pass must
// reject rather than silently drop.
func copyMethodSpecs(dst, src *module.Module, maps *HandleMaps) error {
	for i, row := range src.MethodSpecs {
		oldTok := bytecode.MakeToken(bytecode.TableMethodSpec, uint32(i+1))
		newMethodTok, err := maps.remap(row.Method)
		if err != nil {
			return fmt.Errorf("MethodSpec[%d]: %w", i+1, err)
		}
		dst.MethodSpecs = append(dst.MethodSpecs, module.MethodSpecRow{Method: newMethodTok, Instantiation: row.Instantiation})
		newTok := bytecode.MakeToken(bytecode.TableMethodSpec, uint32(len(dst.MethodSpecs)))
		maps.MethodSpec[oldTok] = newTok
	}
	return nil
}

// methodPair links a source method to its already-declared copy in dst,
// so rewriteMethodBodies can fill in bodies without re-resolving tokens
// back through the class list.
type methodPair struct {
	class  string
	name   string
	oldTok bytecode.Token
	src    *module.Method
	dst    *module.Method
}

// copyClassesAndMethods rebuilds the TypeDef/MethodDef tables class by
// class, preserving declaration order so token rows line up the way
// module.Module.AddClass would assign them fresh. Fields carry no token
// of their own in this module's metadata model (field access always
// goes through a MemberRef by name, never a direct FieldDef reference),
// so there is no FieldDef handle map to build.
func copyClassesAndMethods(dst, src *module.Module, maps *HandleMaps) []methodPair {
	var pairs []methodPair
	for _, c := range src.Classes {
		newClass := &module.Class{Name: c.Name, Kind: c.Kind, Super: c.Super}
		for _, f := range c.Fields {
			newClass.AddField(&module.Field{Name: f.Name, TypeName: f.TypeName, Static: f.Static})
		}
		dst.AddClass(newClass)
		maps.TypeDef[c.Token()] = newClass.Token()

		for _, meth := range c.Methods {
			newMeth := &module.Method{
				Name:       meth.Name,
				ParamTypes: append([]string(nil), meth.ParamTypes...),
				ReturnType: meth.ReturnType,
				Static:     meth.Static,
			}
			newClass.AddMethod(newMeth)
			dst.AssignMethodToken(newMeth)
			maps.MethodDef[meth.Token()] = newMeth.Token()
			pairs = append(pairs, methodPair{class: c.Name, name: meth.Name, oldTok: meth.Token(), src: meth, dst: newMeth})
		}
	}
	return pairs
}

// copyMemberRefs rebuilds the MemberRef table, remapping each row's
// owning-type token (a TypeRef, TypeDef, or TypeSpec handle) through
// whichever map matches its table tag. Runs after every table a
// MemberRef.Class could reference has already been copied.
func copyMemberRefs(dst, src *module.Module, maps *HandleMaps) error {
	for i, row := range src.MemberRefs {
		oldTok := bytecode.MakeToken(bytecode.TableMemberRef, uint32(i+1))
		newClass, err := maps.remap(row.Class)
		if err != nil {
			return fmt.Errorf("MemberRef[%d] %q: %w", i+1, row.Name, err)
		}
		newTok := dst.AddMemberRef(module.MemberRefRow{Class: newClass, Name: row.Name, Signature: row.Signature})
		maps.MemberRef[oldTok] = newTok
	}
	return nil
}

func copyUserStrings(dst, src *module.Module, maps *HandleMaps) {
	for i, s := range src.UserStrings {
		oldTok := bytecode.MakeToken(bytecode.TableUserString, uint32(i+1))
		newTok := dst.AddUserString(s)
		maps.UserString[oldTok] = newTok
	}
}

// rewriteMethodBodies patches every copied method's body in place against
// the already-built handle maps, and returns the summed pre- and
// post-rewrite encoded byte sizes across every method body for the
// caller's size-delta report.
func rewriteMethodBodies(pairs []methodPair, maps *HandleMaps) (oldSize, newSize int, err error) {
	for _, p := range pairs {
		if p.src.Body == nil {
			continue
		}
		oldSize += len(p.src.Body.Encode())

		newBody, err := rewriteBody(p.src.Body, maps)
		if err != nil {
			return 0, 0, fmt.Errorf("%s.%s: %w", p.class, p.name, err)
		}
		p.dst.Body = newBody

		encoded := newBody.Encode()
		newSize += len(encoded)
		if err := verifyBijection(newBody, encoded); err != nil {
			return 0, 0, fmt.Errorf("%s.%s: %w", p.class, p.name, err)
		}
	}
	return oldSize, newSize, nil
}

// rewriteBody copies a method body's code and exception clauses, patches
// every token-bearing operand against maps, and leaves everything else
// (branch offsets, stack-slot indices, literal operands) untouched —
// those never name a metadata table row.
func rewriteBody(body *bytecode.MethodBody, maps *HandleMaps) (*bytecode.MethodBody, error) {
	code := append([]byte(nil), body.Code...)

	for i := 0; i < len(code); {
		op := bytecode.Opcode(code[i])
		if op == bytecode.Switch {
			return nil, fmt.Errorf("switch opcode at offset %d: variable-length jump table rewriting is not supported", i)
		}
		size := bytecode.OperandSize(op)
		if size < 0 {
			return nil, fmt.Errorf("opcode %s at offset %d: unknown operand size", op, i)
		}
		if i+1+size > len(code) {
			return nil, fmt.Errorf("opcode %s at offset %d: truncated operand", op, i)
		}

		if bytecode.HasTokenOperand(op) {
			oldTok := bytecode.ReadToken(code, i+1)
			newTok, err := maps.remap(oldTok)
			if err != nil {
				return nil, fmt.Errorf("opcode %s at offset %d: %w", op, i, err)
			}
			bytecode.WriteToken(code, i+1, newTok)
		}

		i += 1 + size
	}

	clauses := make([]bytecode.ExceptionClause, len(body.Clauses))
	for i, c := range body.Clauses {
		clauses[i] = c
		if c.Kind == bytecode.ClauseCatch && c.CatchTypeOrFilterOffset != 0 {
			newTok, err := maps.remap(bytecode.Token(c.CatchTypeOrFilterOffset))
			if err != nil {
				return nil, fmt.Errorf("exception clause %d catch type: %w", i, err)
			}
			clauses[i].CatchTypeOrFilterOffset = uint32(newTok)
		}
	}

	localsSig := body.LocalsSigToken
	if localsSig != 0 {
		newSig, err := maps.remap(bytecode.Token(localsSig))
		if err != nil {
			return nil, fmt.Errorf("locals signature: %w", err)
		}
		localsSig = uint32(newSig)
	}

	return &bytecode.MethodBody{
		Code:           code,
		MaxStack:       body.MaxStack,
		LocalsSigToken: localsSig,
		InitLocals:     body.InitLocals,
		Clauses:        clauses,
	}, nil
}

// verifyBijection re-decodes a freshly encoded body and checks it comes
// back byte-identical to what was patched, the round-trip property the
// wire format's own Encode/DecodeMethodBody pair exists to guarantee. A
// mismatch here means the rewrite itself produced a body that doesn't
// satisfy its own wire format, which is a rewriter bug, not a source
// error, and is always fatal.
func verifyBijection(body *bytecode.MethodBody, encoded []byte) error {
	decoded, n, err := bytecode.DecodeMethodBody(encoded)
	if err != nil {
		return fmt.Errorf("re-decoding rewritten body: %w", err)
	}
	if n != len(encoded) {
		return fmt.Errorf("re-decoding rewritten body: consumed %d of %d encoded bytes", n, len(encoded))
	}
	if !bytes.Equal(decoded.Code, body.Code) {
		return fmt.Errorf("re-decoded body code does not match the rewritten code")
	}
	if len(decoded.Clauses) != len(body.Clauses) {
		return fmt.Errorf("re-decoded body has %d exception clauses, want %d", len(decoded.Clauses), len(body.Clauses))
	}
	for i := range body.Clauses {
		if decoded.Clauses[i] != body.Clauses[i] {
			return fmt.Errorf("re-decoded exception clause %d does not match", i)
		}
	}
	return nil
}
