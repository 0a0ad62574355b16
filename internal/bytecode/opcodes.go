// Package bytecode defines the CIL-shaped instruction set, metadata
// token encoding, and method-body wire format. It is shared by the
// emitter packages, which produce instruction streams, and the
// assembly reference rewriter, which decodes and re-encodes them.
//
// An Opcode byte enum plus a name table plus stream write helpers, the
// same shape a bytecode VM's chunk/opcode pair takes, with the concrete
// opcode vocabulary replaced by a CIL-shaped one.
package bytecode

// Opcode is a single CIL-shaped instruction.
type Opcode byte

const (
	Nop Opcode = iota
	Dup
	Pop

	// Constants and nil.
	LdcI4
	LdcR8
	LdStr
	LdNull

	// Arithmetic / bitwise.
	Add
	Sub
	Mul
	Div
	Rem
	Neg
	And
	Or
	Xor
	Not
	Shl
	Shr

	// Comparison.
	Ceq
	Cgt
	Clt

	// Branches.
	Br
	Brtrue
	Brfalse
	Beq
	Bne
	Bgt
	Blt
	Bge
	Ble
	Switch

	// Locals / arguments.
	Ldloc
	Stloc
	Ldloca
	Ldarg
	Starg
	Ldarga

	// Fields.
	Ldfld
	Stfld
	Ldflda
	Ldsfld
	Stsfld
	Ldsflda

	// Calls.
	Call
	Callvirt
	Calli
	Newobj
	Ldftn
	Ldvirtftn
	Jmp

	// Casts / boxing.
	Castclass
	Isinst
	Box
	Unbox
	UnboxAny

	// Arrays.
	Newarr
	Ldelem
	Stelem
	Ldelema
	Ldlen

	// Value-type / token operations.
	Initobj
	Ldobj
	Stobj
	Cpobj
	SizeofOp
	Mkrefany
	Refanyval
	Ldtoken

	// Exceptions / control.
	ThrowOp
	Rethrow
	Leave
	Endfinally
	Ret

	// Prefix.
	ConstrainedPrefix
)

var names = map[Opcode]string{
	Nop: "nop", Dup: "dup", Pop: "pop",
	LdcI4: "ldc.i4", LdcR8: "ldc.r8", LdStr: "ldstr", LdNull: "ldnull",
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Rem: "rem", Neg: "neg",
	And: "and", Or: "or", Xor: "xor", Not: "not", Shl: "shl", Shr: "shr",
	Ceq: "ceq", Cgt: "cgt", Clt: "clt",
	Br: "br", Brtrue: "brtrue", Brfalse: "brfalse",
	Beq: "beq", Bne: "bne", Bgt: "bgt", Blt: "blt", Bge: "bge", Ble: "ble",
	Switch: "switch",
	Ldloc:  "ldloc", Stloc: "stloc", Ldloca: "ldloca",
	Ldarg: "ldarg", Starg: "starg", Ldarga: "ldarga",
	Ldfld: "ldfld", Stfld: "stfld", Ldflda: "ldflda",
	Ldsfld: "ldsfld", Stsfld: "stsfld", Ldsflda: "ldsflda",
	Call: "call", Callvirt: "callvirt", Calli: "calli", Newobj: "newobj",
	Ldftn: "ldftn", Ldvirtftn: "ldvirtftn", Jmp: "jmp",
	Castclass: "castclass", Isinst: "isinst",
	Box: "box", Unbox: "unbox", UnboxAny: "unbox.any",
	Newarr: "newarr", Ldelem: "ldelem", Stelem: "stelem",
	Ldelema: "ldelema", Ldlen: "ldlen",
	Initobj: "initobj", Ldobj: "ldobj", Stobj: "stobj", Cpobj: "cpobj",
	SizeofOp: "sizeof", Mkrefany: "mkrefany", Refanyval: "refanyval",
	Ldtoken: "ldtoken",
	ThrowOp: "throw", Rethrow: "rethrow", Leave: "leave", Endfinally: "endfinally",
	Ret:               "ret",
	ConstrainedPrefix: "constrained.",
}

func (op Opcode) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return "unknown"
}

// tokenOperandOpcodes is the fixed set of opcodes whose 4-byte operand is
// a metadata token. The assembly rewriter only patches operands of these
// opcodes.
var tokenOperandOpcodes = map[Opcode]bool{
	Call: true, Callvirt: true, Newobj: true, Ldftn: true, Ldvirtftn: true,
	Jmp: true, Ldfld: true, Stfld: true, Ldsfld: true, Stsfld: true,
	Ldflda: true, Ldsflda: true, Castclass: true, Isinst: true, Newarr: true,
	Box: true, Unbox: true, UnboxAny: true, Initobj: true, Ldobj: true,
	Stobj: true, Cpobj: true, SizeofOp: true, Mkrefany: true, Refanyval: true,
	Ldelema: true, ConstrainedPrefix: true, Ldtoken: true, LdStr: true, Calli: true,
}

// HasTokenOperand reports whether op carries a 4-byte metadata-token
// operand that the rewriter must decode and patch.
func HasTokenOperand(op Opcode) bool {
	return tokenOperandOpcodes[op]
}

// OperandSize returns the number of operand bytes that follow the opcode
// byte itself, or -1 for Switch (whose operand is a length-prefixed
// target table and must be handled specially).
func OperandSize(op Opcode) int {
	switch op {
	case Nop, Dup, Pop, Add, Sub, Mul, Div, Rem, Neg, And, Or, Xor, Not,
		Shl, Shr, Ceq, Cgt, Clt, Ldlen, ThrowOp, Rethrow, Endfinally, Ret,
		LdNull:
		return 0
	case LdcI4, Br, Brtrue, Brfalse, Beq, Bne, Bgt, Blt, Bge, Ble, Leave:
		return 4
	case LdcR8:
		return 8
	case Ldloc, Stloc, Ldloca, Ldarg, Starg, Ldarga:
		return 2
	case Switch:
		return -1
	default:
		if HasTokenOperand(op) {
			return 4
		}
		return 0
	}
}
