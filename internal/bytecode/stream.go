package bytecode

import (
	"encoding/binary"
	"math"
)

// Stream is an instruction stream under construction: a byte buffer
// plus parallel per-offset line numbers, carrying CIL-shaped
// opcodes/tokens.
type Stream struct {
	Code  []byte
	Lines []int

	// UserStrings holds the literal string values pushed by LdStr, indexed
	// by the token row the emitter assigned (table 0x70). Populated by
	// the emitter; consumed by the runtime/serializer.
	UserStrings []string

	// MaxStack tracks the deepest the emitter's int32 operand discipline
	// projects the evaluation stack to reach, needed for the fat method
	// header.
	MaxStack int
}

// NewStream creates an empty instruction stream.
func NewStream() *Stream {
	return &Stream{Code: make([]byte, 0, 64), Lines: make([]int, 0, 64)}
}

// Len returns the number of bytes emitted so far.
func (s *Stream) Len() int { return len(s.Code) }

// WriteByte appends a raw byte with line info.
func (s *Stream) WriteByte(b byte, line int) {
	s.Code = append(s.Code, b)
	s.Lines = append(s.Lines, line)
}

// Emit appends an opcode with no operand.
func (s *Stream) Emit(op Opcode, line int) {
	s.WriteByte(byte(op), line)
}

// EmitI4 appends an opcode followed by a little-endian int32 operand.
func (s *Stream) EmitI4(op Opcode, val int32, line int) {
	s.Emit(op, line)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(val))
	for _, x := range b {
		s.WriteByte(x, line)
	}
}

// EmitR8 appends an opcode followed by a little-endian float64 operand.
func (s *Stream) EmitR8(op Opcode, val float64, line int) {
	s.Emit(op, line)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(val))
	for _, x := range b {
		s.WriteByte(x, line)
	}
}

// EmitU2 appends an opcode followed by a little-endian uint16 operand
// (used for ldloc/stloc/ldarg/starg slot indices).
func (s *Stream) EmitU2(op Opcode, val uint16, line int) {
	s.Emit(op, line)
	s.WriteByte(byte(val), line)
	s.WriteByte(byte(val>>8), line)
}

// EmitToken appends an opcode followed by its 4-byte metadata token
// operand. op must satisfy HasTokenOperand.
func (s *Stream) EmitToken(op Opcode, tok Token, line int) {
	s.Emit(op, line)
	b := tok.Bytes()
	for _, x := range b {
		s.WriteByte(x, line)
	}
}

// EmitJump appends a branch opcode with a placeholder int32 operand and
// returns the operand's offset, to be patched later via PatchJump.
func (s *Stream) EmitJump(op Opcode, line int) int {
	s.Emit(op, line)
	off := len(s.Code)
	s.WriteByte(0xff, line)
	s.WriteByte(0xff, line)
	s.WriteByte(0xff, line)
	s.WriteByte(0xff, line)
	return off
}

// PatchJump overwrites the int32 placeholder at offset with the (signed)
// distance from just past the operand to the current stream end.
func (s *Stream) PatchJump(offset int) {
	target := len(s.Code) - (offset + 4)
	binary.LittleEndian.PutUint32(s.Code[offset:offset+4], uint32(int32(target)))
}

// Label returns the current stream length, usable as a backward-branch
// target with EmitLoop.
func (s *Stream) Label() int { return len(s.Code) }

// EmitLoop appends a branch opcode whose operand is the signed distance
// back to target.
func (s *Stream) EmitLoop(op Opcode, target int, line int) {
	s.Emit(op, line)
	dist := target - (len(s.Code) + 4)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(int32(dist)))
	for _, x := range b {
		s.WriteByte(x, line)
	}
}

// AddUserString appends a string literal and returns its UserString
// token; an equal string already in the table is not reused.
func (s *Stream) AddUserString(v string) Token {
	s.UserStrings = append(s.UserStrings, v)
	return MakeToken(TableUserString, uint32(len(s.UserStrings)))
}
