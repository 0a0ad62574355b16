package bytecode

import "encoding/binary"

// TableTag is the high byte of a metadata token, identifying which
// metadata table a token's row refers to.
type TableTag byte

const (
	TableTypeRef      TableTag = 0x01
	TableTypeDef      TableTag = 0x02
	TableFieldDef      TableTag = 0x04
	TableMethodDef     TableTag = 0x06
	TableMemberRef     TableTag = 0x0A
	TableStandAloneSig TableTag = 0x11
	TableTypeSpec      TableTag = 0x1B
	TableMethodSpec    TableTag = 0x2B
	TableUserString    TableTag = 0x70
)

// Token is a 32-bit metadata token: high byte table tag, low 24 bits row.
type Token uint32

// MakeToken builds a token from a table tag and a 1-based row index.
func MakeToken(tag TableTag, row uint32) Token {
	return Token(uint32(tag)<<24 | (row & 0x00FFFFFF))
}

// Table returns the token's table tag.
func (t Token) Table() TableTag {
	return TableTag(t >> 24)
}

// Row returns the token's 1-based row index within its table.
func (t Token) Row() uint32 {
	return uint32(t) & 0x00FFFFFF
}

// Bytes little-endian encodes the token as it appears in a method body.
func (t Token) Bytes() [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(t))
	return b
}

// ReadToken decodes a little-endian 4-byte token at offset.
func ReadToken(code []byte, offset int) Token {
	return Token(binary.LittleEndian.Uint32(code[offset : offset+4]))
}

// WriteToken overwrites the little-endian 4-byte token at offset in place.
func WriteToken(code []byte, offset int, tok Token) {
	binary.LittleEndian.PutUint32(code[offset:offset+4], uint32(tok))
}
