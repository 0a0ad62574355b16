package bytecode

import (
	"encoding/binary"
	"fmt"
)

// ClauseKind is the fixed set of exception clause kinds.
type ClauseKind uint16

const (
	ClauseCatch   ClauseKind = 0
	ClauseFilter  ClauseKind = 1
	ClauseFinally ClauseKind = 2
	ClauseFault   ClauseKind = 4
)

// ExceptionClause is one try/handler region of a method body.
type ExceptionClause struct {
	Kind          ClauseKind
	TryOffset     uint32
	TryLength     uint32
	HandlerOffset uint32
	HandlerLength uint32
	// CatchTypeOrFilterOffset holds the catch type's metadata token when
	// Kind == ClauseCatch, or the filter's code offset when Kind ==
	// ClauseFilter. Unused (0) for Finally/Fault.
	CatchTypeOrFilterOffset uint32
}

// MethodBody is the decoded, in-memory form of a method's code plus its
// exception regions, independent of tiny/fat wire encoding.
type MethodBody struct {
	Code           []byte
	MaxStack       int
	LocalsSigToken uint32 // 0 if the method declares no locals
	InitLocals     bool
	Clauses        []ExceptionClause
}

// IsTiny reports whether this body must be emitted in the tiny header
// form: no exception regions, no locals signature, code length < 64,
// max stack <= 8.
func (m *MethodBody) IsTiny() bool {
	return len(m.Clauses) == 0 && m.LocalsSigToken == 0 && len(m.Code) < 64 && m.MaxStack <= 8
}

func (m *MethodBody) smallExceptionFormFits() bool {
	if 4+len(m.Clauses)*12 > 0xFF {
		return false
	}
	for _, c := range m.Clauses {
		if c.TryOffset > 0xFFFF || c.HandlerOffset > 0xFFFF ||
			c.TryLength > 0xFF || c.HandlerLength > 0xFF {
			return false
		}
	}
	return true
}

// Encode serializes the method body to its on-disk representation,
// choosing tiny or fat body form, and small or fat exception region
// form for any attached clauses.
func (m *MethodBody) Encode() []byte {
	if m.IsTiny() {
		return m.encodeTiny()
	}
	return m.encodeFat()
}

func (m *MethodBody) encodeTiny() []byte {
	out := make([]byte, 0, 1+len(m.Code))
	header := byte(len(m.Code)<<2) | 0x02
	out = append(out, header)
	out = append(out, m.Code...)
	return out
}

func (m *MethodBody) encodeFat() []byte {
	flags := uint16(0x3003)
	if m.InitLocals {
		flags |= 0x10
	}
	hasSections := len(m.Clauses) > 0
	if hasSections {
		flags |= 0x08
	}

	out := make([]byte, 12)
	binary.LittleEndian.PutUint16(out[0:2], flags)
	binary.LittleEndian.PutUint16(out[2:4], uint16(m.MaxStack))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(m.Code)))
	binary.LittleEndian.PutUint32(out[8:12], m.LocalsSigToken)
	out = append(out, m.Code...)

	for len(out)%4 != 0 {
		out = append(out, 0)
	}

	if hasSections {
		out = append(out, m.encodeExceptions()...)
	}
	return out
}

func (m *MethodBody) encodeExceptions() []byte {
	if m.smallExceptionFormFits() {
		return m.encodeSmallExceptions()
	}
	return m.encodeFatExceptions()
}

func (m *MethodBody) encodeSmallExceptions() []byte {
	size := 4 + len(m.Clauses)*12
	out := make([]byte, 4, size)
	out[0] = 0x01
	out[1] = byte(size)
	// out[2], out[3] stay zero (reserved).
	for _, c := range m.Clauses {
		buf := make([]byte, 12)
		binary.LittleEndian.PutUint16(buf[0:2], uint16(c.Kind))
		binary.LittleEndian.PutUint16(buf[2:4], uint16(c.TryOffset))
		buf[4] = byte(c.TryLength)
		binary.LittleEndian.PutUint16(buf[5:7], uint16(c.HandlerOffset))
		buf[7] = byte(c.HandlerLength)
		binary.LittleEndian.PutUint32(buf[8:12], c.CatchTypeOrFilterOffset)
		out = append(out, buf...)
	}
	return out
}

func (m *MethodBody) encodeFatExceptions() []byte {
	size := 4 + len(m.Clauses)*24
	out := make([]byte, 4, size)
	out[0] = 0x41
	out[1] = byte(size)
	out[2] = byte(size >> 8)
	out[3] = byte(size >> 16)
	for _, c := range m.Clauses {
		buf := make([]byte, 24)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(c.Kind))
		binary.LittleEndian.PutUint32(buf[4:8], c.TryOffset)
		binary.LittleEndian.PutUint32(buf[8:12], c.TryLength)
		binary.LittleEndian.PutUint32(buf[12:16], c.HandlerOffset)
		binary.LittleEndian.PutUint32(buf[16:20], c.HandlerLength)
		binary.LittleEndian.PutUint32(buf[20:24], c.CatchTypeOrFilterOffset)
		out = append(out, buf...)
	}
	return out
}

// DecodeMethodBody parses a method body from its on-disk wire form. Used
// by the assembly reference rewriter to read a source module's method
// bodies before retargeting them.
func DecodeMethodBody(data []byte) (*MethodBody, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("bytecode: empty method body")
	}

	if data[0]&0x03 == 0x02 {
		codeSize := int(data[0] >> 2)
		if 1+codeSize > len(data) {
			return nil, 0, fmt.Errorf("bytecode: truncated tiny method body")
		}
		code := append([]byte(nil), data[1:1+codeSize]...)
		return &MethodBody{Code: code}, 1 + codeSize, nil
	}

	if len(data) < 12 {
		return nil, 0, fmt.Errorf("bytecode: truncated fat method header")
	}
	flags := binary.LittleEndian.Uint16(data[0:2])
	if flags&0x3 != 0x3 {
		return nil, 0, fmt.Errorf("bytecode: invalid fat method header flags %#x", flags)
	}
	maxStack := int(binary.LittleEndian.Uint16(data[2:4]))
	codeSize := int(binary.LittleEndian.Uint32(data[4:8]))
	localsSig := binary.LittleEndian.Uint32(data[8:12])
	if 12+codeSize > len(data) {
		return nil, 0, fmt.Errorf("bytecode: truncated fat method body")
	}
	code := append([]byte(nil), data[12:12+codeSize]...)

	consumed := 12 + codeSize
	for consumed%4 != 0 {
		consumed++
	}

	body := &MethodBody{
		Code:           code,
		MaxStack:       maxStack,
		LocalsSigToken: localsSig,
		InitLocals:     flags&0x10 != 0,
	}

	if flags&0x08 != 0 {
		clauses, n, err := decodeExceptions(data[consumed:])
		if err != nil {
			return nil, 0, err
		}
		body.Clauses = clauses
		consumed += n
	}

	return body, consumed, nil
}

func decodeExceptions(data []byte) ([]ExceptionClause, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("bytecode: truncated exception section header")
	}
	kind := data[0]
	isFat := kind&0x40 != 0
	switch {
	case !isFat:
		size := int(data[1])
		n := (size - 4) / 12
		var clauses []ExceptionClause
		off := 4
		for i := 0; i < n; i++ {
			c := data[off : off+12]
			clauses = append(clauses, ExceptionClause{
				Kind:                    ClauseKind(binary.LittleEndian.Uint16(c[0:2])),
				TryOffset:               uint32(binary.LittleEndian.Uint16(c[2:4])),
				TryLength:               uint32(c[4]),
				HandlerOffset:           uint32(binary.LittleEndian.Uint16(c[5:7])),
				HandlerLength:           uint32(c[7]),
				CatchTypeOrFilterOffset: binary.LittleEndian.Uint32(c[8:12]),
			})
			off += 12
		}
		return clauses, size, nil
	default:
		size := int(data[1]) | int(data[2])<<8 | int(data[3])<<16
		n := (size - 4) / 24
		var clauses []ExceptionClause
		off := 4
		for i := 0; i < n; i++ {
			c := data[off : off+24]
			clauses = append(clauses, ExceptionClause{
				Kind:                    ClauseKind(binary.LittleEndian.Uint32(c[0:4])),
				TryOffset:               binary.LittleEndian.Uint32(c[4:8]),
				TryLength:               binary.LittleEndian.Uint32(c[8:12]),
				HandlerOffset:           binary.LittleEndian.Uint32(c[12:16]),
				HandlerLength:           binary.LittleEndian.Uint32(c[16:20]),
				CatchTypeOrFilterOffset: binary.LittleEndian.Uint32(c[20:24]),
			})
			off += 24
		}
		return clauses, size, nil
	}
}
