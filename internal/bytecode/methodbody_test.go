package bytecode

import (
	"bytes"
	"testing"
)

func TestTinyRoundTrip(t *testing.T) {
	body := &MethodBody{Code: []byte{byte(Nop), byte(Ret)}, MaxStack: 1}
	if !body.IsTiny() {
		t.Fatalf("expected tiny body")
	}
	enc := body.Encode()
	if enc[0]&0x03 != 0x02 {
		t.Fatalf("expected tiny header tag bits, got %#x", enc[0])
	}
	if int(enc[0]>>2) != len(body.Code) {
		t.Fatalf("tiny header code size mismatch: got %d want %d", enc[0]>>2, len(body.Code))
	}

	decoded, n, err := DecodeMethodBody(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d, want %d", n, len(enc))
	}
	if !bytes.Equal(decoded.Code, body.Code) {
		t.Fatalf("code mismatch: got %v want %v", decoded.Code, body.Code)
	}
}

func TestFatRoundTripNoExceptions(t *testing.T) {
	code := make([]byte, 70) // >= 64 forces fat form
	for i := range code {
		code[i] = byte(Nop)
	}
	code[len(code)-1] = byte(Ret)
	body := &MethodBody{Code: code, MaxStack: 9, LocalsSigToken: 0x11000001, InitLocals: true}
	if body.IsTiny() {
		t.Fatalf("expected fat body due to code length")
	}
	enc := body.Encode()

	decoded, n, err := DecodeMethodBody(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d, want %d", n, len(enc))
	}
	if !bytes.Equal(decoded.Code, body.Code) {
		t.Fatalf("code mismatch")
	}
	if decoded.MaxStack != body.MaxStack {
		t.Fatalf("max stack mismatch: got %d want %d", decoded.MaxStack, body.MaxStack)
	}
	if decoded.LocalsSigToken != body.LocalsSigToken {
		t.Fatalf("locals sig mismatch")
	}
	if !decoded.InitLocals {
		t.Fatalf("expected init locals preserved")
	}
}

func TestFatRoundTripWithSmallExceptions(t *testing.T) {
	code := []byte{byte(Nop), byte(ThrowOp), byte(Leave), 0, 0, 0, 0, byte(Ret)}
	body := &MethodBody{
		Code:     code,
		MaxStack: 2,
		Clauses: []ExceptionClause{
			{Kind: ClauseCatch, TryOffset: 0, TryLength: 2, HandlerOffset: 3, HandlerLength: 4, CatchTypeOrFilterOffset: 0x02000001},
		},
	}
	if body.IsTiny() {
		t.Fatalf("bodies with exception regions must never be tiny")
	}
	enc := body.Encode()

	decoded, n, err := DecodeMethodBody(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d of %d bytes", n, len(enc))
	}
	if len(decoded.Clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(decoded.Clauses))
	}
	got := decoded.Clauses[0]
	want := body.Clauses[0]
	if got != want {
		t.Fatalf("clause mismatch: got %+v want %+v", got, want)
	}
}

func TestFatExceptionFormWhenOffsetsOverflowSmall(t *testing.T) {
	body := &MethodBody{
		Code:     []byte{byte(Nop)},
		MaxStack: 1,
		Clauses: []ExceptionClause{
			{Kind: ClauseFinally, TryOffset: 0x10000, TryLength: 1, HandlerOffset: 2, HandlerLength: 1},
		},
	}
	enc := body.encodeExceptions()
	if enc[0] != 0x41 {
		t.Fatalf("expected fat exception kind byte 0x41, got %#x", enc[0])
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tok := MakeToken(TableMethodDef, 0x00ABCDEF&0x00FFFFFF)
	if tok.Table() != TableMethodDef {
		t.Fatalf("table tag mismatch")
	}
	code := make([]byte, 4)
	WriteToken(code, 0, tok)
	if ReadToken(code, 0) != tok {
		t.Fatalf("token round trip failed")
	}
}
