package sig

import "testing"

// body encodes "(qqs)" with q=1, q=2, s="abcd" (count includes the
// trailing NUL).
func qqsBody(stringLen uint32, str []byte) []byte {
	b := make([]byte, 4)
	le32put(b[0:2], 0x0001, 2)
	le32put(b[2:4], 0x0002, 2)
	b = append(b, make([]byte, 0)...)
	lenField := make([]byte, 4)
	le32put(lenField, stringLen, 4)
	b = append(b, lenField...)
	b = append(b, str...)
	for len(b)%8 != 0 {
		b = append(b, 0)
	}
	return b
}

func le32put(b []byte, v uint32, n int) {
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func TestValidateQQS(t *testing.T) {
	body := qqsBody(5, []byte("abcd\x00"))
	n := Validate("(qqs)", body)
	if n != 16 {
		t.Fatalf("expected 16 bytes consumed, got %d (body=%v)", n, body)
	}
}

func TestValidateQQSMissingTerminatorFails(t *testing.T) {
	body := qqsBody(4, []byte("abcd"))
	n := Validate("(qqs)", body)
	if n != 0 {
		t.Fatalf("expected 0 (invalid) for missing terminator, got %d", n)
	}
}

func TestValidateScalarTooShort(t *testing.T) {
	if n := Validate("x", []byte{1, 2, 3}); n != 0 {
		t.Errorf("expected 0 for truncated scalar, got %d", n)
	}
}

func TestValidateArrayOfStructs(t *testing.T) {
	// a<(qq)>: count=2, each element is two q's (4 bytes each, no
	// inter-element padding needed since (qq) aligns to 2).
	body := make([]byte, 4)
	le32put(body, 2, 4)
	elem := []byte{1, 0, 2, 0}
	body = append(body, elem...)
	body = append(body, elem...)
	n := Validate("a(qq)", body)
	if n != len(body) {
		t.Fatalf("expected %d bytes consumed, got %d", len(body), n)
	}
}

func TestValidateEmptyStringZeroCount(t *testing.T) {
	body := make([]byte, 4) // count = 0
	n := Validate("s", body)
	if n != 4 {
		t.Fatalf("expected 4 bytes consumed for empty string, got %d", n)
	}
}

func TestValidateIgnoresTrailingBodyBytes(t *testing.T) {
	// A scalar signature only consumes its own element; bytes after it
	// belong to whatever comes next in the enclosing message and are
	// not an error at this level.
	body := append([]byte{1, 0}, 0xFF, 0xFF)
	if n := Validate("q", body); n != 2 {
		t.Errorf("expected 2 bytes consumed, got %d", n)
	}
}
