package primitives

import (
	"bytes"
	"strings"
	"testing"
)

func TestBase64RoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0},
		{0xff, 0xfe, 0x00, 0x01},
		[]byte("hello world"),
		bytes.Repeat([]byte{0xab}, 257),
	}
	for _, in := range cases {
		out, err := FromBase64(ToBase64(in))
		if err != nil {
			t.Fatalf("FromBase64(ToBase64(%v)) error = %v", in, err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("round trip mismatch: got %v, want %v", out, in)
		}
	}
}

func TestToBase64URLSafeNoPadding(t *testing.T) {
	// 0xfb 0xff encodes to characters outside the standard alphabet when
	// URL-safe, and two input bytes force padding in the padded form.
	s := ToBase64([]byte{0xfb, 0xff})
	if strings.ContainsAny(s, "+/=") {
		t.Fatalf("ToBase64 produced non-URL-safe or padded output: %q", s)
	}
}

func TestFromBase64ToleratesPadding(t *testing.T) {
	out, err := FromBase64("aGk=")
	if err != nil {
		t.Fatalf("FromBase64 with padding error = %v", err)
	}
	if string(out) != "hi" {
		t.Fatalf("FromBase64(\"aGk=\") = %q, want \"hi\"", out)
	}
}

func TestFromBase64RejectsGarbage(t *testing.T) {
	if _, err := FromBase64("not base64!!"); err == nil {
		t.Fatal("expected error for invalid input")
	}
}

func TestTextRoundTrip(t *testing.T) {
	cases := []string{"", "hello", "héllo wörld", "日本語", "emoji 🦡 den"}
	for _, s := range cases {
		if got := DecodeText(EncodeText(s)); got != s {
			t.Fatalf("text round trip: got %q, want %q", got, s)
		}
	}
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes(32) error = %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("RandomBytes(32) length = %d", len(a))
	}
	b, _ := RandomBytes(32)
	if bytes.Equal(a, b) {
		t.Fatal("two RandomBytes calls returned identical output")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual([]byte("secret"), []byte("secret")) {
		t.Fatal("equal slices reported unequal")
	}
	if ConstantTimeEqual([]byte("secret"), []byte("secreT")) {
		t.Fatal("unequal slices reported equal")
	}
	// Length mismatch must return false even when the overlapping prefix
	// matches.
	if ConstantTimeEqual([]byte("secret"), []byte("secret-and-more")) {
		t.Fatal("length mismatch reported equal")
	}
	if !ConstantTimeEqual(nil, []byte{}) {
		t.Fatal("nil and empty should compare equal")
	}
}
