package smt_test

import (
	"testing"

	. "github.com/smtree/smt"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Node{
		NewLeaf(DigestOf([]byte("k")), DigestOf([]byte("v"))),
		NewInternal(DigestOf([]byte("l")), DigestOf([]byte("r"))),
		NewInternal(Placeholder, DigestOf([]byte("r"))),
		NewLeaf(Placeholder, Placeholder),
	}

	for _, n := range cases {
		addr, raw := Encode(n)
		if want := DigestOf(raw[:]); addr != want {
			t.Fatalf("Encode address mismatch: got %s, want %s", addr, want)
		}
		got, err := Decode(raw[:])
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != n {
			t.Fatalf("Decode(Encode(n)) = %+v, want %+v", got, n)
		}
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	if _, err := Decode(make([]byte, EncodedSize-1)); err == nil {
		t.Fatal("expected an error for a short buffer")
	}
	if _, err := Decode(make([]byte, EncodedSize+1)); err == nil {
		t.Fatal("expected an error for a long buffer")
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	raw := make([]byte, EncodedSize)
	raw[0] = 2
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected an error for an unrecognized tag")
	}
}

func TestNodeAccessors(t *testing.T) {
	kh, vh := DigestOf([]byte("k")), DigestOf([]byte("v"))
	leaf := NewLeaf(kh, vh)
	if !leaf.IsLeaf() {
		t.Fatal("NewLeaf should report IsLeaf")
	}
	if leaf.KeyHash() != kh || leaf.ValueHash() != vh {
		t.Fatal("leaf accessors returned the wrong digests")
	}

	l, r := DigestOf([]byte("l")), DigestOf([]byte("r"))
	internal := NewInternal(l, r)
	if internal.IsLeaf() {
		t.Fatal("NewInternal should not report IsLeaf")
	}
	if internal.Left() != l || internal.Right() != r {
		t.Fatal("internal accessors returned the wrong digests")
	}
}
