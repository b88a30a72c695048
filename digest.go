package smt

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2s"
)

// DigestSize is the length in bytes of a Digest.
const DigestSize = 32

// Depth is the number of bits in a Digest, and so the maximum depth of the
// tree: one level per key-hash bit.
const Depth = DigestSize * 8

// Digest is a 32-byte Blake2s-256 output. It identifies both tree nodes (by
// the hash of their encoded form) and tree paths (by the hash of a key).
type Digest [DigestSize]byte

// Placeholder is the all-zero digest. It denotes an empty subtree, and is
// the root of a tree that holds no keys.
var Placeholder = Digest{}

// IsPlaceholder reports whether d is the all-zero digest.
func (d Digest) IsPlaceholder() bool {
	return d == Placeholder
}

// DigestOf returns the Blake2s-256 digest of data.
func DigestOf(data []byte) Digest {
	return Digest(blake2s.Sum256(data))
}

// Bit returns bit i of d, indexed MSB-first from 0: bit i lives in byte
// i/8, and within that byte it's bit 7-(i%8) (the most significant unread
// bit). Changing this ordering changes every root in the tree.
func (d Digest) Bit(i int) bool {
	if i < 0 || i >= Depth {
		panic("smt: bit index out of range")
	}
	byteIndex := i / 8
	bitIndex := 7 - i%8
	return (d[byteIndex]>>bitIndex)&1 != 0
}

// CommonPrefixLen returns the number of leading bits a and b share, in
// [0, Depth].
func CommonPrefixLen(a, b Digest) int {
	for i := 0; i < Depth; i++ {
		if a.Bit(i) != b.Bit(i) {
			return i
		}
	}
	return Depth
}

// ParseDigest parses the lowercase hex form String produces back into a
// Digest, for CLI flags and store backends that persist roots as text.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("smt: parsing digest: %w", err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("smt: digest is %d bytes, want %d", len(raw), DigestSize)
	}
	copy(d[:], raw)
	return d, nil
}

// String renders d as lowercase hex, for logging and error messages.
func (d Digest) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 2*DigestSize)
	for i, b := range d {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0xf]
	}
	return string(buf)
}
