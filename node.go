package smt

import "fmt"

// EncodedSize is the fixed wire size of an encoded Node: one tag byte plus
// two 32-byte digests. Any change to this layout breaks root compatibility
// with every tree built against the previous layout.
const EncodedSize = 1 + 2*DigestSize

const (
	leafTag     = 0
	internalTag = 1
)

// Kind distinguishes the two node shapes a Node can hold.
type Kind uint8

const (
	// KindLeaf records that the key whose hash is A maps to a value whose
	// hash is B.
	KindLeaf Kind = leafTag
	// KindInternal is a branching node; either child may be Placeholder,
	// denoting an empty subtree.
	KindInternal Kind = internalTag
)

// Node is the tagged union the tree store persists: a Leaf(keyHash,
// valueHash) or an Internal(left, right). It has no identity of its own;
// its address in the node store is the DigestOf its encoding, as returned
// by Encode.
type Node struct {
	Kind Kind
	A, B Digest
}

// NewLeaf builds a Leaf node for the given key hash and value hash.
func NewLeaf(keyHash, valueHash Digest) Node {
	return Node{Kind: KindLeaf, A: keyHash, B: valueHash}
}

// NewInternal builds an Internal node with the given left and right
// children.
func NewInternal(left, right Digest) Node {
	return Node{Kind: KindInternal, A: left, B: right}
}

// IsLeaf reports whether n is a Leaf node.
func (n Node) IsLeaf() bool { return n.Kind == KindLeaf }

// KeyHash returns the key hash of a Leaf node. It is meaningless on an
// Internal node.
func (n Node) KeyHash() Digest { return n.A }

// ValueHash returns the value hash of a Leaf node. It is meaningless on an
// Internal node.
func (n Node) ValueHash() Digest { return n.B }

// Left returns the left child of an Internal node. It is meaningless on a
// Leaf node.
func (n Node) Left() Digest { return n.A }

// Right returns the right child of an Internal node. It is meaningless on a
// Leaf node.
func (n Node) Right() Digest { return n.B }

// Encode serializes n into its 65-byte wire form and returns the digest
// that addresses it in the node store: tag(1) || A(32) || B(32).
func Encode(n Node) (addr Digest, raw [EncodedSize]byte) {
	raw[0] = byte(n.Kind)
	copy(raw[1:1+DigestSize], n.A[:])
	copy(raw[1+DigestSize:], n.B[:])
	return DigestOf(raw[:]), raw
}

// Decode parses the 65-byte wire form produced by Encode. It fails if the
// length is wrong or the tag is unrecognized — the codec is total on valid
// input, and anything else indicates store corruption.
func Decode(raw []byte) (Node, error) {
	if len(raw) != EncodedSize {
		return Node{}, fmt.Errorf("%w: encoded node is %d bytes, want %d", ErrMalformedNode, len(raw), EncodedSize)
	}
	var n Node
	switch raw[0] {
	case leafTag:
		n.Kind = KindLeaf
	case internalTag:
		n.Kind = KindInternal
	default:
		return Node{}, fmt.Errorf("%w: unrecognized tag %d", ErrMalformedNode, raw[0])
	}
	copy(n.A[:], raw[1:1+DigestSize])
	copy(n.B[:], raw[1+DigestSize:])
	return n, nil
}
