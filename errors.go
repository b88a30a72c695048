package smt

import "errors"

// ErrNodeNotFound is returned by a NodeStore when an address has no
// encoded node. Surfacing it during a walk means the store and the tree it
// is backing have fallen out of sync; the tree engine treats it as fatal.
var ErrNodeNotFound = errors.New("smt: node not found")

// ErrValueNotFound is returned by a ValueStore when a key hash has no raw
// value recorded.
var ErrValueNotFound = errors.New("smt: value not found")

// ErrMalformedNode is returned by Decode when its input isn't a validly
// tagged 65-byte node encoding.
var ErrMalformedNode = errors.New("smt: malformed node encoding")

// ErrKeyAbsent is returned by Tree.Delete when the key being deleted isn't
// present in the tree. Tree.Update swallows this error when an empty-value
// update targets an already-absent key, returning the prior root unchanged
// instead.
var ErrKeyAbsent = errors.New("smt: key already empty")

// ErrInvariantViolation is returned when the walk encounters a shape the
// tree's invariants rule out, such as an Internal node where a Leaf was
// expected. It always indicates a bug or store corruption, never ordinary
// misuse.
var ErrInvariantViolation = errors.New("smt: invariant violation")
