package smt

import (
	"context"
	"sync"
)

// NodeStore is the content-addressed mapping from a node's digest to its
// 65-byte encoding. Implementations need not be transactional: the tree
// engine orders its writes so that a returned root is always reachable,
// and tolerates orphaned entries left behind by a failed or superseded
// mutation.
type NodeStore interface {
	// GetNode returns the encoded node at addr, or ErrNodeNotFound.
	GetNode(ctx context.Context, addr Digest) ([EncodedSize]byte, error)
	// PutNode stores raw at addr. It is idempotent: by construction the
	// same addr is never paired with different bytes.
	PutNode(ctx context.Context, addr Digest, raw [EncodedSize]byte) error
	// DeleteNode removes addr. It tolerates a missing address.
	DeleteNode(ctx context.Context, addr Digest) error
}

// ValueStore holds the raw value bytes behind each key hash, keyed by the
// hash of the key (not the hash of the value), so Tree.Get is O(1) instead
// of a tree walk.
type ValueStore interface {
	// GetValue returns the raw value stored for keyHash, or ErrValueNotFound.
	GetValue(ctx context.Context, keyHash Digest) ([]byte, error)
	// PutValue stores value for keyHash, replacing any prior value.
	PutValue(ctx context.Context, keyHash Digest, value []byte) error
	// DeleteValue removes the value for keyHash. It tolerates a missing key.
	DeleteValue(ctx context.Context, keyHash Digest) error
}

// MemoryStore is the in-memory NodeStore/ValueStore reference
// implementation: two maps guarded by a single lock. It is safe for
// concurrent reads, and for a single writer at a time serialized by the
// caller; it does not itself arbitrate between concurrent writers.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[Digest][EncodedSize]byte
	values map[Digest][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:  make(map[Digest][EncodedSize]byte),
		values: make(map[Digest][]byte),
	}
}

var (
	_ NodeStore  = (*MemoryStore)(nil)
	_ ValueStore = (*MemoryStore)(nil)
)

func (s *MemoryStore) GetNode(_ context.Context, addr Digest) ([EncodedSize]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.nodes[addr]
	if !ok {
		return [EncodedSize]byte{}, ErrNodeNotFound
	}
	return raw, nil
}

func (s *MemoryStore) PutNode(_ context.Context, addr Digest, raw [EncodedSize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[addr] = raw
	return nil
}

func (s *MemoryStore) DeleteNode(_ context.Context, addr Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, addr)
	return nil
}

func (s *MemoryStore) GetValue(_ context.Context, keyHash Digest) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[keyHash]
	if !ok {
		return nil, ErrValueNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemoryStore) PutValue(_ context.Context, keyHash Digest, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[keyHash] = cp
	return nil
}

func (s *MemoryStore) DeleteValue(_ context.Context, keyHash Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, keyHash)
	return nil
}
