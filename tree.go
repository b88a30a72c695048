package smt

import (
	"context"
	"fmt"
)

// Tree is the tree mutation engine: it holds a root digest and drives a
// NodeStore/ValueStore pair through update/delete/get. It is not safe for
// concurrent use; callers needing multi-reader/single-writer semantics must
// serialize around it externally. The tree owns its stores exclusively for
// the duration of a call and runs synchronously to completion.
type Tree struct {
	root   Digest
	nodes  NodeStore
	values ValueStore
}

// New returns a Tree bound to nodes/values, rooted at root if given or at
// Placeholder (the empty tree) otherwise.
func New(nodes NodeStore, values ValueStore, root *Digest) *Tree {
	t := &Tree{nodes: nodes, values: values}
	if root != nil {
		t.root = *root
	}
	return t
}

// Root returns the tree's current root digest.
func (t *Tree) Root() Digest { return t.root }

// SetRoot repoints the tree at root without touching either store. Callers
// pass in a digest previously returned by Root, UpdateForRoot, or another
// tree over the same stores.
func (t *Tree) SetRoot(root Digest) { t.root = root }

// Get returns the value stored for key, or nil if key is absent. It trusts
// the value store directly rather than walking the tree, so it is O(1);
// every mutation keeps the value store and the tree's leaves in agreement.
func (t *Tree) Get(ctx context.Context, key []byte) ([]byte, error) {
	if t.root.IsPlaceholder() {
		return nil, nil
	}
	value, err := t.values.GetValue(ctx, DigestOf(key))
	if err == ErrValueNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// GetByWalk is the alternative lookup that descends the tree instead of
// trusting the value store, for cross-checking the two against each other.
func (t *Tree) GetByWalk(ctx context.Context, key []byte) ([]byte, error) {
	if t.root.IsPlaceholder() {
		return nil, nil
	}
	path := DigestOf(key)
	_, _, terminal, err := t.walk(ctx, path, t.root)
	if err != nil {
		return nil, err
	}
	if terminal == nil || terminal.KeyHash() != path {
		return nil, nil
	}
	value, err := t.values.GetValue(ctx, path)
	if err == ErrValueNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Update inserts or replaces key's value, or deletes key if value is
// empty. An empty-value update for an absent key is a silent no-op: the
// root is left unchanged, matching the public update contract (delete is
// the only operation that surfaces ErrKeyAbsent).
func (t *Tree) Update(ctx context.Context, key, value []byte) error {
	root, err := t.UpdateForRoot(ctx, key, value, t.root)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

// UpdateForRoot applies the update against root and returns the resulting
// root, without mutating the tree's own root field. Tree.Update is
// implemented in terms of it. The stores are changed exactly as Update
// changes them: new nodes and the key's value are written, and the nodes
// the update replaces on root's path are deleted from the node store, so
// root itself may no longer be walkable afterwards.
func (t *Tree) UpdateForRoot(ctx context.Context, key, value []byte, root Digest) (Digest, error) {
	path := DigestOf(key)
	sidenodes, pathnodes, terminal, err := t.walk(ctx, path, root)
	if err != nil {
		return Digest{}, err
	}

	if len(value) == 0 {
		newRoot, err := t.deleteWithSidenodes(ctx, path, sidenodes, pathnodes, terminal)
		if err != nil {
			if err == ErrKeyAbsent {
				return root, nil
			}
			return Digest{}, err
		}
		if err := t.values.DeleteValue(ctx, path); err != nil {
			return Digest{}, err
		}
		return newRoot, nil
	}

	return t.updateWithSidenodes(ctx, path, value, sidenodes, pathnodes, terminal, root)
}

// Delete removes key from the tree, surfacing ErrKeyAbsent if it isn't
// present. Unlike Update(key, ""), it does not swallow that error: callers
// that want delete-or-absent-is-fine semantics should use Update instead.
func (t *Tree) Delete(ctx context.Context, key []byte) error {
	path := DigestOf(key)
	sidenodes, pathnodes, terminal, err := t.walk(ctx, path, t.root)
	if err != nil {
		return err
	}
	newRoot, err := t.deleteWithSidenodes(ctx, path, sidenodes, pathnodes, terminal)
	if err != nil {
		return err
	}
	if err := t.values.DeleteValue(ctx, path); err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// walk descends from root along path's bits, MSB-first, up to Depth steps.
// It returns the traversed node digests (pathnodes) and their untraversed
// siblings (sidenodes), both ordered with index 0 nearest the terminal node
// (pathnodes' last entry is root itself), plus the decoded Leaf the walk
// terminated on, if any. A nil terminal with a non-empty pathnodes means the
// walk bottomed out at a placeholder (no such key can be present below it).
func (t *Tree) walk(ctx context.Context, path, root Digest) (sidenodes, pathnodes []Digest, terminal *Node, err error) {
	pathnodes = []Digest{root}

	if root.IsPlaceholder() {
		return nil, pathnodes, nil, nil
	}

	node, err := t.loadNode(ctx, root)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("walk: loading root: %w", err)
	}
	if node.IsLeaf() {
		return nil, pathnodes, &node, nil
	}

	for depth := 0; depth < Depth; depth++ {
		var side, next Digest
		if path.Bit(depth) {
			side, next = node.Left(), node.Right()
		} else {
			side, next = node.Right(), node.Left()
		}
		sidenodes = append(sidenodes, side)
		pathnodes = append(pathnodes, next)

		if next.IsPlaceholder() {
			reverseDigests(sidenodes)
			reverseDigests(pathnodes)
			return sidenodes, pathnodes, nil, nil
		}

		node, err = t.loadNode(ctx, next)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("walk: loading node at depth %d: %w", depth, err)
		}
		if node.IsLeaf() {
			reverseDigests(sidenodes)
			reverseDigests(pathnodes)
			return sidenodes, pathnodes, &node, nil
		}
	}

	reverseDigests(sidenodes)
	reverseDigests(pathnodes)
	return sidenodes, pathnodes, &node, nil
}

// updateWithSidenodes attaches a new Leaf(path, digest_of(value)) using the
// walk results already collected against root, and bubbles new Internal
// hashes up through sidenodes to produce the new root. It covers attaching
// under an empty root, replacing an existing leaf for the same key, and
// splitting an existing leaf for a different key at their common-prefix
// depth.
//
// Every Internal created here picks its child ordering from path.Bit at
// that node's own depth, not a single bit reused across levels: walk uses
// the per-depth bit to descend, so reconstruction must use the same rule or
// a later walk would take the wrong branch and never find what it just
// wrote.
func (t *Tree) updateWithSidenodes(ctx context.Context, path Digest, value []byte, sidenodes, pathnodes []Digest, terminal *Node, root Digest) (Digest, error) {
	valueHash := DigestOf(value)
	leafAddr, err := t.writeNode(ctx, NewLeaf(path, valueHash))
	if err != nil {
		return Digest{}, err
	}
	nextHash := leafAddr

	if len(pathnodes) == 0 {
		return Digest{}, fmt.Errorf("%w: walk produced no pathnodes", ErrInvariantViolation)
	}
	pathNodeRoot := pathnodes[0]
	commonPrefixCount := Depth

	if !pathNodeRoot.IsPlaceholder() {
		if terminal == nil || !terminal.IsLeaf() {
			return Digest{}, fmt.Errorf("%w: expected leaf at walk terminus", ErrInvariantViolation)
		}

		if terminal.KeyHash() == path {
			if terminal.ValueHash() == valueHash {
				return root, nil
			}
			if err := t.nodes.DeleteNode(ctx, pathNodeRoot); err != nil {
				return Digest{}, err
			}
			if err := t.values.DeleteValue(ctx, path); err != nil {
				return Digest{}, err
			}
		} else {
			commonPrefixCount = CommonPrefixLen(path, terminal.KeyHash())

			var splitter Node
			if path.Bit(commonPrefixCount) {
				splitter = NewInternal(pathNodeRoot, nextHash)
			} else {
				splitter = NewInternal(nextHash, pathNodeRoot)
			}
			addr, err := t.writeNode(ctx, splitter)
			if err != nil {
				return Digest{}, err
			}
			nextHash = addr
		}
	}

	for i := 1; i < len(pathnodes); i++ {
		if err := t.nodes.DeleteNode(ctx, pathnodes[i]); err != nil {
			return Digest{}, err
		}
	}

	n := len(sidenodes)
	start := n
	if commonPrefixCount != Depth {
		start = commonPrefixCount
	}
	for depth := start - 1; depth >= 0; depth-- {
		sidenode := Placeholder
		if idx := n - 1 - depth; idx >= 0 {
			sidenode = sidenodes[idx]
		}
		var node Node
		if path.Bit(depth) {
			node = NewInternal(sidenode, nextHash)
		} else {
			node = NewInternal(nextHash, sidenode)
		}
		addr, err := t.writeNode(ctx, node)
		if err != nil {
			return Digest{}, err
		}
		nextHash = addr
	}

	if err := t.values.PutValue(ctx, path, value); err != nil {
		return Digest{}, err
	}
	return nextHash, nil
}

// deleteWithSidenodes removes the leaf the walk terminated on and
// reconstructs the root by collapsing through the remaining sidenodes.
// Returning Placeholder unconditionally here would leave dangling Internal
// nodes with a single real child whenever siblings survive the delete, so
// collapse absorbs a lone surviving leaf upward instead.
func (t *Tree) deleteWithSidenodes(ctx context.Context, path Digest, sidenodes, pathnodes []Digest, terminal *Node) (Digest, error) {
	if len(pathnodes) == 0 || pathnodes[0].IsPlaceholder() {
		return Digest{}, ErrKeyAbsent
	}
	if terminal == nil || !terminal.IsLeaf() || terminal.KeyHash() != path {
		return Digest{}, ErrKeyAbsent
	}

	for _, addr := range pathnodes {
		if err := t.nodes.DeleteNode(ctx, addr); err != nil {
			return Digest{}, err
		}
	}

	return t.collapse(ctx, path, sidenodes)
}

// collapse rebuilds the root above a leaf's now-placeholder slot, bubbling
// through sidenodes from the leaf upward. An Internal with one placeholder
// child and one Leaf child is never valid: that Leaf must bubble up to
// replace the Internal outright, and keeps bubbling through any further
// placeholder siblings above it until it either reaches the root or meets a
// non-placeholder sibling. At most one Leaf may be absorbed this way: once
// current holds an absorbed Leaf, a further Leaf sidenode is a second,
// distinct leaf that the collapsed one must now be paired with, not merged
// into. Collapsing ends there and a real Internal is (re)built, the same as
// meeting a sibling that is itself an Internal node, and normal bubbling
// resumes for the remaining levels.
func (t *Tree) collapse(ctx context.Context, path Digest, sidenodes []Digest) (Digest, error) {
	current := Placeholder
	collapsible := true
	n := len(sidenodes)

	for i, side := range sidenodes {
		depth := n - 1 - i

		if collapsible {
			if side.IsPlaceholder() {
				continue
			}
			sideNode, err := t.loadNode(ctx, side)
			if err != nil {
				return Digest{}, err
			}
			if sideNode.IsLeaf() && current.IsPlaceholder() {
				current = side
				continue
			}
			collapsible = false
		}

		var node Node
		if path.Bit(depth) {
			node = NewInternal(side, current)
		} else {
			node = NewInternal(current, side)
		}
		addr, err := t.writeNode(ctx, node)
		if err != nil {
			return Digest{}, err
		}
		current = addr
	}

	return current, nil
}

func (t *Tree) loadNode(ctx context.Context, addr Digest) (Node, error) {
	raw, err := t.nodes.GetNode(ctx, addr)
	if err != nil {
		return Node{}, err
	}
	return Decode(raw[:])
}

func (t *Tree) writeNode(ctx context.Context, n Node) (Digest, error) {
	addr, raw := Encode(n)
	if err := t.nodes.PutNode(ctx, addr, raw); err != nil {
		return Digest{}, err
	}
	return addr, nil
}

func reverseDigests(s []Digest) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
