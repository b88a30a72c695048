package smt_test

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/davecgh/go-spew/spew"

	. "github.com/smtree/smt"
)

// randTest is a sequence of operations run against both a Tree and a plain
// map[string]string oracle, checked against each other at every get step
// and once more at the end: this is properties 2 and 7 exercised together
// over arbitrary sequences, rather than one fixed scenario apiece.
type randTest []randTestStep

type randTestStep struct {
	op    int
	key   []byte
	value []byte
	err   error
}

const (
	opUpdate = iota
	opDelete
	opGet
	numOps
)

// Generate implements the quick.Generator interface from testing/quick to
// produce random operation sequences, reusing a small key pool so deletes
// and gets mostly hit keys already inserted.
func (randTest) Generate(r *rand.Rand, size int) reflect.Value {
	var allKeys [][]byte
	genKey := func() []byte {
		if len(allKeys) < 2 || r.Intn(100) > 80 {
			key := make([]byte, 1+r.Intn(16))
			r.Read(key)
			allKeys = append(allKeys, key)
			return key
		}
		return allKeys[r.Intn(len(allKeys))]
	}

	steps := make(randTest, 0, size)
	for i := 0; i < size; i++ {
		step := randTestStep{op: r.Intn(numOps)}
		switch step.op {
		case opUpdate:
			step.key = genKey()
			step.value = make([]byte, 1+r.Intn(32))
			r.Read(step.value)
		case opDelete, opGet:
			step.key = genKey()
		}
		steps = append(steps, step)
	}
	return reflect.ValueOf(steps)
}

func runRandTest(rt randTest) error {
	ctx := context.Background()
	tree := newTree()
	oracle := make(map[string]string)

	for i, step := range rt {
		switch step.op {
		case opUpdate:
			if err := tree.Update(ctx, step.key, step.value); err != nil {
				rt[i].err = err
				return rt[i].err
			}
			oracle[string(step.key)] = string(step.value)
		case opDelete:
			if err := tree.Update(ctx, step.key, nil); err != nil {
				rt[i].err = err
				return rt[i].err
			}
			delete(oracle, string(step.key))
		case opGet:
			got, err := tree.Get(ctx, step.key)
			if err != nil {
				rt[i].err = err
				return rt[i].err
			}
			want, present := oracle[string(step.key)]
			if !present && got != nil {
				rt[i].err = fmt.Errorf("Get(%x) = %q, want absent", step.key, got)
				return rt[i].err
			}
			if present && string(got) != want {
				rt[i].err = fmt.Errorf("Get(%x) = %q, want %q", step.key, got, want)
				return rt[i].err
			}

			gotw, err := tree.GetByWalk(ctx, step.key)
			if err != nil {
				rt[i].err = err
				return rt[i].err
			}
			if string(got) != string(gotw) {
				rt[i].err = fmt.Errorf("Get(%x) = %q but GetByWalk = %q", step.key, got, gotw)
				return rt[i].err
			}
		}
	}

	if len(oracle) == 0 {
		if !tree.Root().IsPlaceholder() {
			return fmt.Errorf("oracle is empty but root is %s, want Placeholder", tree.Root())
		}
	} else if tree.Root().IsPlaceholder() {
		return fmt.Errorf("oracle holds %d keys but root is Placeholder", len(oracle))
	}
	return nil
}

func runRandTestBool(rt randTest) bool {
	return runRandTest(rt) == nil
}

func TestRandomOperationSequences(t *testing.T) {
	t.Parallel()
	if err := quick.Check(runRandTestBool, &quick.Config{MaxCount: 200}); err != nil {
		if cerr, ok := err.(*quick.CheckError); ok {
			t.Fatalf("random test iteration %d failed: %s", cerr.Count, spew.Sdump(cerr.In))
		}
		t.Fatal(err)
	}
}

// TestIdempotentUpdateProperty covers property 3 directly: applying the
// same (key, value) update twice must leave the root and stores unchanged.
func TestIdempotentUpdateProperty(t *testing.T) {
	f := func(key, value []byte) bool {
		if len(value) == 0 {
			return true
		}
		ctx := context.Background()
		tree := newTree()
		if err := tree.Update(ctx, key, value); err != nil {
			t.Fatalf("first update: %v", err)
		}
		root1 := tree.Root()
		if err := tree.Update(ctx, key, value); err != nil {
			t.Fatalf("second update: %v", err)
		}
		return tree.Root() == root1
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

// TestEncodeDecodeRoundTripProperty covers property 8 over arbitrary
// digests rather than the fixed cases in TestEncodeDecodeRoundTrip.
func TestEncodeDecodeRoundTripProperty(t *testing.T) {
	f := func(tag bool, a, b [32]byte) bool {
		var n Node
		if tag {
			n = NewLeaf(Digest(a), Digest(b))
		} else {
			n = NewInternal(Digest(a), Digest(b))
		}
		addr, raw := Encode(n)
		if DigestOf(raw[:]) != addr {
			return false
		}
		decoded, err := Decode(raw[:])
		if err != nil {
			return false
		}
		return decoded == n
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}
