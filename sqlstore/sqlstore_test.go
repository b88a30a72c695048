package sqlstore_test

import (
	"context"
	"testing"

	"github.com/smtree/smt"
	"github.com/smtree/smt/sqlstore"
)

func openTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatal(err)
		}
	})
	return store
}

func TestSQLStoreNodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	addr, raw := smt.Encode(smt.NewLeaf(smt.DigestOf([]byte("k")), smt.DigestOf([]byte("v"))))
	if err := store.PutNode(ctx, addr, raw); err != nil {
		t.Fatalf("PutNode: %v", err)
	}
	got, err := store.GetNode(ctx, addr)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got != raw {
		t.Fatal("GetNode returned different bytes than PutNode stored")
	}
	if err := store.DeleteNode(ctx, addr); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if _, err := store.GetNode(ctx, addr); err != smt.ErrNodeNotFound {
		t.Fatalf("GetNode after delete: got %v, want ErrNodeNotFound", err)
	}
}

func TestSQLStoreValueRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	kh := smt.DigestOf([]byte("key"))

	if err := store.PutValue(ctx, kh, []byte("hello")); err != nil {
		t.Fatalf("PutValue: %v", err)
	}
	got, err := store.GetValue(ctx, kh)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("GetValue = %q, want %q", got, "hello")
	}
	if err := store.DeleteValue(ctx, kh); err != nil {
		t.Fatalf("DeleteValue: %v", err)
	}
	if _, err := store.GetValue(ctx, kh); err != smt.ErrValueNotFound {
		t.Fatalf("GetValue after delete: got %v, want ErrValueNotFound", err)
	}
}

func TestSQLStoreDrivesTree(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	tree := smt.New(store, store, nil)

	for _, kv := range [][2]string{{"a", "a1"}, {"b", "b1"}, {"c", "c1"}} {
		if err := tree.Update(ctx, []byte(kv[0]), []byte(kv[1])); err != nil {
			t.Fatalf("Update(%s): %v", kv[0], err)
		}
	}
	for _, kv := range [][2]string{{"a", "a1"}, {"b", "b1"}, {"c", "c1"}} {
		got, err := tree.Get(ctx, []byte(kv[0]))
		if err != nil {
			t.Fatalf("Get(%s): %v", kv[0], err)
		}
		if string(got) != kv[1] {
			t.Fatalf("Get(%s) = %q, want %q", kv[0], got, kv[1])
		}
	}
}
