// Package sqlstore is a NodeStore/ValueStore backed by crawshaw.io/sqlite,
// giving the pluggable store contract a durable single-file backend.
// Schema and query shape follow internal/witness's dbExec pattern: a single
// *sqlite.Conn guarded by a mutex, queries run through sqlitex.Exec with a
// per-row callback.
package sqlstore

import (
	"context"
	"fmt"
	"sync"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smtree/smt"
)

var (
	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smt_sqlstore_ops_total",
		Help: "Count of sqlstore operations by table and verb.",
	}, []string{"table", "op"})
	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "smt_sqlstore_op_duration_seconds",
		Help: "Latency of sqlstore operations by table and verb.",
	}, []string{"table", "op"})
)

func init() {
	prometheus.MustRegister(opsTotal, opDuration)
}

// Store is a NodeStore and ValueStore backed by two SQLite tables (nodes and
// values_), content-addressed by the hex encoding of the relevant digest,
// plus a one-row root table for GetRoot/SetRoot.
type Store struct {
	mu sync.Mutex
	db *sqlite.Conn
}

var (
	_ smt.NodeStore  = (*Store)(nil)
	_ smt.ValueStore = (*Store)(nil)
)

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists. path may be ":memory:" or a
// "file::memory:?cache=shared" URI for an ephemeral store, as
// crawshaw.io/sqlite accepts.
func Open(path string) (*Store, error) {
	db, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}
	if err := sqlitex.ExecScript(db, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
	PRAGMA strict_types = ON;
	CREATE TABLE IF NOT EXISTS nodes (
		addr TEXT PRIMARY KEY,
		raw  BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS values_ (
		key_hash TEXT PRIMARY KEY,
		value    BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS root (
		id     INTEGER PRIMARY KEY CHECK (id = 0),
		digest TEXT NOT NULL
	);
`

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func observe(table, op string) func() {
	timer := prometheus.NewTimer(opDuration.WithLabelValues(table, op))
	return func() {
		opsTotal.WithLabelValues(table, op).Inc()
		timer.ObserveDuration()
	}
}

func (s *Store) exec(query string, resultFn func(stmt *sqlite.Stmt) error, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sqlitex.Exec(s.db, query, resultFn, args...)
}

func (s *Store) GetNode(_ context.Context, addr smt.Digest) ([smt.EncodedSize]byte, error) {
	defer observe("nodes", "get")()
	var raw []byte
	found := false
	err := s.exec("SELECT raw FROM nodes WHERE addr = ?",
		func(stmt *sqlite.Stmt) error {
			found = true
			raw = make([]byte, stmt.GetLen("raw"))
			stmt.GetBytes("raw", raw)
			return nil
		}, addr.String())
	if err != nil {
		return [smt.EncodedSize]byte{}, fmt.Errorf("sqlstore: get node: %w", err)
	}
	if !found {
		return [smt.EncodedSize]byte{}, smt.ErrNodeNotFound
	}
	var out [smt.EncodedSize]byte
	if len(raw) != smt.EncodedSize {
		return out, fmt.Errorf("%w: stored node is %d bytes, want %d", smt.ErrMalformedNode, len(raw), smt.EncodedSize)
	}
	copy(out[:], raw)
	return out, nil
}

func (s *Store) PutNode(_ context.Context, addr smt.Digest, raw [smt.EncodedSize]byte) error {
	defer observe("nodes", "put")()
	err := s.exec("INSERT OR REPLACE INTO nodes (addr, raw) VALUES (?, ?)",
		nil, addr.String(), raw[:])
	if err != nil {
		return fmt.Errorf("sqlstore: put node: %w", err)
	}
	return nil
}

func (s *Store) DeleteNode(_ context.Context, addr smt.Digest) error {
	defer observe("nodes", "delete")()
	err := s.exec("DELETE FROM nodes WHERE addr = ?", nil, addr.String())
	if err != nil {
		return fmt.Errorf("sqlstore: delete node: %w", err)
	}
	return nil
}

// GetRoot returns the tree root last saved with SetRoot, and false if none
// has been saved yet (a fresh database).
func (s *Store) GetRoot(_ context.Context) (smt.Digest, bool, error) {
	var hexRoot string
	found := false
	err := s.exec("SELECT digest FROM root WHERE id = 0",
		func(stmt *sqlite.Stmt) error {
			found = true
			hexRoot = stmt.GetText("digest")
			return nil
		})
	if err != nil {
		return smt.Digest{}, false, fmt.Errorf("sqlstore: get root: %w", err)
	}
	if !found {
		return smt.Digest{}, false, nil
	}
	root, err := smt.ParseDigest(hexRoot)
	if err != nil {
		return smt.Digest{}, false, fmt.Errorf("sqlstore: get root: %w", err)
	}
	return root, true, nil
}

// SetRoot persists root as the tree's current root.
func (s *Store) SetRoot(_ context.Context, root smt.Digest) error {
	err := s.exec("INSERT OR REPLACE INTO root (id, digest) VALUES (0, ?)", nil, root.String())
	if err != nil {
		return fmt.Errorf("sqlstore: set root: %w", err)
	}
	return nil
}

func (s *Store) GetValue(_ context.Context, keyHash smt.Digest) ([]byte, error) {
	defer observe("values", "get")()
	var value []byte
	found := false
	err := s.exec("SELECT value FROM values_ WHERE key_hash = ?",
		func(stmt *sqlite.Stmt) error {
			found = true
			value = make([]byte, stmt.GetLen("value"))
			stmt.GetBytes("value", value)
			return nil
		}, keyHash.String())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get value: %w", err)
	}
	if !found {
		return nil, smt.ErrValueNotFound
	}
	return value, nil
}

func (s *Store) PutValue(_ context.Context, keyHash smt.Digest, value []byte) error {
	defer observe("values", "put")()
	err := s.exec("INSERT OR REPLACE INTO values_ (key_hash, value) VALUES (?, ?)",
		nil, keyHash.String(), value)
	if err != nil {
		return fmt.Errorf("sqlstore: put value: %w", err)
	}
	return nil
}

func (s *Store) DeleteValue(_ context.Context, keyHash smt.Digest) error {
	defer observe("values", "delete")()
	err := s.exec("DELETE FROM values_ WHERE key_hash = ?", nil, keyHash.String())
	if err != nil {
		return fmt.Errorf("sqlstore: delete value: %w", err)
	}
	return nil
}
