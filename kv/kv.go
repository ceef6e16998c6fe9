// Package kv assembles the dbdb storage, reference, and tree layers into
// the database's public surface: a single-file, embedded, persistent
// key-value store built on an immutable, copy-on-write binary search tree
// that is materialised onto an append-only record file.
//
// A database is a single file: a fixed-size superblock holding the address
// of the current tree root, followed by a stream of length-prefixed
// records. Mutations (Set, Delete) build a new in-memory tree that shares
// unchanged subtrees with the previous one; nothing is written to disk
// until Commit, which appends the unwritten nodes and then atomically
// rewrites the superblock's root pointer. A crash between those two steps
// leaves the file with harmless trailing records and the previous, still
// valid, root.
//
// Usage:
//
//	db, err := kv.Open("data.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	db.Set([]byte("hello"), []byte("world"))
//	db.Commit()
//
//	val, err := db.Get([]byte("hello"))
package kv

import (
	"os"

	"github.com/gofrs/flock"

	"github.com/dacapoday/dbdb"
	"github.com/dacapoday/dbdb/storage"
	"github.com/dacapoday/dbdb/tree"
)

// DB is a specialized KV instance using os.File as the underlying storage,
// the common case of a file-based store.
type DB = KV[*os.File]

// KV is a handle onto a single database file. It is not safe for
// concurrent use by multiple goroutines: a KV assumes a single writer,
// coordinated across processes by an advisory file lock.
//
// Type parameter F must implement the dbdb.File interface (typically
// *os.File or *mem.File). Use DB for the common case of file-based
// storage.
type KV[F dbdb.File] struct {
	tree *tree.Tree[F]
}

// Open opens path, creating it if it does not exist, and returns a DB
// backed by it. The returned DB holds an OS-level advisory lock on path
// for the duration of each write session; concurrent readers from other
// processes are fine, concurrent writers are not.
func Open(path string) (*DB, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return OpenFile[*os.File](file, flock.New(path))
}

// OpenFile builds a KV around an already-open File and Locker, for
// callers that need a storage backend other than a plain *os.File (tests
// use this with a *mem.File and a storage.NoopLocker).
func OpenFile[F dbdb.File](file F, locker storage.Locker) (*KV[F], error) {
	s, err := storage.Open[F](file, locker)
	if err != nil {
		return nil, err
	}
	t, err := tree.Open(s)
	if err != nil {
		return nil, err
	}
	return &KV[F]{tree: t}, nil
}

// Get returns the value stored under key, or dbdb.ErrKeyNotFound if key is
// absent.
func (kv *KV[F]) Get(key []byte) ([]byte, error) {
	return kv.tree.Get(string(key))
}

// Contains reports whether key is present.
func (kv *KV[F]) Contains(key []byte) (bool, error) {
	return kv.tree.Contains(string(key))
}

// Set inserts or replaces the value stored under key. The change is only
// visible to other processes, and only durable, once Commit succeeds.
func (kv *KV[F]) Set(key, value []byte) error {
	return kv.tree.Set(string(key), value)
}

// Delete removes key, reporting dbdb.ErrKeyNotFound if it was absent.
func (kv *KV[F]) Delete(key []byte) error {
	return kv.tree.Delete(string(key))
}

// Len reports the number of keys currently in the database, including
// any uncommitted changes made in the current write session.
func (kv *KV[F]) Len() (uint64, error) {
	return kv.tree.Len()
}

// Commit durably persists every change made since the last Commit. It is
// a no-op if no changes are pending.
func (kv *KV[F]) Commit() error {
	return kv.tree.Commit()
}

// Close releases the database's advisory lock, if held, and closes the
// underlying file. Any uncommitted changes are lost.
func (kv *KV[F]) Close() error {
	return kv.tree.Close()
}

// With opens path, runs fn with the resulting DB, and closes it
// afterwards regardless of whether fn returns an error. It does not
// commit on fn's behalf: fn must call Commit itself to persist its
// changes.
func With(path string, fn func(db *DB) error) error {
	db, err := Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
