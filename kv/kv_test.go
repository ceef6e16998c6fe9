// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package kv_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dacapoday/dbdb"
	"github.com/dacapoday/dbdb/kv"
	"github.com/dacapoday/dbdb/mem"
	"github.com/dacapoday/dbdb/storage"
)

func openDB(t *testing.T) *kv.KV[*mem.File] {
	t.Helper()
	db, err := kv.OpenFile[*mem.File](new(mem.File), storage.NoopLocker{})
	require.NoError(t, err)
	return db
}

func TestSetGetDeleteRoundTrip(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	require.NoError(t, db.Set([]byte("hello"), []byte("world")))

	v, err := db.Get([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("world"), v)

	ok, err := db.Contains([]byte("hello"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("hello")))
	_, err = db.Get([]byte("hello"))
	require.ErrorIs(t, err, dbdb.ErrKeyNotFound)
}

// TestUncommittedChangesAreLostOnClose exercises a second DB opened over
// the same still-open storage, rather than a real close/reopen cycle:
// mem.File's Close discards its contents outright (there is no backing
// disk for an in-memory file to persist to), so it cannot stand in for
// "close the OS file, then reopen it" the way it can for every other
// behaviour this module tests against it.
func TestUncommittedChangesAreLostOnClose(t *testing.T) {
	file := new(mem.File)

	db, err := kv.OpenFile[*mem.File](file, storage.NoopLocker{})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("a"), []byte("1")))

	db2, err := kv.OpenFile[*mem.File](file, storage.NoopLocker{})
	require.NoError(t, err)
	defer db2.Close()

	_, err = db2.Get([]byte("a"))
	require.ErrorIs(t, err, dbdb.ErrKeyNotFound)
}

func TestCommitSurvivesReopen(t *testing.T) {
	file := new(mem.File)

	db, err := kv.OpenFile[*mem.File](file, storage.NoopLocker{})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Commit())

	db2, err := kv.OpenFile[*mem.File](file, storage.NoopLocker{})
	require.NoError(t, err)
	defer db2.Close()

	v, err := db2.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestWithOpensSetsAndCommits(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.db"

	err := kv.With(path, func(db *kv.DB) error {
		if err := db.Set([]byte("a"), []byte("1")); err != nil {
			return err
		}
		return db.Commit()
	})
	require.NoError(t, err)

	err = kv.With(path, func(db *kv.DB) error {
		v, err := db.Get([]byte("a"))
		if err != nil {
			return err
		}
		require.Equal(t, []byte("1"), v)
		return nil
	})
	require.NoError(t, err)
}
