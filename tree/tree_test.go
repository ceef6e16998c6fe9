// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dacapoday/dbdb"
	"github.com/dacapoday/dbdb/mem"
	"github.com/dacapoday/dbdb/storage"
)

func openTree(t *testing.T) *Tree[*mem.File] {
	t.Helper()
	var f mem.File
	s, err := storage.Open[*mem.File](&f, storage.NoopLocker{})
	require.NoError(t, err)
	tr, err := Open[*mem.File](s)
	require.NoError(t, err)
	return tr
}

func TestGetOnEmptyTreeIsNotFound(t *testing.T) {
	tr := openTree(t)
	_, err := tr.Get("missing")
	require.ErrorIs(t, err, dbdb.ErrKeyNotFound)
}

func TestSetThenGet(t *testing.T) {
	tr := openTree(t)
	require.NoError(t, tr.Set("a", []byte("1")))
	require.NoError(t, tr.Set("b", []byte("2")))
	require.NoError(t, tr.Set("c", []byte("3")))

	v, err := tr.Get("b")
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	length, err := tr.Len()
	require.NoError(t, err)
	require.EqualValues(t, 3, length)
}

func TestSetOverwritesExistingKey(t *testing.T) {
	tr := openTree(t)
	require.NoError(t, tr.Set("a", []byte("1")))
	require.NoError(t, tr.Set("a", []byte("2")))

	v, err := tr.Get("a")
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	length, err := tr.Len()
	require.NoError(t, err)
	require.EqualValues(t, 1, length)
}

func TestDeleteMissingKeyIsNotFound(t *testing.T) {
	tr := openTree(t)
	require.NoError(t, tr.Set("a", []byte("1")))
	err := tr.Delete("z")
	require.ErrorIs(t, err, dbdb.ErrKeyNotFound)
}

func TestDeleteLeaf(t *testing.T) {
	tr := openTree(t)
	require.NoError(t, tr.Set("b", []byte("2")))
	require.NoError(t, tr.Set("a", []byte("1")))
	require.NoError(t, tr.Set("c", []byte("3")))

	require.NoError(t, tr.Delete("a"))

	_, err := tr.Get("a")
	require.ErrorIs(t, err, dbdb.ErrKeyNotFound)

	length, err := tr.Len()
	require.NoError(t, err)
	require.EqualValues(t, 2, length)
}

// TestDeleteTwoChildrenPromotesLeftMaximum exercises the case where the
// deleted node has both children: the replacement key must be the
// maximum of the left subtree, not the minimum of the right.
func TestDeleteTwoChildrenPromotesLeftMaximum(t *testing.T) {
	tr := openTree(t)
	for _, k := range []string{"d", "b", "f", "a", "c", "e", "g"} {
		require.NoError(t, tr.Set(k, []byte(k)))
	}

	require.NoError(t, tr.Delete("d"))

	root, ok := tr.root.Cached()
	require.True(t, ok)
	require.Equal(t, "c", root.Key)

	_, err := tr.Get("d")
	require.ErrorIs(t, err, dbdb.ErrKeyNotFound)

	for _, k := range []string{"a", "b", "c", "e", "f", "g"} {
		v, err := tr.Get(k)
		require.NoError(t, err)
		require.Equal(t, []byte(k), v)
	}

	length, err := tr.Len()
	require.NoError(t, err)
	require.EqualValues(t, 6, length)
}

func TestLengthInvariantAfterManyInsertsAndDeletes(t *testing.T) {
	tr := openTree(t)
	keys := []string{"m", "f", "t", "a", "h", "q", "z", "b", "g", "k", "s", "x"}
	for _, k := range keys {
		require.NoError(t, tr.Set(k, []byte(k)))
	}
	length, err := tr.Len()
	require.NoError(t, err)
	require.EqualValues(t, len(keys), length)

	require.NoError(t, tr.Delete("f"))
	require.NoError(t, tr.Delete("z"))
	require.NoError(t, tr.Delete("m"))

	length, err = tr.Len()
	require.NoError(t, err)
	require.EqualValues(t, len(keys)-3, length)
}

func TestCommitPersistsAcrossReopen(t *testing.T) {
	var f mem.File
	s, err := storage.Open[*mem.File](&f, storage.NoopLocker{})
	require.NoError(t, err)

	tr, err := Open[*mem.File](s)
	require.NoError(t, err)
	require.NoError(t, tr.Set("a", []byte("1")))
	require.NoError(t, tr.Set("b", []byte("2")))
	require.NoError(t, tr.Commit())

	// A fresh Tree over the same storage sees the committed state.
	tr2, err := Open[*mem.File](s)
	require.NoError(t, err)
	v, err := tr2.Get("a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	length, err := tr2.Len()
	require.NoError(t, err)
	require.EqualValues(t, 2, length)
}

func TestCommitIsNoopWithoutPendingWrites(t *testing.T) {
	tr := openTree(t)
	require.NoError(t, tr.Commit())
}

func TestContains(t *testing.T) {
	tr := openTree(t)
	require.NoError(t, tr.Set("a", []byte("1")))

	ok, err := tr.Contains("a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.Contains("z")
	require.NoError(t, err)
	require.False(t, ok)
}
