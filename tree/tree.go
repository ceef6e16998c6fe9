// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"github.com/dacapoday/dbdb"
	"github.com/dacapoday/dbdb/ref"
	"github.com/dacapoday/dbdb/storage"
)

// Tree is the logical layer: a copy-on-write binary search tree mapping
// string keys to byte-string values, backed by a storage.Storage.
//
// Reads re-read the superblock's root address whenever the tree does not
// currently hold the write lock, so a Tree always sees the latest
// committed state of the file between write sessions. A write session
// starts on the first Set or Delete after the last Commit (or after
// opening): the lock is acquired then and held until Commit releases it,
// so the in-memory root is authoritative for the rest of the session.
//
// A Tree is not safe for concurrent use by multiple goroutines.
type Tree[F dbdb.File] struct {
	storage  *storage.Storage[F]
	root     NodeRef
	rootAddr uint64
}

// Open wraps s as a Tree, reading the current root address from its
// superblock.
func Open[F dbdb.File](s *storage.Storage[F]) (*Tree[F], error) {
	t := &Tree[F]{storage: s}
	if err := t.refresh(); err != nil {
		return nil, err
	}
	return t, nil
}

// refresh re-reads the root address from the superblock and updates the
// in-memory root reference if it changed. It is a no-op while a write
// session holds the lock, since the in-memory root is then the newest
// state by construction.
func (t *Tree[F]) refresh() error {
	if t.storage.Locked() {
		return nil
	}
	addr, err := t.storage.GetRootAddress()
	if err != nil {
		return err
	}
	if addr == t.rootAddr {
		return nil
	}
	t.rootAddr = addr
	if addr == 0 {
		t.root = NodeRef{}
	} else {
		t.root = ref.FromAddress[*Node](addr)
	}
	return nil
}

// beginWrite starts a write session if one is not already open: it
// refreshes to the latest committed root and then acquires the write
// lock, which is held until Commit.
func (t *Tree[F]) beginWrite() error {
	if t.storage.Locked() {
		return nil
	}
	if err := t.refresh(); err != nil {
		return err
	}
	_, err := t.storage.Lock()
	return err
}

// Get returns the value stored under key. It reports dbdb.ErrKeyNotFound
// if key is absent.
func (t *Tree[F]) Get(key string) ([]byte, error) {
	if err := t.refresh(); err != nil {
		return nil, err
	}
	value, found, err := get(t.storage, t.root, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dbdb.ErrKeyNotFound
	}
	return value, nil
}

// Contains reports whether key is present, without an error for absence.
func (t *Tree[F]) Contains(key string) (bool, error) {
	if err := t.refresh(); err != nil {
		return false, err
	}
	_, found, err := get(t.storage, t.root, key)
	return found, err
}

// Len reports the number of keys currently in the tree.
func (t *Tree[F]) Len() (uint64, error) {
	if err := t.refresh(); err != nil {
		return 0, err
	}
	node, err := t.root.Get(t.storage, NodeCodec)
	if err != nil {
		return 0, err
	}
	if node == nil {
		return 0, nil
	}
	return node.Length, nil
}

// Set inserts or replaces the value stored under key, starting a write
// session if one is not already open.
func (t *Tree[F]) Set(key string, value []byte) error {
	if err := t.beginWrite(); err != nil {
		return err
	}
	newRoot, _, err := insert(t.storage, t.root, key, ref.FromValue(value))
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// Delete removes key, starting a write session if one is not already
// open. It reports dbdb.ErrKeyNotFound if key is absent; the tree is left
// unchanged in that case.
func (t *Tree[F]) Delete(key string) error {
	if err := t.beginWrite(); err != nil {
		return err
	}
	newRoot, err := remove(t.storage, t.root, key)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// Commit is a no-op if no write session is open. Otherwise it stores
// every unstored node and value reachable from the current root, then
// atomically advances the superblock's root pointer to it, releasing the
// write lock.
func (t *Tree[F]) Commit() error {
	if !t.storage.Locked() {
		return nil
	}
	if err := t.root.Store(t.storage, NodeCodec); err != nil {
		return err
	}
	if err := t.storage.CommitRootAddress(t.root.Address()); err != nil {
		return err
	}
	t.rootAddr = t.root.Address()
	return nil
}

// Close releases the storage's advisory lock, if held, and closes the
// underlying file.
func (t *Tree[F]) Close() error {
	return t.storage.Close()
}

// subtreeLength loads r, if necessary, and returns the Length of its
// node, or 0 if r is empty. Unlike the package-level Length function,
// this always loads: the recursive tree operations need the number, not
// the "don't force a load" guarantee that function gives external
// callers.
func subtreeLength[F dbdb.File](s *storage.Storage[F], r NodeRef) (uint64, error) {
	node, err := r.Get(s, NodeCodec)
	if err != nil {
		return 0, err
	}
	if node == nil {
		return 0, nil
	}
	return node.Length, nil
}

func get[F dbdb.File](s *storage.Storage[F], r NodeRef, key string) (value []byte, found bool, err error) {
	node, err := r.Get(s, NodeCodec)
	if err != nil {
		return nil, false, err
	}
	if node == nil {
		return nil, false, nil
	}
	switch {
	case key == node.Key:
		value, err = node.ValueRef.Get(s, ValueCodec)
		return value, true, err
	case key < node.Key:
		return get(s, node.LeftRef, key)
	default:
		return get(s, node.RightRef, key)
	}
}

// insert returns the new subtree root obtained by inserting key/valueRef
// into r, and the new subtree's length, sharing every node on r's path
// not on the path to key.
func insert[F dbdb.File](s *storage.Storage[F], r NodeRef, key string, valueRef ref.Ref[[]byte]) (NodeRef, uint64, error) {
	node, err := r.Get(s, NodeCodec)
	if err != nil {
		return NodeRef{}, 0, err
	}
	if node == nil {
		return ref.FromValue(&Node{Key: key, ValueRef: valueRef, Length: 1}), 1, nil
	}

	switch {
	case key == node.Key:
		newNode := &Node{
			Key:      node.Key,
			ValueRef: valueRef,
			LeftRef:  node.LeftRef,
			RightRef: node.RightRef,
			Length:   node.Length,
		}
		return ref.FromValue(newNode), newNode.Length, nil

	case key < node.Key:
		newLeft, leftLen, err := insert(s, node.LeftRef, key, valueRef)
		if err != nil {
			return NodeRef{}, 0, err
		}
		rightLen, err := subtreeLength(s, node.RightRef)
		if err != nil {
			return NodeRef{}, 0, err
		}
		newNode := &Node{
			Key:      node.Key,
			ValueRef: node.ValueRef,
			LeftRef:  newLeft,
			RightRef: node.RightRef,
			Length:   leftLen + rightLen + 1,
		}
		return ref.FromValue(newNode), newNode.Length, nil

	default:
		newRight, rightLen, err := insert(s, node.RightRef, key, valueRef)
		if err != nil {
			return NodeRef{}, 0, err
		}
		leftLen, err := subtreeLength(s, node.LeftRef)
		if err != nil {
			return NodeRef{}, 0, err
		}
		newNode := &Node{
			Key:      node.Key,
			ValueRef: node.ValueRef,
			LeftRef:  node.LeftRef,
			RightRef: newRight,
			Length:   leftLen + rightLen + 1,
		}
		return ref.FromValue(newNode), newNode.Length, nil
	}
}

// remove returns the new subtree root obtained by deleting key from r. It
// reports dbdb.ErrKeyNotFound if key is not present in r.
func remove[F dbdb.File](s *storage.Storage[F], r NodeRef, key string) (NodeRef, error) {
	node, err := r.Get(s, NodeCodec)
	if err != nil {
		return NodeRef{}, err
	}
	if node == nil {
		return NodeRef{}, dbdb.ErrKeyNotFound
	}

	switch {
	case key == node.Key:
		left, err := node.LeftRef.Get(s, NodeCodec)
		if err != nil {
			return NodeRef{}, err
		}
		if left == nil {
			return node.RightRef, nil
		}
		right, err := node.RightRef.Get(s, NodeCodec)
		if err != nil {
			return NodeRef{}, err
		}
		if right == nil {
			return node.LeftRef, nil
		}

		// Two children: promote the left subtree's maximum key/value
		// into this position, rather than the right subtree's minimum.
		maxKey, maxValue, newLeft, err := popMax(s, node.LeftRef)
		if err != nil {
			return NodeRef{}, err
		}
		newLeftLen, err := subtreeLength(s, newLeft)
		if err != nil {
			return NodeRef{}, err
		}
		rightLen, err := subtreeLength(s, node.RightRef)
		if err != nil {
			return NodeRef{}, err
		}
		newNode := &Node{
			Key:      maxKey,
			ValueRef: maxValue,
			LeftRef:  newLeft,
			RightRef: node.RightRef,
			Length:   newLeftLen + 1 + rightLen,
		}
		return ref.FromValue(newNode), nil

	case key < node.Key:
		newLeft, err := remove(s, node.LeftRef, key)
		if err != nil {
			return NodeRef{}, err
		}
		leftLen, err := subtreeLength(s, newLeft)
		if err != nil {
			return NodeRef{}, err
		}
		rightLen, err := subtreeLength(s, node.RightRef)
		if err != nil {
			return NodeRef{}, err
		}
		newNode := &Node{
			Key:      node.Key,
			ValueRef: node.ValueRef,
			LeftRef:  newLeft,
			RightRef: node.RightRef,
			Length:   leftLen + rightLen + 1,
		}
		return ref.FromValue(newNode), nil

	default:
		newRight, err := remove(s, node.RightRef, key)
		if err != nil {
			return NodeRef{}, err
		}
		rightLen, err := subtreeLength(s, newRight)
		if err != nil {
			return NodeRef{}, err
		}
		leftLen, err := subtreeLength(s, node.LeftRef)
		if err != nil {
			return NodeRef{}, err
		}
		newNode := &Node{
			Key:      node.Key,
			ValueRef: node.ValueRef,
			LeftRef:  node.LeftRef,
			RightRef: newRight,
			Length:   leftLen + rightLen + 1,
		}
		return ref.FromValue(newNode), nil
	}
}

// popMax removes and returns the maximum key/value in r, along with the
// subtree that remains once it is gone. r must not be empty.
func popMax[F dbdb.File](s *storage.Storage[F], r NodeRef) (key string, value ref.Ref[[]byte], rest NodeRef, err error) {
	node, err := r.Get(s, NodeCodec)
	if err != nil {
		return "", ref.Ref[[]byte]{}, NodeRef{}, err
	}

	right, err := node.RightRef.Get(s, NodeCodec)
	if err != nil {
		return "", ref.Ref[[]byte]{}, NodeRef{}, err
	}
	if right == nil {
		return node.Key, node.ValueRef, node.LeftRef, nil
	}

	maxKey, maxValue, newRight, err := popMax(s, node.RightRef)
	if err != nil {
		return "", ref.Ref[[]byte]{}, NodeRef{}, err
	}
	leftLen, err := subtreeLength(s, node.LeftRef)
	if err != nil {
		return "", ref.Ref[[]byte]{}, NodeRef{}, err
	}
	newRightLen, err := subtreeLength(s, newRight)
	if err != nil {
		return "", ref.Ref[[]byte]{}, NodeRef{}, err
	}
	newNode := &Node{
		Key:      node.Key,
		ValueRef: node.ValueRef,
		LeftRef:  node.LeftRef,
		RightRef: newRight,
		Length:   leftLen + newRightLen + 1,
	}
	return maxKey, maxValue, ref.FromValue(newNode), nil
}
