// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package tree implements the copy-on-write binary search tree at the core
// of a dbdb database: an immutable tree whose insert and delete operations
// return new roots that share all unchanged subtrees with their predecessor.
package tree

import (
	"encoding/binary"
	"fmt"

	"github.com/dacapoday/dbdb/ref"
)

// Node is an immutable node of the binary search tree. It is never
// mutated once constructed; updates build a new Node and a new NodeRef
// pointing at it, sharing the left and right subtrees they don't touch.
type Node struct {
	Key      string
	ValueRef ref.Ref[[]byte]
	LeftRef  ref.Ref[*Node]
	RightRef ref.Ref[*Node]

	// Length is the number of keys in the subtree rooted at this node:
	// Left.Length + Right.Length + 1. It is recomputed structurally on
	// every copy-on-write rebuild, never by traversal.
	Length uint64
}

// NodeRef is a reference to a Node record: either empty (the zero value,
// representing "no subtree here"), unstored (freshly built, cached in
// memory), unloaded (an address only), or both.
type NodeRef = ref.Ref[*Node]

// valueCodec is the default value reference codec: values are opaque byte
// strings, round-tripped through storage unchanged.
type valueCodec struct{}

func (valueCodec) Marshal(value []byte) ([]byte, error)   { return value, nil }
func (valueCodec) Unmarshal(data []byte) ([]byte, error)  { return data, nil }
func (valueCodec) PrepareToStore(ref.Storage, []byte) error { return nil }

// ValueCodec is the codec used for every Node.ValueRef.
var ValueCodec ref.Codec[[]byte] = valueCodec{}

// nodeCodec serialises a Node as a five-field record: left/value/right
// addresses and length as fixed-width big-endian uint64s, followed by a
// length-prefixed UTF-8 key.
type nodeCodec struct{}

// NodeCodec is the codec used for every NodeRef.
var NodeCodec ref.Codec[*Node] = nodeCodec{}

const nodeHeaderSize = 5 * 8 // left, value, right, length, keyLen

func (nodeCodec) PrepareToStore(storage ref.Storage, node *Node) error {
	if node == nil {
		return nil
	}
	if err := node.ValueRef.Store(storage, ValueCodec); err != nil {
		return err
	}
	if err := node.LeftRef.Store(storage, NodeCodec); err != nil {
		return err
	}
	return node.RightRef.Store(storage, NodeCodec)
}

func (nodeCodec) Marshal(node *Node) ([]byte, error) {
	key := node.Key
	buf := make([]byte, nodeHeaderSize+len(key))
	binary.BigEndian.PutUint64(buf[0:8], node.LeftRef.Address())
	binary.BigEndian.PutUint64(buf[8:16], node.ValueRef.Address())
	binary.BigEndian.PutUint64(buf[16:24], node.RightRef.Address())
	binary.BigEndian.PutUint64(buf[24:32], node.Length)
	binary.BigEndian.PutUint64(buf[32:40], uint64(len(key)))
	copy(buf[40:], key)
	return buf, nil
}

func (nodeCodec) Unmarshal(data []byte) (*Node, error) {
	if len(data) < nodeHeaderSize {
		return nil, fmt.Errorf("tree: node record too short: %d bytes", len(data))
	}
	left := binary.BigEndian.Uint64(data[0:8])
	value := binary.BigEndian.Uint64(data[8:16])
	right := binary.BigEndian.Uint64(data[16:24])
	length := binary.BigEndian.Uint64(data[24:32])
	keyLen := binary.BigEndian.Uint64(data[32:40])

	if uint64(len(data)-nodeHeaderSize) != keyLen {
		return nil, fmt.Errorf("tree: node record key length mismatch: header says %d, have %d", keyLen, len(data)-nodeHeaderSize)
	}

	return &Node{
		Key:      string(data[nodeHeaderSize:]),
		ValueRef: refFromAddress[[]byte](value),
		LeftRef:  refFromAddress[*Node](left),
		RightRef: refFromAddress[*Node](right),
		Length:   length,
	}, nil
}

// refFromAddress builds a Ref pointing at address, or the empty zero-value
// Ref if address is 0 (an empty child or value has never been stored, so
// there is nothing to point at).
func refFromAddress[T any](address uint64) ref.Ref[T] {
	if address == 0 {
		return ref.Ref[T]{}
	}
	return ref.FromAddress[T](address)
}

// errUnloadedLength is returned by Length when a NodeRef has an address
// but its node has not been loaded into memory: computing it would
// require a load this package chooses to surface rather than hide.
var errUnloadedLength = fmt.Errorf("tree: length of unloaded node reference")

// Length reports the size of the subtree a NodeRef points at without
// forcing a load: 0 for an empty reference, the cached node's Length for a
// loaded one. Asking for the length of an unloaded-but-addressed reference
// is an error.
func Length(r *NodeRef) (uint64, error) {
	if node, ok := r.Cached(); ok {
		if node == nil {
			return 0, nil
		}
		return node.Length, nil
	}
	if r.Address() == 0 {
		return 0, nil
	}
	return 0, errUnloadedLength
}
