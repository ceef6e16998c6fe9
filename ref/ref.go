// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package ref implements the reference layer: a uniform abstraction for
// "a value that may live only in memory, only on disk, or both". It
// decouples a node's logical identity from its physical identity (an
// offset in a storage.Storage) and provides idempotent, on-demand
// materialisation in both directions.
//
// Two instantiations matter to a dbdb database: Ref[[]byte], which refers
// to an opaque value blob, and Ref[*tree.Node], which refers to a tree
// node and cascades its Store call into the node's children. Both share
// this same generic plumbing; only the Codec they are given differs.
package ref

import "github.com/dacapoday/dbdb"

// Storage is the subset of storage.Storage that a Ref needs: byte-addressed
// read and append-only write of length-prefixed records.
type Storage interface {
	Read(offset uint64) ([]byte, error)
	Write(payload []byte) (offset uint64, err error)
}

// Codec converts a value of type T to and from its on-disk record payload.
// PrepareToStore is invoked, with the same Storage, immediately before
// Marshal on every Store call that writes a record; it gives node codecs a chance to recursively
// store dependent references (a value reference, or child node references)
// before the node itself is serialised. Value codecs leave it a no-op.
type Codec[T any] interface {
	Marshal(value T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
	PrepareToStore(storage Storage, value T) error
}

// Ref is a handle to a value that may be unstored (cached payload only),
// unloaded (address only), or both. The zero value is an empty reference:
// no cached payload, address 0. T is expected to be a type whose zero
// value is a meaningful "no value" sentinel (a pointer or a byte slice);
// both instantiations used by this module satisfy that.
type Ref[T any] struct {
	payload T
	loaded  bool
	address uint64
}

// FromValue builds an unstored reference around an in-memory payload.
func FromValue[T any](value T) Ref[T] {
	return Ref[T]{payload: value, loaded: true}
}

// FromAddress builds an unloaded reference to a record at the given
// address. address must be non-zero; the empty reference is the zero
// value of Ref[T], not FromAddress(0).
func FromAddress[T any](address uint64) Ref[T] {
	return Ref[T]{address: address}
}

// Address reports the reference's on-disk address, or 0 if it has never
// been stored.
func (r *Ref[T]) Address() uint64 {
	return r.address
}

// Cached returns the reference's in-memory payload without touching
// storage, and whether one is present. It never triggers a load.
func (r *Ref[T]) Cached() (value T, ok bool) {
	return r.payload, r.loaded
}

// Get returns the referenced value, loading and caching it from storage on
// first access if the reference was constructed with only an address. A
// reference that has never been stored (zero address, no cached payload)
// returns the zero value of T and a nil error; callers distinguish that
// case from an error by checking for an empty reference themselves (e.g. a
// nil *Node denotes "no subtree here", not a failure).
func (r *Ref[T]) Get(storage Storage, codec Codec[T]) (T, error) {
	if r.loaded {
		return r.payload, nil
	}

	var zero T
	if r.address == 0 {
		return zero, nil
	}

	data, err := storage.Read(r.address)
	if err != nil {
		return zero, err
	}
	value, err := codec.Unmarshal(data)
	if err != nil {
		return zero, &dbdb.CorruptRecordError{Offset: r.address, Err: err}
	}

	r.payload, r.loaded = value, true
	return value, nil
}

// Store serialises and appends the cached payload if one is present and
// the reference has not already been assigned an address. It is
// idempotent: a second call is a no-op, and a successfully stored
// reference's address never changes afterwards. PrepareToStore is called
// first so node codecs can cascade the store into dependent references.
func (r *Ref[T]) Store(storage Storage, codec Codec[T]) error {
	if !r.loaded || r.address != 0 {
		return nil
	}

	if err := codec.PrepareToStore(storage, r.payload); err != nil {
		return err
	}
	data, err := codec.Marshal(r.payload)
	if err != nil {
		return err
	}
	address, err := storage.Write(data)
	if err != nil {
		return err
	}

	r.address = address
	return nil
}
