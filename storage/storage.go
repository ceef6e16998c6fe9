// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package storage implements the physical layer of a dbdb database: a
// durable, append-only byte-record store with a single pointer kept in a
// fixed-size header.
//
// The file is laid out as:
//
//	offset 0  .. 4095   superblock: first 8 bytes are the root record
//	                     offset (big-endian uint64), the rest is reserved
//	                     and zeroed
//	offset 4096 .. EOF  records: each an 8-byte big-endian length prefix
//	                     followed by that many bytes of payload
//
// Records are never overwritten or freed once written. The only bytes ever
// rewritten after initialisation are the root offset at the start of the
// superblock, and that rewrite is the database's entire commit protocol:
// flush the new records, write the new root offset, flush again.
package storage

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"sync"

	"github.com/dacapoday/dbdb"
)

// SuperblockSize is the fixed size, in bytes, of the header region at the
// start of the file.
const SuperblockSize = 4096

// intSize is the width of every integer persisted by this package: an
// 8-byte big-endian unsigned length or offset.
const intSize = 8

// Locker is an advisory, process-wide exclusive lock on the database file.
// *flock.Flock (github.com/gofrs/flock) satisfies it; tests that exercise
// an in-memory file may use NoopLocker instead.
type Locker interface {
	Lock() error
	Unlock() error
}

// NoopLocker is a Locker that never actually excludes anything. It exists
// for single-process tests against an in-memory dbdb.File, where there is
// no OS file descriptor for an advisory lock to protect.
type NoopLocker struct{}

func (NoopLocker) Lock() error   { return nil }
func (NoopLocker) Unlock() error { return nil }

// sizer is implemented by dbdb.File backends that can report their own
// length cheaply (mem.File does). Backends that only implement the
// standard library's Stat, such as *os.File, are handled by fileSize's
// fallback instead; dbdb.File itself does not require either, since
// *os.File has no Size method of its own.
type sizer interface {
	Size() (int64, error)
}

type statter interface {
	Stat() (fs.FileInfo, error)
}

func fileSize(file any) (int64, error) {
	switch f := file.(type) {
	case sizer:
		return f.Size()
	case statter:
		info, err := f.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	default:
		return 0, fmt.Errorf("storage: file type %T supports neither Size nor Stat", file)
	}
}

// Storage is the append-only physical layer for a single database file.
// It is not safe for concurrent use by multiple goroutines; coordination
// across processes is by the advisory Locker, coordination within a
// process is the caller's responsibility (the kv.DB built on top of it
// is itself not goroutine-safe, matching the single-writer model in the
// package doc).
type Storage[F dbdb.File] struct {
	mu     sync.Mutex
	file   F
	locker Locker
	locked bool
	closed bool
}

// Open prepares file as a Storage, padding the superblock with zero bytes
// on first use so that it always reads back as a valid, empty root (offset
// 0 means "no tree yet").
func Open[F dbdb.File](file F, locker Locker) (*Storage[F], error) {
	s := &Storage[F]{file: file, locker: locker}

	if _, err := s.lock(); err != nil {
		return nil, err
	}
	defer s.Unlock()

	size, err := fileSize(file)
	if err != nil {
		return nil, err
	}
	if size < SuperblockSize {
		pad := make([]byte, SuperblockSize-size)
		if _, err := file.WriteAt(pad, size); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Lock acquires the advisory exclusive lock if it is not already held by
// this Storage, and reports whether that call is the one that acquired it.
// Callers use the return value to detect "first lock in this operation" and
// refresh any cached state that may now be stale.
func (s *Storage[F]) Lock() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock()
}

// lock must be called with s.mu held.
func (s *Storage[F]) lock() (bool, error) {
	if s.closed {
		return false, dbdb.ErrClosed
	}
	if s.locked {
		return false, nil
	}
	if err := s.locker.Lock(); err != nil {
		return false, err
	}
	s.locked = true
	return true, nil
}

// Unlock flushes buffered writes and releases the advisory lock. It is a
// no-op if the lock is not currently held.
func (s *Storage[F]) Unlock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlock()
}

func (s *Storage[F]) unlock() error {
	if !s.locked {
		return nil
	}
	err := s.file.Sync()
	if unlockErr := s.locker.Unlock(); err == nil {
		err = unlockErr
	}
	s.locked = false
	return err
}

// Locked reports whether this Storage currently holds the advisory lock.
func (s *Storage[F]) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Closed reports whether Close has been called.
func (s *Storage[F]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the lock, if held, and closes the underlying file.
func (s *Storage[F]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.unlock()
	s.closed = true
	if closeErr := s.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Read returns the payload of the record whose length prefix starts at
// offset. It fails with a CorruptRecordError if the length prefix cannot be
// read in full or claims more payload than the file actually holds.
func (s *Storage[F]) Read(offset uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, dbdb.ErrClosed
	}

	var header [intSize]byte
	if _, err := s.file.ReadAt(header[:], int64(offset)); err != nil {
		return nil, &dbdb.CorruptRecordError{Offset: offset, Err: err}
	}
	length := binary.BigEndian.Uint64(header[:])

	size, err := fileSize(s.file)
	if err != nil {
		return nil, err
	}
	if length > uint64(size)-offset-intSize {
		return nil, &dbdb.CorruptRecordError{Offset: offset, Err: fmt.Errorf("length prefix %d exceeds file size %d", length, size)}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := s.file.ReadAt(payload, int64(offset)+intSize); err != nil {
			return nil, &dbdb.CorruptRecordError{Offset: offset, Err: err}
		}
	}
	return payload, nil
}

// Write appends data as a new length-prefixed record at the end of the
// file and returns the offset of its length prefix. The write acquires the
// lock if it is not already held, but is not itself durable: only
// CommitRootAddress's flush-write-flush sequence guarantees that records
// survive a crash.
func (s *Storage[F]) Write(data []byte) (offset uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, dbdb.ErrClosed
	}
	if _, err = s.lock(); err != nil {
		return 0, err
	}

	size, err := fileSize(s.file)
	if err != nil {
		return 0, err
	}
	offset = uint64(size)

	var header [intSize]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(data)))
	if _, err = s.file.WriteAt(header[:], int64(offset)); err != nil {
		return 0, err
	}
	if len(data) > 0 {
		if _, err = s.file.WriteAt(data, int64(offset)+intSize); err != nil {
			return 0, err
		}
	}
	return offset, nil
}

// GetRootAddress reads the current root record offset from the
// superblock. Zero means the database is empty: no tree has been
// committed yet.
func (s *Storage[F]) GetRootAddress() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, dbdb.ErrClosed
	}

	var header [intSize]byte
	if _, err := s.file.ReadAt(header[:], 0); err != nil {
		return 0, fmt.Errorf("storage: read root address: %w", err)
	}
	return binary.BigEndian.Uint64(header[:]), nil
}

// CommitRootAddress is the durability barrier: it flushes every record
// written so far, writes the new root offset into the superblock with a
// single call, flushes again, and releases the advisory lock. A crash
// before the second flush leaves the previous, still-valid root in place;
// a crash after leaves the new one durable.
func (s *Storage[F]) CommitRootAddress(offset uint64) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dbdb.ErrClosed
	}
	if _, err = s.lock(); err != nil {
		return err
	}
	defer func() {
		if unlockErr := s.unlock(); err == nil {
			err = unlockErr
		}
	}()

	if err = s.file.Sync(); err != nil {
		return err
	}

	var header [intSize]byte
	binary.BigEndian.PutUint64(header[:], offset)
	if _, err = s.file.WriteAt(header[:], 0); err != nil {
		return err
	}

	return s.file.Sync()
}
