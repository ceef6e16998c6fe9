// Package dbdb defines the basic interfaces and error types a dbdb
// key-value database is built from: the File a database is opened on, and
// the error kinds its operations can report. It has no dependencies of its
// own, so every other package in this module (storage, ref, tree, mem) can
// depend on it without risk of an import cycle.
//
// The database itself — a single file holding a fixed-size superblock and
// a stream of length-prefixed records materialising an immutable,
// copy-on-write binary search tree — is assembled from these pieces in the
// kv package.
package dbdb

import "io"

// File is the storage backend a database is opened on. *os.File and
// *mem.File both satisfy it.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Truncate changes the size of the file.
	Truncate(size int64) error

	// Sync commits the current contents of the file to stable storage.
	Sync() error
}
