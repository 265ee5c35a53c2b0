// Package db defines the key-value database abstraction shared by every
// local store, and the backend type names understood by metadb.New.
package db

import (
	"errors"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// ErrConflict is returned by Commit when a concurrent transaction modified a
// key this transaction read or wrote. Only backends with optimistic
// transactions report it.
var ErrConflict = errors.New("transaction conflict")

const (
	TypePebble  = "pebble"
	TypeLevelDB = "leveldb"
	TypeInMem   = "inmem"
)

// Options configures a backend.
type Options struct {
	Path string
}

// Reader is the read side of both databases and transactions.
type Reader interface {
	// Get returns a copy of the value stored at key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback for every key with the given prefix, in
	// lexicographic order, until it returns false. The key passed to the
	// callback has the prefix removed. Key and value are only valid during
	// the callback.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// Database is a key-value store that supports atomic write transactions.
type Database interface {
	Reader
	// WriteTx starts a write transaction. Reads through the transaction see
	// its own pending writes.
	WriteTx() WriteTx
	Close() error
	Compact() error
}

// WriteTx is a pending set of writes applied atomically on Commit.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	// Commit applies the writes. A transaction cannot be reused after
	// Commit or Discard.
	Commit() error
	// Discard drops the pending writes. It is safe to call after Commit.
	Discard()
}

// UnwrapWriteTx returns the innermost transaction of a wrapped one, such as
// a prefixed transaction.
func UnwrapWriteTx(tx WriteTx) WriteTx {
	for {
		u, ok := tx.(interface{ Unwrap() WriteTx })
		if !ok {
			return tx
		}
		tx = u.Unwrap()
	}
}
