// Package metadb opens a db.Database by backend type name.
package metadb

import (
	"fmt"
	"os"
	"testing"

	"github.com/vocdoni/anondonation/db"
	"github.com/vocdoni/anondonation/db/inmemory"
	"github.com/vocdoni/anondonation/db/leveldb"
	"github.com/vocdoni/anondonation/db/pebbledb"
)

// New opens a database of type typ rooted at dir.
func New(typ, dir string) (db.Database, error) {
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		return pebbledb.New(opts)
	case db.TypeLevelDB:
		return leveldb.New(opts)
	case db.TypeInMem:
		return inmemory.New(opts)
	default:
		return nil, fmt.Errorf("invalid database type %q", typ)
	}
}

// ForTest returns the database type tests should use, overridable through
// the DONATION_TEST_DB environment variable.
func ForTest() string {
	if typ := os.Getenv("DONATION_TEST_DB"); typ != "" {
		return typ
	}
	return db.TypePebble
}

// NewTest opens a fresh database of type ForTest() in a temporary directory
// that is removed when the test ends.
func NewTest(tb testing.TB) db.Database {
	database, err := New(ForTest(), tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := database.Close(); err != nil {
			tb.Error(err)
		}
	})
	return database
}
