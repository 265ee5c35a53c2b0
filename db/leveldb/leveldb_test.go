package leveldb

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anondonation/db"
	"github.com/vocdoni/anondonation/db/internal/dbtest"
	"github.com/vocdoni/anondonation/db/prefixeddb"
)

func newTestDB(t *testing.T) *LevelDB {
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, newTestDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, newTestDB(t))
}

func TestPrefixed(t *testing.T) {
	database := newTestDB(t)
	prefix := []byte("two")
	dbtest.TestPrefixed(t, database, prefixeddb.NewPrefixedDatabase(database, prefix), prefix)
}

func TestCompact(t *testing.T) {
	qt.Assert(t, newTestDB(t).Compact(), qt.IsNil)
}
