package inmemory

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anondonation/db"
	"github.com/vocdoni/anondonation/db/internal/dbtest"
	"github.com/vocdoni/anondonation/db/prefixeddb"
)

func newTestDB(t *testing.T) *InMemoryDB {
	database, err := New(db.Options{})
	qt.Assert(t, err, qt.IsNil)
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, newTestDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, newTestDB(t))
}

func TestConcurrentWriteTx(t *testing.T) {
	dbtest.TestConcurrentWriteTx(t, newTestDB(t))
}

func TestPrefixed(t *testing.T) {
	database := newTestDB(t)
	prefix := []byte("three")
	dbtest.TestPrefixed(t, database, prefixeddb.NewPrefixedDatabase(database, prefix), prefix)
}

func TestConflict(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	first := database.WriteTx()
	second := database.WriteTx()
	_, err := first.Get([]byte("k"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(first.Set([]byte("k"), []byte("1")), qt.IsNil)
	c.Assert(second.Set([]byte("k"), []byte("2")), qt.IsNil)

	c.Assert(second.Commit(), qt.IsNil)
	c.Assert(first.Commit(), qt.ErrorIs, db.ErrConflict)

	v, err := database.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("2"))

	c.Assert(second.Commit(), qt.ErrorMatches, "cannot commit inmemory tx: .*")
}
