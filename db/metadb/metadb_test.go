package metadb

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anondonation/db"
)

func TestNew(t *testing.T) {
	c := qt.New(t)

	for _, typ := range []string{db.TypePebble, db.TypeLevelDB, db.TypeInMem} {
		c.Run(typ, func(c *qt.C) {
			database, err := New(typ, c.TempDir())
			c.Assert(err, qt.IsNil)
			wTx := database.WriteTx()
			c.Assert(wTx.Set([]byte("k"), []byte("v")), qt.IsNil)
			c.Assert(wTx.Commit(), qt.IsNil)
			v, err := database.Get([]byte("k"))
			c.Assert(err, qt.IsNil)
			c.Assert(v, qt.DeepEquals, []byte("v"))
			c.Assert(database.Close(), qt.IsNil)
		})
	}

	_, err := New("mongodb", c.TempDir())
	c.Assert(err, qt.ErrorMatches, `invalid database type "mongodb"`)
}

func TestNewTest(t *testing.T) {
	database := NewTest(t)
	_, err := database.Get([]byte("missing"))
	qt.Assert(t, err, qt.ErrorIs, db.ErrKeyNotFound)
}
