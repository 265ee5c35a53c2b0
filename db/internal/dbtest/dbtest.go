// Package dbtest holds the behaviour every db.Database backend must share.
package dbtest

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anondonation/db"
)

// TestWriteTx checks read-your-writes, commit and discard.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	_, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)
	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// not visible before commit
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()

	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// discarded writes are dropped
	wTx = database.WriteTx()
	c.Assert(wTx.Set([]byte("c"), []byte("d")), qt.IsNil)
	wTx.Discard()
	_, err = database.Get([]byte("c"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	// delete
	wTx = database.WriteTx()
	c.Assert(wTx.Delete([]byte("a")), qt.IsNil)
	_, err = wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(wTx.Commit(), qt.IsNil)
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks prefix scoping, ordering and early termination.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	for i := range 10 {
		c.Assert(wTx.Set(fmt.Appendf(nil, "item/%02d", i), fmt.Appendf(nil, "v%d", i)), qt.IsNil)
	}
	c.Assert(wTx.Set([]byte("other/01"), []byte("x")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	var keys []string
	err := database.Iterate([]byte("item/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	c.Assert(err, qt.IsNil)
	c.Assert(keys, qt.HasLen, 10)
	c.Assert(keys[0], qt.Equals, "00")
	c.Assert(keys[9], qt.Equals, "09")

	count := 0
	err = database.Iterate([]byte("item/"), func(k, v []byte) bool {
		count++
		return count < 3
	})
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 3)

	// iteration through a transaction sees its pending writes
	wTx = database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Set([]byte("other/02"), []byte("y")), qt.IsNil)
	c.Assert(wTx.Delete([]byte("other/01")), qt.IsNil)
	got := map[string]string{}
	err = wTx.Iterate([]byte("other/"), func(k, v []byte) bool {
		got[string(k)] = string(v)
		return true
	})
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, map[string]string{"02": "y"})
}

// TestConcurrentWriteTx checks that conflicting transactions do not both
// commit. Only backends with optimistic transactions pass it.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	key := []byte("counter")
	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	committed, conflicts := 0, 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wTx := database.WriteTx()
			defer wTx.Discard()
			_, _ = wTx.Get(key)
			_ = wTx.Set(key, []byte("x"))
			err := wTx.Commit()
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			case errors.Is(err, db.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	c.Assert(committed >= 1, qt.IsTrue)
	c.Assert(committed+conflicts, qt.Equals, workers)
}

// TestPrefixed checks that a prefixed view only sees its own namespace.
func TestPrefixed(t *testing.T, database, prefixed db.Database, prefix []byte) {
	c := qt.New(t)

	wTx := prefixed.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("inside")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	wTx = database.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("outside")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	v, err := prefixed.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("inside"))

	v, err = database.Get(append(append([]byte(nil), prefix...), 'k'))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("inside"))

	var keys []string
	c.Assert(prefixed.Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"k"})
}
