package leveldb

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vocdoni/anondonation/db"
)

// LevelDB implements db.Database on top of goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

var _ db.Database = (*LevelDB)(nil)

// New opens (or creates) a leveldb database at opts.Path.
func New(opts db.Options) (*LevelDB, error) {
	ldb, err := leveldb.OpenFile(opts.Path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open leveldb database: %w", err)
	}
	return &LevelDB{db: ldb}, nil
}

func (d *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	return v, err
}

func (d *LevelDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter := d.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// WriteTx returns a batch-backed transaction. Pending writes are mirrored
// in memory so reads through the transaction observe them.
func (d *LevelDB) WriteTx() db.WriteTx {
	return &WriteTx{
		db:      d,
		batch:   new(leveldb.Batch),
		pending: make(map[string]*[]byte),
	}
}

func (d *LevelDB) Close() error {
	return d.db.Close()
}

func (d *LevelDB) Compact() error {
	return d.db.CompactRange(util.Range{})
}

// WriteTx implements db.WriteTx over a leveldb batch.
type WriteTx struct {
	db      *LevelDB
	mu      sync.Mutex
	batch   *leveldb.Batch
	pending map[string]*[]byte
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	tx.mu.Lock()
	v, ok := tx.pending[string(key)]
	tx.mu.Unlock()
	if ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*v), nil
	}
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries := make(map[string][]byte)
	if err := tx.db.Iterate(prefix, func(k, v []byte) bool {
		entries[string(k)] = bytes.Clone(v)
		return true
	}); err != nil {
		return err
	}
	tx.mu.Lock()
	for k, v := range tx.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		local := k[len(prefix):]
		if v == nil {
			delete(entries, local)
			continue
		}
		entries[local] = bytes.Clone(*v)
	}
	tx.mu.Unlock()

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !callback([]byte(k), entries[k]) {
			break
		}
	}
	return nil
}

func (tx *WriteTx) Set(key, value []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	v := bytes.Clone(value)
	tx.pending[string(key)] = &v
	tx.batch.Put(key, value)
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.pending[string(key)] = nil
	tx.batch.Delete(key)
	return nil
}

func (tx *WriteTx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.db.db.Write(tx.batch, nil)
}

func (tx *WriteTx) Discard() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.batch.Reset()
	tx.pending = make(map[string]*[]byte)
}
