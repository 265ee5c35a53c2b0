/*
Package storage keeps the local, never transmitted state of a donation
client.

# Storage Organization

Every store is namespaced by its store name, so several wallets or contract
builds can share one database:

  - ps/<store>/ : contractAddress + "/" + privateStateID → PrivateState
  - dp/<store>/ : contractAddress → Deployment (campaigns created here)

Records are CBOR encoded. Private states are cached in an LRU cache keyed
by their full database key.
*/
package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/anondonation/db"
	"github.com/vocdoni/anondonation/db/prefixeddb"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/witness"
)

// DefaultPrivateStateID is the id under which a campaign's private state is
// stored when the caller does not choose one.
const DefaultPrivateStateID = "donationPrivateState"

const cacheSize = 256

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidStoreKey = errors.New("invalid store key")

	privateStatePrefix = []byte("ps/")
	deploymentPrefix   = []byte("dp/")
)

// StoreName returns the private state store name used for a contract.
func StoreName(contractName string) string {
	return "donation-storage-" + contractName
}

// Storage is the private state store of one store name.
type Storage struct {
	db         db.Database
	name       string
	privStates db.Database
	deploys    db.Database
	lock       sync.Mutex
	cache      *lru.Cache[string, *witness.PrivateState]
}

// New returns the store called name on top of database.
func New(database db.Database, name string) (*Storage, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: store name %q", ErrInvalidStoreKey, name)
	}
	cache, err := lru.New[string, *witness.PrivateState](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	ns := []byte(name + "/")
	return &Storage{
		db:         database,
		name:       name,
		privStates: prefixeddb.NewPrefixedDatabase(database, append(append([]byte(nil), privateStatePrefix...), ns...)),
		deploys:    prefixeddb.NewPrefixedDatabase(database, append(append([]byte(nil), deploymentPrefix...), ns...)),
		cache:      cache,
	}, nil
}

// Name returns the store name.
func (s *Storage) Name() string {
	return s.name
}

// Close closes the underlying database.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "store", s.name, "error", err)
	}
}

func privateStateKey(address types.HexBytes, id string) ([]byte, error) {
	if len(address) == 0 {
		return nil, fmt.Errorf("%w: empty contract address", ErrInvalidStoreKey)
	}
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("%w: private state id %q", ErrInvalidStoreKey, id)
	}
	return []byte(address.Hex() + "/" + id), nil
}

// setArtifact encodes artifact and stores it under key in database.
func setArtifact(database db.Database, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := database.WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// getArtifact decodes the record stored under key into out.
func getArtifact(database db.Database, key []byte, out any) error {
	data, err := database.Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := DecodeArtifact(data, out); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

func deleteArtifact(database db.Database, key []byte) error {
	wTx := database.WriteTx()
	defer wTx.Discard()
	if err := wTx.Delete(key); err != nil {
		return err
	}
	return wTx.Commit()
}
