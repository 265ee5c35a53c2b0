package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/witness"
)

// SetPrivateState persists the private state of the campaign at address.
func (s *Storage) SetPrivateState(address types.HexBytes, id string, ps *witness.PrivateState) error {
	if ps == nil {
		return fmt.Errorf("nil private state")
	}
	key, err := privateStateKey(address, id)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := setArtifact(s.privStates, key, ps); err != nil {
		return fmt.Errorf("store private state: %w", err)
	}
	s.cache.Add(string(key), ps.Clone())
	log.Debugw("private state stored",
		"store", s.name,
		"contract", address.String(),
		"secretKey", log.Fingerprint(ps.RecipientSecretKey))
	return nil
}

// PrivateState returns a copy of the stored private state, or ErrNotFound.
func (s *Storage) PrivateState(address types.HexBytes, id string) (*witness.PrivateState, error) {
	key, err := privateStateKey(address, id)
	if err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if ps, ok := s.cache.Get(string(key)); ok {
		return ps.Clone(), nil
	}
	ps := &witness.PrivateState{}
	if err := getArtifact(s.privStates, key, ps); err != nil {
		return nil, err
	}
	s.cache.Add(string(key), ps.Clone())
	return ps, nil
}

// RemovePrivateState deletes the stored private state, if any.
func (s *Storage) RemovePrivateState(address types.HexBytes, id string) error {
	key, err := privateStateKey(address, id)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cache.Remove(string(key))
	return deleteArtifact(s.privStates, key)
}

// ListPrivateStates returns the contract addresses that have a private state
// stored under id.
func (s *Storage) ListPrivateStates(id string) ([]types.HexBytes, error) {
	var (
		addresses []types.HexBytes
		iterErr   error
	)
	if err := s.privStates.Iterate(nil, func(k, _ []byte) bool {
		addrHex, stateID, ok := strings.Cut(string(k), "/")
		if !ok || stateID != id {
			return true
		}
		addr, err := types.HexStringToHexBytes(addrHex)
		if err != nil {
			iterErr = fmt.Errorf("corrupted private state key %q: %w", k, err)
			return false
		}
		addresses = append(addresses, addr)
		return true
	}); err != nil {
		return nil, err
	}
	return addresses, iterErr
}

// ClearPrivateStates removes every private state of the store.
func (s *Storage) ClearPrivateStates() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	var keys [][]byte
	if err := s.privStates.Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		return true
	}); err != nil {
		return err
	}
	wTx := s.privStates.WriteTx()
	defer wTx.Discard()
	for _, k := range keys {
		if err := wTx.Delete(k); err != nil {
			return err
		}
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	s.cache.Purge()
	return nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
