package storage

import (
	"fmt"
	"time"

	"github.com/vocdoni/anondonation/types"
)

// Deployment records a campaign deployed from this store.
type Deployment struct {
	ContractAddress types.HexBytes `cbor:"contractAddress" json:"contractAddress"`
	TxID            string         `cbor:"txId" json:"txId"`
	Network         string         `cbor:"network" json:"network"`
	CreatedAt       time.Time      `cbor:"createdAt" json:"createdAt"`
}

// SetDeployment stores a deployment record.
func (s *Storage) SetDeployment(d *Deployment) error {
	if d == nil || len(d.ContractAddress) == 0 {
		return fmt.Errorf("%w: deployment without contract address", ErrInvalidStoreKey)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return setArtifact(s.deploys, []byte(d.ContractAddress.Hex()), d)
}

// Deployment returns the deployment record of address, or ErrNotFound.
func (s *Storage) Deployment(address types.HexBytes) (*Deployment, error) {
	d := &Deployment{}
	if err := getArtifact(s.deploys, []byte(address.Hex()), d); err != nil {
		return nil, err
	}
	return d, nil
}

// ListDeployments returns every deployment record of the store.
func (s *Storage) ListDeployments() ([]*Deployment, error) {
	var (
		out     []*Deployment
		iterErr error
	)
	if err := s.deploys.Iterate(nil, func(k, v []byte) bool {
		d := &Deployment{}
		if err := DecodeArtifact(v, d); err != nil {
			iterErr = fmt.Errorf("could not decode deployment %s: %w", k, err)
			return false
		}
		out = append(out, d)
		return true
	}); err != nil {
		return nil, err
	}
	return out, iterErr
}
