package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/anondonation/types"
)

// CampaignState is the public ledger state of a donation campaign.
// DonationCount and Round only move through proven and submitted circuit
// calls: +1 per donate and +1 per withdraw respectively.
type CampaignState struct {
	RecipientAuthority types.HexBytes `cbor:"recipientAuthority" json:"recipientAuthority"`
	DonationCount      uint64         `cbor:"donationCount" json:"donationCount"`
	Round              uint64         `cbor:"round" json:"round"`
}

var stateEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %v", err))
	}
	return em
}()

// Encode returns the canonical encoding of the state, the form stored on
// the ledger and carried by transactions.
func (s *CampaignState) Encode() (types.HexBytes, error) {
	if s == nil {
		return nil, fmt.Errorf("nil campaign state")
	}
	return stateEncMode.Marshal(s)
}

// Hash returns the keccak256 hash of the canonical encoding.
func (s *CampaignState) Hash() (types.HexBytes, error) {
	data, err := s.Encode()
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(data), nil
}

// Clone returns a deep copy of the state.
func (s *CampaignState) Clone() *CampaignState {
	if s == nil {
		return nil
	}
	return &CampaignState{
		RecipientAuthority: append(types.HexBytes(nil), s.RecipientAuthority...),
		DonationCount:      s.DonationCount,
		Round:              s.Round,
	}
}

// DecodeCampaignState decodes a state produced by Encode.
func DecodeCampaignState(data []byte) (*CampaignState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty campaign state")
	}
	s := &CampaignState{}
	if err := cbor.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode campaign state: %w", err)
	}
	return s, nil
}
