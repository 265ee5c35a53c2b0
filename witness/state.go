package witness

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/anondonation/types"
)

// SecretKeySize is the size of the recipient secret key.
const SecretKeySize = 32

// PrivateState is the per-campaign secret material kept on the caller's
// device. It is persisted locally keyed by contract address and never
// transmitted.
type PrivateState struct {
	RecipientSecretKey types.HexBytes `cbor:"recipientSecretKey" json:"recipientSecretKey"`
	DonationAmount     *types.BigInt  `cbor:"donationAmount" json:"donationAmount"`
}

// NewRecipientState returns the private state of the campaign creator.
func NewRecipientState(secretKey []byte) (*PrivateState, error) {
	if len(secretKey) != SecretKeySize {
		return nil, fmt.Errorf("invalid recipient secret key size %d, expected %d", len(secretKey), SecretKeySize)
	}
	return &PrivateState{
		RecipientSecretKey: append(types.HexBytes(nil), secretKey...),
		DonationAmount:     types.NewInt(0),
	}, nil
}

// NewDonorState returns the private state used when joining a campaign as a
// donor. The all-zero key is a placeholder: it can never satisfy the
// withdraw authorization check.
func NewDonorState() *PrivateState {
	return &PrivateState{
		RecipientSecretKey: make(types.HexBytes, SecretKeySize),
		DonationAmount:     types.NewInt(0),
	}
}

// RandomSecretKey returns a fresh recipient secret key.
func RandomSecretKey() (types.HexBytes, error) {
	sk := make(types.HexBytes, SecretKeySize)
	if _, err := rand.Read(sk); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	return sk, nil
}

// Amount returns a copy of the persisted donation amount, zero if unset.
func (ps *PrivateState) Amount() *big.Int {
	if ps == nil || ps.DonationAmount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(ps.DonationAmount.MathBigInt())
}

// Clone returns a deep copy of the private state.
func (ps *PrivateState) Clone() *PrivateState {
	if ps == nil {
		return nil
	}
	return &PrivateState{
		RecipientSecretKey: append(types.HexBytes(nil), ps.RecipientSecretKey...),
		DonationAmount:     ps.DonationAmount.Clone(),
	}
}

// Equal reports whether both private states hold the same values.
func (ps *PrivateState) Equal(other *PrivateState) bool {
	if ps == nil || other == nil {
		return ps == other
	}
	return ps.RecipientSecretKey.Equal(other.RecipientSecretKey) &&
		ps.Amount().Cmp(other.Amount()) == 0
}

// Encode returns the CBOR encoding of the private state.
func (ps *PrivateState) Encode() ([]byte, error) {
	return cbor.Marshal(ps)
}

// DecodePrivateState decodes a private state produced by Encode.
func DecodePrivateState(data []byte) (*PrivateState, error) {
	ps := &PrivateState{}
	if err := cbor.Unmarshal(data, ps); err != nil {
		return nil, fmt.Errorf("decode private state: %w", err)
	}
	return ps, nil
}
