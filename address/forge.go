package address

import (
	"fmt"

	"github.com/vocdoni/anondonation/log"
)

// Identity holds the shielded-style identities derived from a wallet's
// unshielded address. Both are immutable for the lifetime of a session.
type Identity struct {
	UnshieldedAddress   string
	Network             string
	CoinPublicKey       string
	EncryptionPublicKey string
}

// Forge derives the shielded coin public key and the shielded encryption
// public key from an unshielded address. The 32-byte payload of the address
// is reinterpreted under each shielded format tag and re-encoded with the
// original network id, so the result is a pure function of the input.
//
// Wallets that only expose an unshielded address still need something to
// put in the shielded identity slots of a transaction; this is that
// something. The forged keys are not real shielded keys.
func Forge(unshieldedAddress string) (*Identity, error) {
	addr, err := ParseAs(unshieldedAddress, TypeUnshielded)
	if err != nil {
		return nil, err
	}
	cpk, err := Address{Type: TypeShieldedCoinKey, Network: addr.Network, Payload: addr.Payload}.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode coin public key: %w", err)
	}
	epk, err := Address{Type: TypeShieldedEncryptKey, Network: addr.Network, Payload: addr.Payload}.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode encryption public key: %w", err)
	}
	log.Debugw("forged shielded identity",
		"network", addr.Network,
		"coinPublicKey", cpk,
	)
	return &Identity{
		UnshieldedAddress:   unshieldedAddress,
		Network:             addr.Network,
		CoinPublicKey:       cpk,
		EncryptionPublicKey: epk,
	}, nil
}
