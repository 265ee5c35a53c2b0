// Package address implements the bech32m textual encoding used for ledger
// identities and forges shielded identities from an unshielded address.
//
// An encoded address looks like mn_<type>[_<network>]1<data><checksum>.
// The network part is omitted on mainnet.
package address

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/vocdoni/anondonation/types"
)

const (
	// Prefix is the human readable prefix shared by every address type.
	Prefix = "mn"
	// PayloadSize is the size of the key material carried by an address.
	PayloadSize = 32

	hrpSeparator = "_"
)

// Type is the format tag of an encoded address.
type Type string

const (
	TypeUnshielded         Type = "addr"
	TypeShieldedCoinKey    Type = "shield-cpk"
	TypeShieldedEncryptKey Type = "shield-epk"
)

// Known network ids. Mainnet addresses carry no network part.
const (
	NetworkMainnet    = ""
	NetworkUndeployed = "undeployed"
	NetworkPreprod    = "preprod"
	NetworkTestnet    = "testnet"
)

// ErrInvalidAddress is wrapped by every AddressDecodeError.
var ErrInvalidAddress = errors.New("invalid address")

// AddressDecodeError is returned when a textual address has a bad checksum,
// an unexpected format tag or a malformed payload.
type AddressDecodeError struct {
	Address string
	Reason  string
	Err     error
}

func (e *AddressDecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode address %q: %s: %v", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode address %q: %s", e.Address, e.Reason)
}

func (e *AddressDecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidAddress, e.Err}
	}
	return []error{ErrInvalidAddress}
}

// Address is a decoded textual address.
type Address struct {
	Type    Type
	Network string
	Payload types.HexBytes
}

// HRP returns the human readable part for the address type and network.
func (a Address) HRP() string {
	hrp := Prefix + hrpSeparator + string(a.Type)
	if a.Network != NetworkMainnet {
		hrp += hrpSeparator + a.Network
	}
	return hrp
}

// Encode returns the bech32m representation of the address.
func (a Address) Encode() (string, error) {
	if a.Type == "" || strings.Contains(string(a.Type), hrpSeparator) {
		return "", fmt.Errorf("invalid address type %q", a.Type)
	}
	if strings.Contains(a.Network, hrpSeparator) {
		return "", fmt.Errorf("invalid network id %q", a.Network)
	}
	if len(a.Payload) != PayloadSize {
		return "", fmt.Errorf("invalid payload size %d, expected %d", len(a.Payload), PayloadSize)
	}
	data, err := bech32.ConvertBits(a.Payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert payload: %w", err)
	}
	return bech32.EncodeM(a.HRP(), data)
}

func (a Address) String() string {
	s, err := a.Encode()
	if err != nil {
		return fmt.Sprintf("<invalid %s address>", a.Type)
	}
	return s
}

// Parse decodes a bech32m address of any known prefix.
func Parse(s string) (*Address, error) {
	hrp, data, version, err := bech32.DecodeGeneric(s)
	if err != nil {
		return nil, &AddressDecodeError{Address: s, Reason: "bad encoding or checksum", Err: err}
	}
	if version != bech32.VersionM {
		return nil, &AddressDecodeError{Address: s, Reason: "not a bech32m string"}
	}
	parts := strings.Split(hrp, hrpSeparator)
	if len(parts) < 2 || len(parts) > 3 || parts[0] != Prefix || parts[1] == "" {
		return nil, &AddressDecodeError{Address: s, Reason: fmt.Sprintf("unknown format tag %q", hrp)}
	}
	addr := &Address{Type: Type(parts[1])}
	if len(parts) == 3 {
		if parts[2] == "" {
			return nil, &AddressDecodeError{Address: s, Reason: "empty network id"}
		}
		addr.Network = parts[2]
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, &AddressDecodeError{Address: s, Reason: "bad payload padding", Err: err}
	}
	if len(payload) != PayloadSize {
		return nil, &AddressDecodeError{
			Address: s,
			Reason:  fmt.Sprintf("payload is %d bytes, expected %d", len(payload), PayloadSize),
		}
	}
	addr.Payload = payload
	return addr, nil
}

// ParseAs decodes s and checks it carries the expected format tag.
func ParseAs(s string, want Type) (*Address, error) {
	addr, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if addr.Type != want {
		return nil, &AddressDecodeError{
			Address: s,
			Reason:  fmt.Sprintf("format tag %q, expected %q", addr.Type, want),
		}
	}
	return addr, nil
}
