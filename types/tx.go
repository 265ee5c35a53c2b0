package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
)

// TxKind distinguishes contract deployments from circuit calls.
type TxKind uint8

const (
	TxKindDeploy TxKind = iota + 1
	TxKindCall
)

func (k TxKind) String() string {
	switch k {
	case TxKindDeploy:
		return "deploy"
	case TxKindCall:
		return "call"
	default:
		return fmt.Sprintf("TxKind(%d)", uint8(k))
	}
}

// UnprovenTx is the transaction produced by simulating a circuit locally.
// It carries only public data: the encoded ledger state the call moves the
// contract to and the hash of the state it started from. Private inputs
// never appear here.
type UnprovenTx struct {
	Kind            TxKind    `cbor:"kind" json:"kind"`
	ContractAddress HexBytes  `cbor:"contractAddress" json:"contractAddress"`
	Circuit         CircuitID `cbor:"circuit,omitempty" json:"circuit,omitempty"`
	PrevStateHash   HexBytes  `cbor:"prevStateHash,omitempty" json:"prevStateHash,omitempty"`
	NextState       HexBytes  `cbor:"nextState" json:"nextState"`
	Nonce           HexBytes  `cbor:"nonce" json:"nonce"`
	CoinPublicKey   string    `cbor:"coinPublicKey" json:"coinPublicKey"`
}

var txEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %v", err))
	}
	return em
}()

// Serialize returns the deterministic CBOR encoding of the transaction.
func (tx *UnprovenTx) Serialize() ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction")
	}
	return txEncMode.Marshal(tx)
}

// Hash returns the keccak256 hash of the serialized transaction.
func (tx *UnprovenTx) Hash() (HexBytes, error) {
	data, err := tx.Serialize()
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(data), nil
}

// DeserializeUnprovenTx decodes a transaction produced by Serialize.
func DeserializeUnprovenTx(data []byte) (*UnprovenTx, error) {
	tx := &UnprovenTx{}
	if err := cbor.Unmarshal(data, tx); err != nil {
		return nil, fmt.Errorf("decode unproven transaction: %w", err)
	}
	return tx, nil
}
