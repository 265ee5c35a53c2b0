package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vocdoni/anondonation/sanitize"
)

// txIDKeys are the mapping keys known to carry a transaction id, in the
// order they are tried.
var txIDKeys = []string{"txId", "txHash", "hash", "id", "result"}

// DecodeTxResult extracts the transaction id from a submission result. The
// accepted shapes are:
//
//   - a non-empty string
//   - a byte sequence, returned as 0x-prefixed hex
//   - a non-empty sequence, decoded from its first element
//   - a mapping with one of the keys txId, txHash, hash, id or result,
//     decoded recursively
func DecodeTxResult(result any) (string, error) {
	return decodeTxResult(sanitize.Lift(result))
}

func decodeTxResult(v sanitize.Value) (string, error) {
	switch t := v.(type) {
	case sanitize.Primitive:
		s, ok := t.V.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("%w: %T", ErrUnrecognizedTxResult, t.V)
		}
		return strings.TrimSpace(s), nil
	case sanitize.Bytes:
		if len(t) == 0 {
			return "", fmt.Errorf("%w: empty bytes", ErrUnrecognizedTxResult)
		}
		return "0x" + hex.EncodeToString(t), nil
	case sanitize.Sequence:
		if len(t) == 0 {
			return "", fmt.Errorf("%w: empty sequence", ErrUnrecognizedTxResult)
		}
		return decodeTxResult(t[0])
	case sanitize.Mapping:
		for _, k := range txIDKeys {
			if inner, ok := t[k]; ok {
				if id, err := decodeTxResult(inner); err == nil {
					return id, nil
				}
			}
		}
		return "", fmt.Errorf("%w: mapping with keys %v", ErrUnrecognizedTxResult, sanitize.Keys(t))
	default:
		return "", fmt.Errorf("%w: %T", ErrUnrecognizedTxResult, v)
	}
}

// DecodeTxBytes extracts the encoded transaction from a value returned by
// the signer: raw bytes, a hex string, or a mapping holding one of those
// under "tx" or "transaction".
func DecodeTxBytes(v any) ([]byte, error) {
	return decodeTxBytes(sanitize.Lift(v))
}

func decodeTxBytes(v sanitize.Value) ([]byte, error) {
	switch t := v.(type) {
	case sanitize.Bytes:
		if len(t) == 0 {
			return nil, fmt.Errorf("%w: empty transaction", ErrInvalidTx)
		}
		return []byte(t), nil
	case sanitize.Primitive:
		s, ok := t.V.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected %T", ErrInvalidTx, t.V)
		}
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
		if err != nil || len(b) == 0 {
			return nil, fmt.Errorf("%w: not a hex encoded transaction", ErrInvalidTx)
		}
		return b, nil
	case sanitize.Mapping:
		for _, k := range []string{"tx", "transaction"} {
			if inner, ok := t[k]; ok {
				return decodeTxBytes(inner)
			}
		}
		return nil, fmt.Errorf("%w: mapping with keys %v", ErrInvalidTx, sanitize.Keys(t))
	default:
		return nil, fmt.Errorf("%w: unexpected %T", ErrInvalidTx, v)
	}
}
