package storage

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/anondonation/log"
)

// ArtifactEncoding defines the encoding formats for stored records.
type ArtifactEncoding int

const (
	// ArtifactEncodingCBOR is the CBOR encoding format.
	ArtifactEncodingCBOR ArtifactEncoding = iota
	// ArtifactEncodingJSON is the JSON encoding format, used by exports.
	ArtifactEncodingJSON
)

var artifactEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %v", err))
	}
	return em
}()

// EncodeArtifact encodes a record. CBOR is used unless another supported
// format is requested; a failed JSON encoding falls back to CBOR.
func EncodeArtifact(a any, encoding ...ArtifactEncoding) ([]byte, error) {
	if len(encoding) == 0 {
		return artifactEncMode.Marshal(a)
	}
	switch encoding[0] {
	case ArtifactEncodingCBOR:
		return artifactEncMode.Marshal(a)
	case ArtifactEncodingJSON:
		res, err := json.Marshal(a)
		if err != nil {
			log.Warnw("falling back to CBOR encoding due to JSON encoding failure", "error", err)
			return artifactEncMode.Marshal(a)
		}
		return res, nil
	default:
		return nil, fmt.Errorf("unknown artifact encoding: %d", encoding[0])
	}
}

// DecodeArtifact decodes a record produced by EncodeArtifact with the same
// encoding. A failed JSON decoding is retried as CBOR.
func DecodeArtifact(data []byte, out any, encoding ...ArtifactEncoding) error {
	if len(encoding) == 0 {
		return cbor.Unmarshal(data, out)
	}
	switch encoding[0] {
	case ArtifactEncodingCBOR:
		return cbor.Unmarshal(data, out)
	case ArtifactEncodingJSON:
		if err := json.Unmarshal(data, out); err != nil {
			log.Warnw("falling back to CBOR decoding due to JSON decoding failure", "error", err)
			return cbor.Unmarshal(data, out)
		}
		return nil
	default:
		return fmt.Errorf("unknown artifact encoding: %d", encoding[0])
	}
}
