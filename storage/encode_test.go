package storage

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/witness"
)

func TestEncodeDecodeArtifact(t *testing.T) {
	c := qt.New(t)
	ps := &witness.PrivateState{
		RecipientSecretKey: types.HexBytes{1, 2, 3},
		DonationAmount:     types.NewInt(1000),
	}

	for name, enc := range map[string][]ArtifactEncoding{
		"default": nil,
		"cbor":    {ArtifactEncodingCBOR},
		"json":    {ArtifactEncodingJSON},
	} {
		c.Run(name, func(c *qt.C) {
			data, err := EncodeArtifact(ps, enc...)
			c.Assert(err, qt.IsNil)
			decoded := &witness.PrivateState{}
			c.Assert(DecodeArtifact(data, decoded, enc...), qt.IsNil)
			c.Assert(decoded.Equal(ps), qt.IsTrue)
		})
	}

	c.Run("deterministic", func(c *qt.C) {
		first, err := EncodeArtifact(ps)
		c.Assert(err, qt.IsNil)
		second, err := EncodeArtifact(ps)
		c.Assert(err, qt.IsNil)
		c.Assert(first, qt.DeepEquals, second)
	})

	c.Run("json falls back to cbor", func(c *qt.C) {
		data, err := EncodeArtifact(ps)
		c.Assert(err, qt.IsNil)
		decoded := &witness.PrivateState{}
		c.Assert(DecodeArtifact(data, decoded, ArtifactEncodingJSON), qt.IsNil)
		c.Assert(decoded.Equal(ps), qt.IsTrue)
	})

	c.Run("unknown encoding", func(c *qt.C) {
		_, err := EncodeArtifact(ps, ArtifactEncoding(9))
		c.Assert(err, qt.ErrorMatches, "unknown artifact encoding: 9")
	})
}
