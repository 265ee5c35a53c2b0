package types

import (
	"encoding/json"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/fxamacker/cbor/v2"
)

func TestHexBytes(t *testing.T) {
	c := qt.New(t)

	c.Run("String", func(c *qt.C) {
		testCases := []struct {
			name string
			in   HexBytes
			want string
		}{
			{name: "nil slice", in: nil, want: "0x"},
			{name: "empty", in: HexBytes{}, want: "0x"},
			{name: "non-empty", in: HexBytes{0x00, 0xAB, 0xCD}, want: "0x00abcd"},
		}
		for _, tc := range testCases {
			c.Run(tc.name, func(c *qt.C) {
				c.Assert(tc.in.String(), qt.Equals, tc.want)
			})
		}
	})

	c.Run("LeftPad", func(c *qt.C) {
		in := HexBytes{0xAA, 0xBB}
		out := in.LeftPad(4)
		c.Assert(out, qt.DeepEquals, HexBytes{0x00, 0x00, 0xAA, 0xBB})
		out[3] = 0x00
		c.Assert(in[1], qt.Equals, byte(0xBB))
	})

	c.Run("JSON", func(c *qt.C) {
		in := HexBytes{0x01, 0xFF}
		data, err := json.Marshal(in)
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Equals, `"0x01ff"`)

		var out HexBytes
		c.Assert(json.Unmarshal(data, &out), qt.IsNil)
		c.Assert(out, qt.DeepEquals, in)

		c.Assert(json.Unmarshal([]byte(`"01ff"`), &out), qt.IsNil)
		c.Assert(out, qt.DeepEquals, in)
		c.Assert(json.Unmarshal([]byte(`"0xzz"`), &out), qt.IsNotNil)
	})

	c.Run("IsZero", func(c *qt.C) {
		c.Assert(HexBytes(make([]byte, 32)).IsZero(), qt.IsTrue)
		c.Assert(HexBytes{0, 1}.IsZero(), qt.IsFalse)
	})
}

func TestBigIntEncodings(t *testing.T) {
	c := qt.New(t)
	huge, ok := new(big.Int).SetString("340282366920938463463374607431768211457", 10)
	c.Assert(ok, qt.IsTrue)
	bi := (*BigInt)(huge)

	data, err := cbor.Marshal(map[string]*BigInt{"amount": bi})
	c.Assert(err, qt.IsNil)
	var fromCBOR map[string]*BigInt
	c.Assert(cbor.Unmarshal(data, &fromCBOR), qt.IsNil)
	c.Assert(fromCBOR["amount"], qt.DeepEquals, bi)

	var fromJSON BigInt
	c.Assert(json.Unmarshal([]byte(`100`), &fromJSON), qt.IsNil)
	c.Assert(fromJSON.String(), qt.Equals, "100")
	c.Assert(json.Unmarshal([]byte(`"50"`), &fromJSON), qt.IsNil)
	c.Assert(fromJSON.String(), qt.Equals, "50")

	var nilInt *BigInt
	c.Assert(nilInt.Sign(), qt.Equals, 0)
	c.Assert(nilInt.Clone(), qt.IsNil)
	c.Assert(NewInt(7).Clone().Equal(NewInt(7)), qt.IsTrue)
}

func TestCircuitID(t *testing.T) {
	c := qt.New(t)

	id, err := ParseCircuitID(" donation#donate ")
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, CircuitID("donation#donate"))
	c.Assert(id.Tag(), qt.Equals, "donation")
	c.Assert(id.Name(), qt.Equals, "donate")
	c.Assert(NewCircuitID("donation", "withdraw"), qt.Equals, CircuitID("donation#withdraw"))

	for _, bad := range []string{"", "donate", "#donate", "donation#", "a#b#c"} {
		_, err := ParseCircuitID(bad)
		c.Assert(err, qt.IsNotNil, qt.Commentf("input %q", bad))
	}
}

func TestUnprovenTxSerialize(t *testing.T) {
	c := qt.New(t)
	tx := &UnprovenTx{
		Kind:            TxKindCall,
		ContractAddress: HexBytes{0x01, 0x02},
		Circuit:         "donation#donate",
		NextState:       HexBytes{0xAA},
		Nonce:           HexBytes{0x09},
		CoinPublicKey:   "mn_shield-cpk_undeployed1xyz",
	}
	first, err := tx.Serialize()
	c.Assert(err, qt.IsNil)
	second, err := tx.Serialize()
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.DeepEquals, second)

	decoded, err := DeserializeUnprovenTx(first)
	c.Assert(err, qt.IsNil)
	c.Assert(decoded, qt.DeepEquals, tx)

	h, err := tx.Hash()
	c.Assert(err, qt.IsNil)
	c.Assert(h, qt.HasLen, 32)
	c.Assert(TxKindDeploy.String(), qt.Equals, "deploy")
}
