package unit

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/types"
)

func testBox(t *testing.T, n int, me int) *crypto.ECDSAKeyBox {
	t.Helper()

	pub := make(map[types.NodeIndex]*btcec.PublicKey, n)
	var mine *btcec.PrivateKey
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		pub[types.NodeIndex(i)] = priv.PubKey()
		if i == me {
			mine = priv
		}
	}
	return crypto.NewECDSAKeyBox(types.NodeIndex(me), mine, pub)
}

func sampleUnit(creator types.NodeIndex, round types.Round, data []byte) Unit {
	return Unit{
		Creator:   creator,
		Round:     round,
		SessionID: types.SessionId(7),
		ControlHash: ControlHash{
			Hash:        crypto.Hash{1, 2, 3},
			ParentsMask: []bool{true, false, true},
		},
		Data: data,
	}
}

func TestUnitEncodeDecodeRoundTrip(t *testing.T) {
	u := sampleUnit(3, 5, []byte("payload"))

	var buf bytes.Buffer
	require.NoError(t, u.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, u, got)
}

func TestUnitEncodeIsCanonical(t *testing.T) {
	u := sampleUnit(3, 5, []byte("payload"))

	var b1, b2 bytes.Buffer
	require.NoError(t, u.Encode(&b1))
	require.NoError(t, u.Encode(&b2))
	require.Equal(t, b1.Bytes(), b2.Bytes())
}

func TestDecodeTruncated(t *testing.T) {
	u := sampleUnit(3, 5, []byte("payload"))
	var buf bytes.Buffer
	require.NoError(t, u.Encode(&buf))

	truncated := buf.Bytes()[:len(buf.Bytes())-2]
	_, err := Decode(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestSignAndCheck(t *testing.T) {
	box := testBox(t, 3, 0)
	u := sampleUnit(0, 1, []byte("data"))

	su, err := Sign(box, u)
	require.NoError(t, err)
	require.NoError(t, su.Check(box))

	su.Signature = append(crypto.Signature(nil), su.Signature...)
	su.Signature[0] ^= 0xFF
	require.Error(t, su.Check(box))
}

func TestNewForkProofDetectsEquivocation(t *testing.T) {
	box := testBox(t, 3, 0)

	u1, err := Sign(box, sampleUnit(0, 4, []byte("a")))
	require.NoError(t, err)
	u2, err := Sign(box, sampleUnit(0, 4, []byte("b")))
	require.NoError(t, err)

	proof, err := NewForkProof(u1, u2)
	require.NoError(t, err)
	require.Equal(t, types.NodeIndex(0), proof.Creator())
	require.NoError(t, proof.Check(box))
}

func TestNewForkProofRejectsIdentical(t *testing.T) {
	box := testBox(t, 3, 0)

	u1, err := Sign(box, sampleUnit(0, 4, []byte("a")))
	require.NoError(t, err)
	u2, err := Sign(box, sampleUnit(0, 4, []byte("a")))
	require.NoError(t, err)

	_, err = NewForkProof(u1, u2)
	require.ErrorIs(t, err, ErrNotAFork)
}

func TestNewForkProofRejectsDifferentCreator(t *testing.T) {
	box0 := testBox(t, 3, 0)
	box1 := testBox(t, 3, 1)

	u1, err := Sign(box0, sampleUnit(0, 4, []byte("a")))
	require.NoError(t, err)
	u2, err := Sign(box1, sampleUnit(1, 4, []byte("b")))
	require.NoError(t, err)

	_, err = NewForkProof(u1, u2)
	require.ErrorIs(t, err, ErrNotSameCreator)
}

func TestNewForkProofRejectsDifferentRound(t *testing.T) {
	box := testBox(t, 3, 0)

	u1, err := Sign(box, sampleUnit(0, 4, []byte("a")))
	require.NoError(t, err)
	u2, err := Sign(box, sampleUnit(0, 5, []byte("b")))
	require.NoError(t, err)

	_, err = NewForkProof(u1, u2)
	require.ErrorIs(t, err, ErrNotSameRound)
}
