package crypto

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/aleph-forkalert/forkalert/types"
)

func testKeychains(t *testing.T, n int) []*AggregateMultiKeychain {
	t.Helper()

	pub := make(map[types.NodeIndex]*btcec.PublicKey, n)
	privs := make([]*btcec.PrivateKey, n)
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		privs[i] = priv
		pub[types.NodeIndex(i)] = priv.PubKey()
	}

	out := make([]*AggregateMultiKeychain, n)
	for i := 0; i < n; i++ {
		box := NewECDSAKeyBox(types.NodeIndex(i), privs[i], pub)
		out[i] = NewAggregateMultiKeychain(box, types.NodeCount(n))
	}
	return out
}

func TestSignAndVerify(t *testing.T) {
	keychains := testKeychains(t, 4)
	msg := []byte("hello fork")

	sig := keychains[0].Sign(msg)
	require.True(t, keychains[1].Verify(types.NodeIndex(0), msg, sig))
	require.False(t, keychains[1].Verify(types.NodeIndex(0), []byte("tampered"), sig))
	require.False(t, keychains[1].Verify(types.NodeIndex(2), msg, sig))
}

func TestMultisignatureQuorum(t *testing.T) {
	n := 7
	keychains := testKeychains(t, n)
	msg := []byte("alert hash")
	quorum := types.NodeCount(n).Quorum()
	require.Equal(t, 5, quorum)

	acc := keychains[0].NewAccumulator(msg)
	require.False(t, acc.Complete())

	for i := 0; i < quorum-1; i++ {
		sig := keychains[i].SignPartial(msg)
		acc = acc.AddSignature(types.NodeIndex(i), sig)
	}
	require.False(t, acc.Complete())

	sig := keychains[quorum-1].SignPartial(msg)
	acc = acc.AddSignature(types.NodeIndex(quorum-1), sig)
	require.True(t, acc.Complete())

	encoded := acc.Encode()
	decoded, complete := keychains[1].DecodeMultisignature(msg, encoded)
	require.True(t, complete)
	require.Equal(t, quorum, decoded.Signers())
}

func TestChainHasherDeterministic(t *testing.T) {
	h := ChainHasher{}
	a := h.Hash([]byte("same input"))
	b := h.Hash([]byte("same input"))
	require.Equal(t, a, b)
	require.False(t, a.IsZero())

	c := h.Hash([]byte("different input"))
	require.NotEqual(t, a, c)
}
