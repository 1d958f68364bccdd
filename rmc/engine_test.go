package rmc

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/types"
)

func testKeychains(t *testing.T, n int) []*crypto.AggregateMultiKeychain {
	t.Helper()
	pub := make(map[types.NodeIndex]*btcec.PublicKey, n)
	privs := make([]*btcec.PrivateKey, n)
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		privs[i] = priv
		pub[types.NodeIndex(i)] = priv.PubKey()
	}
	out := make([]*crypto.AggregateMultiKeychain, n)
	for i := 0; i < n; i++ {
		box := crypto.NewECDSAKeyBox(types.NodeIndex(i), privs[i], pub)
		out[i] = crypto.NewAggregateMultiKeychain(box, types.NodeCount(n))
	}
	return out
}

func TestEngineLocalQuorumCompletes(t *testing.T) {
	n := 7
	keychains := testKeychains(t, n)
	hash := crypto.Hash{1, 2, 3}
	quorum := types.NodeCount(n).Quorum()

	engine := NewEngine(keychains[0], clock.NewDefaultClock(), 20*time.Millisecond)
	require.NoError(t, engine.Start())
	defer engine.Stop()

	engine.StartHash(hash)

	for i := 1; i < quorum; i++ {
		sig := keychains[i].SignPartial(hash[:])
		require.NoError(t, engine.HandlePartialSig(hash, types.NodeIndex(i), sig))
	}

	select {
	case ev := <-engine.Events():
		// The first events may be PartialSig broadcasts of our own
		// contribution; drain until we see the completion.
		for ev.Kind != EventMultisigned {
			select {
			case ev = <-engine.Events():
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for EventMultisigned")
			}
		}
		require.Equal(t, hash, ev.Hash)
		require.True(t, ev.Multisig.Complete())
		require.Equal(t, quorum, ev.Multisig.Signers())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
}

func TestEngineHandleCompleteShortCircuits(t *testing.T) {
	n := 7
	keychains := testKeychains(t, n)
	hash := crypto.Hash{4, 5, 6}
	quorum := types.NodeCount(n).Quorum()

	acc := keychains[1].NewAccumulator(hash[:])
	for i := 0; i < quorum; i++ {
		sig := keychains[i].SignPartial(hash[:])
		acc = acc.AddSignature(types.NodeIndex(i), sig)
	}
	require.True(t, acc.Complete())
	encoded := acc.Encode()

	engine := NewEngine(keychains[2], clock.NewDefaultClock(), time.Hour)
	require.NoError(t, engine.Start())
	defer engine.Stop()

	require.NoError(t, engine.HandleComplete(hash, encoded))

	select {
	case ev := <-engine.Events():
		require.Equal(t, EventMultisigned, ev.Kind)
		require.Equal(t, hash, ev.Hash)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for EventMultisigned")
	}
}

// TestEngineStartHashPromotesPassiveEntry covers the case where an inbound
// partial signature for a hash arrives before this node calls StartHash for
// it (e.g. StartHash is gated on a backup-write ack that hasn't landed
// yet). HandlePartialSig creates a passive entry that doesn't yet carry
// this node's own contribution or a retransmission schedule; StartHash must
// promote it rather than treat its mere existence as "already driving."
func TestEngineStartHashPromotesPassiveEntry(t *testing.T) {
	n := 7
	keychains := testKeychains(t, n)
	hash := crypto.Hash{9, 9, 9}
	quorum := types.NodeCount(n).Quorum()

	engine := NewEngine(keychains[0], clock.NewDefaultClock(), 20*time.Millisecond)
	require.NoError(t, engine.Start())
	defer engine.Stop()

	// A peer's partial sig arrives first, before we've decided to drive
	// this hash ourselves.
	sig := keychains[1].SignPartial(hash[:])
	require.NoError(t, engine.HandlePartialSig(hash, types.NodeIndex(1), sig))

	// Now local consensus (simulated: the backup-write ack) tells us to
	// start driving the same hash. This must fold in our own signature,
	// not no-op.
	engine.StartHash(hash)

	for i := 2; i < quorum; i++ {
		sig := keychains[i].SignPartial(hash[:])
		require.NoError(t, engine.HandlePartialSig(hash, types.NodeIndex(i), sig))
	}

	select {
	case ev := <-engine.Events():
		for ev.Kind != EventMultisigned {
			select {
			case ev = <-engine.Events():
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for EventMultisigned")
			}
		}
		require.Equal(t, hash, ev.Hash)
		require.True(t, ev.Multisig.Complete())
		require.Equal(t, quorum, ev.Multisig.Signers())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
}

func TestEngineRejectsInvalidPartialSig(t *testing.T) {
	n := 4
	keychains := testKeychains(t, n)
	hash := crypto.Hash{7, 7, 7}

	engine := NewEngine(keychains[0], clock.NewDefaultClock(), time.Hour)
	require.NoError(t, engine.Start())
	defer engine.Stop()

	badSig := keychains[1].SignPartial([]byte("wrong message"))
	err := engine.HandlePartialSig(hash, types.NodeIndex(1), badSig)
	require.ErrorIs(t, err, ErrInvalidPartialSig)
}
