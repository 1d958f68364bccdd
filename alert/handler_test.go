package alert

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/types"
	"github.com/aleph-forkalert/forkalert/unit"
)

const testSession = types.SessionId(0)

type testNet struct {
	boxes []*crypto.ECDSAKeyBox
}

func newTestNet(t *testing.T, n int) *testNet {
	t.Helper()
	pub := make(map[types.NodeIndex]*btcec.PublicKey, n)
	privs := make([]*btcec.PrivateKey, n)
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		privs[i] = priv
		pub[types.NodeIndex(i)] = priv.PubKey()
	}
	boxes := make([]*crypto.ECDSAKeyBox, n)
	for i := 0; i < n; i++ {
		boxes[i] = crypto.NewECDSAKeyBox(types.NodeIndex(i), privs[i], pub)
	}
	return &testNet{boxes: boxes}
}

func (tn *testNet) box(i types.NodeIndex) *crypto.ECDSAKeyBox {
	return tn.boxes[i]
}

func forkProof(t *testing.T, tn *testNet, forker types.NodeIndex, round types.Round, a, b []byte) unit.ForkProof {
	t.Helper()
	box := tn.box(forker)
	u1, err := unit.Sign(box, unit.Unit{Creator: forker, Round: round, SessionID: testSession, Data: a})
	require.NoError(t, err)
	u2, err := unit.Sign(box, unit.Unit{Creator: forker, Round: round, SessionID: testSession, Data: b})
	require.NoError(t, err)
	proof, err := unit.NewForkProof(u1, u2)
	require.NoError(t, err)
	return proof
}

func TestOnOwnAlert(t *testing.T) {
	tn := newTestNet(t, 7)
	proof := forkProof(t, tn, 6, 1, []byte("a"), []byte("b"))
	h := NewHandler(0, testSession, crypto.ChainHasher{}, tn.box(0))

	a := &Alert{Sender: 0, Proof: proof}
	signed, hash, err := h.OnOwnAlert(a)
	require.NoError(t, err)
	require.False(t, hash.IsZero())
	require.NoError(t, signed.Check(tn.box(0)))

	cached, ok := h.OnAlertRequest(hash)
	require.True(t, ok)
	require.Equal(t, signed.Alert, cached.Alert)
	require.True(t, h.IsKnownForker(6))
}

func TestOnNetworkAlertNewForkerNotifies(t *testing.T) {
	tn := newTestNet(t, 7)
	proof := forkProof(t, tn, 6, 1, []byte("a"), []byte("b"))
	h := NewHandler(1, testSession, crypto.ChainHasher{}, tn.box(1))

	a := &Alert{Sender: 0, Proof: proof}
	signed, err := Sign(tn.box(0), a)
	require.NoError(t, err)

	result, err := h.OnNetworkAlert(signed)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Notification.Forker)
	require.Equal(t, types.NodeIndex(6), result.Notification.Forker.Creator())
	require.False(t, result.Hash.IsZero())

	// Repeating the same alert returns a nil result: the RMC entry for
	// (sender, forker) already exists, so no further action is needed.
	signed2, err := Sign(tn.box(0), &Alert{Sender: 0, Proof: proof})
	require.NoError(t, err)
	result2, err := h.OnNetworkAlert(signed2)
	require.NoError(t, err)
	require.Nil(t, result2)
}

func TestOnNetworkAlertRejectsSelfProof(t *testing.T) {
	tn := newTestNet(t, 7)
	box := tn.box(6)
	u1, err := unit.Sign(box, unit.Unit{Creator: 6, Round: 1, SessionID: testSession, Data: []byte("a")})
	require.NoError(t, err)

	h := NewHandler(1, testSession, crypto.ChainHasher{}, tn.box(1))
	a := &Alert{Sender: 0, Proof: unit.ForkProof{U1: u1, U2: u1}}
	signed, err := Sign(tn.box(0), a)
	require.NoError(t, err)

	_, err = h.OnNetworkAlert(signed)
	require.Error(t, err)
}

func TestOnRmcMessageUnknownHashRequestsAlert(t *testing.T) {
	h := NewHandler(0, testSession, crypto.ChainHasher{}, nil)
	result := h.OnRmcMessage(2, crypto.Hash{9, 9}, false)
	require.Equal(t, RmcRequestAlert, result.Outcome)
	require.Equal(t, types.NodeIndex(2), result.RequestFrom)
}

func TestOnRmcMessageForwardsMatchingAndDropsStale(t *testing.T) {
	tn := newTestNet(t, 7)
	proof := forkProof(t, tn, 6, 1, []byte("a"), []byte("b"))
	h := NewHandler(1, testSession, crypto.ChainHasher{}, tn.box(1))

	// The canonical designation for (1, 6): our own observation of the fork.
	own := &Alert{Sender: 1, Proof: proof}
	signedOwn, err := Sign(tn.box(1), own)
	require.NoError(t, err)
	_, hash, err := h.OnOwnAlert(own)
	require.NoError(t, err)
	_ = signedOwn

	result := h.OnRmcMessage(3, hash, false)
	require.Equal(t, RmcForward, result.Outcome)

	// A distinct alert for the same (sender, forker) pair, with different
	// legit_units so it hashes differently, is cached but not designated:
	// an RMC message citing it is stale.
	legit, err := unit.Sign(tn.box(6), unit.Unit{Creator: 6, Round: 9, SessionID: testSession, Data: []byte("other")})
	require.NoError(t, err)
	otherAlert := &Alert{Sender: 1, Proof: proof, LegitUnits: []unit.SignedUnit{legit}}
	otherSigned, err := Sign(tn.box(1), otherAlert)
	require.NoError(t, err)
	// Inject directly as a cached-but-not-designated alert, mirroring what
	// OnNetworkAlert's step-3 branch would do for a peer's alert on this
	// same pair.
	staleHash := otherAlert.Hash(crypto.ChainHasher{})
	h.knownAlerts[staleHash] = otherSigned

	result = h.OnRmcMessage(3, staleHash, false)
	require.Equal(t, RmcDropStale, result.Outcome)

	// The same stale hash, carried by a Complete message, still forwards.
	result = h.OnRmcMessage(3, staleHash, true)
	require.Equal(t, RmcForward, result.Outcome)
}

func TestAlertConfirmedReleasesUnits(t *testing.T) {
	tn := newTestNet(t, 7)
	proof := forkProof(t, tn, 6, 1, []byte("a"), []byte("b"))
	legit, err := unit.Sign(tn.box(6), unit.Unit{Creator: 6, Round: 2, SessionID: testSession, Data: []byte("legit")})
	require.NoError(t, err)

	h := NewHandler(0, testSession, crypto.ChainHasher{}, tn.box(0))
	a := &Alert{Sender: 0, Proof: proof, LegitUnits: []unit.SignedUnit{legit}}
	_, hash, err := h.OnOwnAlert(a)
	require.NoError(t, err)

	result, err := h.AlertConfirmed(hash)
	require.NoError(t, err)
	require.False(t, result.LegitUnitsInvalid)
	require.NotNil(t, result.Notification)
	require.Len(t, result.Notification.Units, 1)
}

func TestAlertConfirmedUnknownHash(t *testing.T) {
	h := NewHandler(0, testSession, crypto.ChainHasher{}, nil)
	_, err := h.AlertConfirmed(crypto.Hash{1})
	require.ErrorIs(t, err, ErrUnknownAlert)
}

func TestAlertConfirmedRejectsBadLegitUnits(t *testing.T) {
	tn := newTestNet(t, 7)
	proof := forkProof(t, tn, 6, 1, []byte("a"), []byte("b"))
	// legit unit signed by the wrong creator (0, not the forker 6).
	badLegit, err := unit.Sign(tn.box(0), unit.Unit{Creator: 0, Round: 2, SessionID: testSession, Data: []byte("x")})
	require.NoError(t, err)

	h := NewHandler(0, testSession, crypto.ChainHasher{}, tn.box(0))
	a := &Alert{Sender: 0, Proof: proof, LegitUnits: []unit.SignedUnit{badLegit}}
	_, hash, err := h.OnOwnAlert(a)
	require.NoError(t, err)

	result, err := h.AlertConfirmed(hash)
	require.NoError(t, err)
	require.True(t, result.LegitUnitsInvalid)
	require.Nil(t, result.Notification)
}
