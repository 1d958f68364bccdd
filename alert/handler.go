package alert

import (
	"sync"

	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/types"
	"github.com/aleph-forkalert/forkalert/unit"
)

// rmcKey identifies the (alerter, forker) pair the RMC designation table is
// keyed by.
type rmcKey struct {
	Sender types.NodeIndex
	Forker types.NodeIndex
}

// RmcOutcome classifies what a service should do with an inbound RMC
// message once the handler has looked at its hash.
type RmcOutcome int

const (
	// RmcForward means the message concerns the current (or a completed)
	// designation for its pair and should be passed to the RMC engine.
	RmcForward RmcOutcome = iota
	// RmcRequestAlert means the hash is unknown; the service should ask
	// the sender for the alert body.
	RmcRequestAlert
	// RmcDropStale means the hash belongs to a pair whose designation has
	// moved on; the message should be dropped silently.
	RmcDropStale
)

// RmcMessageResult is returned by Handler.OnRmcMessage.
type RmcMessageResult struct {
	Outcome     RmcOutcome
	Hash        crypto.Hash
	RequestFrom types.NodeIndex
}

// ConfirmResult is returned by Handler.AlertConfirmed.
type ConfirmResult struct {
	// Notification is non-nil when legit_units validated and should be
	// released to consensus.
	Notification *ForkingNotification
	// LegitUnitsInvalid is true when the multisignature was recorded but
	// legit_units failed validation, so no notification is emitted. The
	// caller should log this at warn.
	LegitUnitsInvalid bool
}

// Handler is the subsystem's pure decision logic: it owns no I/O and
// spawns no goroutines. Every method is a synchronous function from
// current state plus an input to a new state plus a descriptor of what the
// owning service should do next.
type Handler struct {
	mu sync.Mutex

	ownIndex  types.NodeIndex
	sessionID types.SessionId
	hasher    crypto.Hasher
	box       crypto.KeyBox

	forkers      map[types.NodeIndex]unit.ForkProof
	knownAlerts  map[crypto.Hash]SignedAlert
	rmcTable     map[rmcKey]crypto.Hash
}

// NewHandler builds a Handler for node ownIndex in session sessionID. box
// must be able to verify signatures from every session member; hasher
// computes alert content hashes.
func NewHandler(ownIndex types.NodeIndex, sessionID types.SessionId, hasher crypto.Hasher, box crypto.KeyBox) *Handler {
	return &Handler{
		ownIndex:    ownIndex,
		sessionID:   sessionID,
		hasher:      hasher,
		box:         box,
		forkers:     make(map[types.NodeIndex]unit.ForkProof),
		knownAlerts: make(map[crypto.Hash]SignedAlert),
		rmcTable:    make(map[rmcKey]crypto.Hash),
	}
}

// IsKnownForker reports whether creator already has a recorded ForkProof.
func (h *Handler) IsKnownForker(creator types.NodeIndex) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.forkers[creator]
	return ok
}

// OnOwnAlert handles an alert raised by local consensus. Preconditions: the
// caller has already verified a.Proof constitutes a genuine fork by
// a.Forker(). Returns the signed alert to broadcast to everyone and its
// hash.
func (h *Handler) OnOwnAlert(a *Alert) (SignedAlert, crypto.Hash, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	signed, err := Sign(h.box, a)
	if err != nil {
		return SignedAlert{}, crypto.Hash{}, err
	}
	hash := a.Hash(h.hasher)

	h.forkers[a.Forker()] = a.Proof
	h.rmcTable[rmcKey{Sender: a.Sender, Forker: a.Forker()}] = hash
	h.knownAlerts[hash] = signed

	return signed, hash, nil
}

// NetworkAlertResult is returned by Handler.OnNetworkAlert when the alert
// newly registers an RMC designation for its (sender, forker) pair. A nil
// *NetworkAlertResult (with a nil error) means the alert was cached but a
// canonical alert for its pair is already being multicast: the caller must
// take no further action (no backup write, no RMC start), per spec §4.1
// step 3.
type NetworkAlertResult struct {
	// Notification is non-nil only when the forker is newly discovered.
	Notification *ForkingNotification
	Hash         crypto.Hash
}

// OnNetworkAlert validates and classifies an alert received from the
// network. A non-nil error means the alert must be dropped and logged at
// warn; the handler's state is unchanged in that case. A nil result (with
// a nil error) means the alert was cached for future AlertRequest probes
// but requires no other action.
func (h *Handler) OnNetworkAlert(signed SignedAlert) (*NetworkAlertResult, error) {
	if err := signed.Check(h.box); err != nil {
		return nil, err
	}
	forker, err := h.whoIsForking(signed.Alert.Proof)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	hash := signed.Alert.Hash(h.hasher)
	key := rmcKey{Sender: signed.Alert.Sender, Forker: forker}

	if _, ok := h.rmcTable[key]; ok {
		// Already multicasting a canonical alert for this pair; cache this
		// one so we can still answer alert requests for its hash, but do
		// not hand it back to RMC: that would let a non-canonical alert
		// independently reach quorum for the same pair.
		h.knownAlerts[hash] = signed
		return nil, nil
	}

	var notification *ForkingNotification
	if _, known := h.forkers[forker]; !known {
		h.forkers[forker] = signed.Alert.Proof
		n := NotifyForker(signed.Alert.Proof)
		notification = &n
	}

	h.rmcTable[key] = hash
	h.knownAlerts[hash] = signed

	return &NetworkAlertResult{Notification: notification, Hash: hash}, nil
}

// OnRmcMessage classifies an inbound RMC-layer message concerning hash,
// received (over the network) from networkSender. complete indicates
// whether the message is an RmcMessage::Complete (a full multisignature)
// as opposed to a partial signature.
func (h *Handler) OnRmcMessage(networkSender types.NodeIndex, hash crypto.Hash, complete bool) RmcMessageResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	signed, ok := h.knownAlerts[hash]
	if !ok {
		return RmcMessageResult{Outcome: RmcRequestAlert, Hash: hash, RequestFrom: networkSender}
	}

	key := rmcKey{Sender: signed.Alert.Sender, Forker: signed.Alert.Forker()}
	current, haveCurrent := h.rmcTable[key]

	if complete || (haveCurrent && current == hash) {
		return RmcMessageResult{Outcome: RmcForward, Hash: hash}
	}
	return RmcMessageResult{Outcome: RmcDropStale, Hash: hash}
}

// OnAlertRequest returns the cached alert for hash, if any.
func (h *Handler) OnAlertRequest(hash crypto.Hash) (SignedAlert, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	signed, ok := h.knownAlerts[hash]
	return signed, ok
}

// AlertConfirmed is invoked by the owning service when the RMC engine
// reports a completed multisignature for hash. It promotes that alert to
// canonical for its (sender, forker) pair and validates legit_units.
func (h *Handler) AlertConfirmed(hash crypto.Hash) (ConfirmResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	signed, ok := h.knownAlerts[hash]
	if !ok {
		return ConfirmResult{}, ErrUnknownAlert
	}

	key := rmcKey{Sender: signed.Alert.Sender, Forker: signed.Alert.Forker()}
	h.rmcTable[key] = hash

	if err := h.validateLegitUnits(signed.Alert); err != nil {
		return ConfirmResult{LegitUnitsInvalid: true}, nil
	}

	return ConfirmResult{Notification: &ForkingNotification{Units: signed.Alert.LegitUnits}}, nil
}

// whoIsForking validates proof per spec: both units correctly signed by the
// same creator, same round, current session, and not bit-identical. It
// returns the indicted creator on success.
func (h *Handler) whoIsForking(proof unit.ForkProof) (types.NodeIndex, error) {
	if err := proof.Check(h.box); err != nil {
		return 0, err
	}
	if proof.U1.Unit.SessionID != h.sessionID {
		return 0, ErrWrongSession
	}
	return proof.Creator(), nil
}

// validateLegitUnits checks that every unit in a.LegitUnits is signed by
// a.Forker(), lies in the current session, and has a distinct round from
// every other legit unit.
func (h *Handler) validateLegitUnits(a *Alert) error {
	forker := a.Forker()
	seenRounds := make(map[types.Round]struct{}, len(a.LegitUnits))
	for _, su := range a.LegitUnits {
		if su.Unit.Creator != forker {
			return ErrInvalidLegitUnit
		}
		if su.Unit.SessionID != h.sessionID {
			return ErrWrongSession
		}
		if err := su.Check(h.box); err != nil {
			return err
		}
		if _, dup := seenRounds[su.Unit.Round]; dup {
			return ErrInvalidLegitRound
		}
		seenRounds[su.Unit.Round] = struct{}{}
	}
	return nil
}
