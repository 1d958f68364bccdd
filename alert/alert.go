// Package alert defines the Alert value broadcast when one honest
// participant accuses another of equivocation, and the pure decision logic
// (Handler) that validates alerts, classifies incoming protocol events, and
// computes the actions the owning service should take next. Handler owns no
// I/O and no goroutines, the same separation the teacher draws between its
// ControlTower decision logic and the Switch that actually moves bytes.
package alert

import (
	"bytes"
	"sync"

	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/internal/codec"
	"github.com/aleph-forkalert/forkalert/types"
	"github.com/aleph-forkalert/forkalert/unit"
)

// Alert is what one honest participant broadcasts about an observed fork.
type Alert struct {
	Sender     types.NodeIndex
	Proof      unit.ForkProof
	LegitUnits []unit.SignedUnit

	hashOnce sync.Once
	hash     crypto.Hash
}

// Forker returns the creator this alert's proof indicts.
func (a *Alert) Forker() types.NodeIndex {
	return a.Proof.Creator()
}

// Hash returns a's content hash, computed lazily from the canonical
// encoding of Sender, Proof and LegitUnits under hasher. Hash is
// idempotent and safe for concurrent callers: the computation is pure, so a
// lost race between two callers has no observable effect, and sync.Once
// ensures every caller after the first sees the same cached value.
func (a *Alert) Hash(hasher crypto.Hasher) crypto.Hash {
	a.hashOnce.Do(func() {
		enc, err := a.encode()
		if err != nil {
			// Encode only fails on writer errors, which bytes.Buffer never
			// returns; a failure here would be a programming error.
			panic(err)
		}
		a.hash = hasher.Hash(enc)
	})
	return a.hash
}

// encode renders the canonical byte representation that Sign, Check, and
// Hash all hash or sign over.
func (a *Alert) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.WriteUint16(&buf, uint16(a.Sender)); err != nil {
		return nil, err
	}
	if err := a.Proof.U1.Unit.Encode(&buf); err != nil {
		return nil, err
	}
	if err := codec.WriteBytes(&buf, a.Proof.U1.Signature); err != nil {
		return nil, err
	}
	if err := a.Proof.U2.Unit.Encode(&buf); err != nil {
		return nil, err
	}
	if err := codec.WriteBytes(&buf, a.Proof.U2.Signature); err != nil {
		return nil, err
	}
	if err := codec.WriteUint32(&buf, uint32(len(a.LegitUnits))); err != nil {
		return nil, err
	}
	for _, su := range a.LegitUnits {
		if err := su.Unit.Encode(&buf); err != nil {
			return nil, err
		}
		if err := codec.WriteBytes(&buf, su.Signature); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// SignedAlert bundles an Alert with its sender's signature over the alert's
// canonical encoding.
type SignedAlert struct {
	Alert     *Alert
	Signature crypto.Signature
}

// Sign produces a SignedAlert over a using box, which must sign on behalf
// of a.Sender.
func Sign(box crypto.KeyBox, a *Alert) (SignedAlert, error) {
	enc, err := a.encode()
	if err != nil {
		return SignedAlert{}, err
	}
	return SignedAlert{Alert: a, Signature: box.Sign(enc)}, nil
}

// Check verifies that Signature is a valid signature by Alert.Sender over
// Alert's canonical encoding.
func (s SignedAlert) Check(box crypto.KeyBox) error {
	enc, err := s.Alert.encode()
	if err != nil {
		return err
	}
	if !box.Verify(s.Alert.Sender, enc, s.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// ForkingNotification is handed upstream to consensus: either a newly
// identified forker (so consensus can gate that creator's future units) or
// a list of units the alerting quorum has agreed to legitimise.
type ForkingNotification struct {
	// Forker is set when this notification reports a newly discovered
	// forker; Units is unset in that case.
	Forker *unit.ForkProof
	// Units is set when this notification releases a forker's legitimised
	// units into the DAG; Forker is unset in that case.
	Units []unit.SignedUnit
}

// NotifyForker builds a ForkingNotification reporting a new forker.
func NotifyForker(proof unit.ForkProof) ForkingNotification {
	return ForkingNotification{Forker: &proof}
}

// NotifyUnits builds a ForkingNotification releasing legit_units.
func NotifyUnits(units []unit.SignedUnit) ForkingNotification {
	return ForkingNotification{Units: units}
}
