package unit

import (
	"bytes"

	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/types"
)

// ForkProof is evidence that a single creator produced two distinct units at
// the same (round, session) coordinate. The two SignedUnits are otherwise
// interchangeable; nothing depends on which one is U1 vs U2.
type ForkProof struct {
	U1 SignedUnit
	U2 SignedUnit
}

// NewForkProof builds a ForkProof from two SignedUnits, checking that they
// genuinely constitute equivocation: same creator, same round, same
// session, and not bit-identical encodings. It does not verify signatures;
// callers that receive units from the network must Check each one first.
func NewForkProof(u1, u2 SignedUnit) (ForkProof, error) {
	if err := sameCoordDifferentContent(u1.Unit, u2.Unit); err != nil {
		return ForkProof{}, err
	}
	return ForkProof{U1: u1, U2: u2}, nil
}

// Creator returns the NodeIndex this proof indicts.
func (f ForkProof) Creator() types.NodeIndex {
	return f.U1.Unit.Creator
}

// Check verifies that both constituent SignedUnits carry a valid signature
// from their claimed creator under box, and that the pair still constitutes
// a genuine fork.
func (f ForkProof) Check(box crypto.KeyBox) error {
	if err := f.U1.Check(box); err != nil {
		return err
	}
	if err := f.U2.Check(box); err != nil {
		return err
	}
	return sameCoordDifferentContent(f.U1.Unit, f.U2.Unit)
}

func sameCoordDifferentContent(a, b Unit) error {
	if a.Creator != b.Creator {
		return ErrNotSameCreator
	}
	if a.Round != b.Round {
		return ErrNotSameRound
	}
	if a.SessionID != b.SessionID {
		return ErrNotSameSession
	}
	ea, err := encodeToBytes(a)
	if err != nil {
		return err
	}
	eb, err := encodeToBytes(b)
	if err != nil {
		return err
	}
	if bytes.Equal(ea, eb) {
		return ErrNotAFork
	}
	return nil
}
