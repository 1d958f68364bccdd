// Package unit defines the DAG vertex type the fork-alert subsystem reasons
// about, and the cryptographic envelope (SignedUnit) a creator wraps it in.
// The DAG itself — how units get created, linked, and ordered — is out of
// scope (spec §1); this package only needs enough of a unit's shape to
// support equivocation proofs and backup replay.
package unit

import (
	"bytes"
	"errors"
	"io"

	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/internal/codec"
	"github.com/aleph-forkalert/forkalert/types"
)

// ErrTruncated is returned by Decode when the input ends inside the control
// hash or the parents mask; truncation in the other fields surfaces as
// codec.ErrTruncated.
var ErrTruncated = errors.New("unit: truncated encoding")

// ControlHash summarises a unit's parents: a hash of the full parent set,
// plus a mask recording which creators contributed a parent, indexed by
// NodeIndex. The mask is what backup replay (§4.3) walks to confirm every
// referenced parent was already seen.
type ControlHash struct {
	Hash        crypto.Hash
	ParentsMask []bool
}

// Parents returns the NodeIndex of every creator whose unit at round-1 is a
// parent of this unit, per the mask.
func (c ControlHash) Parents() []types.NodeIndex {
	var out []types.NodeIndex
	for i, present := range c.ParentsMask {
		if present {
			out = append(out, types.NodeIndex(i))
		}
	}
	return out
}

// Unit is a single DAG vertex.
type Unit struct {
	Creator     types.NodeIndex
	Round       types.Round
	SessionID   types.SessionId
	ControlHash ControlHash
	Data        []byte
}

// Coord identifies a unit by its (round, creator) coordinate, the
// granularity at which equivocation is defined.
type Coord struct {
	Round   types.Round
	Creator types.NodeIndex
}

// Coord returns u's coordinate.
func (u Unit) Coord() Coord {
	return Coord{Round: u.Round, Creator: u.Creator}
}

// Encode writes u's canonical, fixed-layout encoding to w. The same bytes
// are used to compute a signing digest and to persist the unit to backup,
// so this must never change shape for a given logical value.
func (u Unit) Encode(w io.Writer) error {
	if err := codec.WriteUint16(w, uint16(u.Creator)); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, uint32(u.Round)); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, uint64(u.SessionID)); err != nil {
		return err
	}
	if _, err := w.Write(u.ControlHash.Hash[:]); err != nil {
		return err
	}
	if err := codec.WriteUint16(w, uint16(len(u.ControlHash.ParentsMask))); err != nil {
		return err
	}
	for _, present := range u.ControlHash.ParentsMask {
		b := byte(0)
		if present {
			b = 1
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
	}
	return codec.WriteBytes(w, u.Data)
}

// Decode reads a Unit previously written by Encode from r.
func Decode(r io.Reader) (Unit, error) {
	var u Unit

	creator, err := codec.ReadUint16(r)
	if err != nil {
		return u, err
	}
	u.Creator = types.NodeIndex(creator)

	round, err := codec.ReadUint32(r)
	if err != nil {
		return u, err
	}
	u.Round = types.Round(round)

	session, err := codec.ReadUint64(r)
	if err != nil {
		return u, err
	}
	u.SessionID = types.SessionId(session)

	if _, err := io.ReadFull(r, u.ControlHash.Hash[:]); err != nil {
		return u, ErrTruncated
	}

	maskLen, err := codec.ReadUint16(r)
	if err != nil {
		return u, err
	}
	mask := make([]bool, maskLen)
	var b [1]byte
	for i := range mask {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return u, ErrTruncated
		}
		mask[i] = b[0] != 0
	}
	u.ControlHash.ParentsMask = mask

	data, err := codec.ReadBytes(r)
	if err != nil {
		return u, err
	}
	u.Data = data

	return u, nil
}

// encodeToBytes renders u's canonical encoding into a byte slice, for use
// as a signing or hashing digest.
func encodeToBytes(u Unit) ([]byte, error) {
	var buf bytes.Buffer
	if err := u.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeToBytes exports encodeToBytes for callers outside this package
// that need the same canonical digest, e.g. to content-address a unit.
func EncodeToBytes(u Unit) ([]byte, error) {
	return encodeToBytes(u)
}

// Hash returns u's content hash under hasher.
func (u Unit) Hash(hasher crypto.Hasher) crypto.Hash {
	enc, err := encodeToBytes(u)
	if err != nil {
		panic(err)
	}
	return hasher.Hash(enc)
}

// SignedUnit bundles a Unit with its creator's claimed signature. A
// SignedUnit is "unchecked" until Check succeeds; callers must not trust any
// field until then (mirrors the reference implementation's
// UncheckedSignedUnit/Signed distinction).
type SignedUnit struct {
	Unit      Unit
	Signature crypto.Signature
}

// Check verifies that Signature is a valid signature by Unit.Creator over
// Unit's canonical encoding.
func (s SignedUnit) Check(box crypto.KeyBox) error {
	digest, err := encodeToBytes(s.Unit)
	if err != nil {
		return err
	}
	if !box.Verify(s.Unit.Creator, digest, s.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces a SignedUnit over u using box, which must sign on behalf of
// u.Creator.
func Sign(box crypto.KeyBox, u Unit) (SignedUnit, error) {
	digest, err := encodeToBytes(u)
	if err != nil {
		return SignedUnit{}, err
	}
	return SignedUnit{Unit: u, Signature: box.Sign(digest)}, nil
}

// ErrInvalidSignature is returned by Check when a claimed signature does not
// verify.
var ErrInvalidSignature = errors.New("unit: invalid signature")

// Errors returned by NewForkProof and ForkProof.Check when a candidate pair
// does not constitute genuine equivocation.
var (
	ErrNotSameCreator = errors.New("unit: units have different creators")
	ErrNotSameRound   = errors.New("unit: units have different rounds")
	ErrNotSameSession = errors.New("unit: units have different sessions")
	ErrNotAFork       = errors.New("unit: units are identical, not a fork")
)
