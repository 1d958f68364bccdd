// Package crypto defines the capability sets the fork-alert subsystem is
// polymorphic over (§9 of the design notes): a Hasher producing fixed-size
// identifiers, a KeyBox that signs and verifies on behalf of one node, and a
// MultiKeychain that aggregates partial signatures into a multisignature.
// The concrete implementations in this package are built on btcec/v2 and
// chainhash, the signing stack the teacher repository itself depends on.
package crypto

import "github.com/aleph-forkalert/forkalert/types"

// HashSize is the width of every identifier produced by Hasher.
const HashSize = 32

// Hash is a fixed-size content identifier, used both for unit/alert hashes
// and for the hashes RMC operates on.
type Hash [HashSize]byte

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Hasher produces a Hash from an arbitrary byte encoding.
type Hasher interface {
	Hash(data []byte) Hash
}

// Signature is an opaque signature value. Its encoding is whatever the
// concrete KeyBox implementation produces; callers must not assume a fixed
// width and should compare with bytes.Equal rather than ==.
type Signature []byte

// KeyBox signs on behalf of one node and verifies signatures claimed to be
// by any node.
type KeyBox interface {
	// Index returns the node this KeyBox signs on behalf of.
	Index() types.NodeIndex
	// Sign returns a signature over data under this KeyBox's own key.
	Sign(data []byte) Signature
	// Verify checks that sig is a valid signature by node over data.
	Verify(node types.NodeIndex, data []byte, sig Signature) bool
}

// PartialMultisignature accumulates verified partial signatures on a single
// message, indexed by signer, until a quorum completes it.
type PartialMultisignature interface {
	// AddSignature folds in a signature by node, returning a new
	// accumulator (partial multisignatures are immutable values).
	AddSignature(node types.NodeIndex, sig Signature) PartialMultisignature
	// Signers returns how many distinct signers have been folded in.
	Signers() int
	// Complete reports whether the quorum threshold has been reached.
	Complete() bool
	// Encode serializes the accumulator for wire/backup use.
	Encode() []byte
}

// MultiKeychain is a KeyBox augmented with the ability to build and verify
// partial multisignatures over a quorum of NMembers participants.
type MultiKeychain interface {
	KeyBox

	NMembers() types.NodeCount

	// SignPartial produces this node's partial signature contribution for
	// data.
	SignPartial(data []byte) Signature

	// VerifyPartial checks a claimed partial signature by node over data.
	VerifyPartial(node types.NodeIndex, data []byte, sig Signature) bool

	// NewAccumulator returns an empty PartialMultisignature for data.
	NewAccumulator(data []byte) PartialMultisignature

	// DecodeMultisignature parses a multisignature previously produced
	// by Encode, associated with the given message, and reports whether
	// it verifies as complete.
	DecodeMultisignature(data []byte, raw []byte) (PartialMultisignature, bool)
}
