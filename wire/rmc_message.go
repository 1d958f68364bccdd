package wire

import (
	"io"

	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/internal/codec"
	"github.com/aleph-forkalert/forkalert/types"
)

// RmcMessage is the payload the RMC engine exchanges over the network: a
// partial signature contribution on a hash, or a completed multisignature.
type RmcMessage struct {
	Kind Kind
	Hash crypto.Hash

	// Set when Kind == KindRmcPartialSig.
	Signer    types.NodeIndex
	Signature crypto.Signature

	// Set when Kind == KindRmcComplete: the encoding produced by
	// crypto.PartialMultisignature.Encode.
	Multisignature []byte
}

// NewPartialSig builds an RmcMessage carrying one signer's partial
// signature on hash.
func NewPartialSig(hash crypto.Hash, signer types.NodeIndex, sig crypto.Signature) RmcMessage {
	return RmcMessage{Kind: KindRmcPartialSig, Hash: hash, Signer: signer, Signature: sig}
}

// NewComplete builds an RmcMessage carrying a completed multisignature on
// hash.
func NewComplete(hash crypto.Hash, multisig []byte) RmcMessage {
	return RmcMessage{Kind: KindRmcComplete, Hash: hash, Multisignature: multisig}
}

// IsComplete reports whether m carries a completed multisignature.
func (m RmcMessage) IsComplete() bool {
	return m.Kind == KindRmcComplete
}

// Encode writes m's canonical encoding to w.
func (m RmcMessage) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{byte(m.Kind)}); err != nil {
		return err
	}
	if _, err := w.Write(m.Hash[:]); err != nil {
		return err
	}
	switch m.Kind {
	case KindRmcPartialSig:
		if err := codec.WriteUint16(w, uint16(m.Signer)); err != nil {
			return err
		}
		return codec.WriteBytes(w, m.Signature)
	case KindRmcComplete:
		return codec.WriteBytes(w, m.Multisignature)
	default:
		return ErrUnknownKind
	}
}

// DecodeRmcMessage reads an RmcMessage previously written by Encode from r.
func DecodeRmcMessage(r io.Reader) (RmcMessage, error) {
	var kb [1]byte
	if _, err := io.ReadFull(r, kb[:]); err != nil {
		return RmcMessage{}, codec.ErrTruncated
	}
	k := Kind(kb[0])

	var hash crypto.Hash
	if _, err := io.ReadFull(r, hash[:]); err != nil {
		return RmcMessage{}, codec.ErrTruncated
	}

	switch k {
	case KindRmcPartialSig:
		signer, err := codec.ReadUint16(r)
		if err != nil {
			return RmcMessage{}, err
		}
		sig, err := codec.ReadBytes(r)
		if err != nil {
			return RmcMessage{}, err
		}
		return NewPartialSig(hash, types.NodeIndex(signer), crypto.Signature(sig)), nil
	case KindRmcComplete:
		multisig, err := codec.ReadBytes(r)
		if err != nil {
			return RmcMessage{}, err
		}
		return NewComplete(hash, multisig), nil
	default:
		return RmcMessage{}, ErrUnknownKind
	}
}
