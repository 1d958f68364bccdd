// Package backup implements the write-ahead log the fork-alert subsystem
// persists every durable-consequence decision to before emitting the
// corresponding outgoing action: raising an own alert, accepting a network
// alert, or observing a completed multisignature. It is modeled on the
// teacher's retributionStore (breacharbiter.go) for the
// append/read-back/verify-on-restart shape.
package backup

import (
	"bytes"
	"io"

	"github.com/aleph-forkalert/forkalert/alert"
	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/internal/codec"
	"github.com/aleph-forkalert/forkalert/unit"
	"github.com/aleph-forkalert/forkalert/wire"
)

// RecordKind tags which of the four record shapes a backup entry is.
type RecordKind byte

const (
	// RecordUnit persists one of this node's own DAG units, written by
	// the external unit-creator via the backup coupling channel.
	RecordUnit RecordKind = 1
	// RecordOwnAlert persists an alert this node decided to raise.
	RecordOwnAlert RecordKind = 2
	// RecordNetworkAlert persists an incoming alert this node accepted.
	RecordNetworkAlert RecordKind = 3
	// RecordMultisignedHash persists an RMC completion this node
	// observed, for any alert hash (own or network-originated).
	RecordMultisignedHash RecordKind = 4
)

// Record is one entry in the append-only backup stream. Kind selects which
// payload is populated: Unit, OwnAlert, NetworkAlert, or Hash together with
// Multisig.
type Record struct {
	Kind RecordKind

	Unit unit.SignedUnit

	OwnAlert     alert.SignedAlert
	NetworkAlert alert.SignedAlert

	Hash     crypto.Hash
	Multisig []byte
}

// NewUnitRecord builds a RecordUnit entry.
func NewUnitRecord(su unit.SignedUnit) Record {
	return Record{Kind: RecordUnit, Unit: su}
}

// NewOwnAlertRecord builds a RecordOwnAlert entry.
func NewOwnAlertRecord(signed alert.SignedAlert) Record {
	return Record{Kind: RecordOwnAlert, OwnAlert: signed}
}

// NewNetworkAlertRecord builds a RecordNetworkAlert entry.
func NewNetworkAlertRecord(signed alert.SignedAlert) Record {
	return Record{Kind: RecordNetworkAlert, NetworkAlert: signed}
}

// NewMultisignedRecord builds a RecordMultisignedHash entry. raw is the
// encoding produced by crypto.PartialMultisignature.Encode.
func NewMultisignedRecord(hash crypto.Hash, raw []byte) Record {
	return Record{Kind: RecordMultisignedHash, Hash: hash, Multisig: raw}
}

// Encode writes r's canonical encoding to w: a one-byte kind tag followed
// by the self-delimiting wire encoding of its payload. No outer length
// prefix is needed or written, since every payload shape already tells a
// forward-only reader exactly how many bytes to consume.
func (r Record) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{byte(r.Kind)}); err != nil {
		return err
	}
	switch r.Kind {
	case RecordUnit:
		return wire.EncodeSignedUnit(w, r.Unit)
	case RecordOwnAlert:
		return wire.EncodeSignedAlert(w, r.OwnAlert)
	case RecordNetworkAlert:
		return wire.EncodeSignedAlert(w, r.NetworkAlert)
	case RecordMultisignedHash:
		if _, err := w.Write(r.Hash[:]); err != nil {
			return err
		}
		return codec.WriteBytes(w, r.Multisig)
	default:
		return ErrUnknownRecordKind
	}
}

// EncodeToBytes renders r's canonical encoding as a byte slice.
func (r Record) EncodeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRecord reads a Record previously written by Encode from r.
func DecodeRecord(r io.Reader) (Record, error) {
	var kb [1]byte
	if _, err := io.ReadFull(r, kb[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, codec.ErrTruncated
	}
	kind := RecordKind(kb[0])

	switch kind {
	case RecordUnit:
		su, err := wire.DecodeSignedUnit(r)
		if err != nil {
			return Record{}, err
		}
		return NewUnitRecord(su), nil
	case RecordOwnAlert:
		signed, err := wire.DecodeSignedAlert(r)
		if err != nil {
			return Record{}, err
		}
		return NewOwnAlertRecord(signed), nil
	case RecordNetworkAlert:
		signed, err := wire.DecodeSignedAlert(r)
		if err != nil {
			return Record{}, err
		}
		return NewNetworkAlertRecord(signed), nil
	case RecordMultisignedHash:
		var hash crypto.Hash
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return Record{}, codec.ErrTruncated
		}
		raw, err := codec.ReadBytes(r)
		if err != nil {
			return Record{}, err
		}
		return NewMultisignedRecord(hash, raw), nil
	default:
		return Record{}, ErrUnknownRecordKind
	}
}
