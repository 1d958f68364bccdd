package backup

import (
	"io"
	"os"

	"github.com/aleph-forkalert/forkalert/alert"
	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/types"
	"github.com/aleph-forkalert/forkalert/unit"
)

// MultisigEntry is one RecordMultisignedHash entry recovered from the log.
type MultisigEntry struct {
	Hash crypto.Hash
	Raw  []byte
}

// LoadResult is everything Load recovers from a backup file, partitioned by
// record kind, plus the round this node should resume creating units from.
type LoadResult struct {
	Units         []unit.SignedUnit
	OwnAlerts     []alert.SignedAlert
	NetworkAlerts []alert.SignedAlert
	Multisigs     []MultisigEntry

	// NextRoundBackup is 1 + the highest round among this node's own
	// units in the log, or 0 if it has none.
	NextRoundBackup types.Round
}

// Load reads the entire backup file at path, decodes every record in file
// order, and verifies consistency per the load contract: every unit's
// session must match sessionID, and every parent a unit's control hash
// claims must already have appeared earlier in the log. A missing file is
// not an error — it means a fresh start with nothing to resume.
func Load(path string, ownIndex types.NodeIndex, sessionID types.SessionId) (LoadResult, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return LoadResult{}, nil
	}
	if err != nil {
		return LoadResult{}, ErrWriteFailed(err)
	}
	defer f.Close()

	var result LoadResult
	seen := make(map[unit.Coord]struct{})
	haveOwnUnit := false

	for {
		rec, err := DecodeRecord(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return LoadResult{}, ErrCorruptLog
		}

		switch rec.Kind {
		case RecordUnit:
			su := rec.Unit
			if su.Unit.SessionID != sessionID {
				return LoadResult{}, ErrWrongSession
			}
			for _, parent := range su.Unit.ControlHash.Parents() {
				coord := unit.Coord{Round: su.Unit.Round - 1, Creator: parent}
				if _, ok := seen[coord]; !ok {
					return LoadResult{}, ErrMissingParent
				}
			}
			seen[su.Unit.Coord()] = struct{}{}
			result.Units = append(result.Units, su)

			if su.Unit.Creator == ownIndex {
				next := su.Unit.Round + 1
				if !haveOwnUnit || next > result.NextRoundBackup {
					result.NextRoundBackup = next
				}
				haveOwnUnit = true
			}

		case RecordOwnAlert:
			result.OwnAlerts = append(result.OwnAlerts, rec.OwnAlert)

		case RecordNetworkAlert:
			result.NetworkAlerts = append(result.NetworkAlerts, rec.NetworkAlert)

		case RecordMultisignedHash:
			result.Multisigs = append(result.Multisigs, MultisigEntry{Hash: rec.Hash, Raw: rec.Multisig})

		default:
			return LoadResult{}, ErrUnknownRecordKind
		}
	}

	if !haveOwnUnit {
		result.NextRoundBackup = 0
	}

	return result, nil
}

// ResumeDecision is the outcome of reconciling the backup log's view of
// this node's progress against consensus's view.
type ResumeDecision struct {
	Round types.Round
	// Warn is true when the backup log is ahead of consensus: this node
	// crashed after writing a unit but before it was seen as transmitted.
	// Not fatal, but worth a log line.
	Warn bool
}

// ResolveResumeRound reconciles nextRoundBackup (from Load) against
// nextRoundCollection (reported by consensus after querying peers) per the
// load contract's step 5. A backup strictly behind collection means
// another process is using this node's key concurrently: fatal. A backup
// strictly ahead is a benign crash-before-transmit and just gets a warning.
func ResolveResumeRound(nextRoundBackup, nextRoundCollection types.Round) (ResumeDecision, error) {
	if nextRoundBackup < nextRoundCollection {
		return ResumeDecision{}, ErrDuplicateWriter
	}
	return ResumeDecision{
		Round: nextRoundBackup,
		Warn:  nextRoundBackup > nextRoundCollection,
	}, nil
}
