// Package mockconsensus stands in for the DAG consensus engine that in a
// real deployment observes forks, decides which units to legitimise, and
// reports a next_round_collection value gathered from peers (spec §4.3
// step 5). It exists only to drive the cmd/forkalertd demo harness end to
// end, the same role the teacher's own mock stubs play in its switch tests.
package mockconsensus

import (
	"github.com/aleph-forkalert/forkalert/alert"
	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/types"
	"github.com/aleph-forkalert/forkalert/unit"
)

// BuildFork signs two distinct units at (forker, round) under box, which
// must sign on behalf of forker, producing the ForkProof an honest observer
// would construct upon detecting the equivocation.
func BuildFork(box crypto.KeyBox, forker types.NodeIndex, sessionID types.SessionId, round types.Round) (unit.ForkProof, error) {
	u1, err := unit.Sign(box, unit.Unit{
		Creator:   forker,
		Round:     round,
		SessionID: sessionID,
		Data:      []byte("branch-a"),
	})
	if err != nil {
		return unit.ForkProof{}, err
	}
	u2, err := unit.Sign(box, unit.Unit{
		Creator:   forker,
		Round:     round,
		SessionID: sessionID,
		Data:      []byte("branch-b"),
	})
	if err != nil {
		return unit.ForkProof{}, err
	}
	return unit.NewForkProof(u1, u2)
}

// BuildLegitUnit signs a single unit by forker at round, one of the units
// an alerter might choose to commit to legitimising alongside a ForkProof.
func BuildLegitUnit(box crypto.KeyBox, forker types.NodeIndex, sessionID types.SessionId, round types.Round, data []byte) (unit.SignedUnit, error) {
	return unit.Sign(box, unit.Unit{Creator: forker, Round: round, SessionID: sessionID, Data: data})
}

// Collector reports the next_round_collection value consensus derives from
// querying peers (spec §4.3 step 5). The demo harness has no real peer set
// to query, so it always reports 0: a fresh session with no prior rounds.
type Collector struct{}

// NextRoundCollection implements the consensus side of the backup-startup
// reconciliation.
func (Collector) NextRoundCollection() types.Round {
	return 0
}

// NewOwnAlert builds the Alert a local node hands to the alert service
// after having verified proof itself, per the on_own_alert precondition.
func NewOwnAlert(sender types.NodeIndex, proof unit.ForkProof, legit []unit.SignedUnit) *alert.Alert {
	return &alert.Alert{Sender: sender, Proof: proof, LegitUnits: legit}
}
