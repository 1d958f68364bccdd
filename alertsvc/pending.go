package alertsvc

import (
	"github.com/aleph-forkalert/forkalert/alert"
	"github.com/aleph-forkalert/forkalert/backup"
	"github.com/aleph-forkalert/forkalert/crypto"
)

// backupPurpose distinguishes the four kinds of action a backup write can
// be gating (own alert, network alert, multisignature, own unit), matching
// the four pending tables the event loop keeps.
type backupPurpose int

const (
	purposeOwnAlert backupPurpose = iota
	purposeNetworkAlert
	purposeMultisig
	purposeUnit
)

// backupRequest is sent to the backup saver goroutine; rec is written and
// fsynced before ack is sent back.
type backupRequest struct {
	rec     backup.Record
	purpose backupPurpose
	hash    crypto.Hash
}

// backupAck is sent back by the saver goroutine once rec has been durably
// written (or failed to write, which is fatal).
type backupAck struct {
	purpose backupPurpose
	hash    crypto.Hash
	err     error
}

// pendingOwnAlert is what OnOwnAlert queued, awaiting its backup ack before
// it may be broadcast and handed to RMC.
type pendingOwnAlert struct {
	signed alert.SignedAlert
}

// pendingNetworkAlert is what OnNetworkAlert queued, awaiting its backup
// ack before its notification (if any) is emitted and RMC is started.
type pendingNetworkAlert struct {
	notification *alert.ForkingNotification
}

// pendingMultisig is what AlertConfirmed queued, awaiting its backup ack
// before its notification (if any) is emitted.
type pendingMultisig struct {
	notification *alert.ForkingNotification
}
