package alertsvc

import "errors"

var (
	// ErrAlreadyStarted is returned by Start when called more than once.
	ErrAlreadyStarted = errors.New("alertsvc: already started")

	// errMissingPendingAck is logged (not propagated) when a backup
	// acknowledgement arrives for a hash with no matching pending-action
	// table entry; the load design calls this a protocol bug.
	errMissingPendingAck = errors.New("alertsvc: backup ack with no pending action")
)
