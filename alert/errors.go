package alert

import "errors"

// Errors returned by SignedAlert.Check and Handler's validation methods.
// Every one of these is a drop-and-log-warn case per the error taxonomy;
// none is fatal.
var (
	ErrInvalidSignature  = errors.New("alert: invalid signature")
	ErrInvalidLegitUnit  = errors.New("alert: legit unit not signed by forker")
	ErrInvalidLegitRound = errors.New("alert: legit units must have distinct rounds")
	ErrWrongSession      = errors.New("alert: unit belongs to a different session")

	// ErrUnknownAlert is returned by AlertConfirmed when the RMC engine
	// reports completion for a hash the handler never cached. This is a
	// protocol bug: the service logs it rather than propagating it.
	ErrUnknownAlert = errors.New("alert: confirmed hash not found in known alerts")
)
