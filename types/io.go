package types

import (
	"context"
	"time"
)

// NetworkData is an opaque, already-encoded message travelling over the
// transport. The fork-alert subsystem never interprets these bytes itself;
// it only asks the wire codec to produce and consume them.
type NetworkData []byte

// Network is the transport abstraction the alert service is wired against.
// Delivery is best-effort: messages may be reordered, duplicated, or
// dropped, and it is not this subsystem's job to fix that (see spec §6).
type Network interface {
	// Send enqueues data for delivery to recipient. Implementations must
	// not block indefinitely; a slow peer should not stall the sender.
	Send(data NetworkData, recipient Recipient) error

	// NextEvent blocks until a message arrives or ctx is done, returning
	// ok=false once the underlying source is exhausted.
	NextEvent(ctx context.Context) (data NetworkData, ok bool)
}

// AlertConfig parametrizes the alert handler and service for one session.
type AlertConfig struct {
	NMembers  NodeCount
	SessionId SessionId
}

// DelayConfig parametrizes the RMC retransmission scheduler.
type DelayConfig struct {
	// BaseDelay is the base delay d: a hash's partial signature is sent at
	// t0 and retransmitted at t0+d, t0+2d, t0+4d, t0+8d, ...
	BaseDelay time.Duration
}

// DefaultDelayConfig matches the 500ms base delay used by the reference
// implementation.
func DefaultDelayConfig() DelayConfig {
	return DelayConfig{BaseDelay: 500 * time.Millisecond}
}
