// Package types holds the small value types shared by every fork-alert
// component: node identities, rounds, sessions, recipients, the Network
// interface the subsystem is wired against, and its config structs.
package types

import "fmt"

// NodeIndex identifies a single participant among the members of a session.
type NodeIndex uint16

// String implements fmt.Stringer.
func (n NodeIndex) String() string {
	return fmt.Sprintf("node(%d)", uint16(n))
}

// NodeCount is the total number of participants in a session.
type NodeCount uint16

// Quorum returns the Byzantine-fault-tolerant threshold floor(2N/3)+1.
func (n NodeCount) Quorum() int {
	return int(2*uint32(n))/3 + 1
}

// Round is a non-negative sequence number inside the DAG.
type Round uint32

// SessionId identifies one execution of the consensus protocol.
type SessionId uint64

// Recipient designates who a network message should be delivered to.
type Recipient struct {
	// Everyone is true when the message should be broadcast to every
	// member; in that case Node is meaningless.
	Everyone bool
	Node     NodeIndex
}

// RecipientEveryone builds a broadcast recipient.
func RecipientEveryone() Recipient {
	return Recipient{Everyone: true}
}

// RecipientNode builds a recipient addressing a single node.
func RecipientNode(node NodeIndex) Recipient {
	return Recipient{Node: node}
}

// String implements fmt.Stringer.
func (r Recipient) String() string {
	if r.Everyone {
		return "everyone"
	}
	return r.Node.String()
}
