// Package mocknet is an in-process stand-in for the real transport,
// modeled on the teacher's htlcswitch/mock.go mockServer: a shared hub that
// fans a broadcast out to every registered link, or routes a unicast to one.
// Delivery is deliberately best-effort, matching the real Network contract
// (spec §6): a full inbox drops the newest message rather than blocking the
// sender.
package mocknet

import (
	"context"
	"sync"

	"github.com/aleph-forkalert/forkalert/types"
)

// Hub is the shared switchboard every node's Link registers with.
type Hub struct {
	mu    sync.Mutex
	links map[types.NodeIndex]*Link
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{links: make(map[types.NodeIndex]*Link)}
}

// Link is one node's view of the hub: a types.Network implementation.
type Link struct {
	hub   *Hub
	index types.NodeIndex
	in    chan types.NetworkData
}

// NewLink registers a new Link for index and returns it. index must be
// unique within hub.
func (h *Hub) NewLink(index types.NodeIndex) *Link {
	l := &Link{hub: h, index: index, in: make(chan types.NetworkData, 256)}
	h.mu.Lock()
	h.links[index] = l
	h.mu.Unlock()
	return l
}

// Send implements types.Network.
func (l *Link) Send(data types.NetworkData, recipient types.Recipient) error {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()

	if recipient.Everyone {
		for idx, dst := range l.hub.links {
			if idx == l.index {
				continue
			}
			dst.deliver(data)
		}
		return nil
	}
	if dst, ok := l.hub.links[recipient.Node]; ok {
		dst.deliver(data)
	}
	return nil
}

// deliver enqueues data for this link, dropping it if the inbox is full
// rather than blocking the sender (best-effort, per spec §6).
func (l *Link) deliver(data types.NetworkData) {
	cp := append(types.NetworkData(nil), data...)
	select {
	case l.in <- cp:
	default:
	}
}

// NextEvent implements types.Network.
func (l *Link) NextEvent(ctx context.Context) (types.NetworkData, bool) {
	select {
	case d := <-l.in:
		return d, true
	case <-ctx.Done():
		return nil, false
	}
}
