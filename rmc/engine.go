// Package rmc implements the reliable-multicast engine that turns a hash
// the local node wants to endorse into a quorum-backed multisignature,
// retransmitting on a doubling-delay schedule until either a local quorum
// accumulates or a peer's completed multisignature is observed. Each hash
// is an independent sub-state-machine; there is no ordering between
// hashes, only within one (start -> partials -> complete -> silence).
package rmc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/types"
)

// EventKind classifies an Engine output event.
type EventKind int

const (
	// EventPartialSig is emitted (repeatedly, on the doubling schedule)
	// for every hash the engine is actively driving.
	EventPartialSig EventKind = iota
	// EventMultisigned is emitted once per hash, when a quorum of partial
	// signatures has been accumulated or a verified Complete message was
	// observed from a peer.
	EventMultisigned
)

// Event is an outgoing message the owning service should act on.
type Event struct {
	Kind EventKind

	Hash crypto.Hash

	// Set when Kind == EventPartialSig.
	Signer    types.NodeIndex
	Signature crypto.Signature

	// Set when Kind == EventMultisigned.
	Multisig crypto.PartialMultisignature
}

// hashEntry tracks one in-progress (or completed) hash's accumulation and
// retransmission schedule.
type hashEntry struct {
	acc crypto.PartialMultisignature

	ownSig crypto.Signature

	// done is closed exactly once, when the hash completes, to stop that
	// hash's retransmit goroutine. Engine shutdown stops the goroutine
	// through Engine.quit instead and leaves done open.
	done chan struct{}
	stopOnce sync.Once

	// driving is true once this entry has its own signature folded into
	// acc and a runSchedule goroutine broadcasting it. An entry can exist
	// without driving: HandlePartialSig creates a passive placeholder for
	// a hash StartHash hasn't been called for yet (e.g. an inbound
	// partial signature arrives before the matching backup-write ack that
	// gates our own StartHash call). StartHash must tell those two states
	// apart rather than treating "entry exists" as "already driving."
	driving bool

	completed bool
}

// Engine drives retransmission and signature accumulation for a set of
// hashes concurrently. It owns one goroutine per hash currently being
// multicast, plus is itself safe to Start/Stop once like the daemon's
// other long-lived subsystems.
type Engine struct {
	started int32
	stopped int32

	quit chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	hashes map[crypto.Hash]*hashEntry

	keychain  crypto.MultiKeychain
	clock     clock.Clock
	baseDelay time.Duration

	events chan Event
}

// NewEngine builds an Engine that signs on behalf of keychain.Index() and
// verifies partial signatures and multisignatures against keychain.
// baseDelay is the initial retransmission interval d in the doubling
// schedule t0, t0+d, t0+2d, t0+4d, ....
func NewEngine(keychain crypto.MultiKeychain, clk clock.Clock, baseDelay time.Duration) *Engine {
	return &Engine{
		quit:      make(chan struct{}),
		hashes:    make(map[crypto.Hash]*hashEntry),
		keychain:  keychain,
		clock:     clk,
		baseDelay: baseDelay,
		events:    make(chan Event, 64),
	}
}

// Start marks the engine as started. It launches no goroutine itself:
// StartHash launches one retransmission goroutine per driven hash. Calling
// Start again has no effect.
func (e *Engine) Start() error {
	if !atomic.CompareAndSwapInt32(&e.started, 0, 1) {
		return nil
	}
	return nil
}

// Stop shuts the engine down, terminating every in-progress retransmission
// schedule and waiting for their goroutines to exit.
func (e *Engine) Stop() error {
	if !atomic.CompareAndSwapInt32(&e.stopped, 0, 1) {
		return nil
	}
	close(e.quit)
	e.wg.Wait()
	return nil
}

// Events returns the channel of outgoing PartialSig/NewMultisigned events.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// StartHash begins multicast for hash: local consensus has decided to
// endorse it. A second call for a hash already being driven, or already
// completed, is a no-op. If a passive entry already exists for hash (an
// inbound partial signature raced this call and HandlePartialSig created a
// placeholder before we got here), StartHash promotes it: folding in our
// own signature and launching its retransmission schedule, rather than
// treating the entry's mere existence as proof we're already driving it.
func (e *Engine) StartHash(hash crypto.Hash) {
	e.mu.Lock()
	entry, ok := e.hashes[hash]
	if ok {
		if entry.driving || entry.completed {
			e.mu.Unlock()
			return
		}
		if entry.acc == nil {
			// A completion-only placeholder raced in ahead of us (HandleComplete
			// inserted entry but hasn't called finish yet): it carries no
			// accumulator or own signature to promote, so build fresh ones
			// rather than dereferencing nil. finish will overwrite entry.acc
			// with the decoded multisignature regardless.
			entry.ownSig = e.keychain.SignPartial(hash[:])
			entry.acc = e.keychain.NewAccumulator(hash[:])
		}
		entry.acc = entry.acc.AddSignature(e.keychain.Index(), entry.ownSig)
		entry.driving = true
		acc := entry.acc
		e.mu.Unlock()

		if acc.Complete() {
			e.finish(hash, entry, acc)
			return
		}
		e.wg.Add(1)
		go e.runSchedule(hash, entry)
		return
	}

	ownSig := e.keychain.SignPartial(hash[:])
	acc := e.keychain.NewAccumulator(hash[:]).AddSignature(e.keychain.Index(), ownSig)
	entry = &hashEntry{acc: acc, ownSig: ownSig, done: make(chan struct{}), driving: true}
	e.hashes[hash] = entry
	e.mu.Unlock()

	if acc.Complete() {
		e.finish(hash, entry, acc)
		return
	}

	e.wg.Add(1)
	go e.runSchedule(hash, entry)
}

// HandlePartialSig folds in a partial signature by signer on hash, received
// from the network. An invalid signature is rejected (caller should drop
// and log at warn); a valid one may complete the accumulation.
func (e *Engine) HandlePartialSig(hash crypto.Hash, signer types.NodeIndex, sig crypto.Signature) error {
	if !e.keychain.VerifyPartial(signer, hash[:], sig) {
		return ErrInvalidPartialSig
	}

	e.mu.Lock()
	entry, ok := e.hashes[hash]
	if !ok {
		ownSig := e.keychain.SignPartial(hash[:])
		entry = &hashEntry{acc: e.keychain.NewAccumulator(hash[:]), ownSig: ownSig, done: make(chan struct{})}
		e.hashes[hash] = entry
	}
	if entry.completed {
		e.mu.Unlock()
		return nil
	}
	entry.acc = entry.acc.AddSignature(signer, sig)
	complete := entry.acc.Complete()
	acc := entry.acc
	e.mu.Unlock()

	if complete {
		e.finish(hash, entry, acc)
	}
	return nil
}

// HandleComplete folds in a peer's already-completed multisignature for
// hash, short-circuiting local accumulation. raw is the encoding produced
// by crypto.PartialMultisignature.Encode.
func (e *Engine) HandleComplete(hash crypto.Hash, raw []byte) error {
	acc, complete := e.keychain.DecodeMultisignature(hash[:], raw)
	if !complete {
		return ErrInvalidMultisignature
	}

	e.mu.Lock()
	entry, ok := e.hashes[hash]
	if !ok {
		entry = &hashEntry{done: make(chan struct{})}
		e.hashes[hash] = entry
	}
	alreadyDone := entry.completed
	e.mu.Unlock()

	if alreadyDone {
		return nil
	}
	e.finish(hash, entry, acc)
	return nil
}

// finish marks hash's entry completed, stops its retransmit goroutine (if
// any), and emits a single EventMultisigned.
func (e *Engine) finish(hash crypto.Hash, entry *hashEntry, acc crypto.PartialMultisignature) {
	e.mu.Lock()
	entry.acc = acc
	entry.completed = true
	e.mu.Unlock()

	entry.stopOnce.Do(func() { close(entry.done) })

	select {
	case e.events <- Event{Kind: EventMultisigned, Hash: hash, Multisig: acc}:
	case <-e.quit:
	}
}

// runSchedule repeatedly emits entry's own partial signature for hash on a
// doubling-delay schedule until entry.done closes (completion) or the
// engine is stopped.
func (e *Engine) runSchedule(hash crypto.Hash, entry *hashEntry) {
	defer e.wg.Done()

	// Waits between sends are d, d, 2d, 4d, ..., so sends land at t0, t0+d,
	// t0+2d, t0+4d, ....
	delay := e.baseDelay
	first := true
	for {
		select {
		case e.events <- Event{Kind: EventPartialSig, Hash: hash, Signer: e.keychain.Index(), Signature: entry.ownSig}:
		case <-entry.done:
			return
		case <-e.quit:
			return
		}

		select {
		case <-e.clock.TickAfter(delay):
			if first {
				first = false
			} else {
				delay *= 2
			}
		case <-entry.done:
			return
		case <-e.quit:
			return
		}
	}
}
