// Package alertsvc wires the alert handler, RMC engine, backup log, the
// network, and consensus-facing channels into a single cooperative event
// loop, structured the way the teacher's breachArbiter and
// htlcswitch.Switch are: an atomically guarded Start/Stop pair, a quit
// channel, a sync.WaitGroup, and one goroutine running a select loop over
// every input source.
package alertsvc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/healthcheck"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aleph-forkalert/forkalert/alert"
	"github.com/aleph-forkalert/forkalert/backup"
	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/rmc"
	"github.com/aleph-forkalert/forkalert/types"
	"github.com/aleph-forkalert/forkalert/unit"
)

// Config collects everything Service needs to run: its session identity,
// external collaborators, and tuning.
type Config struct {
	OwnIndex  types.NodeIndex
	SessionID types.SessionId

	Network types.Network

	// Keychain is used both to verify/sign alerts and units (as a
	// crypto.KeyBox) and to drive RMC's partial-signature accumulation
	// (as a crypto.MultiKeychain).
	Keychain crypto.MultiKeychain
	Hasher   crypto.Hasher
	Clock    clock.Clock
	Delay    types.DelayConfig

	BackupPath string
	// HealthCheck tunes the periodic backup-writability check; the zero
	// value selects sane defaults. Disabled entirely when BackupPath is
	// empty.
	HealthCheck HealthCheckConfig

	// ForkerIndex, if non-nil, receives every forker this node learns of
	// (via either OnOwnAlert or a Forker notification from OnNetworkAlert)
	// as a queryable secondary index alongside the backup log. Optional:
	// the load contract never depends on it.
	ForkerIndex *backup.ForkerIndex

	// OwnAlerts delivers fresh alerts raised by local consensus.
	OwnAlerts <-chan *alert.Alert
	// Notifications receives ForkingNotification values bound for
	// consensus.
	Notifications chan<- alert.ForkingNotification

	// UnitsIn delivers this node's own DAG units for backup persistence.
	// UnitsAck reports back once a unit has been durably written.
	UnitsIn  <-chan unit.SignedUnit
	UnitsAck chan<- unit.Coord

	Registerer prometheus.Registerer
}

// Service is the fork-alert subsystem's event loop.
type Service struct {
	started int32
	stopped int32

	quit chan struct{}
	wg   sync.WaitGroup

	cfg     Config
	handler *alert.Handler
	engine  *rmc.Engine
	saver   *backup.Saver
	metrics *metrics

	backupReqs *queue.ConcurrentQueue
	ackCh      chan backupAck
	networkCh  chan types.NetworkData

	networkCancel context.CancelFunc
	healthMonitor *healthcheck.Monitor

	ownAlertResponses     map[crypto.Hash]pendingOwnAlert
	networkAlertResponses map[crypto.Hash]pendingNetworkAlert
	multisignedNotifications map[crypto.Hash]pendingMultisig
	pendingUnits          map[crypto.Hash]unit.Coord

	// drivingHashes records which hashes this node has told the RMC engine
	// to start driving, so activeRmcHashes only decrements hashes it
	// actually incremented: a hash can also complete via a peer's Complete
	// message racing in before this node ever called StartHash for it.
	drivingHashes map[crypto.Hash]struct{}
}

// New builds a Service from cfg. The backup log is opened (or created)
// immediately so callers can surface an open failure before Start.
func New(cfg Config) (*Service, error) {
	saver, err := backup.NewSaver(cfg.BackupPath)
	if err != nil {
		return nil, err
	}

	handler := alert.NewHandler(cfg.OwnIndex, cfg.SessionID, cfg.Hasher, cfg.Keychain)
	engine := rmc.NewEngine(cfg.Keychain, cfg.Clock, cfg.Delay.BaseDelay)

	m := newMetrics()
	if cfg.Registerer != nil {
		if err := m.Register(cfg.Registerer); err != nil {
			return nil, err
		}
	}

	return &Service{
		quit:       make(chan struct{}),
		cfg:        cfg,
		handler:    handler,
		engine:     engine,
		saver:      saver,
		metrics:    m,
		backupReqs: queue.NewConcurrentQueue(64),
		ackCh:      make(chan backupAck, 64),
		networkCh:  make(chan types.NetworkData, 64),

		ownAlertResponses:         make(map[crypto.Hash]pendingOwnAlert),
		networkAlertResponses:     make(map[crypto.Hash]pendingNetworkAlert),
		multisignedNotifications:  make(map[crypto.Hash]pendingMultisig),
		pendingUnits:              make(map[crypto.Hash]unit.Coord),
		drivingHashes:             make(map[crypto.Hash]struct{}),
	}, nil
}

// Start launches every goroutine the service owns: the network reader, the
// backup saver, the RMC engine, and the main event loop.
func (s *Service) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return ErrAlreadyStarted
	}

	if err := s.engine.Start(); err != nil {
		return err
	}

	s.backupReqs.Start()
	s.healthMonitor = s.startHealthMonitor(s.cfg.BackupPath, s.cfg.HealthCheck)

	ctx, cancel := context.WithCancel(context.Background())
	s.networkCancel = cancel

	s.wg.Add(3)
	go s.networkReader(ctx)
	go s.backupWorker()
	go s.loop()

	return nil
}

// Stop signals every goroutine to drain and exit, waiting for them to do
// so. The backup saver finishes any in-flight write and flush before
// returning.
func (s *Service) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return nil
	}

	if s.networkCancel != nil {
		s.networkCancel()
	}
	close(s.quit)
	s.wg.Wait()

	s.backupReqs.Stop()
	_ = s.engine.Stop()
	if s.healthMonitor != nil {
		_ = s.healthMonitor.Stop()
	}

	return s.saver.Close()
}

// networkReader pulls raw messages off cfg.Network and forwards the bytes
// to the main loop, which owns all decoding and dispatch.
func (s *Service) networkReader(ctx context.Context) {
	defer s.wg.Done()
	for {
		data, ok := s.cfg.Network.NextEvent(ctx)
		if !ok {
			return
		}
		select {
		case s.networkCh <- data:
		case <-s.quit:
			return
		}
	}
}

// backupWorker is the dedicated backup-saver task: its only responsibility
// is performing the blocking write-then-fsync and reporting back, matching
// the concurrency model's allowance for exactly one suspension point (the
// write itself) in that task.
func (s *Service) backupWorker() {
	defer s.wg.Done()
	out := s.backupReqs.ChanOut()
	for {
		select {
		case item, ok := <-out:
			if !ok {
				return
			}
			req := item.(backupRequest)
			err := s.saver.Append(req.rec)
			ack := backupAck{purpose: req.purpose, hash: req.hash, err: err}
			select {
			case s.ackCh <- ack:
			case <-s.quit:
				return
			}
			if err != nil {
				// Fatal per the write contract; nothing further can be
				// safely emitted. The main loop will observe this ack
				// and log, but the process owner is expected to exit.
				return
			}
		case <-s.quit:
			return
		}
	}
}

// enqueueBackup submits rec for durable persistence; the corresponding
// pending-action table entry must already be set before calling this.
func (s *Service) enqueueBackup(rec backup.Record, purpose backupPurpose, hash crypto.Hash) {
	select {
	case s.backupReqs.ChanIn() <- backupRequest{rec: rec, purpose: purpose, hash: hash}:
	case <-s.quit:
	}
}

// loop is the single goroutine multiplexing every event source. No other
// goroutine touches handler, engine bookkeeping maps, or the pending
// tables, so none of them need their own lock.
func (s *Service) loop() {
	defer s.wg.Done()

	for {
		select {
		case data := <-s.networkCh:
			s.handleNetworkMessage(data)

		case a, ok := <-s.cfg.OwnAlerts:
			if !ok {
				return
			}
			s.handleOwnAlert(a)

		case ev := <-s.engine.Events():
			s.handleRmcEvent(ev)

		case ack := <-s.ackCh:
			s.handleBackupAck(ack)

		case su, ok := <-s.cfg.UnitsIn:
			if !ok {
				return
			}
			s.handleIncomingUnit(su)

		case <-s.quit:
			return
		}
	}
}
