// Command forkalertd is a runnable demonstration harness for the
// fork-alert subsystem: it wires alertsvc.Service, the RMC engine, the
// backup log, and the message codec to an in-process mock network and mock
// consensus, the same role cmd/lncli and lnd.go play for the teacher
// daemon's other subsystems. It is not a production node; the DAG, the
// transport, and peer discovery this module treats as external
// collaborators (spec §1) are stubbed out entirely.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aleph-forkalert/forkalert/alert"
	"github.com/aleph-forkalert/forkalert/alertsvc"
	"github.com/aleph-forkalert/forkalert/backup"
	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/internal/mockconsensus"
	"github.com/aleph-forkalert/forkalert/internal/mocknet"
	"github.com/aleph-forkalert/forkalert/types"
	"github.com/aleph-forkalert/forkalert/unit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "forkalertd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	n := cfg.NumNodes
	sessionID := types.SessionId(cfg.SessionID)
	forker := types.NodeIndex(cfg.Forker)
	alerter := types.NodeIndex(cfg.Alerter)

	workDir := cfg.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "forkalertd-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}

	keys, pub, err := generateKeys(n)
	if err != nil {
		return err
	}

	hub := mocknet.NewHub()
	hasher := crypto.ChainHasher{}

	nodes := make([]*nodeHarness, n)
	for i := 0; i < n; i++ {
		idx := types.NodeIndex(i)
		box := crypto.NewECDSAKeyBox(idx, keys[i], pub)
		keychain := crypto.NewAggregateMultiKeychain(box, types.NodeCount(n))

		backupPath := filepath.Join(workDir, fmt.Sprintf("node-%d.backup", i))
		resumeRound, err := resumeRoundFor(backupPath, idx, sessionID)
		if err != nil {
			return fmt.Errorf("node %d: resolving resume round: %w", i, err)
		}
		fmt.Printf("node %d: resuming from round %d\n", i, resumeRound)

		forkerIdxPath := filepath.Join(workDir, fmt.Sprintf("node-%d.forkers.db", i))
		forkerIdx, err := backup.OpenForkerIndex(forkerIdxPath)
		if err != nil {
			return fmt.Errorf("node %d: opening forker index: %w", i, err)
		}
		defer forkerIdx.Close()

		nodes[i] = newNodeHarness(idx, sessionID, backupPath, keychain, hasher, hub, cfg.BaseDelay, forkerIdx)
		if err := nodes[i].svc.Start(); err != nil {
			return fmt.Errorf("node %d: starting service: %w", i, err)
		}
	}
	defer func() {
		for _, node := range nodes {
			_ = node.svc.Stop()
		}
	}()

	proof, err := mockconsensus.BuildFork(nodes[forker].box(), forker, sessionID, 1)
	if err != nil {
		return fmt.Errorf("building fork proof: %w", err)
	}
	legit, err := mockconsensus.BuildLegitUnit(nodes[forker].box(), forker, sessionID, 2, []byte("legit"))
	if err != nil {
		return fmt.Errorf("building legit unit: %w", err)
	}

	ownAlert := mockconsensus.NewOwnAlert(alerter, proof, []unit.SignedUnit{legit})
	fmt.Printf("node %d: raising alert against forker %d\n", alerter, forker)
	nodes[alerter].ownAlerts <- ownAlert

	deadline := time.After(10 * time.Second)
	remaining := make(map[types.NodeIndex]bool, n)
	for i := 0; i < n; i++ {
		remaining[types.NodeIndex(i)] = true
	}

	reports := reportsFrom(nodes)
	for len(remaining) > 0 {
		select {
		case report := <-reports:
			if report.notification.Units != nil {
				fmt.Printf("node %d: released %d legit unit(s) for forker %d\n",
					report.node, len(report.notification.Units), forker)
				delete(remaining, report.node)
			} else if report.notification.Forker != nil {
				fmt.Printf("node %d: learned of new forker %d\n", report.node, report.notification.Forker.Creator())
			}
		case <-deadline:
			return fmt.Errorf("timed out waiting for %d node(s) to confirm the alert", len(remaining))
		}
	}

	fmt.Println("all nodes confirmed the alert and released the forker's legit units")
	return nil
}

// nodeHarness bundles one simulated session member's service together with
// the collaborators main needs to drive it.
type nodeHarness struct {
	index         types.NodeIndex
	svc           *alertsvc.Service
	ownAlerts     chan *alert.Alert
	notifications chan alert.ForkingNotification
	keychain      crypto.MultiKeychain
}

func (h *nodeHarness) box() crypto.KeyBox {
	return h.keychain
}

func newNodeHarness(
	index types.NodeIndex,
	sessionID types.SessionId,
	backupPath string,
	keychain crypto.MultiKeychain,
	hasher crypto.Hasher,
	hub *mocknet.Hub,
	baseDelay time.Duration,
	forkerIdx *backup.ForkerIndex,
) *nodeHarness {
	ownAlerts := make(chan *alert.Alert, 1)
	notifications := make(chan alert.ForkingNotification, 16)

	cfg := alertsvc.Config{
		OwnIndex:      index,
		SessionID:     sessionID,
		Network:       hub.NewLink(index),
		Keychain:      keychain,
		Hasher:        hasher,
		Clock:         clock.NewDefaultClock(),
		Delay:         types.DelayConfig{BaseDelay: baseDelay},
		BackupPath:    backupPath,
		HealthCheck:   alertsvc.HealthCheckConfig{Interval: 10 * time.Second},
		ForkerIndex:   forkerIdx,
		OwnAlerts:     ownAlerts,
		Notifications: notifications,
		UnitsIn:       nil,
		UnitsAck:      nil,
		Registerer:    prometheus.NewRegistry(),
	}

	svc, err := alertsvc.New(cfg)
	if err != nil {
		// The demo harness controls every input to New; a failure here
		// means a bug in the wiring above, not a runtime condition.
		panic(err)
	}

	return &nodeHarness{
		index:         index,
		svc:           svc,
		ownAlerts:     ownAlerts,
		notifications: notifications,
		keychain:      keychain,
	}
}

type notificationReport struct {
	node         types.NodeIndex
	notification alert.ForkingNotification
}

// reportsFrom fans every node's Notifications channel into one channel, so
// the demo's main select loop doesn't need a case per node.
func reportsFrom(nodes []*nodeHarness) <-chan notificationReport {
	out := make(chan notificationReport)
	for _, node := range nodes {
		node := node
		go func() {
			for n := range node.notifications {
				out <- notificationReport{node: node.index, notification: n}
			}
		}()
	}
	return out
}

// resumeRoundFor loads any existing backup log for path and reconciles it
// against the (stubbed) consensus-reported next_round_collection, per the
// backup load contract (spec §4.3 step 5).
func resumeRoundFor(path string, ownIndex types.NodeIndex, sessionID types.SessionId) (types.Round, error) {
	result, err := backup.Load(path, ownIndex, sessionID)
	if err != nil {
		return 0, err
	}
	collector := mockconsensus.Collector{}
	decision, err := backup.ResolveResumeRound(result.NextRoundBackup, collector.NextRoundCollection())
	if err != nil {
		return 0, err
	}
	return decision.Round, nil
}

func generateKeys(n int) ([]*btcec.PrivateKey, map[types.NodeIndex]*btcec.PublicKey, error) {
	keys := make([]*btcec.PrivateKey, n)
	pub := make(map[types.NodeIndex]*btcec.PublicKey, n)
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, nil, err
		}
		keys[i] = priv
		pub[types.NodeIndex(i)] = priv.PubKey()
	}
	return keys, pub, nil
}
