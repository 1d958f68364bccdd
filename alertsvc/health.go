package alertsvc

import (
	"time"

	"github.com/lightningnetwork/lnd/healthcheck"

	"github.com/aleph-forkalert/forkalert/backup"
)

// Default tuning for the backup-log health observation, chosen to match
// the teacher's own conservative defaults for its chain-backend and wallet
// health checks: infrequent polling, a generous timeout, and a handful of
// retries with backoff before declaring the dependency unhealthy.
const (
	defaultHealthCheckInterval = time.Minute
	defaultHealthCheckTimeout  = 5 * time.Second
	defaultHealthCheckBackoff  = 10 * time.Second
	defaultHealthCheckRetries  = 2
)

// HealthCheckConfig tunes the periodic confirmation that the backup log is
// still writable. The zero value selects the package defaults.
type HealthCheckConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Backoff  time.Duration
	Retries  int
}

func (c HealthCheckConfig) withDefaults() HealthCheckConfig {
	if c.Interval == 0 {
		c.Interval = defaultHealthCheckInterval
	}
	if c.Timeout == 0 {
		c.Timeout = defaultHealthCheckTimeout
	}
	if c.Backoff == 0 {
		c.Backoff = defaultHealthCheckBackoff
	}
	if c.Retries == 0 {
		c.Retries = defaultHealthCheckRetries
	}
	return c
}

// startHealthMonitor builds and starts a healthcheck.Monitor watching the
// backup log's writability, wired to treat a failure exactly like a backup
// write failure: fatal to the service (spec §7). Returns nil if path is
// empty.
func (s *Service) startHealthMonitor(path string, cfg HealthCheckConfig) *healthcheck.Monitor {
	if path == "" {
		return nil
	}
	cfg = cfg.withDefaults()

	obs := backup.NewHealthObservation(path, cfg.Interval, cfg.Timeout, cfg.Backoff, cfg.Retries)
	monitor := healthcheck.NewMonitor(&healthcheck.Config{
		Checks: []*healthcheck.Observation{obs},
		Shutdown: func(format string, params ...interface{}) {
			log.Errorf(format, params...)
			go s.Stop()
		},
	})
	if err := monitor.Start(); err != nil {
		log.Errorf("failed to start backup health monitor: %v", err)
		return nil
	}
	return monitor
}
