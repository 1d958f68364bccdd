package alertsvc

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Service's prometheus instrumentation, registered once
// per Service instance so multiple sessions in the same process (as in
// tests) don't collide on the default registry.
type metrics struct {
	alertsTotal      *prometheus.CounterVec
	activeRmcHashes  prometheus.Gauge
	unitsReleased    prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forkalert_alerts_total",
			Help: "Number of alerts accepted, labeled by origin (own/network).",
		}, []string{"origin"}),
		activeRmcHashes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forkalert_active_rmc_hashes",
			Help: "Number of alert hashes currently being driven by RMC.",
		}),
		unitsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forkalert_units_released_total",
			Help: "Number of forker units released to consensus via a confirmed alert.",
		}),
	}
}

// Register registers every metric with reg.
func (m *metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.alertsTotal, m.activeRmcHashes, m.unitsReleased} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
