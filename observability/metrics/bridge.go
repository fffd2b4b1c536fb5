package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type BridgeMetrics struct {
	backendCalls *prometheus.CounterVec
	gasBurned    prometheus.Counter
	failures     *prometheus.CounterVec
}

var (
	bridgeOnce     sync.Once
	bridgeRegistry *BridgeMetrics
)

func Bridge() *BridgeMetrics {
	bridgeOnce.Do(func() {
		bridgeRegistry = &BridgeMetrics{
			backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bridge_backend_calls_total",
				Help: "Count of backend RPC calls by contract method and outcome.",
			}, []string{"method", "outcome"}),
			gasBurned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bridge_gas_burned_total",
				Help: "Total gas burned across mutating calls and their receipts.",
			}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bridge_classified_failures_total",
				Help: "Count of classified backend failures by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			bridgeRegistry.backendCalls,
			bridgeRegistry.gasBurned,
			bridgeRegistry.failures,
		)
	})
	return bridgeRegistry
}

// ObserveBackendCall records one backend invocation of a contract method.
func (m *BridgeMetrics) ObserveBackendCall(method string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.backendCalls.WithLabelValues(method, outcome).Inc()
}

// AddGasBurned accumulates a settled call's gas total.
func (m *BridgeMetrics) AddGasBurned(gas uint64) {
	if m == nil {
		return
	}
	m.gasBurned.Add(float64(gas))
}

// ObserveFailure records one classified failure.
func (m *BridgeMetrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}
