package metrics

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SettlementMetrics struct {
	proposalsCreated   *prometheus.CounterVec
	proposalsExecuted  *prometheus.CounterVec
	proposalsCancelled *prometheus.CounterVec
	batchesSettled     *prometheus.CounterVec
	toleranceBreaches  *prometheus.CounterVec
	settlementYield    *prometheus.GaugeVec
	virtualBalance     *prometheus.GaugeVec
	cooldownSeconds    prometheus.Gauge
}

var (
	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

// Settlement returns the process-wide settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			proposalsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "kvault_settlement_proposals_total",
				Help: "Count of settlement proposals created by vault.",
			}, []string{"vault"}),
			proposalsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "kvault_settlement_executed_total",
				Help: "Count of settlement proposals executed by vault.",
			}, []string{"vault"}),
			proposalsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "kvault_settlement_cancelled_total",
				Help: "Count of settlement proposals cancelled by guardians.",
			}, []string{"vault"}),
			batchesSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "kvault_batches_settled_total",
				Help: "Count of batches marked settled by vault.",
			}, []string{"vault"}),
			toleranceBreaches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "kvault_yield_tolerance_breaches_total",
				Help: "Count of reported yields outside the configured tolerance.",
			}, []string{"vault"}),
			settlementYield: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "kvault_settlement_yield",
				Help: "Yield applied by the most recent settlement per vault.",
			}, []string{"vault"}),
			virtualBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "kvault_virtual_balance",
				Help: "Aggregate adapter-reported balance per vault.",
			}, []string{"vault"}),
			cooldownSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "kvault_settlement_cooldown_seconds",
				Help: "Configured delay between proposing and executing a settlement.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.proposalsCreated,
			settlementRegistry.proposalsExecuted,
			settlementRegistry.proposalsCancelled,
			settlementRegistry.batchesSettled,
			settlementRegistry.toleranceBreaches,
			settlementRegistry.settlementYield,
			settlementRegistry.virtualBalance,
			settlementRegistry.cooldownSeconds,
		)
	})
	return settlementRegistry
}

func (m *SettlementMetrics) ObserveProposalCreated(vault string) {
	if m == nil {
		return
	}
	m.proposalsCreated.WithLabelValues(vault).Inc()
}

func (m *SettlementMetrics) ObserveProposalExecuted(vault string) {
	if m == nil {
		return
	}
	m.proposalsExecuted.WithLabelValues(vault).Inc()
}

func (m *SettlementMetrics) ObserveProposalCancelled(vault string) {
	if m == nil {
		return
	}
	m.proposalsCancelled.WithLabelValues(vault).Inc()
}

func (m *SettlementMetrics) ObserveBatchSettled(vault string) {
	if m == nil {
		return
	}
	m.batchesSettled.WithLabelValues(vault).Inc()
}

func (m *SettlementMetrics) ObserveToleranceBreach(vault string) {
	if m == nil {
		return
	}
	m.toleranceBreaches.WithLabelValues(vault).Inc()
}

// SetYield records the signed yield applied by the latest settlement. Values
// beyond float64 precision are clamped rather than dropped.
func (m *SettlementMetrics) SetYield(vault string, yield *big.Int) {
	if m == nil || yield == nil {
		return
	}
	m.settlementYield.WithLabelValues(vault).Set(bigToFloat(yield))
}

func (m *SettlementMetrics) SetVirtualBalance(vault string, balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	m.virtualBalance.WithLabelValues(vault).Set(bigToFloat(balance))
}

func (m *SettlementMetrics) SetCooldownSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.cooldownSeconds.Set(seconds)
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 1) {
		return math.MaxFloat64
	}
	if math.IsInf(f, -1) {
		return -math.MaxFloat64
	}
	return f
}
