// Package observability exports simulation activity as Prometheus metrics.
package observability

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"flowswap/internal/chain"
	"flowswap/internal/model"
)

const namespace = "flowswap"

// Metrics holds the collectors fed from committed logs and step outcomes.
type Metrics struct {
	Registry *prometheus.Registry

	EventsTotal     *prometheus.CounterVec
	SwapsTotal      *prometheus.CounterVec
	BidsTotal       *prometheus.CounterVec
	RetrievalsTotal *prometheus.CounterVec
	FlowUpdates     *prometheus.CounterVec
	PairsTotal      prometheus.Counter
	Reserves        *prometheus.GaugeVec
	StepsTotal      *prometheus.CounterVec
	RevertsTotal    *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Committed events by name",
			},
			[]string{"event"},
		),
		SwapsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "swaps_total",
				Help:      "Swaps executed against a pool",
			},
			[]string{"pool"},
		),
		BidsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auction",
				Name:      "bids_total",
				Help:      "Auction bids by outcome (placed, refunded, settled)",
			},
			[]string{"pool", "outcome"},
		),
		RetrievalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "retrievals_total",
				Help:      "Streamed fund retrievals",
			},
			[]string{"pool"},
		),
		FlowUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "flow_updates_total",
				Help:      "Stream rate changes",
			},
			[]string{"token"},
		),
		PairsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "pairs_total",
				Help:      "Pairs created",
			},
		),
		Reserves: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "reserve",
				Help:      "Last synced reserve in base units",
			},
			[]string{"pool", "side"},
		),
		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sim",
				Name:      "steps_total",
				Help:      "Scenario steps applied",
			},
			[]string{"kind"},
		),
		RevertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sim",
				Name:      "reverts_total",
				Help:      "Scenario steps that reverted",
			},
			[]string{"kind"},
		),
	}
}

// Observe updates the collectors from a batch of committed logs.
func (m *Metrics) Observe(logs []chain.Log) {
	if m == nil {
		return
	}
	for _, log := range logs {
		if log.Data == nil {
			continue
		}
		m.EventsTotal.WithLabelValues(log.Data.EventName()).Inc()
		emitter := log.Address.Hex()

		switch d := log.Data.(type) {
		case model.SwapEventData:
			m.SwapsTotal.WithLabelValues(emitter).Inc()
		case model.SyncEventData:
			m.Reserves.WithLabelValues(emitter, "0").Set(toFloat(d.Reserve0))
			m.Reserves.WithLabelValues(emitter, "1").Set(toFloat(d.Reserve1))
		case model.RetrieveFundsEventData:
			m.RetrievalsTotal.WithLabelValues(emitter).Inc()
		case model.PlaceBidEventData:
			m.BidsTotal.WithLabelValues(d.Pool, "placed").Inc()
		case model.RefundBidEventData:
			m.BidsTotal.WithLabelValues(d.Pool, "refunded").Inc()
		case model.ExecuteWinningBidEventData:
			m.BidsTotal.WithLabelValues(d.Pool, "settled").Inc()
		case model.PairCreatedEventData:
			m.PairsTotal.Inc()
		case model.FlowUpdatedEventData:
			m.FlowUpdates.WithLabelValues(emitter).Inc()
		}
	}
}

// ObserveStep records the outcome of one scenario step.
func (m *Metrics) ObserveStep(kind string, err error) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(kind).Inc()
	if err != nil {
		m.RevertsTotal.WithLabelValues(kind).Inc()
	}
}

func toFloat(amount string) float64 {
	f, ok := new(big.Float).SetString(amount)
	if !ok {
		return 0
	}
	v, _ := f.Float64()
	return v
}
