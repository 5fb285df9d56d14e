package observability

import (
	"context"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"fundchain/core/types"
	"fundchain/native/crowdfund"
)

type eventMetrics struct {
	events        *prometheus.CounterVec
	donated       *prometheus.CounterVec
	fees          *prometheus.CounterVec
	deliberations *prometheus.CounterVec
	withdrawn     *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the registry deriving crowdfund metrics from committed
// events. It implements the executor sink contract so it can be registered
// alongside the audit store.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
			donated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "crowdfund",
				Name:      "donated_gross_total",
				Help:      "Gross donated amount in base units segmented by token.",
			}, []string{"token"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "crowdfund",
				Name:      "fees_collected_total",
				Help:      "Donation fees accrued to the fee pool segmented by token.",
			}, []string{"token"}),
			deliberations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "crowdfund",
				Name:      "deliberations_total",
				Help:      "Closed vote sessions segmented by outcome.",
			}, []string{"outcome"}),
			withdrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "crowdfund",
				Name:      "withdrawn_total",
				Help:      "Amounts released out of escrow segmented by kind (funds or fees).",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			eventRegistry.events,
			eventRegistry.donated,
			eventRegistry.fees,
			eventRegistry.deliberations,
			eventRegistry.withdrawn,
		)
	})
	return eventRegistry
}

// Name identifies the sink in executor logs.
func (m *eventMetrics) Name() string { return "metrics" }

// Publish records a batch of committed events.
func (m *eventMetrics) Publish(_ context.Context, batch []types.CommittedEvent) error {
	if m == nil {
		return nil
	}
	for _, evt := range batch {
		m.Record(evt.Type, evt.Attributes)
	}
	return nil
}

// Record updates the counters for a single event.
func (m *eventMetrics) Record(eventType string, attrs map[string]string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(orUnknown(eventType)).Inc()
	switch eventType {
	case crowdfund.EventTypeDonationRecorded:
		token := labelToken(attrs["token"])
		m.donated.WithLabelValues(token).Add(amountFloat(attrs["gross"]))
		m.fees.WithLabelValues(token).Add(amountFloat(attrs["fee"]))
	case crowdfund.EventTypeVoteDeliberated:
		outcome := "rejected"
		if attrs["passed"] == "true" {
			outcome = "passed"
		}
		m.deliberations.WithLabelValues(outcome).Inc()
	case crowdfund.EventTypeFundsWithdrawn:
		m.withdrawn.WithLabelValues("funds").Add(amountFloat(attrs["amount"]))
	case crowdfund.EventTypeFeesWithdrawn:
		m.withdrawn.WithLabelValues("fees").Add(amountFloat(attrs["amount"]))
	}
}

func labelToken(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func amountFloat(raw string) float64 {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() < 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
