package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/concurrent-ledger/internal/ledger"
)

// Transferer records the outcome and latency of every transfer it forwards.
type Transferer struct {
	next     ledger.Transferer
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewTransferer registers the transfer collectors on reg.
func NewTransferer(next ledger.Transferer, reg prometheus.Registerer) (*Transferer, error) {
	t := &Transferer{
		next: next,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transfers_total",
			Help:      "Transfers by outcome kind.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "transfer_duration_seconds",
			Help:      "Time spent in Transfer, including guard waits.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{t.outcomes, t.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Transferer) Transfer(ctx context.Context, from, to *ledger.Account, amount decimal.Decimal) error {
	start := time.Now()
	err := t.next.Transfer(ctx, from, to, amount)
	t.duration.Observe(time.Since(start).Seconds())
	t.outcomes.WithLabelValues(outcome(err)).Inc()
	return err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return ledger.KindOf(err).String()
}

var _ ledger.Transferer = (*Transferer)(nil)
