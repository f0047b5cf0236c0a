package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics tracks the M-Pesa payment lifecycle.
type PaymentMetrics struct {
	initiated *prometheus.CounterVec
	finalized *prometheus.CounterVec
}

// NewPaymentMetrics registers payment counters on reg. A nil registerer
// yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	initiated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "initiated_total",
		Help:      "STK push charges started, by tier and purpose.",
	}, []string{"tier", "purpose"})
	finalized := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "finalized_total",
		Help:      "Payments moved to a terminal status, by status and the path that won (callback, poll, timeout).",
	}, []string{"status", "source"})
	reg.MustRegister(initiated, finalized)
	return &PaymentMetrics{initiated: initiated, finalized: finalized}
}

func (p *PaymentMetrics) IncInitiated(tier, purpose string) {
	if p == nil || p.initiated == nil {
		return
	}
	p.initiated.WithLabelValues(normalizeLabel(tier), normalizeLabel(purpose)).Inc()
}

func (p *PaymentMetrics) IncFinalized(status, source string) {
	if p == nil || p.finalized == nil {
		return
	}
	p.finalized.WithLabelValues(normalizeLabel(status), normalizeLabel(source)).Inc()
}
