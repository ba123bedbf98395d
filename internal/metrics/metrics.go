package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Module provides the domain metrics recorder.
var Module = fx.Provide(New)

// Metrics counts workflow and metering outcomes. Nil receivers are safe so
// services constructed without a recorder (tests) skip emission.
type Metrics struct {
	creditsDeducted   prometheus.Counter
	creditsRefunded   prometheus.Counter
	freeTrialsGranted prometheus.Counter
	deductionFailures *prometheus.CounterVec
	claimConflicts    prometheus.Counter
	claimTakeovers    prometheus.Counter
	duplicateEvents   prometheus.Counter
	activations       prometheus.Counter
	transitions       *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		creditsDeducted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "letterflow_credits_deducted_total",
			Help: "Letter credits deducted from subscriber allowances.",
		}),
		creditsRefunded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "letterflow_credits_refunded_total",
			Help: "Letter credits refunded after generation failures.",
		}),
		freeTrialsGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "letterflow_free_trials_granted_total",
			Help: "One-time free trial credits consumed.",
		}),
		deductionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "letterflow_deduction_failures_total",
			Help: "Credit deductions rejected, by reason.",
		}, []string{"reason"}),
		claimConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "letterflow_claim_conflicts_total",
			Help: "Review claims rejected because another reviewer holds the letter.",
		}),
		claimTakeovers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "letterflow_claim_takeovers_total",
			Help: "Review claims granted over an expired claim.",
		}),
		duplicateEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "letterflow_webhook_duplicates_total",
			Help: "Webhook events acknowledged as already processed.",
		}),
		activations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "letterflow_subscription_activations_total",
			Help: "Subscription activation transactions committed.",
		}),
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "letterflow_letter_transitions_total",
			Help: "Letter status transitions, by target status.",
		}, []string{"to"}),
	}
}

func (m *Metrics) CreditDeducted(freeTrial bool) {
	if m == nil {
		return
	}
	m.creditsDeducted.Inc()
	if freeTrial {
		m.freeTrialsGranted.Inc()
	}
}

func (m *Metrics) CreditRefunded() {
	if m == nil {
		return
	}
	m.creditsRefunded.Inc()
}

func (m *Metrics) DeductionFailed(reason string) {
	if m == nil {
		return
	}
	m.deductionFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}

func (m *Metrics) ClaimTakeover() {
	if m == nil {
		return
	}
	m.claimTakeovers.Inc()
}

func (m *Metrics) DuplicateEvent() {
	if m == nil {
		return
	}
	m.duplicateEvents.Inc()
}

func (m *Metrics) SubscriptionActivated() {
	if m == nil {
		return
	}
	m.activations.Inc()
}

func (m *Metrics) LetterTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}
