package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "todoauth"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Auth collects authentication counters. A nil *Auth is a valid no-op recorder.
type Auth struct {
	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	decisions     *prometheus.CounterVec
}

// NewAuth registers the auth collectors on reg.
func NewAuth(reg prometheus.Registerer) *Auth {
	factory := promauto.With(reg)
	return &Auth{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Identity establishment attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Password registrations by outcome.",
		}, []string{"outcome"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Access token refreshes by outcome.",
		}, []string{"outcome"}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verifications_total",
			Help:      "Token verifications by token class and outcome.",
		}, []string{"class", "outcome"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Authorization gate decisions.",
		}, []string{"decision"}),
	}
}

func (m *Auth) Login(method string, err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, outcome(err)).Inc()
}

func (m *Auth) Registration(err error) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome(err)).Inc()
}

func (m *Auth) Refresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome(err)).Inc()
}

func (m *Auth) Verification(class string, err error) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(class, outcome(err)).Inc()
}

func (m *Auth) Decision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
