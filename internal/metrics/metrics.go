// Package metrics exposes Prometheus counters for the protocol flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeDeferred = "deferred"
)

// Metrics holds the orchestrator counters. A nil *Metrics records nothing.
type Metrics struct {
	IssuanceFlowsStarted *prometheus.CounterVec
	CredentialRequests   *prometheus.CounterVec
	DeferredPolls        *prometheus.CounterVec
	DirectPosts          *prometheus.CounterVec
	CredentialsStored    prometheus.Counter
}

// New registers the counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IssuanceFlowsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_issuance_flows_started_total",
			Help: "Issuance flows started, by grant type",
		}, []string{"grant_type"}),
		CredentialRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_credential_requests_total",
			Help: "Credential endpoint requests, by outcome",
		}, []string{"outcome"}),
		DeferredPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_deferred_credential_polls_total",
			Help: "Deferred credential endpoint polls, by outcome",
		}, []string{"outcome"}),
		DirectPosts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_direct_post_deliveries_total",
			Help: "Direct post deliveries to verifiers, by response type and outcome",
		}, []string{"response_type", "outcome"}),
		CredentialsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_credentials_stored_total",
			Help: "Credentials persisted after issuance",
		}),
	}
}

func (m *Metrics) IncIssuanceFlow(grantType string) {
	if m == nil {
		return
	}
	m.IssuanceFlowsStarted.WithLabelValues(grantType).Inc()
}

func (m *Metrics) IncCredentialRequest(outcome string) {
	if m == nil {
		return
	}
	m.CredentialRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDeferredPoll(outcome string) {
	if m == nil {
		return
	}
	m.DeferredPolls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDirectPost(responseType string, delivered bool) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !delivered {
		outcome = OutcomeFailure
	}
	m.DirectPosts.WithLabelValues(responseType, outcome).Inc()
}

func (m *Metrics) IncCredentialsStored() {
	if m == nil {
		return
	}
	m.CredentialsStored.Inc()
}
