/*
github.com/tcrain/stm - Stake-based threshold multisignature certificates.
Copyright (C) 2020 The project authors - tcrain

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

*/

/*
Package stats keeps statistics about the rounds run by the aggregator, exported as prometheus metrics.
*/
package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stm"

// StatsInterface is the interface used by the aggregator runtime to report what it does.
type StatsInterface interface {
	// RoundOpened is called each time a round starts for a new beacon.
	RoundOpened()
	// Registered is called each time a party is registered.
	Registered()
	// SignatureAccepted is called each time a new individual signature is stored.
	SignatureAccepted()
	// SignatureRejected is called each time a submitted signature is dropped.
	SignatureRejected(reason string)
	// QuorumReached is called when the signatures of a round aggregate.
	QuorumReached(elapsed time.Duration, parties int)
	// CertificateIssued is called each time a certificate is appended to the chain.
	CertificateIssued(height int)
	// RoundAbandoned is called when a round ends without a certificate.
	RoundAbandoned(reason string)
	// String outputs the statistics in a human readable format.
	String() string
}

// Metrics implements StatsInterface using prometheus collectors.
type Metrics struct {
	roundsOpened       prometheus.Counter
	registrations      prometheus.Counter
	signaturesAccepted prometheus.Counter
	signaturesRejected *prometheus.CounterVec
	roundsAbandoned    *prometheus.CounterVec
	certificates       prometheus.Counter
	chainHeight        prometheus.Gauge
	quorumParties      prometheus.Gauge
	quorumSeconds      prometheus.Histogram

	opened, accepted, rejected, issued, abandoned uint64
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		roundsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rounds_opened_total", Help: "Number of rounds started.",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "registrations_total", Help: "Number of parties registered.",
		}),
		signaturesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "signatures_accepted_total", Help: "Number of individual signatures stored.",
		}),
		signaturesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signatures_rejected_total", Help: "Number of individual signatures dropped.",
		}, []string{"reason"}),
		roundsAbandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rounds_abandoned_total", Help: "Number of rounds ended without a certificate.",
		}, []string{"reason"}),
		certificates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "certificates_issued_total", Help: "Number of certificates issued.",
		}),
		chainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "chain_height", Help: "Height of the tip of the certificate chain.",
		}),
		quorumParties: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "quorum_parties", Help: "Parties contributing to the last multi-signature.",
		}),
		quorumSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "quorum_seconds", Help: "Time from the start of a round to its quorum.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	for _, nxt := range []prometheus.Collector{m.roundsOpened, m.registrations, m.signaturesAccepted,
		m.signaturesRejected, m.roundsAbandoned, m.certificates, m.chainHeight, m.quorumParties, m.quorumSeconds} {

		if err := reg.Register(nxt); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RoundOpened() {
	atomic.AddUint64(&m.opened, 1)
	m.roundsOpened.Inc()
}

func (m *Metrics) Registered() {
	m.registrations.Inc()
}

func (m *Metrics) SignatureAccepted() {
	atomic.AddUint64(&m.accepted, 1)
	m.signaturesAccepted.Inc()
}

func (m *Metrics) SignatureRejected(reason string) {
	atomic.AddUint64(&m.rejected, 1)
	m.signaturesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) QuorumReached(elapsed time.Duration, parties int) {
	m.quorumSeconds.Observe(elapsed.Seconds())
	m.quorumParties.Set(float64(parties))
}

func (m *Metrics) CertificateIssued(height int) {
	atomic.AddUint64(&m.issued, 1)
	m.certificates.Inc()
	m.chainHeight.Set(float64(height))
}

func (m *Metrics) RoundAbandoned(reason string) {
	atomic.AddUint64(&m.abandoned, 1)
	m.roundsAbandoned.WithLabelValues(reason).Inc()
}

func (m *Metrics) String() string {
	return fmt.Sprintf("{rounds: %v, certificates: %v, abandoned: %v, signatures accepted: %v, rejected: %v}",
		atomic.LoadUint64(&m.opened), atomic.LoadUint64(&m.issued), atomic.LoadUint64(&m.abandoned),
		atomic.LoadUint64(&m.accepted), atomic.LoadUint64(&m.rejected))
}

// NopStats discards the statistics.
type NopStats struct{}

func (NopStats) RoundOpened() {}
func (NopStats) Registered() {}
func (NopStats) SignatureAccepted() {}
func (NopStats) SignatureRejected(string) {}
func (NopStats) QuorumReached(time.Duration, int) {}
func (NopStats) CertificateIssued(int) {}
func (NopStats) RoundAbandoned(string) {}
func (NopStats) String() string { return "{}" }
