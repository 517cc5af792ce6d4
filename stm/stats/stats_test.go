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

package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.Nil(t, err)
	var _ StatsInterface = m

	m.RoundOpened()
	m.Registered()
	m.Registered()
	m.SignatureAccepted()
	m.SignatureRejected("invalid lottery claim")
	m.SignatureRejected("invalid lottery claim")
	m.SignatureRejected("unknown party")
	m.QuorumReached(time.Second, 2)
	m.CertificateIssued(3)
	m.RoundAbandoned("expired")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.roundsOpened))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.registrations))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.signaturesRejected.WithLabelValues("invalid lottery claim")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.signaturesRejected.WithLabelValues("unknown party")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.chainHeight))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.quorumParties))
	assert.Equal(t, 1, testutil.CollectAndCount(m.quorumSeconds))
	assert.Equal(t, "{rounds: 1, certificates: 1, abandoned: 1, signatures accepted: 1, rejected: 3}", m.String())

	// the collectors can only be registered once
	_, err = NewMetrics(reg)
	assert.NotNil(t, err)
}
