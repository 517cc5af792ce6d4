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

package simulation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/aggregator"
	"github.com/tcrain/stm/stm/certificate"
	"github.com/tcrain/stm/stm/stats"
	"github.com/tcrain/stm/stm/storage"
	"github.com/tcrain/stm/stm/types"
)

var allWin = types.ProtocolParameters{M: 10, K: 10, PhiF: 1}

func testSigners(t *testing.T, n int) []Signer {
	ret := make([]Signer, n)
	for i := range ret {
		var err error
		ret[i], err = NewSigner(types.PartyID(fmt.Sprintf("party%03d", i)), types.Stake(i+1), []byte(fmt.Sprint(i)))
		require.Nil(t, err)
	}
	return ret
}

func testConfig(t *testing.T, signers []Signer) (Config, *certificate.GenesisSigner) {
	gs := certificate.NewSeededGenesisSigner([]byte("genesis"))
	return Config{
		Runtime: aggregator.Config{
			Params:        allWin,
			RoundTimeout:  time.Minute,
			CycleInterval: time.Second,
			Genesis:       gs,
		},
		Network:      config.TestNetwork,
		EpochLength:  3,
		Certificates: 3,
		Signers:      signers,
	}, gs
}

func TestLedger(t *testing.T) {
	l := NewLedger(config.TestNetwork, 2, nil)
	b, err := l.CurrentBeacon()
	assert.Nil(t, err)
	assert.Equal(t, types.Beacon{Network: config.TestNetwork, Epoch: 1, ImmutableFileNumber: 1}, b)
	assert.Equal(t, types.Beacon{Network: config.TestNetwork, Epoch: 1, ImmutableFileNumber: 2}, l.Advance())
	assert.Equal(t, types.Beacon{Network: config.TestNetwork, Epoch: 2, ImmutableFileNumber: 3}, l.Advance())

	d1, err := l.ImmutableDigest(b)
	assert.Nil(t, err)
	d2, err := l.ImmutableDigest(l.Advance())
	assert.Nil(t, err)
	assert.False(t, d1.Equal(d2))
}

func TestSignersFromConfig(t *testing.T) {
	no := false
	signers, err := SignersFromConfig([]config.PartyConfig{
		{ID: "a", Stake: 10},
		{ID: "b", Stake: 20, Seed: "0102", Sign: &no},
	})
	assert.Nil(t, err)
	require.Len(t, signers, 2)
	assert.True(t, signers[0].Active)
	assert.False(t, signers[1].Active)
	assert.Nil(t, signers[1].VKPoP.Check())
	assert.Equal(t, types.StakeDistribution{{ID: "a", Stake: 10}, {ID: "b", Stake: 20}}, Distribution(signers))

	// the key only depends on the seed
	again, err := NewSigner("a", 10, []byte("a"))
	assert.Nil(t, err)
	assert.True(t, again.VKPoP.VK.Equal(signers[0].VKPoP.VK))

	_, err = SignersFromConfig([]config.PartyConfig{{ID: "c", Stake: 1, Seed: "xyz"}})
	assert.NotNil(t, err)
}

func TestSimulation(t *testing.T) {
	cfg, gs := testConfig(t, testSigners(t, 4))
	m, err := stats.NewMetrics(prometheus.NewRegistry())
	require.Nil(t, err)
	cfg.Runtime.Stats = m

	res, err := Run(context.Background(), cfg)
	assert.Nil(t, err)
	assert.Equal(t, 4, res.Chain.Len())
	assert.Equal(t, 0, res.Abandoned)
	assert.Equal(t, 12, res.Signatures)
	assert.Len(t, res.Rejections, 0)
	assert.Nil(t, res.Chain.Verify(gs.Verifier()))
	assert.Contains(t, res.Stats, "certificates: 4")

	certs := res.Chain.Certificates()
	assert.True(t, certs[0].IsGenesis())
	for i := 1; i < len(certs); i++ {
		assert.True(t, certs[i].Beacon.IsNewerThan(certs[i-1].Beacon))
	}
}

func TestSimulationInactive(t *testing.T) {
	signers := testSigners(t, 4)
	signers[0].Active = false
	signers[2].Active = false
	cfg, gs := testConfig(t, signers)

	res, err := Run(context.Background(), cfg)
	assert.Nil(t, err)
	assert.Equal(t, 6, res.Signatures)
	for _, nxt := range res.Chain.Certificates()[1:] {
		_, ok := nxt.Metadata.Signers.Get(signers[0].ID)
		assert.False(t, ok)
	}
	assert.Nil(t, res.Chain.Verify(gs.Verifier()))
}

func TestSimulationNoQuorum(t *testing.T) {
	signers := testSigners(t, 3)
	for i := range signers {
		signers[i].Active = false
	}
	cfg, _ := testConfig(t, signers)
	cfg.MaxAbandoned = 3

	res, err := Run(context.Background(), cfg)
	assert.ErrorIs(t, err, types.ErrQuorumNotReached)
	assert.Equal(t, 3, res.Abandoned)
	assert.Equal(t, 1, res.Chain.Len())
}

func TestSimulationErrors(t *testing.T) {
	cfg, _ := testConfig(t, testSigners(t, 2))
	cfg.Runtime.Genesis = nil
	_, err := Run(context.Background(), cfg)
	assert.ErrorIs(t, err, types.ErrInvalidGenesis)

	cfg, _ = testConfig(t, testSigners(t, 2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulationContinue(t *testing.T) {
	dir := t.TempDir()
	run := func(n int) *Result {
		store, err := storage.OpenDiskCertificateStore(filepath.Join(dir, "certs.dat"), true, 0)
		require.Nil(t, err)
		defer func() {
			assert.Nil(t, store.Close())
		}()
		rounds, err := storage.OpenBoltStore(filepath.Join(dir, "rounds.db"))
		require.Nil(t, err)
		defer func() {
			assert.Nil(t, rounds.Close())
		}()

		cfg, _ := testConfig(t, testSigners(t, 3))
		cfg.Certificates = n
		cfg.Runtime.Store = store
		cfg.Runtime.Rounds = rounds
		res, err := Run(context.Background(), cfg)
		require.Nil(t, err)
		return res
	}

	first := run(2)
	assert.Equal(t, 3, first.Chain.Len())
	second := run(2)
	assert.Equal(t, 5, second.Chain.Len())
	assert.Equal(t, first.Chain.Tip().Hash, second.Chain.Certificates()[2].Hash)

	_, gs := testConfig(t, nil)
	assert.Nil(t, second.Chain.Verify(gs.Verifier()))
}
