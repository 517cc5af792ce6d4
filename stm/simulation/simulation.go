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
Package simulation runs the aggregator against a simulated ledger and simulated parties.
Time is simulated as well, each cycle advances a mock clock by the cycle interval.
*/
package simulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/tcrain/stm/stm/aggregator"
	"github.com/tcrain/stm/stm/certificate"
	"github.com/tcrain/stm/stm/logging"
	"github.com/tcrain/stm/stm/multisig"
	"github.com/tcrain/stm/stm/types"
)

// Config of a simulation.
type Config struct {
	Runtime      aggregator.Config // Clock and Registrations are set by the simulation
	Network      string
	EpochLength  uint64 // immutable files per epoch
	Certificates int    // certificates to issue after the genesis one
	MaxAbandoned int    // the simulation fails once this many rounds are abandoned
	Signers      []Signer
}

// Result of a simulation.
type Result struct {
	Chain      *certificate.Chain
	Abandoned  int
	Signatures int // individual signatures submitted
	Rejections []aggregator.Rejection
	Stats      string
}

// Run issues the genesis certificate then cfg.Certificates more.
// The runtime is created from cfg.Runtime, so a simulation continues from the chain of its store.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Runtime.Genesis == nil {
		return nil, fmt.Errorf("%w: no genesis key", types.ErrInvalidGenesis)
	}
	if cfg.MaxAbandoned <= 0 {
		cfg.MaxAbandoned = 10 * (cfg.Certificates + 1)
	}
	mock := clock.NewMock()
	ledger := NewLedger(cfg.Network, cfg.EpochLength, cfg.Signers)
	rcfg := cfg.Runtime
	rcfg.Clock = mock
	rcfg.Registrations = ledger
	rcfg.SetDefaults()
	rt, err := aggregator.NewRuntime(rcfg, ledger)
	if err != nil {
		return nil, err
	}
	// continue from a resumed round or from the tip of a stored chain
	if b, ok := rt.Beacon(); ok {
		ledger.SetBeacon(b)
	} else if tip := rt.Chain().Tip(); tip != nil {
		ledger.SetBeacon(tip.Beacon)
		ledger.Advance()
	}

	res := &Result{Chain: rt.Chain()}
	target := rt.Chain().Len() + cfg.Certificates
	if rt.Chain().Len() == 0 {
		target++
	}
	for rt.Chain().Len() < target {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := rt.Cycle()
		switch {
		case errors.Is(err, types.ErrRoundExpired):
			res.Abandoned++
			if res.Abandoned >= cfg.MaxAbandoned {
				return res, fmt.Errorf("%w: %v rounds abandoned", types.ErrQuorumNotReached, res.Abandoned)
			}
		case err != nil:
			return res, err
		}

		switch rt.State() {
		case aggregator.Idle:
			ledger.Advance()
		case aggregator.SignatureCollection:
			if rt.Chain().Len() == 0 {
				// the next cycle issues the genesis certificate
				continue
			}
			n, err := submitAll(rt, cfg.Signers)
			if err != nil {
				return res, err
			}
			res.Signatures += n
			if rt.State() == aggregator.SignatureCollection {
				logging.Infof("no quorum for %v, waiting for the deadline", mustBeacon(ledger))
				mock.Add(rcfg.RoundTimeout)
			}
		}
		mock.Add(rcfg.CycleInterval)
	}
	res.Rejections = rt.Rejections()
	res.Stats = rcfg.Stats.String()
	return res, nil
}

// submitAll signs the pending certificate with the active signers, in parallel.
// Signers that win no index do not submit, it returns the number of signatures submitted.
func submitAll(rt *aggregator.Runtime, signers []Signer) (int, error) {
	pending := rt.Pending()
	if pending == nil {
		return 0, nil
	}
	var eg errgroup.Group
	sigs := make([]*multisig.IndividualSignature, len(signers))
	for i, nxt := range signers {
		if !nxt.Active {
			continue
		}
		if _, ok := pending.Registration.Party(nxt.ID); !ok {
			continue
		}
		i, nxt := i, nxt
		eg.Go(func() error {
			sig, err := multisig.Sign(nxt.SK, pending.Message(), nxt.ID, pending.Registration)
			if err != nil {
				return err
			}
			if len(sig.Sigmas) == 0 {
				return nil
			}
			sigs[i] = sig
			return rt.SubmitSignature(sig)
		})
	}
	err := eg.Wait()
	var n int
	for _, nxt := range sigs {
		if nxt != nil {
			n++
		}
	}
	return n, err
}

func mustBeacon(l *Ledger) types.Beacon {
	b, _ := l.CurrentBeacon()
	return b
}
