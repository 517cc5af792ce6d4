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

package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tcrain/stm/stm/logging"
	"github.com/tcrain/stm/stm/types"
)

// Cycle runs one step of the state machine from the current beacon of the source.
// An Idle runtime opens a round for a new beacon, a newer beacon supersedes a round still
// registering or collecting signatures, the registration is closed once it has parties, and a
// round with a quorum is certified then finished.
func (r *Runtime) Cycle() error {
	beacon, err := r.beacons.CurrentBeacon()
	if err != nil {
		return fmt.Errorf("reading beacon: %w", err)
	}
	if err := r.Tick(); err != nil {
		return err
	}

	switch r.State() {
	case Idle:
		if last, ok := r.lastBeacon(); ok && !beacon.IsNewerThan(last) {
			return nil
		}
		return r.OpenRound(beacon)
	case RegistrationOpen:
		if r.superseded(beacon) {
			return r.OpenRound(beacon)
		}
		r.registerFromSource()
		if r.registered() == 0 {
			logging.Debugf("no parties registered for %v yet", beacon)
			return nil
		}
		return r.CloseRegistration()
	case SignatureCollection:
		if r.superseded(beacon) {
			return r.OpenRound(beacon)
		}
		if r.chain.Len() == 0 && r.cfg.Genesis != nil {
			_, err := r.IssueCertificate()
			return err
		}
	case QuorumReached:
		_, err := r.IssueCertificate()
		return err
	case CertificateIssued:
		return r.FinishRound()
	}
	return nil
}

func (r *Runtime) superseded(beacon types.Beacon) bool {
	current, ok := r.Beacon()
	return ok && beacon.IsNewerThan(current)
}

func (r *Runtime) registered() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.round == nil {
		return 0
	}
	return r.round.registry.Len()
}

// registerFromSource registers the parties of cfg.Registrations not yet in the registry.
// A refused party is logged and skipped.
func (r *Runtime) registerFromSource() {
	if r.cfg.Registrations == nil {
		return
	}
	r.mutex.RLock()
	rd := r.round
	r.mutex.RUnlock()
	if rd == nil {
		return
	}
	sd, keys, err := r.cfg.Registrations.Registrations(rd.beacon)
	if err != nil {
		logging.Warningf("reading registrations of %v: %v", rd.beacon, err)
		return
	}
	for _, nxt := range sd {
		if rd.registry.Contains(nxt.ID) {
			continue
		}
		vkp, ok := keys[nxt.ID]
		if !ok {
			logging.Warningf("no key for party %v", nxt.ID)
			continue
		}
		if err := r.Register(nxt.ID, nxt.Stake, vkp); errors.Is(err, types.ErrRegistryNotOpen) {
			return
		}
	}
}

// Run calls Cycle every cfg.CycleInterval until ctx is done or the chain integrity is broken.
func (r *Runtime) Run(ctx context.Context) error {
	ticker := r.cfg.Clock.Ticker(r.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Cycle(); err != nil {
				if errors.Is(err, types.ErrChainIntegrity) {
					return err
				}
				logging.Info("cycle: ", err)
			}
		}
	}
}
