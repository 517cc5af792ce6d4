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
	"sync"

	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

// Ledger is a simulated external ledger, it produces one immutable file per Advance, and
// starts a new epoch every epochLength immutable files.
type Ledger struct {
	mutex       sync.Mutex
	beacon      types.Beacon
	epochLength uint64
	signers     []Signer
}

func NewLedger(network string, epochLength uint64, signers []Signer) *Ledger {
	if epochLength == 0 {
		epochLength = 1
	}
	return &Ledger{
		beacon:      types.Beacon{Network: network, Epoch: 1, ImmutableFileNumber: 1},
		epochLength: epochLength,
		signers:     signers,
	}
}

func (l *Ledger) CurrentBeacon() (types.Beacon, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.beacon, nil
}

// Advance adds an immutable file to the ledger and returns the new beacon.
func (l *Ledger) Advance() types.Beacon {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.beacon.ImmutableFileNumber++
	if (l.beacon.ImmutableFileNumber-1)%l.epochLength == 0 {
		l.beacon.Epoch++
	}
	return l.beacon
}

// ImmutableDigest is the digest of the simulated files up to the beacon.
func (l *Ledger) ImmutableDigest(beacon types.Beacon) (types.HashBytes, error) {
	buff, err := beacon.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return types.GetHash(utils.JoinBytes([]byte("immutable"), buff)), nil
}

// Registrations returns every signer, the stake distribution does not change between epochs.
func (l *Ledger) Registrations(types.Beacon) (types.StakeDistribution, map[types.PartyID]bls.VerificationKeyPoP, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	keys := make(map[types.PartyID]bls.VerificationKeyPoP, len(l.signers))
	for _, nxt := range l.signers {
		keys[nxt.ID] = nxt.VKPoP
	}
	return Distribution(l.signers), keys, nil
}

func (l *Ledger) SetBeacon(beacon types.Beacon) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.beacon = beacon
}
