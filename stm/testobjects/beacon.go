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

package testobjects

import (
	"sync"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/types"
)

// FakeBeaconSource is a ledger that only moves when told to, it also acts as the registration
// source of its parties.
type FakeBeaconSource struct {
	mutex   sync.Mutex
	beacon  types.Beacon
	parties TestParties
	err     error
}

// NewFakeBeaconSource starts at epoch 1, immutable file 1.
func NewFakeBeaconSource(parties TestParties) *FakeBeaconSource {
	return &FakeBeaconSource{
		beacon:  types.Beacon{Network: config.TestNetwork, Epoch: 1, ImmutableFileNumber: 1},
		parties: parties,
	}
}

func (fbs *FakeBeaconSource) CurrentBeacon() (types.Beacon, error) {
	fbs.mutex.Lock()
	defer fbs.mutex.Unlock()
	return fbs.beacon, fbs.err
}

// ImmutableDigest returns a digest derived from the beacon.
func (fbs *FakeBeaconSource) ImmutableDigest(beacon types.Beacon) (types.HashBytes, error) {
	fbs.mutex.Lock()
	defer fbs.mutex.Unlock()
	if fbs.err != nil {
		return nil, fbs.err
	}
	buff, err := beacon.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return types.GetHash(append([]byte("digest"), buff...)), nil
}

// Registrations returns the parties of the source, whatever the beacon.
func (fbs *FakeBeaconSource) Registrations(types.Beacon) (types.StakeDistribution, map[types.PartyID]bls.VerificationKeyPoP, error) {
	fbs.mutex.Lock()
	defer fbs.mutex.Unlock()
	return fbs.parties.Distribution(), fbs.parties.Keys(), fbs.err
}

func (fbs *FakeBeaconSource) SetBeacon(beacon types.Beacon) {
	fbs.mutex.Lock()
	defer fbs.mutex.Unlock()
	fbs.beacon = beacon
}

// NextImmutable increments the immutable file number and returns the new beacon.
func (fbs *FakeBeaconSource) NextImmutable() types.Beacon {
	fbs.mutex.Lock()
	defer fbs.mutex.Unlock()
	fbs.beacon.ImmutableFileNumber++
	return fbs.beacon
}

// NextEpoch increments the epoch and the immutable file number and returns the new beacon.
func (fbs *FakeBeaconSource) NextEpoch() types.Beacon {
	fbs.mutex.Lock()
	defer fbs.mutex.Unlock()
	fbs.beacon.Epoch++
	fbs.beacon.ImmutableFileNumber++
	return fbs.beacon
}

// SetError makes every call fail with err, nil restores the source.
func (fbs *FakeBeaconSource) SetError(err error) {
	fbs.mutex.Lock()
	defer fbs.mutex.Unlock()
	fbs.err = err
}

func (fbs *FakeBeaconSource) SetParties(parties TestParties) {
	fbs.mutex.Lock()
	defer fbs.mutex.Unlock()
	fbs.parties = parties
}
