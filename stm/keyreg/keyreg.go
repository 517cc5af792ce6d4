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
Package keyreg contains the key registry of a round.
A registry is open while parties register their stake and verification key,
once closed it becomes an immutable ClosedKeyRegistration committed to by a Merkle tree.
*/
package keyreg

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/logging"
	"github.com/tcrain/stm/stm/merkle"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

type regEntry struct {
	stake types.Stake
	vkp   bls.VerificationKeyPoP
}

// Registration is a party as it registered, with its proof of possession.
type Registration struct {
	ID    types.PartyID
	Stake types.Stake
	Key   bls.VerificationKeyPoP
}

// KeyRegistry collects the registrations of a round.
// It is safe for concurrent use.
type KeyRegistry struct {
	mutex  sync.RWMutex
	params types.ProtocolParameters
	keys   map[types.PartyID]regEntry
	total  types.Stake
	closed bool
}

// NewKeyRegistry creates an open registry.
func NewKeyRegistry(params types.ProtocolParameters) (*KeyRegistry, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &KeyRegistry{params: params, keys: make(map[types.PartyID]regEntry)}, nil
}

// Register adds a party, its proof of possession is checked before anything is stored.
func (kr *KeyRegistry) Register(id types.PartyID, stake types.Stake, vkp bls.VerificationKeyPoP) error {
	if id == "" {
		return types.ErrInvalidPartyID
	}
	if stake == 0 {
		return fmt.Errorf("%w: party %v has zero stake", types.ErrInvalidStake, id)
	}
	kr.mutex.RLock()
	closed := kr.closed
	kr.mutex.RUnlock()
	if closed {
		return types.ErrRegistryNotOpen
	}

	// the pairing checks are done outside the lock
	if err := vkp.Check(); err != nil {
		return fmt.Errorf("party %v: %w", id, err)
	}

	kr.mutex.Lock()
	defer kr.mutex.Unlock()
	if kr.closed {
		return types.ErrRegistryNotOpen
	}
	if _, ok := kr.keys[id]; ok {
		return fmt.Errorf("%w: %v", types.ErrDuplicateParty, id)
	}
	if utils.CheckOverflow(uint64(kr.total), uint64(stake)) {
		return fmt.Errorf("%w: total stake overflows", types.ErrInvalidStake)
	}
	kr.keys[id] = regEntry{stake: stake, vkp: vkp}
	kr.total += stake
	logging.Debugf("registered party %v with stake %v", id, stake)
	return nil
}

// Contains returns true if id is registered.
func (kr *KeyRegistry) Contains(id types.PartyID) bool {
	kr.mutex.RLock()
	defer kr.mutex.RUnlock()
	_, ok := kr.keys[id]
	return ok
}

// Len returns the number of registered parties.
func (kr *KeyRegistry) Len() int {
	kr.mutex.RLock()
	defer kr.mutex.RUnlock()
	return len(kr.keys)
}

// TotalStake is the sum of the stakes registered so far.
func (kr *KeyRegistry) TotalStake() types.Stake {
	kr.mutex.RLock()
	defer kr.mutex.RUnlock()
	return kr.total
}

// Registrations returns the registered parties ordered by id.
func (kr *KeyRegistry) Registrations() []Registration {
	kr.mutex.RLock()
	defer kr.mutex.RUnlock()
	ret := make([]Registration, 0, len(kr.keys))
	for id, entry := range kr.keys {
		ret = append(ret, Registration{ID: id, Stake: entry.stake, Key: entry.vkp})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// IsClosed returns true once Close has succeeded.
func (kr *KeyRegistry) IsClosed() bool {
	kr.mutex.RLock()
	defer kr.mutex.RUnlock()
	return kr.closed
}

// Close freezes the registry and builds its Merkle commitment.
// Once it succeeds any new registration fails with ErrRegistryNotOpen.
func (kr *KeyRegistry) Close() (*ClosedKeyRegistration, error) {
	kr.mutex.Lock()
	defer kr.mutex.Unlock()
	if kr.closed {
		return nil, types.ErrRegistryNotOpen
	}
	if len(kr.keys) == 0 {
		return nil, types.ErrEmptyRegistry
	}

	ids := make([]types.PartyID, 0, len(kr.keys))
	for id := range kr.keys {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	leaves := make([]merkle.Leaf, len(ids))
	parties := make(map[types.PartyID]RegisteredParty, len(ids))
	for i, id := range ids {
		entry := kr.keys[id]
		vkBytes, err := entry.vkp.VK.MarshalBinary()
		if err != nil {
			return nil, err
		}
		leaves[i] = merkle.Leaf{PartyID: id, Stake: entry.stake, VerificationKey: vkBytes}
		parties[id] = RegisteredParty{ID: id, Stake: entry.stake, VerificationKey: entry.vkp.VK, Position: i}
	}
	tree, err := merkle.NewTree(leaves)
	if err != nil {
		return nil, err
	}
	kr.closed = true
	logging.Infof("closed registry with %v parties, total stake %v, root %v", len(ids), kr.total, tree.Root().Short())
	return &ClosedKeyRegistration{
		params:  kr.params,
		total:   kr.total,
		tree:    tree,
		parties: parties,
	}, nil
}

// RegisterStakeDistribution registers every party of sd, with keys[id] as its key.
// It stops at the first failure.
func (kr *KeyRegistry) RegisterStakeDistribution(sd types.StakeDistribution, keys map[types.PartyID]bls.VerificationKeyPoP) error {
	for _, nxt := range sd {
		vkp, ok := keys[nxt.ID]
		if !ok {
			return fmt.Errorf("%w: no key for %v", types.ErrUnknownParty, nxt.ID)
		}
		if err := kr.Register(nxt.ID, nxt.Stake, vkp); err != nil {
			return err
		}
	}
	return nil
}
