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
Package testobjects contains reproducible parties and a fake beacon source used by the tests
and the local simulation.
*/
package testobjects

import (
	"fmt"
	"sync"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

// TestParty is a party with its keys.
type TestParty struct {
	ID    types.PartyID
	Stake types.Stake
	SK    *bls.SigningKey
	VKPoP bls.VerificationKeyPoP
}

// TestParties is a list of parties in the order they were created.
type TestParties []TestParty

// NewTestParty creates a party whose key is derived from seed and id.
func NewTestParty(id types.PartyID, stake types.Stake, seed []byte) (TestParty, error) {
	sk, _ := bls.NewKeyPair(utils.NewSeededStream(append(append([]byte{}, seed...), string(id)...), config.PartyKeySeed))
	vkp, err := sk.VerificationKeyPoP()
	if err != nil {
		return TestParty{}, err
	}
	return TestParty{ID: id, Stake: stake, SK: sk, VKPoP: vkp}, nil
}

// NewTestParties creates a party for each entry of sd using the seed.
func NewTestParties(sd types.StakeDistribution, seed []byte) (TestParties, error) {
	ret := make(TestParties, len(sd))
	for i, nxt := range sd {
		p, err := NewTestParty(nxt.ID, nxt.Stake, seed)
		if err != nil {
			return nil, err
		}
		ret[i] = p
	}
	return ret, nil
}

var cacheMutex sync.Mutex
var partyCache = make(map[string]TestParties)

// DefaultTestParties returns the parties of sd with keys from config.InitRandBytes,
// they are cached as generating the proofs of possession is slow.
func DefaultTestParties(sd types.StakeDistribution) TestParties {
	key := fmt.Sprint(sd)
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	if ret, ok := partyCache[key]; ok {
		return ret
	}
	ret, err := NewTestParties(sd, config.InitRandBytes[:])
	if err != nil {
		panic(err)
	}
	partyCache[key] = ret
	return ret
}

// GenStakeDistribution returns n parties named party000... with stakes 1, 2, ..., n.
func GenStakeDistribution(n int) types.StakeDistribution {
	ret := make(types.StakeDistribution, n)
	for i := range ret {
		ret[i] = types.Party{ID: types.PartyID(fmt.Sprintf("party%03d", i)), Stake: types.Stake(i + 1)}
	}
	return ret
}

// ThreePartyDistribution is the A:700, B:200, C:100 distribution.
func ThreePartyDistribution() types.StakeDistribution {
	return types.StakeDistribution{{ID: "A", Stake: 700}, {ID: "B", Stake: 200}, {ID: "C", Stake: 100}}
}

func (tp TestParties) Distribution() types.StakeDistribution {
	ret := make(types.StakeDistribution, len(tp))
	for i, nxt := range tp {
		ret[i] = types.Party{ID: nxt.ID, Stake: nxt.Stake}
	}
	return ret
}

// Keys returns the registration key of each party.
func (tp TestParties) Keys() map[types.PartyID]bls.VerificationKeyPoP {
	ret := make(map[types.PartyID]bls.VerificationKeyPoP, len(tp))
	for _, nxt := range tp {
		ret[nxt.ID] = nxt.VKPoP
	}
	return ret
}

func (tp TestParties) Get(id types.PartyID) (TestParty, bool) {
	for _, nxt := range tp {
		if nxt.ID == id {
			return nxt, true
		}
	}
	return TestParty{}, false
}
