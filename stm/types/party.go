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

package types

import (
	"fmt"
	"sort"

	"github.com/tcrain/stm/stm/utils"
)

type PartyID string      // Unique identifier of a stake holder
type Stake uint64        // Amount of stake held by a party
type LotteryIndex uint64 // Index of the lottery, in [0, m)
type Epoch uint64        // Epoch of the underlying ledger

// Party is a stake holder.
type Party struct {
	ID    PartyID
	Stake Stake
}

func (p Party) String() string {
	return fmt.Sprintf("%v:%v", p.ID, p.Stake)
}

// StakeDistribution is a list of parties, see Sort for the canonical order.
type StakeDistribution []Party

// Sort orders the parties by id.
func (sd StakeDistribution) Sort() {
	sort.Slice(sd, func(i, j int) bool {
		return sd[i].ID < sd[j].ID
	})
}

// TotalStake returns the sum of the stakes, or ErrInvalidStake if it overflows.
func (sd StakeDistribution) TotalStake() (Stake, error) {
	stakes := make([]uint64, len(sd))
	for i, nxt := range sd {
		stakes[i] = uint64(nxt.Stake)
	}
	if utils.CheckOverflow(stakes...) {
		return 0, ErrInvalidStake
	}
	var total Stake
	for _, nxt := range sd {
		total += nxt.Stake
	}
	return total, nil
}

// Get returns the party with id.
func (sd StakeDistribution) Get(id PartyID) (Party, bool) {
	for _, nxt := range sd {
		if nxt.ID == id {
			return nxt, true
		}
	}
	return Party{}, false
}
