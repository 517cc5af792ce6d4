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
	"encoding/hex"
	"fmt"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

// Signer is a simulated party.
type Signer struct {
	ID     types.PartyID
	Stake  types.Stake
	SK     *bls.SigningKey
	VKPoP  bls.VerificationKeyPoP
	Active bool // if false the party registers but never signs
}

// NewSigner derives the key of the party from seed.
func NewSigner(id types.PartyID, stake types.Stake, seed []byte) (Signer, error) {
	sk, _ := bls.NewKeyPair(utils.NewSeededStream(seed, config.PartyKeySeed))
	vkp, err := sk.VerificationKeyPoP()
	if err != nil {
		return Signer{}, err
	}
	return Signer{ID: id, Stake: stake, SK: sk, VKPoP: vkp, Active: true}, nil
}

// SignersFromConfig creates the parties of a node config.
// A party without a seed uses its id as the seed.
func SignersFromConfig(parties []config.PartyConfig) ([]Signer, error) {
	ret := make([]Signer, len(parties))
	for i, p := range parties {
		seed := []byte(p.ID)
		if p.Seed != "" {
			var err error
			if seed, err = hex.DecodeString(p.Seed); err != nil {
				return nil, fmt.Errorf("seed of party %v: %w", p.ID, err)
			}
		}
		s, err := NewSigner(types.PartyID(p.ID), types.Stake(p.Stake), seed)
		if err != nil {
			return nil, err
		}
		if p.Sign != nil {
			s.Active = *p.Sign
		}
		ret[i] = s
	}
	return ret, nil
}

// Distribution returns the stake distribution of the signers.
func Distribution(signers []Signer) types.StakeDistribution {
	ret := make(types.StakeDistribution, len(signers))
	for i, nxt := range signers {
		ret[i] = types.Party{ID: nxt.ID, Stake: nxt.Stake}
	}
	return ret
}
