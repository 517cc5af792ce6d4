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

package multisig

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/keyreg"
	"github.com/tcrain/stm/stm/logging"
	"github.com/tcrain/stm/stm/lottery"
	"github.com/tcrain/stm/stm/merkle"
	"github.com/tcrain/stm/stm/types"
)

// AggregateEntry is one index of a multi-signature.
type AggregateEntry struct {
	Index        types.LotteryIndex
	LeafPosition uint64 // position of the signing party in the Merkle tree
	Sigma        []byte
}

// MultiSignature is the aggregate of the won indices of several parties.
// Leaves are the contributing parties ordered by position, Proof is their batch Merkle path.
type MultiSignature struct {
	Signature []byte           // sum of the sigmas of the entries
	Entries   []AggregateEntry // ordered by index
	Leaves    []merkle.Leaf
	Proof     merkle.BatchPath
}

// Indices returns the distinct indices covered by the multi-signature.
func (ms *MultiSignature) Indices() []types.LotteryIndex {
	ret := make([]types.LotteryIndex, len(ms.Entries))
	for i, nxt := range ms.Entries {
		ret[i] = nxt.Index
	}
	return ret
}

// Parties returns the parties of the multi-signature with their stake.
func (ms *MultiSignature) Parties() types.StakeDistribution {
	ret := make(types.StakeDistribution, len(ms.Leaves))
	for i, nxt := range ms.Leaves {
		ret[i] = types.Party{ID: nxt.PartyID, Stake: nxt.Stake}
	}
	return ret
}

type indexWinner struct {
	party keyreg.RegisteredParty
	sigma []byte
}

// CountDistinctIndices returns the number of distinct indices won over sigs.
func CountDistinctIndices(sigs []*IndividualSignature) int {
	seen := make(map[types.LotteryIndex]bool)
	for _, sig := range sigs {
		for _, nxt := range sig.Sigmas {
			seen[nxt.Index] = true
		}
	}
	return len(seen)
}

// Aggregate combines verified individual signatures of msg.
// When several parties won the same index the signature of the party with the lowest id is used.
// It fails with ErrQuorumNotReached if fewer than k distinct indices are covered, otherwise
// the k lowest indices are kept.
func Aggregate(sigs []*IndividualSignature, msg []byte, closed *keyreg.ClosedKeyRegistration) (*MultiSignature, error) {
	params := closed.Params()
	winners := make(map[types.LotteryIndex]*indexWinner)
	for _, sig := range sigs {
		party, ok := closed.Party(sig.PartyID)
		if !ok {
			return nil, fmt.Errorf("%w: %v", types.ErrUnknownParty, sig.PartyID)
		}
		for _, nxt := range sig.Sigmas {
			if uint64(nxt.Index) >= params.M {
				return nil, fmt.Errorf("%w: index %v out of range", types.ErrInvalidLotteryClaim, nxt.Index)
			}
			w, ok := winners[nxt.Index]
			if !ok {
				winners[nxt.Index] = &indexWinner{party: party, sigma: nxt.Sigma}
				continue
			}
			if party.ID < w.party.ID {
				w.party, w.sigma = party, nxt.Sigma
			}
		}
	}
	if uint64(len(winners)) < params.K {
		return nil, fmt.Errorf("%w: %v distinct indices, need %v", types.ErrQuorumNotReached, len(winners), params.K)
	}

	indices := make([]types.LotteryIndex, 0, len(winners))
	for idx := range winners {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	indices = indices[:params.K]

	ret := &MultiSignature{Entries: make([]AggregateEntry, len(indices))}
	sigmas := make([][]byte, len(indices))
	positions := make(map[uint64]bool)
	for i, idx := range indices {
		w := winners[idx]
		pos := uint64(w.party.Position)
		ret.Entries[i] = AggregateEntry{Index: idx, LeafPosition: pos, Sigma: w.sigma}
		sigmas[i] = w.sigma
		positions[pos] = true
	}
	sortedPos := make([]uint64, 0, len(positions))
	for pos := range positions {
		sortedPos = append(sortedPos, pos)
	}
	sort.Slice(sortedPos, func(i, j int) bool { return sortedPos[i] < sortedPos[j] })
	for _, pos := range sortedPos {
		ret.Leaves = append(ret.Leaves, closed.Tree().Leaf(int(pos)))
	}

	var err error
	if ret.Proof, err = closed.Tree().BatchPath(sortedPos); err != nil {
		return nil, err
	}
	if ret.Signature, err = bls.AggregateSignatures(sigmas...); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSig, err)
	}
	logging.Debugf("aggregated %v indices from %v parties", len(ret.Entries), len(ret.Leaves))
	return ret, nil
}

// VerifyAggregate checks msig is a valid multi-signature of msg for the registration committed to by avk.
func VerifyAggregate(msig *MultiSignature, msg []byte, avk keyreg.AggregateVerificationKey, params types.ProtocolParameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if uint64(len(msig.Entries)) < params.K {
		return fmt.Errorf("%w: %v indices, need %v", types.ErrInvalidMultiSig, len(msig.Entries), params.K)
	}
	if err := merkle.VerifyBatch(avk.MerkleRoot, avk.NumLeaves, msig.Leaves, msig.Proof); err != nil {
		return err
	}

	leaves := make(map[uint64]int, len(msig.Leaves))
	for i, pos := range msig.Proof.Indices {
		leaves[pos] = i
	}
	vkByLeaf := make([]*bls.VerificationKey, len(msig.Leaves))
	lotteries := make([]*lottery.Lottery, len(msig.Leaves))
	for i, nxt := range msig.Leaves {
		vk, err := bls.UnmarshalVerificationKey(nxt.VerificationKey)
		if err != nil {
			return fmt.Errorf("%w: leaf %v: %v", types.ErrInvalidMultiSig, nxt.PartyID, err)
		}
		vkByLeaf[i] = vk
		lotteries[i] = lottery.New(params, nxt.Stake, avk.TotalStake)
	}

	used := make([]bool, len(msig.Leaves))
	vks := make([]*bls.VerificationKey, len(msig.Entries))
	msgs := make([][]byte, len(msig.Entries))
	sigmas := make([][]byte, len(msig.Entries))
	for i, nxt := range msig.Entries {
		if uint64(nxt.Index) >= params.M {
			return fmt.Errorf("%w: index %v out of range", types.ErrInvalidLotteryClaim, nxt.Index)
		}
		if i > 0 && msig.Entries[i-1].Index >= nxt.Index {
			return fmt.Errorf("%w: indices not distinct and increasing", types.ErrInvalidLotteryClaim)
		}
		li, ok := leaves[nxt.LeafPosition]
		if !ok {
			return fmt.Errorf("%w: no leaf at position %v", types.ErrUnknownParty, nxt.LeafPosition)
		}
		if !lotteries[li].Wins(nxt.Index, nxt.Sigma) {
			return fmt.Errorf("%w: index %v not won by %v", types.ErrInvalidLotteryClaim, nxt.Index, msig.Leaves[li].PartyID)
		}
		used[li] = true
		vks[i] = vkByLeaf[li]
		msgs[i] = IndexMessage(msg, nxt.Index)
		sigmas[i] = nxt.Sigma
	}
	for i, nxt := range used {
		if !nxt {
			return fmt.Errorf("%w: leaf %v has no index", types.ErrInvalidMultiSig, msig.Leaves[i].PartyID)
		}
	}
	if err := verifySigmas(vks, msgs, sigmas); err != nil {
		return err
	}
	agg, err := bls.AggregateSignatures(sigmas...)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidSig, err)
	}
	if !bytes.Equal(agg, msig.Signature) {
		return fmt.Errorf("%w: aggregate does not match the entries", types.ErrInvalidMultiSig)
	}
	return nil
}
