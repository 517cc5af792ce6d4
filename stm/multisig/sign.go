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
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/keyreg"
	"github.com/tcrain/stm/stm/lottery"
	"github.com/tcrain/stm/stm/merkle"
	"github.com/tcrain/stm/stm/types"
)

// Signer is a registered party able to sign messages for a closed registration.
type Signer struct {
	party   keyreg.RegisteredParty
	sk      *bls.SigningKey
	closed  *keyreg.ClosedKeyRegistration
	path    merkle.Path
	lottery *lottery.Lottery
}

// NewSigner returns the signer of id, sk must be the key id registered with.
func NewSigner(id types.PartyID, sk *bls.SigningKey, closed *keyreg.ClosedKeyRegistration) (*Signer, error) {
	party, ok := closed.Party(id)
	if !ok {
		return nil, fmt.Errorf("%w: %v", types.ErrUnknownParty, id)
	}
	if !party.VerificationKey.Equal(sk.VerificationKey()) {
		return nil, fmt.Errorf("%w: %v", types.ErrKeyMismatch, id)
	}
	path, err := closed.Tree().Path(party.Position)
	if err != nil {
		return nil, err
	}
	return &Signer{
		party:   party,
		sk:      sk,
		closed:  closed,
		path:    path,
		lottery: lottery.New(closed.Params(), party.Stake, closed.TotalStake()),
	}, nil
}

func (s *Signer) PartyID() types.PartyID {
	return s.party.ID
}

// Sign plays the lottery for every index of msg.
// The result can have no indices, this is not an error, the party just did not win anything.
func (s *Signer) Sign(msg []byte) (*IndividualSignature, error) {
	m := s.closed.Params().M
	sigmas := make([][]byte, m)
	var eg errgroup.Group
	eg.SetLimit(runtime.NumCPU())
	for i := uint64(0); i < m; i++ {
		i := i
		eg.Go(func() error {
			sig, err := s.sk.Sign(IndexMessage(msg, types.LotteryIndex(i)))
			if err != nil {
				return err
			}
			if s.lottery.Wins(types.LotteryIndex(i), sig) {
				sigmas[i] = sig
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	ret := &IndividualSignature{PartyID: s.party.ID, Path: s.path}
	for i, nxt := range sigmas {
		if nxt != nil {
			ret.Sigmas = append(ret.Sigmas, IndexSignature{Index: types.LotteryIndex(i), Sigma: nxt})
		}
	}
	return ret, nil
}

// Sign is the same as NewSigner(id, sk, closed) followed by Sign(msg).
func Sign(sk *bls.SigningKey, msg []byte, id types.PartyID, closed *keyreg.ClosedKeyRegistration) (*IndividualSignature, error) {
	signer, err := NewSigner(id, sk, closed)
	if err != nil {
		return nil, err
	}
	return signer.Sign(msg)
}

// VerifyIndividual checks sig is a valid signature of msg for the closed registration.
// Each claimed index must be in range, appear once, be won by the party and be signed by its key.
// A signature without any index is valid when its path is, it adds nothing to a quorum.
func VerifyIndividual(sig *IndividualSignature, msg []byte, closed *keyreg.ClosedKeyRegistration) error {
	party, ok := closed.Party(sig.PartyID)
	if !ok {
		return fmt.Errorf("%w: %v", types.ErrUnknownParty, sig.PartyID)
	}
	leaf, _ := closed.Leaf(sig.PartyID)
	if sig.Path.Index != uint64(party.Position) {
		return fmt.Errorf("%w: path of position %v for party at %v", types.ErrInvalidMerklePath, sig.Path.Index, party.Position)
	}
	if err := merkle.Verify(closed.MerkleRoot(), uint64(closed.Len()), leaf, sig.Path); err != nil {
		return err
	}

	params := closed.Params()
	lot := lottery.New(params, party.Stake, closed.TotalStake())
	vks := make([]*bls.VerificationKey, len(sig.Sigmas))
	msgs := make([][]byte, len(sig.Sigmas))
	sigmas := make([][]byte, len(sig.Sigmas))
	for i, nxt := range sig.Sigmas {
		if uint64(nxt.Index) >= params.M {
			return fmt.Errorf("%w: index %v out of range", types.ErrInvalidLotteryClaim, nxt.Index)
		}
		if i > 0 && sig.Sigmas[i-1].Index >= nxt.Index {
			return fmt.Errorf("%w: indices not strictly increasing", types.ErrInvalidLotteryClaim)
		}
		if !lot.Wins(nxt.Index, nxt.Sigma) {
			return fmt.Errorf("%w: index %v not won", types.ErrInvalidLotteryClaim, nxt.Index)
		}
		vks[i] = party.VerificationKey
		msgs[i] = IndexMessage(msg, nxt.Index)
		sigmas[i] = nxt.Sigma
	}
	return verifySigmas(vks, msgs, sigmas)
}

// verifySigmas checks sigmas[i] is a signature of msgs[i] by vks[i], in parallel.
func verifySigmas(vks []*bls.VerificationKey, msgs, sigmas [][]byte) error {
	var eg errgroup.Group
	eg.SetLimit(runtime.NumCPU())
	for i := range sigmas {
		i := i
		eg.Go(func() error {
			if err := vks[i].Verify(msgs[i], sigmas[i]); err != nil {
				return fmt.Errorf("signature %v: %w", i, err)
			}
			return nil
		})
	}
	return eg.Wait()
}
