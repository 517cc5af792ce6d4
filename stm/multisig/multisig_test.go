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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tcrain/stm/stm/keyreg"
	"github.com/tcrain/stm/stm/lottery"
	"github.com/tcrain/stm/stm/merkle"
	"github.com/tcrain/stm/stm/testobjects"
	"github.com/tcrain/stm/stm/types"
)

var testParams = types.ProtocolParameters{M: 100, K: 50, PhiF: 0.2}

// everyone wins every index
var allWinParams = types.ProtocolParameters{M: 10, K: 10, PhiF: 1}

var testMsg = []byte("testmsg")

func closeWith(t *testing.T, params types.ProtocolParameters, parties testobjects.TestParties) *keyreg.ClosedKeyRegistration {
	kr, err := keyreg.NewKeyRegistry(params)
	assert.Nil(t, err)
	assert.Nil(t, kr.RegisterStakeDistribution(parties.Distribution(), parties.Keys()))
	closed, err := kr.Close()
	assert.Nil(t, err)
	return closed
}

func signAll(t *testing.T, msg []byte, parties testobjects.TestParties, closed *keyreg.ClosedKeyRegistration) []*IndividualSignature {
	var ret []*IndividualSignature
	for _, nxt := range parties {
		sig, err := Sign(nxt.SK, msg, nxt.ID, closed)
		assert.Nil(t, err)
		assert.Equal(t, nxt.ID, sig.PartyID)
		ret = append(ret, sig)
	}
	return ret
}

func copySig(sig *IndividualSignature) *IndividualSignature {
	ret := *sig
	ret.Sigmas = append([]IndexSignature(nil), sig.Sigmas...)
	ret.Path.Siblings = append([]types.HashBytes(nil), sig.Path.Siblings...)
	return &ret
}

func TestSignVerify(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.ThreePartyDistribution())
	closed := closeWith(t, testParams, parties)
	for _, sig := range signAll(t, testMsg, parties, closed) {
		for i, nxt := range sig.Sigmas {
			assert.True(t, uint64(nxt.Index) < testParams.M)
			if i > 0 {
				assert.True(t, sig.Sigmas[i-1].Index < nxt.Index)
			}
		}
		assert.Nil(t, VerifyIndividual(sig, testMsg, closed))
	}
}

func TestSignNoWin(t *testing.T) {
	params := types.ProtocolParameters{M: 5, K: 1, PhiF: 0.0001}
	parties := testobjects.DefaultTestParties(testobjects.ThreePartyDistribution())
	closed := closeWith(t, params, parties)
	c := parties[2]
	sig, err := Sign(c.SK, testMsg, c.ID, closed)
	assert.Nil(t, err)
	assert.Empty(t, sig.Sigmas)
	assert.Nil(t, VerifyIndividual(sig, testMsg, closed))

	_, err = Aggregate([]*IndividualSignature{sig}, testMsg, closed)
	assert.ErrorIs(t, err, types.ErrQuorumNotReached)
}

func TestSignDeterministic(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.ThreePartyDistribution())
	closed := closeWith(t, testParams, parties)
	sig1, err := Sign(parties[0].SK, testMsg, parties[0].ID, closed)
	assert.Nil(t, err)
	sig2, err := Sign(parties[0].SK, testMsg, parties[0].ID, closed)
	assert.Nil(t, err)
	h1, err := sig1.Hash(testMsg)
	assert.Nil(t, err)
	h2, err := sig2.Hash(testMsg)
	assert.Nil(t, err)
	assert.Equal(t, h1, h2)
	other, err := sig1.Hash([]byte("other"))
	assert.Nil(t, err)
	assert.NotEqual(t, h1, other)

	bad := copySig(sig1)
	bad.Path.Siblings[0] = types.HashBytes{1, 2, 3}
	_, err = bad.Hash(testMsg)
	assert.ErrorIs(t, err, types.ErrInvalidMerklePath)
}

func TestNewSignerErrors(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.ThreePartyDistribution())
	closed := closeWith(t, testParams, parties)

	_, err := NewSigner("D", parties[0].SK, closed)
	assert.ErrorIs(t, err, types.ErrUnknownParty)
	_, err = NewSigner(parties[0].ID, parties[1].SK, closed)
	assert.ErrorIs(t, err, types.ErrKeyMismatch)

	signer, err := NewSigner(parties[1].ID, parties[1].SK, closed)
	assert.Nil(t, err)
	assert.Equal(t, parties[1].ID, signer.PartyID())
}

func TestVerifyIndividualTampering(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.ThreePartyDistribution())
	closed := closeWith(t, testParams, parties)
	a, b := parties[0], parties[1]
	sig, err := Sign(a.SK, testMsg, a.ID, closed)
	assert.Nil(t, err)
	assert.NotEmpty(t, sig.Sigmas)
	assert.Nil(t, VerifyIndividual(sig, testMsg, closed))

	// different message
	assert.ErrorIs(t, VerifyIndividual(sig, []byte("other"), closed), types.ErrInvalidSig)

	// unknown party
	bad := copySig(sig)
	bad.PartyID = "D"
	assert.ErrorIs(t, VerifyIndividual(bad, testMsg, closed), types.ErrUnknownParty)

	// claimed by another party
	bad = copySig(sig)
	bad.PartyID = b.ID
	assert.ErrorIs(t, VerifyIndividual(bad, testMsg, closed), types.ErrInvalidMerklePath)

	// wrong sibling
	bad = copySig(sig)
	bad.Path.Siblings[0] = types.GetHash([]byte("bad"))
	assert.ErrorIs(t, VerifyIndividual(bad, testMsg, closed), types.ErrInvalidMerklePath)

	// short path
	bad = copySig(sig)
	bad.Path.Siblings = bad.Path.Siblings[1:]
	assert.ErrorIs(t, VerifyIndividual(bad, testMsg, closed), types.ErrInvalidMerklePath)

	// out of range index
	bad = copySig(sig)
	bad.Sigmas[len(bad.Sigmas)-1].Index = types.LotteryIndex(testParams.M)
	assert.ErrorIs(t, VerifyIndividual(bad, testMsg, closed), types.ErrInvalidLotteryClaim)

	// repeated index
	bad = copySig(sig)
	bad.Sigmas = append(bad.Sigmas, bad.Sigmas[len(bad.Sigmas)-1])
	assert.ErrorIs(t, VerifyIndividual(bad, testMsg, closed), types.ErrInvalidLotteryClaim)

	// no indices, a valid path is enough
	bad = copySig(sig)
	bad.Sigmas = nil
	assert.Nil(t, VerifyIndividual(bad, testMsg, closed))
	bad.Path.Siblings = bad.Path.Siblings[1:]
	assert.ErrorIs(t, VerifyIndividual(bad, testMsg, closed), types.ErrInvalidMerklePath)

	// a correctly signed index that was not won
	party, _ := closed.Party(a.ID)
	lot := lottery.New(testParams, party.Stake, closed.TotalStake())
	var lost *IndexSignature
	for i := uint64(0); i < testParams.M && lost == nil; i++ {
		sigma, err := a.SK.Sign(IndexMessage(testMsg, types.LotteryIndex(i)))
		assert.Nil(t, err)
		if !lot.Wins(types.LotteryIndex(i), sigma) {
			lost = &IndexSignature{Index: types.LotteryIndex(i), Sigma: sigma}
		}
	}
	assert.NotNil(t, lost)
	bad = copySig(sig)
	bad.Sigmas = []IndexSignature{*lost}
	assert.ErrorIs(t, VerifyIndividual(bad, testMsg, closed), types.ErrInvalidLotteryClaim)

	// a won index with the sigma of another key
	other, err := b.SK.Sign(IndexMessage(testMsg, sig.Sigmas[0].Index))
	assert.Nil(t, err)
	bad = copySig(sig)
	bad.Sigmas[0].Sigma = other
	err = VerifyIndividual(bad, testMsg, closed)
	assert.True(t, types.IsSignatureError(err))
}

func TestIndividualSignatureEncode(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.ThreePartyDistribution())
	closed := closeWith(t, testParams, parties)
	sig, err := Sign(parties[0].SK, testMsg, parties[0].ID, closed)
	assert.Nil(t, err)

	buff, err := sig.MarshalBinary()
	assert.Nil(t, err)
	sig2, err := UnmarshalIndividualSignature(buff)
	assert.Nil(t, err)
	h1, err := sig.Hash(testMsg)
	assert.Nil(t, err)
	h2, err := sig2.Hash(testMsg)
	assert.Nil(t, err)
	assert.Equal(t, h1, h2)
	assert.Nil(t, VerifyIndividual(sig2, testMsg, closed))

	_, err = UnmarshalIndividualSignature(buff[:len(buff)-1])
	assert.ErrorIs(t, err, types.ErrDeserialize)
	_, err = UnmarshalIndividualSignature(append(buff, 0))
	assert.ErrorIs(t, err, types.ErrDeserialize)
}

// A:700 B:200 C:100 with m=100, k=50, phi_f=0.2.
func TestThreePartyScenario(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.ThreePartyDistribution())
	closed := closeWith(t, testParams, parties)
	sigs := signAll(t, testMsg, parties, closed)
	a, c := sigs[0], sigs[2]
	assert.Equal(t, types.PartyID("A"), a.PartyID)
	assert.Equal(t, types.PartyID("C"), c.PartyID)
	assert.Greater(t, len(a.Sigmas), len(c.Sigmas))

	var valid []*IndividualSignature
	for _, nxt := range sigs {
		if len(nxt.Sigmas) > 0 {
			assert.Nil(t, VerifyIndividual(nxt, testMsg, closed))
			valid = append(valid, nxt)
		}
	}
	union := CountDistinctIndices(valid)
	if uint64(union) < testParams.K {
		_, err := Aggregate(valid, testMsg, closed)
		assert.ErrorIs(t, err, types.ErrQuorumNotReached)
	}

	// the same keys and lottery with k equal to the union reach a quorum
	params := testParams
	params.K = uint64(union)
	closedK := closeWith(t, params, parties)
	assert.Equal(t, closed.MerkleRoot(), closedK.MerkleRoot())
	msig, err := Aggregate(valid, testMsg, closedK)
	assert.Nil(t, err)
	assert.Equal(t, union, len(msig.Entries))
	assert.Nil(t, VerifyAggregate(msig, testMsg, closedK.AggregateVerificationKey(), params))

	// one more index is needed than available
	params.K++
	closedK1 := closeWith(t, params, parties)
	_, err = Aggregate(valid, testMsg, closedK1)
	assert.ErrorIs(t, err, types.ErrQuorumNotReached)
}

func TestQuorumBoundary(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.GenStakeDistribution(4))
	closed := closeWith(t, allWinParams, parties)
	sig, err := Sign(parties[0].SK, testMsg, parties[0].ID, closed)
	assert.Nil(t, err)
	assert.Equal(t, int(allWinParams.M), len(sig.Sigmas))

	short := copySig(sig)
	short.Sigmas = short.Sigmas[:allWinParams.K-1]
	_, err = Aggregate([]*IndividualSignature{short}, testMsg, closed)
	assert.ErrorIs(t, err, types.ErrQuorumNotReached)

	msig, err := Aggregate([]*IndividualSignature{sig}, testMsg, closed)
	assert.Nil(t, err)
	assert.Equal(t, int(allWinParams.K), len(msig.Entries))
	assert.Nil(t, VerifyAggregate(msig, testMsg, closed.AggregateVerificationKey(), allWinParams))

	// more indices than needed keeps the k lowest
	params := allWinParams
	params.K = 4
	closed4 := closeWith(t, params, parties)
	sig4, err := Sign(parties[1].SK, testMsg, parties[1].ID, closed4)
	assert.Nil(t, err)
	msig, err = Aggregate([]*IndividualSignature{sig4}, testMsg, closed4)
	assert.Nil(t, err)
	assert.Equal(t, []types.LotteryIndex{0, 1, 2, 3}, msig.Indices())
	assert.Nil(t, VerifyAggregate(msig, testMsg, closed4.AggregateVerificationKey(), params))
}

func TestAggregateLowestParty(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.GenStakeDistribution(4))
	closed := closeWith(t, allWinParams, parties)
	sigs := signAll(t, testMsg, parties, closed)

	msig, err := Aggregate(sigs, testMsg, closed)
	assert.Nil(t, err)
	reversed := []*IndividualSignature{sigs[3], sigs[2], sigs[1], sigs[0]}
	msig2, err := Aggregate(reversed, testMsg, closed)
	assert.Nil(t, err)
	assert.Equal(t, msig.Hash(), msig2.Hash())

	assert.Equal(t, types.StakeDistribution{{ID: parties[0].ID, Stake: parties[0].Stake}}, msig.Parties())
	for _, nxt := range msig.Entries {
		assert.Equal(t, uint64(0), nxt.LeafPosition)
	}

	// parties splitting the indices are all included
	split := []*IndividualSignature{copySig(sigs[0]), copySig(sigs[2])}
	split[0].Sigmas = split[0].Sigmas[:5]
	split[1].Sigmas = split[1].Sigmas[5:]
	msig, err = Aggregate(split, testMsg, closed)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(msig.Leaves))
	assert.Nil(t, VerifyAggregate(msig, testMsg, closed.AggregateVerificationKey(), allWinParams))

	unknown := copySig(sigs[0])
	unknown.PartyID = "D"
	_, err = Aggregate([]*IndividualSignature{unknown}, testMsg, closed)
	assert.ErrorIs(t, err, types.ErrUnknownParty)
}

func TestVerifyAggregateTampering(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.GenStakeDistribution(4))
	closed := closeWith(t, allWinParams, parties)
	sigs := signAll(t, testMsg, parties, closed)
	split := []*IndividualSignature{copySig(sigs[0]), copySig(sigs[2])}
	split[0].Sigmas = split[0].Sigmas[:5]
	split[1].Sigmas = split[1].Sigmas[5:]
	msig, err := Aggregate(split, testMsg, closed)
	assert.Nil(t, err)
	avk := closed.AggregateVerificationKey()
	assert.Nil(t, VerifyAggregate(msig, testMsg, avk, allWinParams))

	cp := func() *MultiSignature {
		ret := *msig
		ret.Entries = append([]AggregateEntry(nil), msig.Entries...)
		ret.Leaves = append([]merkle.Leaf(nil), msig.Leaves...)
		return &ret
	}

	assert.ErrorIs(t, VerifyAggregate(msig, []byte("other"), avk, allWinParams), types.ErrInvalidSig)

	bad := cp()
	bad.Entries = bad.Entries[1:]
	assert.ErrorIs(t, VerifyAggregate(bad, testMsg, avk, allWinParams), types.ErrInvalidMultiSig)

	bad = cp()
	bad.Entries[0], bad.Entries[1] = bad.Entries[1], bad.Entries[0]
	assert.ErrorIs(t, VerifyAggregate(bad, testMsg, avk, allWinParams), types.ErrInvalidLotteryClaim)

	bad = cp()
	bad.Entries[0].LeafPosition = 3
	assert.ErrorIs(t, VerifyAggregate(bad, testMsg, avk, allWinParams), types.ErrUnknownParty)

	bad = cp()
	bad.Signature = msig.Entries[0].Sigma
	assert.ErrorIs(t, VerifyAggregate(bad, testMsg, avk, allWinParams), types.ErrInvalidMultiSig)

	bad = cp()
	bad.Leaves[0].Stake++
	assert.ErrorIs(t, VerifyAggregate(bad, testMsg, avk, allWinParams), types.ErrInvalidMerklePath)

	otherAvk := avk
	otherAvk.MerkleRoot = types.GetHash([]byte("bad"))
	assert.ErrorIs(t, VerifyAggregate(msig, testMsg, otherAvk, allWinParams), types.ErrInvalidMerklePath)

	otherAvk = avk
	otherAvk.NumLeaves = 16
	assert.ErrorIs(t, VerifyAggregate(msig, testMsg, otherAvk, allWinParams), types.ErrInvalidMerklePath)

	// the first leaf contributes nothing once its entries go to the second
	bad = cp()
	for i := range bad.Entries[:5] {
		bad.Entries[i] = AggregateEntry{Index: bad.Entries[i].Index, LeafPosition: 2, Sigma: sigs[2].Sigmas[i].Sigma}
	}
	assert.ErrorIs(t, VerifyAggregate(bad, testMsg, avk, allWinParams), types.ErrInvalidMultiSig)

	assert.ErrorIs(t, VerifyAggregate(msig, testMsg, avk, types.ProtocolParameters{}), types.ErrInvalidParams)
}

func TestMultiSignatureEncode(t *testing.T) {
	parties := testobjects.DefaultTestParties(testobjects.GenStakeDistribution(4))
	closed := closeWith(t, allWinParams, parties)
	msig, err := Aggregate(signAll(t, testMsg, parties, closed), testMsg, closed)
	assert.Nil(t, err)

	buff, err := msig.MarshalBinary()
	assert.Nil(t, err)
	msig2, err := UnmarshalMultiSignature(buff)
	assert.Nil(t, err)
	assert.Equal(t, msig.Hash(), msig2.Hash())
	assert.Nil(t, VerifyAggregate(msig2, testMsg, closed.AggregateVerificationKey(), allWinParams))

	_, err = UnmarshalMultiSignature(buff[:len(buff)-1])
	assert.ErrorIs(t, err, types.ErrDeserialize)
}
