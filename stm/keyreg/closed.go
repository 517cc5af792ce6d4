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

package keyreg

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/merkle"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

// RegisteredParty is a party of a closed registration.
type RegisteredParty struct {
	ID              types.PartyID
	Stake           types.Stake
	VerificationKey *bls.VerificationKey
	Position        int // position of the leaf in the Merkle tree
}

// ClosedKeyRegistration is the immutable result of closing a KeyRegistry.
// All its methods are safe for concurrent use.
type ClosedKeyRegistration struct {
	params  types.ProtocolParameters
	total   types.Stake
	tree    *merkle.Tree
	parties map[types.PartyID]RegisteredParty
}

func (ckr *ClosedKeyRegistration) Params() types.ProtocolParameters {
	return ckr.params
}

func (ckr *ClosedKeyRegistration) TotalStake() types.Stake {
	return ckr.total
}

func (ckr *ClosedKeyRegistration) MerkleRoot() merkle.MerkleRoot {
	return ckr.tree.Root()
}

func (ckr *ClosedKeyRegistration) Tree() *merkle.Tree {
	return ckr.tree
}

func (ckr *ClosedKeyRegistration) Len() int {
	return ckr.tree.Len()
}

// Party returns the registration of id.
func (ckr *ClosedKeyRegistration) Party(id types.PartyID) (RegisteredParty, bool) {
	p, ok := ckr.parties[id]
	return p, ok
}

// Parties returns the registered parties ordered by their position in the tree.
func (ckr *ClosedKeyRegistration) Parties() []RegisteredParty {
	ret := make([]RegisteredParty, ckr.tree.Len())
	for _, nxt := range ckr.parties {
		ret[nxt.Position] = nxt
	}
	return ret
}

// StakeDistribution returns the registered parties and their stakes.
func (ckr *ClosedKeyRegistration) StakeDistribution() types.StakeDistribution {
	ret := make(types.StakeDistribution, 0, len(ckr.parties))
	for _, nxt := range ckr.Parties() {
		ret = append(ret, types.Party{ID: nxt.ID, Stake: nxt.Stake})
	}
	return ret
}

// Leaf returns the Merkle leaf of id.
func (ckr *ClosedKeyRegistration) Leaf(id types.PartyID) (merkle.Leaf, bool) {
	p, ok := ckr.parties[id]
	if !ok {
		return merkle.Leaf{}, false
	}
	return ckr.tree.Leaf(p.Position), true
}

// AggregateVerificationKey returns the public commitment to the registration.
func (ckr *ClosedKeyRegistration) AggregateVerificationKey() AggregateVerificationKey {
	return AggregateVerificationKey{
		MerkleRoot: ckr.tree.Root(),
		NumLeaves:  uint64(ckr.tree.Len()),
		TotalStake: ckr.total,
	}
}

// AggregateVerificationKey is what a verifier needs about a registration to check a multi-signature,
// the root of the tree of the registered parties, the number of leaves and the total stake.
type AggregateVerificationKey struct {
	MerkleRoot merkle.MerkleRoot
	NumLeaves  uint64
	TotalStake types.Stake
}

func (avk AggregateVerificationKey) Encode(writer io.Writer) (n int, err error) {
	if len(avk.MerkleRoot) != config.HashLen {
		return 0, types.ErrInvalidHashSize
	}
	var n1 int
	if n1, err = writer.Write(avk.MerkleRoot); err != nil {
		return
	}
	n += n1
	if n1, err = utils.EncodeUint64(avk.NumLeaves, writer); err != nil {
		return
	}
	n += n1
	n1, err = utils.EncodeUint64(uint64(avk.TotalStake), writer)
	n += n1
	return
}

func (avk *AggregateVerificationKey) Decode(reader io.Reader) (err error) {
	if avk.MerkleRoot, err = utils.ReadBytes(config.HashLen, reader); err != nil {
		return
	}
	if avk.NumLeaves, _, err = utils.ReadUint64(reader); err != nil {
		return
	}
	var total uint64
	total, _, err = utils.ReadUint64(reader)
	avk.TotalStake = types.Stake(total)
	return
}

func (avk AggregateVerificationKey) MarshalBinary() ([]byte, error) {
	writer := bytes.NewBuffer(nil)
	_, err := avk.Encode(writer)
	return writer.Bytes(), err
}

// Hash is the stake distribution commitment included in the protocol messages.
func (avk AggregateVerificationKey) Hash() types.HashBytes {
	h := types.GetDomainHash(config.DomainAggregateKey)
	if _, err := avk.Encode(h); err != nil {
		panic(err)
	}
	return h.Sum(nil)
}

func (avk AggregateVerificationKey) Equal(other AggregateVerificationKey) bool {
	return avk.MerkleRoot.Equal(other.MerkleRoot) && avk.NumLeaves == other.NumLeaves &&
		avk.TotalStake == other.TotalStake
}

func (avk AggregateVerificationKey) String() string {
	return fmt.Sprintf("{root: %v, leaves: %v, stake: %v}", avk.MerkleRoot.Short(), avk.NumLeaves, avk.TotalStake)
}
