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
Package merkle implements the binary Merkle tree committing to the registered parties.
Leaves are sorted by party id and the tree is padded with a fixed empty digest up to the
next power of two, so the path of every leaf has length ceil(log2(number of leaves)).
*/
package merkle

import (
	"bytes"
	"fmt"
	"io"
	"math/bits"
	"sort"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

type MerkleRoot = types.HashBytes // Represents the root node of a merkle tree

// Leaf is the committed information of a registered party.
type Leaf struct {
	PartyID         types.PartyID
	Stake           types.Stake
	VerificationKey []byte // marshalled verification key
}

// Hash returns the domain separated digest of the leaf.
func (l Leaf) Hash() types.HashBytes {
	h := types.GetDomainHash(config.DomainMerkleLeaf)
	if _, err := l.Encode(h); err != nil {
		panic(err)
	}
	return h.Sum(nil)
}

func (l Leaf) Encode(writer io.Writer) (n int, err error) {
	var n1 int
	if n1, err = utils.EncodeString(string(l.PartyID), writer); err != nil {
		return
	}
	n += n1
	if n1, err = utils.EncodeUint64(uint64(l.Stake), writer); err != nil {
		return
	}
	n += n1
	n1, err = utils.EncodeHelper(l.VerificationKey, writer)
	n += n1
	return
}

func (l *Leaf) Decode(reader utils.ByteReader) (err error) {
	var id string
	if id, err = utils.DecodeString(reader); err != nil {
		return
	}
	l.PartyID = types.PartyID(id)
	var stake uint64
	if stake, _, err = utils.ReadUint64(reader); err != nil {
		return
	}
	l.Stake = types.Stake(stake)
	l.VerificationKey, err = utils.DecodeHelper(reader)
	return
}

func (l Leaf) Equal(other Leaf) bool {
	return l.PartyID == other.PartyID && l.Stake == other.Stake &&
		bytes.Equal(l.VerificationKey, other.VerificationKey)
}

var emptyDigest = types.GetDomainHashOf(config.DomainMerkleEmpty)

func nodeHash(left, right types.HashBytes) types.HashBytes {
	return types.GetDomainHashOf(config.DomainMerkleNode, left, right)
}

// Depth returns ceil(log2(leafCount)), the length of every path of a tree with leafCount leaves.
func Depth(leafCount uint64) int {
	if leafCount <= 1 {
		return 0
	}
	return bits.Len64(leafCount - 1)
}

// Tree is an immutable Merkle tree.
type Tree struct {
	leaves    []Leaf
	levels    [][]types.HashBytes // levels[0] are the padded leaf digests, the last level is the root
	positions map[types.PartyID]int
}

// NewTree builds the tree, the leaves are sorted by party id first.
// It fails if there are no leaves or a party id is used twice.
func NewTree(leaves []Leaf) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, types.ErrEmptyRegistry
	}
	sorted := make([]Leaf, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PartyID < sorted[j].PartyID
	})

	ret := &Tree{leaves: sorted, positions: make(map[types.PartyID]int, len(sorted))}
	for i, nxt := range sorted {
		if _, ok := ret.positions[nxt.PartyID]; ok {
			return nil, fmt.Errorf("%w: %v", types.ErrDuplicateParty, nxt.PartyID)
		}
		ret.positions[nxt.PartyID] = i
	}

	depth := Depth(uint64(len(sorted)))
	level := make([]types.HashBytes, 1<<depth)
	for i := range level {
		if i < len(sorted) {
			level[i] = sorted[i].Hash()
		} else {
			level[i] = emptyDigest
		}
	}
	ret.levels = append(ret.levels, level)
	for len(level) > 1 {
		next := make([]types.HashBytes, len(level)/2)
		for i := range next {
			next[i] = nodeHash(level[2*i], level[2*i+1])
		}
		ret.levels = append(ret.levels, next)
		level = next
	}
	return ret, nil
}

// Root returns the root digest.
func (t *Tree) Root() MerkleRoot {
	return t.levels[len(t.levels)-1][0]
}

// Len returns the number of (non padding) leaves.
func (t *Tree) Len() int {
	return len(t.leaves)
}

// Depth returns the length of the paths of the tree.
func (t *Tree) Depth() int {
	return len(t.levels) - 1
}

// Leaf returns the leaf at position i.
func (t *Tree) Leaf(i int) Leaf {
	return t.leaves[i]
}

// Leaves returns the sorted leaves.
func (t *Tree) Leaves() []Leaf {
	ret := make([]Leaf, len(t.leaves))
	copy(ret, t.leaves)
	return ret
}

// Position returns the position of the leaf of party id.
func (t *Tree) Position(id types.PartyID) (int, bool) {
	pos, ok := t.positions[id]
	return pos, ok
}

// Path is an authentication path, the siblings are ordered from the root to the leaf.
type Path struct {
	Index    uint64
	Siblings []types.HashBytes
}

// Path returns the authentication path of the leaf at position i.
func (t *Tree) Path(i int) (Path, error) {
	if i < 0 || i >= len(t.leaves) {
		return Path{}, fmt.Errorf("%w: position %v out of range", types.ErrInvalidMerklePath, i)
	}
	depth := t.Depth()
	ret := Path{Index: uint64(i), Siblings: make([]types.HashBytes, depth)}
	pos := i
	for l := 0; l < depth; l++ {
		ret.Siblings[depth-1-l] = t.levels[l][pos^1]
		pos >>= 1
	}
	return ret, nil
}

// Verify checks leaf is committed at path.Index under root, for a tree of leafCount leaves.
func Verify(root MerkleRoot, leafCount uint64, leaf Leaf, path Path) error {
	depth := Depth(leafCount)
	if path.Index >= leafCount {
		return fmt.Errorf("%w: index %v for %v leaves", types.ErrInvalidMerklePath, path.Index, leafCount)
	}
	if len(path.Siblings) != depth {
		return fmt.Errorf("%w: length %v, expected %v", types.ErrInvalidMerklePath, len(path.Siblings), depth)
	}
	h := leaf.Hash()
	pos := path.Index
	for l := 0; l < depth; l++ {
		sib := path.Siblings[depth-1-l]
		if pos&1 == 0 {
			h = nodeHash(h, sib)
		} else {
			h = nodeHash(sib, h)
		}
		pos >>= 1
	}
	if !h.Equal(root) {
		return fmt.Errorf("%w: root mismatch", types.ErrInvalidMerklePath)
	}
	return nil
}

func (p Path) Encode(writer io.Writer) (n int, err error) {
	var n1 int
	if n1, err = utils.EncodeUint64(p.Index, writer); err != nil {
		return
	}
	n += n1
	return encodeHashes(p.Siblings, writer, n)
}

func (p *Path) Decode(reader utils.ByteReader) (err error) {
	if p.Index, _, err = utils.ReadUint64(reader); err != nil {
		return
	}
	p.Siblings, err = decodeHashes(reader)
	return
}

func encodeHashes(items []types.HashBytes, writer io.Writer, n int) (int, error) {
	n1, err := utils.EncodeUvarint(uint64(len(items)), writer)
	n += n1
	if err != nil {
		return n, err
	}
	for _, nxt := range items {
		if len(nxt) != config.HashLen {
			return n, types.ErrInvalidHashSize
		}
		n1, err = writer.Write(nxt)
		n += n1
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func decodeHashes(reader utils.ByteReader) ([]types.HashBytes, error) {
	count, err := utils.ReadUvarint(reader)
	if err != nil {
		return nil, err
	}
	if count > 64*1024 {
		return nil, types.ErrDeserialize
	}
	ret := make([]types.HashBytes, count)
	for i := range ret {
		buff, err := utils.ReadBytes(config.HashLen, reader)
		if err != nil {
			return nil, err
		}
		ret[i] = buff
	}
	return ret, nil
}
