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

package merkle

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tcrain/stm/stm/types"
)

func genLeaves(n int) []Leaf {
	ret := make([]Leaf, n)
	for i := range ret {
		ret[i] = Leaf{
			PartyID:         types.PartyID(fmt.Sprintf("party%03d", n-i)),
			Stake:           types.Stake(i + 1),
			VerificationKey: []byte(fmt.Sprintf("vk%v", i)),
		}
	}
	return ret
}

func TestDepth(t *testing.T) {
	for _, nxt := range []struct {
		n     uint64
		depth int
	}{{1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {8, 3}, {9, 4}, {1000, 10}} {
		assert.Equal(t, nxt.depth, Depth(nxt.n), nxt.n)
	}
}

func TestPathRoundTrip(t *testing.T) {
	for n := 1; n <= 17; n++ {
		tree, err := NewTree(genLeaves(n))
		assert.Nil(t, err)
		assert.Equal(t, n, tree.Len())
		for i := 0; i < n; i++ {
			path, err := tree.Path(i)
			assert.Nil(t, err)
			assert.Equal(t, Depth(uint64(n)), len(path.Siblings))
			assert.Nil(t, Verify(tree.Root(), uint64(n), tree.Leaf(i), path))
		}
	}
}

func TestTreeSorted(t *testing.T) {
	leaves := genLeaves(5)
	tree, err := NewTree(leaves)
	assert.Nil(t, err)
	for i := 1; i < tree.Len(); i++ {
		assert.True(t, tree.Leaf(i-1).PartyID < tree.Leaf(i).PartyID)
	}
	pos, ok := tree.Position("party005")
	assert.True(t, ok)
	assert.Equal(t, 4, pos)
	_, ok = tree.Position("missing")
	assert.False(t, ok)

	// the order of the input does not change the root
	reversed := make([]Leaf, len(leaves))
	for i := range leaves {
		reversed[len(leaves)-1-i] = leaves[i]
	}
	tree2, err := NewTree(reversed)
	assert.Nil(t, err)
	assert.Equal(t, tree.Root(), tree2.Root())
}

func TestTreeErrors(t *testing.T) {
	_, err := NewTree(nil)
	assert.ErrorIs(t, err, types.ErrEmptyRegistry)

	leaves := genLeaves(3)
	leaves[1].PartyID = leaves[0].PartyID
	_, err = NewTree(leaves)
	assert.ErrorIs(t, err, types.ErrDuplicateParty)

	tree, err := NewTree(genLeaves(3))
	assert.Nil(t, err)
	_, err = tree.Path(3)
	assert.ErrorIs(t, err, types.ErrInvalidMerklePath)
}

func TestPathTampering(t *testing.T) {
	tree, err := NewTree(genLeaves(6))
	assert.Nil(t, err)
	path, err := tree.Path(2)
	assert.Nil(t, err)
	leaf := tree.Leaf(2)

	// wrong leaf
	assert.ErrorIs(t, Verify(tree.Root(), 6, tree.Leaf(3), path), types.ErrInvalidMerklePath)

	// changed stake
	bad := leaf
	bad.Stake++
	assert.ErrorIs(t, Verify(tree.Root(), 6, bad, path), types.ErrInvalidMerklePath)

	// wrong index
	badPath := path
	badPath.Index = 3
	assert.ErrorIs(t, Verify(tree.Root(), 6, leaf, badPath), types.ErrInvalidMerklePath)
	badPath.Index = 6
	assert.ErrorIs(t, Verify(tree.Root(), 6, leaf, badPath), types.ErrInvalidMerklePath)

	// wrong length
	badPath = Path{Index: path.Index, Siblings: path.Siblings[1:]}
	assert.ErrorIs(t, Verify(tree.Root(), 6, leaf, badPath), types.ErrInvalidMerklePath)
	badPath = Path{Index: path.Index, Siblings: append(append([]types.HashBytes{}, path.Siblings...), emptyDigest)}
	assert.ErrorIs(t, Verify(tree.Root(), 6, leaf, badPath), types.ErrInvalidMerklePath)

	// wrong leaf count
	assert.ErrorIs(t, Verify(tree.Root(), 9, leaf, path), types.ErrInvalidMerklePath)

	// changed sibling
	badPath = Path{Index: path.Index, Siblings: append([]types.HashBytes{}, path.Siblings...)}
	badPath.Siblings[0] = types.GetHash([]byte("x"))
	assert.ErrorIs(t, Verify(tree.Root(), 6, leaf, badPath), types.ErrInvalidMerklePath)
}

func TestBatchPath(t *testing.T) {
	for n := 1; n <= 13; n++ {
		tree, err := NewTree(genLeaves(n))
		assert.Nil(t, err)
		// all subsets given by a bit mask
		for mask := 1; mask < 1<<n && mask < 1<<10; mask++ {
			var indices []uint64
			var leaves []Leaf
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					indices = append(indices, uint64(i))
					leaves = append(leaves, tree.Leaf(i))
				}
			}
			bp, err := tree.BatchPath(indices)
			assert.Nil(t, err)
			assert.Nil(t, VerifyBatch(tree.Root(), uint64(n), leaves, bp))
		}
	}
}

func TestBatchPathErrors(t *testing.T) {
	tree, err := NewTree(genLeaves(7))
	assert.Nil(t, err)
	_, err = tree.BatchPath(nil)
	assert.ErrorIs(t, err, types.ErrInvalidMerklePath)
	_, err = tree.BatchPath([]uint64{2, 1})
	assert.ErrorIs(t, err, types.ErrInvalidMerklePath)
	_, err = tree.BatchPath([]uint64{1, 1})
	assert.ErrorIs(t, err, types.ErrInvalidMerklePath)
	_, err = tree.BatchPath([]uint64{7})
	assert.ErrorIs(t, err, types.ErrInvalidMerklePath)

	indices := []uint64{0, 3, 4}
	leaves := []Leaf{tree.Leaf(0), tree.Leaf(3), tree.Leaf(4)}
	bp, err := tree.BatchPath(indices)
	assert.Nil(t, err)

	// swapped leaves
	assert.ErrorIs(t, VerifyBatch(tree.Root(), 7, []Leaf{leaves[1], leaves[0], leaves[2]}, bp), types.ErrInvalidMerklePath)
	// missing leaf
	assert.ErrorIs(t, VerifyBatch(tree.Root(), 7, leaves[:2], bp), types.ErrInvalidMerklePath)
	// short values
	short := BatchPath{Indices: bp.Indices, Values: bp.Values[1:]}
	assert.ErrorIs(t, VerifyBatch(tree.Root(), 7, leaves, short), types.ErrInvalidMerklePath)
	// long values
	long := BatchPath{Indices: bp.Indices, Values: append(append([]types.HashBytes{}, bp.Values...), emptyDigest)}
	assert.ErrorIs(t, VerifyBatch(tree.Root(), 7, leaves, long), types.ErrInvalidMerklePath)
	// wrong root
	assert.ErrorIs(t, VerifyBatch(types.GetHash(nil), 7, leaves, bp), types.ErrInvalidMerklePath)
}

func TestEncode(t *testing.T) {
	tree, err := NewTree(genLeaves(5))
	assert.Nil(t, err)

	writer := bytes.NewBuffer(nil)
	leaf := tree.Leaf(1)
	_, err = leaf.Encode(writer)
	assert.Nil(t, err)
	path, err := tree.Path(1)
	assert.Nil(t, err)
	_, err = path.Encode(writer)
	assert.Nil(t, err)
	bp, err := tree.BatchPath([]uint64{1, 2, 4})
	assert.Nil(t, err)
	_, err = bp.Encode(writer)
	assert.Nil(t, err)

	reader := bytes.NewReader(writer.Bytes())
	var leaf2 Leaf
	assert.Nil(t, leaf2.Decode(reader))
	assert.True(t, leaf.Equal(leaf2))
	var path2 Path
	assert.Nil(t, path2.Decode(reader))
	assert.Equal(t, path, path2)
	var bp2 BatchPath
	assert.Nil(t, bp2.Decode(reader))
	assert.Equal(t, bp, bp2)
	assert.Equal(t, 0, reader.Len())
}
