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
	"fmt"
	"io"

	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

// BatchPath proves several leaves at once.
// Values are the sibling digests that cannot be computed from the proven leaves,
// in the order they are consumed walking the tree level by level from the leaves.
type BatchPath struct {
	Indices []uint64 // strictly increasing leaf positions
	Values  []types.HashBytes
}

func checkIndices(indices []uint64, leafCount uint64) error {
	if len(indices) == 0 {
		return fmt.Errorf("%w: empty batch", types.ErrInvalidMerklePath)
	}
	for i, nxt := range indices {
		if nxt >= leafCount {
			return fmt.Errorf("%w: index %v for %v leaves", types.ErrInvalidMerklePath, nxt, leafCount)
		}
		if i > 0 && indices[i-1] >= nxt {
			return fmt.Errorf("%w: batch indices must be strictly increasing", types.ErrInvalidMerklePath)
		}
	}
	return nil
}

// BatchPath returns the proof of the leaves at the (strictly increasing) positions.
func (t *Tree) BatchPath(indices []uint64) (BatchPath, error) {
	if err := checkIndices(indices, uint64(len(t.leaves))); err != nil {
		return BatchPath{}, err
	}
	ret := BatchPath{Indices: append([]uint64(nil), indices...)}
	positions := append([]uint64(nil), indices...)
	for l := 0; l < t.Depth(); l++ {
		var next []uint64
		for i := 0; i < len(positions); i++ {
			pos := positions[i]
			if pos&1 == 0 && i+1 < len(positions) && positions[i+1] == pos+1 {
				i++
			} else {
				ret.Values = append(ret.Values, t.levels[l][pos^1])
			}
			next = append(next, pos>>1)
		}
		positions = next
	}
	return ret, nil
}

// VerifyBatch checks the leaves are committed at bp.Indices under root, for a tree of leafCount leaves.
func VerifyBatch(root MerkleRoot, leafCount uint64, leaves []Leaf, bp BatchPath) error {
	if len(leaves) != len(bp.Indices) {
		return fmt.Errorf("%w: %v leaves for %v indices", types.ErrInvalidMerklePath, len(leaves), len(bp.Indices))
	}
	if err := checkIndices(bp.Indices, leafCount); err != nil {
		return err
	}
	positions := append([]uint64(nil), bp.Indices...)
	hashes := make([]types.HashBytes, len(leaves))
	for i, nxt := range leaves {
		hashes[i] = nxt.Hash()
	}
	var vi int
	for l := 0; l < Depth(leafCount); l++ {
		var nextPos []uint64
		var nextHashes []types.HashBytes
		for i := 0; i < len(positions); i++ {
			pos := positions[i]
			var parent types.HashBytes
			if pos&1 == 0 && i+1 < len(positions) && positions[i+1] == pos+1 {
				parent = nodeHash(hashes[i], hashes[i+1])
				i++
			} else {
				if vi >= len(bp.Values) {
					return fmt.Errorf("%w: batch path too short", types.ErrInvalidMerklePath)
				}
				if pos&1 == 0 {
					parent = nodeHash(hashes[i], bp.Values[vi])
				} else {
					parent = nodeHash(bp.Values[vi], hashes[i])
				}
				vi++
			}
			nextPos = append(nextPos, pos>>1)
			nextHashes = append(nextHashes, parent)
		}
		positions, hashes = nextPos, nextHashes
	}
	if vi != len(bp.Values) {
		return fmt.Errorf("%w: batch path too long", types.ErrInvalidMerklePath)
	}
	if len(hashes) != 1 || !hashes[0].Equal(root) {
		return fmt.Errorf("%w: root mismatch", types.ErrInvalidMerklePath)
	}
	return nil
}

func (bp BatchPath) Encode(writer io.Writer) (n int, err error) {
	var n1 int
	if n1, err = utils.EncodeUvarint(uint64(len(bp.Indices)), writer); err != nil {
		return
	}
	n += n1
	for _, nxt := range bp.Indices {
		if n1, err = utils.EncodeUint64(nxt, writer); err != nil {
			return
		}
		n += n1
	}
	return encodeHashes(bp.Values, writer, n)
}

func (bp *BatchPath) Decode(reader utils.ByteReader) (err error) {
	var count uint64
	if count, err = utils.ReadUvarint(reader); err != nil {
		return
	}
	if count > 64*1024 {
		return types.ErrDeserialize
	}
	bp.Indices = make([]uint64, count)
	for i := range bp.Indices {
		if bp.Indices[i], _, err = utils.ReadUint64(reader); err != nil {
			return
		}
	}
	bp.Values, err = decodeHashes(reader)
	return
}
