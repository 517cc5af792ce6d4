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
	"io"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/merkle"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

// Encode writes the multi-signature.
// Layout: signature, entry count, entries (index, leaf position, sigma), leaf count, leaves, batch path.
func (ms *MultiSignature) Encode(writer io.Writer) (n int, err error) {
	var n1 int
	if n1, err = utils.EncodeHelper(ms.Signature, writer); err != nil {
		return
	}
	n += n1
	if n1, err = utils.EncodeUvarint(uint64(len(ms.Entries)), writer); err != nil {
		return
	}
	n += n1
	for _, nxt := range ms.Entries {
		if n1, err = utils.EncodeUint64(uint64(nxt.Index), writer); err != nil {
			return
		}
		n += n1
		if n1, err = utils.EncodeUint64(nxt.LeafPosition, writer); err != nil {
			return
		}
		n += n1
		if n1, err = utils.EncodeHelper(nxt.Sigma, writer); err != nil {
			return
		}
		n += n1
	}
	if n1, err = utils.EncodeUvarint(uint64(len(ms.Leaves)), writer); err != nil {
		return
	}
	n += n1
	for _, nxt := range ms.Leaves {
		if n1, err = nxt.Encode(writer); err != nil {
			return
		}
		n += n1
	}
	n1, err = ms.Proof.Encode(writer)
	n += n1
	return
}

func (ms *MultiSignature) Decode(reader utils.ByteReader) (err error) {
	if ms.Signature, err = utils.DecodeHelper(reader); err != nil {
		return
	}
	var count uint64
	if count, err = utils.ReadUvarint(reader); err != nil {
		return
	}
	if count > 1<<20 {
		return types.ErrDeserialize
	}
	ms.Entries = make([]AggregateEntry, count)
	for i := range ms.Entries {
		var v uint64
		if v, _, err = utils.ReadUint64(reader); err != nil {
			return
		}
		ms.Entries[i].Index = types.LotteryIndex(v)
		if ms.Entries[i].LeafPosition, _, err = utils.ReadUint64(reader); err != nil {
			return
		}
		if ms.Entries[i].Sigma, err = utils.DecodeHelper(reader); err != nil {
			return
		}
	}
	if count, err = utils.ReadUvarint(reader); err != nil {
		return
	}
	if count > 1<<20 {
		return types.ErrDeserialize
	}
	ms.Leaves = make([]merkle.Leaf, count)
	for i := range ms.Leaves {
		if err = ms.Leaves[i].Decode(reader); err != nil {
			return
		}
	}
	return ms.Proof.Decode(reader)
}

func (ms *MultiSignature) MarshalBinary() ([]byte, error) {
	writer := bytes.NewBuffer(nil)
	_, err := ms.Encode(writer)
	return writer.Bytes(), err
}

// UnmarshalMultiSignature decodes the output of MarshalBinary.
func UnmarshalMultiSignature(b []byte) (*MultiSignature, error) {
	reader := bytes.NewReader(b)
	ret := &MultiSignature{}
	if err := ret.Decode(reader); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDeserialize, err)
	}
	if err := utils.CheckDone(reader); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDeserialize, err)
	}
	return ret, nil
}

// Hash returns the digest of the encoded multi-signature.
func (ms *MultiSignature) Hash() types.HashBytes {
	h := types.GetDomainHash(config.DomainMultiSig)
	if _, err := ms.Encode(h); err != nil {
		panic(err)
	}
	return h.Sum(nil)
}
