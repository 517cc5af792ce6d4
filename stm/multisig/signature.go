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
Package multisig implements the stake based threshold multi-signatures.
A party signs every lottery index of a message separately, keeps the indices it wins,
and the aggregator combines the won indices of several parties into a MultiSignature
once at least k distinct indices are covered.
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

// IndexMessage is the message signed for index, the message followed by the index.
func IndexMessage(msg []byte, index types.LotteryIndex) []byte {
	ret := make([]byte, 0, len(msg)+9)
	ret = append(ret, config.DomainLotteryIndex)
	ret = append(ret, msg...)
	return append(ret, utils.Uint64ToBytes(uint64(index))...)
}

// IndexSignature is the signature of a single won index.
type IndexSignature struct {
	Index types.LotteryIndex
	Sigma []byte
}

// IndividualSignature is the output of a party for a message, the indices it won
// with their signatures and the Merkle path of its registration.
type IndividualSignature struct {
	PartyID types.PartyID
	Sigmas  []IndexSignature // ordered by index
	Path    merkle.Path
}

// WonIndices returns the indices of the signature.
func (is *IndividualSignature) WonIndices() []types.LotteryIndex {
	ret := make([]types.LotteryIndex, len(is.Sigmas))
	for i, nxt := range is.Sigmas {
		ret[i] = nxt.Index
	}
	return ret
}

func (is *IndividualSignature) String() string {
	return fmt.Sprintf("{party: %v, indices: %v}", is.PartyID, is.WonIndices())
}

func (is *IndividualSignature) Encode(writer io.Writer) (n int, err error) {
	var n1 int
	if n1, err = utils.EncodeString(string(is.PartyID), writer); err != nil {
		return
	}
	n += n1
	if n1, err = utils.EncodeUvarint(uint64(len(is.Sigmas)), writer); err != nil {
		return
	}
	n += n1
	for _, nxt := range is.Sigmas {
		if n1, err = utils.EncodeUint64(uint64(nxt.Index), writer); err != nil {
			return
		}
		n += n1
		if n1, err = utils.EncodeHelper(nxt.Sigma, writer); err != nil {
			return
		}
		n += n1
	}
	n1, err = is.Path.Encode(writer)
	n += n1
	return
}

func (is *IndividualSignature) Decode(reader utils.ByteReader) (err error) {
	var id string
	if id, err = utils.DecodeString(reader); err != nil {
		return
	}
	is.PartyID = types.PartyID(id)
	var count uint64
	if count, err = utils.ReadUvarint(reader); err != nil {
		return
	}
	if count > 1<<20 {
		return types.ErrDeserialize
	}
	is.Sigmas = make([]IndexSignature, count)
	for i := range is.Sigmas {
		var idx uint64
		if idx, _, err = utils.ReadUint64(reader); err != nil {
			return
		}
		is.Sigmas[i].Index = types.LotteryIndex(idx)
		if is.Sigmas[i].Sigma, err = utils.DecodeHelper(reader); err != nil {
			return
		}
	}
	return is.Path.Decode(reader)
}

func (is *IndividualSignature) MarshalBinary() ([]byte, error) {
	writer := bytes.NewBuffer(nil)
	_, err := is.Encode(writer)
	return writer.Bytes(), err
}

// UnmarshalIndividualSignature decodes the output of MarshalBinary.
func UnmarshalIndividualSignature(b []byte) (*IndividualSignature, error) {
	reader := bytes.NewReader(b)
	ret := &IndividualSignature{}
	if err := ret.Decode(reader); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDeserialize, err)
	}
	if err := utils.CheckDone(reader); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDeserialize, err)
	}
	return ret, nil
}

// Hash is the digest of the signature for msg, used to recognise repeated submissions.
// It fails with ErrInvalidMerklePath if the path cannot be encoded.
func (is *IndividualSignature) Hash(msg []byte) (types.HashBytes, error) {
	h := types.GetDomainHash(config.DomainIndividualSig)
	if _, err := utils.EncodeHelper(msg, h); err != nil {
		return nil, err
	}
	if _, err := is.Encode(h); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidMerklePath, err)
	}
	return h.Sum(nil), nil
}
