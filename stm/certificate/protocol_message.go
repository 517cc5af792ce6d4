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
Package certificate contains the protocol messages, the certificates sealing a multi-signature
of a round and the hash linked chain of certificates.
*/
package certificate

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

// PartKey names a part of a protocol message.
type PartKey string

const (
	PartPreviousCertificateHash     PartKey = "previous_certificate_hash"
	PartStakeDistributionCommitment PartKey = "stake_distribution_commitment"
	PartSnapshotDigest              PartKey = "snapshot_digest"
)

// ProtocolMessage maps named parts to digests, it is the document signed in a round.
type ProtocolMessage map[PartKey]types.HashBytes

// NewProtocolMessage creates a message for a regular round.
func NewProtocolMessage(previous, commitment, digest types.HashBytes) ProtocolMessage {
	return ProtocolMessage{
		PartPreviousCertificateHash:     previous,
		PartStakeDistributionCommitment: commitment,
		PartSnapshotDigest:              digest,
	}
}

func (pm ProtocolMessage) Set(key PartKey, value types.HashBytes) {
	pm[key] = value
}

func (pm ProtocolMessage) Get(key PartKey) (types.HashBytes, bool) {
	v, ok := pm[key]
	return v, ok
}

// Keys returns the part keys in canonical (lexicographic) order.
func (pm ProtocolMessage) Keys() []PartKey {
	ret := make([]PartKey, 0, len(pm))
	for k := range pm {
		ret = append(ret, k)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// Encode writes the parts in canonical order, each as a length prefixed key followed by a length prefixed value.
func (pm ProtocolMessage) Encode(writer io.Writer) (n int, err error) {
	var n1 int
	if n1, err = utils.EncodeUvarint(uint64(len(pm)), writer); err != nil {
		return
	}
	n += n1
	for _, k := range pm.Keys() {
		if n1, err = utils.EncodeString(string(k), writer); err != nil {
			return
		}
		n += n1
		if n1, err = utils.EncodeHelper(pm[k], writer); err != nil {
			return
		}
		n += n1
	}
	return
}

// Decode reads a message written by Encode, keys must be in canonical order.
func (pm *ProtocolMessage) Decode(reader utils.ByteReader) error {
	count, err := utils.ReadUvarint(reader)
	if err != nil {
		return err
	}
	if count > 1024 {
		return types.ErrDeserialize
	}
	ret := make(ProtocolMessage, count)
	var prev PartKey
	for i := uint64(0); i < count; i++ {
		k, err := utils.DecodeString(reader)
		if err != nil {
			return err
		}
		if i > 0 && PartKey(k) <= prev {
			return fmt.Errorf("%w: protocol message keys out of order", types.ErrDeserialize)
		}
		prev = PartKey(k)
		if ret[prev], err = utils.DecodeHelper(reader); err != nil {
			return err
		}
	}
	*pm = ret
	return nil
}

// SignedBytes is the byte string signed by the parties.
func (pm ProtocolMessage) SignedBytes() []byte {
	writer := bytes.NewBuffer([]byte{config.DomainProtocolMsg, config.HashVersion})
	if _, err := pm.Encode(writer); err != nil {
		panic(err)
	}
	return writer.Bytes()
}

// Hash is the digest of SignedBytes.
func (pm ProtocolMessage) Hash() types.HashBytes {
	return types.GetHash(pm.SignedBytes())
}

func (pm ProtocolMessage) Equal(other ProtocolMessage) bool {
	if len(pm) != len(other) {
		return false
	}
	for k, v := range pm {
		if ov, ok := other[k]; !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Copy returns a message with the same parts.
func (pm ProtocolMessage) Copy() ProtocolMessage {
	ret := make(ProtocolMessage, len(pm))
	for k, v := range pm {
		ret[k] = utils.CopyBuf(v)
	}
	return ret
}

func (pm ProtocolMessage) String() string {
	buff := bytes.NewBufferString("{")
	for i, k := range pm.Keys() {
		if i > 0 {
			buff.WriteString(", ")
		}
		fmt.Fprintf(buff, "%v: %v", k, pm[k].Short())
	}
	buff.WriteString("}")
	return buff.String()
}
