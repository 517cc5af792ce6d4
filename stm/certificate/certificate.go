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

package certificate

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/keyreg"
	"github.com/tcrain/stm/stm/multisig"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

// Metadata describes how a certificate was produced.
type Metadata struct {
	ProtocolVersion string
	Parameters      types.ProtocolParameters
	InitiatedAt     time.Time
	SealedAt        time.Time
	Signers         types.StakeDistribution // parties contributing to the multi-signature
}

func (md Metadata) Encode(writer io.Writer) (n int, err error) {
	var n1 int
	if n1, err = utils.EncodeString(md.ProtocolVersion, writer); err != nil {
		return
	}
	n += n1
	if n1, err = md.Parameters.Encode(writer); err != nil {
		return
	}
	n += n1
	for _, t := range []time.Time{md.InitiatedAt, md.SealedAt} {
		if n1, err = utils.EncodeUint64(uint64(t.UnixNano()), writer); err != nil {
			return
		}
		n += n1
	}
	if n1, err = utils.EncodeUvarint(uint64(len(md.Signers)), writer); err != nil {
		return
	}
	n += n1
	for _, nxt := range md.Signers {
		if n1, err = utils.EncodeString(string(nxt.ID), writer); err != nil {
			return
		}
		n += n1
		if n1, err = utils.EncodeUint64(uint64(nxt.Stake), writer); err != nil {
			return
		}
		n += n1
	}
	return
}

func (md *Metadata) Decode(reader utils.ByteReader) (err error) {
	if md.ProtocolVersion, err = utils.DecodeString(reader); err != nil {
		return
	}
	if _, err = md.Parameters.Decode(reader); err != nil {
		return
	}
	var v uint64
	if v, _, err = utils.ReadUint64(reader); err != nil {
		return
	}
	md.InitiatedAt = time.Unix(0, int64(v)).UTC()
	if v, _, err = utils.ReadUint64(reader); err != nil {
		return
	}
	md.SealedAt = time.Unix(0, int64(v)).UTC()
	var count uint64
	if count, err = utils.ReadUvarint(reader); err != nil {
		return
	}
	if count > 1<<20 {
		return types.ErrDeserialize
	}
	md.Signers = nil
	if count > 0 {
		md.Signers = make(types.StakeDistribution, count)
	}
	for i := range md.Signers {
		var id string
		if id, err = utils.DecodeString(reader); err != nil {
			return
		}
		md.Signers[i].ID = types.PartyID(id)
		if v, _, err = utils.ReadUint64(reader); err != nil {
			return
		}
		md.Signers[i].Stake = types.Stake(v)
	}
	return
}

const (
	multiSigKind   byte = 0
	genesisSigKind byte = 1
)

// Certificate seals the multi-signature of a round, or the genesis signature for the first certificate of a chain.
// Hash is computed once when the certificate is created and is stored with it.
type Certificate struct {
	Hash                     types.HashBytes
	PreviousHash             types.HashBytes // empty for a genesis certificate
	Beacon                   types.Beacon
	Metadata                 Metadata
	ProtocolMessage          ProtocolMessage
	AggregateVerificationKey keyreg.AggregateVerificationKey
	MultiSignature           *multisig.MultiSignature // nil for a genesis certificate
	GenesisSignature         []byte
}

// NewCertificate creates the certificate following previous and computes its hash.
func NewCertificate(previous *Certificate, beacon types.Beacon, md Metadata, pm ProtocolMessage,
	avk keyreg.AggregateVerificationKey, msig *multisig.MultiSignature) (*Certificate, error) {

	ret := &Certificate{
		Beacon:                   beacon,
		Metadata:                 md,
		ProtocolMessage:          pm,
		AggregateVerificationKey: avk,
		MultiSignature:           msig,
	}
	if previous != nil {
		ret.PreviousHash = utils.CopyBuf(previous.Hash)
	}
	var err error
	if ret.Hash, err = ret.ComputeHash(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Seal creates the certificate of a round whose protocol message is signed by msig.
func Seal(previous *Certificate, beacon types.Beacon, pm ProtocolMessage, closed *keyreg.ClosedKeyRegistration,
	msig *multisig.MultiSignature, initiatedAt, sealedAt time.Time) (*Certificate, error) {

	md := Metadata{
		ProtocolVersion: config.ProtocolVersion,
		Parameters:      closed.Params(),
		InitiatedAt:     initiatedAt,
		SealedAt:        sealedAt,
		Signers:         msig.Parties(),
	}
	return NewCertificate(previous, beacon, md, pm, closed.AggregateVerificationKey(), msig)
}

// IsGenesis returns true if the certificate is signed by the genesis key instead of a multi-signature.
func (c *Certificate) IsGenesis() bool {
	return c.MultiSignature == nil
}

// SignedMessage is the message signed by the parties, or by the genesis key.
func (c *Certificate) SignedMessage() []byte {
	return c.ProtocolMessage.Hash()
}

// signatureDigest is the digest of the multi-signature, or of the genesis signature.
func (c *Certificate) signatureDigest() types.HashBytes {
	if c.IsGenesis() {
		return types.GetDomainHashOf(config.DomainCertificate, []byte{genesisSigKind}, c.GenesisSignature)
	}
	return c.MultiSignature.Hash()
}

// ComputeHash returns the digest of the content of the certificate, it does not modify Hash.
func (c *Certificate) ComputeHash() (types.HashBytes, error) {
	h := types.GetDomainHash(config.DomainCertificate)
	if _, err := c.Beacon.Encode(h); err != nil {
		return nil, err
	}
	if _, err := utils.EncodeHelper(c.PreviousHash, h); err != nil {
		return nil, err
	}
	if _, err := h.Write(c.ProtocolMessage.Hash()); err != nil {
		return nil, err
	}
	if _, err := c.AggregateVerificationKey.Encode(h); err != nil {
		return nil, err
	}
	if _, err := h.Write(c.signatureDigest()); err != nil {
		return nil, err
	}
	if _, err := c.Metadata.Encode(h); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func (c *Certificate) Encode(writer io.Writer) (n int, err error) {
	var n1 int
	for _, nxt := range [][]byte{c.Hash, c.PreviousHash} {
		if n1, err = utils.EncodeHelper(nxt, writer); err != nil {
			return
		}
		n += n1
	}
	if n1, err = c.Beacon.Encode(writer); err != nil {
		return
	}
	n += n1
	if n1, err = c.Metadata.Encode(writer); err != nil {
		return
	}
	n += n1
	if n1, err = c.ProtocolMessage.Encode(writer); err != nil {
		return
	}
	n += n1
	if n1, err = c.AggregateVerificationKey.Encode(writer); err != nil {
		return
	}
	n += n1
	if c.IsGenesis() {
		if n1, err = writer.Write([]byte{genesisSigKind}); err != nil {
			return
		}
		n += n1
		n1, err = utils.EncodeHelper(c.GenesisSignature, writer)
		n += n1
		return
	}
	if n1, err = writer.Write([]byte{multiSigKind}); err != nil {
		return
	}
	n += n1
	n1, err = c.MultiSignature.Encode(writer)
	n += n1
	return
}

// Decode reads a certificate written by Encode, the stored hash is kept as is.
func (c *Certificate) Decode(reader utils.ByteReader) (err error) {
	if c.Hash, err = utils.DecodeHelper(reader); err != nil {
		return
	}
	if c.PreviousHash, err = utils.DecodeHelper(reader); err != nil {
		return
	}
	if err = c.Beacon.Decode(reader); err != nil {
		return
	}
	if err = c.Metadata.Decode(reader); err != nil {
		return
	}
	if err = c.ProtocolMessage.Decode(reader); err != nil {
		return
	}
	if err = c.AggregateVerificationKey.Decode(reader); err != nil {
		return
	}
	var kind byte
	if kind, err = reader.ReadByte(); err != nil {
		return
	}
	switch kind {
	case genesisSigKind:
		c.MultiSignature = nil
		c.GenesisSignature, err = utils.DecodeHelper(reader)
	case multiSigKind:
		c.GenesisSignature = nil
		c.MultiSignature = &multisig.MultiSignature{}
		err = c.MultiSignature.Decode(reader)
	default:
		err = fmt.Errorf("%w: signature kind %v", types.ErrDeserialize, kind)
	}
	return
}

func (c *Certificate) MarshalBinary() ([]byte, error) {
	writer := bytes.NewBuffer(nil)
	_, err := c.Encode(writer)
	return writer.Bytes(), err
}

// UnmarshalCertificate decodes the output of MarshalBinary.
func UnmarshalCertificate(b []byte) (*Certificate, error) {
	reader := bytes.NewReader(b)
	ret := &Certificate{}
	if err := ret.Decode(reader); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDeserialize, err)
	}
	if err := utils.CheckDone(reader); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDeserialize, err)
	}
	return ret, nil
}

func (c *Certificate) String() string {
	kind := "multi"
	if c.IsGenesis() {
		kind = "genesis"
	}
	return fmt.Sprintf("{hash: %v, prev: %v, beacon: %v, %v}", c.Hash.Short(), c.PreviousHash.Short(), c.Beacon, kind)
}
