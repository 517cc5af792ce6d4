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
	"crypto/cipher"
	"fmt"
	"time"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/sign/eddsa"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/keyreg"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

var edSuite = edwards25519.NewBlakeSHA256Ed25519()

// GenesisSigner holds the key that signs the first certificate of a chain.
type GenesisSigner struct {
	ed *eddsa.EdDSA
}

// NewGenesisSigner generates a genesis key from random.
func NewGenesisSigner(random cipher.Stream) *GenesisSigner {
	return &GenesisSigner{ed: eddsa.NewEdDSA(random)}
}

// NewSeededGenesisSigner returns the same genesis key for the same seed.
func NewSeededGenesisSigner(seed []byte) *GenesisSigner {
	return NewGenesisSigner(utils.NewSeededStream(seed, config.GenesisKeySeed))
}

// Verifier returns the public part of the key.
func (gs *GenesisSigner) Verifier() *GenesisVerifier {
	return &GenesisVerifier{pub: gs.ed.Public}
}

// Sign signs the hash of the protocol message.
func (gs *GenesisSigner) Sign(pm ProtocolMessage) ([]byte, error) {
	return gs.ed.Sign(pm.Hash())
}

// GenesisProtocolMessage is the message of a genesis certificate, the commitment to its registration.
func GenesisProtocolMessage(avk keyreg.AggregateVerificationKey) ProtocolMessage {
	return ProtocolMessage{PartStakeDistributionCommitment: avk.Hash()}
}

// NewGenesisCertificate creates and signs the first certificate of a chain.
func (gs *GenesisSigner) NewGenesisCertificate(beacon types.Beacon, params types.ProtocolParameters,
	avk keyreg.AggregateVerificationKey, now time.Time) (*Certificate, error) {

	pm := GenesisProtocolMessage(avk)
	sig, err := gs.Sign(pm)
	if err != nil {
		return nil, err
	}
	ret := &Certificate{
		Beacon: beacon,
		Metadata: Metadata{
			ProtocolVersion: config.ProtocolVersion,
			Parameters:      params,
			InitiatedAt:     now,
			SealedAt:        now,
		},
		ProtocolMessage:          pm,
		AggregateVerificationKey: avk,
		GenesisSignature:         sig,
	}
	if ret.Hash, err = ret.ComputeHash(); err != nil {
		return nil, err
	}
	return ret, nil
}

// GenesisVerifier checks genesis signatures.
type GenesisVerifier struct {
	pub kyber.Point
}

func (gv *GenesisVerifier) Verify(pm ProtocolMessage, sig []byte) error {
	if err := eddsa.Verify(gv.pub, pm.Hash(), sig); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidGenesis, err)
	}
	return nil
}

func (gv *GenesisVerifier) MarshalBinary() ([]byte, error) {
	return gv.pub.MarshalBinary()
}

func (gv *GenesisVerifier) String() string {
	return gv.pub.String()
}

// UnmarshalGenesisVerifier decodes a key written by MarshalBinary.
func UnmarshalGenesisVerifier(b []byte) (*GenesisVerifier, error) {
	p := edSuite.Point()
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPub, err)
	}
	return &GenesisVerifier{pub: p}, nil
}
