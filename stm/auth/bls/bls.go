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
Package bls contains the BLS keys used by the parties.
It uses the bn256 pairing of kyber, with verification keys in G2 and signatures in G1.
*/
package bls

import (
	"crypto/cipher"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/types"
)

var blssuite = bn256.NewSuite()

// SigningKey is the secret key of a party.
type SigningKey struct {
	x kyber.Scalar
	X kyber.Point // the public key in G2
}

// VerificationKey is the public key of a party.
type VerificationKey struct {
	p kyber.Point
}

// NewKeyPair generates a new BLS key pair from random.
func NewKeyPair(random cipher.Stream) (*SigningKey, *VerificationKey) {
	x, X := bls.NewKeyPair(blssuite, random)
	return &SigningKey{x: x, X: X}, &VerificationKey{p: X}
}

// VerificationKey returns the public key of sk.
func (sk *SigningKey) VerificationKey() *VerificationKey {
	return &VerificationKey{p: sk.X}
}

// Sign signs msg.
func (sk *SigningKey) Sign(msg []byte) ([]byte, error) {
	return bls.Sign(blssuite, sk.x, msg)
}

// MarshalBinary returns the secret scalar.
func (sk *SigningKey) MarshalBinary() ([]byte, error) {
	return sk.x.MarshalBinary()
}

// UnmarshalSigningKey decodes a secret scalar written by MarshalBinary.
func UnmarshalSigningKey(b []byte) (*SigningKey, error) {
	x := blssuite.G2().Scalar()
	if err := x.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return &SigningKey{x: x, X: blssuite.G2().Point().Mul(x, nil)}, nil
}

// Verify checks sig is a signature of msg by vk.
func (vk *VerificationKey) Verify(msg, sig []byte) error {
	if err := bls.Verify(blssuite, vk.p, msg, sig); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidSig, err)
	}
	return nil
}

func (vk *VerificationKey) MarshalBinary() ([]byte, error) {
	return vk.p.MarshalBinary()
}

func (vk *VerificationKey) Equal(other *VerificationKey) bool {
	return vk.p.Equal(other.p)
}

func (vk *VerificationKey) String() string {
	buff, err := vk.MarshalBinary()
	if err != nil {
		return err.Error()
	}
	return types.GetHash(buff).Short()
}

// UnmarshalVerificationKey decodes a key written by MarshalBinary.
func UnmarshalVerificationKey(b []byte) (*VerificationKey, error) {
	p := blssuite.G2().Point()
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPub, err)
	}
	return &VerificationKey{p: p}, nil
}

// AggregateSignatures returns the sum of the signatures.
func AggregateSignatures(sigs ...[]byte) ([]byte, error) {
	return bls.AggregateSignatures(blssuite, sigs...)
}

// SigSize is the size of a marshalled signature.
func SigSize() int {
	return blssuite.G1().PointLen()
}

// popMessage is the message signed by the first element of the proof of possession.
func popMessage(vk *VerificationKey) ([]byte, error) {
	buff, err := vk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append([]byte{config.DomainPoP, config.HashVersion}, buff...), nil
}
