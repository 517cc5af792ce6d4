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
package bls

import (
	"fmt"

	"go.dedis.ch/kyber/v3"

	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

// ProofOfPossession proves knowledge of the secret key of a verification key.
// K1 is a signature of the domain separated verification key, K2 is the secret times the G1 base.
type ProofOfPossession struct {
	K1 kyber.Point
	K2 kyber.Point
}

// VerificationKeyPoP is a verification key along with its proof of possession,
// this is what a party submits to register.
type VerificationKeyPoP struct {
	VK  *VerificationKey
	PoP *ProofOfPossession
}

// ProvePossession creates the proof of possession of sk.
func (sk *SigningKey) ProvePossession() (*ProofOfPossession, error) {
	msg, err := popMessage(sk.VerificationKey())
	if err != nil {
		return nil, err
	}
	k1, err := sk.Sign(msg)
	if err != nil {
		return nil, err
	}
	p := blssuite.G1().Point()
	if err := p.UnmarshalBinary(k1); err != nil {
		return nil, err
	}
	return &ProofOfPossession{K1: p, K2: blssuite.G1().Point().Mul(sk.x, nil)}, nil
}

// VerificationKeyPoP returns the registration of sk.
func (sk *SigningKey) VerificationKeyPoP() (VerificationKeyPoP, error) {
	pop, err := sk.ProvePossession()
	if err != nil {
		return VerificationKeyPoP{}, err
	}
	return VerificationKeyPoP{VK: sk.VerificationKey(), PoP: pop}, nil
}

// Check verifies both elements of the proof against the verification key.
func (vkp VerificationKeyPoP) Check() error {
	if vkp.VK == nil || vkp.VK.p == nil || vkp.PoP == nil || vkp.PoP.K1 == nil || vkp.PoP.K2 == nil {
		return types.ErrInvalidProofOfPossession
	}
	msg, err := popMessage(vkp.VK)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidProofOfPossession, err)
	}
	k1, err := vkp.PoP.K1.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidProofOfPossession, err)
	}
	if err := vkp.VK.Verify(msg, k1); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidProofOfPossession, err)
	}
	// e(k2, g2) == e(g1, vk)
	left := blssuite.Pair(vkp.PoP.K2, blssuite.G2().Point().Base())
	right := blssuite.Pair(blssuite.G1().Point().Base(), vkp.VK.p)
	if !left.Equal(right) {
		return fmt.Errorf("%w: pairing check failed", types.ErrInvalidProofOfPossession)
	}
	return nil
}

// MarshalBinary writes the key followed by the two proof elements, each prefixed by its length.
func (vkp VerificationKeyPoP) MarshalBinary() ([]byte, error) {
	var ret []byte
	for _, nxt := range []kyber.Point{vkp.VK.p, vkp.PoP.K1, vkp.PoP.K2} {
		buff, err := nxt.MarshalBinary()
		if err != nil {
			return nil, err
		}
		ret = append(ret, byte(len(buff)))
		ret = append(ret, buff...)
	}
	return ret, nil
}

// UnmarshalVerificationKeyPoP decodes the output of VerificationKeyPoP.MarshalBinary.
func UnmarshalVerificationKeyPoP(b []byte) (VerificationKeyPoP, error) {
	points := []kyber.Point{blssuite.G2().Point(), blssuite.G1().Point(), blssuite.G1().Point()}
	for _, nxt := range points {
		if len(b) == 0 || len(b) < int(b[0])+1 {
			return VerificationKeyPoP{}, utils.ErrInvalidBuffSize
		}
		size := int(b[0])
		if err := nxt.UnmarshalBinary(b[1 : size+1]); err != nil {
			return VerificationKeyPoP{}, fmt.Errorf("%w: %v", types.ErrInvalidPub, err)
		}
		b = b[size+1:]
	}
	if len(b) != 0 {
		return VerificationKeyPoP{}, utils.ErrTrailingBytes
	}
	return VerificationKeyPoP{VK: &VerificationKey{p: points[0]},
		PoP: &ProofOfPossession{K1: points[1], K2: points[2]}}, nil
}
