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
	"fmt"
	"sync"

	"github.com/tcrain/stm/stm/logging"
	"github.com/tcrain/stm/stm/multisig"
	"github.com/tcrain/stm/stm/types"
)

// Chain is an append only list of certificates, each referencing the previous one by hash.
// It is safe for concurrent use.
type Chain struct {
	mutex  sync.RWMutex
	certs  []*Certificate
	byHash map[types.HashStr]int
}

func NewChain() *Chain {
	return &Chain{byHash: make(map[types.HashStr]int)}
}

// LoadChain appends certs in order to a new chain.
func LoadChain(certs []*Certificate) (*Chain, error) {
	ret := NewChain()
	for _, nxt := range certs {
		if err := ret.Append(nxt); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// CheckHash returns an error if the stored hash of cert differs from the hash of its content.
func CheckHash(cert *Certificate) error {
	h, err := cert.ComputeHash()
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrChainIntegrity, err)
	}
	if !h.Equal(cert.Hash) {
		return fmt.Errorf("%w: certificate %v has content hash %v", types.ErrChainIntegrity, cert.Hash.Short(), h.Short())
	}
	return nil
}

// VerifyLink checks cert can follow previous, previous is nil for the first certificate of a chain.
// Only the genesis certificate can start a chain and it cannot follow another certificate.
func VerifyLink(cert, previous *Certificate) error {
	if previous == nil {
		if !cert.IsGenesis() || len(cert.PreviousHash) != 0 {
			return fmt.Errorf("%w: chain must start with a genesis certificate", types.ErrChainIntegrity)
		}
		return nil
	}
	if cert.IsGenesis() {
		return fmt.Errorf("%w: genesis certificate after %v", types.ErrChainIntegrity, previous.Hash.Short())
	}
	if !cert.PreviousHash.Equal(previous.Hash) {
		return fmt.Errorf("%w: previous hash %v, expected %v", types.ErrChainIntegrity,
			cert.PreviousHash.Short(), previous.Hash.Short())
	}
	if v, ok := cert.ProtocolMessage.Get(PartPreviousCertificateHash); !ok || !v.Equal(previous.Hash) {
		return fmt.Errorf("%w: protocol message does not reference %v", types.ErrChainIntegrity, previous.Hash.Short())
	}
	if !cert.Beacon.IsNewerThan(previous.Beacon) {
		return fmt.Errorf("%w: beacon %v does not follow %v", types.ErrChainIntegrity, cert.Beacon, previous.Beacon)
	}
	return nil
}

// VerifyCertificate checks the signature of cert and its link to previous.
// The multi-signature is checked against the key and parameters recorded in the certificate,
// which must match the stake distribution commitment of its protocol message.
func VerifyCertificate(cert, previous *Certificate, gv *GenesisVerifier) error {
	if err := CheckHash(cert); err != nil {
		return err
	}
	if err := VerifyLink(cert, previous); err != nil {
		return err
	}
	if v, ok := cert.ProtocolMessage.Get(PartStakeDistributionCommitment); !ok || !v.Equal(cert.AggregateVerificationKey.Hash()) {
		return fmt.Errorf("%w: stake distribution commitment differs from the aggregate key", types.ErrChainIntegrity)
	}
	if cert.IsGenesis() {
		if gv == nil {
			return fmt.Errorf("%w: no genesis key", types.ErrInvalidGenesis)
		}
		return gv.Verify(cert.ProtocolMessage, cert.GenesisSignature)
	}
	return multisig.VerifyAggregate(cert.MultiSignature, cert.SignedMessage(), cert.AggregateVerificationKey,
		cert.Metadata.Parameters)
}

// VerifyChain verifies every certificate of certs, in order, starting from the genesis certificate.
func VerifyChain(certs []*Certificate, gv *GenesisVerifier) error {
	var previous *Certificate
	for i, nxt := range certs {
		if err := VerifyCertificate(nxt, previous, gv); err != nil {
			return fmt.Errorf("certificate %v: %w", i, err)
		}
		previous = nxt
	}
	return nil
}

// Append adds cert at the end of the chain after checking its hash and its link to the tip.
// A failure is an integrity error, the chain is not modified.
func (c *Chain) Append(cert *Certificate) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := CheckHash(cert)
	if err == nil {
		err = VerifyLink(cert, c.tip())
	}
	if err == nil {
		if _, ok := c.byHash[cert.Hash.Str()]; ok {
			err = fmt.Errorf("%w: certificate %v already in the chain", types.ErrChainIntegrity, cert.Hash.Short())
		}
	}
	if err != nil {
		logging.Errorf("rejected certificate %v: %v", cert, err)
		return err
	}
	c.byHash[cert.Hash.Str()] = len(c.certs)
	c.certs = append(c.certs, cert)
	logging.Infof("appended certificate %v at height %v", cert, len(c.certs)-1)
	return nil
}

func (c *Chain) tip() *Certificate {
	if len(c.certs) == 0 {
		return nil
	}
	return c.certs[len(c.certs)-1]
}

// Tip returns the last certificate, or nil if the chain is empty.
func (c *Chain) Tip() *Certificate {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.tip()
}

func (c *Chain) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.certs)
}

// Get returns the certificate with the given hash.
func (c *Chain) Get(hash types.HashBytes) (*Certificate, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	idx, ok := c.byHash[hash.Str()]
	if !ok {
		return nil, fmt.Errorf("%w: %v", types.ErrCertificateNotFound, hash.Short())
	}
	return c.certs[idx], nil
}

// At returns the certificate at height i.
func (c *Chain) At(i int) (*Certificate, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if i < 0 || i >= len(c.certs) {
		return nil, fmt.Errorf("%w: height %v", types.ErrCertificateNotFound, i)
	}
	return c.certs[i], nil
}

// Certificates returns the certificates in chain order.
func (c *Chain) Certificates() []*Certificate {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]*Certificate(nil), c.certs...)
}

// Verify runs VerifyChain on the certificates of the chain.
func (c *Chain) Verify(gv *GenesisVerifier) error {
	return VerifyChain(c.Certificates(), gv)
}
