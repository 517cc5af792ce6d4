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

package storage

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/tcrain/stm/stm/certificate"
	"github.com/tcrain/stm/stm/types"
)

const defaultTreeDegree = 2

// certItem orders certificates by beacon, which is the chain order.
type certItem struct {
	epoch     types.Epoch
	immutable uint64
	cert      *certificate.Certificate
}

func (ci certItem) Less(other certItem) bool {
	if ci.epoch != other.epoch {
		return ci.epoch < other.epoch
	}
	return ci.immutable < other.immutable
}

// MemCertificateStore keeps the certificates in memory.
type MemCertificateStore struct {
	mutex  sync.RWMutex
	tree   *btree.BTreeG[certItem]
	byHash map[types.HashStr]*certificate.Certificate
}

func NewMemCertificateStore() *MemCertificateStore {
	return &MemCertificateStore{
		tree:   btree.NewG(defaultTreeDegree, certItem.Less),
		byHash: make(map[types.HashStr]*certificate.Certificate),
	}
}

func (ms *MemCertificateStore) StoreCertificate(cert *certificate.Certificate) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	if _, ok := ms.byHash[cert.Hash.Str()]; ok {
		return fmt.Errorf("%w: certificate %v already stored", types.ErrChainIntegrity, cert.Hash.Short())
	}
	item := certItem{epoch: cert.Beacon.Epoch, immutable: cert.Beacon.ImmutableFileNumber, cert: cert}
	if maxItem, ok := ms.tree.Max(); ok && !item.cert.Beacon.IsNewerThan(maxItem.cert.Beacon) {
		return fmt.Errorf("%w: beacon %v is not after the tip %v", types.ErrChainIntegrity, cert.Beacon, maxItem.cert.Beacon)
	}
	ms.tree.ReplaceOrInsert(item)
	ms.byHash[cert.Hash.Str()] = cert
	return nil
}

func (ms *MemCertificateStore) LoadChainTip() (*certificate.Certificate, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	if maxItem, ok := ms.tree.Max(); ok {
		return maxItem.cert, nil
	}
	return nil, nil
}

func (ms *MemCertificateStore) GetByHash(hash types.HashBytes) (*certificate.Certificate, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	if cert, ok := ms.byHash[hash.Str()]; ok {
		return cert, nil
	}
	return nil, fmt.Errorf("%w: %v", types.ErrCertificateNotFound, hash.Short())
}

func (ms *MemCertificateStore) GetByEpoch(epoch types.Epoch) ([]*certificate.Certificate, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	var ret []*certificate.Certificate
	ms.tree.AscendRange(certItem{epoch: epoch}, certItem{epoch: epoch + 1}, func(item certItem) bool {
		ret = append(ret, item.cert)
		return true
	})
	return ret, nil
}

func (ms *MemCertificateStore) List() ([]*certificate.Certificate, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	ret := make([]*certificate.Certificate, 0, ms.tree.Len())
	ms.tree.Ascend(func(item certItem) bool {
		ret = append(ret, item.cert)
		return true
	})
	return ret, nil
}

func (ms *MemCertificateStore) Close() error {
	return nil
}
