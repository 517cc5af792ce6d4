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

	"github.com/tcrain/stm/stm/certificate"
	"github.com/tcrain/stm/stm/types"
)

// CertificateStore persists the certificate chain.
type CertificateStore interface {
	// StoreCertificate saves cert, it becomes the tip of the chain.
	StoreCertificate(cert *certificate.Certificate) error
	// LoadChainTip returns the last stored certificate, or nil if the store is empty.
	LoadChainTip() (*certificate.Certificate, error)
	// GetByHash returns ErrCertificateNotFound if there is no certificate with the hash.
	GetByHash(hash types.HashBytes) (*certificate.Certificate, error)
	// GetByEpoch returns the certificates of an epoch in chain order.
	GetByEpoch(epoch types.Epoch) ([]*certificate.Certificate, error)
	// List returns all the certificates in chain order.
	List() ([]*certificate.Certificate, error)
	Close() error
}

// DiskCertificateStore keeps the certificates in a Diskstore keyed by certificate hash.
type DiskCertificateStore struct {
	mutex   sync.RWMutex
	ds      *Diskstore
	tip     types.HashStr
	byEpoch map[types.Epoch][]types.HashStr
}

// OpenDiskCertificateStore opens the store at name, the records are decoded to rebuild the epoch index.
func OpenDiskCertificateStore(name string, useSnappy bool, bufferSize int) (*DiskCertificateStore, error) {
	ds, err := OpenDiskstore(name, useSnappy, bufferSize)
	if err != nil {
		return nil, err
	}
	ret := &DiskCertificateStore{ds: ds, byEpoch: make(map[types.Epoch][]types.HashStr)}
	var decodeErr error
	err = ds.Range(func(key types.HashStr, value []byte) bool {
		var cert *certificate.Certificate
		if cert, decodeErr = certificate.UnmarshalCertificate(value); decodeErr != nil {
			return false
		}
		ret.index(key, cert)
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		if err2 := ds.Close(); err2 != nil {
			return nil, err2
		}
		return nil, err
	}
	return ret, nil
}

func (cs *DiskCertificateStore) index(key types.HashStr, cert *certificate.Certificate) {
	cs.tip = key
	cs.byEpoch[cert.Beacon.Epoch] = append(cs.byEpoch[cert.Beacon.Epoch], key)
}

func (cs *DiskCertificateStore) StoreCertificate(cert *certificate.Certificate) error {
	buff, err := cert.MarshalBinary()
	if err != nil {
		return err
	}
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	key := cert.Hash.Str()
	if cs.ds.Contains(key) {
		return fmt.Errorf("%w: certificate %v already stored", types.ErrChainIntegrity, cert.Hash.Short())
	}
	if err := cs.ds.Write(key, buff); err != nil {
		return err
	}
	cs.index(key, cert)
	return nil
}

func (cs *DiskCertificateStore) read(key types.HashStr) (*certificate.Certificate, error) {
	buff, err := cs.ds.Read(key)
	if err != nil {
		return nil, err
	}
	return certificate.UnmarshalCertificate(buff)
}

func (cs *DiskCertificateStore) LoadChainTip() (*certificate.Certificate, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	if cs.tip == "" {
		return nil, nil
	}
	return cs.read(cs.tip)
}

func (cs *DiskCertificateStore) GetByHash(hash types.HashBytes) (*certificate.Certificate, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	if !cs.ds.Contains(hash.Str()) {
		return nil, fmt.Errorf("%w: %v", types.ErrCertificateNotFound, hash.Short())
	}
	return cs.read(hash.Str())
}

func (cs *DiskCertificateStore) GetByEpoch(epoch types.Epoch) ([]*certificate.Certificate, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	var ret []*certificate.Certificate
	for _, key := range cs.byEpoch[epoch] {
		cert, err := cs.read(key)
		if err != nil {
			return nil, err
		}
		ret = append(ret, cert)
	}
	return ret, nil
}

func (cs *DiskCertificateStore) List() ([]*certificate.Certificate, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	var ret []*certificate.Certificate
	var err error
	rangeErr := cs.ds.Range(func(_ types.HashStr, value []byte) bool {
		var cert *certificate.Certificate
		if cert, err = certificate.UnmarshalCertificate(value); err != nil {
			return false
		}
		ret = append(ret, cert)
		return true
	})
	if rangeErr != nil {
		return nil, rangeErr
	}
	return ret, err
}

func (cs *DiskCertificateStore) Close() error {
	return cs.ds.Close()
}

// LoadChain reads all the certificates of store into a chain, checking every link.
func LoadChain(store CertificateStore) (*certificate.Chain, error) {
	certs, err := store.List()
	if err != nil {
		return nil, err
	}
	return certificate.LoadChain(certs)
}
