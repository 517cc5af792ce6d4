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
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/certificate"
	"github.com/tcrain/stm/stm/multisig"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

var keysBucket = []byte("verification_keys")
var pendingBucket = []byte("pending")
var pendingKey = []byte("current")

// RegisteredKey is the registration of a party for an epoch.
type RegisteredKey struct {
	ID    types.PartyID
	Stake types.Stake
	Key   bls.VerificationKeyPoP
}

// PendingCertificate is the state of a round waiting for a quorum.
type PendingCertificate struct {
	Beacon          types.Beacon
	Parameters      types.ProtocolParameters
	ProtocolMessage certificate.ProtocolMessage
	Signatures      []*multisig.IndividualSignature // ordered by party id
}

func (pc *PendingCertificate) MarshalBinary() ([]byte, error) {
	writer := bytes.NewBuffer(nil)
	if _, err := pc.Beacon.Encode(writer); err != nil {
		return nil, err
	}
	if _, err := pc.Parameters.Encode(writer); err != nil {
		return nil, err
	}
	if _, err := pc.ProtocolMessage.Encode(writer); err != nil {
		return nil, err
	}
	if _, err := utils.EncodeUvarint(uint64(len(pc.Signatures)), writer); err != nil {
		return nil, err
	}
	for _, nxt := range pc.Signatures {
		if _, err := nxt.Encode(writer); err != nil {
			return nil, err
		}
	}
	return writer.Bytes(), nil
}

func UnmarshalPendingCertificate(b []byte) (*PendingCertificate, error) {
	reader := bytes.NewReader(b)
	ret := &PendingCertificate{}
	err := ret.decode(reader)
	if err == nil {
		err = utils.CheckDone(reader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDeserialize, err)
	}
	return ret, nil
}

func (pc *PendingCertificate) decode(reader *bytes.Reader) error {
	if err := pc.Beacon.Decode(reader); err != nil {
		return err
	}
	if _, err := pc.Parameters.Decode(reader); err != nil {
		return err
	}
	if err := pc.ProtocolMessage.Decode(reader); err != nil {
		return err
	}
	count, err := utils.ReadUvarint(reader)
	if err != nil {
		return err
	}
	if count > 1<<20 {
		return types.ErrDeserialize
	}
	for i := uint64(0); i < count; i++ {
		sig := &multisig.IndividualSignature{}
		if err := sig.Decode(reader); err != nil {
			return err
		}
		pc.Signatures = append(pc.Signatures, sig)
	}
	return nil
}

// BoltStore keeps the registered keys of each epoch and the pending certificate in a bbolt database.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, nxt := range [][]byte{keysBucket, pendingBucket} {
			if _, err := tx.CreateBucketIfNotExists(nxt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if err2 := db.Close(); err2 != nil {
			return nil, err2
		}
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func registrationKey(epoch types.Epoch, id types.PartyID) []byte {
	return append(utils.Uint64ToBytes(uint64(epoch)), string(id)...)
}

// SaveRegistration stores the keys of the parties registered for epoch, replacing any previous ones.
func (bs *BoltStore) SaveRegistration(epoch types.Epoch, keys []RegisteredKey) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(keysBucket)
		if err := deletePrefix(b, utils.Uint64ToBytes(uint64(epoch))); err != nil {
			return err
		}
		for _, nxt := range keys {
			vkp, err := nxt.Key.MarshalBinary()
			if err != nil {
				return err
			}
			if err := b.Put(registrationKey(epoch, nxt.ID), utils.JoinBytes(utils.Uint64ToBytes(uint64(nxt.Stake)), vkp)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRegistration returns the keys registered for epoch ordered by party id, or ErrNotFound.
func (bs *BoltStore) GetRegistration(epoch types.Epoch) ([]RegisteredKey, error) {
	var ret []RegisteredKey
	prefix := utils.Uint64ToBytes(uint64(epoch))
	err := bs.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(keysBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if len(v) < 8 {
				return types.ErrCorruptRecord
			}
			vkp, err := bls.UnmarshalVerificationKeyPoP(v[8:])
			if err != nil {
				return fmt.Errorf("%w: %v", types.ErrCorruptRecord, err)
			}
			ret = append(ret, RegisteredKey{
				ID:    types.PartyID(k[len(prefix):]),
				Stake: types.Stake(config.Encoding.Uint64(v[:8])),
				Key:   vkp,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%w: registration of epoch %v", types.ErrNotFound, epoch)
	}
	return ret, nil
}

// PruneRegistrations deletes the registrations of the epochs before epoch.
func (bs *BoltStore) PruneRegistrations(before types.Epoch) error {
	limit := utils.Uint64ToBytes(uint64(before))
	return bs.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(keysBucket).Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func deletePrefix(b *bolt.Bucket, prefix []byte) error {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, utils.CopyBuf(k))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (bs *BoltStore) SavePending(pc *PendingCertificate) error {
	buff, err := pc.MarshalBinary()
	if err != nil {
		return err
	}
	return bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Put(pendingKey, buff)
	})
}

// GetPending returns the pending certificate, or nil if there is none.
func (bs *BoltStore) GetPending() (*PendingCertificate, error) {
	var ret *PendingCertificate
	err := bs.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(pendingBucket).Get(pendingKey)
		if v == nil {
			return nil
		}
		var err error
		ret, err = UnmarshalPendingCertificate(v)
		return err
	})
	return ret, err
}

func (bs *BoltStore) RemovePending() error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Delete(pendingKey)
	})
}

func (bs *BoltStore) Close() error {
	return bs.db.Close()
}
