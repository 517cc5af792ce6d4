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

package types

import (
	"bytes"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/tcrain/stm/config"
)

// HashBytes is a blake2b-256 digest.
type HashBytes []byte

// HashStr is a digest as a string so it can be used as a map key.
type HashStr string

func GetNewHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	return h
}

// GetDomainHash returns a new hash with domain and config.HashVersion already written.
func GetDomainHash(domain byte) hash.Hash {
	h := GetNewHash()
	h.Write([]byte{domain, config.HashVersion})
	return h
}

func GetHash(v []byte) HashBytes {
	h := blake2b.Sum256(v)
	return h[:]
}

// GetDomainHashOf returns the domain separated digest of the concatenation of items.
func GetDomainHashOf(domain byte, items ...[]byte) HashBytes {
	h := GetDomainHash(domain)
	for _, nxt := range items {
		h.Write(nxt)
	}
	return h.Sum(nil)
}

func GetHashLen() int {
	return config.HashLen
}

// ZeroHash is the previous hash of the genesis certificate.
func ZeroHash() HashBytes {
	return make(HashBytes, config.HashLen)
}

func (hb HashBytes) Equal(other HashBytes) bool {
	return bytes.Equal(hb, other)
}

func (hb HashBytes) IsZero() bool {
	return len(hb) == config.HashLen && bytes.Equal(hb, ZeroHash())
}

func (hb HashBytes) String() string {
	return hex.EncodeToString(hb)
}

// Short returns the first bytes of the hash in hex, for logging.
func (hb HashBytes) Short() string {
	if len(hb) > 4 {
		return hex.EncodeToString(hb[:4])
	}
	return hex.EncodeToString(hb)
}

func (hb HashBytes) Str() HashStr {
	return HashStr(hb)
}

func (hs HashStr) Bytes() HashBytes {
	return HashBytes(hs)
}

// MarshalBinary implements encoding.BinaryMarshaler so a hash can be used as a disk store key.
func (hs HashStr) MarshalBinary() ([]byte, error) {
	return []byte(hs), nil
}

// ParseHash decodes a hex encoded digest.
func ParseHash(s string) (HashBytes, error) {
	ret, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(ret) != config.HashLen {
		return nil, ErrInvalidHashSize
	}
	return ret, nil
}
