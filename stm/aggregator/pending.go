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

package aggregator

import (
	"sort"
	"time"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/certificate"
	"github.com/tcrain/stm/stm/keyreg"
	"github.com/tcrain/stm/stm/multisig"
	"github.com/tcrain/stm/stm/storage"
	"github.com/tcrain/stm/stm/types"
)

// CertificatePending accumulates the verified signatures of a round, one per party.
type CertificatePending struct {
	Beacon          types.Beacon
	ProtocolMessage certificate.ProtocolMessage
	Registration    *keyreg.ClosedKeyRegistration
	Signatures      map[types.PartyID]*multisig.IndividualSignature
	hashes          map[types.PartyID]types.HashStr
	msg             []byte
}

func newCertificatePending(beacon types.Beacon, pm certificate.ProtocolMessage,
	closed *keyreg.ClosedKeyRegistration) *CertificatePending {

	return &CertificatePending{
		Beacon:          beacon,
		ProtocolMessage: pm,
		Registration:    closed,
		Signatures:      make(map[types.PartyID]*multisig.IndividualSignature),
		hashes:          make(map[types.PartyID]types.HashStr),
		msg:             pm.Hash(),
	}
}

// Message returns the bytes the parties sign.
func (cp *CertificatePending) Message() []byte {
	return cp.msg
}

// contains returns true if the party already submitted the signature with digest hash.
func (cp *CertificatePending) contains(id types.PartyID, hash types.HashStr) bool {
	return cp.hashes[id] == hash
}

// add stores sig, replacing any previous signature of the party, it returns true if one was replaced.
func (cp *CertificatePending) add(sig *multisig.IndividualSignature, hash types.HashStr) bool {
	_, replaced := cp.Signatures[sig.PartyID]
	cp.Signatures[sig.PartyID] = sig
	cp.hashes[sig.PartyID] = hash
	return replaced
}

// Sorted returns the signatures ordered by party id.
func (cp *CertificatePending) Sorted() []*multisig.IndividualSignature {
	ret := make([]*multisig.IndividualSignature, 0, len(cp.Signatures))
	for _, nxt := range cp.Signatures {
		ret = append(ret, nxt)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].PartyID < ret[j].PartyID })
	return ret
}

// DistinctIndices returns the number of distinct indices won by the accumulated signatures.
func (cp *CertificatePending) DistinctIndices() int {
	return multisig.CountDistinctIndices(cp.Sorted())
}

func (cp *CertificatePending) copy() *CertificatePending {
	ret := newCertificatePending(cp.Beacon, cp.ProtocolMessage.Copy(), cp.Registration)
	for id, nxt := range cp.Signatures {
		ret.Signatures[id] = nxt
		ret.hashes[id] = cp.hashes[id]
	}
	return ret
}

func (cp *CertificatePending) stored() *storage.PendingCertificate {
	return &storage.PendingCertificate{
		Beacon:          cp.Beacon,
		Parameters:      cp.Registration.Params(),
		ProtocolMessage: cp.ProtocolMessage,
		Signatures:      cp.Sorted(),
	}
}

// Rejection records a signature that was dropped.
type Rejection struct {
	PartyID types.PartyID
	Beacon  types.Beacon
	Reason  string
	Err     error
	At      time.Time
}

// rejectionLog keeps the latest config.MaxRejectionLog rejections.
type rejectionLog struct {
	items []Rejection
}

func (rl *rejectionLog) add(r Rejection) {
	if len(rl.items) >= config.MaxRejectionLog {
		copy(rl.items, rl.items[1:])
		rl.items = rl.items[:len(rl.items)-1]
	}
	rl.items = append(rl.items, r)
}

func (rl *rejectionLog) list() []Rejection {
	return append([]Rejection(nil), rl.items...)
}
