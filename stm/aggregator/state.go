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
Package aggregator drives the rounds producing the certificates of the chain.
A round moves through Idle, RegistrationOpen, SignatureCollection, QuorumReached and
CertificateIssued before returning to Idle. Nothing is appended to the chain before
IssueCertificate, so a round can be cancelled from any state.
*/
package aggregator

import (
	"errors"
	"fmt"

	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/types"
)

type State int

const (
	Idle State = iota
	RegistrationOpen
	SignatureCollection
	QuorumReached
	CertificateIssued
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case RegistrationOpen:
		return "RegistrationOpen"
	case SignatureCollection:
		return "SignatureCollection"
	case QuorumReached:
		return "QuorumReached"
	case CertificateIssued:
		return "CertificateIssued"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BeaconSource is the view of the external ledger.
type BeaconSource interface {
	CurrentBeacon() (types.Beacon, error)
	// ImmutableDigest returns the digest of the ledger data a certificate for beacon signs.
	ImmutableDigest(beacon types.Beacon) (types.HashBytes, error)
}

// RegistrationSource gives the stake distribution and keys of the parties registering for a round.
type RegistrationSource interface {
	Registrations(beacon types.Beacon) (types.StakeDistribution, map[types.PartyID]bls.VerificationKeyPoP, error)
}

// Reasons passed to Cancel and recorded in the stats.
const (
	ReasonSuperseded = "superseded"
	ReasonExpired    = "expired"
	ReasonCancelled  = "cancelled"
	ReasonIntegrity  = "chain_integrity"
)

var reasonErrors = []error{types.ErrInvalidLotteryClaim, types.ErrInvalidMerklePath, types.ErrUnknownParty,
	types.ErrInvalidSig, types.ErrInvalidMultiSig, types.ErrKeyMismatch, types.ErrDeserialize}

// reasonOf returns a short label for the cause of err.
func reasonOf(err error) string {
	for _, nxt := range reasonErrors {
		if errors.Is(err, nxt) {
			return nxt.Error()
		}
	}
	return "other"
}
