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
	"errors"
	"fmt"
)

// registration
var ErrDuplicateParty = fmt.Errorf("party already registered")
var ErrInvalidProofOfPossession = fmt.Errorf("invalid proof of possession")
var ErrInvalidStake = fmt.Errorf("invalid stake")
var ErrInvalidPartyID = fmt.Errorf("invalid party id")
var ErrRegistryNotOpen = fmt.Errorf("registry not open")
var ErrEmptyRegistry = fmt.Errorf("no parties registered")

var registrationErrors = []error{ErrDuplicateParty, ErrInvalidProofOfPossession, ErrInvalidStake,
	ErrInvalidPartyID, ErrRegistryNotOpen, ErrEmptyRegistry}

// signatures
var ErrInvalidLotteryClaim = fmt.Errorf("invalid lottery claim")
var ErrInvalidMerklePath = fmt.Errorf("invalid merkle path")
var ErrUnknownParty = fmt.Errorf("unknown party")
var ErrInvalidSig = fmt.Errorf("invalid sig")
var ErrInvalidMultiSig = fmt.Errorf("invalid multi-signature")
var ErrKeyMismatch = fmt.Errorf("signing key does not match the registered key")

var signatureErrors = []error{ErrInvalidLotteryClaim, ErrInvalidMerklePath, ErrUnknownParty,
	ErrInvalidSig, ErrInvalidMultiSig, ErrKeyMismatch}

// ErrQuorumNotReached is a normal round outcome, not enough distinct indices were won yet.
var ErrQuorumNotReached = fmt.Errorf("quorum not reached")

// ErrChainIntegrity is fatal, the certificate chain must not be extended after it is returned.
var ErrChainIntegrity = fmt.Errorf("certificate chain integrity error")

// certificates
var ErrInvalidGenesis = fmt.Errorf("invalid genesis certificate")
var ErrCertificateNotFound = fmt.Errorf("certificate not found")

// state machine
var ErrInvalidTransition = fmt.Errorf("invalid state transition")
var ErrStaleBeacon = fmt.Errorf("beacon is not newer than the current one")
var ErrRoundCancelled = fmt.Errorf("round cancelled")
var ErrRoundExpired = fmt.Errorf("round deadline passed")

// params and encoding
var ErrInvalidParams = fmt.Errorf("invalid protocol parameters")
var ErrInvalidHashSize = fmt.Errorf("invalid hash size")
var ErrDeserialize = fmt.Errorf("error deserialize")
var ErrInvalidKeySize = fmt.Errorf("invalid key size")
var ErrInvalidPub = fmt.Errorf("invalid pub")

// storage
var ErrCorruptRecord = fmt.Errorf("corrupt record")
var ErrStoreClosed = fmt.Errorf("store closed")
var ErrNotFound = fmt.Errorf("not found")

func isOneOf(err error, list []error) bool {
	for _, nxt := range list {
		if errors.Is(err, nxt) {
			return true
		}
	}
	return false
}

// IsRegistrationError returns true if err is caused by a rejected registration.
func IsRegistrationError(err error) bool {
	return isOneOf(err, registrationErrors)
}

// IsSignatureError returns true if err is caused by a rejected individual or multi-signature.
func IsSignatureError(err error) bool {
	return isOneOf(err, signatureErrors)
}
