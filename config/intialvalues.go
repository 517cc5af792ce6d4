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
package config

// RandID is the seed used to generate reproducible keys for tests and local simulations.
// It must never be used to generate keys for a real deployment.
const RandID = "0123456789abcdefghijklmnopqrstuv"

var InitRandBytes [32]byte

func init() {
	if len(RandID) != 32 {
		panic(len(RandID))
	}
	if copy(InitRandBytes[:], RandID) != 32 {
		panic("invalid copy")
	}
}

const (
	PartyKeySeed   = 98766 // nonce offset for party keys generated from InitRandBytes
	GenesisKeySeed = 9821  // nonce offset for the genesis key generated from InitRandBytes
)
