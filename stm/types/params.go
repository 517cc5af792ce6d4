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
	"fmt"
	"io"
	"math"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/utils"
)

// ProtocolParameters are the lottery parameters, they are fixed for a round.
type ProtocolParameters struct {
	M    uint64  // number of lottery indices
	K    uint64  // number of distinct won indices needed for a quorum
	PhiF float64 // probability that a party holding all the stake wins a given index
}

// ParamsFromConfig converts the node config parameters.
func ParamsFromConfig(pc config.ParamsConfig) ProtocolParameters {
	return ProtocolParameters{M: pc.M, K: pc.K, PhiF: pc.PhiF}
}

// DefaultParams returns the default parameters from the config package.
func DefaultParams() ProtocolParameters {
	return ProtocolParameters{M: config.DefaultM, K: config.DefaultK, PhiF: config.DefaultPhiF}
}

// Validate checks 0 < k <= m and 0 < phi_f <= 1.
func (pp ProtocolParameters) Validate() error {
	if pp.K == 0 || pp.M == 0 || pp.K > pp.M {
		return fmt.Errorf("%w: need 0 < k <= m, got k=%v m=%v", ErrInvalidParams, pp.K, pp.M)
	}
	if math.IsNaN(pp.PhiF) || pp.PhiF <= 0 || pp.PhiF > 1 {
		return fmt.Errorf("%w: need 0 < phi_f <= 1, got %v", ErrInvalidParams, pp.PhiF)
	}
	return nil
}

func (pp ProtocolParameters) String() string {
	return fmt.Sprintf("{m: %v, k: %v, phi_f: %v}", pp.M, pp.K, pp.PhiF)
}

// Encode writes the fixed width encoding of the parameters, phi_f is written as its IEEE 754 bits.
func (pp ProtocolParameters) Encode(writer io.Writer) (n int, err error) {
	for _, nxt := range []uint64{pp.M, pp.K, math.Float64bits(pp.PhiF)} {
		var n1 int
		n1, err = utils.EncodeUint64(nxt, writer)
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (pp *ProtocolParameters) Decode(reader io.Reader) (n int, err error) {
	var vals [3]uint64
	for i := range vals {
		var n1 int
		vals[i], n1, err = utils.ReadUint64(reader)
		n += n1
		if err != nil {
			return
		}
	}
	pp.M, pp.K, pp.PhiF = vals[0], vals[1], math.Float64frombits(vals[2])
	return
}

func (pp ProtocolParameters) MarshalBinary() ([]byte, error) {
	writer := bytes.NewBuffer(nil)
	_, err := pp.Encode(writer)
	return writer.Bytes(), err
}
