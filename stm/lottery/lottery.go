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
Package lottery decides which of the m lottery indices a party wins.
A party with relative stake w wins an index with probability phi(w) = 1 - (1 - phi_f)^w,
the index is won when the value derived from the party's signature on that index is below phi(w).
Everything is computed with big.Float at a fixed precision so that all platforms agree.
*/
package lottery

import (
	"math/big"

	"github.com/ALTree/bigfloat"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/types"
	"github.com/tcrain/stm/stm/utils"
)

func newFloat() *big.Float {
	return new(big.Float).SetPrec(config.LotteryPrecision).SetMode(big.ToNearestEven)
}

// Phi returns 1 - (1 - phiF)^(stake/total).
// It is 0 for a zero stake and 1 when phiF == 1 and stake > 0.
func Phi(phiF float64, stake, total types.Stake) *big.Float {
	if stake == 0 || total == 0 {
		return newFloat()
	}
	one := newFloat().SetInt64(1)
	if phiF >= 1 {
		return one
	}
	base := newFloat().Sub(one, newFloat().SetFloat64(phiF))
	if stake >= total {
		return newFloat().Sub(one, base)
	}
	w := newFloat().Quo(newFloat().SetUint64(uint64(stake)), newFloat().SetUint64(uint64(total)))
	pow := bigfloat.Pow(base, w)
	return newFloat().Sub(one, pow)
}

// Evaluate maps the signature of an index to a value in [0, 1).
// The value is the first 8 bytes (big endian) of a domain separated hash of the index and signature, over 2^64.
func Evaluate(index types.LotteryIndex, sigma []byte) *big.Float {
	h := types.GetDomainHashOf(config.DomainLottery, utils.Uint64ToBytes(uint64(index)), sigma)
	v := newFloat().SetUint64(config.Encoding.Uint64(h[:8]))
	return v.SetMantExp(v, -64)
}

// Eligible returns true if the evaluation of sigma at index is below threshold.
func Eligible(threshold *big.Float, index types.LotteryIndex, sigma []byte) bool {
	return Evaluate(index, sigma).Cmp(threshold) < 0
}

// Lottery evaluates indices for one party.
type Lottery struct {
	params    types.ProtocolParameters
	threshold *big.Float
}

// New creates the lottery of a party with stake out of total.
func New(params types.ProtocolParameters, stake, total types.Stake) *Lottery {
	return &Lottery{params: params, threshold: Phi(params.PhiF, stake, total)}
}

// Threshold returns phi of the party.
func (l *Lottery) Threshold() *big.Float {
	return newFloat().Set(l.threshold)
}

// Wins returns true if index is in range and sigma wins it.
func (l *Lottery) Wins(index types.LotteryIndex, sigma []byte) bool {
	if uint64(index) >= l.params.M {
		return false
	}
	return Eligible(l.threshold, index, sigma)
}

// Wins is the same as New(params, stake, total).Wins(index, sigma).
func Wins(params types.ProtocolParameters, stake, total types.Stake, index types.LotteryIndex, sigma []byte) bool {
	return New(params, stake, total).Wins(index, sigma)
}
