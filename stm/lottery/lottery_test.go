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

package lottery

import (
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tcrain/stm/stm/types"
)

func toFloat(f *big.Float) float64 {
	ret, _ := f.Float64()
	return ret
}

func TestPhi(t *testing.T) {
	assert.Equal(t, 0, Phi(0.2, 0, 1000).Sign())
	assert.InDelta(t, 0.2, toFloat(Phi(0.2, 1000, 1000)), 1e-12)
	assert.Equal(t, float64(1), toFloat(Phi(1, 1, 1000)))

	for _, nxt := range []struct {
		phiF  float64
		stake types.Stake
	}{{0.2, 700}, {0.2, 100}, {0.65, 1}, {0.65, 999}} {
		expected := 1 - math.Pow(1-nxt.phiF, float64(nxt.stake)/1000)
		assert.InDelta(t, expected, toFloat(Phi(nxt.phiF, nxt.stake, 1000)), 1e-12)
	}
}

func TestPhiMonotone(t *testing.T) {
	prev := Phi(0.2, 0, 1000)
	for stake := types.Stake(1); stake <= 1000; stake += 37 {
		next := Phi(0.2, stake, 1000)
		assert.True(t, next.Cmp(prev) > 0)
		prev = next
	}
}

// phi(w1 + w2) = 1 - (1 - phi(w1))(1 - phi(w2)), so splitting stake does not change the chance of winning
func TestPhiIndependence(t *testing.T) {
	one := big.NewFloat(1)
	for _, split := range [][2]types.Stake{{300, 400}, {1, 699}, {350, 350}} {
		whole := Phi(0.2, split[0]+split[1], 1000)
		a := new(big.Float).Sub(one, Phi(0.2, split[0], 1000))
		b := new(big.Float).Sub(one, Phi(0.2, split[1], 1000))
		combined := new(big.Float).Sub(one, new(big.Float).Mul(a, b))
		assert.InDelta(t, toFloat(whole), toFloat(combined), 1e-15)
	}
}

func TestEvaluate(t *testing.T) {
	sigma := []byte("signature")
	v := Evaluate(3, sigma)
	assert.True(t, v.Sign() >= 0)
	assert.True(t, v.Cmp(big.NewFloat(1)) < 0)

	// deterministic
	assert.Equal(t, 0, v.Cmp(Evaluate(3, sigma)))
	// depends on the index and signature
	assert.NotEqual(t, 0, v.Cmp(Evaluate(4, sigma)))
	assert.NotEqual(t, 0, v.Cmp(Evaluate(3, []byte("other"))))
}

func TestWins(t *testing.T) {
	params := types.ProtocolParameters{M: 100, K: 50, PhiF: 0.2}

	// zero stake never wins, phi_f == 1 always wins
	full := types.ProtocolParameters{M: 100, K: 50, PhiF: 1}
	for i := types.LotteryIndex(0); i < 100; i++ {
		sigma := []byte(fmt.Sprint(i))
		assert.False(t, Wins(params, 0, 1000, i, sigma))
		assert.True(t, Wins(full, 1, 1000, i, sigma))
	}

	// out of range index never wins
	assert.False(t, Wins(full, 1, 1000, 100, []byte("x")))

	// the win rate follows phi
	l := New(params, 700, 1000)
	var count int
	trials := 20000
	for i := 0; i < trials; i++ {
		if l.Wins(types.LotteryIndex(i%100), []byte(fmt.Sprint(i))) {
			count++
		}
	}
	expected := toFloat(l.Threshold())
	assert.InDelta(t, expected, float64(count)/float64(trials), 0.02)
}
