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
package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tcrain/stm/config"
)

func TestLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := ReplaceCore(core)
	defer restore()

	Debugf("not %v", "shown")
	Infof("round %v", 1)
	Warning("dropped")
	Errorf("bad %v", "link")
	Infow("issued", "epoch", 3)

	entries := logs.All()
	assert.Equal(t, 4, len(entries))
	assert.Equal(t, "round 1", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, int64(3), entries[3].ContextMap()["epoch"])
}

func TestSetup(t *testing.T) {
	defer Setup(config.LoggingType, config.LoggingFmtLevel)
	for _, lt := range []config.Logtype{config.ZAPCONSOLE, config.ZAPJSON, config.NOLOG} {
		Setup(lt, config.LOGDEBUG)
		Debugf("setup %v", lt)
	}
	assert.Panics(t, func() { Setup(config.Logtype(99), config.LOGINFO) })
	SetLevel(config.LOGWARNING)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
}
