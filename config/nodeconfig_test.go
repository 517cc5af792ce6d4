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

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testConfig = `
network = "devnet"
store_dir = "/tmp/stm"
use_snappy = true
round_timeout = "30s"
log_level = "info"

[params]
m = 100
k = 50
phi_f = 0.2

[[parties]]
id = "A"
stake = 700

[[parties]]
id = "B"
stake = 200
sign = false
`

func TestDecodeNodeConfig(t *testing.T) {
	cfg, err := DecodeNodeConfig(testConfig)
	assert.Nil(t, err)
	assert.Equal(t, "devnet", cfg.Network)
	assert.True(t, cfg.UseSnappy)
	assert.Equal(t, 30*time.Second, cfg.RoundTimeout.Duration)
	assert.Equal(t, DefaultCycleInterval, cfg.CycleInterval.Duration)
	assert.Equal(t, ParamsConfig{M: 100, K: 50, PhiF: 0.2}, cfg.Params)
	assert.Equal(t, 2, len(cfg.Parties))
	assert.Nil(t, cfg.Parties[0].Sign)
	assert.False(t, *cfg.Parties[1].Sign)

	lvl, err := ParseLogLevel(cfg.LogLevel)
	assert.Nil(t, err)
	assert.Equal(t, LOGINFO, lvl)
}

func TestLoadNodeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	assert.Nil(t, os.WriteFile(path, []byte(testConfig), 0644))
	cfg, err := LoadNodeConfig(path)
	assert.Nil(t, err)
	assert.Equal(t, uint64(50), cfg.Params.K)

	assert.Nil(t, os.WriteFile(path, []byte(testConfig+"\nunknown_key = 1\n"), 0644))
	_, err = LoadNodeConfig(path)
	assert.NotNil(t, err)

	_, err = LoadNodeConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NotNil(t, err)
}

func TestNodeConfigValidate(t *testing.T) {
	cfg := DefaultNodeConfig()
	assert.Nil(t, cfg.Validate())

	bad := cfg
	bad.Network = ""
	assert.NotNil(t, bad.Validate())

	bad = cfg
	bad.RoundTimeout = Duration{}
	assert.NotNil(t, bad.Validate())

	bad = cfg
	bad.LogLevel = "loud"
	assert.NotNil(t, bad.Validate())

	bad = cfg
	bad.Parties = []PartyConfig{{ID: "A", Stake: 1}, {ID: "A", Stake: 2}}
	assert.NotNil(t, bad.Validate())
}

func TestExampleNodeConfig(t *testing.T) {
	cfg, err := LoadNodeConfig(filepath.Join("..", "cmd", "stmnode", "node.toml"))
	assert.Nil(t, err)
	assert.Equal(t, 3, len(cfg.Parties))
	assert.Equal(t, 10*time.Minute, cfg.RoundTimeout.Duration)
	assert.Equal(t, ParamsConfig{M: DefaultM, K: DefaultK, PhiF: DefaultPhiF}, cfg.Params)
}
