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
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so it can be written as "30s" in the config file.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParamsConfig are the lottery parameters of the network.
type ParamsConfig struct {
	M    uint64  `toml:"m"`     // number of lottery indices
	K    uint64  `toml:"k"`     // distinct indices needed for a quorum
	PhiF float64 `toml:"phi_f"` // probability a party holding all the stake wins an index
}

// PartyConfig describes a simulated party.
type PartyConfig struct {
	ID    string `toml:"id"`
	Stake uint64 `toml:"stake"`
	Seed  string `toml:"seed"` // hex seed for the party key, empty to derive it from the id
	Sign  *bool  `toml:"sign"` // if false the party registers but never signs
}

// NodeConfig is the configuration file of a node.
type NodeConfig struct {
	Network       string        `toml:"network"`
	StoreDir      string        `toml:"store_dir"`
	UseSnappy     bool          `toml:"use_snappy"`
	BufferSize    int           `toml:"buffer_size"`
	RoundTimeout  Duration      `toml:"round_timeout"`
	CycleInterval Duration      `toml:"cycle_interval"`
	CacheSize     int           `toml:"cache_size"`
	LogFormat     string        `toml:"log_format"` // console, json or none
	LogLevel      string        `toml:"log_level"`  // error, warning, info or debug
	MetricsAddr   string        `toml:"metrics_addr"`
	GenesisSeed   string        `toml:"genesis_seed"` // hex seed of the genesis key
	Params        ParamsConfig  `toml:"params"`
	Parties       []PartyConfig `toml:"parties"`
}

// DefaultNodeConfig returns the configuration used when no file is given.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Network:       TestNetwork,
		StoreDir:      "stmdata",
		RoundTimeout:  Duration{DefaultRoundTimeout},
		CycleInterval: Duration{DefaultCycleInterval},
		CacheSize:     DefaultVerifiedCacheSize,
		BufferSize:    DefaultStoreBufferSize,
		LogFormat:     "console",
		LogLevel:      "error",
		Params:        ParamsConfig{M: DefaultM, K: DefaultK, PhiF: DefaultPhiF},
	}
}

// LoadNodeConfig reads the toml file at path on top of the default configuration.
func LoadNodeConfig(path string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("reading config %v: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config keys in %v: %v", path, undecoded)
	}
	return cfg, cfg.Validate()
}

// DecodeNodeConfig is the same as LoadNodeConfig, but reads the toml from a string.
func DecodeNodeConfig(data string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that can be checked without the protocol types.
func (nc NodeConfig) Validate() error {
	if nc.Network == "" {
		return fmt.Errorf("network must be set")
	}
	if nc.RoundTimeout.Duration <= 0 {
		return fmt.Errorf("round_timeout must be positive")
	}
	if nc.CycleInterval.Duration <= 0 {
		return fmt.Errorf("cycle_interval must be positive")
	}
	if _, err := ParseLogLevel(nc.LogLevel); err != nil {
		return err
	}
	if _, err := ParseLogFormat(nc.LogFormat); err != nil {
		return err
	}
	ids := make(map[string]bool, len(nc.Parties))
	for _, p := range nc.Parties {
		if ids[p.ID] {
			return fmt.Errorf("party %v listed twice", p.ID)
		}
		ids[p.ID] = true
	}
	return nil
}

// ParseLogLevel maps a config string to a log level.
func ParseLogLevel(s string) (LogFmtLevel, error) {
	switch strings.ToLower(s) {
	case "error", "":
		return LOGERROR, nil
	case "warning", "warn":
		return LOGWARNING, nil
	case "info":
		return LOGINFO, nil
	case "debug":
		return LOGDEBUG, nil
	default:
		return LOGERROR, fmt.Errorf("invalid log level %q", s)
	}
}

// ParseLogFormat maps a config string to a log type.
func ParseLogFormat(s string) (Logtype, error) {
	switch strings.ToLower(s) {
	case "console", "":
		return ZAPCONSOLE, nil
	case "json":
		return ZAPJSON, nil
	case "none":
		return NOLOG, nil
	default:
		return ZAPCONSOLE, fmt.Errorf("invalid log format %q", s)
	}
}
