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
General configuration settings.
Values that are part of the byte layout of hashes and signed messages are constants,
anything a node operator may change is loaded from a NodeConfig file (see nodeconfig.go).
*/
package config

import (
	"encoding/binary"
	"time"
)

type Logtype int

const (
	ZAPCONSOLE Logtype = iota // human readable zap output
	ZAPJSON                   // json zap output, for log collectors
	NOLOG                     // discard all logs
)

type LogFmtLevel int

const (
	LOGERROR LogFmtLevel = iota
	LOGWARNING
	LOGINFO
	LOGDEBUG
)

// for logging, the cmd tools override these from the node config
var (
	LoggingType     = ZAPCONSOLE
	LoggingFmtLevel = LOGERROR
)

const (
	// Byte layout, changing any of these changes every hash and signed message
	HashVersion     byte = 1       // prefixed to every domain separated digest
	ProtocolVersion      = "0.1.0" // recorded in certificate metadata
	HashLen              = 32      // blake2b-256

	// Domain tags for the digests
	DomainMerkleLeaf    byte = 0x00
	DomainMerkleNode    byte = 0x01
	DomainMerkleEmpty   byte = 0x02
	DomainLottery       byte = 0x03
	DomainCertificate   byte = 0x04
	DomainProtocolMsg   byte = 0x05
	DomainLotteryIndex  byte = 0x06
	DomainPoP           byte = 0x07
	DomainAggregateKey  byte = 0x08
	DomainIndividualSig byte = 0x09
	DomainMultiSig      byte = 0x0a

	// Lottery
	LotteryPrecision = 256 // bits of precision used when evaluating phi

	// Default protocol parameters, from the mainnet configuration of the original deployment
	DefaultM    = 100
	DefaultK    = 5
	DefaultPhiF = 0.65

	// Aggregator
	DefaultRoundTimeout      = 10 * time.Minute // a round not reaching quorum by then is abandoned
	DefaultCycleInterval     = 5 * time.Second  // how often the runtime polls the beacon source
	DefaultVerifiedCacheSize = 4096             // number of individual signature verification results kept
	MaxRejectionLog          = 1000             // dropped signatures kept for inspection

	// Storage
	DefaultStoreBufferSize = 0 // bytes buffered before writing the certificate log, 0 for unbuffered
	MaxRecordSize          = 1 << 26

	// For tests
	TestNetwork = "testnet"
)

var Encoding = binary.BigEndian // encoding for marshalling, all integers in hashed data are big endian
