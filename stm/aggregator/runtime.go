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

package aggregator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/auth/bls"
	"github.com/tcrain/stm/stm/certificate"
	"github.com/tcrain/stm/stm/keyreg"
	"github.com/tcrain/stm/stm/logging"
	"github.com/tcrain/stm/stm/multisig"
	"github.com/tcrain/stm/stm/stats"
	"github.com/tcrain/stm/stm/storage"
	"github.com/tcrain/stm/stm/types"
)

// RoundStore persists the registrations and the pending certificate so a round survives a restart.
// *storage.BoltStore implements it.
type RoundStore interface {
	SaveRegistration(epoch types.Epoch, keys []storage.RegisteredKey) error
	GetRegistration(epoch types.Epoch) ([]storage.RegisteredKey, error)
	SavePending(pc *storage.PendingCertificate) error
	GetPending() (*storage.PendingCertificate, error)
	RemovePending() error
}

// Config of a Runtime, only Params is required.
type Config struct {
	Params        types.ProtocolParameters
	RoundTimeout  time.Duration // a round without quorum by then is abandoned
	CycleInterval time.Duration // period of Run
	CacheSize     int           // number of verified signature digests remembered
	Clock         clock.Clock
	Stats         stats.StatsInterface
	Store         storage.CertificateStore   // in memory if nil
	Rounds        RoundStore                 // optional
	Registrations RegistrationSource         // optional, polled by Cycle while registration is open
	Genesis       *certificate.GenesisSigner // signs the first certificate of an empty chain
}

// SetDefaults fills the unset fields, NewRuntime calls it on its copy of the config.
func (cfg *Config) SetDefaults() {
	if cfg.RoundTimeout <= 0 {
		cfg.RoundTimeout = config.DefaultRoundTimeout
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = config.DefaultCycleInterval
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = config.DefaultVerifiedCacheSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NopStats{}
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemCertificateStore()
	}
}

type round struct {
	beacon   types.Beacon
	registry *keyreg.KeyRegistry
	pending  *CertificatePending
	msig     *multisig.MultiSignature
	cert     *certificate.Certificate
	openedAt time.Time
	deadline time.Time
}

// registeredKeys returns the keys of the registry in the form saved by the RoundStore.
func (rd *round) registeredKeys() []storage.RegisteredKey {
	regs := rd.registry.Registrations()
	ret := make([]storage.RegisteredKey, len(regs))
	for i, nxt := range regs {
		ret[i] = storage.RegisteredKey{ID: nxt.ID, Stake: nxt.Stake, Key: nxt.Key}
	}
	return ret
}

// Runtime is the state machine of the aggregator.
// All its methods are safe for concurrent use, signatures are verified outside the lock.
type Runtime struct {
	mutex      sync.RWMutex
	cfg        Config
	beacons    BeaconSource
	chain      *certificate.Chain
	verified   *lru.Cache // digests of individual signatures that passed verification
	state      State
	round      *round
	last       *types.Beacon // beacon of the latest round opened or certified
	rejections rejectionLog
}

// NewRuntime loads the chain from cfg.Store and resumes the pending round of cfg.Rounds if there is one.
func NewRuntime(cfg Config, beacons BeaconSource) (*Runtime, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	chain, err := storage.LoadChain(cfg.Store)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		cfg:      cfg,
		beacons:  beacons,
		chain:    chain,
		verified: cache,
	}
	if tip := chain.Tip(); tip != nil {
		b := tip.Beacon
		r.last = &b
	}
	if cfg.Rounds != nil {
		if err := r.recoverPending(); err != nil {
			return nil, err
		}
	}
	logging.Infof("aggregator runtime started with %v certificates, params %v", chain.Len(), cfg.Params)
	return r, nil
}

func (r *Runtime) State() State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.state
}

// Beacon returns the beacon of the current round, false if Idle.
func (r *Runtime) Beacon() (types.Beacon, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.round == nil {
		return types.Beacon{}, false
	}
	return r.round.beacon, true
}

// Pending returns a copy of the pending certificate, nil before the registration is closed.
func (r *Runtime) Pending() *CertificatePending {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.round == nil || r.round.pending == nil {
		return nil
	}
	return r.round.pending.copy()
}

// MultiSignature returns the aggregate of the round once the quorum is reached.
func (r *Runtime) MultiSignature() *multisig.MultiSignature {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.round == nil {
		return nil
	}
	return r.round.msig
}

func (r *Runtime) Chain() *certificate.Chain {
	return r.chain
}

// Rejections returns the latest dropped signatures, oldest first.
func (r *Runtime) Rejections() []Rejection {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.rejections.list()
}

func (r *Runtime) lastBeacon() (types.Beacon, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.last == nil {
		return types.Beacon{}, false
	}
	return *r.last, true
}

// OpenRound starts the registration of the round of beacon with a fresh registry.
// A round in progress is cancelled if beacon is newer than its own, beacon must be newer than
// the last round opened or certified.
func (r *Runtime) OpenRound(beacon types.Beacon) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != Idle {
		if !beacon.IsNewerThan(r.round.beacon) {
			return fmt.Errorf("%w: open %v in state %v", types.ErrInvalidTransition, beacon, r.state)
		}
		r.cancelLocked(ReasonSuperseded)
	}
	if r.last != nil && !beacon.IsNewerThan(*r.last) {
		return fmt.Errorf("%w: %v, last %v", types.ErrStaleBeacon, beacon, *r.last)
	}
	registry, err := keyreg.NewKeyRegistry(r.cfg.Params)
	if err != nil {
		return err
	}
	now := r.cfg.Clock.Now()
	r.round = &round{
		beacon:   beacon,
		registry: registry,
		openedAt: now,
		deadline: now.Add(r.cfg.RoundTimeout),
	}
	r.last = &beacon
	r.state = RegistrationOpen
	r.cfg.Stats.RoundOpened()
	logging.Infof("opened round %v", beacon)
	return nil
}

// Register adds a party to the registry of the current round.
func (r *Runtime) Register(id types.PartyID, stake types.Stake, vkp bls.VerificationKeyPoP) error {
	r.mutex.RLock()
	rd, state := r.round, r.state
	r.mutex.RUnlock()
	if state != RegistrationOpen {
		return fmt.Errorf("%w: state %v", types.ErrRegistryNotOpen, state)
	}
	// the proof of possession is checked without holding the runtime lock,
	// a registry closed meanwhile refuses with ErrRegistryNotOpen
	if err := rd.registry.Register(id, stake, vkp); err != nil {
		logging.Warningf("registration of %v for %v refused: %v", id, rd.beacon, err)
		return err
	}
	r.cfg.Stats.Registered()
	return nil
}

// CloseRegistration builds the protocol message of the round and starts collecting signatures.
// The first round of an empty chain signs the genesis protocol message.
func (r *Runtime) CloseRegistration() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != RegistrationOpen {
		return fmt.Errorf("%w: close registration in state %v", types.ErrInvalidTransition, r.state)
	}
	if err := r.checkExpiredLocked(); err != nil {
		return err
	}
	rd := r.round
	closed, err := rd.registry.Close()
	if err != nil {
		return err
	}
	avk := closed.AggregateVerificationKey()
	var pm certificate.ProtocolMessage
	if tip := r.chain.Tip(); tip == nil {
		pm = certificate.GenesisProtocolMessage(avk)
	} else {
		digest, err := r.beacons.ImmutableDigest(rd.beacon)
		if err != nil {
			// the registry is closed, the round cannot continue
			r.cancelLocked(ReasonCancelled)
			return fmt.Errorf("digest of %v: %w", rd.beacon, err)
		}
		pm = certificate.NewProtocolMessage(tip.Hash, avk.Hash(), digest)
	}
	rd.pending = newCertificatePending(rd.beacon, pm, closed)
	if r.cfg.Rounds != nil {
		if err := r.cfg.Rounds.SaveRegistration(rd.beacon.Epoch, rd.registeredKeys()); err != nil {
			logging.Warningf("saving registration of %v: %v", rd.beacon, err)
		}
		r.savePendingLocked()
	}
	r.state = SignatureCollection
	logging.Infof("collecting signatures for %v, message %v", rd.beacon, pm)
	return nil
}

// SubmitSignature adds a signature of the pending certificate.
// Submitting the same signature again does nothing, a different signature of the same party
// replaces the previous one. An invalid signature is recorded in the rejection log and its
// error returned. The state becomes QuorumReached as soon as the signatures aggregate.
func (r *Runtime) SubmitSignature(sig *multisig.IndividualSignature) error {
	r.mutex.RLock()
	rd, state := r.round, r.state
	r.mutex.RUnlock()
	if state != SignatureCollection && state != QuorumReached {
		return fmt.Errorf("%w: signature of %v in state %v", types.ErrInvalidTransition, sig.PartyID, state)
	}

	pending := rd.pending
	digest, err := sig.Hash(pending.Message())
	if err != nil {
		r.reject(rd, sig.PartyID, err)
		return err
	}
	hash := digest.Str()
	if !r.verified.Contains(hash) {
		if err := multisig.VerifyIndividual(sig, pending.Message(), pending.Registration); err != nil {
			r.reject(rd, sig.PartyID, err)
			return err
		}
		r.verified.Add(hash, true)
	}
	if len(sig.Sigmas) == 0 {
		// valid but adds no index
		logging.Debugf("party %v won no index for %v", sig.PartyID, rd.beacon)
		return nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.round != rd || (r.state != SignatureCollection && r.state != QuorumReached) {
		return fmt.Errorf("%w: round %v ended", types.ErrRoundCancelled, rd.beacon)
	}
	if err := r.checkExpiredLocked(); err != nil {
		return err
	}
	if pending.contains(sig.PartyID, hash) {
		return nil
	}
	if pending.add(sig, hash) {
		logging.Infof("party %v replaced its signature for %v", sig.PartyID, rd.beacon)
	}
	r.cfg.Stats.SignatureAccepted()
	if r.cfg.Rounds != nil {
		r.savePendingLocked()
	}
	if r.state == SignatureCollection {
		r.aggregateLocked()
	}
	return nil
}

func (r *Runtime) reject(rd *round, id types.PartyID, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.rejections.add(Rejection{
		PartyID: id,
		Beacon:  rd.beacon,
		Reason:  reasonOf(err),
		Err:     err,
		At:      r.cfg.Clock.Now(),
	})
	r.cfg.Stats.SignatureRejected(reasonOf(err))
	logging.Warningf("dropped signature of %v for %v: %v", id, rd.beacon, err)
}

func (r *Runtime) aggregateLocked() {
	rd := r.round
	msig, err := multisig.Aggregate(rd.pending.Sorted(), rd.pending.Message(), rd.pending.Registration)
	switch {
	case err == nil:
		rd.msig = msig
		r.state = QuorumReached
		r.cfg.Stats.QuorumReached(r.cfg.Clock.Since(rd.openedAt), len(msig.Leaves))
		logging.Infof("quorum reached for %v with %v parties", rd.beacon, len(msig.Leaves))
	case errors.Is(err, types.ErrQuorumNotReached):
		logging.Debugf("round %v: %v", rd.beacon, err)
	default:
		logging.Errorf("aggregating signatures of %v: %v", rd.beacon, err)
	}
}

// IssueCertificate seals the certificate of the round and appends it to the chain.
// With an empty chain the genesis certificate is issued instead, this does not need a quorum.
// A chain integrity error abandons the round and must be reported to the operator.
func (r *Runtime) IssueCertificate() (*certificate.Certificate, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rd := r.round
	genesis := r.chain.Len() == 0
	switch {
	case r.state == QuorumReached:
	case genesis && r.state == SignatureCollection:
	default:
		return nil, fmt.Errorf("%w: issue certificate in state %v", types.ErrInvalidTransition, r.state)
	}

	now := r.cfg.Clock.Now()
	var cert *certificate.Certificate
	var err error
	if genesis {
		if r.cfg.Genesis == nil {
			return nil, fmt.Errorf("%w: empty chain and no genesis key", types.ErrInvalidGenesis)
		}
		closed := rd.pending.Registration
		cert, err = r.cfg.Genesis.NewGenesisCertificate(rd.beacon, closed.Params(), closed.AggregateVerificationKey(), now)
	} else {
		cert, err = certificate.Seal(r.chain.Tip(), rd.beacon, rd.pending.ProtocolMessage, rd.pending.Registration,
			rd.msig, rd.openedAt, now)
	}
	if err != nil {
		return nil, err
	}
	if err := r.appendLocked(cert); err != nil {
		return nil, err
	}
	rd.cert = cert
	r.state = CertificateIssued
	return cert, nil
}

func (r *Runtime) appendLocked(cert *certificate.Certificate) error {
	err := certificate.CheckHash(cert)
	if err == nil {
		err = certificate.VerifyLink(cert, r.chain.Tip())
	}
	if err != nil {
		return r.integrityFailureLocked(err)
	}
	if err := r.cfg.Store.StoreCertificate(cert); err != nil {
		if errors.Is(err, types.ErrChainIntegrity) {
			return r.integrityFailureLocked(err)
		}
		return fmt.Errorf("storing certificate %v: %w", cert.Hash.Short(), err)
	}
	if err := r.chain.Append(cert); err != nil {
		return r.integrityFailureLocked(err)
	}
	if r.cfg.Rounds != nil {
		if err := r.cfg.Rounds.RemovePending(); err != nil {
			logging.Warningf("removing pending certificate: %v", err)
		}
	}
	r.cfg.Stats.CertificateIssued(r.chain.Len())
	logging.Infof("issued certificate %v", cert)
	return nil
}

func (r *Runtime) integrityFailureLocked(err error) error {
	logging.Errorf("chain integrity failure, round %v abandoned: %v", r.round.beacon, err)
	r.cancelLocked(ReasonIntegrity)
	return err
}

// FinishRound returns to Idle once the certificate of the round is issued.
func (r *Runtime) FinishRound() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.state != CertificateIssued {
		return fmt.Errorf("%w: finish round in state %v", types.ErrInvalidTransition, r.state)
	}
	r.round = nil
	r.state = Idle
	return nil
}

// Cancel discards the current round, the chain is not modified.
func (r *Runtime) Cancel(reason string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cancelLocked(reason)
}

func (r *Runtime) cancelLocked(reason string) {
	switch r.state {
	case Idle:
		return
	case CertificateIssued:
	default:
		r.cfg.Stats.RoundAbandoned(reason)
		logging.Warningf("abandoned round %v in state %v: %v", r.round.beacon, r.state, reason)
		if r.cfg.Rounds != nil {
			if err := r.cfg.Rounds.RemovePending(); err != nil {
				logging.Warningf("removing pending certificate: %v", err)
			}
		}
	}
	r.round = nil
	r.state = Idle
}

// Tick abandons the round if its deadline passed before the quorum, it then returns ErrRoundExpired.
func (r *Runtime) Tick() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.checkExpiredLocked()
}

func (r *Runtime) checkExpiredLocked() error {
	if r.state != RegistrationOpen && r.state != SignatureCollection {
		return nil
	}
	if r.cfg.Clock.Now().Before(r.round.deadline) {
		return nil
	}
	beacon := r.round.beacon
	r.cancelLocked(ReasonExpired)
	return fmt.Errorf("%w: round %v", types.ErrRoundExpired, beacon)
}

func (r *Runtime) savePendingLocked() {
	if err := r.cfg.Rounds.SavePending(r.round.pending.stored()); err != nil {
		logging.Warningf("saving pending certificate of %v: %v", r.round.beacon, err)
	}
}

// recoverPending resumes the round saved in cfg.Rounds, it is discarded if it is no longer valid.
func (r *Runtime) recoverPending() error {
	pc, err := r.cfg.Rounds.GetPending()
	if err != nil || pc == nil {
		return err
	}
	rd, err := r.restoreRound(pc)
	if err != nil {
		logging.Warningf("discarding pending certificate of %v: %v", pc.Beacon, err)
		return r.cfg.Rounds.RemovePending()
	}
	r.round = rd
	r.last = &rd.beacon
	r.state = SignatureCollection
	if uint64(rd.pending.DistinctIndices()) >= rd.pending.Registration.Params().K {
		r.aggregateLocked()
	}
	logging.Infof("resumed round %v with %v signatures", rd.beacon, len(rd.pending.Signatures))
	return nil
}

func (r *Runtime) restoreRound(pc *storage.PendingCertificate) (*round, error) {
	if r.last != nil && !pc.Beacon.IsNewerThan(*r.last) {
		return nil, fmt.Errorf("%w: %v", types.ErrStaleBeacon, pc.Beacon)
	}
	keys, err := r.cfg.Rounds.GetRegistration(pc.Beacon.Epoch)
	if err != nil {
		return nil, err
	}
	registry, err := keyreg.NewKeyRegistry(pc.Parameters)
	if err != nil {
		return nil, err
	}
	for _, nxt := range keys {
		if err := registry.Register(nxt.ID, nxt.Stake, nxt.Key); err != nil {
			return nil, err
		}
	}
	closed, err := registry.Close()
	if err != nil {
		return nil, err
	}
	if commitment, _ := pc.ProtocolMessage.Get(certificate.PartStakeDistributionCommitment); !commitment.Equal(closed.AggregateVerificationKey().Hash()) {
		return nil, fmt.Errorf("%w: registration does not match the protocol message", types.ErrChainIntegrity)
	}
	if tip := r.chain.Tip(); tip != nil {
		if previous, _ := pc.ProtocolMessage.Get(certificate.PartPreviousCertificateHash); !previous.Equal(tip.Hash) {
			return nil, fmt.Errorf("%w: pending certificate does not follow the chain tip", types.ErrChainIntegrity)
		}
	}

	now := r.cfg.Clock.Now()
	rd := &round{
		beacon:   pc.Beacon,
		registry: registry,
		pending:  newCertificatePending(pc.Beacon, pc.ProtocolMessage, closed),
		openedAt: now,
		deadline: now.Add(r.cfg.RoundTimeout),
	}
	for _, sig := range pc.Signatures {
		if err := multisig.VerifyIndividual(sig, rd.pending.Message(), closed); err != nil {
			logging.Warningf("dropping stored signature of %v: %v", sig.PartyID, err)
			continue
		}
		digest, err := sig.Hash(rd.pending.Message())
		if err != nil || len(sig.Sigmas) == 0 {
			continue
		}
		hash := digest.Str()
		r.verified.Add(hash, true)
		rd.pending.add(sig, hash)
	}
	return rd, nil
}
