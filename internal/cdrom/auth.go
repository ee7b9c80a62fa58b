package cdrom

import (
	"errors"
	"fmt"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// authSlots is the number of authentication grant ids a drive multiplexes.
const authSlots = 4

// AuthState is the progress of one grant through the key exchange.
type AuthState int

const (
	AuthUnallocated AuthState = iota
	AuthAllocated
	AuthDriveChallenged
	AuthChallengeSent
	AuthKey1Received
	AuthKeyExchanged
)

var authStateNames = [...]string{
	"unallocated", "allocated", "drive challenged", "challenge sent", "key1 received", "key exchanged",
}

func (s AuthState) String() string {
	if s < 0 || int(s) >= len(authStateNames) {
		return fmt.Sprintf("auth state %d", int(s))
	}
	return authStateNames[s]
}

// AuthStep names an authentication request. Steps up to AuthSendKey2 form
// the ordered handshake; the rest are queries.
type AuthStep int

const (
	AuthAllocate AuthStep = iota
	AuthDriveChallenge
	AuthSendChallenge
	AuthKey1
	AuthSendKey2
	AuthTitleKey
	AuthDiscKey
	AuthASF
	AuthRegionState
	AuthSetRegion
	AuthInvalidate
)

var authStepNames = [...]string{
	"allocate", "drive challenge", "send challenge", "key1", "send key2",
	"title key", "disc key", "asf", "region state", "set region", "invalidate",
}

func (s AuthStep) String() string {
	if s < 0 || int(s) >= len(authStepNames) {
		return fmt.Sprintf("auth step %d", int(s))
	}
	return authStepNames[s]
}

// authSlot is the host side record of one grant.
type authSlot struct {
	state     AuthState
	challenge [mmc.ChallengeSize]byte
	key       [mmc.KeySize]byte
}

// handshakeOrder maps each handshake step to the state it requires.
// Success moves the slot to the next state.
var handshakeOrder = map[AuthStep]AuthState{
	AuthAllocate:       AuthUnallocated,
	AuthDriveChallenge: AuthAllocated,
	AuthSendChallenge:  AuthDriveChallenged,
	AuthKey1:           AuthChallengeSent,
	AuthSendKey2:       AuthKey1Received,
}

// Transition returns the state after step succeeds from s. Steps that
// need a completed exchange leave the state unchanged; invalidation always
// ends in AuthUnallocated. Any other step out of order fails with
// ErrInvalidArgument.
// This is a pure function.
func Transition(s AuthState, step AuthStep) (AuthState, error) {
	switch step {
	case AuthInvalidate:
		return AuthUnallocated, nil
	case AuthTitleKey, AuthDiscKey:
		if s != AuthKeyExchanged {
			return s, fmt.Errorf("%s in state %s: %w", step, s, ErrInvalidArgument)
		}
		return s, nil
	}
	want, ok := handshakeOrder[step]
	if !ok {
		return s, fmt.Errorf("%s: %w", step, ErrInvalidArgument)
	}
	if s != want {
		return s, fmt.Errorf("%s in state %s: %w", step, s, ErrInvalidArgument)
	}
	return s + 1, nil
}

// Responder computes the host side of the key exchange.
type Responder interface {
	// Challenge answers the drive challenge with the host challenge.
	Challenge(drive [mmc.ChallengeSize]byte) ([mmc.ChallengeSize]byte, error)
	// Key2 checks the drive key and returns the host key.
	Key2(key1 [mmc.KeySize]byte) ([mmc.KeySize]byte, error)
}

const handshakeAttempts = 3

// errResponder marks a failure reported by the Responder.
var errResponder = errors.New("responder rejected exchange")

// isProtocolFailure reports whether err ends the exchange: an illegal
// request or copy protection sense, an unusable response, or a responder
// rejection.
func isProtocolFailure(err error) bool {
	if errors.Is(err, errResponder) || errors.Is(err, mmc.ErrShortResponse) {
		return true
	}
	s, ok := senseOf(err)
	return ok && (s.Key == mmc.SenseIllegalRequest || s.ASC == mmc.ASCCopyProtection)
}

func (d *Device) authSlot(agid byte) (*authSlot, error) {
	if int(agid) >= authSlots {
		return nil, fmt.Errorf("agid %d: %w", agid, ErrInvalidArgument)
	}
	return &d.auth[agid], nil
}

// authStep runs one step for agid. The slot advances only when run
// succeeds. A protocol failure invalidates the slot, as does any failure
// sending key2, so a failed exchange restarts from allocation.
func (d *Device) authStep(agid byte, step AuthStep, run func(s *authSlot) error) error {
	if err := d.require(CapDVD); err != nil {
		return err
	}
	slot, err := d.authSlot(agid)
	if err != nil {
		return err
	}
	next, err := Transition(slot.state, step)
	if err != nil {
		return err
	}
	if err := run(slot); err != nil {
		if isProtocolFailure(err) {
			d.invalidate(agid)
			return fmt.Errorf("%s: %w: %w", step, ErrAuthenticationFailed, err)
		}
		if step == AuthSendKey2 {
			d.invalidate(agid)
		}
		return err
	}
	slot.state = next
	return nil
}

// allocateAGID asks the drive for a grant. The drive is authoritative: a
// grant it hands out again is reset on the host side.
func (d *Device) allocateAGID() (byte, error) {
	if err := d.require(CapDVD); err != nil {
		return 0, err
	}
	p := mmc.BuildReportKey(mmc.KeyAGID, 0, 0)
	if err := d.exec(p); err != nil {
		if isProtocolFailure(err) {
			return 0, fmt.Errorf("%s: %w: %w", AuthAllocate, ErrAuthenticationFailed, err)
		}
		return 0, err
	}
	agid, err := mmc.ParseAGID(p.Buffer)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", AuthAllocate, ErrAuthenticationFailed, err)
	}
	if slot := &d.auth[agid]; slot.state != AuthUnallocated {
		d.log.Debug("drive reissued grant", "agid", agid, "state", slot.state)
		*slot = authSlot{}
	}
	err = d.authStep(agid, AuthAllocate, func(*authSlot) error { return nil })
	return agid, err
}

func (d *Device) driveChallenge(agid byte) ([mmc.ChallengeSize]byte, error) {
	var c [mmc.ChallengeSize]byte
	err := d.authStep(agid, AuthDriveChallenge, func(s *authSlot) error {
		p := mmc.BuildReportKey(mmc.KeyChallenge, agid, 0)
		if err := d.exec(p); err != nil {
			return err
		}
		var err error
		if c, err = mmc.ParseChallenge(p.Buffer); err != nil {
			return err
		}
		s.challenge = c
		return nil
	})
	return c, err
}

func (d *Device) sendChallenge(agid byte, c [mmc.ChallengeSize]byte) error {
	return d.authStep(agid, AuthSendChallenge, func(s *authSlot) error {
		if err := d.exec(mmc.BuildSendChallenge(agid, c)); err != nil {
			return err
		}
		s.challenge = c
		return nil
	})
}

func (d *Device) key1(agid byte) ([mmc.KeySize]byte, error) {
	var k [mmc.KeySize]byte
	err := d.authStep(agid, AuthKey1, func(s *authSlot) error {
		p := mmc.BuildReportKey(mmc.KeyKey1, agid, 0)
		if err := d.exec(p); err != nil {
			return err
		}
		var err error
		if k, err = mmc.ParseKey(p.Buffer); err != nil {
			return err
		}
		s.key = k
		return nil
	})
	return k, err
}

func (d *Device) sendKey2(agid byte, k [mmc.KeySize]byte) error {
	return d.authStep(agid, AuthSendKey2, func(s *authSlot) error {
		if err := d.exec(mmc.BuildSendKey2(agid, k)); err != nil {
			return err
		}
		s.key = k
		return nil
	})
}

func (d *Device) titleKey(agid byte, lba uint32) (mmc.TitleKey, error) {
	var tk mmc.TitleKey
	err := d.authStep(agid, AuthTitleKey, func(*authSlot) error {
		p := mmc.BuildReportKey(mmc.KeyTitle, agid, lba)
		if err := d.exec(p); err != nil {
			return err
		}
		var err error
		tk, err = mmc.ParseTitleKey(p.Buffer)
		return err
	})
	return tk, err
}

// discKey reads the encrypted disc key, which needs a completed exchange.
func (d *Device) discKey(agid byte) ([]byte, error) {
	var key []byte
	err := d.authStep(agid, AuthDiscKey, func(*authSlot) error {
		p := mmc.BuildReadDVDStructure(mmc.DVDStructDiscKey, 0, agid, mmc.DiscKeyLength)
		if err := d.exec(p); err != nil {
			return err
		}
		var err error
		key, err = mmc.ParseDiscKey(p.Buffer)
		return err
	})
	return key, err
}

// invalidate releases agid on the drive, best effort, and always leaves
// the slot unallocated.
func (d *Device) invalidate(agid byte) error {
	slot, err := d.authSlot(agid)
	if err != nil {
		return err
	}
	*slot = authSlot{}
	if !d.can(CapDVD) {
		return nil
	}
	if err := d.exec(mmc.BuildInvalidateAGID(agid)); err != nil {
		d.log.Debug("invalidate agid failed", "agid", agid, "err", err)
		return err
	}
	return nil
}

// invalidateAll releases every grant still held.
func (d *Device) invalidateAll() {
	for agid := range d.auth {
		if d.auth[agid].state != AuthUnallocated {
			_ = d.invalidate(byte(agid))
		}
	}
}

func (d *Device) authState(agid byte) (AuthState, error) {
	slot, err := d.authSlot(agid)
	if err != nil {
		return AuthUnallocated, err
	}
	return slot.state, nil
}

func (d *Device) asf() (bool, error) {
	if err := d.require(CapDVD); err != nil {
		return false, err
	}
	p := mmc.BuildReportKey(mmc.KeyASF, 0, 0)
	if err := d.exec(p); err != nil {
		return false, err
	}
	return mmc.ParseASF(p.Buffer)
}

func (d *Device) regionState() (mmc.RPCState, error) {
	if err := d.require(CapDVD); err != nil {
		return mmc.RPCState{}, err
	}
	p := mmc.BuildReportKey(mmc.KeyRPCState, 0, 0)
	if err := d.exec(p); err != nil {
		return mmc.RPCState{}, err
	}
	return mmc.ParseRPCState(p.Buffer)
}

func (d *Device) setRegion(mask byte, c Caller) error {
	if !c.Privileged {
		return ErrPermission
	}
	if err := d.require(CapDVD); err != nil {
		return err
	}
	d.log.Info("setting region", "mask", fmt.Sprintf("0x%02x", mask))
	return d.exec(mmc.BuildSetRegion(mask))
}

// Handshake runs the full key exchange with r and returns the grant id
// holding the exchanged key. A failed exchange is restarted from
// allocation with a fresh grant, a bounded number of times.
func (d *Device) Handshake(r Responder) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var last error
	for attempt := 1; attempt <= handshakeAttempts; attempt++ {
		agid, err := d.handshake(r)
		if err == nil {
			d.log.Debug("key exchange complete", "agid", agid, "attempt", attempt)
			return agid, nil
		}
		if !errors.Is(err, ErrAuthenticationFailed) {
			return 0, err
		}
		d.log.Info("key exchange failed, restarting", "attempt", attempt, "err", err)
		last = err
	}
	return 0, last
}

func (d *Device) handshake(r Responder) (byte, error) {
	agid, err := d.allocateAGID()
	if err != nil {
		return 0, err
	}
	fail := func(step AuthStep, err error) (byte, error) {
		if d.auth[agid].state != AuthUnallocated {
			d.invalidate(agid)
		}
		if errors.Is(err, errResponder) {
			return 0, fmt.Errorf("%s: %w: %w", step, ErrAuthenticationFailed, err)
		}
		return 0, err
	}

	dc, err := d.driveChallenge(agid)
	if err != nil {
		return fail(AuthDriveChallenge, err)
	}
	hc, err := r.Challenge(dc)
	if err != nil {
		return fail(AuthSendChallenge, fmt.Errorf("%w: %w", errResponder, err))
	}
	if err := d.sendChallenge(agid, hc); err != nil {
		return fail(AuthSendChallenge, err)
	}
	k1, err := d.key1(agid)
	if err != nil {
		return fail(AuthKey1, err)
	}
	k2, err := r.Key2(k1)
	if err != nil {
		return fail(AuthSendKey2, fmt.Errorf("%w: %w", errResponder, err))
	}
	if err := d.sendKey2(agid, k2); err != nil {
		return fail(AuthSendKey2, err)
	}
	return agid, nil
}
