package cdrom

import (
	"github.com/samber/mo"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// Transport executes a packet synchronously and reports the drive status
// with optional sense data. A non-nil error means the packet could not be
// delivered. Timeouts are carried in the packet and enforced here. For
// DirIn packets the transport may shorten Buffer to the bytes received.
type Transport interface {
	Execute(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error)
}

// The optional interfaces below back capability bits. Register clears a
// capability whose interface the transport does not implement, so they are
// never called for a drive that lacks them.

// StatusPoller reports the drive state (CapDriveStatus).
type StatusPoller interface {
	PollStatus() (MediaState, error)
}

// DoorLocker locks and unlocks the door (CapLock).
type DoorLocker interface {
	LockDoor(lock bool) error
}

// TrayMover opens and closes the tray (CapOpenTray, CapCloseTray).
type TrayMover interface {
	MoveTray(open bool) error
}

// SpeedSelector sets the read speed as a multiple of 1x, 0 for maximum
// (CapSelectSpeed).
type SpeedSelector interface {
	SelectSpeed(speed int) error
}

// Resetter hard-resets the drive (CapReset).
type Resetter interface {
	Reset() error
}

// MediaChangeReporter reports whether the medium changed since the last
// call (CapMediaChanged).
type MediaChangeReporter interface {
	MediaChanged() (bool, error)
}

// exec runs p and converts a failed status into a TransportError. The
// last sense seen is kept on the device.
func (d *Device) exec(p *mmc.Packet) error {
	status, sense, err := d.t.Execute(p)
	if err != nil {
		d.log.Debug("packet not delivered", "packet", p.String(), "err", err)
		return newTransportError(p.Opcode(), status, sense, err)
	}
	if status == mmc.StatusGood {
		return nil
	}
	d.sense = sense
	attrs := []any{"packet", p.String(), "status", byte(status)}
	if s, ok := sense.Get(); ok {
		attrs = append(attrs, "sense", s.String())
	}
	if p.Quiet {
		d.log.Debug("packet failed", attrs...)
	} else {
		d.log.Warn("packet failed", attrs...)
	}
	return newTransportError(p.Opcode(), status, sense, nil)
}

// LastSense returns the sense data of the most recent failed packet.
func (d *Device) LastSense() mo.Option[mmc.Sense] {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sense
}
