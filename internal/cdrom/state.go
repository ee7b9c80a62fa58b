package cdrom

import (
	"fmt"
)

// MediaState is the drive state reported by a status poll. The values are
// the DriveStatus request results.
type MediaState int

const (
	MediaNoInfo MediaState = iota
	MediaNoDisc
	MediaTrayOpen
	MediaNotReady
	MediaReady
)

var mediaStateNames = [...]string{"no info", "no disc", "tray open", "not ready", "disc ok"}

func (s MediaState) String() string {
	if s < 0 || int(s) >= len(mediaStateNames) {
		return fmt.Sprintf("media state %d", int(s))
	}
	return mediaStateNames[s]
}

// OpenMode qualifies an Open.
type OpenMode uint8

const (
	OpenWrite OpenMode = 1 << iota
	// OpenNonBlocking skips the readiness checks when OptUseFFlags is set,
	// so that a drive with no disc can still receive control requests.
	OpenNonBlocking
)

// Media change consumers. Each sees a change once.
const (
	consumerBlock   = 0
	consumerControl = 1
)

// Open registers a user of the device. Unless the open is non-blocking it
// checks that a disc with data is present, closing the tray first when
// allowed, and locks the door. A write open additionally requires writable
// media. A failed open leaves the use count unchanged.
func (d *Device) Open(mode OpenMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registered {
		return fmt.Errorf("open %s: %w", d.name, ErrInvalidArgument)
	}
	d.useCount++
	if err := d.open(mode); err != nil {
		d.useCount--
		if d.useCount == 0 {
			d.forData = false
		}
		return fmt.Errorf("open %s: %w", d.name, err)
	}
	d.log.Debug("opened", "mode", mode, "users", d.useCount)
	return nil
}

func (d *Device) open(mode OpenMode) error {
	if mode&OpenNonBlocking != 0 && d.options&OptUseFFlags != 0 {
		return nil
	}
	if err := d.openForData(); err != nil {
		return err
	}
	if d.can(CapGenericPacket) {
		d.profile = d.readProfile()
	}
	if mode&OpenWrite == 0 {
		return nil
	}
	err := d.openWrite()
	if err == nil && !d.can(CapRAM) {
		err = ErrWrongMediaType
	}
	if err != nil {
		if d.useCount == 1 {
			d.unlockBestEffort()
		}
		return err
	}
	d.mediaWritten = false
	return nil
}

// openForData makes sure the drive holds a readable disc.
func (d *Device) openForData() error {
	if err := d.waitReady(); err != nil {
		return err
	}

	counts, err := d.countTracks()
	if err != nil {
		return err
	}
	if counts.DataTracks() == 0 {
		if d.options&OptCheckType != 0 {
			return fmt.Errorf("no data tracks: %w", ErrWrongMediaType)
		}
		d.log.Warn("opening disc without data tracks", "audio", counts.Audio)
	}

	if d.can(CapLock) && d.options&OptLock != 0 {
		if err := d.locker().LockDoor(true); err != nil {
			d.log.Warn("lock door failed", "err", err)
		}
	}
	d.forData = true
	return nil
}

// waitReady polls the drive and, when the tray is open and auto-close is
// enabled, closes it once and polls again.
func (d *Device) waitReady() error {
	if !d.can(CapDriveStatus) {
		return nil
	}
	state, err := d.poll()
	if err != nil {
		return err
	}
	if state == MediaTrayOpen {
		if !d.can(CapCloseTray) || d.options&OptAutoClose == 0 {
			return ErrTrayOpen
		}
		d.log.Info("tray open, closing")
		if err := d.tray().MoveTray(false); err != nil {
			return fmt.Errorf("%w: close tray: %v", ErrDriveNotReady, err)
		}
		if state, err = d.poll(); err != nil {
			return err
		}
		if state != MediaReady {
			d.log.Info("drive not ready after closing tray", "state", state)
			return ErrDriveNotReady
		}
	}
	switch state {
	case MediaReady:
		return nil
	case MediaNoDisc:
		return ErrNoMedia
	case MediaTrayOpen:
		return ErrTrayOpen
	default:
		return ErrDriveNotReady
	}
}

// checkAudioDisc is the play precondition used with OptCheckType.
func (d *Device) checkAudioDisc() error {
	if d.options&OptCheckType == 0 {
		return nil
	}
	if err := d.waitReady(); err != nil {
		return err
	}
	counts, err := d.countTracks()
	if err != nil {
		return err
	}
	if counts.Audio == 0 {
		return fmt.Errorf("no audio tracks: %w", ErrWrongMediaType)
	}
	return nil
}

// Release drops a user. The last release finishes any write session, unlocks
// the door unless it is kept locked, and ejects when auto-eject is set.
// Failures are logged and the first one is returned; the device is always
// released.
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.useCount == 0 {
		return fmt.Errorf("release %s: %w", d.name, ErrInvalidArgument)
	}
	d.useCount--
	if d.useCount > 0 {
		return nil
	}

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if d.forData && (d.mediaWritten || d.can(CapMRW)) {
		keep(d.closeWrite())
	}
	if d.can(CapLock) && !d.keepLocked {
		d.unlockBestEffort()
	}
	if d.forData && d.options&OptAutoEject != 0 && d.can(CapOpenTray) {
		if err := d.tray().MoveTray(true); err != nil {
			d.log.Warn("auto eject failed", "err", err)
			keep(err)
		}
	}
	d.invalidateAll()
	d.forData = false
	d.log.Debug("released")
	if first != nil {
		return fmt.Errorf("release %s: %w", d.name, first)
	}
	return nil
}

// NoteWrite records that data was written since the last open, so that
// release flushes and finishes the session.
func (d *Device) NoteWrite() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mediaWritten = true
}

// UseCount returns the number of current users.
func (d *Device) UseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.useCount
}

// CheckMediaChange reports a media change to the block consumer.
func (d *Device) CheckMediaChange() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mediaChanged(consumerBlock)
}

// mediaChanged asks the drive for a change, flags both consumers when one
// is reported, and returns and clears the flag of consumer.
func (d *Device) mediaChanged(consumer int) (bool, error) {
	if err := d.require(CapMediaChanged); err != nil {
		return false, err
	}
	changed, err := d.t.(MediaChangeReporter).MediaChanged()
	if err != nil {
		return false, err
	}
	if changed {
		d.mcFlags = 0x3
		d.mediaWritten = false
		d.log.Debug("media changed")
	}
	bit := byte(1) << (consumer & 1)
	ret := d.mcFlags&bit != 0
	d.mcFlags &^= bit
	return ret, nil
}

func (d *Device) mediaChangedSlot(slot int) (bool, error) {
	if err := d.require(CapMediaChanged); err != nil {
		return false, err
	}
	if !d.can(CapSelectDisc) || slot == SlotCurrent {
		return d.mediaChanged(consumerControl)
	}
	ms, err := d.slotRecord(slot)
	if err != nil {
		return false, err
	}
	return ms.Slots[slot].Changed, nil
}

func (d *Device) driveStatus(slot int) (MediaState, error) {
	if err := d.require(CapDriveStatus); err != nil {
		return MediaNoInfo, err
	}
	if !d.can(CapSelectDisc) || slot == SlotCurrent || slot == SlotNone {
		return d.poll()
	}
	ms, err := d.slotRecord(slot)
	if err != nil {
		return MediaNoInfo, err
	}
	if ms.Slots[slot].DiscPresent {
		return MediaReady, nil
	}
	return MediaNoDisc, nil
}

func (d *Device) eject() error {
	if err := d.require(CapOpenTray); err != nil {
		return err
	}
	if d.useCount != 1 || d.keepLocked {
		return ErrBusy
	}
	if d.can(CapLock) {
		if err := d.locker().LockDoor(false); err != nil {
			return err
		}
	}
	return d.tray().MoveTray(true)
}

func (d *Device) closeTray() error {
	if err := d.require(CapCloseTray); err != nil {
		return err
	}
	return d.tray().MoveTray(false)
}

// ejectSW toggles auto-close and auto-eject together.
func (d *Device) ejectSW(on bool) error {
	if err := d.require(CapOpenTray); err != nil {
		return err
	}
	if d.keepLocked {
		return ErrBusy
	}
	d.options &^= OptAutoClose | OptAutoEject
	if on {
		d.options |= OptAutoClose | OptAutoEject
	}
	return nil
}

// lockDoor locks or unlocks the door on request. Unlocking a door shared
// with other users needs privilege.
func (d *Device) lockDoor(lock bool, c Caller) error {
	if err := d.require(CapLock); err != nil {
		return err
	}
	if d.useCount != 1 && !lock && !c.Privileged {
		return ErrBusy
	}
	if err := d.locker().LockDoor(lock); err != nil {
		return err
	}
	d.keepLocked = lock
	return nil
}

func (d *Device) unlockBestEffort() {
	if !d.can(CapLock) {
		return
	}
	if err := d.locker().LockDoor(false); err != nil {
		d.log.Warn("unlock door failed", "err", err)
	}
}

func (d *Device) reset(c Caller) error {
	if !c.Privileged {
		return ErrPermission
	}
	if err := d.require(CapReset); err != nil {
		return err
	}
	d.log.Info("resetting drive")
	return d.t.(Resetter).Reset()
}

func (d *Device) selectSpeed(speed int) error {
	if err := d.require(CapSelectSpeed); err != nil {
		return err
	}
	if speed < 0 {
		return fmt.Errorf("speed %d: %w", speed, ErrInvalidArgument)
	}
	return d.t.(SpeedSelector).SelectSpeed(speed)
}

func (d *Device) poll() (MediaState, error) {
	return d.t.(StatusPoller).PollStatus()
}

func (d *Device) tray() TrayMover {
	return d.t.(TrayMover)
}

func (d *Device) locker() DoorLocker {
	return d.t.(DoorLocker)
}
