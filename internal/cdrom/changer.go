package cdrom

import (
	"fmt"
	"math"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// Slot sentinels accepted wherever a changer slot is expected.
const (
	SlotCurrent = math.MaxInt32     // the slot currently loaded
	SlotNone    = math.MaxInt32 - 1 // unload the current disc
)

// SlotState is the occupancy of a changer slot.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotOccupied
	SlotChanged
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotOccupied:
		return "occupied"
	case SlotChanged:
		return "changed"
	}
	return fmt.Sprintf("slot state %d", int(s))
}

// slotCount returns the changer capacity, reading it from the mechanism
// the first time when the backend did not declare it.
func (d *Device) slotCount() (int, error) {
	if d.capacity == 0 && d.can(CapSelectDisc) {
		if err := d.probeSlots(); err != nil {
			return 0, err
		}
	}
	return d.capacity, nil
}

func (d *Device) probeSlots() error {
	ms, err := d.mechStatus(0)
	if err != nil {
		return fmt.Errorf("probe slots: %w", err)
	}
	d.capacity = ms.NumSlots
	d.log.Debug("changer capacity", "slots", d.capacity)
	return nil
}

func (d *Device) mechStatus(capacity int) (mmc.MechStatus, error) {
	p := mmc.BuildMechanismStatus(capacity)
	if err := d.exec(p); err != nil {
		return mmc.MechStatus{}, err
	}
	ms, ok := mmc.ParseMechStatus(p.Buffer)
	if !ok {
		return mmc.MechStatus{}, fmt.Errorf("mechanism status: %w", mmc.ErrShortResponse)
	}
	return ms, nil
}

// checkSlot fails with ErrInvalidArgument unless slot is a real slot index.
func (d *Device) checkSlot(slot int) error {
	n, err := d.slotCount()
	if err != nil {
		return err
	}
	if slot < 0 || slot >= n {
		return fmt.Errorf("slot %d of %d: %w", slot, n, ErrInvalidArgument)
	}
	return nil
}

// slotRecord reads the mechanism status once and makes sure it covers slot.
func (d *Device) slotRecord(slot int) (mmc.MechStatus, error) {
	if err := d.checkSlot(slot); err != nil {
		return mmc.MechStatus{}, err
	}
	ms, err := d.mechStatus(d.capacity)
	if err != nil {
		return mmc.MechStatus{}, err
	}
	if slot >= len(ms.Slots) {
		return mmc.MechStatus{}, fmt.Errorf("slot %d not reported: %w", slot, ErrInvalidArgument)
	}
	return ms, nil
}

func (d *Device) slotStatus(slot int) (SlotState, error) {
	if err := d.require(CapSelectDisc); err != nil {
		return SlotEmpty, err
	}
	ms, err := d.slotRecord(slot)
	if err != nil {
		return SlotEmpty, err
	}
	switch e := ms.Slots[slot]; {
	case e.Changed:
		return SlotChanged, nil
	case e.DiscPresent:
		return SlotOccupied, nil
	default:
		return SlotEmpty, nil
	}
}

// selectDisc loads slot and returns the slot actually loaded. SlotCurrent
// only reports the loaded slot; SlotNone unloads, even while the device is
// shared. While the device is shared or kept locked only the loaded slot
// may be requested.
func (d *Device) selectDisc(slot int) (int, error) {
	if err := d.require(CapSelectDisc); err != nil {
		return 0, err
	}
	if slot != SlotCurrent && slot != SlotNone {
		if err := d.checkSlot(slot); err != nil {
			return 0, err
		}
	}

	if slot == SlotNone {
		d.mcFlags = 0x3
		if err := d.exec(mmc.BuildLoadUnload(-1)); err != nil {
			return 0, err
		}
		return SlotNone, nil
	}

	n, err := d.slotCount()
	if err != nil {
		return 0, err
	}
	ms, err := d.mechStatus(n)
	if err != nil {
		return 0, err
	}
	cur := ms.CurrentSlot
	if slot == SlotCurrent {
		return cur, nil
	}
	if d.useCount > 1 || d.keepLocked {
		if slot == cur {
			return cur, nil
		}
		return 0, ErrBusy
	}

	d.mcFlags = 0x3
	d.log.Info("loading slot", "slot", slot, "from", cur)
	if err := d.exec(mmc.BuildLoadUnload(slot)); err != nil {
		return 0, err
	}
	return slot, nil
}

// SlotCount returns the changer capacity, zero for a single-disc drive.
func (d *Device) SlotCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slotCount()
}

// SlotStatus reports the occupancy of a changer slot.
func (d *Device) SlotStatus(slot int) (SlotState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slotStatus(slot)
}
