package cdrom

import (
	"errors"
	"fmt"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// FormatStatus is the background format state of MRW media.
type FormatStatus byte

const (
	NotFormatted   FormatStatus = 0
	FormatInactive FormatStatus = 1 // started, stopped before completion
	FormatActive   FormatStatus = 2
	FormatComplete FormatStatus = 3
)

var formatStatusNames = [...]string{"not formatted", "inactive", "active", "complete"}

func (s FormatStatus) String() string {
	if int(s) < len(formatStatusNames) {
		return formatStatusNames[s]
	}
	return fmt.Sprintf("format status %d", byte(s))
}

// mrwLBASpace selects the defect-managed address space of the MRW page.
const (
	mrwLBAByte = 3
	mrwLBADMA  = 0
)

// linkBlocks is the link and run-out block count added after the last
// written address.
const linkBlocks = 7

// errNotWritable marks a write open refused because of the medium.
var errNotWritable = fmt.Errorf("medium not writable: %w", ErrWrongMediaType)

// writeClass is what a write open learns about the medium.
type writeClass struct {
	mrw      bool
	mrwWrite bool
	ramWrite bool
}

func (d *Device) detectWriteClass() writeClass {
	var wc writeClass
	if f, ok := d.readFeature(mmc.FeatureMRW, 16); ok {
		wc.mrw = true
		wc.mrwWrite = len(f.Data) > 0 && f.Data[0]&0x01 != 0
		if !d.probeMRWPage() {
			wc.mrw, wc.mrwWrite = false, false
		}
	}
	if d.can(CapMO) {
		wc.ramWrite = true
	} else if f, ok := d.readFeature(mmc.FeatureRandomWritable, 16); ok {
		wc.ramWrite = f.Current
	}
	return wc
}

// probeMRWPage finds which of the two MRW mode page numbers the drive uses.
func (d *Device) probeMRWPage() bool {
	for _, page := range []byte{mmc.PageMRW, mmc.PageMRWLegacy} {
		if _, err := d.modeSense(page, mmc.PageCurrent, true); err == nil {
			d.mrwPage = page
			return true
		}
	}
	return false
}

// applyWriteClass rewrites the media-derived part of the mask.
func (d *Device) applyWriteClass(wc writeClass) {
	set := func(c Capability, present bool) {
		if present {
			d.override &^= c
		} else {
			d.override |= c
		}
	}
	set(CapMRW, wc.mrw)
	set(CapMRWW, wc.mrwWrite)
	set(CapRAM, wc.ramWrite)
}

// openWrite decides whether the medium accepts writes.
func (d *Device) openWrite() error {
	wc := d.detectWriteClass()
	d.applyWriteClass(wc)
	d.log.Debug("write class", "mrw", wc.mrw, "mrw_write", wc.mrwWrite, "ram", wc.ramWrite,
		"profile", fmt.Sprintf("0x%04x", d.profile))

	switch {
	case d.can(CapMRWW):
		return d.mrwOpenWrite()
	case d.can(CapDVDRAM):
		return d.erasableOpenWrite()
	case d.can(CapRAM) && d.EffectiveMask()&(CapCDR|CapCDRW|CapDVD|CapDVDR|CapMRW|CapMO) == 0:
		return d.defectManagedOpenWrite()
	case d.can(CapMO):
		return d.moOpenWrite()
	case d.profile == mmc.ProfileDVDRAM || d.profile == mmc.ProfileDVDPlusRW:
		return nil
	default:
		return d.erasableOpenWrite()
	}
}

func (d *Device) erasableOpenWrite() error {
	di, err := d.readDiscInfo()
	if err != nil || !di.HasErasable() || !di.Erasable {
		return errNotWritable
	}
	return nil
}

func (d *Device) defectManagedOpenWrite() error {
	if _, ok := d.readFeature(mmc.FeatureDefectManaged, 16); !ok {
		return fmt.Errorf("no defect management: %w", errNotWritable)
	}
	f, ok := d.readFeature(mmc.FeatureRandomWritable, 16)
	if !ok || !f.Current {
		return errNotWritable
	}
	return nil
}

// moOpenWrite refuses write-protected magneto-optical media. A drive that
// does not answer the mode sense is assumed writable.
func (d *Device) moOpenWrite() error {
	p := mmc.BuildModeSense(mmc.PageAll, mmc.PageCurrent, modeSenseLength)
	if err := d.exec(p); err != nil {
		return nil
	}
	if len(p.Buffer) > 3 && p.Buffer[3]&0x80 != 0 {
		return fmt.Errorf("write protected: %w", errNotWritable)
	}
	return nil
}

// mrwOpenWrite selects the defect-managed address space and checks the
// background format. An interrupted or running format is restarted when
// configured.
func (d *Device) mrwOpenWrite() error {
	if err := d.updateModePage(d.mrwPage, map[int]byte{mrwLBAByte: mrwLBADMA}); err != nil {
		d.log.Warn("select MRW address space failed", "err", err)
		return errNotWritable
	}
	di, err := d.readDiscInfo()
	if err != nil || !di.HasMRWStatus() || !di.Erasable {
		return errNotWritable
	}

	status := FormatStatus(di.MRWStatus)
	d.log.Info("MRW open", "format", status)
	switch {
	case status == NotFormatted:
		return fmt.Errorf("MRW %s: %w", status, errNotWritable)
	case (status == FormatInactive || status == FormatActive) && d.cfg.FormatRestart:
		d.log.Info("restarting background format")
		return d.exec(mmc.BuildFormatUnit(true, false))
	}
	return nil
}

// formatStatus reads the background format state of the medium.
func (d *Device) formatStatus() (FormatStatus, error) {
	di, err := d.readDiscInfo()
	if err != nil {
		return NotFormatted, err
	}
	if !di.HasMRWStatus() {
		return NotFormatted, fmt.Errorf("format status: %w", ErrUnsupported)
	}
	return FormatStatus(di.MRWStatus), nil
}

// FormatStatus reports the background format state of MRW media.
func (d *Device) FormatStatus() (FormatStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.require(CapMRW); err != nil {
		return NotFormatted, err
	}
	return d.formatStatus()
}

func (d *Device) suspendFormatIfActive() error {
	status, err := d.formatStatus()
	if errors.Is(err, ErrUnsupported) {
		return nil
	}
	if err != nil {
		return err
	}
	if status != FormatActive {
		return nil
	}
	d.log.Info("suspending background format")
	return d.exec(mmc.BuildCloseTrackSession(mmc.CloseSuspendFormat, false))
}

func (d *Device) flushCache() error {
	return d.exec(mmc.BuildSyncCache())
}

// closeWrite finishes a write session at last release: suspend a running
// MRW format, flush, and finalize written DVD+RW media. Finalize failures
// are logged only.
func (d *Device) closeWrite() error {
	var err error
	if d.can(CapMRW) {
		err = d.suspendFormatIfActive()
	}
	if d.mediaWritten {
		if ferr := d.flushCache(); ferr != nil {
			err = errors.Join(err, ferr)
		}
		if d.profile == mmc.ProfileDVDPlusRW {
			d.finalize()
		}
	}
	d.mediaWritten = false
	return err
}

func (d *Device) finalize() {
	d.log.Info("finalizing written DVD+RW")
	for _, fn := range []byte{mmc.CloseSession, mmc.CloseFinalizeDisc} {
		if err := d.exec(mmc.BuildCloseTrackSession(fn, false)); err != nil {
			d.log.Warn("finalize step failed", "function", fn, "err", err)
		}
	}
}

// mrwExit runs at unregistration for MRW capable drives.
func (d *Device) mrwExit() error {
	err := d.suspendFormatIfActive()
	if err == nil && d.mediaWritten {
		err = d.flushCache()
	}
	return err
}

// lastTrackInfo reads the last track of the last session, stepping back
// over a trailing blank track.
func (d *Device) lastTrackInfo() (mmc.TrackInfo, bool) {
	di, err := d.readDiscInfo()
	if err != nil || !di.HasLastTrack() {
		return mmc.TrackInfo{}, false
	}
	last := di.LastTrackLS
	ti, err := d.readTrackInfo(mmc.TrackAddrTrack, uint32(last))
	if err != nil || !ti.HasStart() {
		return mmc.TrackInfo{}, false
	}
	if ti.Blank {
		if last == 1 {
			return mmc.TrackInfo{}, false
		}
		last--
		if ti, err = d.readTrackInfo(mmc.TrackAddrTrack, uint32(last)); err != nil {
			return mmc.TrackInfo{}, false
		}
	}
	return ti, true
}

// lastWritten returns the last written block. Track information is used
// when the drive supports it, the lead-out address otherwise.
func (d *Device) lastWritten() (int, error) {
	if d.can(CapGenericPacket) {
		if ti, ok := d.lastTrackInfo(); ok && ti.HasSize() {
			if ti.LRAValid && ti.HasLastRecorded() {
				return int(ti.LastRecorded), nil
			}
			lba := int(ti.Start) + int(ti.Size)
			if ti.FreeBlocks > 0 {
				lba -= int(ti.FreeBlocks) + linkBlocks
			}
			return lba, nil
		}
	}

	toc, err := d.readTOC()
	if err != nil {
		return 0, fmt.Errorf("last written: %w", err)
	}
	return toc.LeadoutLBA, nil
}

// nextWritable returns the next writable block.
func (d *Device) nextWritable() (int, error) {
	if d.can(CapGenericPacket) {
		if ti, ok := d.lastTrackInfo(); ok && ti.NWAValid && ti.HasNextWritable() {
			return int(ti.NextWritable), nil
		}
	}
	lba, err := d.lastWritten()
	if err != nil {
		return 0, err
	}
	return lba + linkBlocks, nil
}
