package cdrom

import (
	"fmt"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// modeSenseLength is large enough for any single page this package edits,
// including a block descriptor.
const modeSenseLength = 64

// readDiscInfo reads the disc information record in two steps: the header
// announces the record length, then the record is read at that length.
// The caller checks the Has methods for the fields it needs.
func (d *Device) readDiscInfo() (mmc.DiscInfo, error) {
	p := mmc.BuildReadDiscInfo(mmc.RecordHeaderSize)
	if err := d.exec(p); err != nil {
		return mmc.DiscInfo{}, err
	}
	n := mmc.RecordLength(p.Buffer, mmc.DiscInfoSize)
	if n <= mmc.RecordHeaderSize {
		return mmc.ParseDiscInfo(p.Buffer), nil
	}

	p = mmc.BuildReadDiscInfo(n)
	if err := d.exec(p); err != nil {
		return mmc.DiscInfo{}, err
	}
	return mmc.ParseDiscInfo(p.Buffer[:min(n, len(p.Buffer))]), nil
}

// readTrackInfo reads a track information record in two steps.
func (d *Device) readTrackInfo(addrType byte, number uint32) (mmc.TrackInfo, error) {
	p := mmc.BuildReadTrackInfo(addrType, number, mmc.TrackInfoProbe)
	if err := d.exec(p); err != nil {
		return mmc.TrackInfo{}, err
	}
	n := mmc.RecordLength(p.Buffer, mmc.TrackInfoSize)
	if n <= mmc.TrackInfoProbe {
		return mmc.ParseTrackInfo(p.Buffer[:min(n, len(p.Buffer))]), nil
	}

	p = mmc.BuildReadTrackInfo(addrType, number, n)
	if err := d.exec(p); err != nil {
		return mmc.TrackInfo{}, err
	}
	return mmc.ParseTrackInfo(p.Buffer[:min(n, len(p.Buffer))]), nil
}

// readProfile returns the current MMC-3 profile, or ProfileUnknown when
// the drive does not answer GET CONFIGURATION.
func (d *Device) readProfile() uint16 {
	p := mmc.BuildGetConfiguration(mmc.ConfigAll, mmc.FeatureProfileList, 8)
	if err := d.exec(p); err != nil {
		return mmc.ProfileUnknown
	}
	profile, ok := mmc.ParseProfile(p.Buffer)
	if !ok {
		return mmc.ProfileUnknown
	}
	return profile
}

// readFeature returns the first feature descriptor at or after code.
func (d *Device) readFeature(code uint16, length int) (mmc.Feature, bool) {
	p := mmc.BuildGetConfiguration(mmc.ConfigAll, code, length)
	if err := d.exec(p); err != nil {
		return mmc.Feature{}, false
	}
	f, ok := mmc.ParseFeature(p.Buffer)
	if !ok || f.Code != code {
		return mmc.Feature{}, false
	}
	return f, true
}

// modePage is a mode page read back from the drive: the full response
// and the offset of the page within it.
type modePage struct {
	data []byte
	off  int
}

// field returns a pointer into the page at byte i, or nil when the page is
// too short.
func (m modePage) field(i int) *byte {
	if m.off+i >= len(m.data) {
		return nil
	}
	return &m.data[m.off+i]
}

func (m modePage) code() byte {
	return m.data[m.off] & 0x3F
}

// length returns the page length including its two-byte header.
func (m modePage) length() int {
	if m.off+1 >= len(m.data) {
		return 0
	}
	return min(int(m.data[m.off+1])+2, len(m.data)-m.off)
}

func (d *Device) modeSense(page, control byte, timeoutProbe bool) (modePage, error) {
	p := mmc.BuildModeSense(page, control, modeSenseLength)
	if timeoutProbe {
		p.Timeout = mmc.ProbeTimeout
		p.Quiet = true
	}
	if err := d.exec(p); err != nil {
		return modePage{}, err
	}
	data := p.Buffer[:min(mmc.ModeDataLength(p.Buffer), len(p.Buffer))]
	off, ok := mmc.ModePageOffset(data)
	if !ok {
		return modePage{}, fmt.Errorf("mode page 0x%02x: %w", page, mmc.ErrShortResponse)
	}
	return modePage{data: data, off: off}, nil
}

// updateModePage reads page and its changeable-values mask, merges set
// (page byte offset to value) into the current values through the mask and
// writes the page back. Bits the drive reports as fixed are never changed.
func (d *Device) updateModePage(page byte, set map[int]byte) error {
	cur, err := d.modeSense(page, mmc.PageCurrent, false)
	if err != nil {
		return err
	}
	mask, err := d.modeSense(page, mmc.PageChangeable, false)
	if err != nil {
		return err
	}
	for i, v := range set {
		c, m := cur.field(i), mask.field(i)
		if c == nil || m == nil {
			return fmt.Errorf("mode page 0x%02x byte %d: %w", page, i, ErrInvalidArgument)
		}
		*c = *c&^*m | v&*m
	}

	// Header zeroed, block descriptors dropped.
	n := cur.length()
	data := make([]byte, mmc.ModeHeaderSize+n)
	copy(data[mmc.ModeHeaderSize:], cur.data[cur.off:cur.off+n])
	data[mmc.ModeHeaderSize] &= 0x3F
	return d.exec(mmc.BuildModeSelect(data))
}
