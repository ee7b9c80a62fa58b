package cdrom

import (
	"errors"
	"fmt"

	"github.com/binaryphile/crostini-cdrom/internal/cdda"
	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// AddrFormat selects how addresses are reported.
type AddrFormat int

const (
	AddrLBA AddrFormat = 1
	AddrMSF AddrFormat = 2
)

// Address is a disc address in the requested format. LBA is always set.
type Address struct {
	Format AddrFormat
	LBA    int
	MSF    mmc.MSF
}

func addressOf(lba int, f AddrFormat) Address {
	a := Address{Format: f, LBA: lba}
	if f == AddrMSF {
		a.MSF = mmc.LBAToMSF(lba)
	}
	return a
}

func (f AddrFormat) valid() bool {
	return f == AddrLBA || f == AddrMSF
}

// TOCHeader is the first and last track number.
type TOCHeader struct {
	First int
	Last  int
}

// TOCEntry is one TOC entry, the lead-out included.
type TOCEntry struct {
	Track   int
	ADR     byte
	Control byte
	Addr    Address
}

// DiscStatus classifies the disc in the drive. The values are part of the
// request ABI.
type DiscStatus int

const (
	DiscNoInfo DiscStatus = 0
	DiscNoDisc DiscStatus = 1
	DiscAudio  DiscStatus = 100
	DiscData1  DiscStatus = 101
	DiscData2  DiscStatus = 102
	DiscXA21   DiscStatus = 103
	DiscXA22   DiscStatus = 104
	DiscMixed  DiscStatus = 105
)

func (s DiscStatus) String() string {
	switch s {
	case DiscNoInfo:
		return "no info"
	case DiscNoDisc:
		return "no disc"
	case DiscAudio:
		return "audio"
	case DiscData1:
		return "data mode 1"
	case DiscData2:
		return "data mode 2"
	case DiscXA21:
		return "XA mode 2 form 1"
	case DiscXA22:
		return "XA mode 2 form 2"
	case DiscMixed:
		return "mixed"
	}
	return fmt.Sprintf("disc status %d", int(s))
}

// ClassifyDisc maps track counts to a disc status. Any audio track makes
// the disc audio or mixed; otherwise the data track kind decides.
// This is a pure function.
func ClassifyDisc(c cdda.TrackCounts) DiscStatus {
	switch {
	case c.Audio > 0 && c.DataTracks() == 0:
		return DiscAudio
	case c.Audio > 0:
		return DiscMixed
	case c.CDI > 0:
		return DiscXA22
	case c.XA > 0:
		return DiscXA21
	case c.Data > 0:
		return DiscData1
	}
	return DiscNoInfo
}

func (d *Device) readTOC() (cdda.TOC, error) {
	p := mmc.BuildReadTOC(mmc.TOCFormatTOC, false, 0, mmc.TOCAllocation)
	if err := d.exec(p); err != nil {
		if s, ok := senseOf(err); ok && s.Key == mmc.SenseNotReady && s.ASC == mmc.ASCMediumNotPresent {
			return cdda.TOC{}, fmt.Errorf("read TOC: %w", ErrNoMedia)
		}
		return cdda.TOC{}, err
	}
	toc, err := cdda.ParseTOC(p.Buffer)
	if err != nil {
		return cdda.TOC{}, fmt.Errorf("read TOC: %w", err)
	}
	return toc, nil
}

// countTracks classifies the tracks of the loaded disc. The disc type is
// only read when there are data tracks to attribute.
func (d *Device) countTracks() (cdda.TrackCounts, error) {
	toc, err := d.readTOC()
	if err != nil {
		return cdda.TrackCounts{}, err
	}
	discType := byte(mmc.DiscTypeCDROM)
	if toc.HasData() && d.can(CapGenericPacket) {
		if di, err := d.readDiscInfo(); err == nil && di.Length > 8 {
			discType = di.DiscType
		}
	}
	return toc.Count(discType), nil
}

func (d *Device) discStatus() (DiscStatus, error) {
	counts, err := d.countTracks()
	if errors.Is(err, ErrNoMedia) {
		return DiscNoDisc, nil
	}
	if err != nil {
		return DiscNoInfo, err
	}
	return ClassifyDisc(counts), nil
}

func (d *Device) tocHeader() (TOCHeader, error) {
	toc, err := d.readTOC()
	if err != nil {
		return TOCHeader{}, err
	}
	return TOCHeader{First: toc.FirstTrack, Last: toc.LastTrack}, nil
}

func (d *Device) tocEntry(track int, f AddrFormat) (TOCEntry, error) {
	if !f.valid() {
		return TOCEntry{}, fmt.Errorf("address format %d: %w", f, ErrInvalidArgument)
	}
	toc, err := d.readTOC()
	if err != nil {
		return TOCEntry{}, err
	}
	t, err := toc.Track(track)
	if err != nil {
		return TOCEntry{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return TOCEntry{
		Track:   t.Num,
		ADR:     t.ADR,
		Control: t.Control,
		Addr:    addressOf(t.LBA, f),
	}, nil
}

// MultiSession is the start of the last session.
type MultiSession struct {
	Addr Address
	XA   bool
}

func (d *Device) multiSession(f AddrFormat) (MultiSession, error) {
	if err := d.require(CapMultiSession); err != nil {
		return MultiSession{}, err
	}
	if !f.valid() {
		return MultiSession{}, fmt.Errorf("address format %d: %w", f, ErrInvalidArgument)
	}
	p := mmc.BuildReadTOC(mmc.TOCFormatSession, false, 0, 12)
	if err := d.exec(p); err != nil {
		return MultiSession{}, err
	}
	si, err := mmc.ParseSessionInfo(p.Buffer)
	if err != nil {
		return MultiSession{}, fmt.Errorf("session info: %w", err)
	}

	ms := MultiSession{Addr: addressOf(si.LBA, f)}
	if di, err := d.readDiscInfo(); err == nil && di.Length > 8 {
		ms.XA = di.DiscType == mmc.DiscTypeXA
	}
	return ms, nil
}

// SubChannel is the current play position.
type SubChannel struct {
	AudioStatus byte
	ADR         byte
	Control     byte
	Track       byte
	Index       byte
	Absolute    Address
	Relative    Address
}

func (d *Device) subChannel(f AddrFormat) (SubChannel, error) {
	if err := d.require(CapPlayAudio); err != nil {
		return SubChannel{}, err
	}
	if !f.valid() {
		return SubChannel{}, fmt.Errorf("address format %d: %w", f, ErrInvalidArgument)
	}
	p := mmc.BuildReadSubChannel(mmc.SubQPosition, false, 0)
	if err := d.exec(p); err != nil {
		return SubChannel{}, err
	}
	q, err := mmc.ParseSubChannel(p.Buffer)
	if err != nil {
		return SubChannel{}, fmt.Errorf("sub-channel: %w", err)
	}
	return SubChannel{
		AudioStatus: q.AudioStatus,
		ADR:         q.ADR,
		Control:     q.Control,
		Track:       q.Track,
		Index:       q.Index,
		Absolute:    addressOf(q.Absolute, f),
		Relative:    addressOf(q.Relative, f),
	}, nil
}

// mcn returns the media catalog number, empty when the disc has none.
func (d *Device) mcn() (string, error) {
	if err := d.require(CapMCN); err != nil {
		return "", err
	}
	p := mmc.BuildReadSubChannel(mmc.SubQMCN, false, 0)
	if err := d.exec(p); err != nil {
		return "", err
	}
	code, _ := mmc.ParseMCN(p.Buffer)
	return code, nil
}

func (d *Device) playMSF(start, end mmc.MSF) error {
	if err := d.require(CapPlayAudio); err != nil {
		return err
	}
	if !start.Valid() || !end.Valid() || mmc.MSFToLBA(end) < mmc.MSFToLBA(start) {
		return fmt.Errorf("play %s-%s: %w", start, end, ErrInvalidArgument)
	}
	if err := d.checkAudioDisc(); err != nil {
		return err
	}
	return d.exec(mmc.BuildPlayMSF(start, end))
}

func (d *Device) playTrackIndex(startTrack, startIndex, endTrack, endIndex int) error {
	if err := d.require(CapPlayAudio); err != nil {
		return err
	}
	for _, v := range []int{startTrack, startIndex, endTrack, endIndex} {
		if v < 0 || v > 99 {
			return fmt.Errorf("play track %d.%d-%d.%d: %w", startTrack, startIndex, endTrack, endIndex, ErrInvalidArgument)
		}
	}
	if err := d.checkAudioDisc(); err != nil {
		return err
	}
	return d.exec(mmc.BuildPlayTrackIndex(byte(startTrack), byte(startIndex), byte(endTrack), byte(endIndex)))
}

func (d *Device) playBlock(lba, length int) error {
	if err := d.require(CapPlayAudio); err != nil {
		return err
	}
	if lba < 0 || length < 0 || length > 0xFFFF {
		return fmt.Errorf("play block %d+%d: %w", lba, length, ErrInvalidArgument)
	}
	return d.exec(mmc.BuildPlayBlock(uint32(lba), uint16(length)))
}

func (d *Device) pauseResume(resume bool) error {
	if err := d.require(CapPlayAudio); err != nil {
		return err
	}
	return d.exec(mmc.BuildPauseResume(resume))
}

func (d *Device) startStop(start bool) error {
	if err := d.require(CapPlayAudio); err != nil {
		return err
	}
	return d.exec(mmc.BuildStartStop(start, false, false))
}

// Volume holds the four output port levels of the audio control page.
type Volume [4]byte

// volumeOffsets are the level bytes of the audio control page.
var volumeOffsets = [4]int{9, 11, 13, 15}

const audioPageLength = 16

func (d *Device) volume() (Volume, error) {
	var v Volume
	if err := d.require(CapPlayAudio); err != nil {
		return v, err
	}
	page, err := d.modeSense(mmc.PageAudioControl, mmc.PageCurrent, false)
	if err != nil {
		return v, err
	}
	if page.code() != mmc.PageAudioControl || page.length() < audioPageLength {
		return v, fmt.Errorf("audio control page: %w", mmc.ErrShortResponse)
	}
	for i, off := range volumeOffsets {
		v[i] = *page.field(off)
	}
	return v, nil
}

func (d *Device) setVolume(v Volume) error {
	if err := d.require(CapPlayAudio); err != nil {
		return err
	}
	set := make(map[int]byte, len(volumeOffsets))
	for i, off := range volumeOffsets {
		set[off] = v[i]
	}
	return d.updateModePage(mmc.PageAudioControl, set)
}

// SectorClass selects the block layout of a data read.
type SectorClass int

const (
	SectorMode1 SectorClass = iota // 2048 byte user data
	SectorMode2                    // 2336 byte mode 2 data
	SectorRaw                      // 2352 byte raw frame
)

func (c SectorClass) layout() (size int, sectorType byte, ok bool) {
	switch c {
	case SectorMode1:
		return mmc.BlockData, mmc.SectorMode1, true
	case SectorMode2:
		return mmc.BlockMode2, mmc.SectorAny, true
	case SectorRaw:
		return mmc.FrameSize, mmc.SectorAny, true
	}
	return 0, 0, false
}

// maxTransfer bounds a single read request.
const maxTransfer = 64 * 1024

// readData reads count blocks at lba. A drive that rejects READ CD as an
// illegal opcode is read once more with READ(10) after switching the block
// length, which is then restored.
func (d *Device) readData(lba, count int, class SectorClass) ([]byte, error) {
	if err := d.require(CapGenericPacket); err != nil {
		return nil, err
	}
	size, sectorType, ok := class.layout()
	if !ok || lba < 0 || count <= 0 || count*size > maxTransfer {
		return nil, fmt.Errorf("read %d blocks at %d: %w", count, lba, ErrInvalidArgument)
	}

	p := mmc.BuildReadCD(lba, count, sectorType, size)
	err := d.exec(p)
	if err == nil {
		return p.Buffer, nil
	}
	if s, ok := senseOf(err); !ok || !s.Is(mmc.SenseIllegalRequest, mmc.ASCInvalidOpcode, 0) {
		return nil, err
	}
	d.log.Debug("READ CD unsupported, switching block size", "size", size)
	return d.readBlockSized(lba, count, size)
}

// readBlockSized reads with READ(10), switching the block length to size
// for the read when it differs from the default.
func (d *Device) readBlockSized(lba, count, size int) ([]byte, error) {
	if size == mmc.BlockData {
		p := mmc.BuildRead10(lba, count, size)
		if err := d.exec(p); err != nil {
			return nil, err
		}
		return p.Buffer, nil
	}

	if err := d.exec(mmc.BuildModeSelectBlockSize(size)); err != nil {
		return nil, err
	}
	p := mmc.BuildRead10(lba, count, size)
	err := d.exec(p)
	if rerr := d.exec(mmc.BuildModeSelectBlockSize(mmc.BlockData)); rerr != nil {
		d.log.Warn("restore block size failed", "err", rerr)
		if err == nil {
			err = rerr
		}
	}
	if err != nil {
		return nil, err
	}
	return p.Buffer, nil
}

// CDDAMethod is how raw audio frames are read. A device only ever moves
// down the list.
type CDDAMethod int

const (
	CDDAMultiFrame  CDDAMethod = iota // many frames per command
	CDDASingleFrame                   // one frame per command
	CDDALegacy                        // plain READ CD with the default timeout
)

func (m CDDAMethod) String() string {
	switch m {
	case CDDAMultiFrame:
		return "multi-frame"
	case CDDASingleFrame:
		return "single-frame"
	case CDDALegacy:
		return "legacy"
	}
	return fmt.Sprintf("cdda method %d", int(m))
}

// readCDDA reads n raw audio frames starting at lba. A drive failure on a
// multi-frame read drops the device to single frames and retries; a
// hardware or aborted-command failure then drops it to the legacy method.
func (d *Device) readCDDA(lba, n int) ([]byte, error) {
	if err := d.require(CapGenericPacket); err != nil {
		return nil, err
	}
	if lba < 0 || n <= 0 || n > mmc.FramesPerSecond {
		return nil, fmt.Errorf("read %d frames at %d: %w", n, lba, ErrInvalidArgument)
	}
	if d.cdda == CDDALegacy {
		return d.readCDDALegacy(lba, n)
	}

	for {
		buf, err := d.readCDDAFrames(lba, n)
		if err == nil || !isCommandFailure(err) {
			return buf, err
		}
		if d.cdda == CDDAMultiFrame && n > 1 {
			d.log.Info("dropping to single frame audio reads", "err", err)
			d.cdda = CDDASingleFrame
			continue
		}
		s, ok := senseOf(err)
		if !ok || (s.Key != mmc.SenseHardwareError && s.Key != mmc.SenseAbortedCommand) {
			return nil, err
		}
		d.log.Info("dropping to legacy audio reads", "sense", s.String())
		d.cdda = CDDALegacy
		return d.readCDDALegacy(lba, n)
	}
}

func (d *Device) readCDDAFrames(lba, n int) ([]byte, error) {
	out := make([]byte, 0, n*mmc.FrameSize)
	for n > 0 {
		nr := min(n, d.maxFrames)
		if d.cdda == CDDASingleFrame {
			nr = 1
		}
		p := mmc.BuildReadCDDA(lba, nr)
		if err := d.exec(p); err != nil {
			return nil, err
		}
		out = append(out, p.Buffer...)
		lba += nr
		n -= nr
	}
	return out, nil
}

func (d *Device) readCDDALegacy(lba, n int) ([]byte, error) {
	out := make([]byte, 0, n*mmc.FrameSize)
	for n > 0 {
		nr := min(n, d.maxFrames)
		p := mmc.BuildReadCD(lba, nr, mmc.SectorCDDA, mmc.FrameSize)
		if err := d.exec(p); err != nil {
			return nil, err
		}
		out = append(out, p.Buffer...)
		lba += nr
		n -= nr
	}
	return out, nil
}

// CDDAMethod returns the current audio read method.
func (d *Device) CDDAMethod() CDDAMethod {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cdda
}

// StructureType selects a DVD structure.
type StructureType int

const (
	StructPhysical      StructureType = mmc.DVDStructPhysical
	StructCopyright     StructureType = mmc.DVDStructCopyright
	StructDiscKey       StructureType = mmc.DVDStructDiscKey
	StructBCA           StructureType = mmc.DVDStructBCA
	StructManufacturing StructureType = mmc.DVDStructManufacturing
)

// Structure is a DVD structure. Physical and Copyright are set for their
// types; Data holds the payload of the others.
type Structure struct {
	Type      StructureType
	Physical  mmc.Layer
	Copyright mmc.Copyright
	Data      []byte
}

// readStructure reads a DVD structure. layer addresses physical and
// copyright information; agid is the grant for the disc key.
func (d *Device) readStructure(typ StructureType, layer int, agid byte) (Structure, error) {
	if err := d.require(CapDVD); err != nil {
		return Structure{}, err
	}
	if layer < 0 || layer >= mmc.MaxDVDLayers {
		return Structure{}, fmt.Errorf("layer %d: %w", layer, ErrInvalidArgument)
	}
	st := Structure{Type: typ}

	read := func(length int) ([]byte, error) {
		p := mmc.BuildReadDVDStructure(byte(typ), byte(layer), 0, length)
		if err := d.exec(p); err != nil {
			return nil, err
		}
		return p.Buffer, nil
	}

	var err error
	switch typ {
	case StructPhysical:
		var buf []byte
		if buf, err = read(mmc.PhysicalLength); err == nil {
			st.Physical, err = mmc.ParsePhysical(buf)
		}
	case StructCopyright:
		var buf []byte
		if buf, err = read(mmc.CopyrightLength); err == nil {
			st.Copyright, err = mmc.ParseCopyright(buf)
		}
	case StructDiscKey:
		st.Data, err = d.discKey(agid)
	case StructBCA:
		var buf []byte
		if buf, err = read(mmc.BCALength); err == nil {
			st.Data, err = mmc.ParseBCA(buf)
		}
	case StructManufacturing:
		var buf []byte
		if buf, err = read(mmc.ManufacturingLength); err == nil {
			st.Data, err = mmc.ParseManufacturing(buf)
		}
	default:
		return Structure{}, fmt.Errorf("structure type %d: %w", typ, ErrInvalidArgument)
	}
	if err != nil {
		return Structure{}, err
	}
	return st, nil
}
