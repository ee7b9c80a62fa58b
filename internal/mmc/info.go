package mmc

import (
	"encoding/binary"

	"github.com/samber/lo"
)

// Record sizes used by the two-phase reads. The first read fetches only
// the length field; the second re-issues with the reported length, capped
// at the largest record this package understands.
const (
	RecordHeaderSize = 2
	DiscInfoSize     = 34
	TrackInfoSize    = 36
	TrackInfoProbe   = 8
)

// RecordLength returns the total record length announced by the two-byte
// length field of a disc or track information header, capped at limit.
func RecordLength(header []byte, limit int) int {
	if len(header) < RecordHeaderSize {
		return 0
	}
	n := int(binary.BigEndian.Uint16(header[0:2])) + RecordHeaderSize
	return min(n, limit)
}

// Disc status values (disc information byte 2, bits 0-1)
const (
	DiscEmpty      = 0
	DiscIncomplete = 1
	DiscComplete   = 2
	DiscOther      = 3
)

// Disc types (disc information byte 8)
const (
	DiscTypeCDROM = 0x00
	DiscTypeCDI   = 0x10
	DiscTypeXA    = 0x20
)

// DiscInfo is a parsed READ DISC INFORMATION record. Length is the number
// of bytes the drive actually returned; fields beyond it are zero.
type DiscInfo struct {
	Length       int
	Status       byte
	BorderStatus byte
	Erasable     bool
	FirstTrack   int
	Sessions     int
	FirstTrackLS int // first track in last session
	LastTrackLS  int // last track in last session
	MRWStatus    byte
	Dirty        bool
	DiscType     byte
}

// Minimum record lengths for the disc information fields callers depend on.
const (
	discInfoErasableLen  = 3
	discInfoLastTrackLen = 7
	discInfoMRWLen       = 8
	discInfoFullTrackLen = 12
)

// HasErasable reports whether the erasable flag was returned.
func (d DiscInfo) HasErasable() bool { return d.Length >= discInfoErasableLen }

// HasLastTrack reports whether the last-track field was returned.
func (d DiscInfo) HasLastTrack() bool { return d.Length >= discInfoLastTrackLen }

// HasFullLastTrack reports whether both bytes of the last-track number were
// returned.
func (d DiscInfo) HasFullLastTrack() bool { return d.Length >= discInfoFullTrackLen }

// HasMRWStatus reports whether the background format status was returned.
func (d DiscInfo) HasMRWStatus() bool { return d.Length >= discInfoMRWLen }

// ParseDiscInfo parses a disc information record of any length.
// This is a pure function.
func ParseDiscInfo(data []byte) DiscInfo {
	get := func(i int) byte {
		if i < len(data) {
			return data[i]
		}
		return 0
	}

	d := DiscInfo{Length: len(data)}
	b2 := get(2)
	d.Status = b2 & 0x03
	d.BorderStatus = (b2 >> 2) & 0x03
	d.Erasable = b2&0x10 != 0
	d.FirstTrack = int(get(3))
	d.Sessions = int(get(9))<<8 | int(get(4))
	d.FirstTrackLS = int(get(10))<<8 | int(get(5))
	d.LastTrackLS = int(get(11))<<8 | int(get(6))
	d.MRWStatus = get(7) & 0x03
	d.Dirty = get(7)&0x04 != 0
	d.DiscType = get(8)
	return d
}

// TrackInfo is a parsed READ TRACK INFORMATION record.
type TrackInfo struct {
	Length          int
	Track           int
	Session         int
	TrackMode       byte
	Copy            bool
	Damage          bool
	DataMode        byte
	FixedPacket     bool
	Packet          bool
	Blank           bool
	Reserved        bool
	NWAValid        bool
	LRAValid        bool
	Start           uint32
	NextWritable    uint32
	FreeBlocks      uint32
	FixedPacketSize uint32
	Size            uint32
	LastRecorded    uint32
}

// Minimum record lengths for track information fields.
const (
	trackInfoStartLen = 8
	trackInfoNWALen   = 16
	trackInfoSizeLen  = 28
	trackInfoLRALen   = 32
)

// HasStart reports whether the track start address was returned.
func (t TrackInfo) HasStart() bool { return t.Length >= trackInfoStartLen }

// HasNextWritable reports whether the next writable address was returned.
func (t TrackInfo) HasNextWritable() bool { return t.Length >= trackInfoNWALen }

// HasSize reports whether the track size was returned.
func (t TrackInfo) HasSize() bool { return t.Length >= trackInfoSizeLen }

// HasLastRecorded reports whether the last recorded address was returned.
func (t TrackInfo) HasLastRecorded() bool { return t.Length >= trackInfoLRALen }

// ParseTrackInfo parses a track information record of any length.
// This is a pure function.
func ParseTrackInfo(data []byte) TrackInfo {
	get := func(i int) byte {
		if i < len(data) {
			return data[i]
		}
		return 0
	}
	u32 := func(i int) uint32 {
		if i+4 <= len(data) {
			return binary.BigEndian.Uint32(data[i : i+4])
		}
		return 0
	}

	t := TrackInfo{Length: len(data)}
	t.Track = int(get(32))<<8 | int(get(2))
	t.Session = int(get(33))<<8 | int(get(3))
	b5, b6, b7 := get(5), get(6), get(7)
	t.TrackMode = b5 & 0x0F
	t.Copy = b5&0x10 != 0
	t.Damage = b5&0x20 != 0
	t.DataMode = b6 & 0x0F
	t.FixedPacket = b6&0x10 != 0
	t.Packet = b6&0x20 != 0
	t.Blank = b6&0x40 != 0
	t.Reserved = b6&0x80 != 0
	t.NWAValid = b7&0x01 != 0
	t.LRAValid = b7&0x02 != 0
	t.Start = u32(8)
	t.NextWritable = u32(12)
	t.FreeBlocks = u32(16)
	t.FixedPacketSize = u32(20)
	t.Size = u32(24)
	t.LastRecorded = u32(28)
	return t
}

// Changer states (mechanism status byte 0, bits 5-6)
const (
	ChangerReady     = 0
	ChangerLoading   = 1
	ChangerUnloading = 2
	ChangerInit      = 3
)

const (
	mechHeaderSize = 8
	mechSlotSize   = 4
)

// SlotEntry is one slot table entry of a mechanism status record.
type SlotEntry struct {
	DiscPresent bool
	Changed     bool
}

// MechStatus is a parsed MECHANISM STATUS record.
type MechStatus struct {
	Fault        bool
	ChangerState byte
	CurrentSlot  int
	MechState    byte
	DoorOpen     bool
	LBA          uint32
	NumSlots     int
	Slots        []SlotEntry
}

// ParseMechStatus parses a mechanism status record. The slot table is
// sliced into four-byte entries; a trailing partial entry is ignored.
func ParseMechStatus(data []byte) (MechStatus, bool) {
	if len(data) < mechHeaderSize {
		return MechStatus{}, false
	}

	m := MechStatus{
		Fault:        data[0]&0x80 != 0,
		ChangerState: (data[0] >> 5) & 0x03,
		CurrentSlot:  int(data[0] & 0x1F),
		MechState:    data[1] >> 5,
		DoorOpen:     data[1]&0x10 != 0,
		LBA:          uint32(data[2])<<16 | uint32(data[3])<<8 | uint32(data[4]),
	}

	m.NumSlots = int(data[5])
	table := data[mechHeaderSize:]
	entries := lo.Filter(lo.Chunk(table, mechSlotSize), func(e []byte, _ int) bool {
		return len(e) == mechSlotSize
	})
	if len(entries) > m.NumSlots {
		entries = entries[:m.NumSlots]
	}
	m.Slots = lo.Map(entries, func(e []byte, _ int) SlotEntry {
		return SlotEntry{
			DiscPresent: e[0]&0x80 != 0,
			Changed:     e[0]&0x01 != 0,
		}
	})
	return m, true
}

// Mode parameter header size for the 10-byte commands.
const ModeHeaderSize = 8

// ModePageOffset returns the offset of the first mode page in a MODE
// SENSE(10) response, past the header and any block descriptors.
func ModePageOffset(data []byte) (int, bool) {
	if len(data) < ModeHeaderSize {
		return 0, false
	}
	off := ModeHeaderSize + int(binary.BigEndian.Uint16(data[6:8]))
	if off >= len(data) {
		return 0, false
	}
	return off, true
}

// ModeDataLength returns the full length of a mode parameter list as
// announced by its header.
func ModeDataLength(data []byte) int {
	if len(data) < 2 {
		return 0
	}
	return int(binary.BigEndian.Uint16(data[0:2])) + 2
}

// Feature is the first descriptor of a GET CONFIGURATION response.
type Feature struct {
	Profile uint16
	Code    uint16
	Current bool
	Data    []byte // descriptor bytes after the four-byte descriptor header
}

const featureHeaderSize = 8

// ParseFeature parses the feature header and the first descriptor of a
// GET CONFIGURATION response.
func ParseFeature(data []byte) (Feature, bool) {
	if len(data) < featureHeaderSize+4 {
		return Feature{}, false
	}
	desc := data[featureHeaderSize:]
	f := Feature{
		Profile: binary.BigEndian.Uint16(data[6:8]),
		Code:    binary.BigEndian.Uint16(desc[0:2]),
		Current: desc[2]&0x01 != 0,
	}
	n := min(int(desc[3]), len(desc)-4)
	f.Data = desc[4 : 4+n]
	return f, true
}

// ParseProfile returns the current profile of a GET CONFIGURATION response.
func ParseProfile(data []byte) (uint16, bool) {
	if len(data) < featureHeaderSize {
		return 0, false
	}
	return binary.BigEndian.Uint16(data[6:8]), true
}

// MMC-3 profiles
const (
	ProfileNone      = 0x0000
	ProfileCDROM     = 0x0008
	ProfileCDR       = 0x0009
	ProfileCDRW      = 0x000A
	ProfileDVDROM    = 0x0010
	ProfileDVDR      = 0x0011
	ProfileDVDRAM    = 0x0012
	ProfileDVDRWRO   = 0x0013
	ProfileDVDRWSeq  = 0x0014
	ProfileDVDPlusRW = 0x001A
	ProfileDVDPlusR  = 0x001B
	ProfileUnknown   = 0xFFFF
)

// MediaEvent is the media class descriptor of GET EVENT STATUS NOTIFICATION.
type MediaEvent struct {
	Code         byte
	DoorOpen     bool
	MediaPresent bool
}

// Media event codes
const (
	MediaEventNone    = 0
	MediaEventEject   = 1
	MediaEventNew     = 2
	MediaEventRemoval = 3
	MediaEventChanged = 4
)

// ParseMediaEvent parses a polled media event response.
func ParseMediaEvent(data []byte) (MediaEvent, bool) {
	if len(data) < 8 {
		return MediaEvent{}, false
	}
	if data[2]&0x80 != 0 || data[2]&0x07 != 0x04 {
		return MediaEvent{}, false
	}
	return MediaEvent{
		Code:         data[4] & 0x0F,
		DoorOpen:     data[5]&0x01 != 0,
		MediaPresent: data[5]&0x02 != 0,
	}, true
}

// Audio status values reported in the sub-channel header.
const (
	AudioInvalid   = 0x00
	AudioPlaying   = 0x11
	AudioPaused    = 0x12
	AudioCompleted = 0x13
	AudioError     = 0x14
	AudioNoStatus  = 0x15
)

// SubChannel is a current-position sub-channel Q record in LBA form.
type SubChannel struct {
	AudioStatus byte
	ADR         byte
	Control     byte
	Track       byte
	Index       byte
	Absolute    int
	Relative    int
}

// ParseSubChannel parses a READ SUB-CHANNEL current position response
// requested with LBA addressing.
func ParseSubChannel(data []byte) (SubChannel, error) {
	if len(data) < 16 {
		return SubChannel{}, ErrShortResponse
	}
	return SubChannel{
		AudioStatus: data[1],
		ADR:         data[5] >> 4,
		Control:     data[5] & 0x0F,
		Track:       data[6],
		Index:       data[7],
		Absolute:    int(int32(binary.BigEndian.Uint32(data[8:12]))),
		Relative:    int(int32(binary.BigEndian.Uint32(data[12:16]))),
	}, nil
}

// MCNLength is the length of a media catalog number.
const MCNLength = 13

// ParseMCN returns the media catalog number, or false when the drive
// reports none.
func ParseMCN(data []byte) (string, bool) {
	if len(data) < 9+MCNLength || data[8]&0x80 == 0 {
		return "", false
	}
	return string(data[9 : 9+MCNLength]), true
}

// SessionInfo is a READ TOC format 1 response: the first track of the
// last session and its start address.
type SessionInfo struct {
	FirstSession int
	LastSession  int
	Control      byte
	FirstTrack   int
	LBA          int
}

// ParseSessionInfo parses a READ TOC session response with LBA addressing.
func ParseSessionInfo(data []byte) (SessionInfo, error) {
	if len(data) < 12 {
		return SessionInfo{}, ErrShortResponse
	}
	return SessionInfo{
		FirstSession: int(data[2]),
		LastSession:  int(data[3]),
		Control:      data[5] & 0x0F,
		FirstTrack:   int(data[6]),
		LBA:          int(int32(binary.BigEndian.Uint32(data[8:12]))),
	}, nil
}
