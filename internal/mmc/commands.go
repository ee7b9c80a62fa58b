package mmc

import (
	"encoding/binary"
)

// BuildTestUnitReady creates the TEST UNIT READY packet.
func BuildTestUnitReady() *Packet {
	p := newPacket(OpTestUnitReady, 0, DirNone)
	p.Quiet = true
	return p
}

// BuildRequestSense creates a REQUEST SENSE packet for fixed-format sense data.
func BuildRequestSense() *Packet {
	p := newPacket(OpRequestSense, SenseLength, DirIn)
	p.Cmd[4] = SenseLength
	return p
}

// BuildInquiry creates the INQUIRY packet requesting 36 bytes of response.
func BuildInquiry() *Packet {
	p := newPacket(OpInquiry, 36, DirIn)
	p.Cmd[4] = 36
	return p
}

// BuildStartStop creates a START STOP UNIT packet.
// With loadEject set, start=false opens the tray and start=true closes it.
func BuildStartStop(start, loadEject, immed bool) *Packet {
	p := newPacket(OpStartStopUnit, 0, DirNone)
	if immed {
		p.Cmd[1] = 0x01
	}
	if start {
		p.Cmd[4] |= 0x01
	}
	if loadEject {
		p.Cmd[4] |= 0x02
	}
	return p
}

// BuildPreventAllow creates a PREVENT ALLOW MEDIUM REMOVAL packet.
func BuildPreventAllow(prevent bool) *Packet {
	p := newPacket(OpPreventAllow, 0, DirNone)
	if prevent {
		p.Cmd[4] = 0x01
	}
	return p
}

// MaxSpeed asks SET CD SPEED for the fastest rate the drive supports.
const MaxSpeed = 0xFFFF

// BuildSetCDSpeed creates a SET CD SPEED packet. kbps is the read speed in
// kilobytes per second, or MaxSpeed.
func BuildSetCDSpeed(kbps int) *Packet {
	p := newPacket(OpSetCDSpeed, 0, DirNone)
	if kbps <= 0 || kbps > MaxSpeed {
		kbps = MaxSpeed
	}
	binary.BigEndian.PutUint16(p.Cmd[2:4], uint16(kbps))
	binary.BigEndian.PutUint16(p.Cmd[4:6], MaxSpeed)
	return p
}

// Mode page control values
const (
	PageCurrent    = 0
	PageChangeable = 1
	PageDefault    = 2
	PageSaved      = 3
)

// Mode pages
const (
	PageAudioControl = 0x0E
	PageMRW          = 0x03
	PageMRWLegacy    = 0x2C
	PageAll          = 0x3F
)

// BuildModeSense creates a MODE SENSE(10) packet for page with the given
// page control and allocation length.
func BuildModeSense(page, control byte, length int) *Packet {
	p := newPacket(OpModeSense10, length, DirIn)
	p.Cmd[2] = page&0x3F | control<<6
	binary.BigEndian.PutUint16(p.Cmd[7:9], uint16(length))
	return p
}

// BuildModeSelect creates a MODE SELECT(10) packet carrying data, a complete
// mode parameter list. The mode data length field is zeroed as MMC requires.
func BuildModeSelect(data []byte) *Packet {
	p := newPacket(OpModeSelect10, len(data), DirOut)
	copy(p.Buffer, data)
	if len(p.Buffer) >= 2 {
		p.Buffer[0], p.Buffer[1] = 0, 0
	}
	p.Cmd[1] = 0x10 // page format
	binary.BigEndian.PutUint16(p.Cmd[7:9], uint16(len(data)))
	return p
}

// BuildModeSelectBlockSize creates the MODE SELECT(6) packet that switches
// the logical block length through a single block descriptor.
func BuildModeSelectBlockSize(size int) *Packet {
	p := newPacket(OpModeSelect6, 12, DirOut)
	p.Cmd[1] = 0x10
	p.Cmd[4] = 12
	p.Buffer[3] = 8 // block descriptor length
	p.Buffer[9] = byte(size >> 16)
	p.Buffer[10] = byte(size >> 8)
	p.Buffer[11] = byte(size)
	return p
}

// TOC formats for READ TOC
const (
	TOCFormatTOC     = 0x00
	TOCFormatSession = 0x01
	TOCFormatFull    = 0x02
)

// TOCAllocation is the allocation length for a full TOC read.
const TOCAllocation = 1020

// BuildReadTOC creates a READ TOC packet. msf selects MSF addressing in the
// response; track is the starting track (0 for all tracks).
func BuildReadTOC(format byte, msf bool, track byte, length int) *Packet {
	p := newPacket(OpReadTOC, length, DirIn)
	if msf {
		p.Cmd[1] = 0x02
	}
	p.Cmd[2] = format & 0x0F
	p.Cmd[6] = track
	binary.BigEndian.PutUint16(p.Cmd[7:9], uint16(length))
	return p
}

// Sub-channel data formats
const (
	SubQPosition = 0x01
	SubQMCN      = 0x02
	SubQISRC     = 0x03
)

// SubChannelLength is the response length used for position and MCN reads.
const SubChannelLength = 24

// BuildReadSubChannel creates a READ SUB-CHANNEL packet requesting Q data.
func BuildReadSubChannel(format byte, msf bool, track byte) *Packet {
	p := newPacket(OpReadSubChannel, SubChannelLength, DirIn)
	if msf {
		p.Cmd[1] = 0x02
	}
	p.Cmd[2] = 0x40 // SubQ
	p.Cmd[3] = format
	p.Cmd[6] = track
	binary.BigEndian.PutUint16(p.Cmd[7:9], SubChannelLength)
	return p
}

// BuildReadDiscInfo creates a READ DISC INFORMATION packet.
func BuildReadDiscInfo(length int) *Packet {
	p := newPacket(OpReadDiscInfo, length, DirIn)
	p.Quiet = true
	binary.BigEndian.PutUint16(p.Cmd[7:9], uint16(length))
	return p
}

// Address types for READ TRACK INFORMATION
const (
	TrackAddrLBA     = 0x00
	TrackAddrTrack   = 0x01
	TrackAddrSession = 0x02
)

// BuildReadTrackInfo creates a READ TRACK INFORMATION packet.
func BuildReadTrackInfo(addrType byte, number uint32, length int) *Packet {
	p := newPacket(OpReadTrackInfo, length, DirIn)
	p.Quiet = true
	p.Cmd[1] = addrType & 0x03
	binary.BigEndian.PutUint32(p.Cmd[2:6], number)
	binary.BigEndian.PutUint16(p.Cmd[7:9], uint16(length))
	return p
}

// BuildPlayMSF creates a PLAY AUDIO MSF packet.
func BuildPlayMSF(start, end MSF) *Packet {
	p := newPacket(OpPlayAudioMSF, 0, DirNone)
	p.Cmd[3], p.Cmd[4], p.Cmd[5] = start.Minute, start.Second, start.Frame
	p.Cmd[6], p.Cmd[7], p.Cmd[8] = end.Minute, end.Second, end.Frame
	return p
}

// BuildPlayTrackIndex creates a PLAY AUDIO TRACK INDEX packet.
func BuildPlayTrackIndex(startTrack, startIndex, endTrack, endIndex byte) *Packet {
	p := newPacket(OpPlayTrackIndex, 0, DirNone)
	p.Cmd[4] = startTrack
	p.Cmd[5] = startIndex
	p.Cmd[7] = endTrack
	p.Cmd[8] = endIndex
	return p
}

// BuildPlayBlock creates a PLAY AUDIO(10) packet.
func BuildPlayBlock(lba uint32, length uint16) *Packet {
	p := newPacket(OpPlayAudio10, 0, DirNone)
	binary.BigEndian.PutUint32(p.Cmd[2:6], lba)
	binary.BigEndian.PutUint16(p.Cmd[7:9], length)
	return p
}

// BuildPauseResume creates a PAUSE RESUME packet.
func BuildPauseResume(resume bool) *Packet {
	p := newPacket(OpPauseResume, 0, DirNone)
	if resume {
		p.Cmd[8] = 0x01
	}
	return p
}

// Expected sector types for READ CD
const (
	SectorAny   = 0
	SectorCDDA  = 1
	SectorMode1 = 2
	SectorMode2 = 3
)

// Block sizes
const (
	BlockData  = 2048
	BlockMode2 = 2336
	BlockXA    = 2340
	FrameSize  = 2352 // raw CD-DA frame
)

// FramesPerSecond is the number of CD frames per second of audio.
const FramesPerSecond = 75

// BuildReadCD creates a READ CD packet for blocks of blockSize bytes.
// The byte 9 field selection follows the block size: 2336 selects the
// mode 2 user data, 2340 adds headers, 2352 returns the raw frame.
func BuildReadCD(lba, blocks int, sectorType byte, blockSize int) *Packet {
	p := newPacket(OpReadCD, blocks*blockSize, DirIn)
	p.Cmd[1] = sectorType << 2
	binary.BigEndian.PutUint32(p.Cmd[2:6], uint32(lba))
	p.Cmd[6] = byte(blocks >> 16)
	p.Cmd[7] = byte(blocks >> 8)
	p.Cmd[8] = byte(blocks)
	switch blockSize {
	case BlockMode2:
		p.Cmd[9] = 0x58
	case BlockXA:
		p.Cmd[9] = 0x78
	case FrameSize:
		p.Cmd[9] = 0xF8
	default:
		p.Cmd[9] = 0x10
	}
	return p
}

// BuildReadCDDA creates a READ CD packet for numFrames raw audio frames.
func BuildReadCDDA(lba, numFrames int) *Packet {
	p := BuildReadCD(lba, numFrames, SectorCDDA, FrameSize)
	p.Timeout = ReadAudioTimeout
	return p
}

// BuildRead10 creates a READ(10) packet.
func BuildRead10(lba, blocks, blockSize int) *Packet {
	p := newPacket(OpRead10, blocks*blockSize, DirIn)
	binary.BigEndian.PutUint32(p.Cmd[2:6], uint32(lba))
	binary.BigEndian.PutUint16(p.Cmd[7:9], uint16(blocks))
	return p
}

// BuildSyncCache creates a SYNCHRONIZE CACHE packet.
func BuildSyncCache() *Packet {
	p := newPacket(OpSyncCache, 0, DirNone)
	p.Timeout = FlushTimeout
	return p
}

// CLOSE TRACK SESSION functions
const (
	CloseTrack         = 0x00
	CloseSession       = 0x02
	CloseFinalizeDisc  = 0x06
	CloseSuspendFormat = 0x02
)

// BuildCloseTrackSession creates a CLOSE TRACK SESSION packet.
func BuildCloseTrackSession(function byte, immed bool) *Packet {
	p := newPacket(OpCloseTrackSession, 0, DirNone)
	if immed {
		p.Cmd[1] = 0x01
	}
	p.Cmd[2] = function & 0x07
	p.Timeout = CloseTimeout
	p.Quiet = true
	return p
}

// BuildFormatUnit creates the FORMAT UNIT packet that starts or restarts a
// background format. The 12-byte parameter list carries a single format
// descriptor covering the whole medium.
func BuildFormatUnit(restart, immed bool) *Packet {
	p := newPacket(OpFormatUnit, 12, DirOut)
	p.Cmd[1] = 0x11 // FmtData, format code 1
	if immed {
		p.Buffer[1] = 0x02
	}
	p.Buffer[3] = 8
	p.Buffer[4], p.Buffer[5], p.Buffer[6], p.Buffer[7] = 0xFF, 0xFF, 0xFF, 0xFF
	p.Buffer[8] = 0x24 << 2 // format type: MRW full format
	if restart {
		p.Buffer[11] = 1
	}
	p.Timeout = FormatTimeout
	return p
}

// Feature codes for GET CONFIGURATION
const (
	FeatureProfileList    = 0x0000
	FeatureRandomWritable = 0x0020
	FeatureDefectManaged  = 0x0024
	FeatureMRW            = 0x0028
)

// Requested types for GET CONFIGURATION
const (
	ConfigAll     = 0x00
	ConfigCurrent = 0x01
	ConfigOne     = 0x02
)

// BuildGetConfiguration creates a GET CONFIGURATION packet starting at
// feature.
func BuildGetConfiguration(rt byte, feature uint16, length int) *Packet {
	p := newPacket(OpGetConfiguration, length, DirIn)
	p.Cmd[1] = rt & 0x03
	binary.BigEndian.PutUint16(p.Cmd[2:4], feature)
	binary.BigEndian.PutUint16(p.Cmd[7:9], uint16(length))
	p.Quiet = true
	return p
}

// Notification class for media events
const NotifyMedia = 0x10

// BuildGetEventStatus creates a polled GET EVENT STATUS NOTIFICATION packet.
func BuildGetEventStatus(classes byte) *Packet {
	p := newPacket(OpGetEventStatus, 8, DirIn)
	p.Cmd[1] = 0x01 // polled
	p.Cmd[4] = classes
	binary.BigEndian.PutUint16(p.Cmd[7:9], 8)
	p.Quiet = true
	return p
}

// BuildLoadUnload creates a LOAD UNLOAD MEDIUM packet. A negative slot
// unloads the current disc without naming a slot.
func BuildLoadUnload(slot int) *Packet {
	p := newPacket(OpLoadUnload, 0, DirNone)
	p.Cmd[4] = 0x02
	if slot >= 0 {
		p.Cmd[4] |= 0x01
		p.Cmd[8] = byte(slot)
	}
	p.Timeout = LoadUnloadTimeout
	return p
}

// MechStatusLength returns the MECHANISM STATUS allocation length for a
// changer with capacity slots.
func MechStatusLength(capacity int) int {
	return mechHeaderSize + capacity*mechSlotSize
}

// BuildMechanismStatus creates a MECHANISM STATUS packet sized for
// capacity slots.
func BuildMechanismStatus(capacity int) *Packet {
	length := MechStatusLength(capacity)
	p := newPacket(OpMechanismStatus, length, DirIn)
	binary.BigEndian.PutUint16(p.Cmd[8:10], uint16(length))
	return p
}

// DVD structure formats
const (
	DVDStructPhysical      = 0x00
	DVDStructCopyright     = 0x01
	DVDStructDiscKey       = 0x02
	DVDStructBCA           = 0x03
	DVDStructManufacturing = 0x04
)

// MaxDVDLayers is the number of layers a physical format read may address.
const MaxDVDLayers = 4

// BuildReadDVDStructure creates a READ DVD STRUCTURE packet.
func BuildReadDVDStructure(format, layer, agid byte, length int) *Packet {
	p := newPacket(OpReadDVDStructure, length, DirIn)
	p.Cmd[6] = layer
	p.Cmd[7] = format
	binary.BigEndian.PutUint16(p.Cmd[8:10], uint16(length))
	p.Cmd[10] = agid << 6
	return p
}

// REPORT KEY and SEND KEY formats
const (
	KeyAGID       = 0x00
	KeyChallenge  = 0x01
	KeyKey1       = 0x02
	KeyKey2       = 0x03
	KeyTitle      = 0x04
	KeyASF        = 0x05
	KeySetRegion  = 0x06
	KeyRPCState   = 0x08
	KeyInvalidate = 0x3F
)

var reportKeyLength = map[byte]int{
	KeyAGID:      8,
	KeyChallenge: 16,
	KeyKey1:      12,
	KeyTitle:     12,
	KeyASF:       8,
	KeyRPCState:  8,
}

// Challenge and bus key sizes
const (
	ChallengeSize = 10
	KeySize       = 5
)

// BuildReportKey creates a REPORT KEY packet. lba is only used for the
// title key format.
func BuildReportKey(format, agid byte, lba uint32) *Packet {
	length := reportKeyLength[format]
	p := newPacket(OpReportKey, length, DirIn)
	if format == KeyTitle {
		binary.BigEndian.PutUint32(p.Cmd[2:6], lba)
	}
	binary.BigEndian.PutUint16(p.Cmd[8:10], uint16(length))
	p.Cmd[10] = format&0x3F | agid<<6
	return p
}

// BuildInvalidateAGID creates the REPORT KEY packet that releases agid.
func BuildInvalidateAGID(agid byte) *Packet {
	p := newPacket(OpReportKey, 0, DirNone)
	p.Cmd[10] = KeyInvalidate | agid<<6
	p.Quiet = true
	return p
}

func buildSendKey(format, agid byte, length int) *Packet {
	p := newPacket(OpSendKey, length, DirOut)
	binary.BigEndian.PutUint16(p.Cmd[8:10], uint16(length))
	p.Cmd[10] = format&0x3F | agid<<6
	binary.BigEndian.PutUint16(p.Buffer[0:2], uint16(length-2))
	return p
}

// BuildSendChallenge creates the SEND KEY packet carrying the host challenge.
func BuildSendChallenge(agid byte, challenge [ChallengeSize]byte) *Packet {
	p := buildSendKey(KeyChallenge, agid, 16)
	copy(p.Buffer[4:], challenge[:])
	return p
}

// BuildSendKey2 creates the SEND KEY packet carrying the host key.
func BuildSendKey2(agid byte, key [KeySize]byte) *Packet {
	p := buildSendKey(KeyKey2, agid, 12)
	copy(p.Buffer[4:], key[:])
	return p
}

// BuildSetRegion creates the SEND KEY packet that sets the drive region
// mask (RPC phase II preferred region).
func BuildSetRegion(regionMask byte) *Packet {
	p := buildSendKey(KeySetRegion, 0, 8)
	p.Buffer[4] = regionMask
	return p
}

// InquiryData represents parsed INQUIRY response
type InquiryData struct {
	DeviceType byte   // Peripheral device type (5 = CD-ROM)
	Vendor     string // 8 chars
	Product    string // 16 chars
	Revision   string // 4 chars
}

// ParseInquiry parses a 36-byte INQUIRY response.
// This is a pure function.
func ParseInquiry(data []byte) InquiryData {
	if len(data) < 36 {
		return InquiryData{}
	}

	return InquiryData{
		DeviceType: data[0] & 0x1F,
		Vendor:     trimString(data[8:16]),
		Product:    trimString(data[16:32]),
		Revision:   trimString(data[32:36]),
	}
}

// trimString trims trailing spaces from ASCII bytes
func trimString(b []byte) string {
	s := string(b)
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}
