// Package mmc builds MMC (SCSI multimedia) command packets and parses the
// fixed-layout records drives return. Nothing in this package talks to a
// drive; every function is pure.
package mmc

import (
	"fmt"
	"time"
)

// Opcode is the first byte of a command descriptor block.
type Opcode byte

// MMC opcodes
const (
	OpTestUnitReady     Opcode = 0x00
	OpRequestSense      Opcode = 0x03
	OpFormatUnit        Opcode = 0x04
	OpInquiry           Opcode = 0x12
	OpModeSelect6       Opcode = 0x15
	OpStartStopUnit     Opcode = 0x1B
	OpPreventAllow      Opcode = 0x1E
	OpRead10            Opcode = 0x28
	OpSyncCache         Opcode = 0x35
	OpReadSubChannel    Opcode = 0x42
	OpReadTOC           Opcode = 0x43
	OpPlayAudio10       Opcode = 0x45
	OpGetConfiguration  Opcode = 0x46
	OpPlayAudioMSF      Opcode = 0x47
	OpPlayTrackIndex    Opcode = 0x48
	OpGetEventStatus    Opcode = 0x4A
	OpPauseResume       Opcode = 0x4B
	OpReadDiscInfo      Opcode = 0x51
	OpReadTrackInfo     Opcode = 0x52
	OpModeSelect10      Opcode = 0x55
	OpModeSense10       Opcode = 0x5A
	OpCloseTrackSession Opcode = 0x5B
	OpSendKey           Opcode = 0xA3
	OpReportKey         Opcode = 0xA4
	OpLoadUnload        Opcode = 0xA6
	OpReadDVDStructure  Opcode = 0xAD
	OpSetCDSpeed        Opcode = 0xBB
	OpMechanismStatus   Opcode = 0xBD
	OpReadCD            Opcode = 0xBE
)

var opcodeNames = map[Opcode]string{
	OpTestUnitReady:     "TEST UNIT READY",
	OpRequestSense:      "REQUEST SENSE",
	OpFormatUnit:        "FORMAT UNIT",
	OpInquiry:           "INQUIRY",
	OpModeSelect6:       "MODE SELECT(6)",
	OpStartStopUnit:     "START STOP UNIT",
	OpPreventAllow:      "PREVENT ALLOW MEDIUM REMOVAL",
	OpRead10:            "READ(10)",
	OpSyncCache:         "SYNCHRONIZE CACHE",
	OpReadSubChannel:    "READ SUB-CHANNEL",
	OpReadTOC:           "READ TOC",
	OpPlayAudio10:       "PLAY AUDIO(10)",
	OpGetConfiguration:  "GET CONFIGURATION",
	OpPlayAudioMSF:      "PLAY AUDIO MSF",
	OpPlayTrackIndex:    "PLAY AUDIO TRACK INDEX",
	OpGetEventStatus:    "GET EVENT STATUS NOTIFICATION",
	OpPauseResume:       "PAUSE RESUME",
	OpReadDiscInfo:      "READ DISC INFORMATION",
	OpReadTrackInfo:     "READ TRACK INFORMATION",
	OpModeSelect10:      "MODE SELECT(10)",
	OpModeSense10:       "MODE SENSE(10)",
	OpCloseTrackSession: "CLOSE TRACK SESSION",
	OpSendKey:           "SEND KEY",
	OpReportKey:         "REPORT KEY",
	OpLoadUnload:        "LOAD UNLOAD MEDIUM",
	OpReadDVDStructure:  "READ DVD STRUCTURE",
	OpSetCDSpeed:        "SET CD SPEED",
	OpMechanismStatus:   "MECHANISM STATUS",
	OpReadCD:            "READ CD",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opcode 0x%02x", byte(o))
}

// Direction is the data phase of a command.
type Direction int

const (
	DirNone Direction = iota
	DirIn             // drive to host
	DirOut            // host to drive
)

// Timeouts carried by packets. The transport enforces them.
const (
	DefaultTimeout    = 5 * time.Second
	LoadUnloadTimeout = 60 * time.Second
	ReadAudioTimeout  = 60 * time.Second
	FlushTimeout      = 30 * time.Second
	FormatTimeout     = 300 * time.Second
	CloseTimeout      = 3000 * time.Second
	ProbeTimeout      = time.Second
)

// Packet is a transport-agnostic command descriptor.
// Buffer is filled by the transport for DirIn and sent for DirOut.
type Packet struct {
	Cmd       [16]byte
	Buffer    []byte
	Direction Direction
	Timeout   time.Duration
	// Quiet marks commands whose failure is expected on some drives and
	// should not be logged above debug level.
	Quiet bool
}

func newPacket(op Opcode, bufLen int, dir Direction) *Packet {
	p := &Packet{Direction: dir, Timeout: DefaultTimeout}
	p.Cmd[0] = byte(op)
	if bufLen > 0 {
		p.Buffer = make([]byte, bufLen)
	}
	return p
}

// Opcode returns the command opcode.
func (p *Packet) Opcode() Opcode {
	return Opcode(p.Cmd[0])
}

// CDB returns the command bytes trimmed to the length implied by the
// opcode group code.
func (p *Packet) CDB() []byte {
	return p.Cmd[:cdbLength(p.Cmd[0])]
}

func cdbLength(op byte) int {
	switch op >> 5 {
	case 0:
		return 6
	case 1, 2:
		return 10
	case 4:
		return 16
	default:
		return 12
	}
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s % x", p.Opcode(), p.CDB())
}

// Status is the SCSI status byte returned for a command.
type Status byte

const (
	StatusGood           Status = 0x00
	StatusCheckCondition Status = 0x02
	StatusBusy           Status = 0x08
)

// Sense keys
const (
	SenseNoSense        = 0x00
	SenseRecovered      = 0x01
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseHardwareError  = 0x04
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
	SenseDataProtect    = 0x07
	SenseAbortedCommand = 0x0B
)

// Additional sense codes used for recovery decisions.
const (
	ASCNotReady         = 0x04
	ASCInvalidOpcode    = 0x20
	ASCInvalidField     = 0x24
	ASCMediumChanged    = 0x28
	ASCMediumNotPresent = 0x3A
	ASCCopyProtection   = 0x6F
)

// Sense is the key/ASC/ASCQ triple of sense data.
type Sense struct {
	Key  byte
	ASC  byte
	ASCQ byte
}

func (s Sense) String() string {
	return fmt.Sprintf("%02x/%02x/%02x", s.Key, s.ASC, s.ASCQ)
}

// Is reports whether the sense matches key, asc and ascq exactly.
func (s Sense) Is(key, asc, ascq byte) bool {
	return s.Key == key && s.ASC == asc && s.ASCQ == ascq
}

// SenseLength is the allocation length used for REQUEST SENSE.
const SenseLength = 18

// ParseSense parses fixed-format (0x70, 0x71) or descriptor-format (0x72,
// 0x73) sense data.
// This is a pure function. Short or unknown input yields a zero Sense and false.
func ParseSense(data []byte) (Sense, bool) {
	if len(data) < 4 {
		return Sense{}, false
	}
	switch data[0] & 0x7F {
	case 0x70, 0x71:
		if len(data) < 14 {
			return Sense{}, false
		}
		return Sense{Key: data[2] & 0x0F, ASC: data[12], ASCQ: data[13]}, true
	case 0x72, 0x73:
		return Sense{Key: data[1] & 0x0F, ASC: data[2], ASCQ: data[3]}, true
	}
	return Sense{}, false
}
