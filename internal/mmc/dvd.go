package mmc

import (
	"encoding/binary"
	"errors"
)

var (
	ErrShortResponse = errors.New("mmc: response too short")
	ErrBadLength     = errors.New("mmc: structure length out of range")
)

// ParseAGID returns the authentication grant id of a REPORT KEY AGID response.
func ParseAGID(data []byte) (byte, error) {
	if len(data) < 8 {
		return 0, ErrShortResponse
	}
	return data[7] >> 6, nil
}

// ParseChallenge returns the drive challenge of a REPORT KEY response.
func ParseChallenge(data []byte) ([ChallengeSize]byte, error) {
	var c [ChallengeSize]byte
	if len(data) < 4+ChallengeSize {
		return c, ErrShortResponse
	}
	copy(c[:], data[4:4+ChallengeSize])
	return c, nil
}

// ParseKey returns the bus key of a REPORT KEY KEY1 response.
func ParseKey(data []byte) ([KeySize]byte, error) {
	var k [KeySize]byte
	if len(data) < 4+KeySize {
		return k, ErrShortResponse
	}
	copy(k[:], data[4:4+KeySize])
	return k, nil
}

// TitleKey is a REPORT KEY title key response.
type TitleKey struct {
	CPM   bool // copyrighted material
	CPSec bool // copy protected sector
	CGMS  byte
	Key   [KeySize]byte
}

// ParseTitleKey parses a REPORT KEY title key response.
func ParseTitleKey(data []byte) (TitleKey, error) {
	if len(data) < 5+KeySize {
		return TitleKey{}, ErrShortResponse
	}
	t := TitleKey{
		CPM:   data[4]&0x80 != 0,
		CPSec: data[4]&0x40 != 0,
		CGMS:  (data[4] >> 4) & 0x03,
	}
	copy(t.Key[:], data[5:5+KeySize])
	return t, nil
}

// ParseASF returns the authentication success flag.
func ParseASF(data []byte) (bool, error) {
	if len(data) < 8 {
		return false, ErrShortResponse
	}
	return data[7]&0x01 != 0, nil
}

// RPCState is the drive region playback control state.
type RPCState struct {
	Type         byte // 0 none set, 1 set, 2 last chance, 3 permanent
	VendorResets byte
	UserChanges  byte
	RegionMask   byte
	Scheme       byte
}

// ParseRPCState parses a REPORT KEY RPC state response.
func ParseRPCState(data []byte) (RPCState, error) {
	if len(data) < 7 {
		return RPCState{}, ErrShortResponse
	}
	return RPCState{
		Type:         data[4] >> 6,
		VendorResets: (data[4] >> 3) & 0x07,
		UserChanges:  data[4] & 0x07,
		RegionMask:   data[5],
		Scheme:       data[6],
	}, nil
}

// Response lengths for READ DVD STRUCTURE formats.
const (
	PhysicalLength      = 4 + 4*20
	CopyrightLength     = 8
	DiscKeyLength       = 4 + 2048
	BCALength           = 4 + 188
	ManufacturingLength = 4 + 2048
)

// Layer is the physical format descriptor of one DVD layer.
type Layer struct {
	BookVersion     byte
	BookType        byte
	MinRate         byte
	DiscSize        byte
	LayerType       byte
	TrackPath       bool
	Layers          byte
	TrackDensity    byte
	LinearDensity   byte
	StartSector     uint32
	EndSector       uint32
	EndSectorLayer0 uint32
	BCA             bool
}

// ParsePhysical parses a physical format structure for one layer.
func ParsePhysical(data []byte) (Layer, error) {
	if len(data) < 4+17 {
		return Layer{}, ErrShortResponse
	}
	b := data[4:]
	return Layer{
		BookVersion:     b[0] & 0x0F,
		BookType:        b[0] >> 4,
		MinRate:         b[1] & 0x0F,
		DiscSize:        b[1] >> 4,
		LayerType:       b[2] & 0x0F,
		TrackPath:       b[2]&0x10 != 0,
		Layers:          (b[2] >> 5) & 0x03,
		TrackDensity:    b[3] & 0x0F,
		LinearDensity:   b[3] >> 4,
		StartSector:     binary.BigEndian.Uint32(b[4:8]) & 0x00FFFFFF,
		EndSector:       binary.BigEndian.Uint32(b[8:12]) & 0x00FFFFFF,
		EndSectorLayer0: binary.BigEndian.Uint32(b[12:16]) & 0x00FFFFFF,
		BCA:             b[16]&0x80 != 0,
	}, nil
}

// Copyright is the copyright information structure.
type Copyright struct {
	Protection byte // copy protection system type
	Regions    byte // region management information
}

// ParseCopyright parses a copyright structure.
func ParseCopyright(data []byte) (Copyright, error) {
	if len(data) < 6 {
		return Copyright{}, ErrShortResponse
	}
	return Copyright{Protection: data[4], Regions: data[5]}, nil
}

// ParseDiscKey returns the 2048-byte disc key block.
func ParseDiscKey(data []byte) ([]byte, error) {
	if len(data) < DiscKeyLength {
		return nil, ErrShortResponse
	}
	return append([]byte(nil), data[4:DiscKeyLength]...), nil
}

// ParseBCA returns the burst cutting area, which is 12 to 188 bytes long.
func ParseBCA(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrShortResponse
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	if n < 12 || n > 188 {
		return nil, ErrBadLength
	}
	if len(data) < 4+n {
		return nil, ErrShortResponse
	}
	return append([]byte(nil), data[4:4+n]...), nil
}

// ParseManufacturing returns the manufacturing information, truncated to
// 2048 bytes when the drive reports more.
func ParseManufacturing(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrShortResponse
	}
	n := min(int(binary.BigEndian.Uint16(data[0:2])), 2048, len(data)-4)
	return append([]byte(nil), data[4:4+n]...), nil
}
