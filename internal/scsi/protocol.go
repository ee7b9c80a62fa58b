// Package scsi drives MMC devices over the USB Mass Storage Bulk-Only
// transport.
package scsi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// USB Mass Storage Bulk-Only protocol constants
const (
	CBWSignature = 0x43425355 // "USBC" little-endian
	CSWSignature = 0x53425355 // "USBS" little-endian
	CBWSize      = 31
	CSWSize      = 13
)

// Direction flags of a CBW
const (
	DirectionOut = 0x00 // host to device
	DirectionIn  = 0x80 // device to host
)

// CSW status values
const (
	StatusPassed     = 0x00
	StatusFailed     = 0x01
	StatusPhaseError = 0x02
)

var (
	ErrBadCSW     = errors.New("scsi: invalid CSW")
	ErrPhaseError = errors.New("scsi: phase error")
)

// CSW represents a Command Status Wrapper
type CSW struct {
	Tag     uint32
	Residue uint32
	Status  byte
}

// directionFlag maps a packet data phase to the CBW flag byte. Commands
// without a data phase are sent as OUT with a zero length.
func directionFlag(d mmc.Direction) byte {
	if d == mmc.DirIn {
		return DirectionIn
	}
	return DirectionOut
}

// BuildCBW creates a CBW from a SCSI CDB.
// This is a pure function: (tag, dataLen, direction, cdb) → 31 bytes
func BuildCBW(tag uint32, dataLen uint32, direction byte, cdb []byte) []byte {
	cbw := make([]byte, CBWSize)

	binary.LittleEndian.PutUint32(cbw[0:4], CBWSignature)
	binary.LittleEndian.PutUint32(cbw[4:8], tag)
	binary.LittleEndian.PutUint32(cbw[8:12], dataLen)
	cbw[12] = direction
	cbw[13] = 0 // LUN
	n := copy(cbw[15:], cdb[:min(len(cdb), 16)])
	cbw[14] = byte(n)

	return cbw
}

// ParseCSW parses a 13-byte CSW response and checks it answers tag.
// This is a pure function: bytes → (CSW, error)
func ParseCSW(data []byte, tag uint32) (CSW, error) {
	if len(data) < CSWSize {
		return CSW{}, fmt.Errorf("%w: %d bytes", ErrBadCSW, len(data))
	}
	if sig := binary.LittleEndian.Uint32(data[0:4]); sig != CSWSignature {
		return CSW{}, fmt.Errorf("%w: signature 0x%08x", ErrBadCSW, sig)
	}

	csw := CSW{
		Tag:     binary.LittleEndian.Uint32(data[4:8]),
		Residue: binary.LittleEndian.Uint32(data[8:12]),
		Status:  data[12],
	}
	if csw.Tag != tag {
		return CSW{}, fmt.Errorf("%w: tag %d, want %d", ErrBadCSW, csw.Tag, tag)
	}
	return csw, nil
}
