package mmc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCDBLength(t *testing.T) {
	assert.Len(t, BuildStartStop(false, true, false).CDB(), 6)
	assert.Len(t, BuildPauseResume(true).CDB(), 10)
	assert.Len(t, BuildReadDiscInfo(2).CDB(), 10)
	assert.Len(t, BuildReportKey(KeyAGID, 0, 0).CDB(), 12)
	assert.Len(t, BuildMechanismStatus(0).CDB(), 12)
}

func TestParseSense(t *testing.T) {
	data := make([]byte, SenseLength)
	data[0] = 0x70
	data[2] = 0x02
	data[12] = 0x3A
	data[13] = 0x02

	s, ok := ParseSense(data)
	assert.True(t, ok)
	assert.Equal(t, Sense{Key: SenseNotReady, ASC: ASCMediumNotPresent, ASCQ: 2}, s)
	assert.True(t, s.Is(0x02, 0x3A, 0x02))
	assert.Equal(t, "02/3a/02", s.String())

	_, ok = ParseSense(data[:8])
	assert.False(t, ok)

	data[0] = 0x7F
	_, ok = ParseSense(data)
	assert.False(t, ok, "unknown response code")
}

func TestParseSense_Descriptor(t *testing.T) {
	data := []byte{0x72, 0x05, 0x24, 0x00, 0, 0, 0, 0}

	s, ok := ParseSense(data)
	assert.True(t, ok)
	assert.Equal(t, Sense{Key: SenseIllegalRequest, ASC: ASCInvalidField}, s)

	s, ok = ParseSense([]byte{0x73, 0x0B, 0x00, 0x06})
	assert.True(t, ok, "deferred errors parse the same way")
	assert.Equal(t, Sense{Key: SenseAbortedCommand, ASCQ: 0x06}, s)

	_, ok = ParseSense(data[:3])
	assert.False(t, ok)
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "READ TOC", OpReadTOC.String())
	assert.Equal(t, "opcode 0xff", Opcode(0xFF).String())
}
