package mmc

import (
	"encoding/binary"
	"testing"
)

func TestBuildTestUnitReady(t *testing.T) {
	p := BuildTestUnitReady()

	if len(p.CDB()) != 6 {
		t.Errorf("CDB length = %d, want 6", len(p.CDB()))
	}
	if p.Opcode() != OpTestUnitReady {
		t.Errorf("Opcode = %s, want %s", p.Opcode(), OpTestUnitReady)
	}
	if p.Direction != DirNone {
		t.Errorf("Direction = %d, want DirNone", p.Direction)
	}
}

func TestBuildInquiry(t *testing.T) {
	p := BuildInquiry()

	if len(p.CDB()) != 6 {
		t.Errorf("CDB length = %d, want 6", len(p.CDB()))
	}
	if p.Cmd[4] != 36 {
		t.Errorf("Allocation length = %d, want 36", p.Cmd[4])
	}
	if len(p.Buffer) != 36 {
		t.Errorf("Buffer length = %d, want 36", len(p.Buffer))
	}
}

func TestBuildReadTOC(t *testing.T) {
	p := BuildReadTOC(TOCFormatTOC, false, 0, TOCAllocation)

	if len(p.CDB()) != 10 {
		t.Errorf("CDB length = %d, want 10", len(p.CDB()))
	}
	// LBA addressing: the MSF bit must stay clear or the parser reads garbage
	if p.Cmd[1] != 0x00 {
		t.Errorf("MSF byte = 0x%02x, want 0x00", p.Cmd[1])
	}
	allocLen := int(p.Cmd[7])<<8 | int(p.Cmd[8])
	if allocLen != 1020 {
		t.Errorf("Allocation length = %d, want 1020", allocLen)
	}

	p = BuildReadTOC(TOCFormatSession, true, 0, 12)
	if p.Cmd[1] != 0x02 || p.Cmd[2] != 0x01 {
		t.Errorf("session TOC cmd = % x, want MSF bit and format 1", p.CDB())
	}
}

func TestBuildReadCDDA(t *testing.T) {
	p := BuildReadCDDA(150, 1)

	if len(p.CDB()) != 12 {
		t.Errorf("CDB length = %d, want 12", len(p.CDB()))
	}
	if p.Cmd[1] != 0x04 {
		t.Errorf("Sector type = 0x%02x, want 0x04 (CD-DA)", p.Cmd[1])
	}
	lba := binary.BigEndian.Uint32(p.Cmd[2:6])
	if lba != 150 {
		t.Errorf("LBA = %d, want 150", lba)
	}
	frames := int(p.Cmd[6])<<16 | int(p.Cmd[7])<<8 | int(p.Cmd[8])
	if frames != 1 {
		t.Errorf("Transfer length = %d, want 1", frames)
	}
	if p.Cmd[9] != 0xF8 {
		t.Errorf("Field selection = 0x%02x, want 0xf8", p.Cmd[9])
	}
	if len(p.Buffer) != FrameSize {
		t.Errorf("Buffer length = %d, want %d", len(p.Buffer), FrameSize)
	}
}

func TestBuildReadCDFieldSelection(t *testing.T) {
	tests := []struct {
		size int
		want byte
	}{
		{BlockData, 0x10},
		{BlockMode2, 0x58},
		{BlockXA, 0x78},
		{FrameSize, 0xF8},
	}
	for _, tt := range tests {
		p := BuildReadCD(0, 2, SectorAny, tt.size)
		if p.Cmd[9] != tt.want {
			t.Errorf("block %d: byte 9 = 0x%02x, want 0x%02x", tt.size, p.Cmd[9], tt.want)
		}
		if len(p.Buffer) != 2*tt.size {
			t.Errorf("block %d: buffer = %d, want %d", tt.size, len(p.Buffer), 2*tt.size)
		}
	}
}

func TestBuildLoadUnload(t *testing.T) {
	p := BuildLoadUnload(3)
	if p.Cmd[4] != 0x03 || p.Cmd[8] != 3 {
		t.Errorf("load slot 3 = % x", p.CDB())
	}
	if p.Timeout != LoadUnloadTimeout {
		t.Errorf("Timeout = %v, want %v", p.Timeout, LoadUnloadTimeout)
	}

	p = BuildLoadUnload(-1)
	if p.Cmd[4] != 0x02 || p.Cmd[8] != 0 {
		t.Errorf("unload = % x", p.CDB())
	}
}

func TestBuildFormatUnit(t *testing.T) {
	p := BuildFormatUnit(true, false)

	if p.Cmd[1] != 0x11 {
		t.Errorf("cmd[1] = 0x%02x, want 0x11", p.Cmd[1])
	}
	if p.Direction != DirOut || len(p.Buffer) != 12 {
		t.Fatalf("parameter list = %d bytes dir %d", len(p.Buffer), p.Direction)
	}
	if p.Buffer[1] != 0 {
		t.Errorf("immediate bit set on non-immediate format")
	}
	if p.Buffer[3] != 8 || p.Buffer[8] != 0x90 || p.Buffer[11] != 1 {
		t.Errorf("descriptor = % x", p.Buffer)
	}
}

func TestBuildReportKey(t *testing.T) {
	p := BuildReportKey(KeyChallenge, 2, 0)
	if p.Cmd[10] != 0x81 {
		t.Errorf("cmd[10] = 0x%02x, want 0x81", p.Cmd[10])
	}
	if len(p.Buffer) != 16 || p.Cmd[9] != 16 {
		t.Errorf("challenge length = %d/%d, want 16", len(p.Buffer), p.Cmd[9])
	}

	p = BuildReportKey(KeyTitle, 1, 0x12345678)
	if binary.BigEndian.Uint32(p.Cmd[2:6]) != 0x12345678 {
		t.Errorf("title key lba = % x", p.Cmd[2:6])
	}
}

func TestBuildSendKey(t *testing.T) {
	chal := [ChallengeSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	p := BuildSendChallenge(3, chal)
	if p.Buffer[1] != 14 || p.Buffer[4] != 1 || p.Buffer[13] != 10 {
		t.Errorf("challenge buffer = % x", p.Buffer)
	}
	if p.Cmd[10] != 0xC1 {
		t.Errorf("cmd[10] = 0x%02x, want 0xc1", p.Cmd[10])
	}

	p = BuildSendKey2(0, [KeySize]byte{9, 8, 7, 6, 5})
	if p.Buffer[1] != 10 || p.Buffer[4] != 9 || p.Buffer[8] != 5 {
		t.Errorf("key2 buffer = % x", p.Buffer)
	}

	p = BuildSetRegion(0xFE)
	if len(p.Buffer) != 8 || p.Buffer[1] != 6 || p.Buffer[4] != 0xFE {
		t.Errorf("region buffer = % x", p.Buffer)
	}
}

func TestBuildModeSense(t *testing.T) {
	p := BuildModeSense(PageAudioControl, PageChangeable, 32)
	if p.Cmd[2] != 0x4E {
		t.Errorf("cmd[2] = 0x%02x, want 0x4e", p.Cmd[2])
	}
	if binary.BigEndian.Uint16(p.Cmd[7:9]) != 32 {
		t.Errorf("allocation = %d, want 32", binary.BigEndian.Uint16(p.Cmd[7:9]))
	}
}

func TestBuildModeSelectClearsLength(t *testing.T) {
	data := []byte{0x00, 0x16, 0, 0, 0, 0, 0, 0, 0x0E, 0x0E}
	p := BuildModeSelect(data)
	if p.Buffer[0] != 0 || p.Buffer[1] != 0 {
		t.Errorf("mode data length not cleared: % x", p.Buffer[:2])
	}
	if data[1] != 0x16 {
		t.Errorf("caller data modified")
	}
	if p.Cmd[1] != 0x10 {
		t.Errorf("PF bit not set")
	}
}

func TestBuildModeSelectBlockSize(t *testing.T) {
	p := BuildModeSelectBlockSize(BlockMode2)
	if p.Opcode() != OpModeSelect6 || len(p.CDB()) != 6 {
		t.Errorf("CDB = % x", p.CDB())
	}
	if p.Buffer[3] != 8 || p.Buffer[10] != 0x09 || p.Buffer[11] != 0x20 {
		t.Errorf("block descriptor = % x", p.Buffer)
	}
}

func TestBuildMechanismStatus(t *testing.T) {
	p := BuildMechanismStatus(5)
	if len(p.Buffer) != 28 {
		t.Errorf("buffer = %d, want 28", len(p.Buffer))
	}
	if binary.BigEndian.Uint16(p.Cmd[8:10]) != 28 {
		t.Errorf("allocation = % x", p.Cmd[8:10])
	}
}

func TestParseInquiry(t *testing.T) {
	data := make([]byte, 36)
	data[0] = 0x05
	copy(data[8:16], "HL-DT-ST")
	copy(data[16:32], "DVDRAM GP65NB60 ")
	copy(data[32:36], "PF00")

	info := ParseInquiry(data)

	if info.DeviceType != 5 {
		t.Errorf("DeviceType = %d, want 5", info.DeviceType)
	}
	if info.Vendor != "HL-DT-ST" {
		t.Errorf("Vendor = %q, want %q", info.Vendor, "HL-DT-ST")
	}
	if info.Product != "DVDRAM GP65NB60" {
		t.Errorf("Product = %q, want %q", info.Product, "DVDRAM GP65NB60")
	}
	if info.Revision != "PF00" {
		t.Errorf("Revision = %q, want %q", info.Revision, "PF00")
	}
}
