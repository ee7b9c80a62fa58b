package scsi

import (
	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// pageCapabilities is the CD capabilities and mechanical status mode page.
const pageCapabilities = 0x2A

const capabilitiesPageLength = 64

// Loading mechanism types in byte 6 of the capabilities page
const (
	mechCaddy             = 0
	mechChangerIndividual = 4
	mechChangerCartridge  = 5
)

// baseCaps is what a USB MMC drive is assumed to do before the
// capabilities page narrows it down.
const baseCaps = cdrom.CapCloseTray | cdrom.CapOpenTray | cdrom.CapLock |
	cdrom.CapSelectSpeed | cdrom.CapMultiSession | cdrom.CapMCN |
	cdrom.CapMediaChanged | cdrom.CapPlayAudio | cdrom.CapReset |
	cdrom.CapDriveStatus | cdrom.CapGenericPacket |
	cdrom.CapCDR | cdrom.CapCDRW | cdrom.CapDVD | cdrom.CapDVDR |
	cdrom.CapDVDRAM | cdrom.CapMRW | cdrom.CapMRWW | cdrom.CapRAM

// capsFromPage narrows baseCaps with the capabilities mode page, page
// being the page bytes starting at the page code.
// This is a pure function.
func capsFromPage(page []byte) cdrom.Capability {
	caps := baseCaps
	if len(page) < 8 {
		return caps
	}
	drop := func(bit byte, c cdrom.Capability) {
		if bit == 0 {
			caps &^= c
		}
	}

	drop(page[2]&0x08, cdrom.CapDVD)
	drop(page[3]&0x01, cdrom.CapCDR)
	drop(page[3]&0x02, cdrom.CapCDRW)
	drop(page[3]&0x10, cdrom.CapDVDR)
	drop(page[3]&0x20, cdrom.CapDVDRAM)
	drop(page[4]&0x01, cdrom.CapPlayAudio)
	drop(page[4]&0x40, cdrom.CapMultiSession)
	drop(page[5]&0x04, cdrom.CapMCN)
	drop(page[6]&0x01, cdrom.CapLock)
	drop(page[6]&0x08, cdrom.CapOpenTray)

	switch page[6] >> 5 {
	case mechCaddy:
		caps &^= cdrom.CapCloseTray
	case mechChangerIndividual, mechChangerCartridge:
		caps |= cdrom.CapSelectDisc
	}
	return caps
}

// ProbeCapabilities reads the capabilities page. Drives that do not
// report it keep baseCaps.
func (b *Pipe) ProbeCapabilities() cdrom.Capability {
	p := mmc.BuildModeSense(pageCapabilities, mmc.PageCurrent, capabilitiesPageLength)
	p.Quiet = true
	if err := b.run(p); err != nil {
		b.log.Debug("capabilities page", "err", err)
		return baseCaps
	}
	off, ok := mmc.ModePageOffset(p.Buffer)
	if !ok {
		return baseCaps
	}
	return capsFromPage(p.Buffer[off:])
}
