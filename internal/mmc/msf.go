package mmc

import "fmt"

// MSFOffset is the two-second pregap between MSF 00:02:00 and LBA 0.
const MSFOffset = 150

// MSF is a minute/second/frame address.
type MSF struct {
	Minute byte
	Second byte
	Frame  byte
}

func (m MSF) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", m.Minute, m.Second, m.Frame)
}

// LBAToMSF converts a logical block address to MSF.
// This is a pure function: lba + 150 = frame + 75*(second + 60*minute).
func LBAToMSF(lba int) MSF {
	total := lba + MSFOffset
	return MSF{
		Minute: byte(total / (60 * FramesPerSecond)),
		Second: byte(total / FramesPerSecond % 60),
		Frame:  byte(total % FramesPerSecond),
	}
}

// MSFToLBA converts an MSF address to a logical block address.
func MSFToLBA(m MSF) int {
	return int(m.Frame) + FramesPerSecond*(int(m.Second)+60*int(m.Minute)) - MSFOffset
}

// Valid reports whether the second and frame fields are in range.
func (m MSF) Valid() bool {
	return m.Second < 60 && m.Frame < FramesPerSecond
}
