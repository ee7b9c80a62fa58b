package cdda

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// LeadoutTrack is the track number of the lead-out entry.
const LeadoutTrack = 0xAA

// Control field bits of a TOC entry
const (
	ControlPreEmphasis = 0x01
	ControlCopyPermit  = 0x02
	ControlData        = 0x04
	ControlFourChannel = 0x08
)

// Disc types reported in the disc information record
const (
	discTypeCDI = 0x10
	discTypeXA  = 0x20
)

var ErrNoTrack = errors.New("cdda: no such track")

// TrackType indicates whether a track is audio or data
type TrackType int

const (
	TrackTypeAudio TrackType = iota
	TrackTypeData
)

// Track is a single entry of the TOC.
type Track struct {
	Num     int
	LBA     int
	Type    TrackType
	ADR     byte
	Control byte
}

// IsAudio returns true if this is an audio track
func (t Track) IsAudio() bool {
	return t.Type == TrackTypeAudio
}

// TOC represents a CD Table of Contents
type TOC struct {
	FirstTrack int
	LastTrack  int
	LeadoutLBA int
	Leadout    Track
	Tracks     []Track
}

// ParseTOC parses a READ TOC format 0 response with LBA addressing.
// Entries outside the first..last range are skipped; parsing stops at the
// lead-out entry.
//
// This is a pure function: input bytes → TOC struct.
func ParseTOC(raw []byte) (TOC, error) {
	if len(raw) < 4 {
		return TOC{}, errors.New("TOC data too short: need at least 4 bytes")
	}

	toc := TOC{
		FirstTrack: int(raw[2]),
		LastTrack:  int(raw[3]),
	}

	// The length field excludes itself.
	end := min(int(binary.BigEndian.Uint16(raw[0:2]))+2, len(raw))

	for off := 4; off+8 <= end; off += 8 {
		e := raw[off : off+8]
		t := Track{
			Num:     int(e[2]),
			LBA:     int(int32(binary.BigEndian.Uint32(e[4:8]))),
			ADR:     e[1] >> 4,
			Control: e[1] & 0x0F,
		}
		if t.Control&ControlData != 0 {
			t.Type = TrackTypeData
		}

		if t.Num == LeadoutTrack {
			toc.Leadout = t
			toc.LeadoutLBA = t.LBA
			break
		}
		if t.Num >= toc.FirstTrack && t.Num <= toc.LastTrack {
			toc.Tracks = append(toc.Tracks, t)
		}
	}

	return toc, nil
}

// Track returns the entry for track num, including the lead-out.
func (toc TOC) Track(num int) (Track, error) {
	if num == LeadoutTrack {
		return toc.Leadout, nil
	}
	t, ok := lo.Find(toc.Tracks, func(t Track) bool { return t.Num == num })
	if !ok {
		return Track{}, fmt.Errorf("track %d: %w", num, ErrNoTrack)
	}
	return t, nil
}

// AudioTracks returns the audio tracks in TOC order.
func (toc TOC) AudioTracks() []Track {
	return lo.Filter(toc.Tracks, func(t Track, _ int) bool { return t.IsAudio() })
}

// HasData reports whether any track is a data track.
func (toc TOC) HasData() bool {
	return lo.SomeBy(toc.Tracks, func(t Track) bool { return !t.IsAudio() })
}

// TrackCounts classifies the tracks of a disc.
type TrackCounts struct {
	Audio int
	Data  int // mode 1 data
	CDI   int
	XA    int
}

// DataTracks returns the number of data tracks of any kind.
func (c TrackCounts) DataTracks() int {
	return c.Data + c.CDI + c.XA
}

// Count classifies the tracks. Data tracks are attributed to CD-i or XA
// by discType, the disc type byte of the disc information record.
func (toc TOC) Count(discType byte) TrackCounts {
	var c TrackCounts
	c.Audio = lo.CountBy(toc.Tracks, Track.IsAudio)
	data := len(toc.Tracks) - c.Audio
	switch discType {
	case discTypeCDI:
		c.CDI = data
	case discTypeXA:
		c.XA = data
	default:
		c.Data = data
	}
	return c
}

// Frames returns the extent of track num in frames: up to the next track,
// or to the lead-out for the last one.
func (toc TOC) Frames(num int) (int, error) {
	i := lo.IndexOf(lo.Map(toc.Tracks, func(t Track, _ int) int { return t.Num }), num)
	if i < 0 {
		return 0, fmt.Errorf("track %d: %w", num, ErrNoTrack)
	}
	end := toc.LeadoutLBA
	if i+1 < len(toc.Tracks) {
		end = toc.Tracks[i+1].LBA
	}
	return end - toc.Tracks[i].LBA, nil
}
