package cdda

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// PregapFrames is the two second lead-in that disc ID offsets count from.
const PregapFrames = mmc.MSFOffset

// mbEncoding is base64 with the MusicBrainz substitutions + → . / → _ = → -.
var mbEncoding = base64.NewEncoding(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789._",
).WithPadding('-')

// CalculateDiscID computes the MusicBrainz disc ID from a TOC read with LBA
// addressing. Track and lead-out addresses are shifted by the pregap, so
// track 1 at LBA 0 hashes as offset 150.
//
// The hashed text is first and last track as %02X followed by 100 offsets
// as %08X: the lead-out, then tracks 1..99 with 0 for unused entries.
func CalculateDiscID(toc TOC) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%02X%02X", toc.FirstTrack, toc.LastTrack)

	offsets := make([]int, 100)
	offsets[0] = toc.LeadoutLBA + PregapFrames
	for _, track := range toc.Tracks {
		if track.Num >= 1 && track.Num <= 99 {
			offsets[track.Num] = track.LBA + PregapFrames
		}
	}
	for _, off := range offsets {
		fmt.Fprintf(&sb, "%08X", off)
	}

	hash := sha1.Sum([]byte(sb.String()))
	return mbEncoding.EncodeToString(hash[:])
}

// TOCString renders the TOC the way the MusicBrainz toc lookup parameter
// expects: first track, last track, lead-out offset, then each track offset,
// separated by spaces.
func TOCString(toc TOC) string {
	fields := []string{
		strconv.Itoa(toc.FirstTrack),
		strconv.Itoa(toc.LastTrack),
		strconv.Itoa(toc.LeadoutLBA + PregapFrames),
	}
	fields = append(fields, lo.Map(toc.Tracks, func(t Track, _ int) string {
		return strconv.Itoa(t.LBA + PregapFrames)
	})...)
	return strings.Join(fields, " ")
}
