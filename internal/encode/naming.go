// Package encode names the files ripped tracks are written to.
package encode

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Ext is the extension of ripped track files.
const Ext = ".wav"

// TrackName is the metadata a ripped track file is named from.
//
// Format: Artist-Album-NN-Title.wav
// Multi-disc: Artist-Album-CDN-NN-Title.wav
// Compilation: Album-NN-TrackArtist-Title.wav
type TrackName struct {
	Artist string
	Album  string
	Disc   int // 0 for a single-disc release
	Track  int
	Title  string
	// TrackArtist is set for compilations and replaces the album artist.
	TrackArtist string
}

// Filename builds the file name. This is a pure function.
func (n TrackName) Filename() string {
	var parts []string
	if n.TrackArtist == "" {
		parts = append(parts, sanitize(n.Artist))
	}
	parts = append(parts, sanitize(n.Album))
	if n.Disc > 0 {
		parts = append(parts, fmt.Sprintf("CD%d", n.Disc))
	}
	parts = append(parts, fmt.Sprintf("%02d", n.Track))
	if n.TrackArtist != "" {
		parts = append(parts, sanitize(n.TrackArtist))
	}
	parts = append(parts, sanitize(n.Title))
	return strings.Join(parts, "-") + Ext
}

// UnknownFilename names a track of a disc without metadata after its disc ID.
func UnknownFilename(discID string, track int) string {
	return fmt.Sprintf("%s-%02d%s", sanitize(discID), track, Ext)
}

// unsafe are replaced by an underscore: path separators, shell expansion,
// globbing, grouping and redirection characters, and spaces.
const unsafe = " /\\$!*?[](){}<>|&;"

// quotes are dropped.
const quotes = "'\"`"

// sanitize folds s to ASCII and makes it safe to use unquoted in a shell.
// Runs of underscores collapse to one; leading and trailing ones are trimmed.
func sanitize(s string) string {
	s = normalizeToASCII(s)

	var b strings.Builder
	b.Grow(len(s))

	lastWasUnderscore := false
	for _, r := range s {
		switch {
		case strings.ContainsRune(quotes, r):
		case strings.ContainsRune(unsafe, r) || r == '_':
			if !lastWasUnderscore {
				b.WriteByte('_')
			}
			lastWasUnderscore = true
		default:
			b.WriteRune(r)
			lastWasUnderscore = false
		}
	}
	return strings.Trim(b.String(), "_")
}

// normalizeToASCII decomposes with NFKD, drops the combining marks (ō→o,
// é→e) and strips whatever is still outside ASCII.
func normalizeToASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	result, _, _ := transform.String(t, s)
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, result)
}
