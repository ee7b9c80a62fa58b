package encode

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestTrackName_Filename(t *testing.T) {
	tests := []struct {
		name string
		in   TrackName
		want string
	}{
		{"basic", TrackName{Artist: "Artist", Album: "Album", Track: 1, Title: "Song Title"},
			"Artist-Album-01-Song_Title.wav"},
		{"spaces", TrackName{Artist: "The Beatles", Album: "Abbey Road", Track: 2, Title: "Come Together"},
			"The_Beatles-Abbey_Road-02-Come_Together.wav"},
		{"slash", TrackName{Artist: "AC/DC", Album: "Back in Black", Track: 1, Title: "Hells Bells"},
			"AC_DC-Back_in_Black-01-Hells_Bells.wav"},
		{"backslash", TrackName{Artist: `Test\Artist`, Album: `Test\Album`, Track: 1, Title: `Test\Title`},
			"Test_Artist-Test_Album-01-Test_Title.wav"},
		{"apostrophe", TrackName{Artist: "The Who", Album: "Who's Next", Track: 3, Title: "Won't Get Fooled Again"},
			"The_Who-Whos_Next-03-Wont_Get_Fooled_Again.wav"},
		{"double quotes", TrackName{Artist: `Richard "Groove" Holmes`, Album: "Album", Track: 1, Title: "Song"},
			"Richard_Groove_Holmes-Album-01-Song.wav"},
		{"smart quotes", TrackName{Artist: "Artist", Album: "Album", Track: 1, Title: "“Smart” ‘Quotes’"},
			"Artist-Album-01-Smart_Quotes.wav"},
		{"shell characters", TrackName{Artist: "Test$Artist", Album: "Album!", Track: 1, Title: "Song?"},
			"Test_Artist-Album-01-Song.wav"},
		{"keeps colon", TrackName{Artist: "Artist", Album: "Album: Subtitle", Track: 1, Title: "Song: Extended Mix"},
			"Artist-Album:_Subtitle-01-Song:_Extended_Mix.wav"},
		{"multi-disc", TrackName{Artist: "Pink Floyd", Album: "The Wall", Disc: 2, Track: 13, Title: "Another Brick in the Wall"},
			"Pink_Floyd-The_Wall-CD2-13-Another_Brick_in_the_Wall.wav"},
		{"collapses underscores", TrackName{Artist: "Heavy D & The Boyz", Album: "Album", Track: 1, Title: "Song"},
			"Heavy_D_The_Boyz-Album-01-Song.wav"},
		{"collapses runs", TrackName{Artist: "A & B", Album: "C (D) [E]", Track: 1, Title: "F / G"},
			"A_B-C_D_E-01-F_G.wav"},
		{"literal underscores", TrackName{Artist: "a__b", Album: "_c_", Track: 1, Title: "d"},
			"a_b-c-01-d.wav"},
		{"non-ASCII", TrackName{Artist: "Tone-Lōc", Album: "Album", Track: 1, Title: "Café"},
			"Tone-Loc-Album-01-Cafe.wav"},
		{"compilation", TrackName{Album: "80s Hits", Track: 1, TrackArtist: "A-ha", Title: "Take On Me"},
			"80s_Hits-01-A-ha-Take_On_Me.wav"},
		{"compilation multi-disc", TrackName{Album: "Now 100", Disc: 2, Track: 5, TrackArtist: "Queen", Title: "Bohemian Rhapsody"},
			"Now_100-CD2-05-Queen-Bohemian_Rhapsody.wav"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Filename(); got != tc.want {
				t.Errorf("Filename() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnknownFilename(t *testing.T) {
	got := UnknownFilename("lSOVc5h6IXSuzcamJS1Gp4_tRuA-", 3)
	want := "lSOVc5h6IXSuzcamJS1Gp4_tRuA--03.wav"
	if got != want {
		t.Errorf("UnknownFilename() = %q, want %q", got, want)
	}
}

func TestFilename_ShellSafe(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	names := []TrackName{
		{Artist: "AC/DC", Album: "Back in Black", Track: 1, Title: "Hells Bells"},
		{Artist: "The Who", Album: "Who's Next", Track: 1, Title: "Won't Get Fooled Again"},
		{Artist: `Richard "Groove" Holmes`, Album: "Album", Track: 1, Title: "Song"},
		{Artist: "Test$Artist", Album: "Album!", Track: 1, Title: "Song?"},
		{Artist: "Artist", Album: "Album [Deluxe]", Track: 1, Title: "Track (Live)"},
		{Artist: "Artist", Album: "Album", Track: 1, Title: "Song & Dance"},
		{Artist: "Artist", Album: "Album", Track: 1, Title: "Part 1; Part 2"},
	}

	dir := t.TempDir()
	for _, n := range names {
		filename := n.Filename()
		if strings.ContainsAny(filename, unsafe+quotes) {
			t.Errorf("Filename %q contains shell metacharacters", filename)
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, filename), []byte("test"), 0644); err != nil {
			t.Errorf("Failed to create file %q: %v", filename, err)
			continue
		}

		// Unquoted on purpose: the name must survive word splitting.
		cmd := exec.Command("bash", "-c", "cat "+filename)
		cmd.Dir = dir
		output, err := cmd.Output()
		if err != nil {
			t.Errorf("Filename %q requires shell quoting: %v", filename, err)
			continue
		}
		if string(output) != "test" {
			t.Errorf("Filename %q: unexpected output %q", filename, output)
		}
	}
}

func BenchmarkSanitize(b *testing.B) {
	inputs := []string{
		"Simple Artist",
		"AC/DC",
		"Tone-Lōc",
		"Heavy D & The Boyz",
		"Björk Guðmundsdóttir",
	}
	for b.Loop() {
		for _, in := range inputs {
			_ = sanitize(in)
		}
	}
}
