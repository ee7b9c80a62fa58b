package musicbrainz

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"go.uploadedlobster.com/musicbrainzws2"

	"github.com/binaryphile/crostini-cdrom/internal/cdda"
)

func TestNewClient(t *testing.T) {
	// Smoke test: client can be created and closed
	client := NewClient("test-app", "1.0", "test@example.com", nil)
	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.client == nil {
		t.Fatal("Inner client is nil")
	}

	// Should close without error
	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestGetArtistName_Single(t *testing.T) {
	credit := musicbrainzws2.ArtistCredit{
		{Name: "The Beatles", JoinPhrase: ""},
	}

	got := getArtistName(credit)
	want := "The Beatles"

	if got != want {
		t.Errorf("getArtistName() = %q, want %q", got, want)
	}
}

func TestGetArtistName_Multiple(t *testing.T) {
	credit := musicbrainzws2.ArtistCredit{
		{Name: "Queen", JoinPhrase: " & "},
		{Name: "David Bowie", JoinPhrase: ""},
	}

	got := getArtistName(credit)
	want := "Queen & David Bowie"

	if got != want {
		t.Errorf("getArtistName() = %q, want %q", got, want)
	}
}

func TestGetArtistName_Empty(t *testing.T) {
	credit := musicbrainzws2.ArtistCredit{}

	got := getArtistName(credit)
	want := "Unknown Artist"

	if got != want {
		t.Errorf("getArtistName() = %q, want %q", got, want)
	}
}

func TestIsCompilation_True(t *testing.T) {
	credit := musicbrainzws2.ArtistCredit{
		{Name: "Various Artists", JoinPhrase: ""},
	}

	if !isCompilation(credit) {
		t.Error("isCompilation() = false, want true")
	}
}

func TestIsCompilation_False(t *testing.T) {
	credit := musicbrainzws2.ArtistCredit{
		{Name: "Pink Floyd", JoinPhrase: ""},
	}

	if isCompilation(credit) {
		t.Error("isCompilation() = true, want false")
	}
}

func TestIsCompilation_Empty(t *testing.T) {
	credit := musicbrainzws2.ArtistCredit{}

	if isCompilation(credit) {
		t.Error("isCompilation() = true for empty credit, want false")
	}
}

func TestGetTotalTracks(t *testing.T) {
	media := []musicbrainzws2.Medium{
		{TrackCount: 12},
		{TrackCount: 10},
	}

	got := getTotalTracks(media)
	want := 22

	if got != want {
		t.Errorf("getTotalTracks() = %d, want %d", got, want)
	}
}

func TestGetTotalTracks_Empty(t *testing.T) {
	media := []musicbrainzws2.Medium{}

	got := getTotalTracks(media)
	want := 0

	if got != want {
		t.Errorf("getTotalTracks() = %d, want %d", got, want)
	}
}

func TestGetTotalTracks_Single(t *testing.T) {
	media := []musicbrainzws2.Medium{
		{TrackCount: 8},
	}

	got := getTotalTracks(media)
	want := 8

	if got != want {
		t.Errorf("getTotalTracks() = %d, want %d", got, want)
	}
}

func TestSortReleasesByTrackMatch(t *testing.T) {
	releases := []Release{
		{Title: "Box Set", TrackCount: 38, Year: 2017},
		{Title: "Vol 2", TrackCount: 12, Year: 1994},
		{Title: "Vol 1 GB", TrackCount: 12, Year: 1992},
		{Title: "Vol 1 US", TrackCount: 12, Year: 1992},
		{Title: "Best Of", TrackCount: 13, Year: 2001},
	}

	// Sort for 12-track target
	sorted := SortReleasesByTrackMatch(releases, 12)

	// First 3 should be 12-track releases
	for i := 0; i < 3; i++ {
		if sorted[i].TrackCount != 12 {
			t.Errorf("sorted[%d].TrackCount = %d, want 12", i, sorted[i].TrackCount)
		}
	}

	// 12-track releases should be sorted by year (newest first)
	if sorted[0].Year != 1994 {
		t.Errorf("sorted[0].Year = %d, want 1994 (newest 12-track)", sorted[0].Year)
	}

	// Non-matching should come after
	if sorted[3].TrackCount == 12 {
		t.Error("sorted[3] should not be 12-track")
	}
}

func TestSortReleasesByTrackMatch_NoMatches(t *testing.T) {
	releases := []Release{
		{Title: "A", TrackCount: 10, Year: 2020},
		{Title: "B", TrackCount: 15, Year: 2019},
	}

	// Sort for 12-track target (no matches)
	sorted := SortReleasesByTrackMatch(releases, 12)

	// Should sort by year (newest first) when no matches
	if sorted[0].Year != 2020 {
		t.Errorf("sorted[0].Year = %d, want 2020", sorted[0].Year)
	}
}

func TestSortReleasesByTrackMatch_KeepsInput(t *testing.T) {
	releases := []Release{
		{Title: "A", TrackCount: 10, Year: 2000},
		{Title: "B", TrackCount: 12, Year: 2010},
	}

	sorted := SortReleasesByTrackMatch(releases, 12)

	if sorted[0].Title != "B" {
		t.Errorf("sorted[0].Title = %q, want B", sorted[0].Title)
	}
	if releases[0].Title != "A" {
		t.Error("input slice was reordered")
	}
}

func TestSortReleasesByTrackMatch_StableWithinYear(t *testing.T) {
	releases := []Release{
		{Title: "Vol 1 GB", TrackCount: 12, Year: 1992},
		{Title: "Vol 1 US", TrackCount: 12, Year: 1992},
	}

	sorted := SortReleasesByTrackMatch(releases, 12)

	if sorted[0].Title != "Vol 1 GB" || sorted[1].Title != "Vol 1 US" {
		t.Errorf("order = %q, %q; want input order", sorted[0].Title, sorted[1].Title)
	}
}

func TestWait_Spacing(t *testing.T) {
	c := &Client{}

	if err := c.wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("second wait err = %v, want context.Canceled", err)
	}
}

func TestGetTrackArtist_TrackCredit(t *testing.T) {
	album := musicbrainzws2.ArtistCredit{{Name: "Various Artists"}}
	track := musicbrainzws2.Track{ArtistCredit: musicbrainzws2.ArtistCredit{{Name: "Nico"}}}

	if got := getTrackArtist(track, album); got != "Nico" {
		t.Errorf("getTrackArtist() = %q, want %q", got, "Nico")
	}
}

func twoTrackTOC() cdda.TOC {
	return cdda.TOC{
		FirstTrack: 1,
		LastTrack:  2,
		LeadoutLBA: 30000,
		Tracks:     []cdda.Track{{Num: 1, LBA: 0}, {Num: 2, LBA: 15000}},
	}
}

// finder returns a releaseFinder answering with releases and err, and
// records the keys it was asked for.
func finder(keys *[]string, releases []Release, err error) releaseFinder {
	return func(_ context.Context, key string) ([]Release, error) {
		*keys = append(*keys, key)
		return releases, err
	}
}

func TestIdentify_DiscIDFound(t *testing.T) {
	var ids, queries []string
	found := []Release{{MBID: "a", TrackCount: 9}, {MBID: "b", TrackCount: 2}}

	id, got, err := identify(context.Background(), slog.New(slog.DiscardHandler), twoTrackTOC(), "artist album",
		finder(&ids, found, nil), finder(&queries, nil, nil))

	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("disc id lookups = %v, want [%s]", ids, id)
	}
	if len(queries) != 0 {
		t.Errorf("searched %v, want no search when the disc id is known", queries)
	}
	if len(got) != 2 || got[0].MBID != "b" {
		t.Errorf("releases = %+v, want the two-track release first", got)
	}
}

func TestIdentify_SearchFallback(t *testing.T) {
	tests := []struct {
		name  string
		ids   []Release
		idErr error
	}{
		{"no releases", nil, nil},
		{"lookup failed", nil, errors.New("disc lookup: not found")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ids, queries []string
			searched := []Release{{MBID: "s", TrackCount: 2}}

			_, got, err := identify(context.Background(), slog.New(slog.DiscardHandler), twoTrackTOC(), "artist album",
				finder(&ids, tc.ids, tc.idErr), finder(&queries, searched, nil))

			if err != nil {
				t.Fatalf("identify: %v", err)
			}
			if len(queries) != 1 || queries[0] != "artist album" {
				t.Errorf("queries = %v, want [artist album]", queries)
			}
			if len(got) != 1 || got[0].MBID != "s" {
				t.Errorf("releases = %+v, want the search result", got)
			}
		})
	}
}

func TestIdentify_NoQuery(t *testing.T) {
	var ids, queries []string
	lookupErr := errors.New("disc lookup: not found")

	_, _, err := identify(context.Background(), slog.New(slog.DiscardHandler), twoTrackTOC(), "",
		finder(&ids, nil, lookupErr), finder(&queries, nil, nil))

	if !errors.Is(err, lookupErr) {
		t.Errorf("err = %v, want %v", err, lookupErr)
	}
	if len(queries) != 0 {
		t.Errorf("searched %v without a query", queries)
	}
}
