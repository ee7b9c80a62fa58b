// Package musicbrainz identifies audio discs from a TOC read off the drive.
package musicbrainz

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.uploadedlobster.com/mbtypes"
	"go.uploadedlobster.com/musicbrainzws2"

	"github.com/binaryphile/crostini-cdrom/internal/cdda"
)

// RequestInterval is the minimum spacing between web service calls.
const RequestInterval = time.Second

// Release contains metadata for an album/release
type Release struct {
	MBID        string
	Title       string
	Artist      string // "Various Artists" for compilations
	Year        int
	Country     string
	TrackCount  int
	DiscCount   int
	Tracks      []Track
	Compilation bool
}

// Track contains metadata for a single track
type Track struct {
	Num    int
	Title  string
	Artist string // may differ from the album artist on compilations
}

// Client wraps the MusicBrainz web service.
type Client struct {
	client *musicbrainzws2.Client
	logger *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewClient creates a new MusicBrainz API client
func NewClient(appName, version, contact string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	client := musicbrainzws2.NewClient(musicbrainzws2.AppInfo{
		Name:    appName,
		Version: version,
		URL:     contact,
	})
	return &Client{client: client, logger: logger}
}

// Close releases client resources
func (c *Client) Close() error {
	return c.client.Close()
}

// wait blocks until RequestInterval has passed since the previous call.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d := time.Until(c.last.Add(RequestInterval)); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	c.last = time.Now()
	return nil
}

// Identify computes the disc ID of toc and looks it up. When the disc ID is
// unknown and query is not empty, releases matching query are used instead.
// Releases whose track count matches the audio tracks on the disc come first.
func (c *Client) Identify(ctx context.Context, toc cdda.TOC, query string) (string, []Release, error) {
	return identify(ctx, c.logger, toc, query, c.LookupByDiscID, c.Search)
}

// releaseFinder returns the releases matching a disc ID or a search query.
type releaseFinder func(ctx context.Context, key string) ([]Release, error)

func identify(ctx context.Context, logger *slog.Logger, toc cdda.TOC, query string, byDiscID, search releaseFinder) (string, []Release, error) {
	id := cdda.CalculateDiscID(toc)
	logger.Debug("disc id", "id", id, "toc", cdda.TOCString(toc))

	releases, err := byDiscID(ctx, id)
	if query != "" && (err != nil || len(releases) == 0) {
		logger.Debug("disc id unknown, searching", "query", query, "err", err)
		releases, err = search(ctx, query)
	}
	if err != nil {
		return id, nil, err
	}
	return id, SortReleasesByTrackMatch(releases, len(toc.AudioTracks())), nil
}

// LookupByDiscID looks up releases by MusicBrainz disc ID.
// Several pressings or editions may match.
func (c *Client) LookupByDiscID(ctx context.Context, discID string) ([]Release, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	filter := musicbrainzws2.DiscIDFilter{
		Includes: []string{"recordings", "artists", "release-groups"},
	}
	disc, err := c.client.LookupDiscID(ctx, discID, filter)
	if err != nil {
		return nil, fmt.Errorf("disc lookup: %w", err)
	}

	var releases []Release
	for _, r := range disc.Releases {
		releases = append(releases, Release{
			MBID:        string(r.ID),
			Title:       r.Title,
			Artist:      getArtistName(r.ArtistCredit),
			Year:        r.Date.Year,
			Country:     string(r.CountryCode),
			TrackCount:  getTotalTracks(r.Media),
			DiscCount:   len(r.Media),
			Compilation: isCompilation(r.ArtistCredit),
		})
	}
	c.logger.Debug("disc lookup", "id", discID, "releases", len(releases))
	return releases, nil
}

// GetReleaseTracks fetches full track information for a release picked from
// LookupByDiscID.
func (c *Client) GetReleaseTracks(ctx context.Context, mbid string) (*Release, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	filter := musicbrainzws2.IncludesFilter{
		Includes: []string{"recordings", "artists", "artist-credits"},
	}
	r, err := c.client.LookupRelease(ctx, mbtypes.MBID(mbid), filter)
	if err != nil {
		return nil, fmt.Errorf("release lookup: %w", err)
	}

	release := Release{
		MBID:        string(r.ID),
		Title:       r.Title,
		Artist:      getArtistName(r.ArtistCredit),
		Year:        r.Date.Year,
		Country:     string(r.CountryCode),
		TrackCount:  getTotalTracks(r.Media),
		DiscCount:   len(r.Media),
		Compilation: isCompilation(r.ArtistCredit),
	}
	for _, medium := range r.Media {
		for _, track := range medium.Tracks {
			release.Tracks = append(release.Tracks, Track{
				Num:    track.Position,
				Title:  track.Title,
				Artist: getTrackArtist(track, r.ArtistCredit),
			})
		}
	}
	return &release, nil
}

// Search searches for releases by text query (artist, album, etc).
func (c *Client) Search(ctx context.Context, query string) ([]Release, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	filter := musicbrainzws2.SearchFilter{Query: query}
	result, err := c.client.SearchReleases(ctx, filter, musicbrainzws2.DefaultPaginator())
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var releases []Release
	for _, r := range result.Releases {
		releases = append(releases, Release{
			MBID:        string(r.ID),
			Title:       r.Title,
			Artist:      getArtistName(r.ArtistCredit),
			Year:        r.Date.Year,
			Country:     string(r.CountryCode),
			TrackCount:  getTotalTracks(r.Media),
			DiscCount:   len(r.Media),
			Compilation: isCompilation(r.ArtistCredit),
		})
	}
	return releases, nil
}

// SortReleasesByTrackMatch returns a copy of releases with exact track-count
// matches first. Within each group releases are ordered newest first; equal
// years keep their input order.
func SortReleasesByTrackMatch(releases []Release, tracks int) []Release {
	sorted := slices.Clone(releases)
	slices.SortStableFunc(sorted, func(a, b Release) int {
		am, bm := a.TrackCount == tracks, b.TrackCount == tracks
		if am != bm {
			if am {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Year, a.Year)
	})
	return sorted
}

func getArtistName(credit musicbrainzws2.ArtistCredit) string {
	if len(credit) == 0 {
		return "Unknown Artist"
	}
	return credit.String()
}

func getTrackArtist(track musicbrainzws2.Track, albumCredit musicbrainzws2.ArtistCredit) string {
	if len(track.ArtistCredit) > 0 {
		return track.ArtistCredit.String()
	}
	if len(track.Recording.ArtistCredit) > 0 {
		return track.Recording.ArtistCredit.String()
	}
	return getArtistName(albumCredit)
}

func isCompilation(credit musicbrainzws2.ArtistCredit) bool {
	return len(credit) > 0 && getArtistName(credit) == "Various Artists"
}

func getTotalTracks(media []musicbrainzws2.Medium) int {
	total := 0
	for _, m := range media {
		total += m.TrackCount
	}
	return total
}
