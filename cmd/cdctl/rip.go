package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/binaryphile/crostini-cdrom/internal/cdda"
	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
	"github.com/binaryphile/crostini-cdrom/internal/encode"
	"github.com/binaryphile/crostini-cdrom/internal/mmc"
	"github.com/binaryphile/crostini-cdrom/internal/musicbrainz"
)

// chunkFrames is the number of frames per audio read request.
const chunkFrames = mmc.FramesPerSecond

// maxReadErrors is the number of consecutive failed reads before a track
// is abandoned.
const maxReadErrors = 10

var (
	flagOutput string
	flagWAV    string
	flagTracks string
	flagLookup bool
	flagQuery  string
)

var readCDDACmd = &cobra.Command{
	Use:   "read-cdda <lba> <frames>",
	Short: "Read raw audio frames into a WAV file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lba, err := strconv.Atoi(args[0])
		if err != nil || lba < 0 {
			return fmt.Errorf("invalid LBA %q", args[0])
		}
		frames, err := strconv.Atoi(args[1])
		if err != nil || frames <= 0 {
			return fmt.Errorf("invalid frame count %q", args[1])
		}
		out := flagWAV
		if out == "" {
			out = fmt.Sprintf("lba%d.wav", lba)
		}

		s, err := drive(cmd)
		if err != nil {
			return err
		}
		if err := ripRange(s, lba, frames, out); err != nil {
			return err
		}
		fmt.Printf("  Saved: %s\n", out)
		return nil
	},
}

var ripCmd = &cobra.Command{
	Use:   "rip",
	Short: "Rip audio tracks to WAV files",
	Long: `Rip the audio tracks of the disc to WAV files.

Files are named after the disc ID unless --lookup finds the release on
MusicBrainz, in which case they are named Artist-Album-NN-Title.wav.
Data tracks are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		toc, err := readTOC(s)
		if err != nil {
			return err
		}
		printTOC(toc)

		discID := cdda.CalculateDiscID(toc)
		fmt.Printf("\nDisc ID: %s\n", discID)

		var release *musicbrainz.Release
		if flagLookup {
			release = lookupRelease(cmd, s, toc)
		}

		if err := os.MkdirAll(flagOutput, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		fmt.Printf("\nRipping to: %s\n", flagOutput)
		fmt.Printf("Chunk size: %d frames\n\n", chunkFrames)

		selected := parseTrackList(flagTracks)
		var ripped []string
		for _, track := range toc.Tracks {
			if selected != nil && !selected[track.Num] {
				continue
			}
			if !track.IsAudio() {
				fmt.Printf("Track %d: Skipping (data track)\n", track.Num)
				continue
			}
			frames, err := toc.Frames(track.Num)
			if err != nil {
				return err
			}
			duration := float64(frames) / mmc.FramesPerSecond
			fmt.Printf("Track %d: %d frames (%.1fs / %.1fm)\n", track.Num, frames, duration, duration/60)

			path := filepath.Join(flagOutput, trackFilename(release, discID, track.Num))
			if err := ripRange(s, track.LBA, frames, path); err != nil {
				fmt.Printf("  Error: %v\n", err)
				continue
			}
			fmt.Printf("  Saved: %s\n", path)
			ripped = append(ripped, path)
		}

		fmt.Printf("\n%s\n", strings.Repeat("=", 50))
		fmt.Printf("Done! Ripped %d tracks to %s\n", len(ripped), flagOutput)
		return nil
	},
}

// lookupRelease identifies the disc on MusicBrainz. Lookup failures only
// cost the file names, so they are reported and ripping goes on.
func lookupRelease(cmd *cobra.Command, s *session, toc cdda.TOC) *musicbrainz.Release {
	client := musicbrainz.NewClient(appName, appVersion, s.cfg.Contact, s.log)
	defer client.Close()

	_, releases, err := client.Identify(cmd.Context(), toc, flagQuery)
	if err != nil {
		fmt.Printf("Lookup failed: %v\n", err)
		return nil
	}
	if len(releases) == 0 {
		fmt.Println("No release found")
		return nil
	}
	release, err := client.GetReleaseTracks(cmd.Context(), releases[0].MBID)
	if err != nil {
		fmt.Printf("Lookup failed: %v\n", err)
		return nil
	}
	fmt.Printf("Release: %s - %s (%d)\n", release.Artist, release.Title, release.Year)
	return release
}

// trackFilename names track num after release, or after the disc ID when
// the release is unknown or lacks the track.
func trackFilename(release *musicbrainz.Release, discID string, num int) string {
	if release == nil {
		return encode.UnknownFilename(discID, num)
	}
	t, ok := lo.Find(release.Tracks, func(t musicbrainz.Track) bool { return t.Num == num })
	if !ok {
		return encode.UnknownFilename(discID, num)
	}
	name := encode.TrackName{
		Artist: release.Artist,
		Album:  release.Title,
		Track:  num,
		Title:  t.Title,
	}
	if release.Compilation {
		name.TrackArtist = t.Artist
	}
	return name.Filename()
}

// ripRange reads frames audio frames at lba into a WAV file at path.
func ripRange(s *session, lba, frames int, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	ww, err := cdda.NewWAVWriter(bw, frames)
	if err != nil {
		return err
	}

	end := lba + frames
	current := lba
	start := time.Now()
	failures := 0

	for current < end {
		n := min(chunkFrames, end-current)
		data, err := do[[]byte](s, cdrom.ReadAudio{LBA: current, Frames: n})
		if err != nil {
			failures++
			if failures > maxReadErrors {
				fmt.Println()
				return fmt.Errorf("too many errors at LBA %d: %w", current, err)
			}
			fmt.Printf("\n  Error at LBA %d, retrying...\n", current)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if _, err := ww.Write(data); err != nil {
			return err
		}
		current += n
		failures = 0

		done := current - lba
		elapsed := time.Since(start).Seconds()
		speed := float64(done) / elapsed
		eta := float64(frames-done) / speed
		fmt.Printf("\r  %3d%% | %d/%d frames | %.0f frames/s | ETA: %.0fs   ",
			done*100/frames, done, frames, speed, eta)
	}
	fmt.Println()

	return bw.Flush()
}

// parseTrackList parses a comma-separated track list. An empty list
// selects every track and returns nil.
func parseTrackList(tracks string) map[int]bool {
	if tracks == "" {
		return nil
	}

	result := make(map[int]bool)
	for _, t := range strings.Split(tracks, ",") {
		t = strings.TrimSpace(t)
		if n, err := strconv.Atoi(t); err == nil {
			result[n] = true
		}
	}
	return result
}

var discIDCmd = &cobra.Command{
	Use:   "discid",
	Short: "Show the MusicBrainz disc ID",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		toc, err := readTOC(s)
		if err != nil {
			return err
		}
		fmt.Printf("Disc ID: %s\n", cdda.CalculateDiscID(toc))
		fmt.Printf("TOC:     %s\n", cdda.TOCString(toc))
		return nil
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Look the disc up on MusicBrainz",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		toc, err := readTOC(s)
		if err != nil {
			return err
		}

		client := musicbrainz.NewClient(appName, appVersion, s.cfg.Contact, s.log)
		defer client.Close()

		discID, releases, err := client.Identify(cmd.Context(), toc, flagQuery)
		if err != nil {
			return err
		}
		fmt.Printf("Disc ID: %s\n", discID)
		if len(releases) == 0 {
			fmt.Println("No release found")
			return nil
		}

		fmt.Printf("\n%-36s %4s %3s %6s  %s\n", "MBID", "Year", "CC", "Tracks", "Release")
		for _, r := range releases {
			fmt.Printf("%-36s %4d %3s %6d  %s - %s\n", r.MBID, r.Year, r.Country, r.TrackCount, r.Artist, r.Title)
		}

		best, err := client.GetReleaseTracks(cmd.Context(), releases[0].MBID)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s - %s\n", best.Artist, best.Title)
		for _, t := range best.Tracks {
			if best.Compilation {
				fmt.Printf("%4d  %s - %s\n", t.Num, t.Artist, t.Title)
				continue
			}
			fmt.Printf("%4d  %s\n", t.Num, t.Title)
		}
		return nil
	},
}

func init() {
	readCDDACmd.Flags().StringVarP(&flagWAV, "output", "o", "", "Output file (default: lba<LBA>.wav)")

	ripCmd.Flags().StringVarP(&flagOutput, "output", "o", ".", "Output directory")
	ripCmd.Flags().StringVarP(&flagTracks, "tracks", "t", "", "Tracks to rip (comma-separated, default: all)")
	ripCmd.Flags().BoolVar(&flagLookup, "lookup", false, "Name files after the MusicBrainz release")
	ripCmd.Flags().StringVar(&flagQuery, "query", "", "Search MusicBrainz for this text when the disc ID is unknown")
	lookupCmd.Flags().StringVar(&flagQuery, "query", "", "Search MusicBrainz for this text when the disc ID is unknown")

	rootCmd.AddCommand(readCDDACmd, ripCmd, discIDCmd, lookupCmd)
}
