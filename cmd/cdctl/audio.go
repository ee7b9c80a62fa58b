package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/binaryphile/crostini-cdrom/internal/cdda"
	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

var flagMSF bool

func addrFormat() cdrom.AddrFormat {
	if flagMSF {
		return cdrom.AddrMSF
	}
	return cdrom.AddrLBA
}

func formatAddr(a cdrom.Address) string {
	if a.Format == cdrom.AddrMSF {
		return a.MSF.String()
	}
	return strconv.Itoa(a.LBA)
}

// trackOf converts a TOC entry read with LBA addressing.
func trackOf(e cdrom.TOCEntry) cdda.Track {
	t := cdda.Track{
		Num:     e.Track,
		LBA:     e.Addr.LBA,
		ADR:     e.ADR,
		Control: e.Control,
	}
	if e.Control&cdda.ControlData != 0 {
		t.Type = cdda.TrackTypeData
	}
	return t
}

// readTOC assembles the TOC from the header and entry requests.
func readTOC(s *session) (cdda.TOC, error) {
	hdr, err := do[cdrom.TOCHeader](s, cdrom.ReadTOCHeader{})
	if err != nil {
		return cdda.TOC{}, err
	}
	toc := cdda.TOC{FirstTrack: hdr.First, LastTrack: hdr.Last}
	for n := hdr.First; n <= hdr.Last; n++ {
		e, err := do[cdrom.TOCEntry](s, cdrom.ReadTOCEntry{Track: n, Format: cdrom.AddrLBA})
		if err != nil {
			return cdda.TOC{}, err
		}
		toc.Tracks = append(toc.Tracks, trackOf(e))
	}
	lead, err := do[cdrom.TOCEntry](s, cdrom.ReadTOCEntry{Track: cdda.LeadoutTrack, Format: cdrom.AddrLBA})
	if err != nil {
		return cdda.TOC{}, err
	}
	toc.Leadout = trackOf(lead)
	toc.LeadoutLBA = lead.Addr.LBA
	return toc, nil
}

func printTOC(toc cdda.TOC) {
	fmt.Printf("\nTable of Contents:\n")
	fmt.Printf("%8s %8s %10s %10s %10s\n", "Track", "Type", "Start", "Length", "Duration")
	fmt.Println(strings.Repeat("-", 50))

	for _, track := range toc.Tracks {
		trackType := "audio"
		if !track.IsAudio() {
			trackType = "data"
		}
		length, _ := toc.Frames(track.Num)
		duration := float64(length) / mmc.FramesPerSecond
		fmt.Printf("%8d %8s %10s %10d %9.1fs\n",
			track.Num, trackType, formatLBA(track.LBA), length, duration)
	}
	fmt.Printf("%8s %8s %10s\n", "Lead-out", "-", formatLBA(toc.LeadoutLBA))
}

func formatLBA(lba int) string {
	if flagMSF {
		return mmc.LBAToMSF(lba).String()
	}
	return strconv.Itoa(lba)
}

var tocCmd = &cobra.Command{
	Use:   "toc",
	Short: "Show the table of contents",
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
		printTOC(toc)
		return nil
	},
}

var audioStatusNames = map[byte]string{
	mmc.AudioInvalid:   "not supported",
	mmc.AudioPlaying:   "playing",
	mmc.AudioPaused:    "paused",
	mmc.AudioCompleted: "completed",
	mmc.AudioError:     "stopped on error",
	mmc.AudioNoStatus:  "no status",
}

var subchannelCmd = &cobra.Command{
	Use:   "subchannel",
	Short: "Show the current play position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		q, err := do[cdrom.SubChannel](s, cdrom.ReadSubChannel{Format: addrFormat()})
		if err != nil {
			return err
		}
		fmt.Printf("Audio:    %s\n", audioStatusNames[q.AudioStatus])
		fmt.Printf("Track:    %d index %d\n", q.Track, q.Index)
		fmt.Printf("Absolute: %s\n", formatAddr(q.Absolute))
		fmt.Printf("Relative: %s\n", formatAddr(q.Relative))
		return nil
	},
}

var mcnCmd = &cobra.Command{
	Use:   "mcn",
	Short: "Show the media catalog number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		code, err := do[string](s, cdrom.GetMCN{})
		if err != nil {
			return err
		}
		if code == "" {
			fmt.Println("No media catalog number")
			return nil
		}
		fmt.Println(code)
		return nil
	},
}

var multisessionCmd = &cobra.Command{
	Use:   "multisession",
	Short: "Show where the last session starts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		ms, err := do[cdrom.MultiSession](s, cdrom.ReadMultiSession{Format: addrFormat()})
		if err != nil {
			return err
		}
		fmt.Printf("Last session: %s (XA: %t)\n", formatAddr(ms.Addr), ms.XA)
		return nil
	},
}

var (
	flagFrom string
	flagTo   string
)

var playCmd = &cobra.Command{
	Use:   "play [start-track [end-track]]",
	Short: "Play audio by track or by MSF range",
	Long: `Play audio through the drive's analog output.

With track numbers, playback runs from index 1 of start-track to index 1
of end-track (default: the last track). With --from/--to, playback runs
between two MSF addresses given as mm:ss:ff.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagFrom != "" || flagTo != "" {
			return playMSF(cmd)
		}
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		hdr, err := do[cdrom.TOCHeader](s, cdrom.ReadTOCHeader{})
		if err != nil {
			return err
		}
		start, end := hdr.First, hdr.Last
		if len(args) > 0 {
			if start, err = strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("invalid track %q", args[0])
			}
			end = start
		}
		if len(args) > 1 {
			if end, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid track %q", args[1])
			}
		}
		return s.run(cdrom.PlayTrackIndex{StartTrack: start, StartIndex: 1, EndTrack: end, EndIndex: 1})
	},
}

func playMSF(cmd *cobra.Command) error {
	if flagFrom == "" || flagTo == "" {
		return fmt.Errorf("--from and --to go together")
	}
	start, err := parseMSF(flagFrom)
	if err != nil {
		return err
	}
	end, err := parseMSF(flagTo)
	if err != nil {
		return err
	}
	s, err := drive(cmd)
	if err != nil {
		return err
	}
	return s.run(cdrom.PlayMSF{Start: start, End: end})
}

// parseMSF parses mm:ss:ff.
func parseMSF(s string) (mmc.MSF, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return mmc.MSF{}, fmt.Errorf("invalid MSF %q: want mm:ss:ff", s)
	}
	var v [3]byte
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return mmc.MSF{}, fmt.Errorf("invalid MSF %q: %w", s, err)
		}
		v[i] = byte(n)
	}
	m := mmc.MSF{Minute: v[0], Second: v[1], Frame: v[2]}
	if !m.Valid() {
		return mmc.MSF{}, fmt.Errorf("invalid MSF %q: field out of range", s)
	}
	return m, nil
}

var volumeCmd = &cobra.Command{
	Use:   "volume [left right]",
	Short: "Show or set the analog output levels (0-255)",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("want no levels or left and right, got %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		v, err := do[cdrom.Volume](s, cdrom.ReadVolume{})
		if err != nil {
			return err
		}
		if len(args) == 0 {
			fmt.Printf("Volume: %d %d %d %d\n", v[0], v[1], v[2], v[3])
			return nil
		}
		for i, a := range args {
			n, err := strconv.ParseUint(a, 10, 8)
			if err != nil {
				return fmt.Errorf("invalid level %q", a)
			}
			v[i] = byte(n)
		}
		return s.run(cdrom.SetVolume{Volume: v})
	},
}

func init() {
	for _, c := range []*cobra.Command{tocCmd, subchannelCmd, multisessionCmd} {
		c.Flags().BoolVar(&flagMSF, "msf", false, "Show addresses as mm:ss:ff")
	}
	playCmd.Flags().StringVar(&flagFrom, "from", "", "Start address (mm:ss:ff)")
	playCmd.Flags().StringVar(&flagTo, "to", "", "End address (mm:ss:ff)")

	rootCmd.AddCommand(
		tocCmd,
		subchannelCmd,
		mcnCmd,
		multisessionCmd,
		playCmd,
		simple("pause", "Pause audio playback", cdrom.Pause{}, ""),
		simple("resume", "Resume audio playback", cdrom.Resume{}, ""),
		simple("stop", "Stop the disc", cdrom.Stop{}, ""),
		simple("start", "Spin the disc up", cdrom.Start{}, ""),
		volumeCmd,
	)
}
