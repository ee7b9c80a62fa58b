package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
)

// dvdRegions is the number of DVD playback regions.
const dvdRegions = 8

var rpcTypeNames = [...]string{"no region set", "region set", "last change", "permanent"}

// regionMask returns the RPC mask that allows only region n. A set bit
// blocks its region.
func regionMask(n int) (byte, error) {
	if n < 1 || n > dvdRegions {
		return 0, fmt.Errorf("region %d: want 1-%d", n, dvdRegions)
	}
	return ^byte(1 << (n - 1)), nil
}

// playableRegions lists the regions mask allows.
func playableRegions(mask byte) []int {
	return lo.Filter(lo.RangeFrom(1, dvdRegions), func(n int, _ int) bool {
		return mask&(1<<(n-1)) == 0
	})
}

func formatRegions(regions []int) string {
	if len(regions) == 0 {
		return "none"
	}
	return strings.Join(lo.Map(regions, func(n int, _ int) string { return strconv.Itoa(n) }), ",")
}

var flagSetRegion int

var regionCmd = &cobra.Command{
	Use:   "region",
	Short: "Show or set the drive's DVD region",
	Long: `Show the drive's regional playback control state.

--set changes the drive region. Drives allow only a few changes before the
region becomes permanent, so this also requires --privileged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("set") {
			mask, err := regionMask(flagSetRegion)
			if err != nil {
				return err
			}
			if err := s.run(cdrom.Authenticate{Step: cdrom.AuthSetRegion, Region: mask}); err != nil {
				return err
			}
			fmt.Printf("Region set to %d\n", flagSetRegion)
			return nil
		}

		res, err := do[cdrom.AuthResult](s, cdrom.Authenticate{Step: cdrom.AuthRegionState})
		if err != nil {
			return err
		}
		rpc := res.Region
		state := "unknown"
		if int(rpc.Type) < len(rpcTypeNames) {
			state = rpcTypeNames[rpc.Type]
		}
		fmt.Printf("State:         %s\n", state)
		fmt.Printf("Regions:       %s\n", formatRegions(playableRegions(rpc.RegionMask)))
		fmt.Printf("User changes:  %d left\n", rpc.UserChanges)
		fmt.Printf("Vendor resets: %d left\n", rpc.VendorResets)
		fmt.Printf("RPC scheme:    %d\n", rpc.Scheme)
		return nil
	},
}

var asfCmd = &cobra.Command{
	Use:   "asf",
	Short: "Show the authentication success flag",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		res, err := do[cdrom.AuthResult](s, cdrom.Authenticate{Step: cdrom.AuthASF})
		if err != nil {
			return err
		}
		fmt.Printf("Authenticated: %t\n", res.ASF)
		return nil
	},
}

var structureTypes = map[string]cdrom.StructureType{
	"physical":      cdrom.StructPhysical,
	"copyright":     cdrom.StructCopyright,
	"bca":           cdrom.StructBCA,
	"manufacturing": cdrom.StructManufacturing,
}

var flagLayer int

var dvdStructCmd = &cobra.Command{
	Use:       "dvd-struct <physical|copyright|bca|manufacturing>",
	Short:     "Read a DVD structure",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: lo.Keys(structureTypes),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		st, err := do[cdrom.Structure](s, cdrom.ReadStructure{Type: structureTypes[args[0]], Layer: flagLayer})
		if err != nil {
			return err
		}

		switch st.Type {
		case cdrom.StructPhysical:
			l := st.Physical
			fmt.Printf("Book:         type %d version %d\n", l.BookType, l.BookVersion)
			fmt.Printf("Disc size:    %d, min rate %d\n", l.DiscSize, l.MinRate)
			fmt.Printf("Layers:       %d (type %d, opposite track path %t)\n", l.Layers+1, l.LayerType, l.TrackPath)
			fmt.Printf("Density:      track %d, linear %d\n", l.TrackDensity, l.LinearDensity)
			fmt.Printf("Sectors:      0x%06x-0x%06x (layer 0 end 0x%06x)\n", l.StartSector, l.EndSector, l.EndSectorLayer0)
			fmt.Printf("BCA:          %t\n", l.BCA)
		case cdrom.StructCopyright:
			fmt.Printf("Protection:   %d\n", st.Copyright.Protection)
			fmt.Printf("Regions:      %s\n", formatRegions(playableRegions(st.Copyright.Regions)))
		default:
			fmt.Print(hex.Dump(st.Data))
		}
		return nil
	},
}

func init() {
	regionCmd.Flags().IntVar(&flagSetRegion, "set", 0, "Set the drive region (1-8)")
	dvdStructCmd.Flags().IntVar(&flagLayer, "layer", 0, "Layer for physical and copyright information")

	rootCmd.AddCommand(regionCmd, asfCmd, dvdStructCmd)
}
