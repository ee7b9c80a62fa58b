package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the drive, its capabilities and the disc",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("Device:       %s (%s)\n", s.dev.Name(), s.dev.ID())
		if info, err := s.usb.Inquiry(); err == nil {
			fmt.Printf("Model:        %s %s (rev %s)\n", info.Vendor, info.Product, info.Revision)
		}
		fmt.Printf("Capabilities: %s\n", s.dev.EffectiveMask())
		fmt.Printf("Options:      %s\n", s.dev.Options())

		if s.dev.Can(cdrom.CapDriveStatus) {
			st, err := do[cdrom.MediaState](s, cdrom.GetDriveStatus{Slot: cdrom.SlotCurrent})
			if err != nil {
				return err
			}
			fmt.Printf("Drive:        %s\n", st)
			if st != cdrom.MediaReady {
				return nil
			}
		}

		disc, err := do[cdrom.DiscStatus](s, cdrom.GetDiscStatus{})
		if err != nil {
			return err
		}
		fmt.Printf("Disc:         %s\n", disc)
		fmt.Printf("CDDA method:  %s\n", s.dev.CDDAMethod())
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the drive door",
	Args:  cobra.NoArgs,
	RunE:  lockDoor(true),
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the drive door",
	Args:  cobra.NoArgs,
	RunE:  lockDoor(false),
}

func lockDoor(lock bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		return s.run(cdrom.LockDoor{Lock: lock})
	}
}

var speedCmd = &cobra.Command{
	Use:   "speed <x>",
	Short: "Set the read speed as a multiple of 1x, 0 for maximum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		speed, err := strconv.Atoi(args[0])
		if err != nil || speed < 0 {
			return fmt.Errorf("invalid speed %q", args[0])
		}
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		return s.run(cdrom.SelectSpeed{Speed: speed})
	},
}

var ejectSWCmd = &cobra.Command{
	Use:   "autoeject <on|off>",
	Short: "Turn auto-close and auto-eject on or off together",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		return s.run(cdrom.EjectSW{On: on})
	},
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List changer slots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		n, err := do[int](s, cdrom.GetSlotCount{})
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("Not a changer")
			return nil
		}
		current, err := do[int](s, cdrom.SelectDisc{Slot: cdrom.SlotCurrent})
		if err != nil {
			return err
		}
		for slot := range n {
			st, err := s.dev.SlotStatus(slot)
			if err != nil {
				return err
			}
			mark := " "
			if slot == current {
				mark = "*"
			}
			fmt.Printf("%s %2d  %s\n", mark, slot, st)
		}
		return nil
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <slot|none>",
	Short: "Load a changer slot, or unload with none",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot := cdrom.SlotNone
		if args[0] != "none" {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid slot %q", args[0])
			}
			slot = n
		}
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		loaded, err := do[int](s, cdrom.SelectDisc{Slot: slot})
		if err != nil {
			return err
		}
		if loaded == cdrom.SlotNone {
			fmt.Println("Unloaded")
		} else {
			fmt.Printf("Slot %d loaded\n", loaded)
		}
		return nil
	},
}

var requestCmd = &cobra.Command{
	Use:   "request <code> [arg]",
	Short: "Send a raw request code with a scalar argument",
	Long: `Send a request by its numeric code (e.g. 0x5326 DRIVE_STATUS) with an
optional integer argument, and print the result.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid code %q", args[0])
		}
		arg := 0
		if len(args) == 2 {
			if arg, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid argument %q", args[1])
			}
		}
		req, err := cdrom.FromCode(cdrom.RequestCode(code), arg)
		if err != nil {
			return err
		}
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		res, err := s.dev.Dispatch(s.caller, req)
		if err != nil {
			return err
		}
		if res != nil {
			fmt.Printf("%s: %v\n", req.Code(), res)
		}
		return nil
	},
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}

func init() {
	rootCmd.AddCommand(
		statusCmd,
		simple("eject", "Open the tray", cdrom.Eject{}, ""),
		simple("close", "Close the tray", cdrom.CloseTray{}, ""),
		simple("reset", "Reset the drive (needs --privileged)", cdrom.Reset{}, "Drive reset"),
		lockCmd,
		unlockCmd,
		speedCmd,
		ejectSWCmd,
		slotsCmd,
		selectCmd,
		requestCmd,
	)
}
