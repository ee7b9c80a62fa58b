package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "cdctl"
	appVersion = "1.0"
	appURL     = "https://github.com/binaryphile/crostini-cdrom"
)

var (
	flagConfig     string
	flagVerbose    bool
	flagVendorID   string
	flagProductID  string
	flagPrivileged bool
)

// rootCmd is the base command. Subcommands open the drive on demand.
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Control a USB CD/DVD drive",
	Long: `cdctl - control a USB CD/DVD drive shared with Linux (ChromeOS/Crostini).

Every subcommand maps onto one control request of the drive layer: tray and
door handling, TOC and sub-channel queries, audio playback, CD-DA extraction,
changer slots, DVD structures and regions, and write addresses.

Examples:
  cdctl status
  cdctl toc --msf
  cdctl rip -o ~/rips --lookup
  cdctl eject`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and releases the drive afterwards.
func Execute() {
	err := rootCmd.Execute()
	if sess != nil {
		sess.close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML config file (default: $XDG_CONFIG_HOME/cdctl/config.yaml)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Log device events at debug level")
	pf.StringVar(&flagVendorID, "vendor-id", "", "USB vendor ID (hex, e.g., 0x0e8d)")
	pf.StringVar(&flagProductID, "product-id", "", "USB product ID (hex, e.g., 0x1887)")
	pf.BoolVar(&flagPrivileged, "privileged", false, "Allow reset, region changes and unlocking a shared door")

	pf.Bool("auto-close", true, "Close the tray when a disc is needed")
	pf.Bool("auto-eject", false, "Eject when the drive is released after a data open")
	pf.Bool("lock-door", true, "Lock the door while the drive is open")
	pf.Bool("keep-locked", false, "Keep the door locked after release")
	pf.Bool("check-media", false, "Refuse opens for data on audio discs")
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
