package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
)

// writable builds a command that prints one write address.
func writable(use, short, label string, req cdrom.Request) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := drive(cmd)
			if err != nil {
				return err
			}
			lba, err := do[int](s, req)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d\n", label, lba)
			return nil
		},
	}
}

var formatStatusCmd = &cobra.Command{
	Use:   "format-status",
	Short: "Show the background format state of MRW media",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := drive(cmd)
		if err != nil {
			return err
		}
		st, err := s.dev.FormatStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Format: %s\n", st)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(
		writable("next-writable", "Show the next writable address", "Next writable", cdrom.GetNextWritable{}),
		writable("last-written", "Show the last written address", "Last written", cdrom.GetLastWritten{}),
		formatStatusCmd,
	)
}
