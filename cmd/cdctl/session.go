package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
	"github.com/binaryphile/crostini-cdrom/internal/scsi"
)

// session is the drive opened for the running command.
type session struct {
	usb    *scsi.Device
	dev    *cdrom.Device
	caller cdrom.Caller
	cfg    fileConfig
	log    *slog.Logger
}

var sess *session

// drive opens the drive once per process. The open is non-blocking so
// that control requests work without a disc.
func drive(cmd *cobra.Command) (*session, error) {
	if sess != nil {
		return sess, nil
	}

	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(&cfg, cmd); err != nil {
		return nil, err
	}
	vid, err := parseUSBID(cfg.VendorID)
	if err != nil {
		return nil, err
	}
	pid, err := parseUSBID(cfg.ProductID)
	if err != nil {
		return nil, err
	}
	mask, err := cdrom.ParseCapabilities(cfg.Mask)
	if err != nil {
		return nil, fmt.Errorf("config mask: %w", err)
	}

	log := newLogger(flagVerbose)
	usb, err := scsi.OpenDevice(vid, pid, log)
	if err != nil {
		return nil, fmt.Errorf("%w (is the USB CD drive shared with Linux?)", err)
	}

	spec := usb.Spec()
	spec.Mask = mask
	devCfg := cfg.Device
	devCfg.Logger = log
	dev, err := cdrom.Register(usb, spec, devCfg)
	if err != nil {
		usb.Close()
		return nil, err
	}
	if err := dev.Open(cdrom.OpenNonBlocking); err != nil {
		_ = dev.Unregister()
		usb.Close()
		return nil, err
	}

	sess = &session{
		usb:    usb,
		dev:    dev,
		caller: cdrom.Caller{Privileged: flagPrivileged},
		cfg:    cfg,
		log:    log,
	}
	return sess, nil
}

func (s *session) close() {
	if err := s.dev.Release(); err != nil {
		s.log.Warn("release", "err", err)
	}
	if err := s.dev.Unregister(); err != nil {
		s.log.Warn("unregister", "err", err)
	}
	s.usb.Close()
}

// do dispatches req for the command's caller.
func do[R any](s *session, req cdrom.Request) (R, error) {
	return cdrom.Do[R](s.dev, s.caller, req)
}

// run dispatches a request that returns nothing.
func (s *session) run(req cdrom.Request) error {
	_, err := s.dev.Dispatch(s.caller, req)
	return err
}

// simple builds a command that dispatches one request without arguments.
func simple(use, short string, req cdrom.Request, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := drive(cmd)
			if err != nil {
				return err
			}
			if err := s.run(req); err != nil {
				return err
			}
			if done != "" {
				fmt.Println(done)
			}
			return nil
		},
	}
}
