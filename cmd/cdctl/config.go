package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/gousb"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
)

// fileConfig is the layout of the YAML config file.
type fileConfig struct {
	VendorID  string       `yaml:"vendor_id"`
	ProductID string       `yaml:"product_id"`
	Contact   string       `yaml:"contact"` // MusicBrainz user agent contact
	Mask      []string     `yaml:"mask"`    // capability names not to use
	Device    cdrom.Config `yaml:"device"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "config.yaml")
}

// loadConfig reads path over the defaults. A missing file at the default
// location is not an error; a missing explicit file is.
func loadConfig(path string) (fileConfig, error) {
	cfg := fileConfig{Contact: appURL, Device: cdrom.DefaultConfig()}

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyFlags overrides file values with flags given on the command line.
func applyFlags(cfg *fileConfig, cmd *cobra.Command) error {
	flags := cmd.Flags()
	bools := map[string]*bool{
		"auto-close":  &cfg.Device.AutoClose,
		"auto-eject":  &cfg.Device.AutoEject,
		"lock-door":   &cfg.Device.LockDoor,
		"keep-locked": &cfg.Device.KeepLocked,
		"check-media": &cfg.Device.CheckMediaType,
	}
	for name, dst := range bools {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	if flags.Changed("vendor-id") {
		cfg.VendorID = flagVendorID
	}
	if flags.Changed("product-id") {
		cfg.ProductID = flagProductID
	}
	return nil
}

// parseUSBID parses a hex USB ID with or without a 0x prefix. Empty means
// auto-detect.
func parseUSBID(s string) (gousb.ID, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB ID %q", s)
	}
	return gousb.ID(v), nil
}
