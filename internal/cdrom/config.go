package cdrom

import (
	"log/slog"
)

// Config holds the per-device behavior switches chosen at registration.
// There are no package-level defaults; callers start from DefaultConfig.
type Config struct {
	AutoClose      bool `yaml:"auto_close"`
	AutoEject      bool `yaml:"auto_eject"`
	LockDoor       bool `yaml:"lock_door"`
	CheckMediaType bool `yaml:"check_media_type"`
	// KeepLocked keeps the door locked when the last user releases the
	// device, and blocks eject while set.
	KeepLocked bool `yaml:"keep_locked"`
	// FormatRestart restarts an interrupted background format when the
	// device is opened for writing.
	FormatRestart bool `yaml:"format_restart"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns auto-close, lock-on-open and format restart enabled.
func DefaultConfig() Config {
	return Config{
		AutoClose:     true,
		LockDoor:      true,
		FormatRestart: true,
	}
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
