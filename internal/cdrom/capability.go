// Package cdrom is a uniform optical drive layer. It negotiates what a drive
// can do, tracks the state the transport does not (tray, door lock, media
// change, write bookkeeping, changer slots, authentication grants) and
// turns control requests into MMC packets executed by a Transport.
package cdrom

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// Capability is a set of drive features. The numeric values are part of
// the request ABI returned by GetCapability.
type Capability uint32

const (
	CapCloseTray     Capability = 0x1
	CapOpenTray      Capability = 0x2
	CapLock          Capability = 0x4
	CapSelectSpeed   Capability = 0x8
	CapSelectDisc    Capability = 0x10
	CapMultiSession  Capability = 0x20
	CapMCN           Capability = 0x40
	CapMediaChanged  Capability = 0x80
	CapPlayAudio     Capability = 0x100
	CapReset         Capability = 0x200
	CapDriveStatus   Capability = 0x800
	CapGenericPacket Capability = 0x1000
	CapCDR           Capability = 0x2000
	CapCDRW          Capability = 0x4000
	CapDVD           Capability = 0x8000
	CapDVDR          Capability = 0x10000
	CapDVDRAM        Capability = 0x20000
	CapMO            Capability = 0x40000
	CapMRW           Capability = 0x80000
	CapMRWW          Capability = 0x100000
	CapRAM           Capability = 0x200000
)

var capabilityNames = map[Capability]string{
	CapCloseTray:     "close-tray",
	CapOpenTray:      "open-tray",
	CapLock:          "lock",
	CapSelectSpeed:   "select-speed",
	CapSelectDisc:    "select-disc",
	CapMultiSession:  "multi-session",
	CapMCN:           "mcn",
	CapMediaChanged:  "media-changed",
	CapPlayAudio:     "play-audio",
	CapReset:         "reset",
	CapDriveStatus:   "drive-status",
	CapGenericPacket: "generic-packet",
	CapCDR:           "cd-r",
	CapCDRW:          "cd-rw",
	CapDVD:           "dvd",
	CapDVDR:          "dvd-r",
	CapDVDRAM:        "dvd-ram",
	CapMO:            "mo",
	CapMRW:           "mrw",
	CapMRWW:          "mrw-w",
	CapRAM:           "ram",
}

// packetCaps are implemented entirely with MMC packets and are meaningless
// without CapGenericPacket.
const packetCaps = CapMultiSession | CapMCN | CapPlayAudio | CapSelectDisc |
	CapDVD | CapDVDR | CapDVDRAM | CapCDR | CapCDRW | CapMO |
	CapMRW | CapMRWW | CapRAM

// Has reports whether every bit of want is set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Names lists the set bits in ascending order.
func (c Capability) Names() []string {
	set := lo.Filter(lo.Range(32), func(i int, _ int) bool {
		return c&(1<<i) != 0
	})
	return lo.Map(set, func(i int, _ int) string {
		if name, ok := capabilityNames[Capability(1<<i)]; ok {
			return name
		}
		return fmt.Sprintf("0x%x", 1<<i)
	})
}

// ParseCapabilities parses a list of capability names as printed by Names.
func ParseCapabilities(names []string) (Capability, error) {
	var c Capability
	for _, name := range names {
		bit, ok := lo.FindKey(capabilityNames, strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return 0, fmt.Errorf("capability %q: %w", name, ErrInvalidArgument)
		}
		c |= bit
	}
	return c, nil
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Names(), ",")
}

// Options are user-configurable behaviors. Numeric values are part of the
// SetOptions/ClearOptions request ABI.
type Options uint32

const (
	OptAutoClose Options = 0x1
	OptAutoEject Options = 0x2
	OptUseFFlags Options = 0x4 // honor non-blocking opens
	OptLock      Options = 0x8
	OptCheckType Options = 0x10
)

var optionNames = []lo.Entry[Options, string]{
	{Key: OptAutoClose, Value: "auto-close"},
	{Key: OptAutoEject, Value: "auto-eject"},
	{Key: OptUseFFlags, Value: "use-fflags"},
	{Key: OptLock, Value: "lock"},
	{Key: OptCheckType, Value: "check-type"},
}

func (o Options) String() string {
	set := lo.FilterMap(optionNames, func(e lo.Entry[Options, string], _ int) (string, bool) {
		return e.Value, o&e.Key != 0
	})
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, ",")
}

// DriveSpec describes what a transport backend declares about its drive.
type DriveSpec struct {
	Name         string
	Capabilities Capability
	// Mask is the initial user mask: declared capabilities the caller does
	// not want used.
	Mask Capability
	// Slots is the changer capacity. Zero with CapSelectDisc means the
	// capacity is read from the mechanism on first use.
	Slots int
	// MaxFrames caps the number of audio frames per READ CD command.
	MaxFrames int
	// LegacyAudio starts the device on the per-request audio read method
	// instead of multi-frame transfers.
	LegacyAudio bool
}

// defaultMaxFrames fits 64 KiB transfers.
const defaultMaxFrames = 27

// Device is the per-drive state: the DeviceInfo of the layer. Every
// operation runs under mu.
type Device struct {
	mu sync.Mutex

	id    uuid.UUID
	name  string
	t     Transport
	cfg   Config
	log   *slog.Logger
	sense mo.Option[mmc.Sense]

	caps     Capability // declared capabilities minus absent transport methods
	mask     Capability // user mask
	override Capability // media-derived mask, rewritten on each write open
	options  Options

	useCount     int
	keepLocked   bool
	forData      bool
	mcFlags      byte
	mediaWritten bool
	profile      uint16
	cdda         CDDAMethod
	maxFrames    int
	capacity     int
	mrwPage      byte

	exit func() error
	auth [authSlots]authSlot

	registered bool
}

// Register validates a transport against its declared capabilities and
// returns a Device. Capabilities whose transport method is absent are
// cleared; packet-built capabilities are cleared when the drive does not
// accept generic packets.
func Register(t Transport, spec DriveSpec, cfg Config) (*Device, error) {
	if t == nil {
		return nil, fmt.Errorf("register %q: %w", spec.Name, ErrInvalidArgument)
	}
	cfg = cfg.withDefaults()

	caps := spec.Capabilities
	if _, ok := t.(StatusPoller); !ok {
		caps &^= CapDriveStatus
	}
	if _, ok := t.(MediaChangeReporter); !ok {
		caps &^= CapMediaChanged
	}
	if _, ok := t.(TrayMover); !ok {
		caps &^= CapCloseTray | CapOpenTray
	}
	if _, ok := t.(DoorLocker); !ok {
		caps &^= CapLock
	}
	if _, ok := t.(SpeedSelector); !ok {
		caps &^= CapSelectSpeed
	}
	if _, ok := t.(Resetter); !ok {
		caps &^= CapReset
	}
	if !caps.Has(CapGenericPacket) {
		caps &^= packetCaps
	}

	d := &Device{
		id:        uuid.New(),
		name:      spec.Name,
		t:         t,
		cfg:       cfg,
		caps:      caps,
		mask:      spec.Mask,
		maxFrames: spec.MaxFrames,
		capacity:  spec.Slots,
		cdda:      CDDAMultiFrame,
		profile:   mmc.ProfileUnknown,
	}
	if d.maxFrames <= 0 {
		d.maxFrames = defaultMaxFrames
	}
	if spec.LegacyAudio {
		d.cdda = CDDALegacy
	}
	if d.name == "" {
		d.name = d.id.String()[:8]
	}
	d.log = cfg.Logger.With("device", d.name)

	d.options = OptUseFFlags
	if cfg.AutoClose && d.can(CapCloseTray) {
		d.options |= OptAutoClose
	}
	if cfg.AutoEject && d.can(CapOpenTray) {
		d.options |= OptAutoEject
	}
	if cfg.LockDoor {
		d.options |= OptLock
	}
	if cfg.CheckMediaType {
		d.options |= OptCheckType
	}
	d.keepLocked = cfg.KeepLocked

	if d.can(CapMRWW) {
		d.exit = d.mrwExit
	}
	d.registered = true

	d.log.Debug("registered", "id", d.id, "capabilities", d.EffectiveMask().String())
	return d, nil
}

// Unregister runs the exit hook, which flushes pending background-format
// state, and releases any authentication grants still held. Failures are
// logged; the device is always left unregistered.
func (d *Device) Unregister() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registered {
		return fmt.Errorf("unregister %s: %w", d.name, ErrInvalidArgument)
	}
	var err error
	if d.exit != nil {
		err = d.exit()
	} else if d.mediaWritten {
		err = d.flushCache()
	}
	if err != nil {
		d.log.Warn("exit flush failed", "err", err)
	}
	d.invalidateAll()
	d.registered = false
	d.log.Debug("unregistered")
	return err
}

// ID returns the identity assigned at registration.
func (d *Device) ID() uuid.UUID { return d.id }

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// EffectiveMask returns the capabilities operations may use: the drive's
// capabilities minus the user mask and any media-derived override.
func (d *Device) EffectiveMask() Capability {
	return d.caps &^ (d.mask | d.override)
}

// Can reports whether every capability in want is present.
func (d *Device) Can(want Capability) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.can(want)
}

func (d *Device) can(want Capability) bool {
	return d.EffectiveMask().Has(want)
}

// require fails with ErrUnsupported when any of want is missing.
func (d *Device) require(want Capability) error {
	if !d.can(want) {
		missing := want &^ d.EffectiveMask()
		return fmt.Errorf("%s: %w (%s)", d.name, ErrUnsupported, missing)
	}
	return nil
}

// SetMask replaces the user mask.
func (d *Device) SetMask(mask Capability) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mask = mask
}

// SetOption sets or clears a single option flag. Options whose capability
// is absent are accepted and have no effect.
func (d *Device) SetOption(opt Options, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if on {
		d.options |= opt
	} else {
		d.options &^= opt
	}
}

// Options returns the current option flags.
func (d *Device) Options() Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.options
}

// setOptions implements the SetOptions request: lock requires the lock
// capability, the tray options require the matching tray capability, and
// zero only reports.
func (d *Device) setOptions(opts Options) (Options, error) {
	switch {
	case opts == 0:
		return d.options, nil
	case opts == OptUseFFlags || opts == OptCheckType:
	case opts == OptLock:
		if err := d.require(CapLock); err != nil {
			return 0, err
		}
	default:
		if !d.EffectiveMask().Has(Capability(opts)) {
			return 0, fmt.Errorf("set options 0x%x: %w", uint32(opts), ErrUnsupported)
		}
	}
	d.options |= opts
	return d.options, nil
}

func (d *Device) clearOptions(opts Options) Options {
	d.options &^= opts
	return d.options
}
