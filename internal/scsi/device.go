package scsi

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/gousb"

	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
)

// Known USB CD drive IDs
var KnownDevices = []struct {
	VendorID  gousb.ID
	ProductID gousb.ID
	Name      string
}{
	{0x0e8d, 0x1887, "Hitachi-LG/MediaTek Slim Portable DVD Writer"},
	{0x152d, 0x2339, "JMicron USB CD/DVD"},
	{0x13fd, 0x0840, "Initio USB CD/DVD"},
	{0x1c6b, 0xa223, "Philips USB CD/DVD"},
}

// Bulk-Only Mass Storage Reset class request
const (
	requestTypeClassInterface = 0x21
	requestMassStorageReset   = 0xFF
)

// Device is a USB CD/DVD drive. It adds Reset to the Pipe it embeds.
type Device struct {
	*Pipe

	name   string
	ctx    *gousb.Context
	dev    *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
}

var _ cdrom.Resetter = (*Device)(nil)

// OpenDevice opens a USB CD drive.
// If vendorID and productID are 0, it tries the known devices in order.
func OpenDevice(vendorID, productID gousb.ID, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx := gousb.NewContext()

	var dev *gousb.Device
	var err error
	var name string

	if vendorID != 0 && productID != 0 {
		dev, err = ctx.OpenDeviceWithVIDPID(vendorID, productID)
		if err != nil {
			ctx.Close()
			return nil, fmt.Errorf("open device: %w", err)
		}
		if dev == nil {
			ctx.Close()
			return nil, errors.New("device not found")
		}
		name = fmt.Sprintf("%s:%s", vendorID, productID)
	} else {
		for _, known := range KnownDevices {
			dev, err = ctx.OpenDeviceWithVIDPID(known.VendorID, known.ProductID)
			if err == nil && dev != nil {
				name = known.Name
				break
			}
		}
		if dev == nil {
			ctx.Close()
			return nil, errors.New("no USB CD drive found")
		}
	}

	// Not every platform can detach the kernel driver.
	_ = dev.SetAutoDetach(true)

	config, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("get config: %w", err)
	}

	intf, err := massStorageInterface(config)
	if err != nil {
		config.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}

	var epIn *gousb.InEndpoint
	var epOut *gousb.OutEndpoint
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			if in, err := intf.InEndpoint(ep.Number); err == nil {
				epIn = in
			}
		} else if out, err := intf.OutEndpoint(ep.Number); err == nil {
			epOut = out
		}
	}
	if epIn == nil || epOut == nil {
		intf.Close()
		config.Close()
		dev.Close()
		ctx.Close()
		return nil, errors.New("could not find bulk endpoints")
	}

	logger = logger.With("device", name)
	logger.Info("found drive",
		"out", fmt.Sprintf("0x%02x", uint8(epOut.Desc.Address)),
		"in", fmt.Sprintf("0x%02x", uint8(epIn.Desc.Address)))

	d := &Device{
		Pipe:   newPipe(epIn, epOut, logger),
		name:   name,
		ctx:    ctx,
		dev:    dev,
		config: config,
		intf:   intf,
	}
	d.Pipe.resetRecovery = d.massStorageReset
	return d, nil
}

// massStorageInterface claims the Mass Storage interface, falling back to
// the first interface for drives with a vendor-specific class.
func massStorageInterface(config *gousb.Config) (*gousb.Interface, error) {
	for _, iface := range config.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class != gousb.ClassMassStorage {
				continue
			}
			if intf, err := config.Interface(iface.Number, alt.Alternate); err == nil {
				return intf, nil
			}
		}
	}
	for _, iface := range config.Desc.Interfaces {
		if intf, err := config.Interface(iface.Number, 0); err == nil {
			return intf, nil
		}
	}
	return nil, errors.New("no suitable interface found")
}

// Name returns the product name or VID:PID the drive was opened by.
func (d *Device) Name() string {
	return d.name
}

// Spec describes the drive for cdrom.Register.
func (d *Device) Spec() cdrom.DriveSpec {
	return cdrom.DriveSpec{
		Name:         d.name,
		Capabilities: d.ProbeCapabilities(),
	}
}

// Reset resets the USB port the drive is attached to.
func (d *Device) Reset() error {
	d.Pipe.mu.Lock()
	defer d.Pipe.mu.Unlock()
	if err := d.dev.Reset(); err != nil {
		return fmt.Errorf("usb reset: %w", err)
	}
	return nil
}

func (d *Device) massStorageReset() error {
	_, err := d.dev.Control(requestTypeClassInterface, requestMassStorageReset,
		0, uint16(d.intf.Setting.Number), nil)
	return err
}

// Close releases all USB resources
func (d *Device) Close() {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.config != nil {
		d.config.Close()
	}
	if d.dev != nil {
		d.dev.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
}
