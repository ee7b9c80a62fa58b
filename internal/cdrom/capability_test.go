package cdrom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_ClearsCapabilitiesWithoutTransportMethods(t *testing.T) {
	d := register(t, packetOnly{newFakeDrive()}, DriveSpec{Capabilities: allCaps}, Config{})

	got := d.EffectiveMask()
	for _, c := range []Capability{CapDriveStatus, CapMediaChanged, CapOpenTray, CapCloseTray, CapLock, CapSelectSpeed, CapReset} {
		assert.False(t, got.Has(c), "%s should be cleared", c)
	}
	assert.True(t, got.Has(CapGenericPacket|CapPlayAudio|CapDVD))
}

func TestRegister_ClearsPacketCapabilitiesWithoutGenericPacket(t *testing.T) {
	d := register(t, newFakeDrive(), DriveSpec{Capabilities: allCaps &^ CapGenericPacket}, Config{})

	got := d.EffectiveMask()
	assert.Zero(t, got&packetCaps)
	assert.True(t, got.Has(CapLock|CapDriveStatus|CapOpenTray))
}

func TestRegister_NilTransport(t *testing.T) {
	_, err := Register(nil, DriveSpec{}, Config{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegister_DefaultOptions(t *testing.T) {
	d := register(t, newFakeDrive(), DriveSpec{Capabilities: allCaps}, DefaultConfig())
	assert.Equal(t, OptUseFFlags|OptAutoClose|OptLock, d.Options())

	// auto-close needs a tray that closes
	d = register(t, packetOnly{newFakeDrive()}, DriveSpec{Capabilities: allCaps}, DefaultConfig())
	assert.Equal(t, OptUseFFlags|OptLock, d.Options())
}

func TestEffectiveMask(t *testing.T) {
	d := register(t, newFakeDrive(), DriveSpec{Capabilities: allCaps, Mask: CapLock}, Config{})
	assert.False(t, d.Can(CapLock))

	d.SetMask(0)
	assert.True(t, d.Can(CapLock))

	d.override = CapRAM
	assert.False(t, d.Can(CapRAM))
	assert.True(t, d.Can(CapLock), "override leaves the user mask alone")
}

func TestDispatch_MissingCapabilitySendsNothing(t *testing.T) {
	f := newFakeDrive()
	d := register(t, packetOnly{f}, DriveSpec{}, Config{})

	reqs := []Request{
		Eject{}, CloseTray{}, LockDoor{Lock: true}, SelectSpeed{Speed: 4}, SelectDisc{Slot: 0},
		GetDriveStatus{Slot: SlotCurrent}, CheckMediaChanged{Slot: SlotCurrent},
		ReadMultiSession{Format: AddrLBA}, GetMCN{}, ReadSubChannel{Format: AddrLBA},
		Pause{}, Resume{}, Stop{}, Start{}, PlayBlock{LBA: 0, Length: 75},
		ReadVolume{}, SetVolume{}, ReadAudio{LBA: 0, Frames: 1},
		ReadData{LBA: 16, Count: 1}, ReadStructure{Type: StructPhysical},
		Authenticate{Step: AuthAllocate},
	}
	for _, req := range reqs {
		t.Run(req.Code().String(), func(t *testing.T) {
			_, err := d.Dispatch(Caller{Privileged: true}, req)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
	assert.Empty(t, f.packets)
}

func TestSetOptions(t *testing.T) {
	d := register(t, newFakeDrive(), DriveSpec{Capabilities: allCaps}, Config{})

	got, err := Do[Options](d, Caller{}, SetOptions{Options: OptAutoEject})
	require.NoError(t, err)
	assert.Equal(t, OptUseFFlags|OptAutoEject, got)

	got, err = Do[Options](d, Caller{}, SetOptions{Options: OptLock})
	require.NoError(t, err)
	assert.Equal(t, OptUseFFlags|OptAutoEject|OptLock, got)

	got, err = Do[Options](d, Caller{}, SetOptions{})
	require.NoError(t, err)
	assert.Equal(t, OptUseFFlags|OptAutoEject|OptLock, got, "zero only reports")

	got, err = Do[Options](d, Caller{}, ClearOptions{Options: OptAutoEject | OptUseFFlags})
	require.NoError(t, err)
	assert.Equal(t, OptLock, got)
}

func TestSetOptions_NeedsCapability(t *testing.T) {
	d := register(t, packetOnly{newFakeDrive()}, DriveSpec{Capabilities: allCaps}, Config{})

	for _, opt := range []Options{OptAutoClose, OptAutoEject, OptLock} {
		_, err := d.Dispatch(Caller{}, SetOptions{Options: opt})
		assert.ErrorIs(t, err, ErrUnsupported, "option 0x%x", uint32(opt))
	}

	got, err := Do[Options](d, Caller{}, SetOptions{Options: OptCheckType})
	require.NoError(t, err)
	assert.Equal(t, OptUseFFlags|OptCheckType, got)
}

func TestCapability_String(t *testing.T) {
	tests := []struct {
		caps Capability
		want string
	}{
		{0, "none"},
		{CapLock | CapMCN, "lock,mcn"},
		{CapMRWW | CapRAM, "mrw-w,ram"},
		{0x400, "0x400"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.caps.String())
	}
}

func TestUnregister(t *testing.T) {
	f := newFakeDrive()
	d := register(t, f, DriveSpec{Capabilities: allCaps &^ CapMRWW}, Config{})

	require.NoError(t, d.Unregister())
	assert.Empty(t, f.packets)

	assert.ErrorIs(t, d.Unregister(), ErrInvalidArgument)
	_, err := d.Dispatch(Caller{}, GetCapability{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, d.Open(OpenNonBlocking), ErrInvalidArgument)
}

func TestParseCapabilities(t *testing.T) {
	got, err := ParseCapabilities([]string{"lock", " MCN", "mrw-w"})
	require.NoError(t, err)
	assert.Equal(t, CapLock|CapMCN|CapMRWW, got)

	got, err = ParseCapabilities((CapPlayAudio | CapDVD).Names())
	require.NoError(t, err)
	assert.Equal(t, CapPlayAudio|CapDVD, got)

	_, err = ParseCapabilities([]string{"teleport"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOptions_String(t *testing.T) {
	assert.Equal(t, "none", Options(0).String())
	assert.Equal(t, "auto-close,lock", (OptLock | OptAutoClose).String())
}
