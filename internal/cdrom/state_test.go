package cdrom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// dataDrive is a drive holding a single-track data disc.
func dataDrive() *fakeDrive {
	return newFakeDrive().on(mmc.OpReadTOC, reply(dataTOC))
}

func TestOpen_ClosesOpenTrayOnce(t *testing.T) {
	f := dataDrive()
	f.states = []MediaState{MediaTrayOpen, MediaReady}
	d := register(t, f, DriveSpec{Capabilities: allCaps}, DefaultConfig())

	require.NoError(t, d.Open(0))

	assert.Equal(t, []bool{false}, f.trayMoves)
	assert.Equal(t, 2, f.polls)
	assert.Equal(t, []bool{true}, f.locks)
	assert.Equal(t, 1, d.UseCount())
}

func TestOpen_TrayOpenWithoutAutoClose(t *testing.T) {
	f := dataDrive()
	f.states = []MediaState{MediaTrayOpen}
	d := register(t, f, DriveSpec{Capabilities: allCaps}, Config{})

	err := d.Open(0)

	assert.ErrorIs(t, err, ErrTrayOpen)
	assert.Empty(t, f.trayMoves)
	assert.Equal(t, 0, d.UseCount())
}

func TestOpen_NotReadyAfterClosingTray(t *testing.T) {
	f := dataDrive()
	f.states = []MediaState{MediaTrayOpen, MediaNotReady}
	d := register(t, f, DriveSpec{Capabilities: allCaps}, DefaultConfig())

	err := d.Open(0)

	assert.ErrorIs(t, err, ErrDriveNotReady)
	assert.Equal(t, []bool{false}, f.trayMoves, "the tray is closed only once")
	assert.Equal(t, 0, d.UseCount())
}

func TestOpen_NoDisc(t *testing.T) {
	f := dataDrive()
	f.states = []MediaState{MediaNoDisc}
	d := register(t, f, DriveSpec{Capabilities: allCaps}, DefaultConfig())

	assert.ErrorIs(t, d.Open(0), ErrNoMedia)
	assert.Empty(t, f.packets)
}

func TestOpen_AudioDisc(t *testing.T) {
	tests := []struct {
		name      string
		checkType bool
		wantErr   error
	}{
		{"check type rejects", true, ErrWrongMediaType},
		{"allowed with warning", false, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeDrive().on(mmc.OpReadTOC, reply(audioTOC))
			cfg := DefaultConfig()
			cfg.CheckMediaType = tc.checkType
			d := register(t, f, DriveSpec{Capabilities: allCaps}, cfg)

			err := d.Open(0)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, 0, d.UseCount())
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOpen_NonBlocking(t *testing.T) {
	f := dataDrive()
	f.states = []MediaState{MediaNoDisc}
	d := register(t, f, DriveSpec{Capabilities: allCaps}, DefaultConfig())

	require.NoError(t, d.Open(OpenNonBlocking))
	assert.Zero(t, f.polls)
	assert.Empty(t, f.packets)

	d.SetOption(OptUseFFlags, false)
	assert.ErrorIs(t, d.Open(OpenNonBlocking), ErrNoMedia)
	assert.Equal(t, 1, d.UseCount())
}

func TestLockDoor_SharedDevice(t *testing.T) {
	f := dataDrive()
	d := register(t, f, DriveSpec{Capabilities: allCaps}, DefaultConfig())
	require.NoError(t, d.Open(0))
	require.NoError(t, d.Open(0))

	_, err := d.Dispatch(Caller{}, LockDoor{Lock: false})
	assert.ErrorIs(t, err, ErrBusy)

	_, err = d.Dispatch(Caller{Privileged: true}, LockDoor{Lock: false})
	assert.NoError(t, err)

	require.NoError(t, d.Release())
	_, err = d.Dispatch(Caller{}, LockDoor{Lock: false})
	assert.NoError(t, err)
}

func TestEject_NeedsSoleUser(t *testing.T) {
	f := dataDrive()
	d := register(t, f, DriveSpec{Capabilities: allCaps}, DefaultConfig())
	require.NoError(t, d.Open(0))
	require.NoError(t, d.Open(0))

	_, err := d.Dispatch(Caller{}, Eject{})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, f.trayMoves)

	require.NoError(t, d.Release())
	_, err = d.Dispatch(Caller{}, Eject{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, f.trayMoves)
	assert.False(t, f.locks[len(f.locks)-1], "door unlocked before eject")
}

func TestEject_KeptLocked(t *testing.T) {
	f := dataDrive()
	d := register(t, f, DriveSpec{Capabilities: allCaps}, DefaultConfig())
	require.NoError(t, d.Open(0))

	_, err := d.Dispatch(Caller{}, LockDoor{Lock: true})
	require.NoError(t, err)

	_, err = d.Dispatch(Caller{}, Eject{})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = d.Dispatch(Caller{}, EjectSW{On: true})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, f.trayMoves)
}

func TestEjectSW_TogglesTrayOptions(t *testing.T) {
	d := register(t, newFakeDrive(), DriveSpec{Capabilities: allCaps}, Config{})

	_, err := d.Dispatch(Caller{}, EjectSW{On: true})
	require.NoError(t, err)
	assert.Equal(t, OptUseFFlags|OptAutoClose|OptAutoEject, d.Options())

	_, err = d.Dispatch(Caller{}, EjectSW{On: false})
	require.NoError(t, err)
	assert.Equal(t, OptUseFFlags, d.Options())
}

func TestRelease(t *testing.T) {
	tests := []struct {
		name      string
		cfg       func(*Config)
		wantLocks []bool
		wantMoves []bool
	}{
		{"unlocks", func(*Config) {}, []bool{true, false}, nil},
		{"auto eject", func(c *Config) { c.AutoEject = true }, []bool{true, false}, []bool{true}},
		{"keep locked", func(c *Config) { c.KeepLocked = true }, []bool{true}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := dataDrive()
			cfg := DefaultConfig()
			tc.cfg(&cfg)
			d := register(t, f, DriveSpec{Capabilities: allCaps}, cfg)
			require.NoError(t, d.Open(0))

			require.NoError(t, d.Release())

			assert.Equal(t, tc.wantLocks, f.locks)
			assert.Equal(t, tc.wantMoves, f.trayMoves)
			assert.Equal(t, 0, d.UseCount())
		})
	}
}

func TestRelease_LastUserOnly(t *testing.T) {
	f := dataDrive()
	d := register(t, f, DriveSpec{Capabilities: allCaps}, DefaultConfig())
	require.NoError(t, d.Open(0))
	require.NoError(t, d.Open(0))

	require.NoError(t, d.Release())
	assert.Equal(t, []bool{true, true}, f.locks)

	require.NoError(t, d.Release())
	assert.Equal(t, []bool{true, true, false}, f.locks)

	assert.ErrorIs(t, d.Release(), ErrInvalidArgument)
}

func TestMediaChange_EachConsumerSeesItOnce(t *testing.T) {
	f := newFakeDrive()
	f.changes = []bool{true}
	d := register(t, f, DriveSpec{Capabilities: allCaps}, Config{})

	changed, err := d.CheckMediaChange()
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.CheckMediaChange()
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = Do[bool](d, Caller{}, CheckMediaChanged{Slot: SlotCurrent})
	require.NoError(t, err)
	assert.True(t, changed, "control consumer still has the change pending")

	changed, err = Do[bool](d, Caller{}, CheckMediaChanged{Slot: SlotCurrent})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReset_NeedsPrivilege(t *testing.T) {
	f := newFakeDrive()
	d := register(t, f, DriveSpec{Capabilities: allCaps}, Config{})

	_, err := d.Dispatch(Caller{}, Reset{})
	assert.ErrorIs(t, err, ErrPermission)
	assert.Zero(t, f.resets)

	_, err = d.Dispatch(Caller{Privileged: true}, Reset{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.resets)
}

func TestSelectSpeed(t *testing.T) {
	f := newFakeDrive()
	d := register(t, f, DriveSpec{Capabilities: allCaps}, Config{})

	_, err := d.Dispatch(Caller{}, SelectSpeed{Speed: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = d.Dispatch(Caller{}, SelectSpeed{Speed: 4})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, f.speeds)
}

func TestDriveStatus(t *testing.T) {
	f := newFakeDrive()
	f.states = []MediaState{MediaTrayOpen}
	d := register(t, f, DriveSpec{Capabilities: allCaps &^ CapSelectDisc}, Config{})

	got, err := Do[MediaState](d, Caller{}, GetDriveStatus{Slot: SlotCurrent})
	require.NoError(t, err)
	assert.Equal(t, MediaTrayOpen, got)
	assert.Equal(t, "tray open", got.String())
}
