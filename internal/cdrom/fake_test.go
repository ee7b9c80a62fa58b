package cdrom

import (
	"encoding/binary"
	"log/slog"
	"testing"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/stretchr/testify/require"

	"github.com/binaryphile/crostini-cdrom/internal/cdda"
	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

type handler func(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error)

// fakeDrive is a scripted transport implementing every optional interface.
// Opcodes without a handler succeed and leave the buffer zeroed.
type fakeDrive struct {
	packets  []*mmc.Packet
	handlers map[mmc.Opcode]handler

	states []MediaState // poll results, the last one repeats
	polls  int

	trayMoves []bool
	locks     []bool
	speeds    []int
	resets    int
	changes   []bool
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{handlers: make(map[mmc.Opcode]handler)}
}

func (f *fakeDrive) on(op mmc.Opcode, h handler) *fakeDrive {
	f.handlers[op] = h
	return f
}

func (f *fakeDrive) Execute(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error) {
	f.packets = append(f.packets, p)
	if h, ok := f.handlers[p.Opcode()]; ok {
		return h(p)
	}
	return good()
}

func (f *fakeDrive) PollStatus() (MediaState, error) {
	defer func() { f.polls++ }()
	if len(f.states) == 0 {
		return MediaReady, nil
	}
	return f.states[min(f.polls, len(f.states)-1)], nil
}

func (f *fakeDrive) LockDoor(lock bool) error {
	f.locks = append(f.locks, lock)
	return nil
}

func (f *fakeDrive) MoveTray(open bool) error {
	f.trayMoves = append(f.trayMoves, open)
	return nil
}

func (f *fakeDrive) SelectSpeed(speed int) error {
	f.speeds = append(f.speeds, speed)
	return nil
}

func (f *fakeDrive) Reset() error {
	f.resets++
	return nil
}

func (f *fakeDrive) MediaChanged() (bool, error) {
	if len(f.changes) == 0 {
		return false, nil
	}
	c := f.changes[0]
	f.changes = f.changes[1:]
	return c, nil
}

// count returns how many packets with opcode op were executed.
func (f *fakeDrive) count(op mmc.Opcode) int {
	return lo.CountBy(f.packets, func(p *mmc.Packet) bool { return p.Opcode() == op })
}

// find returns the executed packets with opcode op.
func (f *fakeDrive) find(op mmc.Opcode) []*mmc.Packet {
	return lo.Filter(f.packets, func(p *mmc.Packet, _ int) bool { return p.Opcode() == op })
}

// packetOnly is a transport with none of the optional interfaces.
type packetOnly struct{ f *fakeDrive }

func (t packetOnly) Execute(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error) {
	return t.f.Execute(p)
}

func good() (mmc.Status, mo.Option[mmc.Sense], error) {
	return mmc.StatusGood, mo.None[mmc.Sense](), nil
}

// reply copies data into the packet buffer and truncates the buffer to
// the bytes copied, as a transport reporting a short transfer would.
func reply(data []byte) handler {
	return func(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error) {
		n := copy(p.Buffer, data)
		p.Buffer = p.Buffer[:n]
		return good()
	}
}

func checkCondition(key, asc, ascq byte) handler {
	return func(*mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error) {
		return mmc.StatusCheckCondition, mo.Some(mmc.Sense{Key: key, ASC: asc, ASCQ: ascq}), nil
	}
}

// seq runs the handlers in turn, repeating the last one.
func seq(hs ...handler) handler {
	i := 0
	return func(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error) {
		h := hs[min(i, len(hs)-1)]
		i++
		return h(p)
	}
}

const allCaps = CapCloseTray | CapOpenTray | CapLock | CapSelectSpeed | CapSelectDisc |
	CapMultiSession | CapMCN | CapMediaChanged | CapPlayAudio | CapReset | CapDriveStatus |
	CapGenericPacket | CapCDR | CapCDRW | CapDVD | CapDVDR | CapDVDRAM | CapMO |
	CapMRW | CapMRWW | CapRAM

func register(t *testing.T, tr Transport, spec DriveSpec, cfg Config) *Device {
	t.Helper()
	cfg.Logger = slog.New(slog.DiscardHandler)
	d, err := Register(tr, spec, cfg)
	require.NoError(t, err)
	return d
}

type tocTrack struct {
	num     int
	control byte
	lba     int
}

// tocBytes builds a READ TOC format 0 response with LBA addresses.
func tocBytes(first, last, leadout int, tracks ...tocTrack) []byte {
	entries := append(tracks, tocTrack{num: cdda.LeadoutTrack, lba: leadout})
	data := make([]byte, 4+8*len(entries))
	binary.BigEndian.PutUint16(data[0:2], uint16(len(data)-2))
	data[2], data[3] = byte(first), byte(last)
	for i, e := range entries {
		off := 4 + 8*i
		data[off+1] = 0x10 | e.control
		data[off+2] = byte(e.num)
		binary.BigEndian.PutUint32(data[off+4:off+8], uint32(e.lba))
	}
	return data
}

var (
	dataTOC  = tocBytes(1, 1, 20000, tocTrack{num: 1, control: cdda.ControlData})
	audioTOC = tocBytes(1, 2, 30000, tocTrack{num: 1}, tocTrack{num: 2, lba: 15000})
)

// discInfoBytes builds a full disc information record.
func discInfoBytes(set func(b []byte)) []byte {
	b := make([]byte, mmc.DiscInfoSize)
	binary.BigEndian.PutUint16(b[0:2], mmc.DiscInfoSize-2)
	if set != nil {
		set(b)
	}
	return b
}

// trackInfoBytes builds a full track information record.
func trackInfoBytes(set func(b []byte)) []byte {
	b := make([]byte, mmc.TrackInfoSize)
	binary.BigEndian.PutUint16(b[0:2], mmc.TrackInfoSize-2)
	if set != nil {
		set(b)
	}
	return b
}

// trackInfoHandler answers READ TRACK INFORMATION by track number.
func trackInfoHandler(tracks map[uint32][]byte) handler {
	return func(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error) {
		data, ok := tracks[binary.BigEndian.Uint32(p.Cmd[2:6])]
		if !ok {
			return checkCondition(mmc.SenseIllegalRequest, mmc.ASCInvalidField, 0)(p)
		}
		return reply(data)(p)
	}
}

// modeFixture is a mode page with its changeable-values mask.
type modeFixture struct {
	cur  []byte
	mask []byte
}

// modeBytes wraps a page in a MODE SENSE(10) header without block
// descriptors.
func modeBytes(page []byte) []byte {
	data := make([]byte, mmc.ModeHeaderSize+len(page))
	binary.BigEndian.PutUint16(data[0:2], uint16(len(data)-2))
	copy(data[mmc.ModeHeaderSize:], page)
	return data
}

// modeHandler answers MODE SENSE(10) by page and page control. Unknown
// pages are rejected.
func modeHandler(pages map[byte]modeFixture) handler {
	return func(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error) {
		fx, ok := pages[p.Cmd[2]&0x3F]
		if !ok {
			return checkCondition(mmc.SenseIllegalRequest, mmc.ASCInvalidField, 0)(p)
		}
		if p.Cmd[2]>>6 == mmc.PageChangeable {
			return reply(modeBytes(fx.mask))(p)
		}
		return reply(modeBytes(fx.cur))(p)
	}
}

// featureFixture is a feature descriptor returned by GET CONFIGURATION.
type featureFixture struct {
	current bool
	data    []byte
}

// configHandler answers GET CONFIGURATION with the current profile and
// the descriptor of the requested feature. Features not listed are
// rejected.
func configHandler(profile uint16, features map[uint16]featureFixture) handler {
	return func(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error) {
		code := binary.BigEndian.Uint16(p.Cmd[2:4])
		header := make([]byte, 8)
		binary.BigEndian.PutUint16(header[6:8], profile)
		if code == mmc.FeatureProfileList {
			return reply(header)(p)
		}
		fx, ok := features[code]
		if !ok {
			return checkCondition(mmc.SenseIllegalRequest, mmc.ASCInvalidField, 0)(p)
		}
		desc := make([]byte, 4+len(fx.data))
		binary.BigEndian.PutUint16(desc[0:2], code)
		if fx.current {
			desc[2] = 0x01
		}
		desc[3] = byte(len(fx.data))
		copy(desc[4:], fx.data)
		return reply(append(header, desc...))(p)
	}
}

// mechBytes builds a mechanism status record for a changer with the given
// slot table.
func mechBytes(current int, slots ...mmc.SlotEntry) []byte {
	data := make([]byte, mmc.MechStatusLength(len(slots)))
	data[0] = byte(current) & 0x1F
	data[5] = byte(len(slots))
	for i, s := range slots {
		e := data[8+4*i:]
		if s.DiscPresent {
			e[0] |= 0x80
		}
		if s.Changed {
			e[0] |= 0x01
		}
	}
	return data
}
