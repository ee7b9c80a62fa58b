package scsi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/mo"

	"github.com/binaryphile/crostini-cdrom/internal/cdrom"
	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// kbpsPerX is the 1x CD data rate SET CD SPEED counts in.
const kbpsPerX = 176

type bulkIn interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

type bulkOut interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// Pipe runs MMC packets over a pair of Bulk-Only endpoints. It implements
// cdrom.Transport and the optional capability interfaces except Reset,
// which needs the USB device.
type Pipe struct {
	in  bulkIn
	out bulkOut
	log *slog.Logger

	mu  sync.Mutex
	tag uint32
	// resetRecovery runs the Bulk-Only reset after a phase error.
	resetRecovery func() error
}

var (
	_ cdrom.Transport           = (*Pipe)(nil)
	_ cdrom.StatusPoller        = (*Pipe)(nil)
	_ cdrom.DoorLocker          = (*Pipe)(nil)
	_ cdrom.TrayMover           = (*Pipe)(nil)
	_ cdrom.SpeedSelector       = (*Pipe)(nil)
	_ cdrom.MediaChangeReporter = (*Pipe)(nil)
)

func newPipe(in bulkIn, out bulkOut, log *slog.Logger) *Pipe {
	return &Pipe{in: in, out: out, log: log, tag: 1}
}

// Execute sends p and collects its status. A failed command is followed by
// REQUEST SENSE so the caller sees the sense data.
func (b *Pipe) Execute(p *mmc.Packet) (mmc.Status, mo.Option[mmc.Sense], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	csw, err := b.transfer(p)
	if err != nil {
		return mmc.StatusGood, mo.None[mmc.Sense](), fmt.Errorf("%s: %w", p.Opcode(), err)
	}

	switch csw.Status {
	case StatusPassed:
		return mmc.StatusGood, mo.None[mmc.Sense](), nil
	case StatusFailed:
		return mmc.StatusCheckCondition, b.requestSense(), nil
	default:
		if b.resetRecovery != nil {
			if err := b.resetRecovery(); err != nil {
				b.log.Warn("reset recovery failed", "err", err)
			}
		}
		return mmc.StatusGood, mo.None[mmc.Sense](), fmt.Errorf("%s: %w", p.Opcode(), ErrPhaseError)
	}
}

// transfer runs the command, data and status stages of one command.
func (b *Pipe) transfer(p *mmc.Packet) (CSW, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = mmc.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	tag := b.tag
	b.tag++

	cbw := BuildCBW(tag, uint32(len(p.Buffer)), directionFlag(p.Direction), p.CDB())
	n, err := b.out.WriteContext(ctx, cbw)
	if err != nil {
		return CSW{}, fmt.Errorf("CBW write: %w", err)
	}
	if n != len(cbw) {
		return CSW{}, fmt.Errorf("CBW short write: %d/%d bytes", n, len(cbw))
	}

	// A stalled data stage still ends with a CSW.
	switch {
	case p.Direction == mmc.DirIn && len(p.Buffer) > 0:
		n, err := b.in.ReadContext(ctx, p.Buffer)
		if err != nil {
			b.log.Debug("data read", "packet", p.String(), "err", err)
			n = 0
		}
		p.Buffer = p.Buffer[:n]
	case p.Direction == mmc.DirOut && len(p.Buffer) > 0:
		if _, err := b.out.WriteContext(ctx, p.Buffer); err != nil {
			b.log.Debug("data write", "packet", p.String(), "err", err)
		}
	}

	buf := make([]byte, CSWSize)
	if _, err := b.in.ReadContext(ctx, buf); err != nil {
		return CSW{}, fmt.Errorf("CSW read: %w", err)
	}
	return ParseCSW(buf, tag)
}

func (b *Pipe) requestSense() mo.Option[mmc.Sense] {
	rs := mmc.BuildRequestSense()
	csw, err := b.transfer(rs)
	if err != nil || csw.Status != StatusPassed {
		b.log.Debug("request sense failed", "err", err)
		return mo.None[mmc.Sense]()
	}
	return mo.TupleToOption(mmc.ParseSense(rs.Buffer))
}

// CommandError is a command that completed with a failed status.
type CommandError struct {
	Op    mmc.Opcode
	Sense mo.Option[mmc.Sense]
}

func (e *CommandError) Error() string {
	if s, ok := e.Sense.Get(); ok {
		return fmt.Sprintf("%s failed: sense %s", e.Op, s)
	}
	return fmt.Sprintf("%s failed", e.Op)
}

// run executes p and turns a failed status into a CommandError.
func (b *Pipe) run(p *mmc.Packet) error {
	status, sense, err := b.Execute(p)
	if err != nil {
		return err
	}
	if status != mmc.StatusGood {
		return &CommandError{Op: p.Opcode(), Sense: sense}
	}
	return nil
}

// PollStatus maps TEST UNIT READY and its sense to a drive state.
func (b *Pipe) PollStatus() (cdrom.MediaState, error) {
	status, sense, err := b.Execute(mmc.BuildTestUnitReady())
	if err != nil {
		return cdrom.MediaNoInfo, err
	}
	if status == mmc.StatusGood {
		return cdrom.MediaReady, nil
	}
	return stateFromSense(sense), nil
}

func stateFromSense(sense mo.Option[mmc.Sense]) cdrom.MediaState {
	s, ok := sense.Get()
	if !ok {
		return cdrom.MediaNoInfo
	}
	switch {
	case s.Is(mmc.SenseNotReady, mmc.ASCMediumNotPresent, 0x02):
		return cdrom.MediaTrayOpen
	case s.Key == mmc.SenseNotReady && s.ASC == mmc.ASCMediumNotPresent:
		return cdrom.MediaNoDisc
	case s.Key == mmc.SenseNotReady && s.ASC == mmc.ASCNotReady:
		return cdrom.MediaNotReady
	case s.Key == mmc.SenseUnitAttention:
		// medium just changed, the next poll settles
		return cdrom.MediaNotReady
	}
	return cdrom.MediaNoInfo
}

// LockDoor sends PREVENT ALLOW MEDIUM REMOVAL.
func (b *Pipe) LockDoor(lock bool) error {
	return b.run(mmc.BuildPreventAllow(lock))
}

// MoveTray opens or closes the tray with START STOP UNIT.
func (b *Pipe) MoveTray(open bool) error {
	p := mmc.BuildStartStop(!open, true, false)
	p.Timeout = mmc.LoadUnloadTimeout
	return b.run(p)
}

// SelectSpeed sets the read speed in multiples of 1x, 0 for the maximum.
func (b *Pipe) SelectSpeed(speed int) error {
	return b.run(mmc.BuildSetCDSpeed(speed * kbpsPerX))
}

// MediaChanged polls the media event class. New media, removal and
// change events count as a change; an eject request does not.
func (b *Pipe) MediaChanged() (bool, error) {
	p := mmc.BuildGetEventStatus(mmc.NotifyMedia)
	if err := b.run(p); err != nil {
		return false, err
	}
	ev, ok := mmc.ParseMediaEvent(p.Buffer)
	if !ok {
		return false, nil
	}
	switch ev.Code {
	case mmc.MediaEventNew, mmc.MediaEventRemoval, mmc.MediaEventChanged:
		return true, nil
	}
	return false, nil
}

// Inquiry identifies the drive.
func (b *Pipe) Inquiry() (mmc.InquiryData, error) {
	p := mmc.BuildInquiry()
	if err := b.run(p); err != nil {
		return mmc.InquiryData{}, err
	}
	return mmc.ParseInquiry(p.Buffer), nil
}
