package cdrom

import (
	"errors"
	"fmt"

	"github.com/samber/mo"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

var (
	ErrUnsupported          = errors.New("cdrom: operation not supported")
	ErrDriveNotReady        = errors.New("cdrom: drive not ready")
	ErrNoMedia              = errors.New("cdrom: no medium")
	ErrTrayOpen             = errors.New("cdrom: tray open")
	ErrWrongMediaType       = errors.New("cdrom: wrong media type")
	ErrBusy                 = errors.New("cdrom: device busy")
	ErrInvalidArgument      = errors.New("cdrom: invalid argument")
	ErrAuthenticationFailed = errors.New("cdrom: authentication failed")
	ErrPermission           = errors.New("cdrom: operation not permitted")
)

// TransportError is a failed packet: either the transport could not deliver
// it (Err set) or the drive returned a non-good status with optional sense.
type TransportError struct {
	Op     mmc.Opcode
	Status mmc.Status
	Sense  mo.Option[mmc.Sense]
	Err    error
}

func newTransportError(op mmc.Opcode, status mmc.Status, sense mo.Option[mmc.Sense], err error) *TransportError {
	return &TransportError{
		Op:     op,
		Status: status,
		Sense:  sense,
		Err:    err,
	}
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if s, ok := e.Sense.Get(); ok {
		return fmt.Sprintf("%s failed (status 0x%02x, sense %s)", e.Op, byte(e.Status), s)
	}
	return fmt.Sprintf("%s failed (status 0x%02x)", e.Op, byte(e.Status))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// senseOf returns the sense data of a TransportError anywhere in err's chain.
func senseOf(err error) (mmc.Sense, bool) {
	var te *TransportError
	if !errors.As(err, &te) {
		return mmc.Sense{}, false
	}
	return te.Sense.Get()
}

// isCommandFailure reports whether err is a drive-reported failure rather
// than a delivery failure.
func isCommandFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Err == nil
}
