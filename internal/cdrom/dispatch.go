package cdrom

import (
	"fmt"

	"github.com/binaryphile/crostini-cdrom/internal/mmc"
)

// RequestCode is the numeric code of a control request. Codes are a
// compatibility boundary and are never renumbered.
type RequestCode uint32

const (
	CodePause         RequestCode = 0x5301
	CodeResume        RequestCode = 0x5302
	CodePlayMSF       RequestCode = 0x5303
	CodePlayTrackInd  RequestCode = 0x5304
	CodeReadTOCHeader RequestCode = 0x5305
	CodeReadTOCEntry  RequestCode = 0x5306
	CodeStop          RequestCode = 0x5307
	CodeStart         RequestCode = 0x5308
	CodeEject         RequestCode = 0x5309
	CodeVolumeControl RequestCode = 0x530a
	CodeSubChannel    RequestCode = 0x530b
	CodeReadMode2     RequestCode = 0x530c
	CodeReadMode1     RequestCode = 0x530d
	CodeReadAudio     RequestCode = 0x530e
	CodeEjectSW       RequestCode = 0x530f
	CodeMultiSession  RequestCode = 0x5310
	CodeGetMCN        RequestCode = 0x5311
	CodeReset         RequestCode = 0x5312
	CodeVolumeRead    RequestCode = 0x5313
	CodeReadRaw       RequestCode = 0x5314
	CodePlayBlock     RequestCode = 0x5317
	CodeCloseTray     RequestCode = 0x5319
	CodeSetOptions    RequestCode = 0x5320
	CodeClearOptions  RequestCode = 0x5321
	CodeSelectSpeed   RequestCode = 0x5322
	CodeSelectDisc    RequestCode = 0x5323
	CodeMediaChanged  RequestCode = 0x5325
	CodeDriveStatus   RequestCode = 0x5326
	CodeDiscStatus    RequestCode = 0x5327
	CodeChangerSlots  RequestCode = 0x5328
	CodeLockDoor      RequestCode = 0x5329
	CodeGetCapability RequestCode = 0x5331
	CodeReadStructure RequestCode = 0x5390
	CodeAuthenticate  RequestCode = 0x5392
	CodeNextWritable  RequestCode = 0x5394
	CodeLastWritten   RequestCode = 0x5395
)

var requestNames = map[RequestCode]string{
	CodePause:         "PAUSE",
	CodeResume:        "RESUME",
	CodePlayMSF:       "PLAYMSF",
	CodePlayTrackInd:  "PLAYTRKIND",
	CodeReadTOCHeader: "READTOCHDR",
	CodeReadTOCEntry:  "READTOCENTRY",
	CodeStop:          "STOP",
	CodeStart:         "START",
	CodeEject:         "EJECT",
	CodeVolumeControl: "VOLCTRL",
	CodeSubChannel:    "SUBCHNL",
	CodeReadMode2:     "READMODE2",
	CodeReadMode1:     "READMODE1",
	CodeReadAudio:     "READAUDIO",
	CodeEjectSW:       "EJECT_SW",
	CodeMultiSession:  "MULTISESSION",
	CodeGetMCN:        "GET_MCN",
	CodeReset:         "RESET",
	CodeVolumeRead:    "VOLREAD",
	CodeReadRaw:       "READRAW",
	CodePlayBlock:     "PLAYBLK",
	CodeCloseTray:     "CLOSETRAY",
	CodeSetOptions:    "SET_OPTIONS",
	CodeClearOptions:  "CLEAR_OPTIONS",
	CodeSelectSpeed:   "SELECT_SPEED",
	CodeSelectDisc:    "SELECT_DISC",
	CodeMediaChanged:  "MEDIA_CHANGED",
	CodeDriveStatus:   "DRIVE_STATUS",
	CodeDiscStatus:    "DISC_STATUS",
	CodeChangerSlots:  "CHANGER_NSLOTS",
	CodeLockDoor:      "LOCKDOOR",
	CodeGetCapability: "GET_CAPABILITY",
	CodeReadStructure: "DVD_READ_STRUCT",
	CodeAuthenticate:  "DVD_AUTH",
	CodeNextWritable:  "NEXT_WRITABLE",
	CodeLastWritten:   "LAST_WRITTEN",
}

func (c RequestCode) String() string {
	if name, ok := requestNames[c]; ok {
		return name
	}
	return fmt.Sprintf("request 0x%04x", uint32(c))
}

// Caller describes who issued a request.
type Caller struct {
	// Privileged callers may reset the drive, set the region and unlock a
	// door shared with other users.
	Privileged bool
}

// Request is a control request. Each variant carries its own arguments;
// needs reports the capabilities checked before it runs.
type Request interface {
	Code() RequestCode
	needs() Capability
}

type (
	Eject     struct{}
	CloseTray struct{}
	// EjectSW turns auto-close and auto-eject on or off together.
	EjectSW  struct{ On bool }
	LockDoor struct{ Lock bool }
	Reset    struct{}

	SetOptions   struct{ Options Options }
	ClearOptions struct{ Options Options }
	SelectSpeed  struct{ Speed int } // multiple of 1x, 0 for maximum
	SelectDisc   struct{ Slot int }

	GetDriveStatus    struct{ Slot int }
	GetDiscStatus     struct{}
	GetSlotCount      struct{}
	CheckMediaChanged struct{ Slot int }
	GetCapability     struct{}

	ReadMultiSession struct{ Format AddrFormat }
	GetMCN           struct{}
	ReadTOCHeader    struct{}
	ReadSubChannel   struct{ Format AddrFormat }

	PlayMSF   struct{ Start, End mmc.MSF }
	PlayBlock struct{ LBA, Length int }
	Pause     struct{}
	Resume    struct{}
	Stop      struct{}
	Start     struct{}

	ReadVolume struct{}
	SetVolume  struct{ Volume Volume }
	ReadAudio  struct{ LBA, Frames int }

	GetNextWritable struct{}
	GetLastWritten  struct{}
)

type ReadTOCEntry struct {
	Track  int // cdda.LeadoutTrack for the lead-out
	Format AddrFormat
}

type PlayTrackIndex struct {
	StartTrack, StartIndex int
	EndTrack, EndIndex     int
}

type ReadData struct {
	LBA   int
	Count int
	Class SectorClass
}

type ReadStructure struct {
	Type  StructureType
	Layer int
	AGID  byte // disc key only
}

// Authenticate runs one step of the key exchange or a region query.
type Authenticate struct {
	Step      AuthStep
	AGID      byte
	LBA       uint32 // title key
	Challenge [mmc.ChallengeSize]byte
	Key       [mmc.KeySize]byte
	Region    byte // set region mask
}

// AuthResult is the outcome of an Authenticate request. State is the
// grant state afterwards.
type AuthResult struct {
	AGID      byte
	State     AuthState
	Challenge [mmc.ChallengeSize]byte
	Key       [mmc.KeySize]byte
	Title     mmc.TitleKey
	ASF       bool
	Region    mmc.RPCState
}

func (Eject) Code() RequestCode             { return CodeEject }
func (CloseTray) Code() RequestCode         { return CodeCloseTray }
func (EjectSW) Code() RequestCode           { return CodeEjectSW }
func (LockDoor) Code() RequestCode          { return CodeLockDoor }
func (Reset) Code() RequestCode             { return CodeReset }
func (SetOptions) Code() RequestCode        { return CodeSetOptions }
func (ClearOptions) Code() RequestCode      { return CodeClearOptions }
func (SelectSpeed) Code() RequestCode       { return CodeSelectSpeed }
func (SelectDisc) Code() RequestCode        { return CodeSelectDisc }
func (GetDriveStatus) Code() RequestCode    { return CodeDriveStatus }
func (GetDiscStatus) Code() RequestCode     { return CodeDiscStatus }
func (GetSlotCount) Code() RequestCode      { return CodeChangerSlots }
func (CheckMediaChanged) Code() RequestCode { return CodeMediaChanged }
func (GetCapability) Code() RequestCode     { return CodeGetCapability }
func (ReadMultiSession) Code() RequestCode  { return CodeMultiSession }
func (GetMCN) Code() RequestCode            { return CodeGetMCN }
func (ReadTOCHeader) Code() RequestCode     { return CodeReadTOCHeader }
func (ReadTOCEntry) Code() RequestCode      { return CodeReadTOCEntry }
func (ReadSubChannel) Code() RequestCode    { return CodeSubChannel }
func (PlayMSF) Code() RequestCode           { return CodePlayMSF }
func (PlayTrackIndex) Code() RequestCode    { return CodePlayTrackInd }
func (PlayBlock) Code() RequestCode         { return CodePlayBlock }
func (Pause) Code() RequestCode             { return CodePause }
func (Resume) Code() RequestCode            { return CodeResume }
func (Stop) Code() RequestCode              { return CodeStop }
func (Start) Code() RequestCode             { return CodeStart }
func (ReadVolume) Code() RequestCode        { return CodeVolumeRead }
func (SetVolume) Code() RequestCode         { return CodeVolumeControl }
func (ReadAudio) Code() RequestCode         { return CodeReadAudio }
func (ReadStructure) Code() RequestCode     { return CodeReadStructure }
func (Authenticate) Code() RequestCode      { return CodeAuthenticate }
func (GetNextWritable) Code() RequestCode   { return CodeNextWritable }
func (GetLastWritten) Code() RequestCode    { return CodeLastWritten }

func (r ReadData) Code() RequestCode {
	switch r.Class {
	case SectorMode2:
		return CodeReadMode2
	case SectorRaw:
		return CodeReadRaw
	}
	return CodeReadMode1
}

func (Eject) needs() Capability             { return CapOpenTray }
func (CloseTray) needs() Capability         { return CapCloseTray }
func (EjectSW) needs() Capability           { return CapOpenTray }
func (LockDoor) needs() Capability          { return CapLock }
func (Reset) needs() Capability             { return 0 }
func (SetOptions) needs() Capability        { return 0 }
func (ClearOptions) needs() Capability      { return 0 }
func (SelectSpeed) needs() Capability       { return CapSelectSpeed }
func (SelectDisc) needs() Capability        { return CapSelectDisc }
func (GetDriveStatus) needs() Capability    { return CapDriveStatus }
func (GetDiscStatus) needs() Capability     { return 0 }
func (GetSlotCount) needs() Capability      { return 0 }
func (CheckMediaChanged) needs() Capability { return CapMediaChanged }
func (GetCapability) needs() Capability     { return 0 }
func (ReadMultiSession) needs() Capability  { return CapMultiSession }
func (GetMCN) needs() Capability            { return CapMCN }
func (ReadTOCHeader) needs() Capability     { return 0 }
func (ReadTOCEntry) needs() Capability      { return 0 }
func (ReadSubChannel) needs() Capability    { return CapPlayAudio }
func (PlayMSF) needs() Capability           { return CapPlayAudio }
func (PlayTrackIndex) needs() Capability    { return CapPlayAudio }
func (PlayBlock) needs() Capability         { return CapPlayAudio }
func (Pause) needs() Capability             { return CapPlayAudio }
func (Resume) needs() Capability            { return CapPlayAudio }
func (Stop) needs() Capability              { return CapPlayAudio }
func (Start) needs() Capability             { return CapPlayAudio }
func (ReadVolume) needs() Capability        { return CapPlayAudio }
func (SetVolume) needs() Capability         { return CapPlayAudio }
func (ReadData) needs() Capability          { return CapGenericPacket }
func (ReadAudio) needs() Capability         { return CapGenericPacket }
func (ReadStructure) needs() Capability     { return CapDVD }
func (Authenticate) needs() Capability      { return CapDVD }
func (GetNextWritable) needs() Capability   { return 0 }
func (GetLastWritten) needs() Capability    { return 0 }

// Dispatch runs req under the device lock. Capabilities the request needs
// are checked before any packet is built.
func (d *Device) Dispatch(c Caller, req Request) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registered {
		return nil, fmt.Errorf("%s: %w", req.Code(), ErrInvalidArgument)
	}
	if err := d.require(req.needs()); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Code(), err)
	}
	res, err := d.dispatch(c, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Code(), err)
	}
	return res, nil
}

// Do dispatches req and asserts the result type.
func Do[R any](d *Device, c Caller, req Request) (R, error) {
	var zero R
	res, err := d.Dispatch(c, req)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("%s returns %T: %w", req.Code(), res, ErrInvalidArgument)
	}
	return r, nil
}

func (d *Device) dispatch(c Caller, req Request) (any, error) {
	switch r := req.(type) {
	case Eject:
		return nil, d.eject()
	case CloseTray:
		return nil, d.closeTray()
	case EjectSW:
		return nil, d.ejectSW(r.On)
	case LockDoor:
		return nil, d.lockDoor(r.Lock, c)
	case Reset:
		return nil, d.reset(c)
	case SetOptions:
		return d.setOptions(r.Options)
	case ClearOptions:
		return d.clearOptions(r.Options), nil
	case SelectSpeed:
		return nil, d.selectSpeed(r.Speed)
	case SelectDisc:
		return d.selectDisc(r.Slot)
	case GetDriveStatus:
		return d.driveStatus(r.Slot)
	case GetDiscStatus:
		return d.discStatus()
	case GetSlotCount:
		return d.slotCount()
	case CheckMediaChanged:
		return d.mediaChangedSlot(r.Slot)
	case GetCapability:
		return d.EffectiveMask(), nil
	case ReadMultiSession:
		return d.multiSession(r.Format)
	case GetMCN:
		return d.mcn()
	case ReadTOCHeader:
		return d.tocHeader()
	case ReadTOCEntry:
		return d.tocEntry(r.Track, r.Format)
	case ReadSubChannel:
		return d.subChannel(r.Format)
	case PlayMSF:
		return nil, d.playMSF(r.Start, r.End)
	case PlayTrackIndex:
		return nil, d.playTrackIndex(r.StartTrack, r.StartIndex, r.EndTrack, r.EndIndex)
	case PlayBlock:
		return nil, d.playBlock(r.LBA, r.Length)
	case Pause:
		return nil, d.pauseResume(false)
	case Resume:
		return nil, d.pauseResume(true)
	case Stop:
		return nil, d.startStop(false)
	case Start:
		return nil, d.startStop(true)
	case ReadVolume:
		return d.volume()
	case SetVolume:
		return nil, d.setVolume(r.Volume)
	case ReadData:
		return d.readData(r.LBA, r.Count, r.Class)
	case ReadAudio:
		return d.readCDDA(r.LBA, r.Frames)
	case ReadStructure:
		return d.readStructure(r.Type, r.Layer, r.AGID)
	case Authenticate:
		return d.authenticate(r, c)
	case GetNextWritable:
		return d.nextWritable()
	case GetLastWritten:
		return d.lastWritten()
	}
	return nil, fmt.Errorf("%T: %w", req, ErrUnsupported)
}

func (d *Device) authenticate(r Authenticate, c Caller) (AuthResult, error) {
	res := AuthResult{AGID: r.AGID}
	var err error
	switch r.Step {
	case AuthAllocate:
		res.AGID, err = d.allocateAGID()
	case AuthDriveChallenge:
		res.Challenge, err = d.driveChallenge(r.AGID)
	case AuthSendChallenge:
		err = d.sendChallenge(r.AGID, r.Challenge)
	case AuthKey1:
		res.Key, err = d.key1(r.AGID)
	case AuthSendKey2:
		err = d.sendKey2(r.AGID, r.Key)
	case AuthTitleKey:
		res.Title, err = d.titleKey(r.AGID, r.LBA)
	case AuthDiscKey:
		return res, fmt.Errorf("%s: use ReadStructure: %w", r.Step, ErrInvalidArgument)
	case AuthASF:
		res.ASF, err = d.asf()
	case AuthRegionState:
		res.Region, err = d.regionState()
	case AuthSetRegion:
		err = d.setRegion(r.Region, c)
	case AuthInvalidate:
		err = d.invalidate(r.AGID)
	default:
		return res, fmt.Errorf("%s: %w", r.Step, ErrInvalidArgument)
	}
	if err != nil {
		return res, err
	}
	if int(res.AGID) < authSlots {
		res.State = d.auth[res.AGID].state
	}
	return res, nil
}

// FromCode builds the request for a numeric code with a scalar argument.
// Codes whose argument is a record fail with ErrInvalidArgument; unknown
// codes with ErrUnsupported.
func FromCode(code RequestCode, arg int) (Request, error) {
	switch code {
	case CodeEject:
		return Eject{}, nil
	case CodeCloseTray:
		return CloseTray{}, nil
	case CodeEjectSW:
		return EjectSW{On: arg != 0}, nil
	case CodeLockDoor:
		return LockDoor{Lock: arg != 0}, nil
	case CodeReset:
		return Reset{}, nil
	case CodeSetOptions:
		return SetOptions{Options: Options(arg)}, nil
	case CodeClearOptions:
		return ClearOptions{Options: Options(arg)}, nil
	case CodeSelectSpeed:
		return SelectSpeed{Speed: arg}, nil
	case CodeSelectDisc:
		return SelectDisc{Slot: arg}, nil
	case CodeDriveStatus:
		return GetDriveStatus{Slot: arg}, nil
	case CodeDiscStatus:
		return GetDiscStatus{}, nil
	case CodeChangerSlots:
		return GetSlotCount{}, nil
	case CodeMediaChanged:
		return CheckMediaChanged{Slot: arg}, nil
	case CodeGetCapability:
		return GetCapability{}, nil
	case CodeGetMCN:
		return GetMCN{}, nil
	case CodeReadTOCHeader:
		return ReadTOCHeader{}, nil
	case CodePause:
		return Pause{}, nil
	case CodeResume:
		return Resume{}, nil
	case CodeStop:
		return Stop{}, nil
	case CodeStart:
		return Start{}, nil
	case CodeNextWritable:
		return GetNextWritable{}, nil
	case CodeLastWritten:
		return GetLastWritten{}, nil
	}
	if _, ok := requestNames[code]; ok {
		return nil, fmt.Errorf("%s needs a structured argument: %w", code, ErrInvalidArgument)
	}
	return nil, fmt.Errorf("%s: %w", code, ErrUnsupported)
}
