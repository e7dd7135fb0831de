package can

import (
	"errors"

	"ch32hal/errcode"
)

// Bus is the non-blocking frame interface shared by this controller and
// external adapters such as an SPI-attached MCP2515.
type Bus interface {
	Transmit(f Frame) (*Frame, error)
	Receive() (Frame, error)
}

// IsWouldBlock reports whether err is the transient "try again" signal.
func IsWouldBlock(err error) bool { return errors.Is(err, errcode.WouldBlock) }

// Config selects how a controller is brought up.
type Config struct {
	Bitrate uint32 // bits per second; must divide the peripheral clock exactly
	Mode    Mode
	FIFO    FIFO // FIFO drained by TryRecv and the default for new filters
	Remap   uint8

	TxPriority       TxPriority
	NoAutoRetransmit bool
	AutoWakeUp       bool
	AutoBusOff       bool
	LockFIFO         bool // discard new messages instead of overwriting on overrun
}

// Controller owns one CAN peripheral and its two pins.
type Controller struct {
	inst       Instance
	regs       Registers
	filterRegs Registers
	rx, tx     Pin

	fifo        FIFO
	mode        Mode
	timing      BitTiming
	lastMailbox int
	closed      bool
}

var _ Bus = (*Controller)(nil)

// New claims inst and its pins, computes the bit timing and brings the
// controller into normal operation.
//
// Timing is resolved before any hardware is touched, so an unreachable
// bitrate returns errcode.InvalidTimings with nothing claimed and no
// register modified. A second New on a claimed peripheral or pin returns
// errcode.BusInUse or errcode.PinInUse.
func New(inst Instance, rx, tx Pin, cfg Config) (*Controller, error) {
	if inst == nil || rx == nil || tx == nil || cfg.FIFO > FIFO1 || cfg.Mode > ModeSilentLoopback {
		return nil, errcode.InvalidParams
	}
	t, ok := CalcTimings(inst.ClockHz(), cfg.Bitrate)
	if !ok {
		return nil, errcode.InvalidTimings
	}
	if err := claim(inst.Name(), rx.Number(), tx.Number()); err != nil {
		return nil, err
	}

	c := &Controller{
		inst:        inst,
		regs:        inst.Regs(),
		filterRegs:  inst.FilterRegs(),
		rx:          rx,
		tx:          tx,
		fifo:        cfg.FIFO,
		mode:        cfg.Mode,
		timing:      t,
		lastMailbox: noMailbox,
	}

	inst.EnableAndReset()
	rx.ConfigureCAN(PinRoleRX)
	tx.ConfigureCAN(PinRoleTX)
	inst.SetRemap(cfg.Remap)

	if err := enterInitMode(c.regs); err != nil {
		c.releaseClaims()
		return nil, err
	}
	setOptions(c.regs, cfg)
	setBitTimingAndMode(c.regs, t, cfg.Mode)
	if err := leaveInitMode(c.regs); err != nil {
		c.releaseClaims()
		return nil, err
	}
	return c, nil
}

func (c *Controller) releaseClaims() {
	release(c.inst.Name(), c.rx.Number(), c.tx.Number())
}

// Close parks the controller in initialization mode and releases the
// peripheral and pins. It is safe to call more than once.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := enterInitMode(c.regs)
	c.releaseClaims()
	return err
}

func (c *Controller) Name() string      { return c.inst.Name() }
func (c *Controller) Timing() BitTiming { return c.timing }
func (c *Controller) Mode() Mode        { return c.mode }
func (c *Controller) FIFO() FIFO        { return c.fifo }

// Bitrate is the rate actually achieved by the programmed timing.
func (c *Controller) Bitrate() uint32 { return c.timing.Bitrate(c.inst.ClockHz()) }

// LastError is the last error code latched by the protocol engine.
type LastError uint8

const (
	LastErrorNone LastError = iota
	LastErrorStuff
	LastErrorForm
	LastErrorAck
	LastErrorBitRecessive
	LastErrorBitDominant
	LastErrorCRC
	LastErrorSoftware
)

func (e LastError) String() string {
	switch e {
	case LastErrorNone:
		return "none"
	case LastErrorStuff:
		return "stuff"
	case LastErrorForm:
		return "form"
	case LastErrorAck:
		return "ack"
	case LastErrorBitRecessive:
		return "bit_recessive"
	case LastErrorBitDominant:
		return "bit_dominant"
	case LastErrorCRC:
		return "crc"
	}
	return "software"
}

// ErrorState is a decoded ERRSR snapshot.
type ErrorState struct {
	TEC     uint8
	REC     uint8
	Last    LastError
	Warning bool
	Passive bool
	BusOff  bool
}

func (c *Controller) ErrorState() ErrorState {
	v := c.regs.Load(regERRSR)
	return ErrorState{
		TEC:     uint8(v >> errsrTECShift),
		REC:     uint8(v >> errsrRECShift),
		Last:    LastError((v >> errsrLECShift) & errsrLECMask),
		Warning: v&errsrEWGF != 0,
		Passive: v&errsrEPVF != 0,
		BusOff:  v&errsrBOFF != 0,
	}
}
