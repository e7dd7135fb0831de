package can

import "ch32hal/errcode"

// Mode is the operating mode programmed into BTIMR.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeLoopback
	ModeSilent
	ModeSilentLoopback
)

func (m Mode) String() string {
	switch m {
	case ModeLoopback:
		return "loopback"
	case ModeSilent:
		return "silent"
	case ModeSilentLoopback:
		return "silent_loopback"
	default:
		return "normal"
	}
}

// ParseMode accepts the names produced by String.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "", "normal":
		return ModeNormal, true
	case "loopback":
		return ModeLoopback, true
	case "silent":
		return ModeSilent, true
	case "silent_loopback":
		return ModeSilentLoopback, true
	}
	return ModeNormal, false
}

func (m Mode) btimr() uint32 {
	switch m {
	case ModeLoopback:
		return btimrLBKM
	case ModeSilent:
		return btimrSILM
	case ModeSilentLoopback:
		return btimrLBKM | btimrSILM
	}
	return 0
}

// TxPriority selects how pending mailboxes are ordered for the bus.
type TxPriority uint8

const (
	PriorityByID           TxPriority = iota // lowest identifier first (hardware default)
	PriorityByRequestOrder                   // chronological, TXFP set
)

// modeSpinLimit bounds the INAK handshake. The controller acknowledges within
// a few bit times once the bus is idle; exhausting the bound means the
// peripheral clock is off or the bus is stuck dominant.
const modeSpinLimit = 1 << 20

// enterInitMode requests initialization mode and waits for INAK.
func enterInitMode(r Registers) error {
	r.Store(regCTLR, (r.Load(regCTLR)|ctlrINRQ)&^ctlrSLEEP)
	for i := 0; i < modeSpinLimit; i++ {
		if hasBits(r, regSTATR, statrINAK) {
			return nil
		}
	}
	return errcode.Wrap(errcode.Timeout, "can.enter_init", nil)
}

// leaveInitMode returns to normal mode and waits for INAK to clear.
func leaveInitMode(r Registers) error {
	clearBits(r, regCTLR, ctlrINRQ)
	for i := 0; i < modeSpinLimit; i++ {
		if r.Load(regSTATR)&statrINAK == 0 {
			return nil
		}
	}
	return errcode.Wrap(errcode.Timeout, "can.leave_init", nil)
}

// inInitMode reports whether the controller acknowledges initialization mode.
func inInitMode(r Registers) bool { return hasBits(r, regSTATR, statrINAK) }

// setBitTimingAndMode writes BTIMR. Only valid in initialization mode.
func setBitTimingAndMode(r Registers, t BitTiming, m Mode) {
	r.Store(regBTIMR, t.btimr()|m.btimr())
}

// setOptions writes the CTLR behaviour bits. Only valid in initialization mode.
func setOptions(r Registers, cfg Config) {
	v := r.Load(regCTLR) &^ (ctlrTXFP | ctlrNART | ctlrAWUM | ctlrABOM | ctlrRFLM)
	if cfg.TxPriority == PriorityByRequestOrder {
		v |= ctlrTXFP
	}
	if cfg.NoAutoRetransmit {
		v |= ctlrNART
	}
	if cfg.AutoWakeUp {
		v |= ctlrAWUM
	}
	if cfg.AutoBusOff {
		v |= ctlrABOM
	}
	if cfg.LockFIFO {
		v |= ctlrRFLM
	}
	r.Store(regCTLR, v)
}
