package can

import "ch32hal/errcode"

// FIFO selects one of the two hardware receive FIFOs.
type FIFO uint8

const (
	FIFO0 FIFO = iota
	FIFO1
)

// RxState is a snapshot of the bound receive FIFO.
type RxState struct {
	Pending uint8 // messages waiting, 0..3
	Full    bool
	Overrun bool // a message was lost since the last ClearOverrun
}

// TryRecv pops the oldest frame from the bound FIFO.
//
// It returns errcode.WouldBlock when the FIFO is empty. All head registers
// are latched before the release command, since releasing exposes the next
// message at the same addresses. Extended-identifier frames are released
// and reported as errcode.Unsupported. After Close it returns errcode.Closed.
func (c *Controller) TryRecv() (Frame, error) {
	if c.closed {
		return Frame{}, errcode.Closed
	}
	r := c.regs
	if r.Load(rfifoReg(c.fifo))&rfifoFMPMask == 0 {
		return Frame{}, errcode.WouldBlock
	}

	mir := r.Load(fifoHeadReg(c.fifo, offMIR))
	mdtr := r.Load(fifoHeadReg(c.fifo, offMDTR))
	data := uint64(r.Load(fifoHeadReg(c.fifo, offMDHR)))<<32 | uint64(r.Load(fifoHeadReg(c.fifo, offMDLR)))

	r.Store(rfifoReg(c.fifo), rfifoRFOM)

	if mir&mirIDE != 0 {
		return Frame{}, errcode.Unsupported
	}
	return frameFromRegisters(mir, mdtr, data), nil
}

// Receive is TryRecv under the Bus name.
func (c *Controller) Receive() (Frame, error) { return c.TryRecv() }

// RxState reads the bound FIFO's counters and flags.
func (c *Controller) RxState() RxState {
	v := c.regs.Load(rfifoReg(c.fifo))
	return RxState{
		Pending: uint8(v & rfifoFMPMask),
		Full:    v&rfifoFULL != 0,
		Overrun: v&rfifoFOVR != 0,
	}
}

// ClearOverrun acknowledges a reported FIFO overrun.
func (c *Controller) ClearOverrun() {
	if c.closed {
		return
	}
	c.regs.Store(rfifoReg(c.fifo), rfifoFOVR)
}
