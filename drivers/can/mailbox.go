package can

import (
	"ch32hal/errcode"
	"ch32hal/x/mathx"
)

// TxStatus is the outcome of the last request placed in a mailbox.
type TxStatus uint8

const (
	TxPending TxStatus = iota
	TxOK
	TxArbitrationLost
	TxError
	TxOtherError
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxOK:
		return "ok"
	case TxArbitrationLost:
		return "arbitration_lost"
	case TxError:
		return "tx_error"
	default:
		return "other_error"
	}
}

// noMailbox marks that nothing has been transmitted yet.
const noMailbox = -1

// findFreeMailbox returns the lowest-numbered empty mailbox.
func findFreeMailbox(r Registers) (int, bool) {
	st := r.Load(regTSTATR)
	for n := 0; n < NumMailboxes; n++ {
		if st&tmeBit(n) != 0 {
			return n, true
		}
	}
	return 0, false
}

// writeFrameMailbox loads f into mailbox n and then requests transmission.
// TXRQ goes in last so the controller never sees a half-written mailbox.
// A DLC above 8 is sent as 8.
func writeFrameMailbox(r Registers, n int, f *Frame) {
	lo, hi := f.dataWords()
	r.Store(mailboxReg(n, offMIR), f.mir())
	r.Store(mailboxReg(n, offMDTR), uint32(mathx.Min(f.DLC, MaxDLC)))
	r.Store(mailboxReg(n, offMDLR), lo)
	r.Store(mailboxReg(n, offMDHR), hi)
	setBits(r, mailboxReg(n, offMIR), mirTXRQ)
}

func mailboxStatus(r Registers, n int) TxStatus {
	if n < 0 || n >= NumMailboxes {
		return TxOtherError
	}
	st := r.Load(regTSTATR) >> tstatrShift(n)
	switch {
	case st&tstatrRQCP == 0:
		return TxPending
	case st&tstatrTXOK != 0:
		return TxOK
	case st&tstatrALST != 0:
		return TxArbitrationLost
	case st&tstatrTERR != 0:
		return TxError
	}
	return TxOtherError
}

// Transmit places f in a free mailbox and requests transmission.
//
// Pending frames are never preempted: with all mailboxes busy it returns
// errcode.WouldBlock. The displaced frame is therefore always nil; the
// return shape keeps the driver usable wherever a Bus is expected. After
// Close it returns errcode.Closed.
func (c *Controller) Transmit(f Frame) (*Frame, error) {
	if c.closed {
		return nil, errcode.Closed
	}
	n, ok := findFreeMailbox(c.regs)
	if !ok {
		return nil, errcode.WouldBlock
	}
	writeFrameMailbox(c.regs, n, &f)
	c.lastMailbox = n
	return nil, nil
}

// TransmitStatus reports the outcome of the most recent Transmit.
// Before the first Transmit it reports TxOtherError.
func (c *Controller) TransmitStatus() TxStatus {
	return mailboxStatus(c.regs, c.lastMailbox)
}

// TransmitStatusOf reports the status of a specific mailbox.
func (c *Controller) TransmitStatusOf(mailbox int) TxStatus {
	return mailboxStatus(c.regs, mailbox)
}

// LastMailbox returns the mailbox used by the most recent Transmit, or -1.
func (c *Controller) LastMailbox() int { return c.lastMailbox }
