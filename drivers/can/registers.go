// Package can drives the bxCAN-style controller found on CH32V RISC-V parts:
// bit timing, init/normal mode switching, acceptance filter banks, the three
// transmit mailboxes and the two receive FIFOs. Every operation is
// non-blocking; a busy resource is reported as errcode.WouldBlock.
package can

// Register offsets from the peripheral base.
const (
	regCTLR   = 0x000 // master control
	regSTATR  = 0x004 // master status
	regTSTATR = 0x008 // transmit status
	regRFIFO0 = 0x00C // receive FIFO 0
	regRFIFO1 = 0x010 // receive FIFO 1
	regINTENR = 0x014 // interrupt enable
	regERRSR  = 0x018 // error status
	regBTIMR  = 0x01C // bit timing

	regTXMIR0 = 0x180 // mailbox 0 identifier; mailboxes are 0x10 apart
	regRXMIR0 = 0x1B0 // FIFO 0 head identifier; FIFOs are 0x10 apart

	// Offsets within a mailbox / FIFO head block.
	offMIR  = 0x0 // identifier
	offMDTR = 0x4 // length (and filter match index on receive)
	offMDLR = 0x8 // data bytes 0..3
	offMDHR = 0xC // data bytes 4..7

	regFCTLR   = 0x200 // filter master control
	regFMCFGR  = 0x204 // filter mode (mask/list) per bank
	regFSCFGR  = 0x20C // filter scale (16/32-bit) per bank
	regFAFIFOR = 0x214 // filter FIFO assignment per bank
	regFWR     = 0x21C // filter activation per bank
	regFR0     = 0x240 // bank 0 register 1; each bank has two 32-bit words
)

// CTLR bits.
const (
	ctlrINRQ  = 1 << 0
	ctlrSLEEP = 1 << 1
	ctlrTXFP  = 1 << 2
	ctlrRFLM  = 1 << 3
	ctlrNART  = 1 << 4
	ctlrAWUM  = 1 << 5
	ctlrABOM  = 1 << 6
	ctlrRESET = 1 << 15
)

// STATR bits.
const (
	statrINAK = 1 << 0
	statrSLAK = 1 << 1
)

// TSTATR: per-mailbox status bytes at 0, 8, 16 plus TME at 26..28.
const (
	tstatrRQCP = 1 << 0
	tstatrTXOK = 1 << 1
	tstatrALST = 1 << 2
	tstatrTERR = 1 << 3
	tstatrABRQ = 1 << 7

	tstatrTME0 = 1 << 26
)

func tstatrShift(mailbox int) uint32 { return uint32(8 * mailbox) }
func tmeBit(mailbox int) uint32      { return tstatrTME0 << uint32(mailbox) }

// RFIFOx bits.
const (
	rfifoFMPMask = 0x3
	rfifoFULL    = 1 << 3
	rfifoFOVR    = 1 << 4
	rfifoRFOM    = 1 << 5
)

// ERRSR fields.
const (
	errsrEWGF     = 1 << 0
	errsrEPVF     = 1 << 1
	errsrBOFF     = 1 << 2
	errsrLECShift = 4
	errsrLECMask  = 0x7
	errsrTECShift = 16
	errsrRECShift = 24
)

// BTIMR fields.
const (
	btimrBRPMask  = 0x3FF
	btimrTS1Shift = 16
	btimrTS1Mask  = 0xF
	btimrTS2Shift = 20
	btimrTS2Mask  = 0x7
	btimrSJWShift = 24
	btimrSJWMask  = 0x3
	btimrLBKM     = 1 << 30
	btimrSILM     = 1 << 31
)

// Mailbox identifier word (TXMIR / RXMIR).
const (
	mirTXRQ      = 1 << 0
	mirRTR       = 1 << 1
	mirIDE       = 1 << 2
	mirSTIDShift = 21
)

// MDTR fields.
const (
	mdtrDLCMask  = 0xF
	mdtrFMIShift = 8
	mdtrFMIMask  = 0xFF
)

// FCTLR bits.
const fctlrFINIT = 1 << 0

// Hardware resource counts.
const (
	NumMailboxes = 3
	FIFODepth    = 3
	FilterBanks  = 28
)

func mailboxReg(mailbox int, off uint32) uint32 { return regTXMIR0 + uint32(mailbox)*0x10 + off }
func fifoHeadReg(f FIFO, off uint32) uint32     { return regRXMIR0 + uint32(f)*0x10 + off }
func rfifoReg(f FIFO) uint32                    { return regRFIFO0 + uint32(f)*4 }
func filterReg(bank uint8, word int) uint32     { return regFR0 + uint32(bank)*8 + uint32(word)*4 }
