package can

import "ch32hal/x/mathx"

// StandardID is an 11-bit CAN identifier. Lower values win arbitration.
type StandardID uint16

const MaxStandardID StandardID = 0x7FF

// NewStandardID validates raw as an 11-bit identifier.
func NewStandardID(raw uint16) (StandardID, bool) {
	if raw > uint16(MaxStandardID) {
		return 0, false
	}
	return StandardID(raw), true
}

// MaxDLC is the classic CAN payload limit.
const MaxDLC = 8

// Frame is a classic CAN frame with a standard identifier.
// Only the first DLC bytes of Data are meaningful.
type Frame struct {
	ID     StandardID
	DLC    uint8
	Data   [MaxDLC]byte
	Remote bool
}

// NewFrame builds a data frame. ok is false if id exceeds 11 bits or data
// is longer than 8 bytes.
func NewFrame(id StandardID, data []byte) (f Frame, ok bool) {
	if id > MaxStandardID || len(data) > MaxDLC {
		return Frame{}, false
	}
	f.ID = id
	f.DLC = uint8(len(data))
	copy(f.Data[:], data)
	return f, true
}

// NewRemoteFrame builds a remote (RTR) frame requesting dlc bytes.
func NewRemoteFrame(id StandardID, dlc uint8) (Frame, bool) {
	if id > MaxStandardID || dlc > MaxDLC {
		return Frame{}, false
	}
	return Frame{ID: id, DLC: dlc, Remote: true}, true
}

// Payload returns the valid data bytes.
func (f *Frame) Payload() []byte { return f.Data[:mathx.Min(f.DLC, MaxDLC)] }

// mir is the identifier word for a transmit mailbox (TXRQ not set).
func (f *Frame) mir() uint32 {
	v := uint32(f.ID&MaxStandardID) << mirSTIDShift
	if f.Remote {
		v |= mirRTR
	}
	return v
}

// dataWords packs the payload as the mailbox data registers see it:
// byte 0 in bits 0..7 of lo, byte 4 in bits 0..7 of hi.
func (f *Frame) dataWords() (lo, hi uint32) {
	var data uint64
	for i := MaxDLC - 1; i >= 0; i-- {
		data = data<<8 | uint64(f.Data[i])
	}
	return uint32(data), uint32(data >> 32)
}

// frameFromRegisters rebuilds a frame from a FIFO head. data is the high
// data word shifted above the low one.
func frameFromRegisters(mir, mdtr uint32, data uint64) Frame {
	f := Frame{
		ID:     StandardID(mir>>mirSTIDShift) & MaxStandardID,
		DLC:    mathx.Min(uint8(mdtr&mdtrDLCMask), MaxDLC),
		Remote: mir&mirRTR != 0,
	}
	if f.Remote {
		return f
	}
	for i := uint8(0); i < f.DLC; i++ {
		f.Data[i] = byte(data >> (8 * i))
	}
	return f
}
