// Package slcan speaks the Lawicel ASCII protocol used by serial CAN
// adapters, so a board with a CAN controller can stand in for one.
package slcan

import (
	"ch32hal/drivers/can"
	"ch32hal/errcode"
	"ch32hal/x/conv"
)

const (
	CR  = '\r'
	BEL = 0x07
)

// Bitrates lists the rates selected by S0..S8.
var Bitrates = [...]uint32{
	10_000, 20_000, 50_000, 100_000, 125_000,
	250_000, 500_000, 800_000, 1_000_000,
}

// BitrateCode returns the S command digit for bitrate.
func BitrateCode(bitrate uint32) (byte, bool) {
	for i, b := range Bitrates {
		if b == bitrate {
			return '0' + byte(i), true
		}
	}
	return 0, false
}

// AppendFrame appends f as a t/r line including the terminating CR.
func AppendFrame(dst []byte, f can.Frame) []byte {
	if f.Remote {
		dst = append(dst, 'r')
	} else {
		dst = append(dst, 't')
	}
	dst = conv.AppendHex(dst, uint32(f.ID), 3)
	dst = append(dst, '0'+f.DLC)
	if !f.Remote {
		dst = conv.AppendHexBytes(dst, f.Payload())
	}
	return append(dst, CR)
}

// ParseFrame decodes a t or r line without its CR. Extended identifier
// lines (T, R) report errcode.Unsupported.
func ParseFrame(line []byte) (can.Frame, error) {
	if len(line) == 0 {
		return can.Frame{}, errcode.InvalidPayload
	}
	switch line[0] {
	case 'T', 'R':
		return can.Frame{}, errcode.Unsupported
	case 't', 'r':
	default:
		return can.Frame{}, errcode.InvalidPayload
	}
	if len(line) < 5 {
		return can.Frame{}, errcode.InvalidPayload
	}
	raw, ok := conv.ParseHex(line[1:4])
	if !ok || raw > uint32(can.MaxStandardID) {
		return can.Frame{}, errcode.InvalidPayload
	}
	id := can.StandardID(raw)
	dlc := line[4] - '0'
	if dlc > can.MaxDLC {
		return can.Frame{}, errcode.InvalidPayload
	}

	if line[0] == 'r' {
		if len(line) != 5 {
			return can.Frame{}, errcode.InvalidPayload
		}
		f, _ := can.NewRemoteFrame(id, dlc)
		return f, nil
	}

	body := line[5:]
	if len(body) != 2*int(dlc) {
		return can.Frame{}, errcode.InvalidPayload
	}
	var data [can.MaxDLC]byte
	for i := 0; i < int(dlc); i++ {
		b, ok := conv.ParseHex(body[2*i : 2*i+2])
		if !ok {
			return can.Frame{}, errcode.InvalidPayload
		}
		data[i] = byte(b)
	}
	f, _ := can.NewFrame(id, data[:dlc])
	return f, nil
}

// Status flag bits reported by the F command.
const (
	FlagRxFull   = 1 << 0
	FlagTxFull   = 1 << 1
	FlagWarning  = 1 << 2
	FlagOverrun  = 1 << 3
	FlagPassive  = 1 << 5
	FlagArbLost  = 1 << 6
	FlagBusError = 1 << 7
)

// StatusFlags folds controller state into the F reply byte. txFull is set
// when the last transmit found every mailbox busy.
func StatusFlags(es can.ErrorState, rx can.RxState, tx can.TxStatus, txFull bool) byte {
	var f byte
	if rx.Full {
		f |= FlagRxFull
	}
	if txFull {
		f |= FlagTxFull
	}
	if es.Warning {
		f |= FlagWarning
	}
	if rx.Overrun {
		f |= FlagOverrun
	}
	if es.Passive {
		f |= FlagPassive
	}
	if tx == can.TxArbitrationLost {
		f |= FlagArbLost
	}
	if es.BusOff || es.Last != can.LastErrorNone {
		f |= FlagBusError
	}
	return f
}
