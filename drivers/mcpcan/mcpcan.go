// Package mcpcan exposes an SPI-attached MCP2515 through the same
// non-blocking frame interface as the on-chip controller.
package mcpcan

import (
	"sync"

	"ch32hal/drivers/can"
	"ch32hal/errcode"
)

// Chip is the subset of the MCP2515 driver the adapter needs.
type Chip interface {
	Received() bool
	Rx() (id uint32, dlc uint8, data []byte, err error)
	Tx(id uint32, dlc uint8, data []byte) error
}

// Adapter implements can.Bus over a Chip. The MCP2515 is brought up in
// accept-all mode; acceptance filters installed with AddFilter are applied
// in software on Receive. With no filter installed every standard frame is
// accepted.
type Adapter struct {
	chip    Chip
	name    string
	bitrate uint32

	mu      sync.Mutex
	filters [can.FilterBanks]can.Filter
	active  uint32
	last    can.TxStatus
}

var _ can.Bus = (*Adapter)(nil)

func New(name string, chip Chip, bitrate uint32) *Adapter {
	return &Adapter{chip: chip, name: name, bitrate: bitrate, last: can.TxOtherError}
}

func (a *Adapter) Name() string    { return a.name }
func (a *Adapter) Bitrate() uint32 { return a.bitrate }

// Transmit hands f to the chip. Remote frames cannot be expressed through
// the driver and return errcode.Unsupported.
func (a *Adapter) Transmit(f can.Frame) (*can.Frame, error) {
	if f.Remote {
		return nil, errcode.Unsupported
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.chip.Tx(uint32(f.ID), f.DLC, f.Payload()); err != nil {
		a.last = can.TxError
		return nil, errcode.Wrap(errcode.Error, "mcp2515.tx", err)
	}
	a.last = can.TxOK
	return nil, nil
}

// TransmitStatus reports the outcome of the last Transmit. The driver's Tx
// returns only once the frame has been handed to the bus, so there is no
// pending state.
func (a *Adapter) TransmitStatus() can.TxStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Receive pops frames until one passes the filters. It returns
// errcode.WouldBlock when the chip holds nothing acceptable.
func (a *Adapter) Receive() (can.Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.chip.Received() {
		id, dlc, data, err := a.chip.Rx()
		if err != nil {
			return can.Frame{}, errcode.Wrap(errcode.Error, "mcp2515.rx", err)
		}
		if id > uint32(can.MaxStandardID) {
			return can.Frame{}, errcode.Unsupported
		}
		if dlc > can.MaxDLC {
			dlc = can.MaxDLC
		}
		f := can.Frame{ID: can.StandardID(id), DLC: dlc}
		copy(f.Data[:dlc], data)
		if a.accepts(f) {
			return f, nil
		}
	}
	return can.Frame{}, errcode.WouldBlock
}

func (a *Adapter) accepts(f can.Frame) bool {
	if a.active == 0 {
		return true
	}
	for i := range a.filters {
		if a.active&(1<<i) != 0 && a.filters[i].Accepts(f) {
			return true
		}
	}
	return false
}

// AddFilter installs f in its bank. The FIFO routing is ignored. A zero
// Filter panics, as it does on the on-chip controller.
func (a *Adapter) AddFilter(f can.Filter) {
	if !f.Valid() {
		panic("mcpcan: filter not built by a constructor")
	}
	a.mu.Lock()
	a.filters[f.Bank()] = f
	a.active |= 1 << f.Bank()
	a.mu.Unlock()
}

// ErrorState is not exposed by the driver; it always reads clean.
func (a *Adapter) ErrorState() can.ErrorState { return can.ErrorState{} }

func (a *Adapter) RxState() can.RxState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chip.Received() {
		return can.RxState{Pending: 1}
	}
	return can.RxState{}
}

func (a *Adapter) Close() error { return nil }
