package core

import "ch32hal/drivers/can"

type ResourceID string // e.g. "can1", "mcp0"

// CANPort is a claimed CAN controller. On-chip controllers implement every
// method in hardware; external adapters may emulate filters in software.
type CANPort interface {
	can.Bus
	Name() string
	Bitrate() uint32
	TransmitStatus() can.TxStatus
	AddFilter(f can.Filter)
	ErrorState() can.ErrorState
	RxState() can.RxState
}

// CANOptions are the per-claim settings a device may choose. Pins, remap
// and clock come from the platform plan.
type CANOptions struct {
	Bitrate uint32 // 0 selects the plan default
	Mode    can.Mode
	FIFO    can.FIFO
}

type ResourceRegistry interface {
	// ClaimCAN brings the bus up for devID. A bus held by another device
	// returns errcode.Conflict; unknown ids return errcode.UnknownBus.
	ClaimCAN(devID string, id ResourceID, opt CANOptions) (CANPort, error)
	// ReleaseCAN shuts the bus down if devID owns it.
	ReleaseCAN(devID string, id ResourceID)
}
