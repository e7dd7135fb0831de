package can

// Registers is the word-addressed register block of one controller.
// Offsets are relative to the peripheral base.
type Registers interface {
	Load(off uint32) uint32
	Store(off uint32, v uint32)
}

func setBits(r Registers, off, bits uint32)   { r.Store(off, r.Load(off)|bits) }
func clearBits(r Registers, off, bits uint32) { r.Store(off, r.Load(off)&^bits) }
func hasBits(r Registers, off, bits uint32) bool {
	return r.Load(off)&bits == bits
}

// modifyBit sets or clears bit n of the register at off.
func modifyBit(r Registers, off uint32, n uint8, on bool) {
	if on {
		setBits(r, off, 1<<n)
	} else {
		clearBits(r, off, 1<<n)
	}
}

// Instance is one physical CAN peripheral. There is one adapter per
// peripheral (CAN1, CAN2 on chip; SimInstance on the host).
type Instance interface {
	Name() string
	Regs() Registers
	// FilterRegs is the block holding the shared filter banks. On parts
	// with two controllers both use the banks in CAN1's block.
	FilterRegs() Registers
	// ClockHz is the peripheral (APB1) clock feeding the controller.
	ClockHz() uint32
	// EnableAndReset gates the peripheral clock on and pulses its reset.
	EnableAndReset()
	// SetRemap selects the alternate pin mapping for this peripheral.
	SetRemap(remap uint8)
}

// PinRole selects the electrical configuration for a CAN pin.
type PinRole uint8

const (
	PinRoleRX PinRole = iota // input with pull-up
	PinRoleTX                // alternate-function push-pull, 50 MHz
)

func (r PinRole) String() string {
	if r == PinRoleTX {
		return "tx"
	}
	return "rx"
}

// Pin is a GPIO that can be handed to the controller.
type Pin interface {
	Number() int
	ConfigureCAN(role PinRole)
}
