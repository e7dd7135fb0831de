//go:build tinygo && ch32v

package can

import (
	"runtime/volatile"
	"unsafe"
)

// Peripheral addresses on CH32V20x/30x parts.
const (
	can1Base = 0x40006400
	can2Base = 0x40006800

	rccBase      = 0x40021000
	rccAPB1PRSTR = rccBase + 0x10
	rccAPB1PCENR = rccBase + 0x1C
	rccCAN1      = 1 << 25
	rccCAN2      = 1 << 26

	afioPCFR1      = 0x40010004
	afioCAN1Shift  = 13
	afioCAN1Mask   = 0x3
	afioCAN2RemapB = 1 << 22

	gpioABase   = 0x40010800
	gpioStride  = 0x400
	gpioCFGLR   = 0x00
	gpioCFGHR   = 0x04
	gpioOUTDR   = 0x0C
	gpioInPull  = 0x8 // CNF=10 MODE=00
	gpioAFPP50M = 0xB // CNF=10 MODE=11
)

func reg32(addr uintptr) *uint32 { return (*uint32)(unsafe.Pointer(addr)) }

// mmio is a Registers view of a memory-mapped block.
type mmio uintptr

func (m mmio) Load(off uint32) uint32     { return volatile.LoadUint32(reg32(uintptr(m) + uintptr(off))) }
func (m mmio) Store(off uint32, v uint32) { volatile.StoreUint32(reg32(uintptr(m)+uintptr(off)), v) }

func modify(addr uintptr, clear, set uint32) {
	p := reg32(addr)
	volatile.StoreUint32(p, volatile.LoadUint32(p)&^clear|set)
}

// chipInstance is CAN1 or CAN2. Both use the filter banks in CAN1's block.
type chipInstance struct {
	name    string
	base    mmio
	rccBit  uint32
	clockHz uint32
}

var (
	CAN1 = &chipInstance{name: "can1", base: can1Base, rccBit: rccCAN1, clockHz: 36_000_000}
	CAN2 = &chipInstance{name: "can2", base: can2Base, rccBit: rccCAN2, clockHz: 36_000_000}
)

func (c *chipInstance) Name() string          { return c.name }
func (c *chipInstance) Regs() Registers       { return c.base }
func (c *chipInstance) FilterRegs() Registers { return mmio(can1Base) }
func (c *chipInstance) ClockHz() uint32       { return c.clockHz }

// SetClock records the APB1 frequency after the system clock is changed.
func (c *chipInstance) SetClock(hz uint32) { c.clockHz = hz }

func (c *chipInstance) EnableAndReset() {
	modify(rccAPB1PCENR, 0, c.rccBit)
	modify(rccAPB1PRSTR, 0, c.rccBit)
	modify(rccAPB1PRSTR, c.rccBit, 0)
}

func (c *chipInstance) SetRemap(remap uint8) {
	if c.base == can1Base {
		modify(afioPCFR1, afioCAN1Mask<<afioCAN1Shift, uint32(remap&afioCAN1Mask)<<afioCAN1Shift)
		return
	}
	if remap != 0 {
		modify(afioPCFR1, 0, afioCAN2RemapB)
	} else {
		modify(afioPCFR1, afioCAN2RemapB, 0)
	}
}

// ChipPin is a GPIO numbered port*16+line (PA0 = 0, PB8 = 24).
type ChipPin uint8

func (p ChipPin) Number() int { return int(p) }

func (p ChipPin) ConfigureCAN(role PinRole) {
	port := uintptr(p) / 16
	line := uint32(p) % 16
	base := gpioABase + port*gpioStride
	cfg := base + gpioCFGLR
	if line >= 8 {
		cfg = base + gpioCFGHR
	}
	shift := (line % 8) * 4
	if role == PinRoleRX {
		modify(cfg, 0xF<<shift, gpioInPull<<shift)
		modify(base+gpioOUTDR, 0, 1<<line)
		return
	}
	modify(cfg, 0xF<<shift, gpioAFPP50M<<shift)
}
