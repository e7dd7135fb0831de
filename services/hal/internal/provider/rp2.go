//go:build tinygo && (rp2040 || rp2350)

package provider

import (
	"machine"

	"ch32hal/drivers/mcpcan"
	"ch32hal/errcode"
	"ch32hal/services/hal/internal/core"
	"ch32hal/services/hal/internal/provider/setups"
)

// NewResourceRegistry serves SPI-attached MCP2515 controllers. The chip
// runs at one fixed rate, so device bitrate choices must match the plan.
func NewResourceRegistry(plan setups.ResourcePlan) *Registry {
	return newRegistry(plan, func(p setups.CANPlan, opt core.CANOptions) (canHandle, error) {
		if opt.Bitrate != 0 && opt.Bitrate != p.Bitrate {
			return nil, errcode.InvalidTimings
		}
		var spi *machine.SPI
		switch p.SPI {
		case "spi0":
			spi = machine.SPI0
		case "spi1":
			spi = machine.SPI1
		default:
			return nil, errcode.UnknownBus
		}
		if err := spi.Configure(machine.SPIConfig{
			Frequency: 10_000_000,
			SCK:       machine.Pin(p.SCK),
			SDO:       machine.Pin(p.SDO),
			SDI:       machine.Pin(p.SDI),
			Mode:      0,
		}); err != nil {
			return nil, errcode.Wrap(errcode.Error, "spi.configure", err)
		}
		return mcpcan.Open(p.ID, spi, machine.Pin(p.CS), p.Bitrate, p.OscHz)
	})
}
