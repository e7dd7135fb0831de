//go:build tinygo && (rp2040 || rp2350)

package setups

import (
	canbus "ch32hal/services/hal/devices/can_bus"
	"ch32hal/types"
)

// Pico with an MCP2515 module (8 MHz crystal) on SPI0.
var SelectedPlan = ResourcePlan{
	CAN: []CANPlan{
		{ID: "mcp0", SPI: "spi0", SCK: 18, SDO: 19, SDI: 16, CS: 17, OscHz: 8_000_000, Bitrate: 500_000},
	},
}

var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		{ID: "mcp0", Type: "can_bus", Params: canbus.Params{
			Bus: "mcp0", Domain: "io", Name: "can0", Bitrate: 500_000,
		}},
	},
}
