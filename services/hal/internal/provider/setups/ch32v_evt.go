//go:build tinygo && ch32v

package setups

import (
	canbus "ch32hal/services/hal/devices/can_bus"
	"ch32hal/types"
)

// CH32V307 evaluation board: CAN1 on PB8/PB9 (remap 2) to an on-board
// transceiver, CAN2 on PB12/PB13.
var SelectedPlan = ResourcePlan{
	CAN: []CANPlan{
		{ID: "can1", RX: 24, TX: 25, Remap: 2, ClockHz: 72_000_000, Bitrate: 500_000},
		{ID: "can2", RX: 28, TX: 29, ClockHz: 72_000_000, Bitrate: 500_000, FilterBlock: "can1"},
	},
}

var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		{ID: "can1", Type: "can_bus", Params: canbus.Params{
			Bus: "can1", Domain: "io", Name: "can1",
			Bitrate: 500_000, Mode: "normal",
			Filters: []types.CANFilterSpec{{Bank: 0, Kind: "all"}},
		}},
	},
}
