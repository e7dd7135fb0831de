//go:build !tinygo

package setups

import "ch32hal/types"

// Host runs use simulated controllers laid out like a CH32V307 board.
var SelectedPlan = ResourcePlan{
	CAN: []CANPlan{
		{ID: "can1", RX: 24, TX: 25, Remap: 2, ClockHz: 36_000_000, Bitrate: 500_000},
		{ID: "can2", RX: 28, TX: 29, ClockHz: 36_000_000, Bitrate: 500_000, FilterBlock: "can1"},
	},
}

var SelectedSetup = types.HALConfig{}
