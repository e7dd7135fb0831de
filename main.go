package main

import (
	"context"
	"time"

	"ch32hal/bus"
	"ch32hal/services/hal"
	canbus "ch32hal/services/hal/devices/can_bus"
	"ch32hal/services/heartbeat"
	"ch32hal/types"
)

// Loopback demo: CAN1 hears its own heartbeat.
func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	ctx := context.Background()
	b := bus.NewBus(8)
	ui := b.NewConnection("ui")
	rx := ui.Subscribe(bus.T("hal", "cap", "+", "can", "+", "event", "rx"))
	state := ui.Subscribe(bus.T("hal", "state"))

	go hal.Run(ctx, b.NewConnection("hal"))

	ui.Publish(ui.NewMessage(bus.T("config", "hal"), types.HALConfig{
		Devices: []types.HALDevice{{
			ID:   "can1",
			Type: "can_bus",
			Params: canbus.Params{
				Bus:     "can1",
				Mode:    "loopback",
				Filters: []types.CANFilterSpec{{Bank: 0, Kind: "all"}},
			},
		}},
	}, true))

	cfg := heartbeat.DefaultConfig()
	cfg.IntervalMs = 500
	_ = heartbeat.New(cfg).Start(ctx, b.NewConnection("heartbeat"))

	for {
		select {
		case m := <-state.Channel():
			if st, ok := m.Payload.(types.HALState); ok {
				println("hal", st.Level)
			}
		case m := <-rx.Channel():
			if f, ok := m.Payload.(types.CANFrame); ok {
				print("rx id=", int(f.ID), " dlc=", int(f.DLC))
				for _, d := range f.Data {
					print(" ", int(d))
				}
				println()
			}
		}
	}
}
