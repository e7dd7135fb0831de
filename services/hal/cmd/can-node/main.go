// Command can-node runs the HAL with the board's built-in CAN setup, beats
// a heartbeat on the first bus and prints what the bus carries.
//
//	tinygo flash -target <board> ./services/hal/cmd/can-node
package main

import (
	"context"
	"runtime"
	"time"

	"ch32hal/bus"
	"ch32hal/services/hal"
	"ch32hal/services/hal/internal/provider"
	"ch32hal/services/heartbeat"
	"ch32hal/types"
)

func printTopicWith(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			print("/")
		}
		switch v := t.At(i).(type) {
		case string:
			print(v)
		case int:
			print(v)
		default:
			print("?")
		}
	}
	println()
}

func printFrame(f types.CANFrame) {
	print("[can] rx id=", int(f.ID), " dlc=", int(f.DLC))
	if f.Remote {
		print(" remote")
	}
	for _, d := range f.Data {
		print(" ", int(d))
	}
	println()
}

// heartbeatCap picks the first configured CAN capability.
func heartbeatCap() (types.CapabilityAddress, bool) {
	for _, d := range provider.InitialHALConfig.Devices {
		if d.Type != "can_bus" {
			continue
		}
		a := types.CapabilityAddress{Domain: "io", Kind: types.KindCAN, Name: d.ID}
		if p, ok := d.Params.(interface{ CapName() (string, string) }); ok {
			a.Domain, a.Name = p.CapName()
		}
		return a, true
	}
	return types.CapabilityAddress{}, false
}

func main() {
	time.Sleep(3 * time.Second)
	ctx := context.Background()

	println("[main] bootstrapping bus …")
	b := bus.NewBus(8)
	uiConn := b.NewConnection("ui")

	status := uiConn.Subscribe(bus.T("hal", "cap", "+", "can", "+", "status"))
	rx := uiConn.Subscribe(bus.T("hal", "cap", "+", "can", "+", "event", "rx"))
	values := uiConn.Subscribe(bus.T("hal", "cap", "+", "can", "+", "value"))

	println("[main] starting hal.Run …")
	go hal.Run(ctx, b.NewConnection("hal"))

	if a, ok := heartbeatCap(); ok {
		cfg := heartbeat.DefaultConfig()
		cfg.Cap = a
		_ = heartbeat.New(cfg).Start(ctx, b.NewConnection("heartbeat"))
	} else {
		println("[main] no CAN device in setup; heartbeat off")
	}

	mem := time.NewTicker(10 * time.Second)
	defer mem.Stop()
	for {
		select {
		case m := <-rx.Channel():
			if f, ok := m.Payload.(types.CANFrame); ok {
				printFrame(f)
			}
		case m := <-status.Channel():
			if st, ok := m.Payload.(types.CapabilityStatus); ok {
				printTopicWith("[main] "+string(st.Link)+" "+st.Error, m.Topic)
			}
		case m := <-values.Channel():
			if es, ok := m.Payload.(types.CANErrorState); ok {
				println("[can] tec", es.TEC, "rec", es.REC, "last", es.LastError, "bus_off", es.BusOff)
			}
		case <-mem.C:
			printMem()
		}
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
