package hal

import (
	"context"

	"ch32hal/bus"
	"ch32hal/services/hal/internal/core"
	"ch32hal/services/hal/internal/provider"

	// Device builders.
	_ "ch32hal/services/hal/devices/can_bus"
)

// Run serves the HAL on conn until ctx ends. Controllers come from the
// platform plan selected at build time; a non-empty built-in setup is
// published to config/hal as the first configuration.
func Run(ctx context.Context, conn *bus.Connection) {
	res := provider.NewResources()
	h := core.NewHAL(conn, res)

	if cfg := provider.InitialHALConfig; len(cfg.Devices) > 0 {
		conn.Publish(conn.NewMessage(core.TopicConfigHAL(), cfg, true))
	}
	h.Run(ctx)

	if r, ok := res.Reg.(interface{ Close() }); ok {
		r.Close()
	}
}
