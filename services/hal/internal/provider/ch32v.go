//go:build tinygo && ch32v

package provider

import (
	"ch32hal/drivers/can"
	"ch32hal/errcode"
	"ch32hal/services/hal/internal/core"
	"ch32hal/services/hal/internal/provider/setups"
)

func NewResourceRegistry(plan setups.ResourcePlan) *Registry {
	return newRegistry(plan, func(p setups.CANPlan, opt core.CANOptions) (canHandle, error) {
		var inst = can.CAN1
		switch p.ID {
		case "can1":
		case "can2":
			inst = can.CAN2
		default:
			return nil, errcode.UnknownBus
		}
		if p.ClockHz != 0 {
			inst.SetClock(p.ClockHz)
		}
		c, err := can.New(inst, can.ChipPin(p.RX), can.ChipPin(p.TX), controllerConfig(p, opt))
		if err != nil {
			return nil, err
		}
		t := c.Timing()
		println("[can]", p.ID, "up: presc", t.Prescaler, "seg1", t.Seg1, "seg2", t.Seg2)
		return c, nil
	})
}
