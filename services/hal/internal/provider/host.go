//go:build !tinygo

package provider

import (
	"ch32hal/drivers/can"
	"ch32hal/services/hal/internal/core"
	"ch32hal/services/hal/internal/provider/setups"
)

// NewResourceRegistry backs every planned controller with a simulated
// peripheral so the HAL runs unchanged on the host.
func NewResourceRegistry(plan setups.ResourcePlan) *Registry {
	sims := make(map[core.ResourceID]*can.SimInstance)
	for _, p := range plan.CAN {
		clk := p.ClockHz
		if clk == 0 {
			clk = 36_000_000
		}
		sims[core.ResourceID(p.ID)] = can.NewSimInstance(p.ID, clk)
	}
	for _, p := range plan.CAN {
		if owner := sims[core.ResourceID(p.FilterBlock)]; owner != nil {
			sims[core.ResourceID(p.ID)].ShareFilters(owner)
		}
	}

	r := newRegistry(plan, func(p setups.CANPlan, opt core.CANOptions) (canHandle, error) {
		return can.New(sims[core.ResourceID(p.ID)], can.NewSimPin(p.RX), can.NewSimPin(p.TX), controllerConfig(p, opt))
	})
	r.sims = sims
	return r
}

// Sim returns the simulated peripheral behind id.
func (r *Registry) Sim(id core.ResourceID) *can.SimInstance { return r.sims[id] }
