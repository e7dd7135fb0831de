package provider

import (
	"sync"

	"ch32hal/drivers/can"
	"ch32hal/errcode"
	"ch32hal/services/hal/internal/core"
	"ch32hal/services/hal/internal/provider/setups"
)

// SelectedPlan and InitialHALConfig come from the build-tagged setup.
var (
	SelectedPlan     = setups.SelectedPlan
	InitialHALConfig = setups.SelectedSetup
)

// NewResources constructs the registry from the selected plan.
func NewResources() core.Resources {
	return core.Resources{Reg: NewResourceRegistry(SelectedPlan)}
}

type canHandle interface {
	core.CANPort
	Close() error
}

// opener brings up the controller described by a plan entry.
type opener func(p setups.CANPlan, opt core.CANOptions) (canHandle, error)

// Registry hands out CAN controllers, one owner per bus id.
type Registry struct {
	mu     sync.Mutex
	plans  map[core.ResourceID]setups.CANPlan
	owners map[core.ResourceID]string
	ports  map[core.ResourceID]canHandle
	open   opener

	sims map[core.ResourceID]*can.SimInstance // host only
}

var _ core.ResourceRegistry = (*Registry)(nil)

func newRegistry(plan setups.ResourcePlan, open opener) *Registry {
	r := &Registry{
		plans:  make(map[core.ResourceID]setups.CANPlan),
		owners: make(map[core.ResourceID]string),
		ports:  make(map[core.ResourceID]canHandle),
		open:   open,
	}
	for _, p := range plan.CAN {
		r.plans[core.ResourceID(p.ID)] = p
	}
	return r
}

// ClaimCAN opens the bus on first claim. A repeat claim by the same device
// returns the open port.
func (r *Registry) ClaimCAN(devID string, id core.ResourceID, opt core.CANOptions) (core.CANPort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[id]
	if !ok {
		return nil, errcode.UnknownBus
	}
	if owner, held := r.owners[id]; held {
		if owner != devID {
			return nil, errcode.Conflict
		}
		return r.ports[id], nil
	}
	port, err := r.open(p, opt)
	if err != nil {
		return nil, err
	}
	r.owners[id] = devID
	r.ports[id] = port
	return port, nil
}

func (r *Registry) ReleaseCAN(devID string, id core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[id]; !ok || owner != devID {
		return
	}
	if err := r.ports[id].Close(); err != nil {
		println("[hal] close", string(id), "failed:", err.Error())
	}
	delete(r.owners, id)
	delete(r.ports, id)
}

// Owner reports which device holds id.
func (r *Registry) Owner(id core.ResourceID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[id]
	return o, ok
}

// Close releases every claimed bus.
func (r *Registry) Close() {
	r.mu.Lock()
	owners := make(map[core.ResourceID]string, len(r.owners))
	for id, o := range r.owners {
		owners[id] = o
	}
	r.mu.Unlock()
	for id, o := range owners {
		r.ReleaseCAN(o, id)
	}
}

// controllerConfig merges the plan defaults with a device's choices.
func controllerConfig(p setups.CANPlan, opt core.CANOptions) can.Config {
	cfg := can.Config{
		Bitrate:    p.Bitrate,
		Mode:       opt.Mode,
		FIFO:       opt.FIFO,
		Remap:      p.Remap,
		AutoBusOff: true,
		AutoWakeUp: true,
	}
	if opt.Bitrate != 0 {
		cfg.Bitrate = opt.Bitrate
	}
	return cfg
}
