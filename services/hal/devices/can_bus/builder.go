package can_bus

import (
	"context"
	"time"

	"ch32hal/drivers/can"
	"ch32hal/errcode"
	"ch32hal/services/hal/internal/core"
	"ch32hal/types"
)

func init() { core.RegisterBuilder("can_bus", builder{}) }

type Params struct {
	Bus       string // resource id from the platform plan, e.g. "can1"
	Domain    string // default "io"
	Name      string // default Bus
	Bitrate   uint32 // 0 keeps the plan default
	Mode      string // "normal","loopback","silent","silent_loopback"
	FIFO      uint8  // receive FIFO, 0 or 1
	Filters   []types.CANFilterSpec
	PollEvery time.Duration // receive poll period, default 2 ms
}

const defaultPollEvery = 2 * time.Millisecond

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, ok := in.Params.(Params)
	if !ok || p.Bus == "" || p.FIFO > 1 {
		return nil, errcode.InvalidParams
	}
	mode, ok := can.ParseMode(p.Mode)
	if !ok {
		return nil, errcode.InvalidParams
	}
	filters := make([]can.Filter, 0, len(p.Filters))
	for _, fs := range p.Filters {
		f, code := filterFromSpec(fs)
		if code != "" {
			return nil, code
		}
		filters = append(filters, f)
	}
	p.Domain, p.Name = p.CapName()
	if p.PollEvery <= 0 {
		p.PollEvery = defaultPollEvery
	}

	port, err := in.Res.Reg.ClaimCAN(in.ID, core.ResourceID(p.Bus), core.CANOptions{
		Bitrate: p.Bitrate,
		Mode:    mode,
		FIFO:    can.FIFO(p.FIFO),
	})
	if err != nil {
		return nil, err
	}

	return &Device{
		id:      in.ID,
		a:       core.CapAddr{Domain: p.Domain, Kind: types.KindCAN, Name: p.Name},
		reg:     in.Res.Reg,
		pub:     in.Res.Pub,
		busID:   core.ResourceID(p.Bus),
		port:    port,
		mode:    mode,
		fifo:    p.FIFO,
		filters: filters,
		every:   p.PollEvery,
	}, nil
}

// filterFromSpec validates a bus-facing filter description.
func filterFromSpec(s types.CANFilterSpec) (can.Filter, errcode.Code) {
	if s.Bank >= can.FilterBanks {
		return can.Filter{}, errcode.InvalidParams
	}
	ids := make([]can.StandardID, len(s.IDs))
	for i, v := range s.IDs {
		id, ok := can.NewStandardID(v)
		if !ok {
			return can.Filter{}, errcode.InvalidParams
		}
		ids[i] = id
	}
	masks := make([]can.StandardID, len(s.Masks))
	for i, v := range s.Masks {
		masks[i] = can.StandardID(v) & can.MaxStandardID
	}

	var f can.Filter
	switch {
	case s.Kind == "all" && len(ids) == 0:
		f = can.AcceptAll(s.Bank)
	case s.Kind == "mask32" && len(ids) == 1 && len(masks) == 1:
		f = can.Mask32(s.Bank, ids[0], masks[0])
	case s.Kind == "list32" && len(ids) == 2:
		f = can.List32(s.Bank, ids[0], ids[1])
	case s.Kind == "mask16" && len(ids) == 2 && len(masks) == 2:
		f = can.Mask16(s.Bank, ids[0], masks[0], ids[1], masks[1])
	case s.Kind == "list16" && len(ids) == 4:
		f = can.List16(s.Bank, ids[0], ids[1], ids[2], ids[3])
	default:
		return can.Filter{}, errcode.InvalidParams
	}

	switch s.FIFO {
	case "":
	case "fifo0":
		f = f.ToFIFO(can.FIFO0)
	case "fifo1":
		f = f.ToFIFO(can.FIFO1)
	default:
		return can.Filter{}, errcode.InvalidParams
	}
	return f, ""
}

// CapName returns the domain and name the capability is published under.
func (p Params) CapName() (domain, name string) {
	domain, name = p.Domain, p.Name
	if domain == "" {
		domain = "io"
	}
	if name == "" {
		name = p.Bus
	}
	return domain, name
}
