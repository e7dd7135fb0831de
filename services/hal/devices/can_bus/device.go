package can_bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ch32hal/drivers/can"
	"ch32hal/errcode"
	"ch32hal/services/hal/internal/core"
	"ch32hal/types"
	"ch32hal/x/timex"
)

// maxDrain bounds the frames taken per poll so a flooded bus cannot starve
// the control path of the port lock.
const maxDrain = 16

type Device struct {
	id  string
	a   core.CapAddr
	reg core.ResourceRegistry
	pub core.EventEmitter

	busID   core.ResourceID
	mode    can.Mode
	fifo    uint8
	filters []can.Filter
	every   time.Duration

	// mu serialises the port between the receive worker and controls.
	mu   sync.Mutex
	port core.CANPort

	cancel context.CancelFunc
	done   chan struct{}

	rxFrames  atomic.Uint32
	txFrames  atomic.Uint32
	rxDropped atomic.Uint32
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	info := types.CANInfo{
		Bus:     string(d.busID),
		Bitrate: d.port.Bitrate(),
		Mode:    d.mode.String(),
		FIFO:    d.fifo,
	}
	if tp, ok := d.port.(interface{ Timing() can.BitTiming }); ok {
		t := tp.Timing()
		info.Prescaler, info.Seg1, info.Seg2, info.SJW = t.Prescaler, t.Seg1, t.Seg2, t.SJW
		info.SamplePermille = uint16(t.SamplePointPermille())
	}
	return []core.CapabilitySpec{{
		Domain: d.a.Domain,
		Kind:   types.KindCAN,
		Name:   d.a.Name,
		Info:   types.Info{SchemaVersion: 1, Driver: "can_bus", Detail: info},
	}}
}

// Init installs the configured filters, publishes the first error-state
// value and starts the receive worker.
func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	for _, f := range d.filters {
		d.port.AddFilter(f)
	}
	d.mu.Unlock()

	d.pub.Emit(core.Event{Addr: d.a, Payload: d.errorState(), TSms: timex.NowMs()})

	wctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.rxLoop(wctx)
	return nil
}

func (d *Device) Close() error {
	if d.cancel != nil {
		d.cancel()
		<-d.done
		d.cancel = nil
	}
	d.reg.ReleaseCAN(d.id, d.busID)
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "send":
		fr, code := core.As[types.CANFrame](payload)
		if code != "" {
			return core.EnqueueResult{OK: false, Error: code}, nil
		}
		f, ok := frameFromPayload(fr)
		if !ok {
			return core.EnqueueResult{OK: false, Error: errcode.InvalidPayload}, nil
		}
		d.mu.Lock()
		_, err := d.port.Transmit(f)
		d.mu.Unlock()
		switch {
		case err == nil:
			d.txFrames.Add(1)
			return core.EnqueueResult{OK: true}, nil
		case can.IsWouldBlock(err):
			return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		default:
			return core.EnqueueResult{OK: false, Error: errcode.Of(err)}, nil
		}

	case "status":
		d.mu.Lock()
		st := d.port.TransmitStatus()
		mb := -1
		if lm, ok := d.port.(interface{ LastMailbox() int }); ok {
			mb = lm.LastMailbox()
		}
		d.mu.Unlock()
		return core.EnqueueResult{OK: true, Value: types.CANTxStatus{Mailbox: mb, Status: st.String()}}, nil

	case "add_filter":
		spec, code := core.As[types.CANFilterSpec](payload)
		if code != "" {
			return core.EnqueueResult{OK: false, Error: code}, nil
		}
		f, code := filterFromSpec(spec)
		if code != "" {
			return core.EnqueueResult{OK: false, Error: code}, nil
		}
		d.mu.Lock()
		d.port.AddFilter(f)
		d.mu.Unlock()
		return core.EnqueueResult{OK: true}, nil

	case "read":
		d.pub.Emit(core.Event{Addr: d.a, Payload: d.errorState(), TSms: timex.NowMs()})
		return core.EnqueueResult{OK: true}, nil

	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

func (d *Device) rxLoop(ctx context.Context) {
	defer close(d.done)
	t := time.NewTicker(d.every)
	defer t.Stop()
	for {
		d.drain()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// drain forwards waiting frames until the controller reports WouldBlock.
func (d *Device) drain() {
	for i := 0; i < maxDrain; i++ {
		d.mu.Lock()
		f, err := d.port.Receive()
		d.mu.Unlock()
		switch {
		case err == nil:
			d.rxFrames.Add(1)
			ok := d.pub.Emit(core.Event{
				Addr:     d.a,
				Payload:  payloadFromFrame(f),
				TSms:     timex.NowMs(),
				EventTag: "rx",
			})
			if !ok {
				d.rxDropped.Add(1)
			}
		case can.IsWouldBlock(err):
			return
		case errors.Is(err, errcode.Unsupported):
			// Extended frames are consumed and discarded.
			d.rxDropped.Add(1)
		default:
			d.pub.Emit(core.Event{Addr: d.a, Err: string(errcode.Of(err)), TSms: timex.NowMs()})
			return
		}
	}
}

func (d *Device) errorState() types.CANErrorState {
	d.mu.Lock()
	es := d.port.ErrorState()
	rx := d.port.RxState()
	d.mu.Unlock()
	return types.CANErrorState{
		TEC:       es.TEC,
		REC:       es.REC,
		LastError: es.Last.String(),
		Warning:   es.Warning,
		Passive:   es.Passive,
		BusOff:    es.BusOff,
		RxPending: rx.Pending,
		RxOverrun: rx.Overrun,
		RxFrames:  d.rxFrames.Load(),
		TxFrames:  d.txFrames.Load(),
		RxDropped: d.rxDropped.Load(),
		TS:        timex.NowMs(),
	}
}

func frameFromPayload(p types.CANFrame) (can.Frame, bool) {
	id, ok := can.NewStandardID(p.ID)
	if !ok {
		return can.Frame{}, false
	}
	if p.Remote {
		return can.NewRemoteFrame(id, p.DLC)
	}
	return can.NewFrame(id, p.Data)
}

func payloadFromFrame(f can.Frame) types.CANFrame {
	out := types.CANFrame{ID: uint16(f.ID), Remote: f.Remote, DLC: f.DLC}
	if !f.Remote {
		out.Data = append([]byte(nil), f.Payload()...)
	}
	return out
}
