package core

import (
	"context"
	"sync/atomic"

	"ch32hal/bus"
	"ch32hal/errcode"
	"ch32hal/types"
	"ch32hal/x/timex"
)

const eventQueueLen = 32

// HAL owns the configured devices. Configuration, controls and device
// telemetry are all handled on the goroutine running Run.
type HAL struct {
	conn *bus.Connection
	res  Resources

	dev      map[string]Device  // devID -> device
	capIndex map[CapAddr]string // capability -> devID
	order    []string           // build order, for Close

	evCh  chan Event
	drops atomic.Uint32
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:     conn,
		res:      res,
		dev:      map[string]Device{},
		capIndex: map[CapAddr]string{},
		evCh:     make(chan Event, eventQueueLen),
	}
	h.res.Pub = h
	return h
}

// Run serves until ctx ends, then closes every device.
func (h *HAL) Run(ctx context.Context) {
	cfgSub := h.conn.Subscribe(TopicConfigHAL())
	ctrlSub := h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(cfgSub)
	defer h.conn.Unsubscribe(ctrlSub)

	h.pubHALState("idle", "")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-cfgSub.Channel():
			if v, ok := msg.Payload.(types.HALConfig); ok {
				h.applyConfig(ctx, v)
				if !ready {
					ready = true
					h.pubHALState("ready", "")
				}
			}
		case m := <-ctrlSub.Channel():
			if !ready {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m)
		case ev := <-h.evCh:
			h.handleEvent(ev)
		}
	}
}

// applyConfig is additive: devices already running are left alone.
func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for _, dc := range cfg.Devices {
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			println("[hal] no builder for type:", dc.Type, "id:", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{ID: dc.ID, Type: dc.Type, Params: dc.Params, Res: h.res})
		if err != nil {
			println("[hal] build failed for:", dc.ID, "err:", err.Error())
			continue
		}

		// Register and announce before Init so early events have a home.
		caps := dev.Capabilities()
		for _, cs := range caps {
			a := CapAddr{Domain: cs.Domain, Kind: cs.Kind, Name: cs.Name}
			if a.Domain == "" {
				a.Domain = "io"
			}
			if a.Name == "" {
				a.Name = dev.ID()
			}
			h.capIndex[a] = dev.ID()
			h.conn.Publish(h.conn.NewMessage(CapInfo(a), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(CapStatus(a),
				types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowMs()}, true))
		}
		h.dev[dev.ID()] = dev
		h.order = append(h.order, dev.ID())

		if err := dev.Init(ctx); err != nil {
			println("[hal] init failed for:", dc.ID, "err:", err.Error())
			h.removeDevice(dev.ID(), errcode.Of(err))
		}
	}
}

func (h *HAL) removeDevice(id string, code errcode.Code) {
	for a, owner := range h.capIndex {
		if owner == id {
			delete(h.capIndex, a)
			h.conn.Publish(h.conn.NewMessage(CapStatus(a),
				types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowMs(), Error: string(code)}, true))
		}
	}
	if d := h.dev[id]; d != nil {
		_ = d.Close()
	}
	delete(h.dev, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *HAL) closeAll() {
	for i := len(h.order) - 1; i >= 0; i-- {
		if d := h.dev[h.order[i]]; d != nil {
			if err := d.Close(); err != nil {
				println("[hal] close failed for:", h.order[i], "err:", err.Error())
			}
		}
	}
	h.dev = map[string]Device{}
	h.capIndex = map[CapAddr]string{}
	h.order = nil
}

func (h *HAL) handleControl(msg *bus.Message) {
	a, verb, ok := parseCtrl(msg.Topic)
	if !ok {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	dev := h.dev[h.capIndex[a]]
	if dev == nil {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}

	res, err := dev.Control(a, verb, msg.Payload)
	switch {
	case err != nil:
		h.replyFromError(msg, err)
	case !res.OK:
		code := res.Error
		if code == "" {
			code = errcode.Busy
		}
		h.replyErr(msg, code)
	case res.Value != nil:
		h.replyValue(msg, res.Value)
	default:
		h.replyOK(msg)
	}
}

func (h *HAL) handleEvent(ev Event) {
	a := ev.Addr
	ts := ev.TSms
	if ts == 0 {
		ts = timex.NowMs()
	}

	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(CapStatus(a),
			types.CapabilityStatus{Link: types.LinkDegraded, TS: ts, Error: ev.Err}, true))
		return
	}
	if ev.IsEvent || ev.EventTag != "" {
		h.conn.Publish(h.conn.NewMessage(CapEvent(a, ev.EventTag), ev.Payload, false))
	} else {
		h.conn.Publish(h.conn.NewMessage(CapValue(a), ev.Payload, true))
	}
	h.conn.Publish(h.conn.NewMessage(CapStatus(a),
		types.CapabilityStatus{Link: types.LinkUp, TS: ts}, true))
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(TopicHALState(),
		types.HALState{Level: level, Status: status, TS: timex.NowMs()}, true))
}

// Dropped counts events lost to a full queue.
func (h *HAL) Dropped() uint32 { return h.drops.Load() }

// Emit implements EventEmitter. Devices call it from their own goroutines.
func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		h.drops.Add(1)
		return false
	}
}
