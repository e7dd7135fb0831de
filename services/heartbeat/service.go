package heartbeat

import (
	"context"
	"time"

	"ch32hal/bus"
	"ch32hal/types"
	"ch32hal/x/mathx"
)

const (
	heartbeatBase    = 0x700
	stateOperational = 0x05
	minInterval      = 50 * time.Millisecond
	maxInterval      = time.Minute
)

var topicConfigHeartbeat = bus.T("config", "heartbeat")

// Service produces a periodic CAN heartbeat through the HAL send control.
type Service struct {
	cfg types.HeartbeatConfig
}

// DefaultConfig beats once a second as node 1 on io/can/can1.
func DefaultConfig() types.HeartbeatConfig {
	return types.HeartbeatConfig{
		Cap:        types.CapabilityAddress{Domain: "io", Kind: types.KindCAN, Name: "can1"},
		NodeID:     1,
		IntervalMs: 1000,
		State:      stateOperational,
	}
}

func New(cfg types.HeartbeatConfig) *Service { return &Service{cfg: cfg} }

// Frame is the heartbeat frame for the current configuration.
func (s *Service) Frame() types.CANFrame {
	st := s.cfg.State
	if st == 0 {
		st = stateOperational
	}
	return types.CANFrame{ID: heartbeatBase + uint16(s.cfg.NodeID&0x7F), Data: []byte{st}}
}

func (s *Service) interval() time.Duration {
	if s.cfg.IntervalMs <= 0 {
		return 0
	}
	return mathx.Clamp(time.Duration(s.cfg.IntervalMs)*time.Millisecond, minInterval, maxInterval)
}

func (s *Service) sendTopic() bus.Topic {
	a := s.cfg.Cap
	return bus.T("hal", "cap", a.Domain, string(a.Kind), a.Name, "control", "send")
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(time.Hour)
	defer tick.Stop()
	s.arm(tick)

	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case <-tick.C:
			conn.Publish(conn.NewMessage(s.sendTopic(), s.Frame(), false))
		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(types.HeartbeatConfig)
			if !ok || cfg.NodeID == 0 || cfg.NodeID > 127 {
				println("[heartbeat] ignoring bad config")
				continue
			}
			s.cfg = cfg
			s.arm(tick)
			println("[heartbeat] node", int(cfg.NodeID), "every", cfg.IntervalMs, "ms")
		}
	}
}

// arm resets the ticker for the configured interval. A zero interval parks
// it.
func (s *Service) arm(t *time.Ticker) {
	if d := s.interval(); d > 0 {
		t.Reset(d)
		return
	}
	t.Reset(time.Hour)
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
