package types

// HeartbeatConfig is published to config/heartbeat. The producer sends a
// one-byte frame with identifier 0x700+NodeID on the given CAN capability.
type HeartbeatConfig struct {
	Cap        CapabilityAddress `json:"cap"`
	NodeID     uint8             `json:"node_id"`     // 1..127
	IntervalMs int               `json:"interval_ms"` // 0 stops the producer
	State      uint8             `json:"state"`       // NMT state byte, default operational (0x05)
}
