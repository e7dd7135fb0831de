//go:build tinygo

package mcpcan

import (
	"machine"

	"ch32hal/errcode"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/mcp2515"
)

type device struct{ d *mcp2515.Device }

func (c device) Received() bool { return c.d.Received() }

func (c device) Rx() (uint32, uint8, []byte, error) {
	m, err := c.d.Rx()
	if err != nil {
		return 0, 0, nil, err
	}
	return m.ID, m.Dlc, m.Data, nil
}

func (c device) Tx(id uint32, dlc uint8, data []byte) error { return c.d.Tx(id, dlc, data) }

// Open configures the chip behind cs on spi and starts it at bitrate.
// oscHz is the crystal on the module (8 or 16 MHz).
func Open(name string, spi drivers.SPI, cs machine.Pin, bitrate, oscHz uint32) (*Adapter, error) {
	speed, ok := speedCode(bitrate)
	if !ok {
		return nil, errcode.InvalidTimings
	}
	var clock byte
	switch oscHz {
	case 8_000_000:
		clock = mcp2515.Clock8MHz
	case 16_000_000:
		clock = mcp2515.Clock16MHz
	default:
		return nil, errcode.InvalidParams
	}
	d := mcp2515.New(spi, cs)
	d.Configure()
	if err := d.Begin(speed, clock); err != nil {
		return nil, errcode.Wrap(errcode.Error, "mcp2515.begin", err)
	}
	println("[can]", name, "mcp2515 up at", bitrate)
	return New(name, device{d}, bitrate), nil
}

func speedCode(bitrate uint32) (byte, bool) {
	switch bitrate {
	case 125_000:
		return mcp2515.CAN125kBps, true
	case 250_000:
		return mcp2515.CAN250kBps, true
	case 500_000:
		return mcp2515.CAN500kBps, true
	case 1_000_000:
		return mcp2515.CAN1000kBps, true
	}
	return 0, false
}
