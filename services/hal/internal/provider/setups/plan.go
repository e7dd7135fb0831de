package setups

// ResourcePlan specifies wiring and operating parameters chosen by a setup.
// Providers consume this plan to instantiate resource owners.
type ResourcePlan struct {
	CAN []CANPlan
}

// CANPlan wires one CAN controller. On-chip controllers use RX/TX/Remap and
// ClockHz; SPI-attached ones use the SPI fields.
type CANPlan struct {
	ID      string // e.g. "can1", "mcp0"
	RX, TX  int    // GPIO numbers, port*16+line on CH32V
	Remap   uint8  // AFIO remap selector
	ClockHz uint32 // peripheral clock feeding the controller
	Bitrate uint32 // default when the device does not choose one

	// FilterBlock names the controller whose filter banks this one uses
	// (CAN2 uses CAN1's). Empty means its own.
	FilterBlock string

	SPI           string // "spi0", "spi1"
	SCK, SDO, SDI int
	CS            int
	OscHz         uint32 // MCP2515 crystal
}
