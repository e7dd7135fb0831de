//go:build tinygo && (rp2040 || rp2350)

// Command slcan-bridge turns a Pico with an MCP2515 module into a serial
// CAN adapter: SLCAN on UART0 (GP0/GP1), the controller on SPI0.
package main

import (
	"context"
	"machine"
	"time"

	"github.com/jangala-dev/tinygo-uartx/uartx"

	"ch32hal/drivers/can"
	"ch32hal/drivers/mcpcan"
	"ch32hal/errcode"
	"ch32hal/services/slcan"
)

const (
	baud     = 115200
	spiFreq  = 10_000_000
	mcpOscHz = 8_000_000
	mcpCS    = machine.GP17
)

func main() {
	time.Sleep(1500 * time.Millisecond)
	println("[slcan] boot …")

	uart := uartx.UART0
	if err := uart.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	}); err != nil {
		println("[slcan] uart0 configure:", err.Error())
		return
	}

	spi := machine.SPI0
	if err := spi.Configure(machine.SPIConfig{
		Frequency: spiFreq,
		SCK:       machine.GP18,
		SDO:       machine.GP19,
		SDI:       machine.GP16,
	}); err != nil {
		println("[slcan] spi0 configure:", err.Error())
		return
	}

	br := slcan.New(uart, slcan.Config{
		Serial: "PICO",
		Open: func(bitrate uint32, listenOnly bool) (can.Bus, error) {
			if listenOnly {
				// The adapter has no silent mode.
				return nil, errcode.Unsupported
			}
			return mcpcan.Open("mcp0", spi, mcpCS, bitrate, mcpOscHz)
		},
	})
	println("[slcan] ready on uart0 @", baud)
	br.Run(context.Background())
}
