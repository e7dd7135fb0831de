package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"go.bug.st/serial"

	"ch32hal/services/slcan"
)

// openAdapter opens the serial port, retrying while a USB adapter
// enumerates, and brings the CAN channel up at bitrate.
func openAdapter(ctx context.Context, port string, baud int, bitrate uint32, listenOnly bool) (serial.Port, error) {
	code, ok := slcan.BitrateCode(bitrate)
	if !ok {
		return nil, fmt.Errorf("bit rate %d has no SLCAN code", bitrate)
	}

	var p serial.Port
	err := retry.Do(func() error {
		var err error
		p, err = serial.Open(port, &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		})
		return err
	},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("serial_open_retry", "port", port, "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port, err)
	}
	if err := p.SetReadTimeout(10 * time.Millisecond); err != nil {
		p.Close()
		return nil, err
	}
	_ = p.ResetInputBuffer()

	open := "O\r"
	if listenOnly {
		open = "L\r"
	}
	// A leftover open channel would reject S, so close first and ignore the answer.
	for _, c := range []string{"C\r", "S" + string(code) + "\r", open} {
		if _, err := p.Write([]byte(c)); err != nil {
			p.Close()
			return nil, err
		}
		time.Sleep(10 * time.Millisecond)
	}
	slog.Info("adapter_open", "port", port, "bitrate", bitrate, "listen_only", listenOnly)
	return p, nil
}

func closeAdapter(p serial.Port) {
	_, _ = p.Write([]byte("C\r"))
	time.Sleep(10 * time.Millisecond)
	if err := p.Close(); err != nil {
		slog.Warn("serial_close", "error", err)
	}
}

// lineSplitter assembles adapter replies. A BEL is a line on its own.
type lineSplitter struct {
	buf []byte
}

func (s *lineSplitter) feed(chunk []byte, emit func(line []byte)) {
	for _, c := range chunk {
		switch c {
		case slcan.CR:
			if len(s.buf) > 0 {
				emit(s.buf)
			}
			s.buf = s.buf[:0]
		case slcan.BEL:
			emit([]byte{slcan.BEL})
		case '\n':
		default:
			if len(s.buf) < 64 {
				s.buf = append(s.buf, c)
			}
		}
	}
}
