package slcan

import (
	"context"
	"errors"
	"io"
	"time"

	"ch32hal/drivers/can"
	"ch32hal/errcode"
	"ch32hal/x/conv"
)

// Port is the serial side of the bridge. TryRead never blocks and returns
// the number of bytes copied into p.
type Port interface {
	io.Writer
	TryRead(p []byte) int
}

// Opener brings the CAN side up at bitrate. listenOnly asks for a
// controller that never drives the bus.
type Opener func(bitrate uint32, listenOnly bool) (can.Bus, error)

type Config struct {
	Open      Opener
	Version   string        // four characters after V, default "1013"
	Serial    string        // four characters after N, default "CH32"
	PollEvery time.Duration // default 1 ms
}

const (
	maxLine  = 32 // longest valid line is 21 bytes
	maxDrain = 8
)

// Bridge translates between SLCAN lines on a Port and frames on a can.Bus.
// It is driven by Run or by calling Poll from an existing loop.
type Bridge struct {
	cfg  Config
	port Port

	bitrate    uint32
	listenOnly bool
	txFull     bool
	bus        can.Bus

	line     []byte
	overflow bool
	rbuf     [64]byte
	out      []byte
}

func New(port Port, cfg Config) *Bridge {
	if cfg.Version == "" {
		cfg.Version = "1013"
	}
	if cfg.Serial == "" {
		cfg.Serial = "CH32"
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = time.Millisecond
	}
	return &Bridge{cfg: cfg, port: port, line: make([]byte, 0, maxLine)}
}

// Open reports whether the CAN channel is open.
func (b *Bridge) Open() bool { return b.bus != nil }

// Run polls until ctx ends, then closes the channel.
func (b *Bridge) Run(ctx context.Context) {
	t := time.NewTicker(b.cfg.PollEvery)
	defer t.Stop()
	defer b.closeBus()
	for {
		b.Poll()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Poll handles pending serial input, then forwards received frames.
func (b *Bridge) Poll() {
	for {
		n := b.port.TryRead(b.rbuf[:])
		if n == 0 {
			break
		}
		for _, c := range b.rbuf[:n] {
			b.feed(c)
		}
	}
	b.drain()
	b.flush()
}

func (b *Bridge) feed(c byte) {
	if c == '\n' {
		return
	}
	if c != CR {
		if len(b.line) == maxLine {
			b.overflow = true
			return
		}
		b.line = append(b.line, c)
		return
	}
	if b.overflow {
		b.out = append(b.out, BEL)
	} else {
		b.exec(b.line)
	}
	b.line = b.line[:0]
	b.overflow = false
}

func (b *Bridge) exec(line []byte) {
	if len(line) == 0 {
		b.ok()
		return
	}
	switch line[0] {
	case 'S':
		if b.Open() || len(line) != 2 || line[1] < '0' || int(line[1]-'0') >= len(Bitrates) {
			b.fail()
			return
		}
		b.bitrate = Bitrates[line[1]-'0']
		b.ok()

	case 'O', 'L':
		if b.Open() || b.bitrate == 0 || len(line) != 1 {
			b.fail()
			return
		}
		bus, err := b.cfg.Open(b.bitrate, line[0] == 'L')
		if err != nil {
			println("[slcan] open failed:", err.Error())
			b.fail()
			return
		}
		b.bus, b.listenOnly = bus, line[0] == 'L'
		b.ok()

	case 'C':
		if !b.Open() {
			b.fail()
			return
		}
		b.closeBus()
		b.ok()

	case 'V':
		b.out = append(b.out, 'V')
		b.out = append(b.out, b.cfg.Version...)
		b.ok()

	case 'N':
		b.out = append(b.out, 'N')
		b.out = append(b.out, b.cfg.Serial...)
		b.ok()

	case 'F':
		st, ok := b.bus.(interface {
			ErrorState() can.ErrorState
			RxState() can.RxState
			TransmitStatus() can.TxStatus
		})
		if !b.Open() || !ok {
			b.fail()
			return
		}
		flags := StatusFlags(st.ErrorState(), st.RxState(), st.TransmitStatus(), b.txFull)
		b.out = append(b.out, 'F')
		b.out = conv.AppendHex(b.out, uint32(flags), 2)
		b.ok()

	case 't', 'r', 'T', 'R':
		if !b.Open() || b.listenOnly {
			b.fail()
			return
		}
		f, err := ParseFrame(line)
		if err != nil {
			b.fail()
			return
		}
		_, err = b.bus.Transmit(f)
		b.txFull = can.IsWouldBlock(err)
		if err != nil {
			b.fail()
			return
		}
		b.out = append(b.out, 'z', CR)

	default:
		b.fail()
	}
}

func (b *Bridge) ok()   { b.out = append(b.out, CR) }
func (b *Bridge) fail() { b.out = append(b.out, BEL) }

// drain forwards up to maxDrain received frames.
func (b *Bridge) drain() {
	if !b.Open() {
		return
	}
	for i := 0; i < maxDrain; i++ {
		f, err := b.bus.Receive()
		switch {
		case err == nil:
			b.out = AppendFrame(b.out, f)
		case can.IsWouldBlock(err):
			return
		case errors.Is(err, errcode.Unsupported):
			continue
		default:
			println("[slcan] receive:", err.Error())
			return
		}
	}
}

func (b *Bridge) flush() {
	if len(b.out) == 0 {
		return
	}
	if _, err := b.port.Write(b.out); err != nil {
		println("[slcan] write:", err.Error())
	}
	b.out = b.out[:0]
}

func (b *Bridge) closeBus() {
	if b.bus == nil {
		return
	}
	if c, ok := b.bus.(io.Closer); ok {
		_ = c.Close()
	}
	b.bus, b.listenOnly, b.txFull = nil, false, false
}
