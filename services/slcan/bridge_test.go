package slcan

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"ch32hal/drivers/can"
	"ch32hal/errcode"
)

type fakePort struct {
	in  []byte
	out bytes.Buffer
}

func (p *fakePort) TryRead(b []byte) int {
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n
}

func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }

// send queues input, polls once and returns what the bridge wrote.
func (p *fakePort) send(b *Bridge, s string) string {
	p.in = append(p.in, s...)
	b.Poll()
	got := p.out.String()
	p.out.Reset()
	return got
}

type fakeBus struct {
	sent   []can.Frame
	rx     []can.Frame
	full   bool
	closed bool
}

func (f *fakeBus) Transmit(fr can.Frame) (*can.Frame, error) {
	if f.full {
		return nil, errcode.WouldBlock
	}
	f.sent = append(f.sent, fr)
	return nil, nil
}

func (f *fakeBus) Receive() (can.Frame, error) {
	if len(f.rx) == 0 {
		return can.Frame{}, errcode.WouldBlock
	}
	fr := f.rx[0]
	f.rx = f.rx[1:]
	return fr, nil
}

func (f *fakeBus) Close() error { f.closed = true; return nil }

func newFakeBridge() (*Bridge, *fakePort, *fakeBus, *[]uint32) {
	port := &fakePort{}
	fb := &fakeBus{}
	var opened []uint32
	b := New(port, Config{Open: func(bitrate uint32, listenOnly bool) (can.Bus, error) {
		opened = append(opened, bitrate)
		return fb, nil
	}})
	return b, port, fb, &opened
}

func TestBridge_OpenSendClose(t *testing.T) {
	b, port, fb, opened := newFakeBridge()

	if got := port.send(b, "O\r"); got != "\a" {
		t.Fatalf("open without bitrate = %q", got)
	}
	if got := port.send(b, "S6\rO\r"); got != "\r\r" {
		t.Fatalf("S6 O = %q", got)
	}
	if len(*opened) != 1 || (*opened)[0] != 500_000 {
		t.Fatalf("opened = %v", *opened)
	}
	if got := port.send(b, "S4\r"); got != "\a" {
		t.Fatalf("bitrate change while open = %q", got)
	}

	if got := port.send(b, "t1002BEEF\r"); got != "z\r" {
		t.Fatalf("send = %q", got)
	}
	if len(fb.sent) != 1 || fb.sent[0].ID != 0x100 || fb.sent[0].Data[1] != 0xEF {
		t.Fatalf("sent = %+v", fb.sent)
	}

	fb.full = true
	if got := port.send(b, "t1000\r"); got != "\a" {
		t.Fatalf("send while full = %q", got)
	}

	if got := port.send(b, "C\r"); got != "\r" || !fb.closed || b.Open() {
		t.Fatalf("close = %q closed=%v", got, fb.closed)
	}
	if got := port.send(b, "C\r"); got != "\a" {
		t.Fatalf("second close = %q", got)
	}
}

func TestBridge_ForwardsReceivedFrames(t *testing.T) {
	b, port, fb, _ := newFakeBridge()
	port.send(b, "S8\rO\r")

	f1, _ := can.NewFrame(0x7E8, []byte{0x03, 0x41})
	f2, _ := can.NewRemoteFrame(0x123, 4)
	fb.rx = []can.Frame{f1, f2}

	if got := port.send(b, ""); got != "t7E820341\rr1234\r" {
		t.Fatalf("forwarded = %q", got)
	}
}

func TestBridge_ListenOnlyRejectsSend(t *testing.T) {
	port := &fakePort{}
	var listen bool
	b := New(port, Config{Open: func(_ uint32, l bool) (can.Bus, error) {
		listen = l
		return &fakeBus{}, nil
	}})
	if got := port.send(b, "S6\rL\rt1000\r"); got != "\r\r\a" || !listen {
		t.Fatalf("got %q listen=%v", got, listen)
	}
}

func TestBridge_InfoCommands(t *testing.T) {
	b, port, _, _ := newFakeBridge()
	if got := port.send(b, "V\rN\r\r"); got != "V1013\rNCH32\r\r" {
		t.Fatalf("info = %q", got)
	}
	if got := port.send(b, "F\r"); got != "\a" {
		t.Fatalf("F while closed = %q", got)
	}
	if got := port.send(b, "X\rS9\rT123456780\r"); got != "\a\a\a" {
		t.Fatalf("bad commands = %q", got)
	}
}

func TestBridge_SplitAndOverlongLines(t *testing.T) {
	b, port, _, _ := newFakeBridge()
	if got := port.send(b, "S"); got != "" {
		t.Fatalf("partial line answered: %q", got)
	}
	if got := port.send(b, "6\r\n"); got != "\r" {
		t.Fatalf("completed line = %q", got)
	}
	long := bytes.Repeat([]byte{'t'}, 40)
	if got := port.send(b, string(long)+"\rV\r"); got != "\aV1013\r" {
		t.Fatalf("overlong line = %q", got)
	}
}

var simSeq int

func TestBridge_SimulatedController(t *testing.T) {
	simSeq++
	inst := can.NewSimInstance(fmt.Sprintf("slcan%d", simSeq), 36_000_000)
	port := &fakePort{}
	b := New(port, Config{Open: func(bitrate uint32, listenOnly bool) (can.Bus, error) {
		mode := can.ModeLoopback
		if listenOnly {
			mode = can.ModeSilentLoopback
		}
		c, err := can.New(inst, can.NewSimPin(900), can.NewSimPin(901), can.Config{Bitrate: bitrate, Mode: mode})
		if err != nil {
			return nil, err
		}
		c.AddFilter(can.AcceptAll(0))
		return c, nil
	}})

	if got := port.send(b, "S6\rO\rt55520102\r"); got != "\r\rz\rt55520102\r" {
		t.Fatalf("loopback = %q", got)
	}
	if got := port.send(b, "F\r"); got != "F00\r" {
		t.Fatalf("status = %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { b.Run(ctx); close(done) }()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	if can.Claimed(inst.Name()) {
		t.Fatal("controller still claimed after Run returned")
	}
}

func TestBridge_ReportsFullMailboxes(t *testing.T) {
	simSeq++
	inst := can.NewSimInstance(fmt.Sprintf("slcan%d", simSeq), 36_000_000)
	port := &fakePort{}
	b := New(port, Config{Open: func(bitrate uint32, _ bool) (can.Bus, error) {
		return can.New(inst, can.NewSimPin(902), can.NewSimPin(903), can.Config{Bitrate: bitrate})
	}})
	defer b.closeBus()

	if got := port.send(b, "S6\rO\rt1000\rt1000\rt1000\r"); got != "\r\rz\rz\rz\r" {
		t.Fatalf("fill = %q", got)
	}
	if got := port.send(b, "t1000\rF\r"); got != "\aF02\r" {
		t.Fatalf("full = %q", got)
	}
	inst.Sim().CompleteTx(0, can.TxOK)
	if got := port.send(b, "t1000\rF\r"); got != "z\rF00\r" {
		t.Fatalf("after completion = %q", got)
	}
}
