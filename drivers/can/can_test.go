package can

import (
	"errors"
	"fmt"
	"testing"

	"ch32hal/errcode"
)

var simSeq int

// newSimController brings up a controller on a fresh simulated peripheral
// with unique pins. Tests in this package do not run in parallel.
func newSimController(t *testing.T, cfg Config) (*Controller, *SimInstance) {
	t.Helper()
	simSeq++
	inst := NewSimInstance(fmt.Sprintf("sim%d", simSeq), 8_000_000)
	if cfg.Bitrate == 0 {
		cfg.Bitrate = 500_000
	}
	c, err := New(inst, NewSimPin(1000+2*simSeq), NewSimPin(1001+2*simSeq), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, inst
}

func mustFrame(t *testing.T, id StandardID, data ...byte) Frame {
	t.Helper()
	f, ok := NewFrame(id, data)
	if !ok {
		t.Fatalf("bad frame %#x %v", id, data)
	}
	return f
}

func TestNew_ProgramsController(t *testing.T) {
	inst := NewSimInstance("new-ok", 8_000_000)
	rx, tx := NewSimPin(1), NewSimPin(2)
	c, err := New(inst, rx, tx, Config{Bitrate: 500_000, Mode: ModeSilent, Remap: 2, TxPriority: PriorityByRequestOrder, AutoBusOff: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if inInitMode(inst.Sim()) {
		t.Fatal("controller left in init mode")
	}
	want := BitTiming{Prescaler: 2, Seg1: 6, Seg2: 1, SJW: 1}
	if c.Timing() != want {
		t.Fatalf("timing %+v", c.Timing())
	}
	if got := inst.Sim().Load(regBTIMR); got != want.btimr()|btimrSILM {
		t.Fatalf("BTIMR=%#x", got)
	}
	ctlr := inst.Sim().Load(regCTLR)
	if ctlr&ctlrTXFP == 0 || ctlr&ctlrABOM == 0 || ctlr&ctlrNART != 0 {
		t.Fatalf("CTLR=%#x", ctlr)
	}
	if r, ok := rx.Role(); !ok || r != PinRoleRX {
		t.Fatalf("rx role %v %v", r, ok)
	}
	if r, ok := tx.Role(); !ok || r != PinRoleTX {
		t.Fatalf("tx role %v %v", r, ok)
	}
	if inst.Remap() != 2 || inst.Resets() != 1 {
		t.Fatalf("remap=%d resets=%d", inst.Remap(), inst.Resets())
	}
	if c.Bitrate() != 500_000 {
		t.Fatalf("bitrate %d", c.Bitrate())
	}
}

func TestNew_InvalidTimingsTouchesNothing(t *testing.T) {
	inst := NewSimInstance("new-bad", 8_000_000)
	rx, tx := NewSimPin(3), NewSimPin(4)
	_, err := New(inst, rx, tx, Config{Bitrate: 1})
	if !errors.Is(err, errcode.InvalidTimings) {
		t.Fatalf("err=%v", err)
	}
	if Claimed("new-bad") {
		t.Fatal("peripheral left claimed")
	}
	if _, held := PinClaimed(3); held {
		t.Fatal("pin left claimed")
	}
	if len(inst.Sim().Trace()) != 0 || inst.Resets() != 0 {
		t.Fatal("registers touched")
	}
	if _, ok := rx.Role(); ok {
		t.Fatal("pin configured")
	}
}

func TestNew_Ownership(t *testing.T) {
	inst := NewSimInstance("own", 8_000_000)
	c, err := New(inst, NewSimPin(10), NewSimPin(11), Config{Bitrate: 500_000})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(inst, NewSimPin(12), NewSimPin(13), Config{Bitrate: 500_000}); !errors.Is(err, errcode.BusInUse) {
		t.Fatalf("same peripheral: %v", err)
	}
	other := NewSimInstance("own-b", 8_000_000)
	if _, err := New(other, NewSimPin(10), NewSimPin(14), Config{Bitrate: 500_000}); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("same pin: %v", err)
	}
	if Claimed("own-b") {
		t.Fatal("failed New left a claim")
	}
	if _, err := New(other, NewSimPin(15), NewSimPin(15), Config{Bitrate: 500_000}); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("rx==tx: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !inInitMode(inst.Sim()) {
		t.Fatal("Close did not park the controller")
	}
	c2, err := New(inst, NewSimPin(10), NewSimPin(11), Config{Bitrate: 500_000})
	if err != nil {
		t.Fatalf("reclaim after Close: %v", err)
	}
	c2.Close()
}

func TestNew_InitHandshakeTimeout(t *testing.T) {
	inst := NewSimInstance("stuck", 8_000_000)
	inst.Sim().NoInitAck = true
	_, err := New(inst, NewSimPin(20), NewSimPin(21), Config{Bitrate: 500_000})
	if !errors.Is(err, errcode.Timeout) {
		t.Fatalf("err=%v", err)
	}
	if Claimed("stuck") {
		t.Fatal("claim kept after failure")
	}
}

func TestTransmit_MailboxesThenWouldBlock(t *testing.T) {
	c, inst := newSimController(t, Config{})
	if c.TransmitStatus() != TxOtherError {
		t.Fatalf("status before any transmit: %v", c.TransmitStatus())
	}
	for i := 0; i < NumMailboxes; i++ {
		old, err := c.Transmit(mustFrame(t, StandardID(0x100+i), byte(i)))
		if err != nil || old != nil {
			t.Fatalf("transmit %d: %v %v", i, old, err)
		}
		if c.LastMailbox() != i {
			t.Fatalf("last mailbox %d want %d", c.LastMailbox(), i)
		}
		if c.TransmitStatus() != TxPending {
			t.Fatalf("status %v", c.TransmitStatus())
		}
	}
	if _, err := c.Transmit(mustFrame(t, 0x200)); !IsWouldBlock(err) {
		t.Fatalf("fourth transmit: %v", err)
	}
	if c.LastMailbox() != 2 {
		t.Fatal("rejected transmit moved last mailbox")
	}

	sim := inst.Sim()
	sim.CompleteTx(1, TxOK)
	sim.CompleteTx(0, TxArbitrationLost)
	sim.CompleteTx(2, TxError)
	if c.TransmitStatusOf(1) != TxOK || c.TransmitStatusOf(0) != TxArbitrationLost || c.TransmitStatus() != TxError {
		t.Fatalf("statuses %v %v %v", c.TransmitStatusOf(0), c.TransmitStatusOf(1), c.TransmitStatusOf(2))
	}
	if _, err := c.Transmit(mustFrame(t, 0x201)); err != nil || c.LastMailbox() != 0 {
		t.Fatalf("reuse: %v mailbox %d", err, c.LastMailbox())
	}
	if c.TransmitStatus() != TxPending {
		t.Fatal("reused mailbox not pending")
	}
	if len(sim.Sent()) != 1 || sim.Sent()[0].ID != 0x101 {
		t.Fatalf("sent %+v", sim.Sent())
	}
}

func TestLoopback_RoundTrip(t *testing.T) {
	c, inst := newSimController(t, Config{Mode: ModeLoopback})
	c.AddFilter(AcceptAll(0))

	want := mustFrame(t, 0x123, 1, 2, 3, 4, 5, 6, 7, 8)
	if _, err := c.Transmit(want); err != nil {
		t.Fatal(err)
	}
	if c.TransmitStatus() != TxOK {
		t.Fatalf("status %v", c.TransmitStatus())
	}
	got, err := c.TryRecv()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if _, err := c.TryRecv(); !IsWouldBlock(err) {
		t.Fatalf("empty FIFO: %v", err)
	}
	if n := inst.Sim().Releases(FIFO0); n != 1 {
		t.Fatalf("releases %d", n)
	}
}

func TestTryRecv_NothingWithoutFilter(t *testing.T) {
	c, _ := newSimController(t, Config{Mode: ModeLoopback})
	if _, err := c.Transmit(mustFrame(t, 0x10)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Receive(); !IsWouldBlock(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestTryRecv_ExtendedIsReleased(t *testing.T) {
	c, inst := newSimController(t, Config{})
	inst.Sim().InjectRaw(FIFO0, 0x12345<<3|mirIDE, 2, 0xBEEF, 0)
	if _, err := c.TryRecv(); !errors.Is(err, errcode.Unsupported) {
		t.Fatalf("err=%v", err)
	}
	if inst.Sim().Releases(FIFO0) != 1 {
		t.Fatal("extended frame not released")
	}
	if _, err := c.TryRecv(); !IsWouldBlock(err) {
		t.Fatalf("after release: %v", err)
	}
}

func TestTryRecv_RemoteFrame(t *testing.T) {
	c, inst := newSimController(t, Config{})
	c.AddFilter(AcceptAll(0))
	rf, _ := NewRemoteFrame(0x7FF, 4)
	inst.Sim().InjectFrame(rf)
	got, err := c.TryRecv()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Remote || got.DLC != 4 || got.ID != 0x7FF || len(got.Payload()) != 4 {
		t.Fatalf("got %+v", got)
	}
}

func TestRxState_Overrun(t *testing.T) {
	for _, lock := range []bool{false, true} {
		t.Run(fmt.Sprintf("lock=%v", lock), func(t *testing.T) {
			c, inst := newSimController(t, Config{LockFIFO: lock})
			c.AddFilter(AcceptAll(0))
			for id := StandardID(1); id <= 4; id++ {
				inst.Sim().InjectFrame(mustFrame(t, id))
			}
			st := c.RxState()
			if st.Pending != 3 || !st.Full || !st.Overrun {
				t.Fatalf("state %+v", st)
			}
			want := []StandardID{1, 2, 4}
			if lock {
				want = []StandardID{1, 2, 3}
			}
			for _, id := range want {
				f, err := c.TryRecv()
				if err != nil || f.ID != id {
					t.Fatalf("got %#x %v want %#x", f.ID, err, id)
				}
			}
			c.ClearOverrun()
			if st := c.RxState(); st != (RxState{}) {
				t.Fatalf("after drain %+v", st)
			}
		})
	}
}

func TestFIFOSelection(t *testing.T) {
	c, inst := newSimController(t, Config{FIFO: FIFO1})
	c.AddFilter(Mask32(0, 0x100, 0x700))
	c.AddFilter(Mask32(1, 0x200, 0x700).ToFIFO(FIFO0))

	inst.Sim().InjectFrame(mustFrame(t, 0x1AB))
	inst.Sim().InjectFrame(mustFrame(t, 0x2AB))

	f, err := c.TryRecv()
	if err != nil || f.ID != 0x1AB {
		t.Fatalf("FIFO1 got %#x %v", f.ID, err)
	}
	if _, err := c.TryRecv(); !IsWouldBlock(err) {
		t.Fatalf("FIFO1 should be empty: %v", err)
	}
	if inst.Sim().Load(regRFIFO0)&rfifoFMPMask != 1 {
		t.Fatal("frame for FIFO0 missing")
	}
}

func TestLinkedControllers(t *testing.T) {
	a, ai := newSimController(t, Config{})
	b, bi := newSimController(t, Config{})
	ai.Sim().AutoComplete = true
	ai.Sim().Link(bi.Sim())
	b.AddFilter(List32(0, 0x321, 0x322))

	if _, err := a.Transmit(mustFrame(t, 0x321, 0xAA)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Transmit(mustFrame(t, 0x400)); err != nil {
		t.Fatal(err)
	}
	f, err := b.TryRecv()
	if err != nil || f.ID != 0x321 || f.Payload()[0] != 0xAA {
		t.Fatalf("got %+v %v", f, err)
	}
	if _, err := b.TryRecv(); !IsWouldBlock(err) {
		t.Fatalf("unlisted id delivered: %v", err)
	}
	if a.TransmitStatus() != TxOK {
		t.Fatalf("status %v", a.TransmitStatus())
	}
}

func TestErrorState(t *testing.T) {
	c, inst := newSimController(t, Config{})
	want := ErrorState{TEC: 130, REC: 7, Last: LastErrorAck, Warning: true, Passive: true}
	inst.Sim().SetErrorState(want)
	if got := c.ErrorState(); got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if want.Last.String() != "ack" {
		t.Fatal(want.Last.String())
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeNormal, ModeLoopback, ModeSilent, ModeSilentLoopback} {
		got, ok := ParseMode(m.String())
		if !ok || got != m {
			t.Fatalf("%v: %v %v", m, got, ok)
		}
	}
	if _, ok := ParseMode("turbo"); ok {
		t.Fatal("accepted unknown mode")
	}
}

func TestClose_OldHandleCannotTouchNewOwner(t *testing.T) {
	inst := NewSimInstance("reown", 8_000_000)
	cfg := Config{Bitrate: 500_000}
	c1, err := New(inst, NewSimPin(30), NewSimPin(31), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}
	c2, err := New(inst, NewSimPin(30), NewSimPin(31), cfg)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	defer c2.Close()

	for i := 0; i < NumMailboxes; i++ {
		if _, err := c1.Transmit(mustFrame(t, 0x10)); !errors.Is(err, errcode.Closed) {
			t.Fatalf("closed transmit %d: %v", i, err)
		}
	}
	for n := 0; n < NumMailboxes; n++ {
		if inst.Sim().Pending(n) {
			t.Fatalf("closed handle filled mailbox %d", n)
		}
	}
	if _, err := c1.TryRecv(); !errors.Is(err, errcode.Closed) {
		t.Fatalf("closed receive: %v", err)
	}
	if IsWouldBlock(errcode.Closed) {
		t.Fatal("closed must not read as retryable")
	}

	inst.Sim().ResetTrace()
	c1.AddFilter(List32(0, 1, 2))
	c1.RemoveFilter(0)
	c1.ClearOverrun()
	if tr := inst.Sim().Trace(); len(tr) != 0 {
		t.Fatalf("closed handle wrote registers: %+v", tr)
	}

	for i := 0; i < NumMailboxes; i++ {
		if _, err := c2.Transmit(mustFrame(t, 0x20)); err != nil {
			t.Fatalf("new owner transmit %d: %v", i, err)
		}
	}
}

func TestTransmit_ClampsOversizedDLC(t *testing.T) {
	c, inst := newSimController(t, Config{})
	f := Frame{ID: 0x55, DLC: 12, Data: [MaxDLC]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	if _, err := c.Transmit(f); err != nil {
		t.Fatal(err)
	}
	if got := inst.Sim().Load(mailboxReg(0, offMDTR)) & mdtrDLCMask; got != MaxDLC {
		t.Fatalf("DLC on the wire %d", got)
	}
}

func TestNew_FollowsInstanceClock(t *testing.T) {
	inst := NewSimInstance("clk", 8_000_000)
	inst.SetClockHz(36_000_000)
	c, err := New(inst, NewSimPin(40), NewSimPin(41), Config{Bitrate: 125_000})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if want := (BitTiming{Prescaler: 36, Seg1: 6, Seg2: 1, SJW: 1}); c.Timing() != want {
		t.Fatalf("timing %+v", c.Timing())
	}
	if c.Bitrate() != 125_000 {
		t.Fatalf("bitrate %d", c.Bitrate())
	}
}
