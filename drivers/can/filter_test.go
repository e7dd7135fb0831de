package can

import "testing"

func TestAddFilter_AlwaysLeavesFINITClear(t *testing.T) {
	c, inst := newSimController(t, Config{})
	for _, f := range []Filter{
		Mask32(0, 0x100, 0x700),
		List32(1, 0x10, 0x20),
		Mask16(2, 0x30, 0x7F0, 0x40, 0x7F0),
		List16(3, 1, 2, 3, 4),
		AcceptAll(27).ToFIFO(FIFO1),
	} {
		c.AddFilter(f)
		r := inst.Sim()
		if r.Load(regFCTLR)&fctlrFINIT != 0 {
			t.Fatalf("bank %d: FINIT left set", f.Bank())
		}
		if r.Load(regFWR)&(1<<f.Bank()) == 0 {
			t.Fatalf("bank %d not active", f.Bank())
		}
		if got := r.Load(regFSCFGR)&(1<<f.Bank()) != 0; got != (f.Scale() == Scale32) {
			t.Fatalf("bank %d scale", f.Bank())
		}
		if got := r.Load(regFMCFGR)&(1<<f.Bank()) != 0; got != (f.Match() == MatchList) {
			t.Fatalf("bank %d mode", f.Bank())
		}
	}
	if inst.Sim().Load(regFAFIFOR) != 1<<27 {
		t.Fatalf("FAFIFOR=%#x", inst.Sim().Load(regFAFIFOR))
	}
}

func TestAddFilter_WriteOrder(t *testing.T) {
	c, inst := newSimController(t, Config{})
	inst.Sim().ResetTrace()
	c.AddFilter(Mask32(3, 0x123, 0x7FF))

	want := []uint32{
		regFCTLR, regFWR, regFSCFGR,
		filterReg(3, 0), filterReg(3, 1),
		regFMCFGR, regFAFIFOR, regFWR, regFCTLR,
	}
	tr := inst.Sim().Trace()
	if len(tr) != len(want) {
		t.Fatalf("trace %+v", tr)
	}
	for i, w := range tr {
		if w.Off != want[i] {
			t.Fatalf("write %d to %#x, want %#x", i, w.Off, want[i])
		}
	}
	if tr[1].Value&(1<<3) != 0 || tr[7].Value&(1<<3) == 0 {
		t.Fatal("bank not deactivated before programming")
	}
	if tr[0].Value&fctlrFINIT == 0 || tr[8].Value&fctlrFINIT != 0 {
		t.Fatal("FINIT bracket wrong")
	}
	if tr[3].Value != 0x123<<21 || tr[4].Value != 0x7FF<<21|mirIDE {
		t.Fatalf("words %#x %#x", tr[3].Value, tr[4].Value)
	}
}

func TestFilter_BankOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("no panic")
		}
	}()
	_ = Mask32(FilterBanks, 0, 0)
}

func TestFilter_Matching(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
		accept []StandardID
		reject []StandardID
	}{
		{"mask32", Mask32(0, 0x120, 0x7F0), []StandardID{0x120, 0x12F}, []StandardID{0x130, 0x020}},
		{"list32", List32(0, 0x001, 0x7FF), []StandardID{0x001, 0x7FF}, []StandardID{0x002, 0x7FE}},
		{"mask16", Mask16(0, 0x100, 0x7FF, 0x200, 0x700), []StandardID{0x100, 0x2FF}, []StandardID{0x101, 0x300}},
		{"list16", List16(0, 5, 6, 7, 8), []StandardID{5, 6, 7, 8}, []StandardID{4, 9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, inst := newSimController(t, Config{})
			c.AddFilter(tc.filter)
			for _, id := range tc.accept {
				inst.Sim().InjectFrame(mustFrame(t, id))
				if f, err := c.TryRecv(); err != nil || f.ID != id {
					t.Fatalf("%#x: got %#x %v", id, f.ID, err)
				}
			}
			for _, id := range tc.reject {
				inst.Sim().InjectFrame(mustFrame(t, id))
				if _, err := c.TryRecv(); !IsWouldBlock(err) {
					t.Fatalf("%#x accepted", id)
				}
			}
		})
	}
}

func TestRemoveFilter(t *testing.T) {
	c, inst := newSimController(t, Config{})
	c.AddFilter(AcceptAll(4))
	c.RemoveFilter(4)
	inst.Sim().InjectFrame(mustFrame(t, 1))
	if _, err := c.TryRecv(); !IsWouldBlock(err) {
		t.Fatalf("removed bank still accepts: %v", err)
	}
	if inst.Sim().Load(regFCTLR)&fctlrFINIT != 0 {
		t.Fatal("FINIT left set")
	}
}

// The second controller programs the banks held in the first one's block.
func TestSharedFilterBanks(t *testing.T) {
	_, i1 := newSimController(t, Config{})
	i2 := NewSimInstance("shared-can2", 8_000_000).ShareFilters(i1)
	c2, err := New(i2, NewSimPin(900), NewSimPin(901), Config{Bitrate: 500_000, FIFO: FIFO1})
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	i1.Sim().ResetTrace()
	c2.AddFilter(AcceptAll(14))
	if len(i1.Sim().Trace()) == 0 {
		t.Fatal("filter writes did not reach the shared block")
	}
	i2.Sim().InjectFrame(mustFrame(t, 0x55))
	if f, err := c2.TryRecv(); err != nil || f.ID != 0x55 {
		t.Fatalf("got %#x %v", f.ID, err)
	}
}

func TestFilter_AcceptsInSoftware(t *testing.T) {
	f := Mask16(0, 0x100, 0x7FF, 0x200, 0x700)
	for id, want := range map[StandardID]bool{0x100: true, 0x2AB: true, 0x101: false, 0x300: false} {
		if got := f.Accepts(mustFrame(t, id)); got != want {
			t.Fatalf("%#x: got %v", id, got)
		}
	}
	rf, _ := NewRemoteFrame(5, 0)
	if List16(0, 5, 6, 7, 8).Accepts(rf) {
		t.Fatal("list filter matched a remote frame")
	}
	if !AcceptAll(0).Accepts(rf) {
		t.Fatal("accept-all rejected a remote frame")
	}
}

func TestFilter_ZeroValueRejected(t *testing.T) {
	c, inst := newSimController(t, Config{})
	if (Filter{}).Valid() || (Filter{}).Accepts(mustFrame(t, 0x10)) {
		t.Fatal("zero filter usable")
	}
	inst.Sim().ResetTrace()
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("zero filter installed")
			}
		}()
		c.AddFilter(Filter{})
	}()
	if len(inst.Sim().Trace()) != 0 {
		t.Fatal("zero filter touched the filter block")
	}
	if !AcceptAll(3).Valid() {
		t.Fatal("constructed filter not valid")
	}
}
