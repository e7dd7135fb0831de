package can

import "sync"

// Reset values of the registers the simulator models explicitly.
const (
	simResetCTLR   = 0x00010002 // SLEEP, DBF
	simResetTSTATR = 0x1C000000 // all mailboxes empty
	simResetBTIMR  = 0x01230000
	simResetFCTLR  = 0x2A1C0E01 // FINIT
)

// SimWrite is one register store observed by a SimRegisters.
type SimWrite struct {
	Off   uint32
	Value uint32
}

type simMsg struct{ mir, mdtr, lo, hi uint32 }

// SimRegisters is an in-memory controller register block with the side
// effects the driver relies on: the INRQ/INAK handshake, mailbox
// empty/pending/complete tracking, FIFO depth with release and overrun,
// and acceptance filtering while FINIT is clear.
//
// In loopback modes a requested transmission completes immediately and is
// fed back through the filters. In normal mode it stays pending until
// CompleteTx, unless AutoComplete is set.
type SimRegisters struct {
	mu      sync.Mutex
	words   map[uint32]uint32
	fifos   [2][]simMsg
	rel     [2]int
	trace   []SimWrite
	sent    []Frame
	filters *SimRegisters
	peers   []*SimRegisters

	// AutoComplete finishes normal-mode transmissions with TXOK at once.
	AutoComplete bool
	// NoInitAck keeps INAK from following INRQ, as with a gated clock.
	NoInitAck bool
}

func NewSimRegisters() *SimRegisters {
	s := &SimRegisters{}
	s.filters = s
	s.reset()
	return s
}

func (s *SimRegisters) reset() {
	s.words = map[uint32]uint32{
		regCTLR:   simResetCTLR,
		regTSTATR: simResetTSTATR,
		regBTIMR:  simResetBTIMR,
		regFCTLR:  simResetFCTLR,
	}
	s.fifos = [2][]simMsg{}
}

// Load implements Registers.
func (s *SimRegisters) Load(off uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(off)
}

func (s *SimRegisters) load(off uint32) uint32 {
	switch {
	case off == regSTATR:
		ctlr := s.words[regCTLR]
		var v uint32
		if ctlr&ctlrINRQ != 0 && !s.NoInitAck {
			v |= statrINAK
		}
		if ctlr&ctlrSLEEP != 0 && ctlr&ctlrINRQ == 0 {
			v |= statrSLAK
		}
		return v
	case off == regRFIFO0 || off == regRFIFO1:
		f := FIFO((off - regRFIFO0) / 4)
		v := s.words[off] & rfifoFOVR
		v |= uint32(len(s.fifos[f]))
		if len(s.fifos[f]) == FIFODepth {
			v |= rfifoFULL
		}
		return v
	case off >= regRXMIR0 && off < regRXMIR0+0x20:
		f := FIFO((off - regRXMIR0) / 0x10)
		if len(s.fifos[f]) == 0 {
			return 0
		}
		m := s.fifos[f][0]
		switch (off - regRXMIR0) % 0x10 {
		case offMIR:
			return m.mir
		case offMDTR:
			return m.mdtr
		case offMDLR:
			return m.lo
		default:
			return m.hi
		}
	}
	return s.words[off]
}

// Store implements Registers.
func (s *SimRegisters) Store(off uint32, v uint32) {
	s.mu.Lock()
	out := s.store(off, v)
	s.mu.Unlock()
	for _, d := range out {
		d.to.deliver(d.msg)
	}
}

type simDelivery struct {
	to  *SimRegisters
	msg simMsg
}

func (s *SimRegisters) store(off uint32, v uint32) []simDelivery {
	s.trace = append(s.trace, SimWrite{Off: off, Value: v})
	switch {
	case off == regCTLR:
		if v&ctlrRESET != 0 {
			s.reset()
			return nil
		}
		s.words[off] = v
	case off == regSTATR:
		// Status bits are read-only in this model.
	case off == regTSTATR:
		s.storeTSTATR(v)
	case off == regRFIFO0 || off == regRFIFO1:
		f := FIFO((off - regRFIFO0) / 4)
		if v&rfifoFOVR != 0 {
			s.words[off] &^= rfifoFOVR
		}
		if v&rfifoRFOM != 0 && len(s.fifos[f]) > 0 {
			s.fifos[f] = s.fifos[f][1:]
			s.rel[f]++
		}
	case off >= regTXMIR0 && off < regTXMIR0+NumMailboxes*0x10:
		n := int((off - regTXMIR0) / 0x10)
		if (off-regTXMIR0)%0x10 == offMIR && v&mirTXRQ != 0 {
			if s.words[regTSTATR]&tmeBit(n) == 0 {
				return nil
			}
			s.words[off] = v
			return s.request(n)
		}
		s.words[off] = v
	default:
		s.words[off] = v
	}
	return nil
}

func (s *SimRegisters) storeTSTATR(v uint32) {
	for n := 0; n < NumMailboxes; n++ {
		b := (v >> tstatrShift(n)) & 0xFF
		if b&tstatrABRQ != 0 && s.words[regTSTATR]&tmeBit(n) == 0 {
			s.finish(n, tstatrRQCP)
			continue
		}
		if b&tstatrRQCP != 0 {
			s.words[regTSTATR] &^= 0xF << tstatrShift(n)
		}
	}
}

// request marks mailbox n pending and completes it if the mode allows.
func (s *SimRegisters) request(n int) []simDelivery {
	s.words[regTSTATR] &^= tmeBit(n) | 0xF<<tstatrShift(n)
	btimr := s.words[regBTIMR]
	if btimr&btimrLBKM == 0 && !s.AutoComplete {
		return nil
	}
	return s.completeOK(n)
}

func (s *SimRegisters) completeOK(n int) []simDelivery {
	msg := s.mailboxMsg(n)
	s.finish(n, tstatrRQCP|tstatrTXOK)

	btimr := s.words[regBTIMR]
	var out []simDelivery
	if btimr&btimrLBKM != 0 {
		out = append(out, simDelivery{to: s, msg: msg})
	}
	if btimr&btimrSILM == 0 {
		s.sent = append(s.sent, frameFromRegisters(msg.mir, msg.mdtr, uint64(msg.hi)<<32|uint64(msg.lo)))
		if btimr&btimrLBKM == 0 {
			for _, p := range s.peers {
				out = append(out, simDelivery{to: p, msg: msg})
			}
		}
	}
	return out
}

func (s *SimRegisters) finish(n int, status uint32) {
	s.words[regTSTATR] |= tmeBit(n) | status<<tstatrShift(n)
	s.words[mailboxReg(n, offMIR)] &^= mirTXRQ
}

func (s *SimRegisters) mailboxMsg(n int) simMsg {
	return simMsg{
		mir:  s.words[mailboxReg(n, offMIR)] &^ mirTXRQ,
		mdtr: s.words[mailboxReg(n, offMDTR)] & mdtrDLCMask,
		lo:   s.words[mailboxReg(n, offMDLR)],
		hi:   s.words[mailboxReg(n, offMDHR)],
	}
}

// deliver routes a received message through the acceptance filters.
func (s *SimRegisters) deliver(m simMsg) {
	fifo, fmi, ok := s.filters.match(m.mir)
	if !ok {
		return
	}
	m.mdtr = m.mdtr&mdtrDLCMask | uint32(fmi)<<mdtrFMIShift
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueue(fifo, m)
}

func (s *SimRegisters) enqueue(f FIFO, m simMsg) {
	q := s.fifos[f]
	if len(q) < FIFODepth {
		s.fifos[f] = append(q, m)
		return
	}
	s.words[rfifoReg(f)] |= rfifoFOVR
	if s.words[regCTLR]&ctlrRFLM == 0 {
		q[len(q)-1] = m
	}
}

// match evaluates the active banks in order. Reception is off while
// FINIT is set.
func (s *SimRegisters) match(mir uint32) (FIFO, uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.words[regFCTLR]&fctlrFINIT != 0 {
		return 0, 0, false
	}
	act := s.words[regFWR]
	var fmi uint8
	for bank := uint8(0); bank < FilterBanks; bank++ {
		bit := uint32(1) << bank
		if act&bit == 0 {
			continue
		}
		scale32 := s.words[regFSCFGR]&bit != 0
		list := s.words[regFMCFGR]&bit != 0
		if bankMatches(scale32, list, s.words[filterReg(bank, 0)], s.words[filterReg(bank, 1)], mir) {
			fifo := FIFO0
			if s.words[regFAFIFOR]&bit != 0 {
				fifo = FIFO1
			}
			return fifo, fmi, true
		}
		fmi += filterSlots(scale32, list)
	}
	return 0, 0, false
}

// filterSlots is how many filter match indexes a bank consumes.
func filterSlots(scale32, list bool) uint8 {
	switch {
	case scale32 && !list:
		return 1
	case scale32, !list:
		return 2
	}
	return 4
}

// InjectFrame delivers f as if received from the bus.
func (s *SimRegisters) InjectFrame(f Frame) {
	lo, hi := f.dataWords()
	s.deliver(simMsg{mir: f.mir(), mdtr: uint32(f.DLC), lo: lo, hi: hi})
}

// InjectRaw places raw head register words straight into a FIFO,
// bypassing the filters.
func (s *SimRegisters) InjectRaw(f FIFO, mir, mdtr, lo, hi uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueue(f, simMsg{mir: mir, mdtr: mdtr, lo: lo, hi: hi})
}

// CompleteTx finishes a pending mailbox with the given outcome. It returns
// false if the mailbox was not pending.
func (s *SimRegisters) CompleteTx(mailbox int, st TxStatus) bool {
	s.mu.Lock()
	if mailbox < 0 || mailbox >= NumMailboxes || s.words[regTSTATR]&tmeBit(mailbox) != 0 {
		s.mu.Unlock()
		return false
	}
	var out []simDelivery
	switch st {
	case TxOK:
		out = s.completeOK(mailbox)
	case TxArbitrationLost:
		s.finish(mailbox, tstatrRQCP|tstatrALST)
	case TxError:
		s.finish(mailbox, tstatrRQCP|tstatrTERR)
	case TxPending:
		s.mu.Unlock()
		return true
	default:
		s.finish(mailbox, tstatrRQCP)
	}
	s.mu.Unlock()
	for _, d := range out {
		d.to.deliver(d.msg)
	}
	return true
}

// Pending reports whether mailbox holds an unfinished request.
func (s *SimRegisters) Pending(mailbox int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.words[regTSTATR]&tmeBit(mailbox) == 0
}

// Link makes frames completed in normal mode arrive at peer as well.
func (s *SimRegisters) Link(peer *SimRegisters) {
	s.mu.Lock()
	s.peers = append(s.peers, peer)
	s.mu.Unlock()
}

// Sent returns the frames that left this controller onto the bus.
func (s *SimRegisters) Sent() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.sent...)
}

// Releases counts RFOM commands accepted for f.
func (s *SimRegisters) Releases(f FIFO) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rel[f]
}

// Trace returns every store since the last ResetTrace.
func (s *SimRegisters) Trace() []SimWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SimWrite(nil), s.trace...)
}

func (s *SimRegisters) ResetTrace() {
	s.mu.Lock()
	s.trace = nil
	s.mu.Unlock()
}

// SetErrorState loads ERRSR from a decoded snapshot.
func (s *SimRegisters) SetErrorState(e ErrorState) {
	v := uint32(e.TEC)<<errsrTECShift | uint32(e.REC)<<errsrRECShift |
		uint32(e.Last&errsrLECMask)<<errsrLECShift
	if e.Warning {
		v |= errsrEWGF
	}
	if e.Passive {
		v |= errsrEPVF
	}
	if e.BusOff {
		v |= errsrBOFF
	}
	s.mu.Lock()
	s.words[regERRSR] = v
	s.mu.Unlock()
}

// SimInstance is a host-side Instance backed by SimRegisters.
type SimInstance struct {
	name    string
	clockHz uint32
	regs    *SimRegisters

	mu     sync.Mutex
	resets int
	remap  uint8
}

var _ Instance = (*SimInstance)(nil)

func NewSimInstance(name string, clockHz uint32) *SimInstance {
	return &SimInstance{name: name, clockHz: clockHz, regs: NewSimRegisters()}
}

// ShareFilters makes this instance use primary's filter banks, as CAN2
// does with CAN1.
func (s *SimInstance) ShareFilters(primary *SimInstance) *SimInstance {
	s.regs.mu.Lock()
	s.regs.filters = primary.regs
	s.regs.mu.Unlock()
	return s
}

func (s *SimInstance) Name() string          { return s.name }
func (s *SimInstance) Regs() Registers       { return s.regs }
func (s *SimInstance) FilterRegs() Registers { return s.regs.filters }
func (s *SimInstance) ClockHz() uint32       { return s.clockHz }
func (s *SimInstance) Sim() *SimRegisters    { return s.regs }
func (s *SimInstance) SetClockHz(hz uint32)  { s.clockHz = hz }
func (s *SimInstance) Resets() int           { s.mu.Lock(); defer s.mu.Unlock(); return s.resets }
func (s *SimInstance) Remap() uint8          { s.mu.Lock(); defer s.mu.Unlock(); return s.remap }
func (s *SimInstance) SetRemap(remap uint8)  { s.mu.Lock(); s.remap = remap; s.mu.Unlock() }

func (s *SimInstance) EnableAndReset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
	s.regs.mu.Lock()
	s.regs.reset()
	s.regs.mu.Unlock()
}

// SimPin records the role it was configured for.
type SimPin struct {
	N    int
	mu   sync.Mutex
	role PinRole
	set  bool
}

func NewSimPin(n int) *SimPin { return &SimPin{N: n} }

func (p *SimPin) Number() int { return p.N }

func (p *SimPin) ConfigureCAN(role PinRole) {
	p.mu.Lock()
	p.role, p.set = role, true
	p.mu.Unlock()
}

// Role returns the configured role and whether ConfigureCAN was called.
func (p *SimPin) Role() (PinRole, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.role, p.set
}
