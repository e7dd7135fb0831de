package can

// Scale is the filter bank width.
type Scale uint8

const (
	Scale16 Scale = iota // two 16-bit filters per bank
	Scale32              // one 32-bit filter per bank
)

// MatchMode selects how the two bank words are interpreted.
type MatchMode uint8

const (
	MatchMask MatchMode = iota // identifier + mask
	MatchList                  // exact identifier list
)

// Filter is one acceptance filter bank definition. The scale/match pairing
// is fixed by the constructor that built it; the zero value is not usable.
type Filter struct {
	built   bool
	bank    uint8
	scale   Scale
	match   MatchMode
	fr1     uint32 // identifier value (or first list entries)
	fr2     uint32 // identifier mask (or second list entries)
	fifo    FIFO
	fifoSet bool
}

// Valid reports whether f came from one of the constructors.
func (f Filter) Valid() bool { return f.built }

func (f Filter) Bank() uint8              { return f.bank }
func (f Filter) Scale() Scale             { return f.scale }
func (f Filter) Match() MatchMode         { return f.match }
func (f Filter) Words() (fr1, fr2 uint32) { return f.fr1, f.fr2 }

// ToFIFO routes matches to fifo instead of the controller's receive FIFO.
func (f Filter) ToFIFO(fifo FIFO) Filter {
	f.fifo, f.fifoSet = fifo, true
	return f
}

func checkBank(bank uint8) {
	if bank >= FilterBanks {
		panic("can: filter bank out of range")
	}
}

// 32-bit bank word: STID[31:21] EXID[20:3] IDE[2] RTR[1].
func word32(id StandardID) uint32 { return uint32(id&MaxStandardID) << mirSTIDShift }

// 16-bit half word: STID[15:5] RTR[4] IDE[3] EXID[17:15] in [2:0].
const ide16 = 1 << 3

func word16(id StandardID) uint32 { return uint32(id&MaxStandardID) << 5 }

// Mask32 accepts standard frames whose identifier matches id on every bit
// set in mask.
func Mask32(bank uint8, id, mask StandardID) Filter {
	checkBank(bank)
	return Filter{built: true, bank: bank, scale: Scale32, match: MatchMask,
		fr1: word32(id), fr2: word32(mask) | mirIDE}
}

// AcceptAll accepts every standard frame.
func AcceptAll(bank uint8) Filter { return Mask32(bank, 0, 0) }

// List32 accepts standard data frames with identifier a or b.
func List32(bank uint8, a, b StandardID) Filter {
	checkBank(bank)
	return Filter{built: true, bank: bank, scale: Scale32, match: MatchList,
		fr1: word32(a), fr2: word32(b)}
}

// Mask16 installs two 16-bit id/mask filters in one bank.
func Mask16(bank uint8, id1, mask1, id2, mask2 StandardID) Filter {
	checkBank(bank)
	return Filter{built: true, bank: bank, scale: Scale16, match: MatchMask,
		fr1: (word16(mask1)|ide16)<<16 | word16(id1),
		fr2: (word16(mask2)|ide16)<<16 | word16(id2)}
}

// List16 accepts standard data frames with any of four identifiers.
func List16(bank uint8, a, b, c, d StandardID) Filter {
	checkBank(bank)
	return Filter{built: true, bank: bank, scale: Scale16, match: MatchList,
		fr1: word16(b)<<16 | word16(a),
		fr2: word16(d)<<16 | word16(c)}
}

// AddFilter programs one bank while filters are suspended. The bank is fully
// configured before it is activated, and FINIT is always cleared on return.
// A zero Filter panics. After Close it does nothing, since the filter block
// may already belong to a new owner.
func (c *Controller) AddFilter(f Filter) {
	if !f.built {
		panic("can: filter not built by a constructor")
	}
	checkBank(f.bank)
	if c.closed {
		return
	}
	r := c.filterRegs
	fifo := c.fifo
	if f.fifoSet {
		fifo = f.fifo
	}

	setBits(r, regFCTLR, fctlrFINIT)
	modifyBit(r, regFWR, f.bank, false)
	modifyBit(r, regFSCFGR, f.bank, f.scale == Scale32)
	r.Store(filterReg(f.bank, 0), f.fr1)
	r.Store(filterReg(f.bank, 1), f.fr2)
	modifyBit(r, regFMCFGR, f.bank, f.match == MatchList)
	modifyBit(r, regFAFIFOR, f.bank, fifo == FIFO1)
	modifyBit(r, regFWR, f.bank, true)
	clearBits(r, regFCTLR, fctlrFINIT)
}

// RemoveFilter deactivates a bank. Frames it used to accept are dropped
// unless another active bank matches them.
func (c *Controller) RemoveFilter(bank uint8) {
	checkBank(bank)
	if c.closed {
		return
	}
	r := c.filterRegs
	setBits(r, regFCTLR, fctlrFINIT)
	modifyBit(r, regFWR, bank, false)
	clearBits(r, regFCTLR, fctlrFINIT)
}

// Accepts reports whether the bank would pass fr, evaluated the way the
// controller does. Adapters without hardware filters use it in software.
// The zero Filter accepts nothing.
func (f Filter) Accepts(fr Frame) bool {
	if !f.built {
		return false
	}
	return bankMatches(f.scale == Scale32, f.match == MatchList, f.fr1, f.fr2, fr.mir())
}

// bankMatches evaluates one bank against a received identifier word.
func bankMatches(scale32, list bool, fr1, fr2, mir uint32) bool {
	w32 := mir &^ mirTXRQ
	w16 := (mir>>mirSTIDShift)<<5&0xFFE0 | (mir&mirRTR)<<3 | (mir&mirIDE)<<1
	switch {
	case scale32 && !list:
		return (w32^fr1)&fr2&^mirTXRQ == 0
	case scale32:
		return w32 == fr1&^mirTXRQ || w32 == fr2&^mirTXRQ
	case !list:
		for _, fr := range [2]uint32{fr1, fr2} {
			if (w16^fr)&(fr>>16)&0xFFF8 == 0 {
				return true
			}
		}
		return false
	}
	for _, e := range [4]uint32{fr1, fr1 >> 16, fr2, fr2 >> 16} {
		if w16 == e&0xFFF8 {
			return true
		}
	}
	return false
}
