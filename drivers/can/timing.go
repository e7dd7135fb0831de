package can

import "ch32hal/x/mathx"

// BitTiming holds the nominal bit timing in hardware units (not register
// encodings). One bit is 1 (sync) + Seg1 + Seg2 time quanta.
type BitTiming struct {
	Prescaler uint16 // 1..1024
	Seg1      uint8  // 1..16, propagation + phase 1
	Seg2      uint8  // 1..8, phase 2
	SJW       uint8  // 1..4
}

// Hardware ranges and the accepted sample point band (permille).
const (
	minSeg1      = 1
	maxSeg1      = 16
	minSeg2      = 1
	maxSeg2      = 8
	maxPrescaler = 1024
	maxSJW       = 4

	minQuanta = 1 + minSeg1 + minSeg2
	maxQuanta = 1 + maxSeg1 + maxSeg2

	targetSamplePermille = 875
	minSamplePermille    = 750
	maxSamplePermille    = 875
)

// Quanta is the bit time in time quanta.
func (t BitTiming) Quanta() uint32 { return 1 + uint32(t.Seg1) + uint32(t.Seg2) }

// SamplePointPermille is the sample point rounded down to permille.
func (t BitTiming) SamplePointPermille() uint32 {
	if t.Quanta() == 0 {
		return 0
	}
	return 1000 * (1 + uint32(t.Seg1)) / t.Quanta()
}

// Bitrate returns the bit rate this timing yields from clockHz.
func (t BitTiming) Bitrate(clockHz uint32) uint32 {
	d := uint32(t.Prescaler) * t.Quanta()
	if d == 0 {
		return 0
	}
	return clockHz / d
}

// btimr encodes the timing fields (mode bits excluded).
func (t BitTiming) btimr() uint32 {
	return uint32(t.Prescaler-1)&btimrBRPMask |
		(uint32(t.Seg1-1)&btimrTS1Mask)<<btimrTS1Shift |
		(uint32(t.Seg2-1)&btimrTS2Mask)<<btimrTS2Shift |
		(uint32(t.SJW-1)&btimrSJWMask)<<btimrSJWShift
}

// CalcTimings derives bit timing for bitrate from a peripheral clock.
//
// The result satisfies clockHz == bitrate*Prescaler*Quanta() exactly with a
// sample point inside 75.0%..87.5%. Among all feasible quanta counts the one
// whose best split lands closest to 87.5% wins; ties go to fewer quanta.
// ok is false when no exact solution exists within the hardware ranges.
func CalcTimings(clockHz, bitrate uint32) (t BitTiming, ok bool) {
	var bestDist uint64
	forEachQuanta(clockHz, bitrate, func(c BitTiming, dist uint64) {
		// dist is scaled by the candidate's own quanta; compare dist/q exactly.
		if !ok || dist*uint64(t.Quanta()) < bestDist*uint64(c.Quanta()) {
			t, bestDist, ok = c, dist, true
		}
	})
	return t, ok
}

// Candidates lists the best split for every feasible quanta count, in
// ascending quanta order. CalcTimings picks one of these.
func Candidates(clockHz, bitrate uint32) []BitTiming {
	var out []BitTiming
	forEachQuanta(clockHz, bitrate, func(c BitTiming, _ uint64) { out = append(out, c) })
	return out
}

// forEachQuanta visits, in ascending quanta order, the best in-band split of
// every quanta count that divides clockHz/bitrate with a legal prescaler.
// dist is |1000*(1+seg1) - 875*q|, i.e. the sample point error times q.
func forEachQuanta(clockHz, bitrate uint32, visit func(BitTiming, uint64)) {
	if clockHz == 0 || bitrate == 0 || clockHz%bitrate != 0 {
		return
	}
	ratio := clockHz / bitrate
	for q := uint32(minQuanta); q <= maxQuanta; q++ {
		if ratio%q != 0 {
			continue
		}
		presc := ratio / q
		if presc < 1 || presc > maxPrescaler {
			continue
		}
		seg1, seg2, dist, found := bestSplit(q)
		if !found {
			continue
		}
		visit(BitTiming{
			Prescaler: uint16(presc),
			Seg1:      seg1,
			Seg2:      seg2,
			SJW:       mathx.Min(seg2, maxSJW),
		}, dist)
	}
}

// bestSplit picks seg1+seg2 == q-1 with the sample point inside the band and
// closest to the target.
func bestSplit(q uint32) (seg1, seg2 uint8, dist uint64, found bool) {
	lo := int64(minSamplePermille) * int64(q)
	hi := int64(maxSamplePermille) * int64(q)
	target := int64(targetSamplePermille) * int64(q)
	for s2 := uint32(minSeg2); s2 <= maxSeg2; s2++ {
		if s2+1+minSeg1 > q {
			break
		}
		s1 := q - 1 - s2
		if s1 < minSeg1 || s1 > maxSeg1 {
			continue
		}
		num := 1000 * (1 + int64(s1))
		if !mathx.Between(num, lo, hi) {
			continue
		}
		d := uint64(mathx.Abs(num - target))
		if !found || d < dist {
			seg1, seg2, dist, found = uint8(s1), uint8(s2), d, true
		}
	}
	return seg1, seg2, dist, found
}
