package can

import (
	"sync"

	"ch32hal/errcode"
)

// owners records which peripherals and pins are held by a live Controller.
// Ownership is exclusive for the lifetime of the Controller and ends at Close.
var owners = struct {
	sync.Mutex
	periph map[string]bool
	pins   map[int]string
}{
	periph: map[string]bool{},
	pins:   map[int]string{},
}

// claim takes the peripheral and all pins atomically: either everything is
// claimed or nothing is.
func claim(periph string, pins ...int) error {
	owners.Lock()
	defer owners.Unlock()

	if owners.periph[periph] {
		return errcode.BusInUse
	}
	seen := make(map[int]bool, len(pins))
	for _, p := range pins {
		if _, held := owners.pins[p]; held || seen[p] {
			return errcode.PinInUse
		}
		seen[p] = true
	}
	owners.periph[periph] = true
	for _, p := range pins {
		owners.pins[p] = periph
	}
	return nil
}

func release(periph string, pins ...int) {
	owners.Lock()
	defer owners.Unlock()
	delete(owners.periph, periph)
	for _, p := range pins {
		if owners.pins[p] == periph {
			delete(owners.pins, p)
		}
	}
}

// Claimed reports whether the named peripheral is currently owned.
func Claimed(periph string) bool {
	owners.Lock()
	defer owners.Unlock()
	return owners.periph[periph]
}

// PinClaimed reports whether the pin is currently owned, and by whom.
func PinClaimed(pin int) (string, bool) {
	owners.Lock()
	defer owners.Unlock()
	p, ok := owners.pins[pin]
	return p, ok
}
