package core

import (
	"ch32hal/bus"
	"ch32hal/types"
)

func T(tokens ...bus.Token) bus.Topic { return bus.T(tokens...) }

func TopicConfigHAL() bus.Topic { return T("config", "hal") }
func TopicHALState() bus.Topic  { return T("hal", "state") }

// hal/cap/<domain>/<kind>/<name>/...
func capBase(a CapAddr) bus.Topic { return T("hal", "cap", a.Domain, string(a.Kind), a.Name) }

func CapInfo(a CapAddr) bus.Topic   { return capBase(a).Append("info") }
func CapStatus(a CapAddr) bus.Topic { return capBase(a).Append("status") }
func CapValue(a CapAddr) bus.Topic  { return capBase(a).Append("value") }
func CapEvent(a CapAddr, tag string) bus.Topic {
	if tag == "" {
		return capBase(a).Append("event")
	}
	return capBase(a).Append("event", tag)
}

// hal/cap/<domain>/<kind>/<name>/control/<verb>
func CapCtrl(a CapAddr, verb string) bus.Topic { return capBase(a).Append("control", verb) }

// hal/cap/+/+/+/control/+
func ctrlWildcard() bus.Topic { return T("hal", "cap", "+", "+", "+", "control", "+") }

// parseCtrl splits a control topic into its address and verb.
func parseCtrl(t bus.Topic) (CapAddr, string, bool) {
	if t.Len() != 7 {
		return CapAddr{}, "", false
	}
	d, ok1 := t.At(2).(string)
	k, ok2 := t.At(3).(string)
	n, ok3 := t.At(4).(string)
	v, ok4 := t.At(6).(string)
	if !(ok1 && ok2 && ok3 && ok4) {
		return CapAddr{}, "", false
	}
	return CapAddr{Domain: d, Kind: types.Kind(k), Name: n}, v, true
}
