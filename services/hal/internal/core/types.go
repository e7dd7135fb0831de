package core

import (
	"context"

	"ch32hal/errcode"
	"ch32hal/types"
)

// ---- Capability & device model ----

// CapAddr is the public address of one capability:
// hal/cap/<domain>/<kind>/<name>/...
type CapAddr struct {
	Domain string
	Kind   types.Kind
	Name   string
}

type CapabilitySpec struct {
	Domain string
	Kind   types.Kind
	Name   string
	Info   types.Info
}

// EnqueueResult is a device's immediate answer to a control. Controls never
// block: work that cannot start now reports errcode.Busy.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
	Value any // optional reply payload; replaces the plain ok reply
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	Control(cap CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error
}

// ---- Device → HAL telemetry ----
// By default an Event is a value update published retained to .../value.
// IsEvent (or a non-empty EventTag) publishes to .../event[/tag] instead.
// A non-empty Err publishes only .../status=degraded.

type Event struct {
	Addr     CapAddr
	Payload  any
	TSms     int64
	Err      string
	IsEvent  bool
	EventTag string
}

type EventEmitter interface {
	// Emit must not block; false means the event was dropped.
	Emit(ev Event) bool
}

// ---- Builders ----

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // set by the HAL
}

type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
