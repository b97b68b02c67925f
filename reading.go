// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package raspberrysensor exposes two asynchronous measurements, a primary
// sensor read and a humidity read, over an injected hardware boundary.
//
// Both gateways share one Bus, which serializes access to the physical
// device in trigger order. Every triggered read completes exactly once,
// either with a Reading or with the error the boundary reported.
package raspberrysensor

import "time"

// Channel is a distinct physical measurement sharing the same bus.
type Channel string

const (
	ChannelSensor   Channel = "sensor"
	ChannelHumidity Channel = "humidity"
)

// Field marks which measurements a Reading carries.
type Field uint8

const (
	FieldTemperature Field = 1 << iota
	FieldPressure
	FieldHumidity
)

// Reading is one measurement as produced by the hardware boundary.
// Values are in the units the device reports; gateways never convert them.
type Reading struct {
	Channel Channel
	Time    time.Time

	Temperature float64 // °C
	Pressure    float64 // Pa
	Humidity    float64 // %RH

	Fields Field
}

// Has reports whether the boundary filled f.
func (r Reading) Has(f Field) bool {
	return r.Fields&f == f
}

// Callback receives the outcome of one read. Exactly one of err and r is
// non-nil.
type Callback func(err error, r *Reading)

// Result is the future form of a Callback invocation.
type Result struct {
	Reading *Reading
	Err     error
}
