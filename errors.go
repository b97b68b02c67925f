// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package raspberrysensor

import (
	"errors"
	"fmt"
)

// Kind classifies a hardware failure. It is channel agnostic.
type Kind int

const (
	KindUnknown Kind = iota
	KindHardwareUnavailable
	KindBusTimeout
	KindReadCorrupted
)

func (k Kind) String() string {
	switch k {
	case KindHardwareUnavailable:
		return "hardware_unavailable"
	case KindBusTimeout:
		return "bus_timeout"
	case KindReadCorrupted:
		return "read_corrupted"
	default:
		return "unknown"
	}
}

var (
	ErrHardwareUnavailable = errors.New("hardware unavailable")
	ErrBusTimeout          = errors.New("bus timeout")
	ErrReadCorrupted       = errors.New("read corrupted")
	ErrUnknown             = errors.New("unknown hardware error")

	// ErrBusClosed completes requests that reach a closed Bus.
	ErrBusClosed = fmt.Errorf("bus closed: %w", ErrHardwareUnavailable)
)

func (k Kind) sentinel() error {
	switch k {
	case KindHardwareUnavailable:
		return ErrHardwareUnavailable
	case KindBusTimeout:
		return ErrBusTimeout
	case KindReadCorrupted:
		return ErrReadCorrupted
	default:
		return ErrUnknown
	}
}

// KindOf returns the kind of err. Errors outside the taxonomy are KindUnknown.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrHardwareUnavailable):
		return KindHardwareUnavailable
	case errors.Is(err, ErrBusTimeout):
		return KindBusTimeout
	case errors.Is(err, ErrReadCorrupted):
		return KindReadCorrupted
	default:
		return KindUnknown
	}
}

// HardwareError is the error drivers return from TriggerRead.
type HardwareError struct {
	Channel Channel
	Op      string // e.g. "dht22 pin 4: ack"
	Kind    Kind
	Err     error // cause, may be nil
}

func (e *HardwareError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Channel, e.Op)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": " + e.Kind.sentinel().Error()
}

func (e *HardwareError) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *HardwareError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// NewHardwareError builds a HardwareError.
func NewHardwareError(ch Channel, kind Kind, op string, cause error) error {
	return &HardwareError{Channel: ch, Op: op, Kind: kind, Err: cause}
}
