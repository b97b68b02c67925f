// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/relabs-tech/raspberrysensor"
)

// Single-wire timing of the AM2302/DHT22.
const (
	dhtMinInterval  = 2 * time.Second
	dhtIdleTimeout  = 250 * time.Microsecond
	dhtStartLow     = 1100 * time.Microsecond
	dhtPresence     = 50 * time.Microsecond
	dhtAckTimeout   = 100 * time.Microsecond
	dhtSyncTimeout  = 70 * time.Microsecond
	dhtDataTimeout  = 100 * time.Microsecond
	dhtOneThreshold = 40 * time.Microsecond // 0 is ~27µs high, 1 is ~70µs
	dhtFrameBits    = 40
)

// dhtPin is the part of gpio.PinIO the driver uses.
type dhtPin interface {
	Name() string
	Out(l gpio.Level) error
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
}

// DHT22 bit-bangs an AM2302/DHT22 on one GPIO pin. A frame carries both
// humidity and temperature; the sensor channel reports temperature and the
// humidity channel reports both.
type DHT22 struct {
	name        string
	pin         dhtPin
	minInterval time.Duration
	lastRead    time.Time
	now         func() time.Time
}

// NewDHT22 looks the pin up by name, e.g. "4" or "GPIO4".
func NewDHT22(pinName string) (*DHT22, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("dht22: %w: %w", raspberrysensor.ErrHardwareUnavailable, err)
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("dht22: pin %q not found: %w", pinName, raspberrysensor.ErrHardwareUnavailable)
	}
	log.Debugf("dht22: using pin %s", p)
	return newDHT22(p), nil
}

func newDHT22(p dhtPin) *DHT22 {
	return &DHT22{
		name:        fmt.Sprintf("dht22 pin %s", p.Name()),
		pin:         p,
		minInterval: dhtMinInterval,
		now:         time.Now,
	}
}

// TriggerRead reads one frame. Reads closer together than the sensor allows
// wait for the remaining interval first.
func (d *DHT22) TriggerRead(ctx context.Context, ch raspberrysensor.Channel) (raspberrysensor.Reading, error) {
	if wait := d.minInterval - time.Since(d.lastRead); !d.lastRead.IsZero() && wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return raspberrysensor.Reading{}, raspberrysensor.NewHardwareError(ch, raspberrysensor.KindUnknown, d.name, ctx.Err())
		}
	}
	d.lastRead = time.Now()

	frame, err := d.readFrame(ch)
	if err != nil {
		return raspberrysensor.Reading{}, err
	}

	humidity, temperature, err := decodeFrame(frame)
	if err != nil {
		return raspberrysensor.Reading{}, raspberrysensor.NewHardwareError(ch, raspberrysensor.KindReadCorrupted, d.name, err)
	}

	r := raspberrysensor.Reading{
		Channel:     ch,
		Time:        d.now(),
		Temperature: temperature,
		Fields:      raspberrysensor.FieldTemperature,
	}
	if ch == raspberrysensor.ChannelHumidity {
		r.Humidity = humidity
		r.Fields |= raspberrysensor.FieldHumidity
	}
	return r, nil
}

// readFrame runs the start handshake and samples 40 bits.
func (d *DHT22) readFrame(ch raspberrysensor.Channel) ([5]byte, error) {
	fail := func(kind raspberrysensor.Kind, op string, err error) ([5]byte, error) {
		return [5]byte{}, raspberrysensor.NewHardwareError(ch, kind, d.name+": "+op, err)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := d.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fail(raspberrysensor.KindHardwareUnavailable, "input", err)
	}
	if _, ok := d.waitWhile(gpio.Low, dhtIdleTimeout); !ok {
		return fail(raspberrysensor.KindBusTimeout, "bus idle", nil)
	}

	if err := d.pin.Out(gpio.Low); err != nil {
		return fail(raspberrysensor.KindHardwareUnavailable, "start", err)
	}
	time.Sleep(dhtStartLow)
	if err := d.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fail(raspberrysensor.KindHardwareUnavailable, "release", err)
	}

	if _, ok := d.waitWhile(gpio.High, dhtPresence); !ok {
		return fail(raspberrysensor.KindHardwareUnavailable, "not present", nil)
	}
	if _, ok := d.waitWhile(gpio.Low, dhtAckTimeout); !ok {
		return fail(raspberrysensor.KindBusTimeout, "ack too long", nil)
	}
	if _, ok := d.waitWhile(gpio.High, dhtAckTimeout); !ok {
		return fail(raspberrysensor.KindBusTimeout, "ack too long", nil)
	}

	var widths [dhtFrameBits]time.Duration
	for i := range widths {
		if _, ok := d.waitWhile(gpio.Low, dhtSyncTimeout); !ok {
			return fail(raspberrysensor.KindBusTimeout, fmt.Sprintf("sync bit %d", i), nil)
		}
		w, ok := d.waitWhile(gpio.High, dhtDataTimeout)
		if !ok {
			return fail(raspberrysensor.KindBusTimeout, fmt.Sprintf("data bit %d", i), nil)
		}
		widths[i] = w
	}
	return pulsesToFrame(widths), nil
}

// waitWhile spins while the pin reads level, up to timeout. It returns how
// long the level was held.
func (d *DHT22) waitWhile(level gpio.Level, timeout time.Duration) (time.Duration, bool) {
	start := time.Now()
	for d.pin.Read() == level {
		if el := time.Since(start); el > timeout {
			return el, false
		}
	}
	return time.Since(start), true
}

// pulsesToFrame turns high-pulse widths, MSB first, into the 5 frame bytes.
func pulsesToFrame(widths [dhtFrameBits]time.Duration) [5]byte {
	var frame [5]byte
	for i, w := range widths {
		if w > dhtOneThreshold {
			frame[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return frame
}

// decodeFrame checks the checksum and scales both values. Humidity is in
// %RH, temperature in °C; bit 15 of the temperature word is its sign.
func decodeFrame(f [5]byte) (humidity, temperature float64, err error) {
	if sum := f[0] + f[1] + f[2] + f[3]; sum != f[4] {
		return 0, 0, fmt.Errorf("checksum 0x%02X != 0x%02X", f[4], sum)
	}
	rawH := uint16(f[0])<<8 | uint16(f[1])
	rawT := uint16(f[2])<<8 | uint16(f[3])

	humidity = float64(rawH) / 10
	temperature = float64(rawT&0x7FFF) / 10
	if rawT&0x8000 != 0 {
		temperature = -temperature
	}
	return humidity, temperature, nil
}

func (d *DHT22) String() string { return d.name }
