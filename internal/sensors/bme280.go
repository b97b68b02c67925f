// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"

	"github.com/relabs-tech/raspberrysensor"
)

// BME280Opts selects how the BME280 (or BMP280) is wired.
type BME280Opts struct {
	Interface    string // "i2c" or "spi"
	I2CBus       string // i2creg name, e.g. "1"
	I2CAddr      uint16 // 0x76 or 0x77
	SPIDevice    string // spireg name, e.g. "/dev/spidev0.0"
	Oversampling int    // 1, 2, 4, 8 or 16
}

// envSenser is the part of *bmxx80.Dev the driver uses.
type envSenser interface {
	Sense(e *physic.Env) error
	Halt() error
	String() string
}

// BME280 reads a Bosch BME280/BMP280 through periph's bmxx80 driver.
// The sensor channel reports temperature, pressure and humidity; the
// humidity channel reports humidity and temperature. A BMP280 has no
// humidity element, so humidity reads fail with ErrHardwareUnavailable.
type BME280 struct {
	name     string
	dev      envSenser
	bus      io.Closer
	humidity bool
	now      func() time.Time
}

// NewBME280 opens the device described by opts.
func NewBME280(opts BME280Opts) (*BME280, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("bme280: %w: %w", raspberrysensor.ErrHardwareUnavailable, err)
	}

	ovs := oversampling(opts.Oversampling)
	bopts := bmxx80.Opts{Temperature: ovs, Pressure: ovs, Humidity: ovs}

	var (
		dev  *bmxx80.Dev
		bus  io.Closer
		name string
	)
	switch opts.Interface {
	case "spi":
		name = fmt.Sprintf("bme280 spi %s", opts.SPIDevice)
		port, err := spireg.Open(opts.SPIDevice)
		if err != nil {
			return nil, fmt.Errorf("%s: open: %w: %w", name, raspberrysensor.ErrHardwareUnavailable, err)
		}
		if dev, err = bmxx80.NewSPI(port, &bopts); err != nil {
			port.Close()
			return nil, fmt.Errorf("%s: init: %w: %w", name, raspberrysensor.ErrHardwareUnavailable, err)
		}
		bus = port
	default:
		name = fmt.Sprintf("bme280 i2c %s@0x%02X", opts.I2CBus, opts.I2CAddr)
		b, err := i2creg.Open(opts.I2CBus)
		if err != nil {
			return nil, fmt.Errorf("%s: open: %w: %w", name, raspberrysensor.ErrHardwareUnavailable, err)
		}
		if dev, err = bmxx80.NewI2C(b, opts.I2CAddr, &bopts); err != nil {
			b.Close()
			return nil, fmt.Errorf("%s: init: %w: %w", name, raspberrysensor.ErrHardwareUnavailable, err)
		}
		bus = b
	}

	log.Debugf("%s: initialized %s", name, dev)
	return newBME280(name, dev, bus), nil
}

func newBME280(name string, dev envSenser, bus io.Closer) *BME280 {
	return &BME280{
		name:     name,
		dev:      dev,
		bus:      bus,
		humidity: strings.HasPrefix(dev.String(), "BME280"),
		now:      time.Now,
	}
}

func oversampling(n int) bmxx80.Oversampling {
	switch n {
	case 1:
		return bmxx80.O1x
	case 2:
		return bmxx80.O2x
	case 8:
		return bmxx80.O8x
	case 16:
		return bmxx80.O16x
	default:
		return bmxx80.O4x
	}
}

// TriggerRead performs one forced measurement.
func (b *BME280) TriggerRead(_ context.Context, ch raspberrysensor.Channel) (raspberrysensor.Reading, error) {
	if ch == raspberrysensor.ChannelHumidity && !b.humidity {
		return raspberrysensor.Reading{}, raspberrysensor.NewHardwareError(ch, raspberrysensor.KindHardwareUnavailable,
			b.name+": no humidity element", nil)
	}

	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		kind := raspberrysensor.KindUnknown
		if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			kind = raspberrysensor.KindBusTimeout
		}
		return raspberrysensor.Reading{}, raspberrysensor.NewHardwareError(ch, kind, b.name+": sense", err)
	}

	r := raspberrysensor.Reading{
		Channel:     ch,
		Time:        b.now(),
		Temperature: e.Temperature.Celsius(),
		Fields:      raspberrysensor.FieldTemperature,
	}
	if b.humidity {
		r.Humidity = float64(e.Humidity) / float64(physic.PercentRH)
		r.Fields |= raspberrysensor.FieldHumidity
	}
	if ch == raspberrysensor.ChannelSensor {
		r.Pressure = float64(e.Pressure) / float64(physic.Pascal)
		r.Fields |= raspberrysensor.FieldPressure
	}
	return r, nil
}

// Close halts the device and releases its bus.
func (b *BME280) Close() error {
	err := b.dev.Halt()
	if cerr := b.bus.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *BME280) String() string { return b.name }
