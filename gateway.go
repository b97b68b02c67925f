// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package raspberrysensor

import "context"

// Gateway exposes one channel of a Bus as an asynchronous read. It holds no
// state of its own; failures from the boundary are forwarded verbatim.
type Gateway struct {
	bus *Bus
	ch  Channel
}

// NewGateway binds ch on bus.
func NewGateway(bus *Bus, ch Channel) *Gateway {
	return &Gateway{bus: bus, ch: ch}
}

// Channel returns the channel this gateway reads.
func (g *Gateway) Channel() Channel { return g.ch }

// Read triggers one read and returns immediately. cb runs exactly once on
// the bus worker goroutine. It must not block for long: the next read on
// the bus waits for it.
func (g *Gateway) Read(cb Callback) {
	if cb == nil {
		panic("raspberrysensor: nil callback")
	}
	g.bus.Submit(g.ch, func(r *Reading, err error) {
		cb(err, r)
	})
}

// ReadAsync triggers one read. The returned channel yields exactly one
// Result and is then closed.
func (g *Gateway) ReadAsync() <-chan Result {
	res := make(chan Result, 1)
	g.bus.Submit(g.ch, func(r *Reading, err error) {
		res <- Result{Reading: r, Err: err}
		close(res)
	})
	return res
}

// ReadContext triggers one read and waits for it or for ctx. Giving up on
// ctx does not abort the hardware read; its outcome is discarded.
func (g *Gateway) ReadContext(ctx context.Context) (*Reading, error) {
	res := g.ReadAsync()
	select {
	case r := <-res:
		return r.Reading, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sensor is the pair of gateways over one device.
type Sensor struct {
	bus      *Bus
	sensor   *Gateway
	humidity *Gateway
}

// New builds both gateways over a fresh Bus serving b.
func New(b Boundary) *Sensor {
	bus := NewBus(b)
	return &Sensor{
		bus:      bus,
		sensor:   NewGateway(bus, ChannelSensor),
		humidity: NewGateway(bus, ChannelHumidity),
	}
}

// ReadSensor triggers one read of the primary sensor channel.
func (s *Sensor) ReadSensor(cb Callback) { s.sensor.Read(cb) }

// ReadHumidity triggers one read of the humidity channel.
func (s *Sensor) ReadHumidity(cb Callback) { s.humidity.Read(cb) }

// SensorGateway returns the gateway for ChannelSensor.
func (s *Sensor) SensorGateway() *Gateway { return s.sensor }

// HumidityGateway returns the gateway for ChannelHumidity.
func (s *Sensor) HumidityGateway() *Gateway { return s.humidity }

// Gateway returns the gateway for ch, or nil for an unknown channel.
func (s *Sensor) Gateway(ch Channel) *Gateway {
	switch ch {
	case ChannelSensor:
		return s.sensor
	case ChannelHumidity:
		return s.humidity
	}
	return nil
}

// Pending returns the number of reads waiting for the bus.
func (s *Sensor) Pending() int { return s.bus.Pending() }

// Close shuts the bus down. See Bus.Close.
func (s *Sensor) Close() { s.bus.Close() }
