// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"time"

	"github.com/relabs-tech/raspberrysensor"
)

// Mock generates smoothly changing readings without hardware.
type Mock struct {
	start time.Time
	now   func() time.Time
}

// NewMock creates a mock boundary.
func NewMock() *Mock {
	return &Mock{start: time.Now(), now: time.Now}
}

func (m *Mock) TriggerRead(_ context.Context, ch raspberrysensor.Channel) (raspberrysensor.Reading, error) {
	t := m.now()
	elapsed := t.Sub(m.start).Seconds()

	r := raspberrysensor.Reading{
		Channel:     ch,
		Time:        t,
		Temperature: 21 + 3*math.Sin(elapsed/60),
		Fields:      raspberrysensor.FieldTemperature,
	}
	switch ch {
	case raspberrysensor.ChannelSensor:
		r.Pressure = 101325 + 200*math.Cos(elapsed/300)
		r.Fields |= raspberrysensor.FieldPressure
	case raspberrysensor.ChannelHumidity:
		r.Humidity = 50 + 10*math.Sin(elapsed/90)
		r.Fields |= raspberrysensor.FieldHumidity
	}
	return r, nil
}
