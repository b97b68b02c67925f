package env

import (
	"time"

	"github.com/relabs-tech/raspberrysensor"
)

// Sample is a single environmental measurement as published on MQTT.
// Measurements the device did not report are omitted.
type Sample struct {
	Channel string `json:"channel"` // "sensor" or "humidity"
	Time    string `json:"time"`    // RFC3339

	Temperature *float64 `json:"temp_c,omitempty"`      // °C
	Pressure    *float64 `json:"pressure_pa,omitempty"` // Pa
	Humidity    *float64 `json:"humidity_rh,omitempty"` // %RH
}

// Failure is published when a read fails.
type Failure struct {
	Channel string `json:"channel"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
	Time    string `json:"time"`
}

// FromReading converts a reading; the channel falls back to ch when the
// driver left it empty.
func FromReading(ch raspberrysensor.Channel, r raspberrysensor.Reading) Sample {
	if r.Channel != "" {
		ch = r.Channel
	}
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	s := Sample{
		Channel: string(ch),
		Time:    t.UTC().Format(time.RFC3339),
	}
	if r.Has(raspberrysensor.FieldTemperature) {
		v := r.Temperature
		s.Temperature = &v
	}
	if r.Has(raspberrysensor.FieldPressure) {
		v := r.Pressure
		s.Pressure = &v
	}
	if r.Has(raspberrysensor.FieldHumidity) {
		v := r.Humidity
		s.Humidity = &v
	}
	return s
}

// FromError describes a failed read of ch.
func FromError(ch raspberrysensor.Channel, err error, at time.Time) Failure {
	return Failure{
		Channel: string(ch),
		Kind:    raspberrysensor.KindOf(err).String(),
		Error:   err.Error(),
		Time:    at.UTC().Format(time.RFC3339),
	}
}
