package sensors

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/relabs-tech/raspberrysensor"
)

func TestMockChannels(t *testing.T) {
	c := qt.New(t)
	m := NewMock()
	m.now = func() time.Time { return m.start }

	r, err := m.TriggerRead(context.Background(), raspberrysensor.ChannelSensor)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Temperature, qt.CmpEquals(floatApprox), 21.0)
	c.Assert(r.Pressure, qt.CmpEquals(floatApprox), 101525.0)
	c.Assert(r.Has(raspberrysensor.FieldHumidity), qt.IsFalse)

	r, err = m.TriggerRead(context.Background(), raspberrysensor.ChannelHumidity)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Humidity, qt.CmpEquals(floatApprox), 50.0)
	c.Assert(r.Has(raspberrysensor.FieldPressure), qt.IsFalse)
}

func TestMockThroughGateways(t *testing.T) {
	c := qt.New(t)
	s := raspberrysensor.New(NewMock())
	defer s.Close()

	r, err := s.HumidityGateway().ReadContext(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(r.Humidity >= 40 && r.Humidity <= 60, qt.IsTrue)
}
