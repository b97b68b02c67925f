package raspberrysensor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/relabs-tech/raspberrysensor"
)

// stubBoundary answers every read from a per-channel table.
type stubBoundary struct {
	mu       sync.Mutex
	readings map[raspberrysensor.Channel]raspberrysensor.Reading
	errs     map[raspberrysensor.Channel]error
	calls    map[raspberrysensor.Channel]int
}

func newStub() *stubBoundary {
	return &stubBoundary{
		readings: map[raspberrysensor.Channel]raspberrysensor.Reading{},
		errs:     map[raspberrysensor.Channel]error{},
		calls:    map[raspberrysensor.Channel]int{},
	}
}

func (s *stubBoundary) TriggerRead(_ context.Context, ch raspberrysensor.Channel) (raspberrysensor.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[ch]++
	if err := s.errs[ch]; err != nil {
		return raspberrysensor.Reading{}, err
	}
	return s.readings[ch], nil
}

type outcome struct {
	err error
	r   *raspberrysensor.Reading
}

// collect returns a callback and a channel receiving each invocation.
func collect() (raspberrysensor.Callback, chan outcome) {
	out := make(chan outcome, 16)
	return func(err error, r *raspberrysensor.Reading) {
		out <- outcome{err: err, r: r}
	}, out
}

func waitOutcome(c *qt.C, out chan outcome) outcome {
	select {
	case o := <-out:
		return o
	case <-time.After(2 * time.Second):
		c.Fatalf("callback was not invoked")
	}
	return outcome{}
}

func TestReadSensorSuccess(t *testing.T) {
	c := qt.New(t)
	stub := newStub()
	stub.readings[raspberrysensor.ChannelSensor] = raspberrysensor.Reading{
		Temperature: 42,
		Fields:      raspberrysensor.FieldTemperature,
	}
	s := raspberrysensor.New(stub)

	cb, out := collect()
	s.ReadSensor(cb)
	o := waitOutcome(c, out)
	s.Close()

	c.Assert(o.err, qt.IsNil)
	c.Assert(o.r, qt.IsNotNil)
	c.Assert(*o.r, qt.DeepEquals, raspberrysensor.Reading{
		Temperature: 42,
		Fields:      raspberrysensor.FieldTemperature,
	})
	c.Assert(out, qt.HasLen, 0)
}

func TestReadHumiditySuccess(t *testing.T) {
	c := qt.New(t)
	stub := newStub()
	stub.readings[raspberrysensor.ChannelHumidity] = raspberrysensor.Reading{
		Humidity: 55.2,
		Fields:   raspberrysensor.FieldHumidity,
	}
	s := raspberrysensor.New(stub)

	cb, out := collect()
	s.ReadHumidity(cb)
	o := waitOutcome(c, out)
	s.Close()

	c.Assert(o.err, qt.IsNil)
	c.Assert(o.r.Humidity, qt.Equals, 55.2)
	c.Assert(o.r.Has(raspberrysensor.FieldHumidity), qt.IsTrue)
	c.Assert(o.r.Has(raspberrysensor.FieldTemperature), qt.IsFalse)
	c.Assert(stub.calls[raspberrysensor.ChannelHumidity], qt.Equals, 1)
	c.Assert(stub.calls[raspberrysensor.ChannelSensor], qt.Equals, 0)
}

func TestReadSensorTimeoutForwardedVerbatim(t *testing.T) {
	c := qt.New(t)
	stub := newStub()
	timeout := raspberrysensor.NewHardwareError(raspberrysensor.ChannelSensor, raspberrysensor.KindBusTimeout, "ack", nil)
	stub.errs[raspberrysensor.ChannelSensor] = timeout
	s := raspberrysensor.New(stub)

	cb, out := collect()
	s.ReadSensor(cb)
	o := waitOutcome(c, out)
	s.Close()

	c.Assert(o.r, qt.IsNil)
	c.Assert(o.err, qt.Equals, timeout)
	c.Assert(o.err, qt.ErrorIs, raspberrysensor.ErrBusTimeout)
	c.Assert(raspberrysensor.KindOf(o.err), qt.Equals, raspberrysensor.KindBusTimeout)
	c.Assert(out, qt.HasLen, 0)
}

func TestReadPlainErrorForwarded(t *testing.T) {
	c := qt.New(t)
	stub := newStub()
	cause := errors.New("i2c: nack")
	stub.errs[raspberrysensor.ChannelHumidity] = cause
	s := raspberrysensor.New(stub)
	defer s.Close()

	r, err := s.HumidityGateway().ReadContext(context.Background())
	c.Assert(r, qt.IsNil)
	c.Assert(err, qt.Equals, cause)
	c.Assert(raspberrysensor.KindOf(err), qt.Equals, raspberrysensor.KindUnknown)
}

func TestCallbackInvokedExactlyOnce(t *testing.T) {
	c := qt.New(t)
	stub := newStub()
	stub.errs[raspberrysensor.ChannelHumidity] = raspberrysensor.ErrReadCorrupted
	s := raspberrysensor.New(stub)
	defer s.Close()

	const n = 50
	var wg sync.WaitGroup
	var total, okCount, errCount atomic.Int32
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		s.ReadSensor(func(err error, r *raspberrysensor.Reading) {
			defer wg.Done()
			total.Add(1)
			if err == nil && r != nil {
				okCount.Add(1)
			}
		})
		s.ReadHumidity(func(err error, r *raspberrysensor.Reading) {
			defer wg.Done()
			total.Add(1)
			if err != nil && r == nil {
				errCount.Add(1)
			}
		})
	}
	wg.Wait()

	// Nothing further arrives once every read has completed.
	time.Sleep(20 * time.Millisecond)
	c.Assert(int(total.Load()), qt.Equals, 2*n)
	c.Assert(int(okCount.Load()), qt.Equals, n)
	c.Assert(int(errCount.Load()), qt.Equals, n)
	c.Assert(s.Pending(), qt.Equals, 0)
}

func TestCloseCompletesQueuedReadsOnce(t *testing.T) {
	c := qt.New(t)
	started := make(chan struct{})
	var once sync.Once
	s := raspberrysensor.New(raspberrysensor.BoundaryFunc(
		func(ctx context.Context, ch raspberrysensor.Channel) (raspberrysensor.Reading, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return raspberrysensor.Reading{}, ctx.Err()
		}))

	const n = 20
	var calls [n + 1]atomic.Int32
	var errs [n + 1]error
	s.ReadSensor(func(err error, _ *raspberrysensor.Reading) {
		errs[0] = err
		calls[0].Add(1)
	})
	<-started
	for i := 1; i <= n; i++ {
		i := i
		s.ReadHumidity(func(err error, _ *raspberrysensor.Reading) {
			errs[i] = err
			calls[i].Add(1)
		})
	}
	c.Assert(s.Pending(), qt.Equals, n)

	s.Close()

	// Close returns after the worker has completed every request.
	for i := range calls {
		c.Assert(int(calls[i].Load()), qt.Equals, 1, qt.Commentf("read %d", i))
	}
	c.Assert(errs[0], qt.ErrorIs, context.Canceled)
	for i := 1; i <= n; i++ {
		c.Assert(errs[i], qt.ErrorIs, raspberrysensor.ErrBusClosed)
		c.Assert(raspberrysensor.KindOf(errs[i]), qt.Equals, raspberrysensor.KindHardwareUnavailable)
	}
	c.Assert(s.Pending(), qt.Equals, 0)
}

func TestCloseInterruptsStuckRead(t *testing.T) {
	c := qt.New(t)
	s := raspberrysensor.New(raspberrysensor.BoundaryFunc(
		func(ctx context.Context, ch raspberrysensor.Channel) (raspberrysensor.Reading, error) {
			<-ctx.Done()
			return raspberrysensor.Reading{}, raspberrysensor.NewHardwareError(ch, raspberrysensor.KindBusTimeout, "wait", ctx.Err())
		}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.SensorGateway().ReadContext(ctx)
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		c.Fatalf("Close blocked on a read waiting for its context")
	}
}

func TestConcurrentChannelsDoNotInterfere(t *testing.T) {
	c := qt.New(t)
	b := raspberrysensor.BoundaryFunc(func(_ context.Context, ch raspberrysensor.Channel) (raspberrysensor.Reading, error) {
		if ch == raspberrysensor.ChannelSensor {
			return raspberrysensor.Reading{Channel: ch, Temperature: 21.5, Fields: raspberrysensor.FieldTemperature}, nil
		}
		return raspberrysensor.Reading{}, raspberrysensor.NewHardwareError(ch, raspberrysensor.KindHardwareUnavailable, "open", nil)
	})
	s := raspberrysensor.New(b)

	var wg sync.WaitGroup
	var mismatches atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go s.ReadSensor(func(err error, r *raspberrysensor.Reading) {
			defer wg.Done()
			if err != nil || r.Channel != raspberrysensor.ChannelSensor || r.Temperature != 21.5 {
				mismatches.Add(1)
			}
		})
		go s.ReadHumidity(func(err error, r *raspberrysensor.Reading) {
			defer wg.Done()
			if r != nil || !errors.Is(err, raspberrysensor.ErrHardwareUnavailable) {
				mismatches.Add(1)
			}
		})
	}
	wg.Wait()
	s.Close()

	c.Assert(int(mismatches.Load()), qt.Equals, 0)
}

func TestReadsCompleteInTriggerOrder(t *testing.T) {
	c := qt.New(t)
	release := make(chan struct{})
	var first atomic.Bool
	b := raspberrysensor.BoundaryFunc(func(_ context.Context, ch raspberrysensor.Channel) (raspberrysensor.Reading, error) {
		if first.CompareAndSwap(false, true) {
			<-release
		}
		return raspberrysensor.Reading{Channel: ch}, nil
	})
	s := raspberrysensor.New(b)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 3)
	record := func(name string) raspberrysensor.Callback {
		return func(error, *raspberrysensor.Reading) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			done <- struct{}{}
		}
	}

	s.ReadSensor(record("first"))
	s.ReadSensor(record("second"))
	s.ReadHumidity(record("third"))
	close(release)
	for i := 0; i < 3; i++ {
		<-done
	}
	s.Close()

	c.Assert(order, qt.DeepEquals, []string{"first", "second", "third"})
}

func TestReadIsNonBlocking(t *testing.T) {
	c := qt.New(t)
	release := make(chan struct{})
	b := raspberrysensor.BoundaryFunc(func(context.Context, raspberrysensor.Channel) (raspberrysensor.Reading, error) {
		<-release
		return raspberrysensor.Reading{}, nil
	})
	s := raspberrysensor.New(b)

	cb, out := collect()
	returned := make(chan struct{})
	go func() {
		s.ReadSensor(cb)
		s.ReadHumidity(cb)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		c.Fatalf("read blocked on the hardware boundary")
	}
	c.Assert(out, qt.HasLen, 0)

	close(release)
	waitOutcome(c, out)
	waitOutcome(c, out)
	s.Close()
}

func TestReadContextDeadline(t *testing.T) {
	c := qt.New(t)
	release := make(chan struct{})
	b := raspberrysensor.BoundaryFunc(func(context.Context, raspberrysensor.Channel) (raspberrysensor.Reading, error) {
		<-release
		return raspberrysensor.Reading{}, nil
	})
	s := raspberrysensor.New(b)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r, err := s.SensorGateway().ReadContext(ctx)
	c.Assert(r, qt.IsNil)
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)

	close(release)
	s.Close()
}

func TestReadAsyncYieldsOneResult(t *testing.T) {
	c := qt.New(t)
	stub := newStub()
	stub.readings[raspberrysensor.ChannelSensor] = raspberrysensor.Reading{Pressure: 101325, Fields: raspberrysensor.FieldPressure}
	s := raspberrysensor.New(stub)
	defer s.Close()

	var results []raspberrysensor.Result
	for res := range s.SensorGateway().ReadAsync() {
		results = append(results, res)
	}
	c.Assert(results, qt.HasLen, 1)
	c.Assert(results[0].Err, qt.IsNil)
	c.Assert(results[0].Reading.Pressure, qt.Equals, 101325.0)
}

func TestBoundaryPanicBecomesUnknown(t *testing.T) {
	c := qt.New(t)
	b := raspberrysensor.BoundaryFunc(func(context.Context, raspberrysensor.Channel) (raspberrysensor.Reading, error) {
		panic("register map exploded")
	})
	s := raspberrysensor.New(b)
	defer s.Close()

	r, err := s.SensorGateway().ReadContext(context.Background())
	c.Assert(r, qt.IsNil)
	c.Assert(err, qt.ErrorIs, raspberrysensor.ErrUnknown)
	c.Assert(err, qt.ErrorMatches, `sensor: trigger read: panic: register map exploded`)
}

func TestReadAfterClose(t *testing.T) {
	c := qt.New(t)
	s := raspberrysensor.New(newStub())
	s.Close()

	cb, out := collect()
	s.ReadHumidity(cb)
	o := waitOutcome(c, out)
	c.Assert(o.r, qt.IsNil)
	c.Assert(o.err, qt.Equals, raspberrysensor.ErrBusClosed)
	c.Assert(raspberrysensor.KindOf(o.err), qt.Equals, raspberrysensor.KindHardwareUnavailable)
}

func TestNilCallbackPanics(t *testing.T) {
	c := qt.New(t)
	s := raspberrysensor.New(newStub())
	defer s.Close()

	c.Assert(func() { s.ReadSensor(nil) }, qt.PanicMatches, `raspberrysensor: nil callback`)
}

func TestGatewayLookup(t *testing.T) {
	c := qt.New(t)
	s := raspberrysensor.New(newStub())
	defer s.Close()

	c.Assert(s.Gateway(raspberrysensor.ChannelSensor), qt.Equals, s.SensorGateway())
	c.Assert(s.Gateway(raspberrysensor.ChannelHumidity).Channel(), qt.Equals, raspberrysensor.ChannelHumidity)
	c.Assert(s.Gateway("pressure"), qt.IsNil)
}
