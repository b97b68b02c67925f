package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/raspberrysensor"
	"github.com/relabs-tech/raspberrysensor/internal/config"
	"github.com/relabs-tech/raspberrysensor/internal/env"
)

type outcome struct {
	ch  raspberrysensor.Channel
	r   *raspberrysensor.Reading
	err error
}

// ReadOnce triggers one read of each channel through the callback API and
// writes one JSON line per channel to w, a Sample or a Failure. It returns
// the failures joined, or ctx.Err() if a callback did not arrive in time.
func ReadOnce(ctx context.Context, s *raspberrysensor.Sensor, w io.Writer) error {
	results := make(chan outcome, 2)
	s.ReadSensor(func(err error, r *raspberrysensor.Reading) {
		results <- outcome{ch: raspberrysensor.ChannelSensor, r: r, err: err}
	})
	s.ReadHumidity(func(err error, r *raspberrysensor.Reading) {
		results <- outcome{ch: raspberrysensor.ChannelHumidity, r: r, err: err}
	})

	enc := json.NewEncoder(w)
	var errs []error
	for i := 0; i < 2; i++ {
		var o outcome
		select {
		case o = <-results:
		case <-ctx.Done():
			return ctx.Err()
		}
		if o.err != nil {
			errs = append(errs, o.err)
			if err := enc.Encode(env.FromError(o.ch, o.err, time.Now())); err != nil {
				return err
			}
			continue
		}
		if err := enc.Encode(env.FromReading(o.ch, *o.r)); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// RunSensorRead opens the configured driver, reads both channels once and
// prints the results.
func RunSensorRead(cfg *config.Config, w io.Writer) error {
	s, closeSensor, err := OpenSensor(cfg)
	if err != nil {
		return err
	}
	defer closeSensor()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Duration(cfg.ReadTimeout)*time.Millisecond)
	defer cancel()
	if err := ReadOnce(ctx, s, w); err != nil {
		return fmt.Errorf("sensor read: %w", err)
	}
	return nil
}
