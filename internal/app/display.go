package app

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/raspberrysensor"
	"github.com/relabs-tech/raspberrysensor/internal/config"
	"github.com/relabs-tech/raspberrysensor/internal/env"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// displayLines lays out the latest readings for a 128x64 panel. Each line
// fits 18 characters of Face7x13.
func displayLines(sensor, humidity *env.Sample, failure *env.Failure) []string {
	if sensor == nil && humidity == nil {
		return []string{"Raspberry Sensor", "Waiting..."}
	}

	var lines []string
	switch {
	case sensor != nil && sensor.Temperature != nil:
		lines = append(lines, fmt.Sprintf("T: %6.1f C", *sensor.Temperature))
	case humidity != nil && humidity.Temperature != nil:
		lines = append(lines, fmt.Sprintf("T: %6.1f C", *humidity.Temperature))
	}
	if sensor != nil && sensor.Pressure != nil {
		lines = append(lines, fmt.Sprintf("P: %6.1f hPa", *sensor.Pressure/100))
	}
	if humidity != nil && humidity.Humidity != nil {
		lines = append(lines, fmt.Sprintf("H: %6.1f %%RH", *humidity.Humidity))
	}
	if failure != nil && failure.Time >= newest(sensor, humidity) {
		lines = append(lines, "ERR "+failure.Kind)
	}
	return lines
}

// newest returns the later RFC3339 UTC timestamp of the two samples.
func newest(a, b *env.Sample) string {
	var t string
	for _, s := range []*env.Sample{a, b} {
		if s != nil && s.Time > t {
			t = s.Time
		}
	}
	return t
}

// renderLines draws up to four lines into a blank frame.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i >= displayHeight/lineHeight {
			break
		}
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

// addrBus sends every transaction to addr. The ssd1306 driver always talks
// to 0x3C; panels strapped to 0x3D need the rewrite.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

func (s *readingStore) displayFrame() *image1bit.VerticalLSB {
	var sensor, humidity *env.Sample
	if v, ok := s.sample(string(raspberrysensor.ChannelSensor)); ok {
		sensor = &v
	}
	if v, ok := s.sample(string(raspberrysensor.ChannelHumidity)); ok {
		humidity = &v
	}
	var failure *env.Failure
	if f, ok := s.lastFailure(); ok {
		failure = &f
	}
	return renderLines(displayLines(sensor, humidity, failure))
}

// RunDisplay shows the latest readings on an SSD1306 panel.
func RunDisplay(cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", cfg.DisplayI2CBus, err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(&addrBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Infof("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	store := newReadingStore()
	if err := dev.Draw(dev.Bounds(), store.displayFrame(), image.Point{}); err != nil {
		log.Warnf("display: error showing splash: %v", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	for _, topic := range []string{cfg.TopicSensor, cfg.TopicHumidity} {
		if err := subscribe(client, topic, store.handleMessage); err != nil {
			return err
		}
	}
	if cfg.TopicErrors != "" {
		if err := subscribe(client, cfg.TopicErrors, store.handleFailure); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("display: starting update loop")
	refreshDisplay(ctx, dev, store, time.Duration(cfg.DisplayUpdateInterval)*time.Millisecond)
	log.Info("display: shutting down")
	return nil
}

// frameDrawer is the part of *ssd1306.Dev the update loop uses.
type frameDrawer interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// refreshDisplay redraws the panel every interval until ctx is done.
func refreshDisplay(ctx context.Context, dev frameDrawer, store *readingStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := dev.Draw(dev.Bounds(), store.displayFrame(), image.Point{}); err != nil {
				log.Errorf("display: error updating display: %v", err)
			}
		}
	}
}
