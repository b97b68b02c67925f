package app

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/raspberrysensor"
	"github.com/relabs-tech/raspberrysensor/internal/config"
	"github.com/relabs-tech/raspberrysensor/internal/sensors"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewBoundary constructs the hardware boundary selected by SENSOR_DRIVER.
// The returned closer releases the device once the bus has been closed.
func NewBoundary(cfg *config.Config) (raspberrysensor.Boundary, io.Closer, error) {
	switch cfg.SensorDriver {
	case "bme280":
		dev, err := sensors.NewBME280(sensors.BME280Opts{
			Interface:    cfg.BME280Interface,
			I2CBus:       cfg.BME280I2CBus,
			I2CAddr:      cfg.BME280I2CAddr,
			SPIDevice:    cfg.BME280SPIDevice,
			Oversampling: cfg.BME280Oversampling,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Infof("sensor: using %s", dev)
		return dev, dev, nil
	case "dht22":
		dev, err := sensors.NewDHT22(cfg.DHTPin)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("sensor: using %s", dev)
		return dev, nopCloser{}, nil
	case "mock":
		log.Info("sensor: using mock driver")
		return sensors.NewMock(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown sensor driver %q", cfg.SensorDriver)
	}
}

// OpenSensor builds both gateways over the configured driver. Close the
// returned function after the last read.
func OpenSensor(cfg *config.Config) (*raspberrysensor.Sensor, func(), error) {
	b, closer, err := NewBoundary(cfg)
	if err != nil {
		return nil, nil, err
	}
	s := raspberrysensor.New(b)
	return s, func() {
		s.Close()
		if err := closer.Close(); err != nil {
			log.Warnf("sensor: close: %v", err)
		}
	}, nil
}
