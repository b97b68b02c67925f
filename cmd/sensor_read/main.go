// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// sensor_read triggers one read of both channels and prints them as JSON
// lines. It exits 1 if either read fails.
package main

import (
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/raspberrysensor/internal/app"
	"github.com/relabs-tech/raspberrysensor/internal/config"
)

func main() {
	configPath := flag.String("config", "sensor_config.txt", "path to the KEY=VALUE or YAML config file")
	driver := flag.String("driver", "", "override SENSOR_DRIVER (bme280, dht22, mock)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *driver != "" {
		cfg.SensorDriver = *driver
	}
	if err := app.SetupLogging(cfg.LogLevel); err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.RunSensorRead(cfg, os.Stdout); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
