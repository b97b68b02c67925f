// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/raspberrysensor/internal/app"
	"github.com/relabs-tech/raspberrysensor/internal/config"
)

func main() {
	configPath := flag.String("config", "sensor_config.txt", "path to the KEY=VALUE or YAML config file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()
	if err := app.SetupLogging(cfg.LogLevel); err != nil {
		log.Fatalf("%v", err)
	}

	log.Info("starting raspberrysensor web server (MQTT subscriber)")
	log.Info("Note: readings require the producer to be running (sudo ./sensor_producer)")

	if err := app.RunWeb(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
