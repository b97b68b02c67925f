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

	log.Info("starting raspberrysensor console (MQTT subscriber)")
	if err := app.RunConsoleMQTT(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
