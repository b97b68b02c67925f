package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/raspberrysensor/internal/config"
	"github.com/relabs-tech/raspberrysensor/internal/env"
)

// formatSample renders one line per sample, skipping fields the device did
// not report.
func formatSample(s env.Sample) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%-8s] %s", strings.ToUpper(s.Channel), s.Time)
	if s.Temperature != nil {
		fmt.Fprintf(&b, "  T=%6.2f°C", *s.Temperature)
	}
	if s.Pressure != nil {
		fmt.Fprintf(&b, "  P=%8.2fhPa", *s.Pressure/100)
	}
	if s.Humidity != nil {
		fmt.Fprintf(&b, "  H=%5.1f%%RH", *s.Humidity)
	}
	return b.String()
}

func formatFailure(f env.Failure) string {
	return fmt.Sprintf("[ERROR   ] %s  %s  kind=%s  %s", f.Time, f.Channel, f.Kind, f.Error)
}

// consolePrinter writes every received message to out.
type consolePrinter struct {
	out io.Writer
}

func (p consolePrinter) onSample(_ mqtt.Client, msg mqtt.Message) {
	var s env.Sample
	if err := json.Unmarshal(msg.Payload(), &s); err != nil {
		log.Warnf("console: %s unmarshal error: %v", msg.Topic(), err)
		return
	}
	fmt.Fprintln(p.out, formatSample(s))
}

func (p consolePrinter) onFailure(_ mqtt.Client, msg mqtt.Message) {
	var f env.Failure
	if err := json.Unmarshal(msg.Payload(), &f); err != nil {
		log.Warnf("console: %s unmarshal error: %v", msg.Topic(), err)
		return
	}
	fmt.Fprintln(p.out, formatFailure(f))
}

// RunConsoleMQTT prints everything the producer publishes until SIGINT/SIGTERM.
func RunConsoleMQTT(cfg *config.Config) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	p := consolePrinter{out: os.Stdout}
	if err := subscribe(client, cfg.TopicSensor, p.onSample); err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicHumidity, p.onSample); err != nil {
		return err
	}
	if cfg.TopicErrors != "" {
		if err := subscribe(client, cfg.TopicErrors, p.onFailure); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("console: shutting down")
	return nil
}
