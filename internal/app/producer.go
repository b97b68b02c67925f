// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/raspberrysensor"
	"github.com/relabs-tech/raspberrysensor/internal/config"
	"github.com/relabs-tech/raspberrysensor/internal/env"
)

// producer triggers both channels on every tick and publishes the outcomes.
type producer struct {
	sensor  *raspberrysensor.Sensor
	pub     publisher
	metrics *metrics
	timeout time.Duration
	topics  map[raspberrysensor.Channel]string
	errors  string
}

func newProducer(cfg *config.Config, s *raspberrysensor.Sensor, pub publisher, m *metrics) *producer {
	return &producer{
		sensor:  s,
		pub:     pub,
		metrics: m,
		timeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
		topics: map[raspberrysensor.Channel]string{
			raspberrysensor.ChannelSensor:   cfg.TopicSensor,
			raspberrysensor.ChannelHumidity: cfg.TopicHumidity,
		},
		errors: cfg.TopicErrors,
	}
}

type pendingRead struct {
	ch      raspberrysensor.Channel
	started time.Time
	res     <-chan raspberrysensor.Result
}

// tick triggers one read per channel and handles each result. Reads still
// queued from an earlier tick mean the hardware is slower than the
// interval; the tick is skipped rather than growing the queue.
func (p *producer) tick(ctx context.Context) {
	if n := p.sensor.Pending(); n > 0 {
		log.Warnf("producer: %d reads still queued, skipping tick", n)
		return
	}

	reads := make([]pendingRead, 0, 2)
	for _, ch := range []raspberrysensor.Channel{raspberrysensor.ChannelSensor, raspberrysensor.ChannelHumidity} {
		reads = append(reads, pendingRead{
			ch:      ch,
			started: time.Now(),
			res:     p.sensor.Gateway(ch).ReadAsync(),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	for _, rd := range reads {
		select {
		case res := <-rd.res:
			p.metrics.readDuration.WithLabelValues(string(rd.ch)).Observe(time.Since(rd.started).Seconds())
			p.handle(rd.ch, res)
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return
			}
			p.fail(rd.ch, raspberrysensor.NewHardwareError(rd.ch, raspberrysensor.KindBusTimeout,
				fmt.Sprintf("no result within %s", p.timeout), nil))
			go p.discardLate(rd)
		}
	}
}

// discardLate waits for a read the tick gave up on. Its outcome is not
// published; only its duration is recorded.
func (p *producer) discardLate(rd pendingRead) {
	res := <-rd.res
	elapsed := time.Since(rd.started)
	p.metrics.readDuration.WithLabelValues(string(rd.ch)).Observe(elapsed.Seconds())
	if res.Err != nil {
		log.Debugf("producer: discarded late %s result after %s: %v", rd.ch, elapsed, res.Err)
		return
	}
	log.Debugf("producer: discarded late %s reading after %s", rd.ch, elapsed)
}

func (p *producer) handle(ch raspberrysensor.Channel, res raspberrysensor.Result) {
	if res.Err != nil {
		p.fail(ch, res.Err)
		return
	}

	p.metrics.observe(ch, res.Reading)
	payload, err := json.Marshal(env.FromReading(ch, *res.Reading))
	if err != nil {
		log.Errorf("producer: %s marshal error: %v", ch, err)
		return
	}
	if err := p.pub.Publish(p.topics[ch], payload); err != nil {
		log.Errorf("producer: MQTT publish error (%s): %v", ch, err)
		return
	}
	log.Debugf("producer: published %s", payload)
}

func (p *producer) fail(ch raspberrysensor.Channel, err error) {
	p.metrics.failed(ch, err)
	log.WithFields(log.Fields{
		"channel": ch,
		"kind":    raspberrysensor.KindOf(err),
	}).Warnf("producer: read error: %v", err)
	if p.errors == "" {
		return
	}
	payload, merr := json.Marshal(env.FromError(ch, err, time.Now()))
	if merr != nil {
		log.Errorf("producer: error marshal: %v", merr)
		return
	}
	if perr := p.pub.Publish(p.errors, payload); perr != nil {
		log.Errorf("producer: MQTT publish error (errors): %v", perr)
	}
}

// RunSensorProducer reads the configured sensor on every SAMPLE_INTERVAL
// and publishes both channels to MQTT until SIGINT/SIGTERM.
func RunSensorProducer(cfg *config.Config) error {
	log.Info("starting raspberrysensor producer")

	s, closeSensor, err := OpenSensor(cfg)
	if err != nil {
		return err
	}
	defer closeSensor()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	reg := newMetricsRegistry()
	p := newProducer(cfg, s, mqttPublisher{client: client}, newMetrics(reg))

	if cfg.MetricsListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler(reg))
		srv := &http.Server{Addr: cfg.MetricsListenAddr, Handler: mux}
		go func() {
			log.Infof("producer: metrics listening on %s", cfg.MetricsListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("producer: metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Duration(cfg.SampleInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Info("producer: starting publish loop")
	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("producer: shutting down")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}
