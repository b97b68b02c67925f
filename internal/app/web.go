// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/raspberrysensor"
	"github.com/relabs-tech/raspberrysensor/internal/config"
	"github.com/relabs-tech/raspberrysensor/internal/env"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local network use
	},
}

// wsMessage is pushed to every websocket client.
type wsMessage struct {
	Type    string       `json:"type"` // "sample" or "error"
	Sample  *env.Sample  `json:"sample,omitempty"`
	Failure *env.Failure `json:"failure,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
}

// readingStore keeps the latest sample per channel and fans updates out to
// websocket clients.
type readingStore struct {
	mu      sync.RWMutex
	latest  map[string]env.Sample
	failure *env.Failure
	clients map[*wsClient]struct{}
}

func newReadingStore() *readingStore {
	return &readingStore{
		latest:  make(map[string]env.Sample),
		clients: make(map[*wsClient]struct{}),
	}
}

func (s *readingStore) putSample(sample env.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[sample.Channel] = sample
	s.broadcast(wsMessage{Type: "sample", Sample: &sample})
}

func (s *readingStore) putFailure(f env.Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = &f
	s.broadcast(wsMessage{Type: "error", Failure: &f})
}

// broadcast must be called with s.mu held. Slow clients lose messages.
func (s *readingStore) broadcast(msg wsMessage) {
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			log.Debugf("web: dropping update for slow client %s", c.conn.RemoteAddr())
		}
	}
}

func (s *readingStore) sample(ch string) (env.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.latest[ch]
	return sample, ok
}

func (s *readingStore) lastFailure() (env.Failure, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure == nil {
		return env.Failure{}, false
	}
	return *s.failure, true
}

// register adds c and queues the current samples for it in one step, so no
// update can slip in between.
func (s *readingStore) register(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range []raspberrysensor.Channel{raspberrysensor.ChannelSensor, raspberrysensor.ChannelHumidity} {
		if sample, ok := s.latest[string(ch)]; ok {
			c.send <- wsMessage{Type: "sample", Sample: &sample}
		}
	}
	s.clients[c] = struct{}{}
}

func (s *readingStore) unregister(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *readingStore) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// sampleHandler: latest sample on ch
func (s *readingStore) sampleHandler(ch raspberrysensor.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sample, ok := s.sample(string(ch))
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, sample)
	}
}

func (s *readingStore) errorHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lastFailure()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, f)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("json encode error: %v", err)
	}
}

// handleWS streams samples and failures to one browser.
func (s *readingStore) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &wsClient{conn: conn, send: make(chan wsMessage, 16)}
	s.register(c)
	defer s.unregister(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warnf("web: websocket error: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Warnf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

// handleMessage decodes an MQTT payload from one of the sample topics.
func (s *readingStore) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var sample env.Sample
	if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
		log.Warnf("web: MQTT payload unmarshal error on %s: %v", msg.Topic(), err)
		return
	}
	s.putSample(sample)
}

func (s *readingStore) handleFailure(_ mqtt.Client, msg mqtt.Message) {
	var f env.Failure
	if err := json.Unmarshal(msg.Payload(), &f); err != nil {
		log.Warnf("web: MQTT payload unmarshal error on %s: %v", msg.Topic(), err)
		return
	}
	s.putFailure(f)
}

func newWebMux(s *readingStore, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sensor", s.sampleHandler(raspberrysensor.ChannelSensor))
	mux.HandleFunc("/api/humidity", s.sampleHandler(raspberrysensor.ChannelHumidity))
	mux.HandleFunc("/api/errors", s.errorHandler)
	mux.HandleFunc("/ws", s.handleWS)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// RunWeb serves the latest readings received over MQTT.
func RunWeb(cfg *config.Config) error {
	store := newReadingStore()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
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

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Infof("web server listening on %s", addr)
	return http.ListenAndServe(addr, newWebMux(store, "web"))
}
