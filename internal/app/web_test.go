package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/raspberrysensor/internal/env"
)

func ptr(v float64) *float64 { return &v }

func TestWebSampleEndpoints(t *testing.T) {
	c := qt.New(t)
	store := newReadingStore()
	srv := httptest.NewServer(newWebMux(store, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/humidity")
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusServiceUnavailable)

	store.putSample(env.Sample{Channel: "humidity", Time: "2026-03-01T12:00:00Z", Humidity: ptr(48.5), Temperature: ptr(21)})

	resp, err = http.Get(srv.URL + "/api/humidity")
	c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Get("Content-Type"), qt.Equals, "application/json")

	var got env.Sample
	c.Assert(json.NewDecoder(resp.Body).Decode(&got), qt.IsNil)
	c.Assert(*got.Humidity, qt.Equals, 48.5)

	// The other channel is still empty.
	resp2, err := http.Get(srv.URL + "/api/sensor")
	c.Assert(err, qt.IsNil)
	resp2.Body.Close()
	c.Assert(resp2.StatusCode, qt.Equals, http.StatusServiceUnavailable)
}

func TestWebErrorsEndpoint(t *testing.T) {
	c := qt.New(t)
	store := newReadingStore()
	srv := httptest.NewServer(newWebMux(store, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/errors")
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNoContent)

	store.putFailure(env.Failure{Channel: "sensor", Kind: "bus_timeout", Error: "sensor: ack: bus timeout"})

	resp, err = http.Get(srv.URL + "/api/errors")
	c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	var f env.Failure
	c.Assert(json.NewDecoder(resp.Body).Decode(&f), qt.IsNil)
	c.Assert(f.Kind, qt.Equals, "bus_timeout")
}

func TestWebSocketStreamsUpdates(t *testing.T) {
	c := qt.New(t)
	store := newReadingStore()
	store.putSample(env.Sample{Channel: "sensor", Temperature: ptr(20)})

	srv := httptest.NewServer(newWebMux(store, ""))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	c.Assert(err, qt.IsNil)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Snapshot first.
	var msg wsMessage
	c.Assert(conn.ReadJSON(&msg), qt.IsNil)
	c.Assert(msg.Type, qt.Equals, "sample")
	c.Assert(*msg.Sample.Temperature, qt.Equals, 20.0)

	store.putFailure(env.Failure{Channel: "humidity", Kind: "read_corrupted"})
	msg = wsMessage{}
	c.Assert(conn.ReadJSON(&msg), qt.IsNil)
	c.Assert(msg.Type, qt.Equals, "error")
	c.Assert(msg.Failure.Kind, qt.Equals, "read_corrupted")

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for store.clientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Assert(store.clientCount(), qt.Equals, 0)
}
