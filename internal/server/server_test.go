package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/metrics"
	"mqtt-dispatcher/internal/payload"
	"mqtt-dispatcher/internal/sensor"
	"mqtt-dispatcher/internal/stats"
)

type fakeSession struct {
	sensors      *sensor.State
	stats        *stats.StatsCollector
	connected    bool
	broadcastErr error
	broadcasts   []broadcastRequest
}

func (f *fakeSession) Sensors() *sensor.State         { return f.sensors }
func (f *fakeSession) Stats() *stats.StatsCollector   { return f.stats }
func (f *fakeSession) IsConnected() bool              { return f.connected }
func (f *fakeSession) TransportStats() broker.Stats   { return broker.Stats{MessagesReceived: 3} }
func (f *fakeSession) PendingInterrupts() int         { return 1 }
func (f *fakeSession) PendingMessages() int           { return 2 }
func (f *fakeSession) Topics() []string               { return []string{"plant/#"} }
func (f *fakeSession) Broadcast(topics []string, p string) error {
	f.broadcasts = append(f.broadcasts, broadcastRequest{Topics: topics, Payload: p})
	return f.broadcastErr
}

func setupTestServer(t *testing.T) (*httptest.Server, *fakeSession) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)
	m.SetConnectionStatus(true)

	fs := &fakeSession{
		sensors:   sensor.NewState(),
		stats:     stats.NewStatsCollector(),
		connected: true,
	}
	srv := New(Config{Address: ":0"}, fs, reg, logger.NewNop())
	ts := httptest.NewServer(srv.Router("/metrics"))
	t.Cleanup(ts.Close)
	return ts, fs
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	ts, fs := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])

	fs.connected = false
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestSensorsAndConsume(t *testing.T) {
	ts, fs := setupTestServer(t)
	fs.sensors.Replace(payload.Readings{"t1": {Type: "temp", Value: 21.5}})

	resp, err := http.Get(ts.URL + "/sensors")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["updated"])
	assert.Equal(t, map[string]interface{}{"t1": map[string]interface{}{"type": "temp", "value": 21.5}}, body["sensors"])

	// peeking does not clear the flag
	assert.True(t, fs.sensors.Updated())

	resp, err = http.Post(ts.URL+"/sensors/consume", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, true, decodeBody(t, resp)["updated"])

	resp, err = http.Post(ts.URL+"/sensors/consume", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, false, decodeBody(t, resp)["updated"])
}

func TestBroadcast(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"accepted", `{"topics": ["a/commands", "b/commands"], "payload": "go"}`, nil, http.StatusAccepted},
		{"bad json", `{"topics": `, nil, http.StatusBadRequest},
		{"no topics", `{"payload": "go"}`, nil, http.StatusBadRequest},
		{"publish failure", `{"topics": ["a/commands"], "payload": "go"}`, errors.New("denied"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, fs := setupTestServer(t)
			fs.broadcastErr = tt.err

			resp, err := http.Post(ts.URL+"/broadcast", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	ts, fs := setupTestServer(t)
	resp, err := http.Post(ts.URL+"/broadcast", "application/json", strings.NewReader(`{"topics": ["a/commands"], "payload": "{'x': 1}"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Len(t, fs.broadcasts, 1)
	assert.Equal(t, "{'x': 1}", fs.broadcasts[0].Payload)
}

func TestStats(t *testing.T) {
	ts, fs := setupTestServer(t)
	fs.stats.IncReceived()

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	body := decodeBody(t, resp)

	assert.Equal(t, float64(1), body["pending_interrupts"])
	assert.Equal(t, float64(2), body["pending_messages"])
	transport := body["transport"].(map[string]interface{})
	assert.Equal(t, float64(3), transport["messages_received"])
	session := body["session"].(map[string]interface{})
	assert.Equal(t, float64(1), session["messages_received"])
}

func TestMetrics(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "dispatcher_broker_connected 1")
}
