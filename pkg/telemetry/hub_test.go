package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/pulseguard/pkg/history"
	"github.com/hed1ad/pulseguard/pkg/lifecycle"
	"github.com/hed1ad/pulseguard/pkg/pipeline"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(quietLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewMux(nil, hub))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	before := hub.ClientCount()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg envelope
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, hub, srv)
	b := dial(t, hub, srv)

	hub.Reading(pipeline.Reading{Seq: 1, Value: 72, Phase: lifecycle.Monitoring}, []float64{70, 72})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageReading, msg.Type)

		var data struct {
			Reading struct {
				Value float64 `json:"value"`
				Phase string  `json:"phase"`
				Label string  `json:"label"`
			} `json:"reading"`
			Window []float64 `json:"window"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, 72.0, data.Reading.Value)
		assert.Equal(t, "monitoring", data.Reading.Phase)
		assert.Equal(t, "normal", data.Reading.Label)
		assert.Equal(t, []float64{70, 72}, data.Window)
	}
}

func TestHubAnomalyAndPhaseMessages(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv)

	hub.Anomaly(pipeline.AnomalyEvent{Index: 5, Value: 150})
	msg := readMessage(t, conn)
	assert.Equal(t, MessageAnomaly, msg.Type)
	var marker history.Marker
	require.NoError(t, json.Unmarshal(msg.Data, &marker))
	assert.Equal(t, history.Marker{Index: 5, Value: 150}, marker)

	hub.PhaseChange(pipeline.PhaseChange{
		From: lifecycle.Recording, To: lifecycle.Waiting,
		Training: true, Err: errors.New("insufficient baseline data"),
	})
	msg = readMessage(t, conn)
	assert.Equal(t, MessagePhase, msg.Type)
	var change struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &change))
	assert.Equal(t, "recording", change.From)
	assert.Equal(t, "waiting", change.To)
	assert.Equal(t, "insufficient baseline data", change.Error)
}

func TestHubReplaysLatestStateOnConnect(t *testing.T) {
	hub, srv := startHub(t)

	hub.Status(pipeline.Status{Phase: lifecycle.Monitoring, Text: lifecycle.StatusMonitoring})
	hub.Reading(pipeline.Reading{Seq: 3, Value: 71}, []float64{70, 72, 71})

	conn := dial(t, hub, srv)
	msg := readMessage(t, conn)
	assert.Equal(t, MessageStatus, msg.Type)

	var status struct {
		Text    string           `json:"text"`
		Markers []history.Marker `json:"markers"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &status))
	assert.Equal(t, lifecycle.StatusMonitoring, status.Text)
	assert.NotNil(t, status.Markers)

	msg = readMessage(t, conn)
	assert.Equal(t, MessageReading, msg.Type)
}

func TestHubSkipsUnchangedStatus(t *testing.T) {
	hub := NewHub(quietLogger())
	s := pipeline.Status{Phase: lifecycle.Monitoring, Text: lifecycle.StatusMonitoring, At: time.Unix(1, 0)}

	hub.Status(s)
	s.At = time.Unix(2, 0)
	hub.Status(s)
	assert.Len(t, hub.broadcast, 1)

	s.Stats.Lines++
	hub.Status(s)
	assert.Len(t, hub.broadcast, 2)
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(quietLogger())
	for i := 0; i < cap(hub.broadcast)+3; i++ {
		hub.Anomaly(pipeline.AnomalyEvent{Index: i})
	}
	assert.Equal(t, uint64(3), hub.Dropped())
}

func TestHubDisconnectsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(quietLogger())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(hub)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubClientUnregistersOnClose(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}
