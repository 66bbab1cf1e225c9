package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/serial_imu/internal/imu"
)

func TestLatestHandler(t *testing.T) {
	state := newLiveState(slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(state.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/imu")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	payload, err := json.Marshal(imu.Reading{LinearAcceleration: imu.Vector3{X: 9.80665}})
	require.NoError(t, err)
	state.update("imu", payload)

	resp, err = http.Get(srv.URL + "/api/imu")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var r imu.Reading
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	assert.Equal(t, 9.80665, r.LinearAcceleration.X)

	// mag still empty
	resp2, err := http.Get(srv.URL + "/api/mag")
	require.NoError(t, err)
	io.Copy(io.Discard, resp2.Body)
	resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestUpdate_DropsInvalidJSON(t *testing.T) {
	state := newLiveState(slog.New(slog.DiscardHandler))
	state.update("mag", []byte("garbage"))
	_, ok := state.get("mag")
	assert.False(t, ok)
}

func TestWebSocketStream(t *testing.T) {
	state := newLiveState(slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(state.routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait until the handler registered the client
	require.Eventually(t, func() bool {
		state.mu.RLock()
		defer state.mu.RUnlock()
		return len(state.clients) == 1
	}, time.Second, time.Millisecond)

	payload, err := json.Marshal(imu.MagneticReading{MagneticField: imu.Vector3{Y: -300}})
	require.NoError(t, err)
	state.update("mag", payload)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "mag", msg.Type)

	var m imu.MagneticReading
	require.NoError(t, json.Unmarshal(msg.Data, &m))
	assert.Equal(t, -300.0, m.MagneticField.Y)
}
