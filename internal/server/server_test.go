package server

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sirius-ashwak/curalink/internal/broadcast"
	"github.com/Sirius-ashwak/curalink/internal/config"
	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/event"
	"github.com/Sirius-ashwak/curalink/internal/registry"
	"github.com/Sirius-ashwak/curalink/internal/snapshot"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		MaxConnections:       100,
		ConnectionsPerSecond: 1000,
		ConnectionBurst:      1000,
		HandshakeTimeout:     2 * time.Second,
		SnapshotTimeout:      time.Second,
	}
}

type testEnv struct {
	server   *Server
	registry *registry.Registry
	http     *httptest.Server
}

func newTestEnv(t *testing.T, cfg *config.Config, snapshots domain.SnapshotSource) *testEnv {
	t.Helper()
	reg := registry.New()
	clock := clockwork.NewRealClock()
	bc := broadcast.New(reg, clock)
	s := New(cfg, reg, bc, snapshots, clock, nil)

	ts := httptest.NewServer(s.echo)
	t.Cleanup(ts.Close)
	return &testEnv{server: s, registry: reg, http: ts}
}

func (te *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(te.http.URL, "http") + "/ws"
}

func dialWS(t *testing.T, te *testEnv) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(te.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func sendClaim(t *testing.T, ws *websocket.Conn, claim event.Claim) {
	t.Helper()
	env, err := event.New(event.KindAuth, claim, time.Now())
	require.NoError(t, err)
	data, err := event.Encode(env)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

func readEnvelope(t *testing.T, ws *websocket.Conn) event.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := event.Decode(data)
	require.NoError(t, err)
	return env
}

func TestWebSocket_ConnectLifecycle(t *testing.T) {
	appts, err := event.New(domain.KindAppointments, []map[string]any{{"id": 1}}, time.Now())
	require.NoError(t, err)
	te := newTestEnv(t, testConfig(), &snapshot.Static{Envelopes: []event.Envelope{appts}})

	ws := dialWS(t, te)
	sendClaim(t, ws, event.Claim{UserID: "patient-1", Role: "patient"})

	// Handshake ack first, then the role snapshot.
	assert.Equal(t, domain.KindReady, readEnvelope(t, ws).Kind)
	assert.Equal(t, domain.KindAppointments, readEnvelope(t, ws).Kind)

	// A live update pushed through the notifier reaches the socket.
	require.NoError(t, te.server.Notifier().Notify("patient-1", domain.KindAppointmentUpdated, map[string]any{"id": 1, "status": "cancelled"}))
	assert.Equal(t, domain.KindAppointmentUpdated, readEnvelope(t, ws).Kind)

	// Closing the socket unregisters the connection server-side.
	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool {
		return te.registry.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocket_MultipleDevicesPerUser(t *testing.T) {
	te := newTestEnv(t, testConfig(), nil)

	ws1 := dialWS(t, te)
	sendClaim(t, ws1, event.Claim{UserID: "doctor-1", Role: "doctor"})
	assert.Equal(t, domain.KindReady, readEnvelope(t, ws1).Kind)

	ws2 := dialWS(t, te)
	sendClaim(t, ws2, event.Claim{UserID: "doctor-1", Role: "doctor"})
	assert.Equal(t, domain.KindReady, readEnvelope(t, ws2).Kind)

	require.NoError(t, te.server.Notifier().Notify("doctor-1", domain.KindDoctorAvailability, nil))
	assert.Equal(t, domain.KindDoctorAvailability, readEnvelope(t, ws1).Kind)
	assert.Equal(t, domain.KindDoctorAvailability, readEnvelope(t, ws2).Kind)
}

func TestWebSocket_RejectsBadHandshake(t *testing.T) {
	tests := []struct {
		name  string
		frame func(t *testing.T, ws *websocket.Conn)
	}{
		{"garbage frame", func(t *testing.T, ws *websocket.Conn) {
			require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{{{")))
		}},
		{"wrong kind", func(t *testing.T, ws *websocket.Conn) {
			env, err := event.New("appointments", event.Claim{UserID: "u", Role: "patient"}, time.Now())
			require.NoError(t, err)
			data, err := event.Encode(env)
			require.NoError(t, err)
			require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
		}},
		{"missing user id", func(t *testing.T, ws *websocket.Conn) {
			sendClaim(t, ws, event.Claim{Role: "patient"})
		}},
		{"unknown role", func(t *testing.T, ws *websocket.Conn) {
			sendClaim(t, ws, event.Claim{UserID: "u", Role: "superuser"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEnv(t, testConfig(), nil)
			ws := dialWS(t, te)
			tt.frame(t, ws)

			// The server drops the connection without sending anything.
			require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
			_, _, err := ws.ReadMessage()
			assert.Error(t, err)
			assert.Equal(t, 0, te.registry.Len())
		})
	}
}

func TestWebSocket_SnapshotFailureKeepsConnection(t *testing.T) {
	te := newTestEnv(t, testConfig(), &snapshot.Static{Err: errors.New("db down")})

	ws := dialWS(t, te)
	sendClaim(t, ws, event.Claim{UserID: "patient-1", Role: "patient"})

	// Ready still arrives and the connection keeps receiving live updates.
	assert.Equal(t, domain.KindReady, readEnvelope(t, ws).Kind)
	require.NoError(t, te.server.Notifier().Notify("patient-1", domain.KindAppointmentUpdated, nil))
	assert.Equal(t, domain.KindAppointmentUpdated, readEnvelope(t, ws).Kind)
}

func TestWebSocket_RefusesAtCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	te := newTestEnv(t, cfg, nil)

	ws := dialWS(t, te)
	sendClaim(t, ws, event.Claim{UserID: "patient-1", Role: "patient"})
	require.Equal(t, domain.KindReady, readEnvelope(t, ws).Kind)

	_, resp, err := websocket.DefaultDialer.Dial(te.wsURL(), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestWebSocket_RateLimitsPerIP(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectionsPerSecond = 0.001
	cfg.ConnectionBurst = 1
	te := newTestEnv(t, cfg, nil)

	ws := dialWS(t, te)
	sendClaim(t, ws, event.Claim{UserID: "patient-1", Role: "patient"})
	require.Equal(t, domain.KindReady, readEnvelope(t, ws).Kind)

	_, resp, err := websocket.DefaultDialer.Dial(te.wsURL(), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, 429, resp.StatusCode)
}

func TestWebSocket_TokenVerification(t *testing.T) {
	cfg := testConfig()
	cfg.WSAuthSecret = "0123456789abcdef0123456789abcdef"
	te := newTestEnv(t, cfg, nil)

	t.Run("valid token accepted", func(t *testing.T) {
		ws := dialWS(t, te)
		sendClaim(t, ws, event.Claim{
			UserID: "patient-1",
			Role:   "patient",
			Token:  mintToken(t, cfg.WSAuthSecret, "patient-1"),
		})
		assert.Equal(t, domain.KindReady, readEnvelope(t, ws).Kind)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		ws := dialWS(t, te)
		sendClaim(t, ws, event.Claim{UserID: "patient-1", Role: "patient"})
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := ws.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("token for another user rejected", func(t *testing.T) {
		ws := dialWS(t, te)
		sendClaim(t, ws, event.Claim{
			UserID: "patient-1",
			Role:   "patient",
			Token:  mintToken(t, cfg.WSAuthSecret, "patient-2"),
		})
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := ws.ReadMessage()
		assert.Error(t, err)
	})
}
