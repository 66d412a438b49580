package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/robot-control/rsc/internal/auth"
	"github.com/robot-control/rsc/internal/channel"
	"github.com/robot-control/rsc/internal/config"
	"github.com/robot-control/rsc/internal/sequence"
	"github.com/robot-control/rsc/internal/telemetry"
	"github.com/robot-control/rsc/internal/transport"
)

// nullPort discards writes and blocks reads until closed.
type nullPort struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func newNullPort() *nullPort {
	return &nullPort{closed: make(chan struct{})}
}

func (p *nullPort) Read(b []byte) (int, error) {
	<-p.closed
	return 0, io.EOF
}

func (p *nullPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *nullPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

type testSettings struct {
	cfg config.SequenceConfig
}

func (s testSettings) SequenceSettings() config.SequenceConfig { return s.cfg }

func newTestServer(t *testing.T, secret string) (*Server, *telemetry.Hub, *transport.Manager) {
	t.Helper()
	hub := telemetry.NewHub(100)
	link := transport.NewManager(hub, func(string, *serial.Mode) (io.ReadWriteCloser, error) {
		return newNullPort(), nil
	})
	t.Cleanup(link.Disconnect)

	queue := channel.NewQueue(link, hub, time.Millisecond)
	sequencer := sequence.NewController(queue, link, hub, testSettings{cfg: config.SequenceConfig{
		Variant:        config.VariantTimed,
		CelebrateSkill: "khi",
		RestSkill:      "ksit",
		PreDispense:    200 * time.Millisecond,
		Dispense:       200 * time.Millisecond,
	}})

	return NewServer(hub, link, queue, sequencer, auth.NewMiddleware(secret)), hub, link
}

func doJSON(t *testing.T, handler http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, "")
	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/v1/status", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "disconnected", data["connection"])
	assert.Equal(t, "idle", data["sequence"])
	assert.Equal(t, float64(0), data["step"])
	assert.Equal(t, float64(0), data["stepTotal"])
}

func TestConnectDisconnectFlow(t *testing.T) {
	server, _, link := newTestServer(t, "")
	h := server.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/connect", `{"port":"/dev/fake0"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, transport.StateConnected, link.State())

	// Reconnecting an open link conflicts.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/connect", `{"port":"/dev/fake0"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/disconnect", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, transport.StateDisconnected, link.State())
}

func TestCommandValidation(t *testing.T) {
	server, _, _ := newTestServer(t, "")
	h := server.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/command", `{"type":"warp"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/command", `{"type":"digital","port":100,"value":1}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_COMMAND")

	rec = doJSON(t, h, http.MethodPost, "/api/v1/command", `{"type":"skill","code":"khi"}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSequenceRunConflict(t *testing.T) {
	server, _, link := newTestServer(t, "")
	h := server.Handler()
	require.NoError(t, link.Connect("/dev/fake0"))

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sequence/run", "", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sequence/run", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "BUSY")

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sequence/abort", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthGuardsMutations(t *testing.T) {
	server, _, _ := newTestServer(t, "sekrit")
	h := server.Handler()

	// Reads stay open.
	rec := doJSON(t, h, http.MethodGet, "/api/v1/status", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Mutations need a token.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/command", `{"type":"skill","code":"khi"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("sekrit"))
	require.NoError(t, err)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/command", `{"type":"skill","code":"khi"}`, signed)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestLogStreamReplaysRecent(t *testing.T) {
	server, hub, _ := newTestServer(t, "")

	hub.Info("connected to /dev/fake0")
	hub.Tx(`skill "khi"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stream should replay the recent window and return

	req := httptest.NewRequest(http.MethodGet, "/api/v1/log", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: log")
	assert.Contains(t, body, "connected to /dev/fake0")
	assert.Contains(t, body, `skill \"khi\"`)
}
