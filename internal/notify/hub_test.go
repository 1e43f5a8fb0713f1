package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
)

const testSecret = "test-secret"

func appToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(h.HandleConnection))
	t.Cleanup(server.Close)

	ws, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func handshake(t *testing.T, ws *websocket.Conn, token string) ServerMessage {
	t.Helper()
	require.NoError(t, ws.WriteJSON(ClientMessage{AppToken: token}))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestNewHub(t *testing.T) {
	h := NewHub(testSecret, 0, zap.NewNop())
	assert.Equal(t, DefaultWriteTimeout, h.writeTimeout)
	assert.Empty(t, h.clients)
	assert.False(t, h.IsConnected("alice"))

	h.Close()
	assert.Empty(t, h.clients)
}

func TestHub_Handshake(t *testing.T) {
	h := NewHub(testSecret, time.Second, zap.NewNop())
	ws := dial(t, h)

	msg := handshake(t, ws, appToken(t, testSecret, jwt.MapClaims{
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}))
	assert.Equal(t, TypeInit, msg.Type)
	assert.True(t, h.IsConnected("alice"))
}

func TestHub_HandshakeRejected(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "invalid-token"},
		{"wrong secret", appToken(t, "other-secret", jwt.MapClaims{"username": "alice"})},
		{"no username", appToken(t, testSecret, jwt.MapClaims{"sub": "alice"})},
		{"expired", appToken(t, testSecret, jwt.MapClaims{"username": "alice", "exp": time.Now().Add(-time.Hour).Unix()})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(testSecret, time.Second, zap.NewNop())
			ws := dial(t, h)

			msg := handshake(t, ws, tt.token)
			assert.Equal(t, TypeError, msg.Type)
			assert.Equal(t, "auth_failed", msg.MessageID)
			assert.False(t, h.IsConnected("alice"))
		})
	}
}

func TestHub_NotifyCredentialStored(t *testing.T) {
	h := NewHub(testSecret, time.Second, zap.NewNop())
	ws := dial(t, h)
	require.Equal(t, TypeInit, handshake(t, ws, appToken(t, testSecret, jwt.MapClaims{"username": "alice"})).Type)

	err := h.NotifyCredentialStored(context.Background(), "alice", &domain.VerifiableCredential{
		CredentialIdentifier: "urn:cred:1",
		Format:               domain.FormatJWTVC,
		IssuerFriendlyName:   "Test University",
	})
	require.NoError(t, err)

	var msg ServerMessage
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, TypeEvent, msg.Type)
	assert.NotEmpty(t, msg.MessageID)
	require.NotNil(t, msg.Event)
	assert.Equal(t, Event{
		Name:                 EventNewCreds,
		CredentialIdentifier: "urn:cred:1",
		Format:               "jwt_vc",
		IssuerFriendlyName:   "Test University",
	}, *msg.Event)
}

func TestHub_NotifyDisconnectedUser(t *testing.T) {
	h := NewHub(testSecret, time.Second, zap.NewNop())

	err := h.NotifyCredentialStored(context.Background(), "bob", &domain.VerifiableCredential{CredentialIdentifier: "urn:cred:1"})
	assert.NoError(t, err)

	err = h.Send(context.Background(), "bob", Event{Name: EventNewCreds})
	assert.ErrorIs(t, err, ErrUserNotConnected)
}

func TestHub_Reconnect(t *testing.T) {
	h := NewHub(testSecret, time.Second, zap.NewNop())
	token := appToken(t, testSecret, jwt.MapClaims{"username": "alice"})

	first := dial(t, h)
	require.Equal(t, TypeInit, handshake(t, first, token).Type)
	second := dial(t, h)
	require.Equal(t, TypeInit, handshake(t, second, token).Type)

	require.NoError(t, h.Send(context.Background(), "alice", Event{Name: EventNewCreds}))

	var msg ServerMessage
	require.NoError(t, second.ReadJSON(&msg))
	assert.Equal(t, EventNewCreds, msg.Event.Name)

	_ = first.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "replaced connection should be closed")
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h := NewHub(testSecret, time.Second, zap.NewNop())
	ws := dial(t, h)
	require.Equal(t, TypeInit, handshake(t, ws, appToken(t, testSecret, jwt.MapClaims{"username": "alice"})).Type)

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return !h.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)
}
