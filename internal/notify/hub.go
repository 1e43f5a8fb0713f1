// Package notify pushes wallet events to connected wallet clients over
// websockets.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
)

var (
	ErrUserNotConnected = errors.New("user not connected")
	ErrInvalidToken     = errors.New("invalid app token")
)

// Control message types
const (
	TypeInit      = "FIN_INIT"
	TypeError     = "ERROR"
	TypeEvent     = "EVENT"
	EventNewCreds = "new_credential"
)

// DefaultWriteTimeout bounds a single push when none is configured.
const DefaultWriteTimeout = 5 * time.Second

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	MessageID string `json:"message_id"`
	Type      string `json:"type"`
	Event     *Event `json:"event,omitempty"`
}

// Event describes something that happened to the user's wallet.
type Event struct {
	Name                 string `json:"name"`
	CredentialIdentifier string `json:"credentialIdentifier,omitempty"`
	Format               string `json:"format,omitempty"`
	IssuerFriendlyName   string `json:"issuerFriendlyName,omitempty"`
}

// ClientMessage represents a message received from client
type ClientMessage struct {
	MessageID string `json:"message_id,omitempty"`
	AppToken  string `json:"appToken,omitempty"`
}

type client struct {
	conn     *websocket.Conn
	username string
	writeMu  sync.Mutex
}

func (c *client) write(ctx context.Context, timeout time.Duration, msg ServerMessage) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Hub tracks one websocket connection per user.
type Hub struct {
	secret       []byte
	writeTimeout time.Duration
	logger       *zap.Logger
	upgrader     websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[string]*client // username -> connection
}

// NewHub creates a Hub that authenticates clients with app tokens signed
// by secret.
func NewHub(secret string, writeTimeout time.Duration, logger *zap.Logger) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Hub{
		secret:       []byte(secret),
		writeTimeout: writeTimeout,
		logger:       logger.Named("notify"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// app tokens authenticate the connection, not the origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// HandleConnection upgrades the request and serves the connection until
// the client goes away.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	go h.handleClient(conn)
}

func (h *Hub) handleClient(conn *websocket.Conn) {
	defer conn.Close()

	var c *client

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Debug("Failed to parse message", zap.Error(err))
			continue
		}
		if msg.AppToken == "" || c != nil {
			continue
		}

		username, err := h.validateToken(msg.AppToken)
		if err != nil {
			h.logger.Info("Handshake failed", zap.Error(err))
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			_ = conn.WriteJSON(ServerMessage{Type: TypeError, MessageID: "auth_failed"})
			continue
		}

		c = &client{conn: conn, username: username}
		h.clientsMu.Lock()
		if existing, ok := h.clients[username]; ok {
			existing.conn.Close()
		}
		h.clients[username] = c
		h.clientsMu.Unlock()

		h.logger.Debug("WebSocket handshake established", zap.String("username", username))
		if err := c.write(context.Background(), h.writeTimeout, ServerMessage{Type: TypeInit}); err != nil {
			h.logger.Warn("Failed to acknowledge handshake", zap.Error(err))
			break
		}
	}

	if c != nil {
		h.clientsMu.Lock()
		if existing, ok := h.clients[c.username]; ok && existing == c {
			delete(h.clients, c.username)
		}
		h.clientsMu.Unlock()
		h.logger.Debug("WebSocket client disconnected", zap.String("username", c.username))
	}
}

func (h *Hub) validateToken(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}

	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return "", ErrInvalidToken
	}
	return username, nil
}

// IsConnected checks if a user is currently connected
func (h *Hub) IsConnected(username string) bool {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	_, ok := h.clients[username]
	return ok
}

// Send pushes an event to the user's connection.
func (h *Hub) Send(ctx context.Context, username string, event Event) error {
	h.clientsMu.RLock()
	c, ok := h.clients[username]
	h.clientsMu.RUnlock()
	if !ok {
		return ErrUserNotConnected
	}

	return c.write(ctx, h.writeTimeout, ServerMessage{
		MessageID: uuid.NewString(),
		Type:      TypeEvent,
		Event:     &event,
	})
}

// NotifyCredentialStored tells a connected user about a new credential.
// Users without a connection are skipped silently.
func (h *Hub) NotifyCredentialStored(ctx context.Context, username string, credential *domain.VerifiableCredential) error {
	err := h.Send(ctx, username, Event{
		Name:                 EventNewCreds,
		CredentialIdentifier: credential.CredentialIdentifier,
		Format:               string(credential.Format),
		IssuerFriendlyName:   credential.IssuerFriendlyName,
	})
	if errors.Is(err, ErrUserNotConnected) {
		return nil
	}
	return err
}

// Close closes all connections
func (h *Hub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for _, c := range h.clients {
		c.conn.Close()
	}
	h.clients = make(map[string]*client)
}
