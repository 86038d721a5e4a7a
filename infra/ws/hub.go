// Package ws exposes broadcast subscriptions over WebSocket connections.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kilianp07/routecast/core/authz"
	"github.com/kilianp07/routecast/core/broadcast"
	"github.com/kilianp07/routecast/core/logger"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
)

// ErrConnectionClosed is returned by deliveries to a closed connection.
var ErrConnectionClosed = errors.New("ws: connection closed")

// Config configures the WebSocket endpoint.
type Config struct {
	Path           string   `json:"path"`
	SendBuffer     int      `json:"send_buffer"`
	AllowedOrigins []string `json:"allowed_origins"`
}

func (c *Config) SetDefaults() {
	if c.Path == "" {
		c.Path = "/ws/locations"
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = 256
	}
}

// Subscriber opens broadcast subscriptions. It is implemented by
// broadcast.Dispatcher.
type Subscriber interface {
	Subscribe(p authz.Principal, destination string, sink broadcast.Sink) (*broadcast.Subscription, error)
}

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (authz.Principal, error)
}

// Hub tracks live connections.
type Hub struct {
	sub      Subscriber
	verifier TokenVerifier
	cfg      Config
	upgrader websocket.Upgrader
	log      logger.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a hub. A nil verifier treats every connection as anonymous.
func NewHub(sub Subscriber, verifier TokenVerifier, cfg Config, log logger.Logger) *Hub {
	cfg.SetDefaults()
	h := &Hub{
		sub:      sub,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
		clients:  make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Path returns the configured endpoint path.
func (h *Hub) Path() string { return h.cfg.Path }

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range h.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
	}
	return r.URL.Query().Get("access_token")
}

func (h *Hub) principal(r *http.Request) (authz.Principal, error) {
	tok := bearerToken(r)
	if tok == "" || h.verifier == nil {
		return authz.Anonymous, nil
	}
	return h.verifier.Verify(tok)
}

// ServeHTTP upgrades the request. Invalid tokens are refused with 401
// before the upgrade; missing tokens yield an anonymous connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.log.Warnf("ws auth failed from %s: %v", r.RemoteAddr, err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("ws upgrade: %v", err)
		return
	}
	c := newClient(h, conn, p)
	if !p.ExpiresAt.IsZero() {
		c.mu.Lock()
		c.expiry = time.AfterFunc(time.Until(p.ExpiresAt), func() {
			c.closeWith(websocket.ClosePolicyViolation, "token expired")
		})
		c.mu.Unlock()
	}
	if !h.register(c) {
		c.closeWith(websocket.CloseGoingAway, "shutting down")
		c.writePump()
		return
	}
	h.log.Infof("ws client %s connected (subject=%q)", c.ID, p.Subject)
	go c.writePump()
	go c.readPump()
}

// register refuses clients once the hub is closed or the client already
// is, e.g. by a token that expired during the upgrade.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || c.ctx.Err() != nil {
		return false
	}
	h.clients[c.ID] = c
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway, "server shutdown")
	}
}

func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

var _ http.Handler = (*Hub)(nil)

func newID() string { return "ws_" + uuid.NewString() }
