package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/routecast/core/authz"
	"github.com/kilianp07/routecast/core/broadcast"
)

// Frame types.
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeLocation     = "location"
	TypeError        = "error"
)

// ClientFrame is sent by subscribers.
type ClientFrame struct {
	Type        string `json:"type"`
	Destination string `json:"destination"`
}

// ControlFrame acknowledges or rejects a client frame.
type ControlFrame struct {
	Type           string `json:"type"`
	Destination    string `json:"destination,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// LocationFrame carries one update.
type LocationFrame struct {
	Type        string    `json:"type"`
	Destination string    `json:"destination"`
	VehicleID   string    `json:"vehicle_id"`
	TripID      string    `json:"trip_id,omitempty"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Timestamp   time.Time `json:"timestamp"`
}

// Client is one WebSocket connection. It is the broadcast.Sink of every
// subscription it opens.
type Client struct {
	ID        string
	principal authz.Principal
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	expiry    *time.Timer

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	subs      map[string]*broadcast.Subscription
	closeInfo closeFrame
	once      sync.Once
}

type closeFrame struct {
	code int
	text string
}

func newClient(h *Hub, conn *websocket.Conn, p authz.Principal) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:        newID(),
		principal: p,
		conn:      conn,
		send:      make(chan []byte, h.cfg.SendBuffer),
		hub:       h,
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[string]*broadcast.Subscription),
		closeInfo: closeFrame{code: websocket.CloseNormalClosure},
	}
}

// Principal returns the identity the connection authenticated as.
func (c *Client) Principal() authz.Principal { return c.principal }

// Deliver queues a location frame for the write pump.
func (c *Client) Deliver(ctx context.Context, d broadcast.Delivery) error {
	return c.enqueue(ctx, marshal(LocationFrame{
		Type:        TypeLocation,
		Destination: d.Destination,
		VehicleID:   d.Update.VehicleID,
		TripID:      d.Update.TripID,
		Lat:         d.Update.Coordinate.Lat,
		Lng:         d.Update.Coordinate.Lng,
		Timestamp:   d.Update.Timestamp,
	}))
}

func (c *Client) enqueue(ctx context.Context, b []byte) error {
	select {
	case c.send <- b:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) reply(f ControlFrame) {
	_ = c.enqueue(context.Background(), marshal(f))
}

func (c *Client) handle(raw []byte) {
	var f ClientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.reply(ControlFrame{Type: TypeError, Error: "malformed frame"})
		return
	}
	switch f.Type {
	case TypeSubscribe:
		c.subscribe(f.Destination)
	case TypeUnsubscribe:
		c.unsubscribe(f.Destination)
	default:
		c.reply(ControlFrame{Type: TypeError, Destination: f.Destination, Error: fmt.Sprintf("unknown frame type %q", f.Type)})
	}
}

func (c *Client) subscribe(dest string) {
	c.mu.Lock()
	if s, ok := c.subs[dest]; ok {
		c.mu.Unlock()
		c.reply(ControlFrame{Type: TypeSubscribed, Destination: dest, SubscriptionID: s.ID()})
		return
	}
	c.mu.Unlock()

	s, err := c.hub.sub.Subscribe(c.principal, dest, c)
	if err != nil {
		c.reply(ControlFrame{Type: TypeError, Destination: dest, Error: err.Error()})
		return
	}
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		s.Close()
		return
	}
	c.subs[dest] = s
	c.mu.Unlock()
	c.reply(ControlFrame{Type: TypeSubscribed, Destination: dest, SubscriptionID: s.ID()})
}

func (c *Client) unsubscribe(dest string) {
	c.mu.Lock()
	s, ok := c.subs[dest]
	delete(c.subs, dest)
	c.mu.Unlock()
	if !ok {
		c.reply(ControlFrame{Type: TypeError, Destination: dest, Error: "not subscribed"})
		return
	}
	s.Close()
	c.reply(ControlFrame{Type: TypeUnsubscribed, Destination: dest})
}

// closeWith ends the connection. Every subscription of the client is
// closed, which the dispatcher treats as an unsubscribe.
func (c *Client) closeWith(code int, text string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeInfo = closeFrame{code: code, text: text}
		subs := c.subs
		c.subs = map[string]*broadcast.Subscription{}
		expiry := c.expiry
		c.mu.Unlock()

		c.cancel()
		if expiry != nil {
			expiry.Stop()
		}
		for _, s := range subs {
			s.Close()
		}
		c.hub.unregister(c)
		c.hub.log.Infof("ws client %s closed: %s", c.ID, text)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.closeWith(websocket.CloseNormalClosure, "client gone")
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Errorf("ws read %s: %v", c.ID, err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		case <-c.ctx.Done():
			c.mu.Lock()
			cl := c.closeInfo
			c.mu.Unlock()
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(cl.code, cl.text), time.Now().Add(writeWait))
			return
		}
	}
}
