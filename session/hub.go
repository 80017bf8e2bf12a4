// Package session maps authenticated player uids to live websocket
// connections and fans battle broadcasts out to them. Delivery is
// best-effort: a client whose outbound queue is full loses the frame rather
// than stalling the simulation.
package session

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpenner/bastion/bastion-core/protocol"
)

// Options tunes the hub. Zero values fall back to defaults.
type Options struct {
	ReadTimeout time.Duration
	SendBuffer  int
	RatePerSec  float64
	RateBurst   int
}

// DefaultOptions mirrors the configured defaults.
func DefaultOptions() Options {
	return Options{ReadTimeout: 5 * time.Second, SendBuffer: 64, RatePerSec: 10, RateBurst: 20}
}

// Hub owns every connected client.
type Hub struct {
	mu      sync.Mutex
	clients map[int]*client

	router   *Router
	opts     Options
	limiters *ipLimiters
	upgrader websocket.Upgrader

	dropped atomic.Uint64
}

type client struct {
	conn *websocket.Conn
	send chan protocol.Envelope
	uid  int

	closeOnce sync.Once
}

// NewHub wires a hub to its message router.
func NewHub(router *Router, opts Options) *Hub {
	def := DefaultOptions()
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if opts.SendBuffer == 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = def.RatePerSec
	}
	if opts.RateBurst == 0 {
		opts.RateBurst = def.RateBurst
	}
	return &Hub{
		clients:  make(map[int]*client),
		router:   router,
		opts:     opts,
		limiters: newIPLimiters(opts.RatePerSec, opts.RateBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades an HTTP request and runs the connection's read loop until
// it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.limiters.allow(r.RemoteAddr) {
		http.Error(w, "rate limit", http.StatusTooManyRequests)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan protocol.Envelope, h.opts.SendBuffer)}
	go c.writePump()
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unbind(c)
		c.close()
		c.conn.Close()
	}()

	for {
		c.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			slog.Debug("connection read ended", "uid", c.uid, "error", err)
			return
		}

		sess := &Session{hub: h, client: c, UID: c.uid}
		resp := h.router.Dispatch(sess, env)
		if resp != nil {
			if !c.trySend(*resp) {
				h.dropped.Add(1)
			}
		}
	}
}

func (c *client) writePump() {
	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			slog.Debug("write failed", "uid", c.uid, "error", err)
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// trySend enqueues without blocking; false means the frame was dropped.
func (c *client) trySend(env protocol.Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// bind associates a client with an authenticated uid, displacing any
// previous session for that uid.
func (h *Hub) bind(c *client, uid int) {
	h.mu.Lock()
	old, hadOld := h.clients[uid]
	h.clients[uid] = c
	c.uid = uid
	h.mu.Unlock()
	if hadOld && old != c {
		old.close()
	}
	slog.Info("session bound", "uid", uid)
}

func (h *Hub) unbind(c *client) {
	if c.uid == 0 {
		return
	}
	h.mu.Lock()
	if h.clients[c.uid] == c {
		delete(h.clients, c.uid)
	}
	h.mu.Unlock()
}

// Send delivers one message to a uid's session. Best-effort: false when the
// uid is offline or its queue is full.
func (h *Hub) Send(uid int, msgType string, payload any) bool {
	env, err := protocol.NewEnvelope(msgType, "", payload)
	if err != nil {
		slog.Error("send marshal failed", "type", msgType, "error", err)
		return false
	}
	h.mu.Lock()
	c, ok := h.clients[uid]
	h.mu.Unlock()
	if !ok {
		return false
	}
	if !c.trySend(env) {
		h.dropped.Add(1)
		return false
	}
	return true
}

// Broadcast fans one message out to the given uids, returning the delivery
// count. Implements the battle runtime's sender contract.
func (h *Hub) Broadcast(uids []int, msgType string, payload any) int {
	env, err := protocol.NewEnvelope(msgType, "", payload)
	if err != nil {
		slog.Error("broadcast marshal failed", "type", msgType, "error", err)
		return 0
	}
	delivered := 0
	h.mu.Lock()
	targets := make([]*client, 0, len(uids))
	for _, uid := range uids {
		if c, ok := h.clients[uid]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		if c.trySend(env) {
			delivered++
		} else {
			h.dropped.Add(1)
		}
	}
	return delivered
}

// Dropped reports how many frames were discarded due to full client queues.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Online reports the number of bound sessions.
func (h *Hub) Online() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
