// Package feed streams bot events to websocket clients and accepts operator
// commands on the same connection.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Controller carries out operator commands.
type Controller interface {
	Start(mode string, startID int64) error
	Stop()
	Reset(ctx context.Context) error
	BulkPercent(ctx context.Context, side string, pct int) error
	BulkAmount(ctx context.Context, side, amount string) error
	RefreshBalances(ctx context.Context) error
}

// Command is one operator request read from a client.
type Command struct {
	Cmd       string `json:"cmd"`
	Mode      string `json:"mode,omitempty"`
	AccountID int64  `json:"account_id,omitempty"`
	Side      string `json:"side,omitempty"`
	Percent   int    `json:"percent,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

type Reply struct {
	Type  string `json:"type"` // "reply"
	Cmd   string `json:"cmd"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type eventMessage struct {
	Type  string       `json:"type"` // "event"
	Line  string       `json:"line"`
	Event events.Event `json:"event"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub keeps the connected clients. It implements events.Sink.
type Hub struct {
	ctrl Controller

	clients   map[*client]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
}

func NewHub(ctrl Controller) *Hub {
	return &Hub{
		ctrl:    ctrl,
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			// The feed binds to localhost by default.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[warn] feed upgrade: %v", err)
		return
	}
	c := &client{conn: conn}
	h.register(c)
	defer func() {
		h.unregister(c)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		reply := Reply{Type: "reply"}
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply.Error = "bad command: " + err.Error()
		} else {
			reply.Cmd = cmd.Cmd
			if err := h.dispatch(r.Context(), cmd); err != nil {
				reply.Error = err.Error()
			} else {
				reply.OK = true
			}
		}
		out, _ := json.Marshal(reply)
		if err := c.write(out); err != nil {
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, cmd Command) error {
	if h.ctrl == nil {
		return errors.New("commands are disabled")
	}
	switch cmd.Cmd {
	case "start":
		return h.ctrl.Start(cmd.Mode, 0)
	case "start_from":
		return h.ctrl.Start(cmd.Mode, cmd.AccountID)
	case "stop":
		h.ctrl.Stop()
		return nil
	case "reset":
		return h.ctrl.Reset(ctx)
	case "bulk_percent":
		return h.ctrl.BulkPercent(ctx, cmd.Side, cmd.Percent)
	case "bulk_amount":
		return h.ctrl.BulkAmount(ctx, cmd.Side, cmd.Amount)
	case "refresh_balances":
		return h.ctrl.RefreshBalances(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd.Cmd)
	}
}

func (h *Hub) register(c *client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	delete(h.clients, c)
}

func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Emit broadcasts ev to every client. Clients that fail a write are dropped.
func (h *Hub) Emit(ev events.Event) {
	data, err := json.Marshal(eventMessage{Type: "event", Line: events.Line(ev), Event: ev})
	if err != nil {
		log.Printf("[warn] feed marshal: %v", err)
		return
	}

	h.clientsMu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clientsMu.Unlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			c.conn.Close()
			h.unregister(c)
		}
	}
}
