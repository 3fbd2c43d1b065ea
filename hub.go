/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Seednode/bankbox/ledger"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const maxMessageSize = 4096

// ClientMessage is what browsers send over the socket.
type ClientMessage struct {
	Type      string `json:"type"`       // "join_session" or "leave_session"
	SessionID string `json:"session_id"` // game to (un)subscribe
}

// SubscribedMessage answers a join with the full state of the game.
type SubscribedMessage struct {
	Type      string              `json:"type"` // "subscribed"
	SessionID string              `json:"session_id"`
	State     ledger.SessionState `json:"state"`
}

type ErrorMessage struct {
	Type      string `json:"type"` // "error"
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type Client struct {
	conn *websocket.Conn
	send chan any

	// owned by the hub goroutine
	sessions map[string]bool
}

type subscription struct {
	client    *Client
	sessionID string
	join      bool
}

type directMessage struct {
	client *Client
	msg    any
}

// stateLoader is the slice of ledger.Service the hub needs for snapshots.
type stateLoader interface {
	State(ctx context.Context, sessionID string) (ledger.SessionState, error)
}

// Hub fans ledger events out to websocket clients. Every client hears
// session_created; everything else goes only to clients that joined
// the session.
type Hub struct {
	cfg *Config

	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register chan *Client
	unreg    chan *Client
	subs     chan subscription
	direct   chan directMessage
	events   chan ledger.Event
	done     chan struct{}
}

func newHub(cfg *Config) *Hub {
	return &Hub{
		cfg:      cfg,
		clients:  make(map[*Client]bool),
		rooms:    make(map[string]map[*Client]bool),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		subs:     make(chan subscription),
		direct:   make(chan directMessage),
		events:   make(chan ledger.Event, cfg.eventBuffer),
		done:     make(chan struct{}),
	}
}

// Publish never blocks. When the queue is full the event is dropped and
// clients catch up through the state endpoint.
func (h *Hub) Publish(ev ledger.Event) {
	select {
	case h.events <- ev:
	default:
		logf(h.cfg, "HUB: Dropped %s event for game %s (queue full)", ev.Type, ev.SessionID)
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()

			return

		case c := <-h.register:
			h.clients[c] = true

			logf(h.cfg, "HUB: Client connected (%d total)", len(h.clients))

		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				h.drop(c)

				logf(h.cfg, "HUB: Client disconnected (%d total)", len(h.clients))
			}

		case s := <-h.subs:
			if _, ok := h.clients[s.client]; !ok {
				continue
			}

			if s.join {
				room, ok := h.rooms[s.sessionID]
				if !ok {
					room = make(map[*Client]bool)
					h.rooms[s.sessionID] = room
				}
				room[s.client] = true
				s.client.sessions[s.sessionID] = true
			} else {
				h.leave(s.client, s.sessionID)
			}

		case d := <-h.direct:
			if _, ok := h.clients[d.client]; ok {
				h.deliver(d.client, d.msg)
			}

		case ev := <-h.events:
			if !ev.Scoped() {
				for c := range h.clients {
					h.deliver(c, ev)
				}

				continue
			}

			for c := range h.rooms[ev.SessionID] {
				h.deliver(c, ev)
			}
		}
	}
}

// deliver drops clients that cannot keep up instead of stalling the hub.
func (h *Hub) deliver(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		logf(h.cfg, "HUB: Dropping slow client")

		h.drop(c)
		_ = c.conn.Close()
	}
}

func (h *Hub) leave(c *Client, sessionID string) {
	delete(c.sessions, sessionID)

	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}

	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
	}
}

func (h *Hub) drop(c *Client) {
	for sessionID := range c.sessions {
		h.leave(c, sessionID)
	}

	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.drop(c)
		_ = c.conn.Close()
	}
}

// submit hands work to the hub unless it has already stopped.
func submit[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(cfg *Config, hub *Hub, states stateLoader) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "HUB: Upgrade failed for %s: %v", realIP(r), err)

			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, cfg.clientBuffer),
			sessions: make(map[string]bool),
		}

		if !submit(hub, hub.register, client) {
			_ = conn.Close()

			return
		}

		logf(cfg, "HUB: Websocket opened by %s", realIP(r))

		go client.writePump()
		client.readPump(hub, states)
	}
}

func (c *Client) readPump(h *Hub, states stateLoader) {
	defer func() {
		submit(h, h.unreg, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if !submit(h, h.direct, directMessage{client: c, msg: ErrorMessage{
				Type:    "error",
				Code:    "invalid_message",
				Message: "messages must be JSON objects",
			}}) {
				return
			}

			continue
		}

		switch msg.Type {
		case "join_session":
			if !c.join(h, states, msg.SessionID) {
				return
			}
		case "leave_session":
			if !submit(h, h.subs, subscription{client: c, sessionID: msg.SessionID}) {
				return
			}
		default:
			// ignore unknown types
		}
	}
}

// join subscribes before loading state, so an event racing the snapshot
// arrives early rather than not at all.
func (c *Client) join(h *Hub, states stateLoader, sessionID string) bool {
	if !submit(h, h.subs, subscription{client: c, sessionID: sessionID, join: true}) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	state, err := states.State(ctx, sessionID)
	if err != nil {
		reply := ErrorMessage{
			Type:      "error",
			SessionID: sessionID,
			Code:      "internal",
			Message:   "unable to load game",
		}

		if le, ok := asLedgerError(err); ok {
			reply.Code = le.Code
			reply.Message = le.Message
		} else {
			errorf("HUB: Loading game %s: %v", sessionID, err)
		}

		return submit(h, h.subs, subscription{client: c, sessionID: sessionID}) &&
			submit(h, h.direct, directMessage{client: c, msg: reply})
	}

	return submit(h, h.direct, directMessage{client: c, msg: SubscribedMessage{
		Type:      "subscribed",
		SessionID: sessionID,
		State:     state,
	}})
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))

		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
