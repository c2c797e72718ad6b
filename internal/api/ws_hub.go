// Package api exposes the decision engine over HTTP and WebSocket: job
// submission and retrieval, order ticket construction, and the tracked
// position lifecycle.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snapbet/decision-engine/internal/metrics"
	"github.com/snapbet/decision-engine/internal/model"
)

// WSMessage is a JSON message pushed to WebSocket clients.
type WSMessage struct {
	Type       string `json:"type"`
	JobID      string `json:"job_id,omitempty"`
	PositionID string `json:"position_id,omitempty"`
	Ticker     string `json:"ticker,omitempty"`
	Side       string `json:"side,omitempty"`
	Status     string `json:"status,omitempty"`
	Price      *int   `json:"price,omitempty"`
	Delta      *int   `json:"delta,omitempty"`
	PnL        *int   `json:"pnl,omitempty"`
}

// WSHub manages WebSocket connections and broadcasts lifecycle events to
// all connected clients.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking the caller.
	}
}

// NotifyJobCompleted pushes a terminal job status to clients so they stop
// polling GET /predictions/{id}.
func (h *WSHub) NotifyJobCompleted(job *model.PredictionJob) {
	msg := WSMessage{
		Type:   "job_completed",
		JobID:  job.JobID,
		Status: string(job.Status),
	}
	if job.Rec != nil {
		msg.Ticker = job.Rec.Ticker
		msg.Side = string(job.Rec.Side)
	}
	h.Broadcast(msg)
}

// NotifySettlement implements position.Notifier.
func (h *WSHub) NotifySettlement(pos *model.TrackedPosition) {
	h.Broadcast(WSMessage{
		Type:       "position_settled",
		PositionID: pos.PositionID,
		Ticker:     pos.Ticker,
		Side:       string(pos.Side),
		Status:     string(pos.Status),
		Price:      pos.SettlementPrice,
		PnL:        pos.RealizedPnL,
	})
}

// NotifyPriceMove implements position.Notifier.
func (h *WSHub) NotifyPriceMove(pos *model.TrackedPosition, delta int) {
	h.Broadcast(WSMessage{
		Type:       "price_move",
		PositionID: pos.PositionID,
		Ticker:     pos.Ticker,
		Side:       string(pos.Side),
		Price:      pos.CurrentPrice,
		Delta:      &delta,
		PnL:        pos.UnrealizedPnL,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
