package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TelemetryFrame is one live update pushed to session subscribers.
type TelemetryFrame struct {
	SessionID          int64     `json:"session_id"`
	SessionCode        string    `json:"session_code"`
	Status             string    `json:"status"`
	CurrentSOC         float64   `json:"current_soc"`
	PowerKW            float64   `json:"power_kw"`
	KWhConsumed        float64   `json:"kwh_consumed"`
	ProgressPercentage float64   `json:"progress_percentage"`
	EstimatedMinutes   int       `json:"estimated_minutes_remaining"`
	Timestamp          time.Time `json:"timestamp"`
}

// Hub fans telemetry frames out to websocket subscribers per session.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int64]map[*websocket.Conn]struct{}
	logger      *zap.Logger
}

// NewHub builds the fan-out hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[int64]map[*websocket.Conn]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a connection for a session's frames.
func (h *Hub) Subscribe(sessionID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[*websocket.Conn]struct{})
	}
	h.subscribers[sessionID][conn] = struct{}{}
}

// Unsubscribe drops a connection; empty session buckets are removed.
func (h *Hub) Unsubscribe(sessionID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.subscribers[sessionID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subscribers, sessionID)
		}
	}
}

// Broadcast pushes a frame to every subscriber of the session. Write
// failures close and drop the subscriber.
func (h *Hub) Broadcast(frame TelemetryFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Warn("failed to encode telemetry frame", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.subscribers[frame.SessionID]
	for conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("dropping telemetry subscriber",
				zap.Int64("session_id", frame.SessionID),
				zap.Error(err),
			)
			conn.Close()
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(h.subscribers, frame.SessionID)
	}
}
