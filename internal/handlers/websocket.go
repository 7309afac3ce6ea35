// -----------------------------------------------------------------------
// WebSocket Handler - Streams progress events to connected clients
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/common"
	"github.com/ternarybob/curo/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every frame pushed to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler fans progress events out to every connected client.
// job_progress frames are throttled per the configured interval so a chatty
// operation cannot flood the socket; batch_progress frames always go out.
type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]bool
	clientMutex       map[*websocket.Conn]*sync.Mutex
	mu                sync.RWMutex
	eventService      interfaces.EventService
	progressThrottler *rate.Limiter
	subscriptions     []interfaces.Subscription
	serverInstanceID  string
}

// NewWebSocketHandler creates the handler and subscribes it to the event bus
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	if config != nil && config.ProgressThrottle != "" {
		if duration, err := time.ParseDuration(config.ProgressThrottle); err == nil && duration > 0 {
			h.progressThrottler = rate.NewLimiter(rate.Every(duration), 1)
			logger.Debug().
				Str("interval", config.ProgressThrottle).
				Msg("Throttler initialized for job_progress events")
		} else if err != nil {
			logger.Warn().
				Err(err).
				Str("interval", config.ProgressThrottle).
				Msg("Failed to parse progress throttle interval - throttler disabled")
		}
	}

	if eventService != nil {
		h.subscribeToProgressEvents()
	}

	return h
}

func (h *WebSocketHandler) subscribeToProgressEvents() {
	jobSub, err := h.eventService.Subscribe(interfaces.EventJobProgress, func(ctx context.Context, event interfaces.Event) error {
		if h.progressThrottler != nil && !h.progressThrottler.Allow() {
			return nil
		}
		h.broadcast(string(event.Type), event.Payload)
		return nil
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to subscribe to job progress events")
	} else {
		h.subscriptions = append(h.subscriptions, jobSub)
	}

	batchSub, err := h.eventService.Subscribe(interfaces.EventBatchProgress, func(ctx context.Context, event interfaces.Event) error {
		h.broadcast(string(event.Type), event.Payload)
		return nil
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to subscribe to batch progress events")
	} else {
		h.subscriptions = append(h.subscriptions, batchSub)
	}
}

// Close revokes the event subscriptions and drops all clients
func (h *WebSocketHandler) Close() {
	for _, sub := range h.subscriptions {
		sub.Unsubscribe()
	}

	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientMutex = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	// Clients use the instance ID to detect a server restart and resync
	h.sendToClient(conn, WSMessage{
		Type: "hello",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
		},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

func (h *WebSocketHandler) sendToClient(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send message to client")
	}
}

func (h *WebSocketHandler) broadcast(msgType string, payload interface{}) {
	msg := WSMessage{
		Type:    msgType,
		Payload: payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send event to client")
		}
	}
}
