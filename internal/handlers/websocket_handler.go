package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sponsor-backend/internal/services"
)

// StateUpdateMessage one transaction state transition pushed to subscribers
type StateUpdateMessage struct {
	Type          string    `json:"type"`
	TransactionID string    `json:"transaction_id"`
	State         string    `json:"state"`
	Timestamp     time.Time `json:"timestamp"`
}

// WebSocketHandler streams pending-transaction state transitions to clients.
// One connection watches one transaction id; the handler fans cache listener
// callbacks out to the matching subscribers.
type WebSocketHandler struct {
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[string]map[string]chan StateUpdateMessage
}

// NewWebSocketHandler creates the handler and registers it with the cache's
// state listener. Must be called before the cache is shared across goroutines.
func NewWebSocketHandler(cache *services.PendingTransactionCache) *WebSocketHandler {
	h := &WebSocketHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		subscribers: make(map[string]map[string]chan StateUpdateMessage),
	}
	cache.OnStateChange(h.onStateChange)
	return h
}

func (h *WebSocketHandler) onStateChange(id string, state services.TransactionState) {
	message := StateUpdateMessage{
		Type:          "state_update",
		TransactionID: id,
		State:         string(state),
		Timestamp:     time.Now(),
	}

	h.mu.Lock()
	clients := h.subscribers[id]
	channels := make([]chan StateUpdateMessage, 0, len(clients))
	for _, ch := range clients {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- message:
		default:
			// Slow consumer; drop rather than block the pipeline
		}
	}
}

func (h *WebSocketHandler) subscribe(txnID, clientID string) chan StateUpdateMessage {
	ch := make(chan StateUpdateMessage, 16)
	h.mu.Lock()
	if h.subscribers[txnID] == nil {
		h.subscribers[txnID] = make(map[string]chan StateUpdateMessage)
	}
	h.subscribers[txnID][clientID] = ch
	h.mu.Unlock()
	return ch
}

func (h *WebSocketHandler) unsubscribe(txnID, clientID string) {
	h.mu.Lock()
	if clients, ok := h.subscribers[txnID]; ok {
		delete(clients, clientID)
		if len(clients) == 0 {
			delete(h.subscribers, txnID)
		}
	}
	h.mu.Unlock()
}

// StreamHandler GET /api/ws/transactions/:id
func (h *WebSocketHandler) StreamHandler(c *gin.Context) {
	txnID := c.Param("id")
	if txnID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "transaction id required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ [WebSocket] Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	updates := h.subscribe(txnID, clientID)
	defer h.unsubscribe(txnID, clientID)

	log.Printf("📡 [WebSocket] Client %s watching transaction %s", clientID, txnID)

	conn.WriteJSON(map[string]interface{}{
		"type":           "connected",
		"client_id":      clientID,
		"transaction_id": txnID,
		"timestamp":      time.Now(),
	})

	// Read loop only detects close; clients send nothing meaningful
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}()

	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case message := <-updates:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(message); err != nil {
				log.Printf("❌ [WebSocket] Write error for client %s: %v", clientID, err)
				return
			}
			// Terminal states end the stream
			switch message.State {
			case string(services.StateConfirmed), string(services.StateFailed), string(services.StateExpired):
				log.Printf("🔌 [WebSocket] Transaction %s reached %s, closing stream for %s", txnID, message.State, clientID)
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			log.Printf("🔌 [WebSocket] Client %s disconnected from %s", clientID, txnID)
			return
		}
	}
}
