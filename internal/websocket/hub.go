package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/contactcopilof/APPLI-VIDEO/internal/logger"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
)

const (
	pingInterval = 30 * time.Second
	// replayJobs bounds how many runs keep their latest message for late subscribers
	replayJobs = 64
)

// Client is one websocket subscriber of a run
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub fans run updates out to the clients subscribed to each run. A client
// that subscribes after a run has started first receives the latest message
// sent for it.
type Hub struct {
	clients    map[string]map[*Client]bool
	last       map[string][]byte
	lastOrder  []string
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		last:       make(map[string][]byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns after Stop
func (h *Hub) Run() {
	log := logger.Named("ws")
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			if data, ok := h.last[client.JobID]; ok {
				select {
				case client.Send <- data:
				default:
				}
			}
			h.mu.Unlock()
			log.Debug().Str("job_id", client.JobID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.JobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.JobID)
					}
				}
			}
			h.mu.Unlock()
			log.Debug().Str("job_id", client.JobID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.remember(msg.JobID, msg.Message)
			if clients, ok := h.clients[msg.JobID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.JobID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remember must be called with mu held.
func (h *Hub) remember(jobID string, data []byte) {
	if _, ok := h.last[jobID]; !ok {
		h.lastOrder = append(h.lastOrder, jobID)
		if len(h.lastOrder) > replayJobs {
			delete(h.last, h.lastOrder[0])
			h.lastOrder = h.lastOrder[1:]
		}
	}
	h.last[jobID] = data
}

// lastMessage returns the message a new subscriber of jobID would replay.
func (h *Hub) lastMessage(jobID string) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last[jobID]
}

// Stop ends Run
func (h *Hub) Stop() {
	close(h.done)
}

// Subscribers returns the number of clients watching jobID
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastProgress sends a status change to all job subscribers
func (h *Hub) BroadcastProgress(jobID string, status model.WorkflowStatus, step string) {
	h.send(jobID, model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		JobID:       jobID,
		Status:      status,
		CurrentStep: step,
	})
}

// BroadcastComplete sends a completion message to all job subscribers
func (h *Hub) BroadcastComplete(jobID string, result interface{}) {
	h.send(jobID, model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		JobID:  jobID,
		Result: result,
	})
}

// BroadcastError sends an error message to all job subscribers
func (h *Hub) BroadcastError(jobID string, code, message string) {
	h.send(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// send drops the message when the hub is stopped or the queue is full, so
// state changes never block on slow subscribers.
func (h *Hub) send(jobID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Named("ws").Error().Err(err).Msg("failed to marshal message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
	case <-h.done:
	default:
		logger.Named("ws").Warn().Str("job_id", jobID).Msg("broadcast queue full, dropping message")
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Named("ws").Warn().Err(err).Str("job_id", jobID).Msg("websocket closed unexpectedly")
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}
