package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/tunecraft/api/internal/model"
)

// Client represents one browser connection watching a surface
type Client struct {
	SurfaceID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// Hub relays tracked job state to browser clients, grouped by UI surface
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast to one surface
type BroadcastMessage struct {
	SurfaceID string
	Message   []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.SurfaceID] == nil {
				h.clients[client.SurfaceID] = make(map[*Client]bool)
			}
			h.clients[client.SurfaceID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for surface %s", client.SurfaceID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.SurfaceID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.SurfaceID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from surface %s", client.SurfaceID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.SurfaceID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// RelayJob pushes a tracked-job snapshot to the surface's watchers. Used as
// a tracker observer for both progress updates and terminal transitions.
func (h *Hub) RelayJob(surfaceID string, job model.Job) {
	switch job.Status {
	case model.JobStatusCompleted:
		h.send(surfaceID, model.WSCompleteMessage{
			Type:      model.WSMessageTypeComplete,
			SurfaceID: surfaceID,
			JobID:     job.PrimaryID,
			Results:   job.Results,
		})
	case model.JobStatusFailed:
		h.send(surfaceID, model.WSErrorMessage{
			Type:      model.WSMessageTypeError,
			SurfaceID: surfaceID,
			JobID:     job.PrimaryID,
			Error: model.WSError{
				Code:    "CONVERSION_FAILED",
				Message: job.ErrorMessage,
			},
		})
	default:
		h.send(surfaceID, model.WSProgressMessage{
			Type:            model.WSMessageTypeProgress,
			SurfaceID:       surfaceID,
			JobID:           job.PrimaryID,
			Status:          job.Status,
			ProgressPercent: job.ProgressPercent,
			ETARemaining:    job.ETARemaining,
		})
	}
}

func (h *Hub) send(surfaceID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal hub message: %v", err)
		return
	}
	h.broadcast <- &BroadcastMessage{SurfaceID: surfaceID, Message: data}
}

// HandleConnection handles a browser WebSocket connection for one surface
func (h *Hub) HandleConnection(c *websocket.Conn, surfaceID string) {
	client := &Client{
		SurfaceID: surfaceID,
		Conn:      c,
		Send:      make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Writer goroutine with keep-alive pings
	go func() {
		ticker := time.NewTicker(30 * time.Second)
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
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

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
