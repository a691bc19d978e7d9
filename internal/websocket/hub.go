package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/infinitystory/humanstudy/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	DeviceID string
	Conn     *websocket.Conn
	Send     chan []byte
}

// Hub pushes session views to the browsers of each device
type Hub struct {
	// Clients grouped by device ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	log zerolog.Logger
	mu  sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	DeviceID string
	Message  []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		log:        log.Logger.With().Str("component", "ws-hub").Logger(),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.DeviceID] == nil {
				h.clients[client.DeviceID] = make(map[*Client]bool)
			}
			h.clients[client.DeviceID][client] = true
			h.mu.Unlock()
			h.log.Debug().Str("device", client.DeviceID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.log.Debug().Str("device", client.DeviceID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.DeviceID] {
				select {
				case client.Send <- msg.Message:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

// Stop ends the main loop
func (h *Hub) Stop() {
	close(h.done)
}

// remove drops client; callers hold h.mu
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.DeviceID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.DeviceID)
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

// Subscribers returns the number of open connections of a device
func (h *Hub) Subscribers(deviceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[deviceID])
}

func (h *Hub) publish(deviceID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{DeviceID: deviceID, Message: data}:
	default:
		h.log.Warn().Str("device", deviceID).Msg("broadcast queue full, dropping message")
	}
}

// BroadcastView sends the current session view to a device
func (h *Hub) BroadcastView(deviceID string, view model.View) {
	h.publish(deviceID, model.WSViewMessage{
		Type:     model.WSMessageTypeView,
		DeviceID: deviceID,
		View:     view,
	})
}

// BroadcastComplete tells a device its session has finished
func (h *Hub) BroadcastComplete(deviceID string, flow model.Flow, summary interface{}) {
	h.publish(deviceID, model.WSCompleteMessage{
		Type:     model.WSMessageTypeComplete,
		DeviceID: deviceID,
		Flow:     flow,
		Summary:  summary,
	})
}

// BroadcastError sends an error message to a device
func (h *Hub) BroadcastError(deviceID string, code, message string) {
	h.publish(deviceID, model.WSErrorMessage{
		Type:     model.WSMessageTypeError,
		DeviceID: deviceID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, deviceID string) {
	client := &Client{
		DeviceID: deviceID,
		Conn:     c,
		Send:     make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Writer
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
				h.log.Warn().Err(err).Str("device", deviceID).Msg("websocket error")
			}
			break
		}

		h.handleMessage(client, message)
	}
}

// handleMessage answers client pings
func (h *Hub) handleMessage(client *Client, message []byte) {
	var msg model.WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if msg.Type == model.WSMessageTypePing {
		data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
		h.reply(client, data)
	}
}

// reply queues data for one client. Clients the hub already dropped are
// skipped since their Send channel is closed.
func (h *Hub) reply(client *Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client.DeviceID][client] {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}
