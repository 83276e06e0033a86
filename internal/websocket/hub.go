package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/bus"
	"github.com/pixelmuse/api/internal/model"
)

// Client is one WebSocket subscriber for one job.
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub bridges the in-process progress bus to WebSocket subscribers.
// Each connection gets its own bus subscription; the hub itself only
// tracks clients so it can report on them and close them down.
type Hub struct {
	bus *bus.Bus
	log *zap.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]bool
}

// NewHub creates a hub over the given progress bus.
func NewHub(b *bus.Bus, log *zap.Logger) *Hub {
	return &Hub{
		bus:     b,
		log:     log.Named("ws"),
		clients: make(map[string]map[*Client]bool),
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	if h.clients[client.JobID] == nil {
		h.clients[client.JobID] = make(map[*Client]bool)
	}
	h.clients[client.JobID][client] = true
	h.mu.Unlock()
	h.log.Debug("client registered", zap.String("jobId", client.JobID))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if clients, ok := h.clients[client.JobID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, client.JobID)
			}
		}
	}
	h.mu.Unlock()
	h.log.Debug("client unregistered", zap.String("jobId", client.JobID))
}

// SubscriberCount reports the number of open connections for a job.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// encode turns a progress event into the wire message for its phase.
// Terminal states get their own message types so clients can tear down
// without inspecting the status string.
func encode(ev model.ProgressEvent) []byte {
	var msg interface{}
	switch {
	case ev.Status == model.JobStatusCompleted:
		msg = model.WSCompleteMessage{
			Type:     model.WSMessageTypeComplete,
			JobID:    ev.JobID,
			Progress: ev.Progress,
			Status:   ev.Status,
		}
	case ev.Status.Terminal():
		wsErr := model.WSError{Code: model.CodeInternalError, Message: "job did not complete"}
		if ev.Error != nil {
			wsErr = model.WSError{Code: ev.Error.Code, Message: ev.Error.Message}
		}
		msg = model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: ev.JobID,
			Error: wsErr,
		}
	default:
		msg = model.WSProgressMessage{
			Type:        model.WSMessageTypeProgress,
			JobID:       ev.JobID,
			Progress:    ev.Progress,
			Status:      ev.Status,
			CurrentStep: ev.Step,
			Message:     ev.Message,
		}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}

// HandleConnection serves one WebSocket connection until the client
// disconnects. On connect the last cached event for the job is replayed
// so a reconnecting client does not wait for the next checkpoint.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.register(client)
	defer h.unregister(client)

	events, cancel := h.bus.Subscribe(jobID)
	defer cancel()

	if ev, ok := h.bus.LastEvent(jobID); ok {
		if data := encode(ev); data != nil {
			client.Send <- data
		}
	}

	done := make(chan struct{})
	defer close(done)

	// Forward bus events into the send channel, dropping when the
	// client cannot keep up; the replay on reconnect covers the gap.
	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				data := encode(ev)
				if data == nil {
					continue
				}
				select {
				case client.Send <- data:
				default:
					h.log.Debug("dropping message for slow client", zap.String("jobId", jobID))
				}
			case <-done:
				return
			}
		}
	}()

	// Writer goroutine
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
				// Keep-alive ping
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-done:
				return
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket closed", zap.String("jobId", jobID), zap.Error(err))
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
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}
