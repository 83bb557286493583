package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/progress"
)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub fans job progress events out to websocket subscribers
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	// Terminal message of each recently finished job, replayed to late
	// subscribers
	finished map[string]finishedJob

	mu sync.RWMutex
}

// finishedRetention bounds how long a terminal message is replayed
const finishedRetention = 24 * time.Hour

type finishedJob struct {
	message []byte
	at      time.Time
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
	// Final closes the job's subscriptions once delivered
	Final bool
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		finished:   make(map[string]finishedJob),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if done, ok := h.finished[client.JobID]; ok {
				select {
				case client.Send <- done.message:
				default:
				}
				close(client.Send)
				h.mu.Unlock()
				log.Printf("[ws] job %s already finished, replayed terminal event", client.JobID)
				continue
			}
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			log.Printf("[ws] client registered for job %s", client.JobID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			log.Printf("[ws] client unregistered from job %s", client.JobID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			if msg.Final {
				h.rememberLocked(msg, time.Now())
			}
			for client := range h.clients[msg.JobID] {
				select {
				case client.Send <- msg.Message:
					if msg.Final {
						h.removeLocked(client)
					}
				default:
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) rememberLocked(msg *BroadcastMessage, now time.Time) {
	for jobID, done := range h.finished {
		if now.Sub(done.at) > finishedRetention {
			delete(h.finished, jobID)
		}
	}
	h.finished[msg.JobID] = finishedJob{message: msg.Message, at: now}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.JobID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.JobID)
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

// Subscribers returns how many clients listen to jobID
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// BroadcastEvent sends one progress event to all job subscribers
func (h *Hub) BroadcastEvent(jobID string, seq int, ev progress.Event) {
	msg := model.WSEventMessage{
		Type:  model.WSMessageTypeEvent,
		JobID: jobID,
		Seq:   seq,
		Event: ev,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ws] failed to marshal event for job %s: %v", jobID, err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		JobID:   jobID,
		Message: data,
		Final:   ev.Terminal(),
	}
}

// JobSink adapts the hub to a job's progress emitter
func (h *Hub) JobSink(jobID string) progress.Sink {
	return progress.SinkFunc(func(seq int, ev progress.Event) {
		h.BroadcastEvent(jobID, seq, ev)
	})
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

	// All writes happen on the writer goroutine. Send is closed by the hub.
	pongs := make(chan struct{}, 1)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					c.Close()
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-pongs:
				pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
				if err := c.WriteMessage(websocket.TextMessage, pong); err != nil {
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error on job %s: %v", jobID, err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}
