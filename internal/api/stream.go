package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/monitoring"
	"github.com/deskshell/deskshell/internal/servers"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // UI layer connects from the app origin
	},
}

// Stream fans registry events out to connected UI clients over
// WebSocket.
type Stream struct {
	bus     *servers.Bus
	metrics *monitoring.Metrics
	log     *logging.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *streamClient) send(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(data)
}

// NewStream creates the event stream and subscribes it to the registry
// bus for the process lifetime.
func NewStream(bus *servers.Bus, metrics *monitoring.Metrics, log *logging.Logger) *Stream {
	s := &Stream{
		bus:     bus,
		metrics: metrics,
		log:     log.Named("stream"),
		clients: make(map[*streamClient]struct{}),
	}
	bus.SubscribeAll(s.broadcast)
	return s
}

// HandleConnection handles WebSocket upgrade and keeps the client
// subscribed until it disconnects.
func (s *Stream) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{conn: conn}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	s.metrics.IncWSConnections()

	client.send(map[string]any{
		"type":      "system",
		"message":   "connected",
		"timestamp": time.Now().Unix(),
	})

	defer func() {
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
		s.metrics.DecWSConnections()
		conn.Close()
	}()

	// Read loop: the UI only sends pings, anything unreadable ends the
	// connection.
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.metrics.RecordWSMessage("in", msg.Type)
		if msg.Type == "ping" {
			client.send(map[string]any{"type": "pong"})
		}
	}
}

// BroadcastSurface delivers a surface lifecycle notification to every
// connected client.
func (s *Stream) BroadcastSurface(msgType string, payload map[string]any) {
	s.mu.Lock()
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	msg := map[string]any{
		"type":      msgType,
		"timestamp": time.Now().Unix(),
	}
	for k, v := range payload {
		msg[k] = v
	}
	for _, c := range clients {
		if err := c.send(msg); err != nil {
			s.log.Debug("websocket write failed", zap.Error(err))
			continue
		}
		s.metrics.RecordWSMessage("out", msgType)
	}
}

// broadcast delivers one registry event to every connected client.
// Registry events are published synchronously, so this runs on the
// mutating goroutine; writes that fail drop silently and the read loop
// reaps the dead client.
func (s *Stream) broadcast(ev servers.Event) {
	s.mu.Lock()
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	payload := map[string]any{
		"type":      "server_event",
		"event":     ev,
		"timestamp": time.Now().Unix(),
	}
	for _, c := range clients {
		if err := c.send(payload); err != nil {
			s.log.Debug("websocket write failed", zap.Error(err))
			continue
		}
		s.metrics.RecordWSMessage("out", string(ev.Type))
	}
}
