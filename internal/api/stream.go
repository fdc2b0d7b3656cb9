package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"supersim/internal/metrics"
	"supersim/internal/tick"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one frame sent to a /ws subscriber.
type StreamMessage struct {
	Type      string      `json:"type"` // "hello" or "status"
	SessionID string      `json:"sessionId,omitempty"`
	Status    tick.Status `json:"status"`
}

type streamClient struct {
	id   string
	send chan StreamMessage
}

// streamHub fans controller transitions out to WebSocket subscribers. A
// subscriber that cannot keep up is disconnected.
type streamHub struct {
	ctrl   *tick.Controller
	logger *slog.Logger

	mu          sync.Mutex
	clients     map[*streamClient]struct{}
	closed      bool
	last        tick.Status
	unsubscribe func()
}

func newStreamHub(ctrl *tick.Controller, logger *slog.Logger) *streamHub {
	h := &streamHub{
		ctrl:    ctrl,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
	h.unsubscribe = ctrl.Subscribe(h.broadcast)
	return h
}

func (h *streamHub) broadcast(st tick.Status) {
	msg := StreamMessage{Type: "status", Status: st}

	h.mu.Lock()
	defer h.mu.Unlock()
	// a transition of a superseded request can arrive after a newer one
	if h.last.Newer(st) {
		return
	}
	h.last = st
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping slow stream subscriber", "sessionID", c.id)
			h.removeLocked(c)
		}
	}
}

func (h *streamHub) add() (*streamClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &streamClient{id: uuid.New().String(), send: make(chan StreamMessage, streamBuffer)}
	h.clients[c] = struct{}{}
	metrics.StreamClients.Inc()
	return c, true
}

func (h *streamHub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *streamHub) removeLocked(c *streamClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.StreamClients.Dec()
}

// Len returns the number of connected subscribers.
func (h *streamHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and detaches from the controller.
func (h *streamHub) Close() {
	h.unsubscribe()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// handleStream upgrades to a WebSocket and pushes every controller transition.
// The first frame is a hello carrying the session ID and the current status.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	client, ok := s.hub.add()
	if !ok {
		ServiceUnavailable(w, "server is shutting down")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.remove(client)
		s.logger.Warn("WebSocket upgrade failed", "error", err.Error())
		return
	}
	defer ws.Close()
	s.logger.Info("Stream subscriber connected", "sessionID", client.id)

	// The reader only exists to process control frames and notice a close.
	go func() {
		defer s.hub.remove(client)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(streamPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	hello := StreamMessage{Type: "hello", SessionID: client.id, Status: s.session.Controller.Status()}
	if err := writeFrame(ws, hello); err != nil {
		s.hub.remove(client)
		return
	}

	last := hello.Status
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case msg, open := <-client.send:
			if !open {
				_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				s.logger.Info("Stream subscriber disconnected", "sessionID", client.id)
				return
			}
			if last.Newer(msg.Status) {
				continue
			}
			last = msg.Status
			if err := writeFrame(ws, msg); err != nil {
				s.hub.remove(client)
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.remove(client)
				return
			}
		}
	}
}

func writeFrame(ws *websocket.Conn, msg StreamMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return ws.WriteJSON(msg)
}
