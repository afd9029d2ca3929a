package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
	"chartdesk/internal/ports"
	"chartdesk/internal/render"
)

// WebSocket heartbeat config
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
	inputTimeout   = 5 * time.Second
)

// InputHandler applies broadcaster input to the chart session.
type InputHandler interface {
	HandleInput(ctx context.Context, in Input) error
}

type client struct {
	conn *websocket.Conn
	role Role
	send chan []byte
}

// Hub fans chart output out to every connected browser and feeds broadcaster input back
// into the session. At most one broadcaster is connected at a time.
type Hub struct {
	logger   ports.Logger
	scope    domain.Scope
	upgrader websocket.Upgrader

	mu          sync.Mutex
	handler     InputHandler
	clients     map[*client]bool
	broadcaster *client

	// Latest state, replayed to late joiners.
	lastFrame     []byte
	lastDrawings  []byte
	lastPositions []byte
}

// NewHub creates a hub for one broadcast scope.
func NewHub(scope domain.Scope, logger ports.Logger) *Hub {
	return &Hub{
		logger:  logger,
		scope:   scope,
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// SetHandler installs the receiver of broadcaster input.
func (h *Hub) SetHandler(handler InputHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// ClientCount returns the number of connected browsers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and serves the connection until it drops.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, role Role) {
	ctx := r.Context()

	if role == RoleBroadcaster && h.hasBroadcaster() {
		http.Error(w, "broadcaster already connected", http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	c := &client{conn: conn, role: role, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "broadcaster already connected"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client. Their read pumps unregister them as the sockets fail.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
	}
}

func (h *Hub) hasBroadcaster() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.broadcaster != nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.role == RoleBroadcaster {
		if h.broadcaster != nil {
			return false
		}
		h.broadcaster = c
	}

	if data, err := json.Marshal(newInitMessage(c.role, h.scope)); err == nil {
		c.send <- data
	}
	for _, data := range [][]byte{h.lastDrawings, h.lastPositions, h.lastFrame} {
		if data != nil {
			c.send <- data
		}
	}
	h.clients[c] = true
	h.logger.Info(context.Background(), "Client connected", map[string]interface{}{"role": string(c.role), "clients": len(h.clients)})
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

// drop removes a client; the caller holds h.mu.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.broadcaster == c {
		h.broadcaster = nil
	}
	h.logger.Info(context.Background(), "Client disconnected", map[string]interface{}{"role": string(c.role), "clients": len(h.clients)})
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn(context.Background(), "WebSocket read failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		// Viewers are read only to notice disconnects.
		if c.role != RoleBroadcaster {
			continue
		}
		h.dispatch(data)
	}
}

func (h *Hub) dispatch(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), inputTimeout)
	defer cancel()

	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		h.logger.Warn(ctx, "Dropping malformed input", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := in.Validate(); err != nil {
		h.logger.Warn(ctx, "Dropping invalid input", map[string]interface{}{"type": in.Type, "error": err.Error()})
		return
	}

	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	if handler == nil {
		return
	}
	if err := handler.HandleInput(ctx, in); err != nil {
		h.logger.Warn(ctx, "Input rejected", map[string]interface{}{"type": in.Type, "error": err.Error()})
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// broadcast queues data for every client accepted by filter. Clients that cannot keep up
// are disconnected.
func (h *Hub) broadcast(data []byte, filter func(*client) bool) {
	for c := range h.clients {
		if filter != nil && !filter(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn(context.Background(), "Dropping slow client", map[string]interface{}{"role": string(c.role)})
			h.drop(c)
		}
	}
}

func (h *Hub) marshal(msg interface{}) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), err, "Broadcast marshal error")
		return nil
	}
	return data
}

// PublishFrame sends a recorded frame to every client.
func (h *Hub) PublishFrame(dl *render.DisplayList) {
	data := h.marshal(FrameMessage{Type: TypeFrame, Width: dl.Width, Height: dl.Height, Ops: dl.Ops})
	if data == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastFrame = data
	h.broadcast(data, nil)
}

// PublishDrawings sends the full drawing list to every client.
func (h *Hub) PublishDrawings(drawings []domain.Drawing) {
	if drawings == nil {
		drawings = []domain.Drawing{}
	}
	data := h.marshal(DrawingsMessage{Type: TypeDrawings, Drawings: drawings})
	if data == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastDrawings = data
	h.broadcast(data, nil)
}

// PublishPositions sends the open positions to every client.
func (h *Hub) PublishPositions(positions []domain.Position) {
	if positions == nil {
		positions = []domain.Position{}
	}
	data := h.marshal(PositionsMessage{Type: TypePositions, Positions: positions})
	if data == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastPositions = data
	h.broadcast(data, nil)
}

// PublishTextRequest asks the broadcaster for label text.
func (h *Hub) PublishTextRequest(req chart.TextRequest) {
	data := h.marshal(newTextRequestMessage(req))
	if data == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast(data, func(c *client) bool { return c.role == RoleBroadcaster })
}
