// Package wsserver exposes the bridge state over HTTP and WebSocket. It is
// an observation surface only; nothing here mutates bridge state.
package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

// StateSource is the read-only view of the relayer the server publishes.
type StateSource interface {
	GetBridgeState() (bridge.BridgeState, error)
	LastMirrorTxHash() string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents one WebSocket client connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// StateUpdate is the envelope pushed to WebSocket clients.
type StateUpdate struct {
	Event     string             `json:"event"`
	Timestamp time.Time          `json:"timestamp"`
	State     bridge.BridgeState `json:"state"`
}

// ClientMessage from client
type ClientMessage struct {
	Type string `json:"type"`
}

// Hub manages client connections and fans state updates out to them.
type Hub struct {
	source StateSource
	logger log.Logger

	clients    map[*Client]bool
	broadcast  chan *StateUpdate
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func newHub(source StateSource, logger log.Logger) *Hub {
	return &Hub{
		source:     source,
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *StateUpdate, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("WebSocket client registered", "total_clients", total)

			go h.sendSnapshot(client, EventState)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("WebSocket client unregistered", "total_clients", total)

		case update := <-h.broadcast:
			message, err := json.Marshal(update)
			if err != nil {
				h.logger.Error("Failed to marshal state update", "error", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// sendSnapshot queries the current state and pushes it to one client.
func (h *Hub) sendSnapshot(client *Client, event string) {
	state, err := h.source.GetBridgeState()
	if err != nil {
		h.logger.Error("Failed to load state for snapshot", "error", err)
		return
	}
	update := &StateUpdate{Event: event, Timestamp: time.Now().UTC(), State: state}
	message, err := json.Marshal(update)
	if err != nil {
		return
	}
	select {
	case client.send <- message:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("WebSocket read error", "error", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == MsgTypePing {
			pong, _ := json.Marshal(map[string]string{"type": EventPong})
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Server is the HTTP/WebSocket status server.
type Server struct {
	addr   string
	hub    *Hub
	logger log.Logger
	http   *http.Server
}

// New creates a status server listening on addr.
func New(addr string, source StateSource, logger log.Logger) *Server {
	s := &Server{
		addr:   addr,
		logger: logger.With("module", "bridge/wsserver"),
	}
	s.hub = newHub(source, s.logger)

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWs).Methods(http.MethodGet)
	r.HandleFunc("/state", s.serveState).Methods(http.MethodGet)
	r.HandleFunc("/health", s.serveHealth).Methods(http.MethodGet)
	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.run(ctx)

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 Status server listening", "addr", s.addr)
		errs <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		return nil
	case err := <-errs:
		return err
	}
}

// Broadcast pushes a fresh state snapshot to all connected clients, tagged
// with the event that caused it.
func (s *Server) Broadcast(event string) {
	state, err := s.hub.source.GetBridgeState()
	if err != nil {
		s.logger.Error("Failed to load state for broadcast", "error", err)
		return
	}
	update := &StateUpdate{Event: event, Timestamp: time.Now().UTC(), State: state}
	select {
	case s.hub.broadcast <- update:
	default:
		s.logger.Warn("⚠️ Broadcast queue full, dropping update", "event", event)
	}
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (s *Server) serveState(w http.ResponseWriter, r *http.Request) {
	state, err := s.hub.source.GetBridgeState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		State            bridge.BridgeState `json:"state"`
		LastMirrorTxHash string             `json:"lastMirrorTxHash,omitempty"`
	}{State: state, LastMirrorTxHash: s.hub.source.LastMirrorTxHash()})
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	s.hub.mu.RLock()
	clients := len(s.hub.clients)
	s.hub.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clients,
	})
}
