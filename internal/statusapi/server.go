// Package statusapi exposes the running node's state over HTTP: a JSON
// snapshot of the request table, peer set and cabin FSM, plus a
// websocket feed of live transitions. Routing follows the teacher's
// internal/handlers package (gorilla/mux, a respondJSON helper); the
// websocket feed is the teacher's internal/websocket.MonitorHub adapted
// to this domain's events instead of audit MonitorEvents.
package statusapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"liftd/internal/fsm"
	"liftd/internal/handler"
	"liftd/internal/request"
)

// Event is one state-change notification pushed to websocket clients.
type Event struct {
	Type      string      `json:"type"` // "cell", "fsm", "position"
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Hub fans Events out to every connected websocket client, the same
// register/unregister/broadcast shape as the teacher's MonitorHub.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub creates a Hub. Call Run in its own goroutine before serving.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run drives the hub's event loop until ctx-like shutdown is handled by
// the caller closing the process; there is no ctx parameter because the
// teacher's MonitorHub.Run never takes one either — shutdown is process
// exit.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("statusapi: websocket write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for delivery, dropping it if the broadcast
// channel is saturated rather than blocking the FSM loop.
func (h *Hub) Publish(eventType string, data interface{}) {
	select {
	case h.broadcast <- Event{Type: eventType, Timestamp: time.Now(), Data: data}:
	default:
		log.Printf("statusapi: broadcast channel full, dropping %s event", eventType)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes read-only diagnostic state for one liftd node.
type Server struct {
	h   *handler.Handler
	f   *fsm.FSM
	hub *Hub
}

// New builds a Server reading live state from h and f, publishing
// changes through hub.
func New(h *handler.Handler, f *fsm.FSM, hub *Hub) *Server {
	return &Server{h: h, f: f, hub: hub}
}

// Router builds the mux.Router serving every status endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/requests", s.handleRequests).Methods(http.MethodGet)
	r.HandleFunc("/api/peers", s.handlePeers).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	return r
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":     s.f.State().String(),
		"direction": directionString(s.f.Direction()),
		"floor":     s.f.Floor(),
	})
}

// cellView is the JSON shape of one request table cell.
type cellView struct {
	Kind    string   `json:"kind"`
	Floor   int      `json:"floor"`
	Status  string   `json:"status"`
	AckedBy []string `json:"acked_by,omitempty"`
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	var cells []cellView
	s.h.Table().WalkAll(func(req request.Request) {
		cells = append(cells, toCellView(req))
	})
	s.h.Table().WalkInternal(func(req request.Request) {
		cells = append(cells, toCellView(req))
	})
	respondJSON(w, http.StatusOK, map[string]interface{}{"requests": cells})
}

func toCellView(req request.Request) cellView {
	acked := make([]string, 0, len(req.AckedBy))
	for ip := range req.AckedBy {
		acked = append(acked, ip)
	}
	return cellView{
		Kind:    req.Kind.String(),
		Floor:   req.Floor,
		Status:  req.Status.String(),
		AckedBy: acked,
	}
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := s.h.Peers()
	out := make([]map[string]interface{}, 0, len(peers))
	for _, p := range peers {
		out = append(out, map[string]interface{}{"id": p.ID, "floor": p.Floor})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"peers": out})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("statusapi: upgrade failed: %v", err)
		return
	}
	s.hub.register <- conn

	// Drain and discard anything the client sends; this is a push-only
	// feed. When the read fails the client has gone away.
	go func() {
		defer func() { s.hub.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func directionString(d handler.Direction) string {
	if d == handler.Up {
		return "Up"
	}
	return "Down"
}
