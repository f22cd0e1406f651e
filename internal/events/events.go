// Package events broadcasts repository operations to live observers
// (dashboards, editors) over WebSocket. One message goes out per
// appended operation, postCommit-style: a failed or slow broadcast is
// logged and dropped, never allowed to affect the operation itself.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/jjcore/jjcore/internal/types"
)

// MessageType classifies a broadcast message.
type MessageType string

const (
	// MessageTypeOperation announces one appended operation.
	MessageTypeOperation MessageType = "operation"

	// MessageTypeHello greets a client with the server's current head.
	MessageTypeHello MessageType = "hello"
)

// Message is one broadcast frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// OperationData is the payload of an operation message.
type OperationData struct {
	OperationID string `json:"operationId"`
	Description string `json:"description"`
	User        string `json:"user"`
	WorkingCopy string `json:"workingCopy"`
}

// Server manages WebSocket subscribers and fans out messages to them.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// Config holds server configuration.
type Config struct {
	// Port to listen on. 0 picks an ephemeral port (useful in tests).
	Port int

	Logger *slog.Logger
}

// NewServer creates an events server. Call Start to begin listening.
func NewServer(config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start begins the HTTP server and the broadcast loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("events server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("events server error", "err", err)
		}
	}()

	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, closing every client connection.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("events server shutdown: %w", err)
	}
	s.wg.Wait()
	return nil
}

// BroadcastOperation enqueues an operation announcement. Never blocks:
// if the channel is full the message is dropped with a warning.
func (s *Server) BroadcastOperation(op *types.Operation) {
	data, err := json.Marshal(OperationData{
		OperationID: op.OperationID,
		Description: op.Description,
		User:        op.User.Name,
		WorkingCopy: op.View.WorkingCopy,
	})
	if err != nil {
		s.logger.Warn("encode operation broadcast", "err", err)
		return
	}
	msg := Message{Type: MessageTypeOperation, Timestamp: op.Timestamp, Data: data}
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("broadcast channel full, dropping message", "operation", op.OperationID)
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("encode broadcast frame", "err", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	hello, _ := json.Marshal(Message{Type: MessageTypeHello, Timestamp: time.Now()})
	writeCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	_ = conn.Write(writeCtx, websocket.MessageText, hello)
	cancel()

	// Drain (and discard) client frames until the connection dies so
	// pings keep flowing; subscribers are write-only from our side.
	ctx := conn.CloseRead(s.ctx)
	<-ctx.Done()
	s.removeClient(conn)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.clientsMu.RLock()
	n := len(s.clients)
	s.clientsMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","clients":%d}`, n)
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if s.clients[conn] {
		delete(s.clients, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	s.clientsMu.Unlock()
}
