// Package testutil runs an in-process fake backend so session tests can
// exercise the real wire contract: the pull endpoints, the websocket
// accept side and bearer-token auth.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/mkrier/chatsync/internal/auth"
	"github.com/mkrier/chatsync/internal/model"
)

// TokenSecret signs the tokens this server accepts.
const TokenSecret = "testutil-token-secret"

// Frame is one command envelope as received from a client.
type Frame struct {
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
}

// Server is the fake backend. Seed it with SetChats/SetMessages, point a
// client at URL(), then Push frames and read client commands off Received.
type Server struct {
	ts *httptest.Server

	mu    sync.Mutex
	chats map[string][]model.ChatPreview
	msgs  map[string][]model.Message
	conns map[string]*websocket.Conn

	// Received buffers every command frame clients send.
	Received chan Frame
}

// NewServer starts the fake backend. Close it when done.
func NewServer() *Server {
	s := &Server{
		chats:    make(map[string][]model.ChatPreview),
		msgs:     make(map[string][]model.Message),
		conns:    make(map[string]*websocket.Conn),
		Received: make(chan Frame, 64),
	}

	r := chi.NewRouter()
	r.Use(s.requireToken)
	r.Get("/chats/user/{username}/chats", s.handleChats)
	r.Get("/chats/user/{username}/chats/{chatID}", s.handleMessages)
	r.Get("/ws/{username}", s.handleWs)

	s.ts = httptest.NewServer(r)
	return s
}

// URL is the API base URL clients should use.
func (s *Server) URL() string { return s.ts.URL }

// Close shuts the backend down.
func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	s.mu.Unlock()

	s.ts.Close()
}

// MintToken issues a token this server's middleware accepts.
func MintToken(username string) (string, error) {
	return auth.MakeJWT(username, TokenSecret, time.Hour)
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		if _, err := auth.ValidateJWT(raw, TokenSecret); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetChats seeds the dashboard snapshot for username.
func (s *Server) SetChats(username string, chats []model.ChatPreview) {
	s.mu.Lock()
	s.chats[username] = chats
	s.mu.Unlock()
}

// SetMessages seeds the history of one chat.
func (s *Server) SetMessages(chatID string, msgs []model.Message) {
	s.mu.Lock()
	s.msgs[chatID] = msgs
	s.mu.Unlock()
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	s.mu.Lock()
	chats := s.chats[username]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	// A user without chats gets an envelope without the array key, which
	// clients must treat as empty.
	if chats == nil {
		w.Write([]byte("{}"))
		return
	}

	if err := json.NewEncoder(w).Encode(map[string]any{"chats": chats}); err != nil {
		log.Printf("testutil: failed to encode chats: %v", err)
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	s.mu.Lock()
	msgs := s.msgs[chatID]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if msgs == nil {
		w.Write([]byte("{}"))
		return
	}

	if err := json.NewEncoder(w).Encode(map[string]any{"messages": msgs}); err != nil {
		log.Printf("testutil: failed to encode messages: %v", err)
	}
}

// handleWs accepts the push connection and pumps client commands into
// Received. We block in the handler because the request context dies as
// soon as it returns.
func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("testutil: websocket accept failed: %v", err)
		return
	}

	s.mu.Lock()
	s.conns[username] = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, username)
		s.mu.Unlock()
		conn.CloseNow()
	}()

	ctx := r.Context()
	for {
		msgType, p, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var f Frame
		if err := json.Unmarshal(p, &f); err != nil {
			log.Printf("testutil: bad frame from %s: %v", username, err)
			continue
		}

		select {
		case s.Received <- f:
		default:
			log.Println("testutil: dropping frame - Received channel full")
		}
	}
}

// WaitForClient waits until username's push connection is up.
func (s *Server) WaitForClient(username string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, ok := s.conns[username]
		s.mu.Unlock()
		if ok {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// Push writes one server-initiated frame to username's connection.
func (s *Server) Push(username string, payload any) error {
	s.mu.Lock()
	conn := s.conns[username]
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("testutil: no connection for user %s", username)
	}

	p, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, p)
}
