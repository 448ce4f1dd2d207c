// Package testserver is an in-process WebSocket double for the business
// backend, used to drive the session runtime's integration scenarios
// without a real network.
package testserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wizardsardine/liana-business-session/protocol"
)

// Handler decides how the server responds to one decoded request. The
// second return value reports whether the returned response should be
// sent; when it is false, a ping still gets an automatic pong and any other
// request gets no reply. Close requests never reach the Handler.
type Handler func(req protocol.Request, token string) (protocol.Response, bool)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is a single-connection WebSocket test double.
type Server struct {
	http    *httptest.Server
	handler Handler

	mu   sync.Mutex
	conn *websocket.Conn
}

// New starts a Server whose request/response behavior is driven by handler.
func New(handler Handler) *Server {
	s := &Server{handler: handler}
	s.http = httptest.NewServer(http.HandlerFunc(s.serveWS))
	return s
}

// URL returns the ws:// URL a client should dial.
func (s *Server) URL() string {
	return "ws" + s.http.URL[len("http"):]
}

// Close shuts down the HTTP server and any open connection.
func (s *Server) Close() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	s.http.Close()
}

// Push sends resp to the connected client with no request id, simulating a
// server-initiated push (org/wallet/user/delete_user_org).
func (s *Server) Push(resp protocol.Response) error {
	frame, err := protocol.EncodeResponse(resp, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("testserver: no connected client")
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// DropConnection forcibly closes the current connection, simulating a
// network failure.
func (s *Server) DropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		req, token, id, err := protocol.DecodeRequestFrame(msgType == websocket.TextMessage, data)
		if err != nil {
			continue
		}
		if req.Method() == protocol.MethodClose {
			conn.Close()
			return
		}

		resp, ok := s.handler(req, token)
		if !ok {
			if req.Method() != protocol.MethodPing {
				continue
			}
			// Keep the keepalive loop quiet by default so scenario
			// handlers only need to cover the requests they care about.
			resp, ok = protocol.PongResponse{}, true
		}

		frame, err := protocol.EncodeResponse(resp, &id)
		if err != nil {
			continue
		}
		s.mu.Lock()
		writeErr := conn.WriteMessage(websocket.TextMessage, frame)
		s.mu.Unlock()
		if writeErr != nil {
			return
		}
	}
}
