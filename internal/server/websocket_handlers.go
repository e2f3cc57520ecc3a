package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/MeKo-Tech/docframe/internal/viewport"
	"github.com/gorilla/websocket"
)

const (
	// websocketBuffer is the number of outbound messages queued per connection.
	// Scroll frames beyond it are dropped.
	websocketBuffer = 64

	websocketReadTimeout  = 60 * time.Second
	websocketPingInterval = 30 * time.Second
	websocketWriteTimeout = 10 * time.Second
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are already restricted by the CORS configuration of the HTTP API
		return true
	},
}

// WebSocketMessage is a server-to-client message.
type WebSocketMessage struct {
	Type      string           `json:"type"` // "state", "scroll", "result" or "error"
	State     *review.Snapshot `json:"state,omitempty"`
	Scroll    *viewport.Frame  `json:"scroll,omitempty"`
	Result    *LocateResponse  `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorType string           `json:"error_type,omitempty"`
}

// WebSocketRequest is a client-to-server command.
type WebSocketRequest struct {
	Type     string  `json:"type"` // "locate", "reset" or "state"
	Field    *string `json:"field,omitempty"`
	LineItem *int    `json:"line_item,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// sessionWebSocketHandler streams session state and scroll frames and accepts
// locate and reset commands.
func (s *Server) sessionWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "session", sess.ID(), "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(conn, sess)
}

// handleWebSocketConnection pumps events out and commands in until the client leaves.
// Only the writer goroutine touches the connection for writing.
func (s *Server) handleWebSocketConnection(conn *websocket.Conn, sess *review.Session) {
	out := make(chan WebSocketMessage, websocketBuffer)
	done := make(chan struct{})
	defer close(done)

	unsubscribe := sess.Subscribe(func(ev review.Event) {
		msg := eventMessage(ev)
		select {
		case out <- msg:
		case <-done:
		default:
			websocketMessagesTotal.WithLabelValues("dropped").Inc()
		}
	})
	defer unsubscribe()

	snap := sess.State()
	out <- WebSocketMessage{Type: string(review.EventState), State: &snap}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Unblocks the reader when a write fails.
		defer func() { _ = conn.Close() }()
		s.writeWebSocketLoop(conn, out, done)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(websocketReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(websocketReadTimeout))
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket closed", "session", sess.ID(), "error", err)
			}
			break
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType != websocket.TextMessage {
			continue
		}
		reply := s.handleWebSocketMessage(sess, data)
		select {
		case out <- reply:
		case <-writerDone:
			return
		}
	}
}

// writeWebSocketLoop writes queued messages and keepalive pings.
func (s *Server) writeWebSocketLoop(conn *websocket.Conn, out <-chan WebSocketMessage, done <-chan struct{}) {
	ticker := time.NewTicker(websocketPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := s.sendWebSocketMessage(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(websocketWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// handleWebSocketMessage executes a client command and returns the reply.
func (s *Server) handleWebSocketMessage(sess *review.Session, data []byte) WebSocketMessage {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorMessage("invalid_request", "Failed to parse request: "+err.Error())
	}

	switch req.Type {
	case "locate":
		lr := LocateRequest{Field: req.Field, LineItem: req.LineItem}
		if err := lr.Validate(); err != nil {
			return errorMessage("invalid_request", err.Error())
		}
		var res review.Result
		if lr.Field != nil {
			res = sess.LocateField(*lr.Field)
		} else {
			res = sess.LocateLineItem(*lr.LineItem)
		}
		return resultMessage(res)
	case "reset":
		return resultMessage(sess.Reset())
	case "state":
		snap := sess.State()
		return WebSocketMessage{Type: string(review.EventState), State: &snap}
	default:
		return errorMessage("invalid_request", "Unsupported request type: "+req.Type)
	}
}

// sendWebSocketMessage writes a message as a JSON text frame.
func (s *Server) sendWebSocketMessage(conn WebSocketConnWriter, msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return nil
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("Failed to send WebSocket message", "error", err)
		return err
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

func eventMessage(ev review.Event) WebSocketMessage {
	return WebSocketMessage{Type: string(ev.Type), State: ev.State, Scroll: ev.Scroll}
}

func resultMessage(res review.Result) WebSocketMessage {
	lr := LocateResponse{Success: res.Err() == nil, Result: res}
	if err := res.Err(); err != nil {
		lr.Error = err.Error()
	}
	return WebSocketMessage{Type: "result", Result: &lr}
}

func errorMessage(errorType, message string) WebSocketMessage {
	return WebSocketMessage{Type: "error", Error: message, ErrorType: errorType}
}
