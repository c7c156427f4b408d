package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnWriter serializes writes to a gorilla connection. The session machine
// emits from the read loop, the countdown goroutine and the lock grace timer,
// and gorilla permits only one concurrent writer.
type ConnWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewConnWriter wraps a connection for concurrent emitters.
func NewConnWriter(conn *websocket.Conn) *ConnWriter {
	return &ConnWriter{conn: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (w *ConnWriter) WriteTyped(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (w *ConnWriter) WriteError(errMsg string) error {
	return w.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// WriteFieldErrors rejects a frame with per-field validation messages.
func (w *ConnWriter) WriteFieldErrors(fields map[string]string) error {
	return w.WriteTyped(ErrorResponse{
		Event:  EventError,
		Error:  "invalid payload",
		Fields: fields,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	return conn.ReadJSON(v)
}
