package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// defaultWriteTimeout bounds how long a slow subscriber can stall one
// delivery attempt before it counts as a failure.
const defaultWriteTimeout = 10 * time.Second

// WSConn adapts a gorilla WebSocket connection to the hub's Conn
// interface. The write mutex serializes concurrent broadcasts onto the
// same connection, which gorilla requires.
type WSConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

// NewWSConn wraps a WebSocket connection. A zero writeTimeout uses the
// default.
func NewWSConn(conn *websocket.Conn, writeTimeout time.Duration) *WSConn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &WSConn{conn: conn, writeTimeout: writeTimeout}
}

// Send pushes one text frame to the subscriber.
func (c *WSConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (c *WSConn) Close() error {
	return c.conn.Close()
}
