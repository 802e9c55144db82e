package ws

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"

	"relix.lol/errorf"
)

// controlWriteWait bounds how long a control frame write may take.
const controlWriteWait = 10 * time.Second

// Socket is the alternative transport on fasthttp/websocket, trading the
// frame-level control of the gobwas stack for the simpler message API.
// Select it per link with WithDialer(DialSocket).
type Socket struct {
	conn *websocket.Conn
}

var _ Conn = (*Socket)(nil)

// DialSocket opens a Socket.
func DialSocket(c context.Context, url string, header http.Header) (cn Conn,
	err error) {

	var conn *websocket.Conn
	if conn, _, err = websocket.DefaultDialer.DialContext(c, url,
		header); err != nil {
		return nil, errorf.E("failed to dial: %w", err)
	}
	return &Socket{conn: conn}, nil
}

// WriteMessage sends one text frame.
func (s *Socket) WriteMessage(c context.Context, data []byte) (err error) {
	select {
	case <-c.Done():
		return errorf.E("context canceled")
	default:
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage copies the next text or binary message into buf. Control
// frames are answered by the library's default handlers inside NextReader.
func (s *Socket) ReadMessage(c context.Context, buf io.Writer) (err error) {
	for {
		select {
		case <-c.Done():
			return errorf.E("context canceled")
		default:
		}
		var typ int
		var p []byte
		if typ, p, err = s.conn.ReadMessage(); err != nil {
			_ = s.conn.Close()
			return errorf.E("failed to read message: %w", err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		_, err = buf.Write(p)
		return
	}
}

// Ping sends a ping control frame.
func (s *Socket) Ping(c context.Context) (err error) {
	select {
	case <-c.Done():
		return errorf.E("context canceled")
	default:
	}
	return s.conn.WriteControl(websocket.PingMessage, nil,
		time.Now().Add(controlWriteWait))
}

// Close sends a close frame best-effort and closes the socket.
func (s *Socket) Close() (err error) {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
