package ws

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"

	"github.com/gobwas/httphead"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"
	"github.com/gobwas/ws/wsutil"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/log"
)

// Conn is the websocket transport a Client drives. An implementation
// carries one open socket. WriteMessage and Ping are only called from the
// client's write loop, ReadMessage only from its read loop; Close may be
// called from anywhere and must unblock a pending read.
type Conn interface {
	// WriteMessage sends one complete text frame.
	WriteMessage(c context.Context, data []byte) (err error)
	// ReadMessage copies the payload of the next text or binary frame into
	// buf, handling control frames along the way.
	ReadMessage(c context.Context, buf io.Writer) (err error)
	// Ping sends a ping control frame.
	Ping(c context.Context) (err error)
	// Close sends a close frame best-effort and tears down the socket.
	Close() (err error)
}

// Dialer opens a Conn to a relay URL. DialConnection is the default; see
// DialSocket for the alternative transport.
type Dialer func(c context.Context, url string, header http.Header) (Conn, error)

// DialConnection is the default Dialer, opening a gobwas Connection.
func DialConnection(c context.Context, url string, header http.Header) (cn Conn,
	err error) {
	return NewConnection(c, url, header, nil)
}

// Connection is an outbound connection on the gobwas stack, negotiating
// permessage-deflate and handling control frames inside ReadMessage.
type Connection struct {
	conn              net.Conn
	enableCompression bool
	controlHandler    wsutil.FrameHandlerFunc
	flateReader       *wsflate.Reader
	reader            *wsutil.Reader
	flateWriter       *wsflate.Writer
	writer            *wsutil.Writer
	msgStateR         *wsflate.MessageState
	msgStateW         *wsflate.MessageState
}

var _ Conn = (*Connection)(nil)

// NewConnection dials url and negotiates the websocket session, offering
// permessage-deflate and enabling it when the relay accepts.
func NewConnection(c context.Context, url string, requestHeader http.Header,
	tlsConfig *tls.Config) (cn *Connection, err error) {

	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(requestHeader),
		Extensions: []httphead.Option{
			wsflate.DefaultParameters.Option(),
		},
		TLSConfig: tlsConfig,
	}
	var conn net.Conn
	var hs ws.Handshake
	if conn, _, hs, err = dialer.Dial(c, url); err != nil {
		return nil, errorf.E("failed to dial: %w", err)
	}
	enableCompression := false
	state := ws.StateClientSide
	for _, extension := range hs.Extensions {
		if string(extension.Name) == wsflate.ExtensionName {
			enableCompression = true
			state |= ws.StateExtended
			break
		}
	}
	var flateReader *wsflate.Reader
	var msgStateR wsflate.MessageState
	if enableCompression {
		msgStateR.SetCompressed(true)
		flateReader = wsflate.NewReader(nil,
			func(r io.Reader) wsflate.Decompressor {
				return flate.NewReader(r)
			})
	}
	controlHandler := wsutil.ControlFrameHandler(conn, ws.StateClientSide)
	reader := &wsutil.Reader{
		Source:         conn,
		State:          state,
		OnIntermediate: controlHandler,
		CheckUTF8:      false,
		Extensions: []wsutil.RecvExtension{
			&msgStateR,
		},
	}
	var flateWriter *wsflate.Writer
	var msgStateW wsflate.MessageState
	if enableCompression {
		msgStateW.SetCompressed(true)
		flateWriter = wsflate.NewWriter(nil,
			func(w io.Writer) wsflate.Compressor {
				fw, ferr := flate.NewWriter(w, 4)
				if ferr != nil {
					log.E.F("failed to create flate writer: %v", ferr)
				}
				return fw
			})
	}
	writer := wsutil.NewWriter(conn, state, ws.OpText)
	writer.SetExtensions(&msgStateW)
	return &Connection{
		conn:              conn,
		enableCompression: enableCompression,
		controlHandler:    controlHandler,
		flateReader:       flateReader,
		reader:            reader,
		msgStateR:         &msgStateR,
		flateWriter:       flateWriter,
		writer:            writer,
		msgStateW:         &msgStateW,
	}, nil
}

// WriteMessage dispatches one message through the Connection.
func (cn *Connection) WriteMessage(c context.Context, data []byte) (err error) {
	select {
	case <-c.Done():
		return errorf.E("context canceled")
	default:
	}
	if cn.msgStateW.IsCompressed() && cn.enableCompression {
		cn.flateWriter.Reset(cn.writer)
		if _, err = io.Copy(cn.flateWriter,
			bytes.NewReader(data)); chk.T(err) {
			return errorf.E("failed to write message: %w", err)
		}
		if err = cn.flateWriter.Close(); chk.T(err) {
			return errorf.E("failed to close flate writer: %w", err)
		}
	} else {
		if _, err = io.Copy(cn.writer, bytes.NewReader(data)); chk.T(err) {
			return errorf.E("failed to write message: %w", err)
		}
	}
	if err = cn.writer.Flush(); chk.T(err) {
		return errorf.E("failed to flush writer: %w", err)
	}
	return
}

// ReadMessage picks up the next text or binary message on a Connection.
func (cn *Connection) ReadMessage(c context.Context, buf io.Writer) (err error) {
	for {
		select {
		case <-c.Done():
			return errorf.E("context canceled")
		default:
		}
		var h ws.Header
		if h, err = cn.reader.NextFrame(); err != nil {
			_ = cn.conn.Close()
			return errorf.E("failed to advance frame: %w", err)
		}
		if h.OpCode.IsControl() {
			if err = cn.controlHandler(h, cn.reader); chk.T(err) {
				return errorf.E("failed to handle control frame: %w", err)
			}
		} else if h.OpCode == ws.OpBinary || h.OpCode == ws.OpText {
			break
		}
		if err = cn.reader.Discard(); chk.T(err) {
			return errorf.E("failed to discard: %w", err)
		}
	}
	if cn.msgStateR.IsCompressed() && cn.enableCompression {
		cn.flateReader.Reset(cn.reader)
		if _, err = io.Copy(buf, cn.flateReader); chk.T(err) {
			return errorf.E("failed to read message: %w", err)
		}
	} else {
		if _, err = io.Copy(buf, cn.reader); chk.T(err) {
			return errorf.E("failed to read message: %w", err)
		}
	}
	return
}

// Ping sends a ping control frame.
func (cn *Connection) Ping(c context.Context) (err error) {
	select {
	case <-c.Done():
		return errorf.E("context canceled")
	default:
	}
	return wsutil.WriteClientMessage(cn.conn, ws.OpPing, nil)
}

// Close sends a close frame best-effort and closes the socket.
func (cn *Connection) Close() (err error) {
	_ = wsutil.WriteClientMessage(cn.conn, ws.OpClose,
		ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	return cn.conn.Close()
}
