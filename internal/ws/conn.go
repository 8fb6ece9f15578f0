package ws

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/acolita/termgate/internal/config"
)

// gorillaConn adapts a *websocket.Conn to the Conn interface. Gorilla
// permits one concurrent writer, so writes are serialized here.
type gorillaConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewConn wraps an established websocket connection.
func NewConn(conn *websocket.Conn) Conn {
	return &gorillaConn{conn: conn}
}

func (g *gorillaConn) WriteFrame(f Frame) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	messageType := websocket.TextMessage
	if f.Binary {
		messageType = websocket.BinaryMessage
	}
	return g.conn.WriteMessage(messageType, f.Data)
}

func (g *gorillaConn) ReadFrame() (Frame, error) {
	messageType, data, err := g.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Binary: messageType == websocket.BinaryMessage, Data: data}, nil
}

func (g *gorillaConn) Close() error {
	return g.conn.Close()
}

// NewChannelFromConfig builds a reconnecting channel that dials url
// under the configured reconnect policy. The connect timeout becomes
// the websocket handshake timeout, so a hung attempt counts as a
// failure.
func NewChannelFromConfig(url string, header http.Header, cfg config.ReconnectConfig, opts ChannelOptions) *Channel {
	opts.InitialDelay = cfg.InitialDelay
	opts.MaxDelay = cfg.MaxDelay
	opts.Multiplier = cfg.Multiplier
	opts.MaxAttempts = cfg.MaxAttempts
	opts.QueueCapacity = cfg.QueueCapacity
	return NewChannel(Dial(url, header, cfg.ConnectTimeout), opts)
}

// Dial returns a DialFunc that connects to url with the given headers
// and handshake timeout.
func Dial(url string, header http.Header, timeout time.Duration) DialFunc {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	return func() (Conn, error) {
		conn, resp, err := dialer.Dial(url, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return NewConn(conn), nil
	}
}
