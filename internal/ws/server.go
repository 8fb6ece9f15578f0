package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/acolita/termgate/internal/adapter"
	"github.com/acolita/termgate/internal/gateway"
	"github.com/acolita/termgate/internal/session"
	"github.com/acolita/termgate/internal/wire"
)

// Server pushes live session output over websockets. A viewer dials
// /stream?owner=NAME, receives a hello with the geometry and a binary
// repaint of the current screen, then the exact output stream. Text
// frames from the viewer carry JSON control messages; binary frames
// are raw input for the PTY.
type Server struct {
	gw       *gateway.Gateway
	logger   *slog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer creates a push server on addr.
func NewServer(addr string, gw *gateway.Gateway, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		gw:     gw,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving connections until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("push server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter required", http.StatusBadRequest)
		return
	}

	sess, err := s.gw.Session(owner)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrUnauthorized):
			http.Error(w, "owner not allowed", http.StatusForbidden)
		case errors.Is(err, session.ErrNotFound):
			http.Error(w, "no session for owner", http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "owner", owner, "error", err)
		return
	}

	sc := &streamConn{conn: NewConn(raw)}
	rows, cols := sess.Size()
	if err := sc.sendJSON(wire.NewHello(sess.ID, rows, cols)); err != nil {
		_ = sc.conn.Close()
		return
	}
	if err := s.gw.AttachStream(owner, sc); err != nil {
		_ = sc.sendJSON(wire.NewError(err.Error()))
		_ = sc.conn.Close()
		return
	}
	s.logger.Info("viewer attached", "owner", owner, "session_id", sess.ID)

	s.readLoop(owner, sc)
	s.gw.DetachStream(owner, sc)
	_ = sc.conn.Close()
	s.logger.Info("viewer detached", "owner", owner, "session_id", sess.ID)
}

// readLoop consumes viewer frames until the connection drops.
func (s *Server) readLoop(owner string, sc *streamConn) {
	for {
		f, err := sc.conn.ReadFrame()
		if err != nil {
			return
		}
		if f.Binary {
			if err := s.gw.FeedRaw(owner, f.Data); err != nil {
				_ = sc.sendJSON(wire.NewError(err.Error()))
			}
			continue
		}
		msg, err := wire.Decode(f.Data)
		if err != nil {
			_ = sc.sendJSON(wire.NewError(err.Error()))
			continue
		}
		switch m := msg.(type) {
		case wire.InputMessage:
			if err := s.gw.FeedRaw(owner, m.Data); err != nil {
				_ = sc.sendJSON(wire.NewError(err.Error()))
			}
		case wire.ResizeMessage:
			if err := s.gw.Resize(owner, m.Rows, m.Cols); err != nil {
				_ = sc.sendJSON(wire.NewError(err.Error()))
			}
		default:
			_ = sc.sendJSON(wire.NewError("unexpected message type"))
		}
	}
}

// streamConn bridges a websocket to the session's stream fan-out:
// output travels as binary frames, control as JSON text frames.
type streamConn struct {
	conn Conn
}

var _ adapter.StreamConn = (*streamConn)(nil)

func (c *streamConn) SendOutput(data []byte) error {
	return c.conn.WriteFrame(Frame{Binary: true, Data: data})
}

func (c *streamConn) SendResize(rows, cols int) error {
	return c.sendJSON(wire.NewResize(rows, cols))
}

// Close announces the end of the stream before dropping the socket.
// The exit frame is best effort; a viewer whose socket already died
// never sees it.
func (c *streamConn) Close() error {
	_ = c.sendJSON(wire.NewExit("session ended"))
	return c.conn.Close()
}

func (c *streamConn) sendJSON(msg interface{}) error {
	raw, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteFrame(Frame{Data: raw})
}
