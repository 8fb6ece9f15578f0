package adapter

import (
	"log/slog"
	"sync"
)

// StreamConn is one attached live terminal, typically a websocket.
// Send methods are called from a single writer goroutine per
// connection.
type StreamConn interface {
	SendOutput(data []byte) error
	SendResize(rows, cols int) error
	Close() error
}

// Stream fans raw session output out to attached connections
// byte-exactly and signals geometry changes. Each connection gets its
// own queue and writer goroutine; a connection that stops draining or
// errors is detached and closed rather than stalling the session.
type Stream struct {
	logger    *slog.Logger
	queueSize int

	mu       sync.Mutex
	subs     map[StreamConn]*streamSub
	shutdown bool
}

type streamSub struct {
	conn  StreamConn
	queue chan streamMsg
	once  sync.Once
}

type streamMsg struct {
	data   []byte
	resize bool
	rows   int
	cols   int
}

// StreamOptions configures a stream adapter.
type StreamOptions struct {
	QueueSize int
	Logger    *slog.Logger
}

// NewStream creates a stream adapter with no connections.
func NewStream(opts StreamOptions) *Stream {
	if opts.QueueSize < 2 {
		// Room for at least the catch-up geometry and repaint.
		opts.QueueSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Stream{
		logger:    opts.Logger,
		queueSize: opts.QueueSize,
		subs:      make(map[StreamConn]*streamSub),
	}
}

// AddConn attaches a connection. The caller is responsible for sending
// any catch-up state (geometry, screen redraw) before attaching so the
// connection starts from a consistent screen.
func (s *Stream) AddConn(conn StreamConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		conn.Close()
		return
	}
	if _, ok := s.subs[conn]; ok {
		return
	}
	sub := &streamSub{
		conn:  conn,
		queue: make(chan streamMsg, s.queueSize),
	}
	s.subs[conn] = sub
	go s.writeLoop(sub)
}

// AddConnPrimed attaches a connection with catch-up state queued
// ahead of future broadcasts: first the current geometry, then bytes
// that repaint the current screen. Call it from session.Sync so the
// catch-up point is exact; the connection then receives precisely the
// output produced after the repaint, byte for byte.
func (s *Stream) AddConnPrimed(conn StreamConn, rows, cols int, redraw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		conn.Close()
		return
	}
	if _, ok := s.subs[conn]; ok {
		return
	}
	sub := &streamSub{
		conn:  conn,
		queue: make(chan streamMsg, s.queueSize),
	}
	sub.queue <- streamMsg{resize: true, rows: rows, cols: cols}
	sub.queue <- streamMsg{data: redraw}
	s.subs[conn] = sub
	go s.writeLoop(sub)
}

// RemoveConn detaches a connection without closing it.
func (s *Stream) RemoveConn(conn StreamConn) {
	s.mu.Lock()
	sub, ok := s.subs[conn]
	if ok {
		delete(s.subs, conn)
	}
	s.mu.Unlock()
	if ok {
		sub.close()
	}
}

// ConnCount returns the number of attached connections.
func (s *Stream) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// DeliverBytes queues the output for every connection.
func (s *Stream) DeliverBytes(data []byte) {
	s.broadcast(streamMsg{data: data})
}

// NotifyChanged is not used; connections consume raw bytes.
func (s *Stream) NotifyChanged() {}

// NotifyResize queues a geometry signal for every connection.
func (s *Stream) NotifyResize(rows, cols int) {
	s.broadcast(streamMsg{resize: true, rows: rows, cols: cols})
}

// Shutdown detaches and closes every connection.
func (s *Stream) Shutdown() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[StreamConn]*streamSub)
	s.shutdown = true
	s.mu.Unlock()

	for _, sub := range subs {
		sub.close()
		sub.conn.Close()
	}
}

func (s *Stream) broadcast(msg streamMsg) {
	s.mu.Lock()
	var stalled []*streamSub
	for _, sub := range s.subs {
		select {
		case sub.queue <- msg:
		default:
			delete(s.subs, sub.conn)
			stalled = append(stalled, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range stalled {
		s.logger.Warn("stream connection stalled, dropping")
		sub.close()
		sub.conn.Close()
	}
}

// writeLoop is the single writer for one connection.
func (s *Stream) writeLoop(sub *streamSub) {
	for msg := range sub.queue {
		var err error
		if msg.resize {
			err = sub.conn.SendResize(msg.rows, msg.cols)
		} else {
			err = sub.conn.SendOutput(msg.data)
		}
		if err != nil {
			s.logger.Debug("stream write failed, detaching", "error", err)
			s.RemoveConn(sub.conn)
			sub.conn.Close()
			// Drain whatever remains so broadcasters never block.
			for range sub.queue {
			}
			return
		}
	}
}

func (sub *streamSub) close() {
	sub.once.Do(func() { close(sub.queue) })
}
