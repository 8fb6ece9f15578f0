// Package ws carries session streams over websockets: a push server
// for live terminal viewers and a reconnecting client channel for the
// chat-facing side.
package ws

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/acolita/termgate/internal/adapters/realclock"
	"github.com/acolita/termgate/internal/ports"
)

var (
	// ErrConnectionAbandoned means the channel gave up after the
	// configured number of consecutive failed connects. Terminal.
	ErrConnectionAbandoned = errors.New("connection abandoned after max attempts")

	// ErrChannelClosed means Close was called. Terminal.
	ErrChannelClosed = errors.New("channel closed")

	// ErrQueueFull means the disconnected-side queue is at capacity.
	ErrQueueFull = errors.New("send queue full")
)

// Frame is one websocket message.
type Frame struct {
	Binary bool
	Data   []byte
}

// Conn is an established connection the channel sends frames over.
type Conn interface {
	WriteFrame(f Frame) error
	ReadFrame() (Frame, error)
	Close() error
}

// DialFunc establishes one connection attempt.
type DialFunc func() (Conn, error)

// Channel is a reconnecting websocket sender. While disconnected it
// queues frames; on (re)connect it flushes the queue in order before
// anything newer. Reconnects back off exponentially:
// delay = min(maxDelay, initialDelay * multiplier^(failures-1)),
// and the failure count resets on every successful connect.
type Channel struct {
	dial   DialFunc
	clock  ports.Clock
	logger *slog.Logger

	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	maxAttempts  int
	onMessage    func(Frame)

	mu        sync.Mutex
	queue     []Frame
	queueCap  int
	closed    bool
	abandoned bool

	notify    chan struct{}
	closeOnce sync.Once
	closeCh   chan struct{}
	done      chan struct{}
}

// ChannelOptions configures a channel.
type ChannelOptions struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	MaxAttempts   int // 0 means retry forever
	QueueCapacity int // 0 means unbounded
	OnMessage     func(Frame) // invoked from the read goroutine
	Clock         ports.Clock
	Logger        *slog.Logger
}

// NewChannel starts connecting immediately.
func NewChannel(dial DialFunc, opts ChannelOptions) *Channel {
	if opts.InitialDelay == 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier < 1 {
		opts.Multiplier = 2.0
	}
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Channel{
		dial:         dial,
		clock:        opts.Clock,
		logger:       opts.Logger,
		initialDelay: opts.InitialDelay,
		maxDelay:     opts.MaxDelay,
		multiplier:   opts.Multiplier,
		maxAttempts:  opts.MaxAttempts,
		onMessage:    opts.OnMessage,
		queueCap:     opts.QueueCapacity,
		notify:       make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	go c.run()
	return c
}

// Send queues a frame for delivery. Frames survive disconnects and
// are flushed in order on reconnect.
func (c *Channel) Send(f Frame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.abandoned {
		c.mu.Unlock()
		return ErrConnectionAbandoned
	}
	if c.queueCap > 0 && len(c.queue) >= c.queueCap {
		c.mu.Unlock()
		return ErrQueueFull
	}
	c.queue = append(c.queue, f)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the channel permanently and waits for the run loop to
// exit. Queued frames that were never flushed are dropped.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.closeCh)
	})
	<-c.done
	return nil
}

// Done is closed when the channel stops for any reason.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err reports why the channel stopped: ErrConnectionAbandoned,
// ErrChannelClosed, or nil while still running.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abandoned {
		return ErrConnectionAbandoned
	}
	if c.closed {
		return ErrChannelClosed
	}
	return nil
}

// QueueLen returns the number of frames waiting to be sent.
func (c *Channel) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Channel) run() {
	defer close(c.done)

	failures := 0
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		conn, err := c.dial()
		if err != nil {
			failures++
			if c.maxAttempts > 0 && failures >= c.maxAttempts {
				c.logger.Error("giving up on connection", "attempts", failures, "error", err)
				c.mu.Lock()
				c.abandoned = true
				c.mu.Unlock()
				return
			}
			delay := backoffDelay(c.initialDelay, c.maxDelay, c.multiplier, failures)
			c.logger.Warn("connect failed, retrying", "attempt", failures, "delay", delay, "error", err)
			select {
			case <-c.clock.After(delay):
			case <-c.closeCh:
				return
			}
			continue
		}

		failures = 0
		c.logger.Info("channel connected")

		down := make(chan struct{})
		go c.readLoop(conn, down)
		c.writeLoop(conn, down)
		conn.Close()

		select {
		case <-c.closeCh:
			return
		default:
			c.logger.Warn("channel disconnected, reconnecting")
		}
	}
}

// backoffDelay computes the wait before the next connect attempt,
// given the number of consecutive failures so far (>= 1).
func backoffDelay(initial, max time.Duration, multiplier float64, failures int) time.Duration {
	d := float64(initial) * math.Pow(multiplier, float64(failures-1))
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}

// writeLoop flushes the queue over conn until the connection or the
// channel dies. A frame is only dequeued after a successful write, so
// an interrupted flush resumes with the same frame.
func (c *Channel) writeLoop(conn Conn, down <-chan struct{}) {
	for {
		c.mu.Lock()
		var frame Frame
		have := len(c.queue) > 0
		if have {
			frame = c.queue[0]
		}
		c.mu.Unlock()

		if !have {
			select {
			case <-c.notify:
				continue
			case <-down:
				return
			case <-c.closeCh:
				return
			}
		}

		if err := conn.WriteFrame(frame); err != nil {
			c.logger.Warn("write failed", "error", err)
			return
		}
		c.mu.Lock()
		c.queue = c.queue[1:]
		c.mu.Unlock()
	}
}

// readLoop consumes inbound frames until the connection dies.
func (c *Channel) readLoop(conn Conn, down chan<- struct{}) {
	defer close(down)
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		if c.onMessage != nil {
			c.onMessage(frame)
		}
	}
}
