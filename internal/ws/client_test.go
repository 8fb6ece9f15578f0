package ws

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/acolita/termgate/internal/config"
	"github.com/acolita/termgate/internal/testing/fakes/fakeclock"
)

// scriptConn is an in-memory Conn that records writes and serves
// scripted inbound frames.
type scriptConn struct {
	mu        sync.Mutex
	written   []Frame
	failNext  int
	inbound   chan Frame
	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptConn() *scriptConn {
	return &scriptConn{
		inbound: make(chan Frame, 8),
		closed:  make(chan struct{}),
	}
}

func (c *scriptConn) WriteFrame(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return errors.New("write failed")
	}
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	cp := Frame{Binary: f.Binary, Data: append([]byte(nil), f.Data...)}
	c.written = append(c.written, cp)
	return nil
}

func (c *scriptConn) ReadFrame() (Frame, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case <-c.closed:
		return Frame{}, errors.New("connection closed")
	}
}

func (c *scriptConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptConn) frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.written...)
}

// scriptDialer fails the first failures attempts, then hands out fresh
// scriptConns.
type scriptDialer struct {
	mu       sync.Mutex
	failures int
	attempts int
	conns    []*scriptConn
	prepare  func(*scriptConn)
}

func (d *scriptDialer) dial() (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failures {
		return nil, errors.New("connection refused")
	}
	c := newScriptConn()
	if d.prepare != nil {
		d.prepare(c)
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *scriptDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *scriptDialer) conn(i int) *scriptConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// advanceUntil repeatedly moves the fake clock forward until cond
// holds, giving the run loop real time to register its timers.
func advanceUntil(t *testing.T, clk *fakeclock.Clock, step time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		clk.Advance(step)
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestBackoffDelayFormula(t *testing.T) {
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // 32s capped
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		got := backoffDelay(time.Second, 30*time.Second, 2.0, tc.failures)
		if got != tc.want {
			t.Errorf("failures=%d: got %s, want %s", tc.failures, got, tc.want)
		}
	}

	if got := backoffDelay(500*time.Millisecond, 10*time.Second, 1.0, 7); got != 500*time.Millisecond {
		t.Errorf("multiplier 1 should keep the initial delay, got %s", got)
	}
}

func TestQueuedFramesFlushInOrderAfterReconnect(t *testing.T) {
	clk := fakeclock.New(time.Now())
	dialer := &scriptDialer{failures: 2}
	ch := NewChannel(dialer.dial, ChannelOptions{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Clock:        clk,
	})
	defer ch.Close()

	for _, text := range []string{"first", "second", "third"} {
		if err := ch.Send(Frame{Data: []byte(text)}); err != nil {
			t.Fatalf("Send(%q): %v", text, err)
		}
	}

	advanceUntil(t, clk, 32*time.Second, func() bool {
		return dialer.attemptCount() >= 3
	}, "channel never connected")

	conn := dialer.conn(0)
	waitUntil(t, func() bool { return len(conn.frames()) == 3 }, "queued frames not flushed")

	got := conn.frames()
	for i, want := range []string{"first", "second", "third"} {
		if string(got[i].Data) != want {
			t.Errorf("frame %d: got %q, want %q", i, got[i].Data, want)
		}
	}
}

func TestFramesSentWhileConnectedArriveInOrder(t *testing.T) {
	clk := fakeclock.New(time.Now())
	dialer := &scriptDialer{}
	ch := NewChannel(dialer.dial, ChannelOptions{Clock: clk})
	defer ch.Close()

	waitUntil(t, func() bool { return dialer.attemptCount() == 1 }, "channel never dialed")

	for _, text := range []string{"a", "b", "c", "d"} {
		if err := ch.Send(Frame{Data: []byte(text)}); err != nil {
			t.Fatalf("Send(%q): %v", text, err)
		}
	}

	conn := dialer.conn(0)
	waitUntil(t, func() bool { return len(conn.frames()) == 4 }, "frames not delivered")
	for i, want := range []string{"a", "b", "c", "d"} {
		if got := string(conn.frames()[i].Data); got != want {
			t.Errorf("frame %d: got %q, want %q", i, got, want)
		}
	}
}

func TestAbandonAfterMaxAttempts(t *testing.T) {
	clk := fakeclock.New(time.Now())
	dialer := &scriptDialer{failures: 1 << 30}
	ch := NewChannel(dialer.dial, ChannelOptions{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Clock:        clk,
	})

	advanceUntil(t, clk, 32*time.Second, func() bool {
		select {
		case <-ch.Done():
			return true
		default:
			return false
		}
	}, "channel never gave up")

	if dialer.attemptCount() != 3 {
		t.Errorf("attempts = %d, want 3", dialer.attemptCount())
	}
	if !errors.Is(ch.Err(), ErrConnectionAbandoned) {
		t.Errorf("Err() = %v, want ErrConnectionAbandoned", ch.Err())
	}
	if err := ch.Send(Frame{Data: []byte("late")}); !errors.Is(err, ErrConnectionAbandoned) {
		t.Errorf("Send after abandon = %v, want ErrConnectionAbandoned", err)
	}
}

func TestCloseIsTerminal(t *testing.T) {
	clk := fakeclock.New(time.Now())
	dialer := &scriptDialer{}
	ch := NewChannel(dialer.dial, ChannelOptions{Clock: clk})

	waitUntil(t, func() bool { return dialer.attemptCount() == 1 }, "channel never dialed")

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Send(Frame{Data: []byte("x")}); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Send after close = %v, want ErrChannelClosed", err)
	}
	if !errors.Is(ch.Err(), ErrChannelClosed) {
		t.Errorf("Err() = %v, want ErrChannelClosed", ch.Err())
	}

	// No reconnect attempts after close.
	time.Sleep(20 * time.Millisecond)
	if dialer.attemptCount() != 1 {
		t.Errorf("attempts after close = %d, want 1", dialer.attemptCount())
	}
}

func TestWriteFailureResumesWithSameFrame(t *testing.T) {
	clk := fakeclock.New(time.Now())
	dialer := &scriptDialer{}
	first := true
	dialer.prepare = func(c *scriptConn) {
		if first {
			first = false
			c.failNext = 1
		}
	}
	ch := NewChannel(dialer.dial, ChannelOptions{Clock: clk})
	defer ch.Close()

	if err := ch.Send(Frame{Data: []byte("keep-me")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := ch.Send(Frame{Data: []byte("after")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitUntil(t, func() bool {
		c := dialer.conn(1)
		return c != nil && len(c.frames()) == 2
	}, "frames not redelivered on the second connection")

	got := dialer.conn(1).frames()
	if string(got[0].Data) != "keep-me" || string(got[1].Data) != "after" {
		t.Errorf("second connection got %q, %q; want keep-me, after", got[0].Data, got[1].Data)
	}
}

func TestQueueCapacityEnforced(t *testing.T) {
	clk := fakeclock.New(time.Now())
	dialer := &scriptDialer{failures: 1 << 30}
	ch := NewChannel(dialer.dial, ChannelOptions{
		QueueCapacity: 2,
		Clock:         clk,
	})
	defer ch.Close()

	waitUntil(t, func() bool { return dialer.attemptCount() >= 1 }, "channel never dialed")

	if err := ch.Send(Frame{Data: []byte("1")}); err != nil {
		t.Fatalf("Send 1: %v", err)
	}
	if err := ch.Send(Frame{Data: []byte("2")}); err != nil {
		t.Fatalf("Send 2: %v", err)
	}
	if err := ch.Send(Frame{Data: []byte("3")}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Send 3 = %v, want ErrQueueFull", err)
	}
}

func TestZeroQueueCapacityIsUnbounded(t *testing.T) {
	clk := fakeclock.New(time.Now())
	dialer := &scriptDialer{failures: 1 << 30}
	ch := NewChannel(dialer.dial, ChannelOptions{Clock: clk})
	defer ch.Close()

	waitUntil(t, func() bool { return dialer.attemptCount() >= 1 }, "channel never dialed")

	for i := 0; i < 5000; i++ {
		if err := ch.Send(Frame{Data: []byte{byte(i)}}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if got := ch.QueueLen(); got != 5000 {
		t.Errorf("QueueLen = %d, want 5000", got)
	}
}

func TestChannelPolicyFromConfig(t *testing.T) {
	clk := fakeclock.New(time.Now())
	cfg := config.ReconnectConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       20 * time.Second,
		Multiplier:     1.5,
		ConnectTimeout: time.Second,
		MaxAttempts:    4,
		QueueCapacity:  8,
	}
	ch := NewChannelFromConfig("ws://127.0.0.1:1/stream", nil, cfg, ChannelOptions{Clock: clk})
	defer ch.Close()

	if ch.initialDelay != cfg.InitialDelay || ch.maxDelay != cfg.MaxDelay {
		t.Errorf("delays = %s/%s, want %s/%s", ch.initialDelay, ch.maxDelay, cfg.InitialDelay, cfg.MaxDelay)
	}
	if ch.multiplier != cfg.Multiplier {
		t.Errorf("multiplier = %v, want %v", ch.multiplier, cfg.Multiplier)
	}
	if ch.maxAttempts != cfg.MaxAttempts {
		t.Errorf("maxAttempts = %d, want %d", ch.maxAttempts, cfg.MaxAttempts)
	}
	if ch.queueCap != cfg.QueueCapacity {
		t.Errorf("queueCap = %d, want %d", ch.queueCap, cfg.QueueCapacity)
	}
}

func TestInboundFramesReachCallback(t *testing.T) {
	clk := fakeclock.New(time.Now())
	dialer := &scriptDialer{}

	var mu sync.Mutex
	var received []Frame
	ch := NewChannel(dialer.dial, ChannelOptions{
		Clock: clk,
		OnMessage: func(f Frame) {
			mu.Lock()
			received = append(received, f)
			mu.Unlock()
		},
	})
	defer ch.Close()

	waitUntil(t, func() bool { return dialer.conn(0) != nil }, "channel never connected")
	dialer.conn(0).inbound <- Frame{Binary: true, Data: []byte("output")}

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, "inbound frame not delivered")

	mu.Lock()
	defer mu.Unlock()
	if !received[0].Binary || string(received[0].Data) != "output" {
		t.Errorf("got frame %+v, want binary %q", received[0], "output")
	}
}
