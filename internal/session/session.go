// Package session ties one PTY process to one terminal emulator and
// fans output out to attached adapters. A single feed loop goroutine
// is the only writer to the emulator, so adapters always observe a
// consistent screen.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/acolita/termgate/internal/adapters/realclock"
	"github.com/acolita/termgate/internal/ports"
	"github.com/acolita/termgate/internal/term"
)

// State is the session lifecycle state.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateCrashed  State = "crashed"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultGraceTimeout = 2 * time.Second
	defaultStopTimeout  = 5 * time.Second

	readBufSize = 8192
	// How long each poll blocks waiting for the first byte.
	readWait = 5 * time.Millisecond
)

// Session owns one PTY and one terminal emulator.
type Session struct {
	ID    string
	Owner string

	pty PTY

	mu       sync.Mutex
	term     *term.Terminal
	state    State
	adapters []Adapter

	clock        ports.Clock
	logger       *slog.Logger
	pollInterval time.Duration
	graceTimeout time.Duration
	stopTimeout  time.Duration

	stopOnce sync.Once
	stopErr  error
	stopCh   chan struct{}
	loopDone chan struct{}
}

// Options configures a session.
type Options struct {
	ID           string
	Owner        string
	Rows         int
	Cols         int
	PollInterval time.Duration
	GraceTimeout time.Duration // wait after SignalTerm before Kill
	StopTimeout  time.Duration // bound on waiting for exit and loop join
	Clock        ports.Clock
	Logger       *slog.Logger
}

// New wires a session around an already-started PTY. Call Start to
// begin the feed loop.
func New(pty PTY, opts Options) *Session {
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.GraceTimeout == 0 {
		opts.GraceTimeout = defaultGraceTimeout
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Session{
		ID:           opts.ID,
		Owner:        opts.Owner,
		pty:          pty,
		term:         term.New(opts.Rows, opts.Cols),
		state:        StateStarting,
		clock:        opts.Clock,
		logger:       opts.Logger.With("session_id", opts.ID),
		pollInterval: opts.PollInterval,
		graceTimeout: opts.GraceTimeout,
		stopTimeout:  opts.StopTimeout,
		stopCh:       make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
}

// Start launches the feed loop.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("session started", "owner", s.Owner)
	go s.feedLoop()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attach registers an adapter for output fan-out.
func (s *Session) Attach(a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters = append(s.adapters, a)
}

// Detach removes a previously attached adapter.
func (s *Session) Detach(a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.adapters {
		if existing == a {
			s.adapters = append(s.adapters[:i], s.adapters[i+1:]...)
			return
		}
	}
}

// WriteLine sends a line of input followed by newline.
func (s *Session) WriteLine(text string) error {
	return s.WriteRaw(append([]byte(text), '\n'))
}

// WriteRaw sends input bytes exactly as given.
func (s *Session) WriteRaw(data []byte) error {
	if st := s.State(); st != StateRunning {
		return ErrNotRunning
	}
	_, err := s.pty.Write(data)
	return err
}

// Interrupt sends Ctrl-C semantics to the process.
func (s *Session) Interrupt() error {
	if st := s.State(); st != StateRunning {
		return ErrNotRunning
	}
	_, err := s.pty.Write([]byte{0x03})
	return err
}

// Resize changes the PTY and emulator geometry and notifies adapters.
func (s *Session) Resize(rows, cols int) error {
	if st := s.State(); st != StateRunning {
		return ErrNotRunning
	}
	if err := s.pty.Resize(uint16(rows), uint16(cols)); err != nil {
		return err
	}
	s.mu.Lock()
	s.term.Resize(rows, cols)
	for _, a := range s.adapters {
		a.NotifyResize(rows, cols)
	}
	s.mu.Unlock()

	s.logger.Info("session resized", "rows", rows, "cols", cols)
	return nil
}

// Sync runs fn serialized with the feed loop, with delivery paused.
// fn receives bytes that repaint the current screen plus the geometry,
// letting a caller prime a new consumer at an exact point in the
// output stream: everything before the repaint has already been
// fanned out, everything after it has not.
func (s *Session) Sync(fn func(redraw []byte, rows, cols int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, cols := s.term.Size()
	fn(s.term.RedrawSequence(), rows, cols)
}

// Size returns the emulator geometry.
func (s *Session) Size() (rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term.Size()
}

// Frame renders the current screen as a newline-joined string.
func (s *Session) Frame() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term.Frame()
}

// Display renders the current screen as padded rows.
func (s *Session) Display() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term.Display()
}

// RedrawSequence returns bytes that repaint the current screen on a
// fresh terminal of the same geometry.
func (s *Session) RedrawSequence() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term.RedrawSequence()
}

// ExitErr returns the process exit error once the session stopped.
func (s *Session) ExitErr() error {
	return s.pty.ExitErr()
}

// feedLoop is the single writer to the emulator. It polls the PTY on
// a cadence, feeds output to the emulator, and fans it out.
func (s *Session) feedLoop() {
	defer close(s.loopDone)

	buf := make([]byte, readBufSize)
	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.drain(buf)
			s.finish()
			return
		case <-s.pty.Done():
			// Output buffered before exit is still delivered.
			s.drain(buf)
			s.finish()
			return
		case <-ticker.C():
			if eof := s.drain(buf); eof {
				s.finish()
				return
			}
		}
	}
}

// drain reads until no more output is immediately available. It
// returns true when the output stream has ended.
func (s *Session) drain(buf []byte) bool {
	for {
		n, err := s.pty.ReadAvailable(buf, readWait)
		if n > 0 {
			s.dispatch(buf[:n])
		}
		if err != nil {
			return true
		}
		if n == 0 {
			return false
		}
	}
}

// dispatch feeds one read into the emulator and fans it out. The
// session lock is held across both so a Sync observer always sees a
// screen consistent with the deliveries that reached adapters.
func (s *Session) dispatch(data []byte) {
	owned := make([]byte, len(data))
	copy(owned, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.term.Feed(owned)
	for _, a := range s.adapters {
		a.DeliverBytes(owned)
		a.NotifyChanged()
	}
}

// finish records the terminal state and shuts adapters down. Runs on
// the feed loop goroutine, exactly once.
func (s *Session) finish() {
	exitErr := s.pty.ExitErr()

	s.mu.Lock()
	if s.state == StateStopping || exitErr == nil {
		s.state = StateStopped
	} else {
		s.state = StateCrashed
	}
	final := s.state
	adapters := s.cloneAdapters()
	s.adapters = nil
	s.mu.Unlock()

	if final == StateCrashed {
		s.logger.Warn("session crashed", "error", exitErr)
	} else {
		s.logger.Info("session stopped")
	}
	for _, a := range adapters {
		a.Shutdown()
	}
}

// Stop terminates the session: graceful signal, grace timeout, then
// force kill. Idempotent; concurrent calls all return the first
// outcome.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.doStop()
	})
	return s.stopErr
}

func (s *Session) doStop() error {
	s.mu.Lock()
	if s.state == StateStarting || s.state == StateRunning {
		s.state = StateStopping
	}
	s.mu.Unlock()

	if s.pty.Alive() {
		if err := s.pty.SignalTerm(); err != nil {
			s.logger.Warn("terminate signal failed", "error", err)
		}
		select {
		case <-s.pty.Done():
		case <-s.clock.After(s.graceTimeout):
			s.logger.Warn("grace timeout elapsed, force killing")
			_ = s.pty.Kill()
			select {
			case <-s.pty.Done():
			case <-s.clock.After(s.stopTimeout):
				s.logger.Error("process did not exit after kill")
			}
		}
	}

	close(s.stopCh)
	select {
	case <-s.loopDone:
	case <-s.clock.After(s.stopTimeout):
		s.logger.Warn("feed loop did not stop in time")
	}
	return s.pty.Close()
}

func (s *Session) cloneAdapters() []Adapter {
	out := make([]Adapter, len(s.adapters))
	copy(out, s.adapters)
	return out
}
