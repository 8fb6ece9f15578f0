package adapter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/acolita/termgate/internal/adapters/realclock"
	"github.com/acolita/termgate/internal/ports"
)

// FrameSource renders the current screen. *session.Session satisfies
// it.
type FrameSource interface {
	Frame() string
}

// SnapshotTarget is where rendered screens go, typically one pinned
// chat message. Update edits the existing message in place; Repost
// deletes it and posts a fresh one at the bottom of the chat.
type SnapshotTarget interface {
	Update(frame string) error
	Repost(frame string) error
}

// Snapshot keeps an external view of the screen current. On a cadence
// it renders a frame and pushes it to the target, but only when the
// frame actually differs from the one last pushed, so an idle screen
// costs nothing and every visible change is pushed at most once.
type Snapshot struct {
	source  FrameSource
	target  SnapshotTarget
	cadence time.Duration
	clock   ports.Clock
	logger  *slog.Logger

	mu         sync.Mutex
	changed    bool
	lastFrame  string
	pushed     bool
	relocating bool

	// deliver serializes Update and Repost calls on the target: a
	// relocation must not run while an update is in flight, and vice
	// versa. Never held together with mu.
	deliver sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// SnapshotOptions configures a snapshot adapter.
type SnapshotOptions struct {
	Cadence time.Duration
	Clock   ports.Clock
	Logger  *slog.Logger
}

// NewSnapshot starts the update loop.
func NewSnapshot(source FrameSource, target SnapshotTarget, opts SnapshotOptions) *Snapshot {
	if opts.Cadence == 0 {
		opts.Cadence = 500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Snapshot{
		source:  source,
		target:  target,
		cadence: opts.Cadence,
		clock:   opts.Clock,
		logger:  opts.Logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.updateLoop()
	return s
}

// DeliverBytes is not used; the snapshot reads the rendered screen.
func (s *Snapshot) DeliverBytes(data []byte) {}

// NotifyChanged marks the screen dirty for the next cadence tick.
func (s *Snapshot) NotifyChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = true
}

// NotifyResize marks the screen dirty; the new geometry shows up in
// the next rendered frame.
func (s *Snapshot) NotifyResize(rows, cols int) {
	s.NotifyChanged()
}

// Shutdown pushes a final frame and stops the loop.
func (s *Snapshot) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.push()
	})
}

func (s *Snapshot) updateLoop() {
	defer close(s.done)
	ticker := s.clock.NewTicker(s.cadence)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C():
			s.push()
		}
	}
}

// push sends the current frame if it changed since the last push.
// Skipped entirely while a relocation is in flight.
func (s *Snapshot) push() {
	s.mu.Lock()
	if !s.changed || s.relocating {
		s.mu.Unlock()
		return
	}
	s.changed = false
	s.mu.Unlock()

	s.deliver.Lock()
	defer s.deliver.Unlock()

	frame := s.source.Frame()

	s.mu.Lock()
	if s.pushed && frame == s.lastFrame {
		s.mu.Unlock()
		return
	}
	s.lastFrame = frame
	s.pushed = true
	s.mu.Unlock()

	if err := s.target.Update(frame); err != nil {
		s.logger.Warn("snapshot update failed", "error", err)
		s.mu.Lock()
		// Retry on the next tick.
		s.changed = true
		s.pushed = false
		s.mu.Unlock()
	}
}

// Relocate moves the snapshot message to the bottom of the chat by
// deleting and reposting it. Concurrent relocations collapse into
// one; periodic updates are suppressed until the repost finishes.
func (s *Snapshot) Relocate() {
	s.mu.Lock()
	if s.relocating {
		s.mu.Unlock()
		return
	}
	s.relocating = true
	s.mu.Unlock()

	// Waits out any update already in flight.
	s.deliver.Lock()
	frame := s.source.Frame()
	err := s.target.Repost(frame)
	s.deliver.Unlock()

	s.mu.Lock()
	s.relocating = false
	if err != nil {
		s.logger.Warn("snapshot repost failed", "error", err)
		s.changed = true
		s.pushed = false
	} else {
		s.lastFrame = frame
		s.pushed = true
	}
	s.mu.Unlock()
}
