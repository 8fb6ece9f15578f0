// Package fakepty provides a fake PTY process for testing session
// logic without spawning real processes.
package fakepty

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// PTY is a scriptable fake of the session PTY surface. Output is
// queued with AddOutput and handed out one chunk per ReadAvailable
// call; input, resizes, and signals are captured for inspection.
type PTY struct {
	mu        sync.Mutex
	output    [][]byte
	outputIdx int
	written   bytes.Buffer
	closed    bool

	rows, cols uint16

	termSignaled bool
	killed       bool
	ignoreTerm   bool // simulates a process that ignores SIGTERM

	exitErr error
	done    chan struct{}
	exited  bool
}

// New creates a new fake PTY in the running state.
func New() *PTY {
	return &PTY{done: make(chan struct{})}
}

// AddOutput queues a chunk to be returned by one ReadAvailable call.
func (p *PTY) AddOutput(data string) *PTY {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = append(p.output, []byte(data))
	return p
}

// SetIgnoreTerm makes SignalTerm have no effect, like a process that
// traps and ignores the signal.
func (p *PTY) SetIgnoreTerm(ignore bool) *PTY {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ignoreTerm = ignore
	return p
}

// Exit simulates process exit with the given error.
func (p *PTY) Exit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exit(err)
}

func (p *PTY) exit(err error) {
	if p.exited {
		return
	}
	p.exited = true
	p.exitErr = err
	close(p.done)
}

// ReadAvailable returns the next queued chunk, ignoring the wait.
func (p *PTY) ReadAvailable(buf []byte, _ time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outputIdx >= len(p.output) {
		if p.exited {
			return 0, io.EOF
		}
		return 0, nil
	}
	chunk := p.output[p.outputIdx]
	p.outputIdx++
	return copy(buf, chunk), nil
}

// Write captures input for later inspection.
func (p *PTY) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.written.Write(b)
}

// Resize records the requested geometry.
func (p *PTY) Resize(rows, cols uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = rows
	p.cols = cols
	return nil
}

// Alive reports whether Exit has not been called.
func (p *PTY) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed on exit.
func (p *PTY) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the error passed to Exit.
func (p *PTY) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// SignalTerm records the signal and exits unless SetIgnoreTerm is on.
func (p *PTY) SignalTerm() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.termSignaled = true
	if !p.ignoreTerm {
		p.exit(nil)
	}
	return nil
}

// Kill records the kill and always exits.
func (p *PTY) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	p.exit(errKilled)
	return nil
}

// Close marks the PTY closed.
func (p *PTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// --- Test inspection methods ---

// Written returns all captured input.
func (p *PTY) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// Size returns the last requested geometry.
func (p *PTY) Size() (rows, cols uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rows, p.cols
}

// WasTermSignaled reports whether SignalTerm was called.
func (p *PTY) WasTermSignaled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.termSignaled
}

// WasKilled reports whether Kill was called.
func (p *PTY) WasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// IsClosed reports whether Close was called.
func (p *PTY) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeExitError struct{}

func (fakeExitError) Error() string { return "signal: killed" }

var errKilled = fakeExitError{}
