// Package pty manages the pseudo-terminal side of a session: spawning
// a process attached to a PTY of a given geometry, non-blocking reads
// of its output, resize, and graceful termination.
package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// LocalPTY is a process running on the local host attached to a PTY.
type LocalPTY struct {
	cmd     *exec.Cmd
	pty     *os.File
	command string

	mu      sync.Mutex
	closed  bool
	exitErr error
	done    chan struct{}
}

// Options configures PTY allocation.
type Options struct {
	Command string   // command line, run via the shell (defaults to the shell itself)
	Shell   string   // shell to use (defaults to $SHELL or /bin/sh)
	Term    string   // TERM value (default: xterm-256color)
	Rows    uint16   // terminal rows (default: 24)
	Cols    uint16   // terminal columns (default: 80)
	Dir     string   // initial working directory
	Env     []string // additional environment variables
}

// NewLocalPTY spawns the command attached to a fresh PTY.
func NewLocalPTY(opts Options) (*LocalPTY, error) {
	if opts.Shell == "" {
		opts.Shell = detectShell()
	}
	if opts.Term == "" {
		opts.Term = "xterm-256color"
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}

	var cmd *exec.Cmd
	if opts.Command == "" {
		cmd = exec.Command(opts.Shell)
	} else {
		cmd = exec.Command(opts.Shell, "-c", opts.Command)
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	cmd.Env = append(os.Environ(), fmt.Sprintf("TERM=%s", opts.Term))
	cmd.Env = append(cmd.Env, opts.Env...)

	winSize := &pty.Winsize{
		Rows: opts.Rows,
		Cols: opts.Cols,
	}
	ptmx, err := pty.StartWithSize(cmd, winSize)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	p := &LocalPTY{
		cmd:     cmd,
		pty:     ptmx,
		command: opts.Command,
		done:    make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

// reap collects the process exit status as soon as it happens.
func (p *LocalPTY) reap() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)
}

// Command returns the command line the PTY was started with.
func (p *LocalPTY) Command() string {
	return p.command
}

// Write writes input bytes to the process.
func (p *LocalPTY) Write(b []byte) (int, error) {
	return p.pty.Write(b)
}

// ReadAvailable reads whatever output is ready, waiting at most wait
// for the first byte. A timeout with no data is not an error; it
// returns n == 0, err == nil.
func (p *LocalPTY) ReadAvailable(buf []byte, wait time.Duration) (int, error) {
	if err := p.pty.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	n, err := p.pty.Read(buf)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

// Resize changes the PTY window size. The kernel delivers SIGWINCH to
// the foreground process group.
func (p *LocalPTY) Resize(rows, cols uint16) error {
	return pty.Setsize(p.pty, &pty.Winsize{
		Rows: rows,
		Cols: cols,
	})
}

// Alive reports whether the process has not yet exited.
func (p *LocalPTY) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed when the process has exited.
func (p *LocalPTY) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the process exit error once Done is closed. nil
// means a zero exit status.
func (p *LocalPTY) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Interrupt sends SIGINT to the process.
func (p *LocalPTY) Interrupt() error {
	return p.signal(syscall.SIGINT)
}

func (p *LocalPTY) signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return p.cmd.Process.Signal(sig)
}

// SignalTerm asks the process to exit. Safe on an exited process.
func (p *LocalPTY) SignalTerm() error {
	if !p.Alive() {
		return nil
	}
	return p.signal(syscall.SIGTERM)
}

// Kill force-kills the process. Safe on an exited process.
func (p *LocalPTY) Kill() error {
	if !p.Alive() {
		return nil
	}
	// Ignore the race where it exits between the check and the kill.
	_ = p.signal(syscall.SIGKILL)
	return nil
}

// Close force-kills the process and releases the PTY.
func (p *LocalPTY) Close() error {
	if p.Alive() {
		_ = p.signal(syscall.SIGKILL)
	}
	return p.closePTY()
}

func (p *LocalPTY) closePTY() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.pty.Close(); err != nil {
		return fmt.Errorf("close pty: %w", err)
	}
	return nil
}

// detectShell returns the user's shell, falling back to common paths.
func detectShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	for _, shell := range []string{"/bin/bash", "/bin/zsh", "/bin/sh"} {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh"
}
