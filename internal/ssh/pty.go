package ssh

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/acolita/termgate/internal/adapters/realclock"
	"github.com/acolita/termgate/internal/ports"
)

// SSHPTY is a PTY session on a remote host. SSH streams have no read
// deadlines, so a pump goroutine moves output into a channel and
// ReadAvailable drains it with a bounded wait, matching the local PTY
// surface.
type SSHPTY struct {
	client  *Client
	session *ssh.Session
	stdin   io.WriteCloser
	command string
	clock   ports.Clock

	mu     sync.Mutex
	rows   uint16
	cols   uint16
	closed bool

	chunks  chan []byte
	pending []byte

	exitErr error
	done    chan struct{}
}

// SSHPTYOptions configures remote PTY allocation.
type SSHPTYOptions struct {
	Command string // command to run (defaults to the login shell)
	Term    string // terminal type (default: xterm-256color)
	Rows    uint16 // terminal rows (default: 24)
	Cols    uint16 // terminal columns (default: 80)
	Env     map[string]string
	Clock   ports.Clock
}

// NewSSHPTY opens a session on the client, requests a PTY, and starts
// the command or login shell.
func NewSSHPTY(client *Client, opts SSHPTYOptions) (*SSHPTY, error) {
	if !client.IsConnected() {
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
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
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	// Servers commonly restrict which variables may be set; a
	// rejected Setenv is not fatal.
	for key, value := range opts.Env {
		_ = session.Setenv(key, value)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(opts.Term, int(opts.Rows), int(opts.Cols), modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if opts.Command == "" {
		err = session.Shell()
	} else {
		err = session.Start(opts.Command)
	}
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("start: %w", err)
	}

	p := &SSHPTY{
		client:  client,
		session: session,
		stdin:   stdin,
		command: opts.Command,
		clock:   opts.Clock,
		rows:    opts.Rows,
		cols:    opts.Cols,
		chunks:  make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	go p.pump(stdout)
	go p.reap()
	return p, nil
}

// pump moves remote output into the chunk channel.
func (p *SSHPTY) pump(stdout io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.chunks <- chunk
		}
		if err != nil {
			close(p.chunks)
			return
		}
	}
}

// reap collects the remote exit status.
func (p *SSHPTY) reap() {
	err := p.session.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)
}

// Command returns the command line the PTY was started with.
func (p *SSHPTY) Command() string {
	return p.command
}

// Write writes input bytes to the remote process.
func (p *SSHPTY) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// ReadAvailable reads whatever output is ready, waiting at most wait
// for the first byte. A timeout with no data returns n == 0, err ==
// nil. io.EOF signals the output stream has ended.
func (p *SSHPTY) ReadAvailable(buf []byte, wait time.Duration) (int, error) {
	if len(p.pending) == 0 {
		select {
		case chunk, ok := <-p.chunks:
			if !ok {
				return 0, io.EOF
			}
			p.pending = chunk
		case <-p.clock.After(wait):
			return 0, nil
		}
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Resize changes the remote PTY window size.
func (p *SSHPTY) Resize(rows, cols uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.session.WindowChange(int(rows), int(cols)); err != nil {
		return fmt.Errorf("window change: %w", err)
	}
	p.rows = rows
	p.cols = cols
	return nil
}

// Size returns the terminal size.
func (p *SSHPTY) Size() (rows, cols uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rows, p.cols
}

// Alive reports whether the remote process has not yet exited.
func (p *SSHPTY) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed when the remote process has exited.
func (p *SSHPTY) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the exit error once Done is closed.
func (p *SSHPTY) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Interrupt sends SIGINT to the remote process. Many servers ignore
// the signal request, so Ctrl-C is written to stdin as well.
func (p *SSHPTY) Interrupt() error {
	_ = p.session.Signal(ssh.SIGINT)
	_, err := p.stdin.Write([]byte{0x03})
	return err
}

// SignalTerm asks the remote process to exit.
func (p *SSHPTY) SignalTerm() error {
	if !p.Alive() {
		return nil
	}
	return p.session.Signal(ssh.SIGTERM)
}

// Kill force-kills the remote process. Tearing down the session also
// unblocks the exit waiter for servers that ignore signal requests.
func (p *SSHPTY) Kill() error {
	if !p.Alive() {
		return nil
	}
	_ = p.session.Signal(ssh.SIGKILL)
	return p.closeSession()
}

// Close tears down the session without waiting.
func (p *SSHPTY) Close() error {
	return p.closeSession()
}

func (p *SSHPTY) closeSession() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.session.Close()
}
