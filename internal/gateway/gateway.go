// Package gateway is the façade the chat side talks to: it authorizes
// owners, spawns sessions (local or SSH), wires up output adapters,
// and routes input, resize, and stop requests to the right session.
package gateway

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/acolita/termgate/internal/adapter"
	"github.com/acolita/termgate/internal/adapters/realclock"
	"github.com/acolita/termgate/internal/adapters/realfs"
	"github.com/acolita/termgate/internal/config"
	"github.com/acolita/termgate/internal/ports"
	"github.com/acolita/termgate/internal/pty"
	"github.com/acolita/termgate/internal/recording"
	"github.com/acolita/termgate/internal/session"
	sshpkg "github.com/acolita/termgate/internal/ssh"
)

// ErrUnauthorized is returned for any operation by an owner the
// allowlist rejects.
var ErrUnauthorized = errors.New("owner not allowed")

// Authorizer decides which owners may use the gateway.
type Authorizer interface {
	IsOwnerAllowed(owner string) bool
}

// AllowlistAuthorizer allows exactly the listed owners. An empty list
// allows everyone; the caller should log loudly when running open.
type AllowlistAuthorizer struct {
	allowed map[string]struct{}
}

// NewAllowlistAuthorizer builds an authorizer from a list of owners.
func NewAllowlistAuthorizer(owners []string) *AllowlistAuthorizer {
	allowed := make(map[string]struct{}, len(owners))
	for _, owner := range owners {
		allowed[owner] = struct{}{}
	}
	return &AllowlistAuthorizer{allowed: allowed}
}

// IsOwnerAllowed reports whether owner may use the gateway.
func (a *AllowlistAuthorizer) IsOwnerAllowed(owner string) bool {
	if len(a.allowed) == 0 {
		return true
	}
	_, ok := a.allowed[owner]
	return ok
}

// SpawnFunc creates the PTY process for a new session. The returned
// closer, if any, is closed when the session stops (the SSH client
// behind a remote PTY).
type SpawnFunc func(id string, opts StartOptions, rows, cols int) (session.PTY, io.Closer, error)

// Gateway routes chat-side operations to sessions.
type Gateway struct {
	cfg      *config.Config
	registry *session.Registry
	auth     Authorizer
	spawn    SpawnFunc
	clock    ports.Clock
	fs       ports.FileSystem
	logger   *slog.Logger

	mu      sync.Mutex
	handles map[string]*handle
}

// handle bundles a session with the adapters the gateway wired to it.
type handle struct {
	sess       *session.Session
	stream     *adapter.Stream
	snapshot   *adapter.Snapshot
	transcript *adapter.Transcript
	closer     io.Closer
}

// Options configures a gateway.
type Options struct {
	Authorizer Authorizer
	Spawn      SpawnFunc // defaults to real local/SSH spawning
	Clock      ports.Clock
	FS         ports.FileSystem
	Logger     *slog.Logger
}

// StartOptions describes the session an owner asked for.
type StartOptions struct {
	Command string
	Dir     string // working directory, local sessions only
	Server  string // config server name; empty means a local session
	Rows    int
	Cols    int

	// Optional chat-side consumers.
	TranscriptSink adapter.TranscriptSink
	SnapshotTarget adapter.SnapshotTarget
}

// New creates a gateway over the given config.
func New(cfg *config.Config, opts Options) *Gateway {
	if opts.Authorizer == nil {
		opts.Authorizer = NewAllowlistAuthorizer(cfg.Owners.Allowed)
	}
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}
	if opts.FS == nil {
		opts.FS = realfs.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	g := &Gateway{
		cfg:     cfg,
		auth:    opts.Authorizer,
		clock:   opts.Clock,
		fs:      opts.FS,
		logger:  opts.Logger,
		handles: make(map[string]*handle),
	}
	g.spawn = opts.Spawn
	if g.spawn == nil {
		g.spawn = g.realSpawn
	}
	g.registry = session.NewRegistry(session.RegistryOptions{
		MaxSessions: cfg.Session.MaxSessions,
		Logger:      opts.Logger,
	})
	return g
}

// Start creates and starts a session for owner. An owner with a live
// session gets session.ErrAlreadyRunning.
func (g *Gateway) Start(owner string, opts StartOptions) (*session.Session, error) {
	if !g.auth.IsOwnerAllowed(owner) {
		return nil, ErrUnauthorized
	}
	rows := opts.Rows
	if rows == 0 {
		rows = g.cfg.Terminal.Rows
	}
	cols := opts.Cols
	if cols == 0 {
		cols = g.cfg.Terminal.Cols
	}

	return g.registry.Create(owner, func(id string) (*session.Session, error) {
		proc, closer, err := g.spawn(id, opts, rows, cols)
		if err != nil {
			return nil, fmt.Errorf("spawn: %w", err)
		}

		sess := session.New(proc, session.Options{
			ID:           id,
			Owner:        owner,
			Rows:         rows,
			Cols:         cols,
			PollInterval: g.cfg.Terminal.PollInterval,
			GraceTimeout: g.cfg.Session.GraceTimeout,
			StopTimeout:  g.cfg.Session.StopTimeout,
			Clock:        g.clock,
			Logger:       g.logger,
		})

		h := &handle{sess: sess, closer: closer}
		h.stream = adapter.NewStream(adapter.StreamOptions{Logger: g.logger})
		sess.Attach(h.stream)

		if opts.TranscriptSink != nil {
			h.transcript = adapter.NewTranscript(opts.TranscriptSink, adapter.TranscriptOptions{
				MaxChunkBytes: g.cfg.Transcript.MaxChunkBytes,
				FlushInterval: g.cfg.Transcript.FlushInterval,
				Clock:         g.clock,
				Logger:        g.logger,
			})
			sess.Attach(h.transcript)
		}
		if opts.SnapshotTarget != nil {
			h.snapshot = adapter.NewSnapshot(sess, opts.SnapshotTarget, adapter.SnapshotOptions{
				Cadence: g.cfg.Snapshot.Cadence,
				Clock:   g.clock,
				Logger:  g.logger,
			})
			sess.Attach(h.snapshot)
		}
		if g.cfg.Recording.Enabled {
			rec, err := recording.NewRecorder(g.cfg.Recording.Path, id, cols, rows, g.fs, g.clock)
			if err != nil {
				g.logger.Warn("recording disabled for session", "session_id", id, "error", err)
			} else {
				sess.Attach(adapter.NewRecording(rec, g.logger))
			}
		}

		g.mu.Lock()
		old := g.handles[owner]
		g.handles[owner] = h
		g.mu.Unlock()
		// A finished session being replaced may still hold its
		// transport.
		if old != nil && old.closer != nil {
			_ = old.closer.Close()
		}

		sess.Start()
		return sess, nil
	})
}

// realSpawn starts a local PTY, or a remote one when a server name is
// given.
func (g *Gateway) realSpawn(id string, opts StartOptions, rows, cols int) (session.PTY, io.Closer, error) {
	if opts.Server == "" {
		proc, err := pty.NewLocalPTY(pty.Options{
			Command: opts.Command,
			Dir:     opts.Dir,
			Term:    g.cfg.Terminal.Term,
			Rows:    uint16(rows),
			Cols:    uint16(cols),
		})
		return proc, nil, err
	}

	srv, ok := g.cfg.Server(opts.Server)
	if !ok {
		return nil, nil, fmt.Errorf("unknown server %q", opts.Server)
	}
	auth, err := sshpkg.BuildAuthMethods(sshpkg.AuthConfig{
		KeyPath:       srv.KeyPath,
		KeyPassphrase: os.Getenv(srv.PassphraseEnv),
		UseAgent:      true,
		Password:      os.Getenv(srv.PasswordEnv),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("auth for %s: %w", srv.Name, err)
	}
	client, err := sshpkg.NewClient(sshpkg.ClientOptions{
		Host:        srv.Host,
		Port:        srv.Port,
		User:        srv.User,
		AuthMethods: auth,
		Clock:       g.clock,
	})
	if err != nil {
		return nil, nil, err
	}
	proc, err := sshpkg.NewSSHPTY(client, sshpkg.SSHPTYOptions{
		Command: opts.Command,
		Term:    g.cfg.Terminal.Term,
		Rows:    uint16(rows),
		Cols:    uint16(cols),
		Clock:   g.clock,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return proc, client, nil
}

// get resolves an authorized owner to their session handle. Crashed
// sessions keep their handle until Stop so they can still be cleaned
// up; input to one fails with ErrNotRunning from the session itself.
func (g *Gateway) get(owner string) (*handle, error) {
	if !g.auth.IsOwnerAllowed(owner) {
		return nil, ErrUnauthorized
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.handles[owner]
	if !ok {
		return nil, session.ErrNotFound
	}
	return h, nil
}

// FeedLine sends a line of input, newline appended, to the owner's
// session.
func (g *Gateway) FeedLine(owner, text string) error {
	h, err := g.get(owner)
	if err != nil {
		return err
	}
	return h.sess.WriteLine(text)
}

// FeedRaw sends input bytes exactly as given.
func (g *Gateway) FeedRaw(owner string, data []byte) error {
	h, err := g.get(owner)
	if err != nil {
		return err
	}
	return h.sess.WriteRaw(data)
}

// Interrupt sends Ctrl-C to the owner's session.
func (g *Gateway) Interrupt(owner string) error {
	h, err := g.get(owner)
	if err != nil {
		return err
	}
	return h.sess.Interrupt()
}

// Resize changes the owner's session geometry.
func (g *Gateway) Resize(owner string, rows, cols int) error {
	h, err := g.get(owner)
	if err != nil {
		return err
	}
	return h.sess.Resize(rows, cols)
}

// Frame renders the owner's current screen.
func (g *Gateway) Frame(owner string) (string, error) {
	h, err := g.get(owner)
	if err != nil {
		return "", err
	}
	return h.sess.Frame(), nil
}

// Relocate moves the owner's snapshot message to the bottom of the
// chat. No-op for sessions without a snapshot target.
func (g *Gateway) Relocate(owner string) error {
	h, err := g.get(owner)
	if err != nil {
		return err
	}
	if h.snapshot != nil {
		h.snapshot.Relocate()
	}
	return nil
}

// AttachStream attaches a live viewer connection to the owner's
// session. The connection first receives the current geometry and a
// screen repaint, then the exact output stream from that point on.
func (g *Gateway) AttachStream(owner string, conn adapter.StreamConn) error {
	h, err := g.get(owner)
	if err != nil {
		return err
	}
	h.sess.Sync(func(redraw []byte, rows, cols int) {
		h.stream.AddConnPrimed(conn, rows, cols, redraw)
	})
	return nil
}

// DetachStream removes a viewer connection without closing it.
func (g *Gateway) DetachStream(owner string, conn adapter.StreamConn) {
	g.mu.Lock()
	h, ok := g.handles[owner]
	g.mu.Unlock()
	if ok {
		h.stream.RemoveConn(conn)
	}
}

// Session returns the owner's live session.
func (g *Gateway) Session(owner string) (*session.Session, error) {
	h, err := g.get(owner)
	if err != nil {
		return nil, err
	}
	return h.sess, nil
}

// Stop terminates the owner's session and releases its resources.
func (g *Gateway) Stop(owner string) error {
	h, err := g.get(owner)
	if err != nil {
		return err
	}
	stopErr := h.sess.Stop()
	if h.closer != nil {
		if err := h.closer.Close(); err != nil && stopErr == nil {
			stopErr = err
		}
	}
	g.registry.Remove(owner)
	g.mu.Lock()
	delete(g.handles, owner)
	g.mu.Unlock()
	return stopErr
}

// StopAll terminates every session, for shutdown.
func (g *Gateway) StopAll() {
	g.mu.Lock()
	owners := make([]string, 0, len(g.handles))
	for owner := range g.handles {
		owners = append(owners, owner)
	}
	g.mu.Unlock()

	for _, owner := range owners {
		if err := g.Stop(owner); err != nil {
			g.logger.Warn("stop failed", "owner", owner, "error", err)
		}
	}
}
