package session

import (
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/acolita/termgate/internal/adapters/realrand"
	"github.com/acolita/termgate/internal/ports"
)

// Registry tracks at most one live session per owner.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxSessions int
	random      ports.Random
	logger      *slog.Logger
}

// RegistryOptions configures a registry.
type RegistryOptions struct {
	MaxSessions int // 0 means unlimited
	Random      ports.Random
	Logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Random == nil {
		opts.Random = realrand.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		maxSessions: opts.MaxSessions,
		random:      opts.Random,
		logger:      opts.Logger,
	}
}

// Create starts a new session for owner via the start function, which
// receives the generated session ID. An owner with a live session gets
// ErrAlreadyRunning and the existing session is untouched. A finished
// session left in place is replaced.
func (r *Registry) Create(owner string, start func(id string) (*Session, error)) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[owner]; ok {
		if live(existing.State()) {
			return nil, ErrAlreadyRunning
		}
		delete(r.sessions, owner)
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return nil, ErrMaxSessions
	}

	id := r.generateID()
	sess, err := start(id)
	if err != nil {
		return nil, err
	}
	r.sessions[owner] = sess
	r.logger.Info("session registered", "session_id", id, "owner", owner)
	return sess, nil
}

// Get returns the live session for owner.
func (r *Registry) Get(owner string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[owner]
	if !ok || !live(sess.State()) {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Remove drops the session for owner without stopping it.
func (r *Registry) Remove(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, owner)
}

// Owners returns the owners with a registered session.
func (r *Registry) Owners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owners := make([]string, 0, len(r.sessions))
	for owner := range r.sessions {
		owners = append(owners, owner)
	}
	return owners
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StopAll stops every session and empties the registry.
func (r *Registry) StopAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.Stop(); err != nil {
			r.logger.Warn("stop failed", "session_id", sess.ID, "error", err)
		}
	}
}

func live(st State) bool {
	switch st {
	case StateStarting, StateRunning, StateStopping:
		return true
	}
	return false
}

// generateID generates a unique session ID.
func (r *Registry) generateID() string {
	b := make([]byte, 8)
	r.random.Read(b)
	return "sess_" + hex.EncodeToString(b)
}
