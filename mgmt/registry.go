package mgmt

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Phase is the lifecycle phase of a Session.
type Phase int

const (
	PhaseAccumulating Phase = iota
	PhaseValidating
	PhaseDecided
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAccumulating:
		return "accumulating"
	case PhaseValidating:
		return "validating"
	case PhaseDecided:
		return "decided"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// Session tracks one connection attempt from first notification to terminal
// decision or disconnect. A Session transitions to PhaseDecided at most once.
type Session struct {
	Key       ConnectionKey
	Env       map[string]string
	Phase     Phase
	Decision  Decision
	CreatedAt time.Time
	DecidedAt time.Time
}

// Registry is the shared session table. Every state transition happens under
// one mutex, so the one-decision invariant holds against concurrent decide
// and close calls for the same key.
type Registry struct {
	mu       sync.Mutex
	sessions map[ConnectionKey]*Session
	// closed holds tombstones of recently closed keys so a stale duplicate
	// of an already-answered attempt can be distinguished from a new one.
	closed  map[ConnectionKey]time.Time
	nowTime func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowFunc
	}
}

func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[ConnectionKey]*Session),
		closed:   make(map[ConnectionKey]time.Time),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Open creates the Session for key, or returns the existing one. It fails
// with DuplicateKeyErr only when a stale duplicate arrives for a key that
// already reached its terminal state.
func (r *Registry) Open(key ConnectionKey) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s, nil
	}
	if _, ok := r.closed[key]; ok {
		return nil, DuplicateKeyErr
	}
	s := &Session{
		Key:       key,
		Phase:     PhaseAccumulating,
		CreatedAt: r.nowTime(),
	}
	r.sessions[key] = s
	return s, nil
}

// Complete attaches the finalized environment and moves the Session from
// PhaseAccumulating to PhaseValidating. A second completion for the same key
// fails with AlreadyCompletedErr; a completion for an unknown key fails with
// UnknownKeyErr.
func (r *Registry) Complete(key ConnectionKey, env map[string]string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return nil, UnknownKeyErr
	}
	if s.Phase != PhaseAccumulating {
		return nil, AlreadyCompletedErr
	}
	s.Env = env
	s.Phase = PhaseValidating
	return s, nil
}

// Decide performs the PhaseValidating to PhaseDecided transition. The
// transition is atomic under the registry mutex; a second decision for the
// same key fails with DuplicateDecisionErr and must be treated as a no-op.
func (r *Registry) Decide(key ConnectionKey, decision Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return UnknownKeyErr
	}
	if s.Phase != PhaseValidating {
		return DuplicateDecisionErr
	}
	s.Decision = decision
	s.Phase = PhaseDecided
	s.DecidedAt = r.nowTime()
	return nil
}

// Exists reports whether key still has a live Session. The dispatcher uses
// this to discard decisions whose session was closed by a disconnect.
func (r *Registry) Exists(key ConnectionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[key]
	return ok
}

// Close removes the Session for key, leaving a tombstone. Safe to call on
// unknown keys.
func (r *Registry) Close(key ConnectionKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked(key)
}

// CloseClient closes every Session belonging to clientID. Disconnect
// notifications carry only the client id, not the key id.
func (r *Registry) CloseClient(clientID string) []ConnectionKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	var closed []ConnectionKey
	for key := range r.sessions {
		if key.ClientID == clientID {
			r.closeLocked(key)
			closed = append(closed, key)
		}
	}
	return closed
}

// CloseAll force-closes every remaining Session. Used by the supervisor when
// the drain deadline expires; the sessions are abandoned, no command is sent.
func (r *Registry) CloseAll() []ConnectionKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]ConnectionKey, 0, len(r.sessions))
	for key := range r.sessions {
		r.closeLocked(key)
		keys = append(keys, key)
	}
	return keys
}

// Validating returns the number of sessions awaiting a decision.
func (r *Registry) Validating() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.Phase == PhaseValidating {
			n++
		}
	}
	return n
}

// PurgeIdle removes sessions that have not reached a decision within the
// idle window. They are treated as abandoned: no command is sent. Tombstones
// older than the window are dropped at the same time.
func (r *Registry) PurgeIdle(window time.Duration) []ConnectionKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.nowTime().Add(-window)
	var purged []ConnectionKey
	for key, s := range r.sessions {
		if s.Phase != PhaseDecided && s.CreatedAt.Before(cutoff) {
			delete(r.sessions, key)
			purged = append(purged, key)
			log.Warn().Stringer("key", key).Str("phase", s.Phase.String()).Msg("purging stale session")
		}
	}
	for key, closedAt := range r.closed {
		if closedAt.Before(cutoff) {
			delete(r.closed, key)
		}
	}
	return purged
}

func (r *Registry) closeLocked(key ConnectionKey) {
	s, ok := r.sessions[key]
	if !ok {
		return
	}
	s.Phase = PhaseClosed
	delete(r.sessions, key)
	r.closed[key] = r.nowTime()
}
