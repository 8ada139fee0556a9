package mgmt

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// State is the Connection Supervisor's lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateActive
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	}
	return "unknown"
}

// DialFunc opens the control-channel transport. Injectable so tests can
// substitute an in-memory pipe for the daemon's socket.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Config holds the management channel settings.
type Config struct {
	Host string
	Port int

	InitialBackoff    time.Duration // first reconnect delay
	MaxBackoff        time.Duration // reconnect delay ceiling
	MaxRetries        int           // consecutive connect failures before giving up, 0 retries forever
	ValidationTimeout time.Duration // per-attempt deadline, keep well below the client connect timeout
	IdleSessionWindow time.Duration // sessions without a decision for longer are purged
	PurgeInterval     time.Duration
	Workers           int // bounded validation worker pool
	DrainGrace        time.Duration
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 7505
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.ValidationTimeout == 0 {
		c.ValidationTimeout = 10 * time.Second
	}
	if c.IdleSessionWindow == 0 {
		c.IdleSessionWindow = time.Minute
	}
	if c.PurgeInterval == 0 {
		c.PurgeInterval = 30 * time.Second
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.DrainGrace == 0 {
		c.DrainGrace = 5 * time.Second
	}
	return c
}

// completion is a finalized environment handed from the read path to the
// validation workers.
type completion struct {
	key ConnectionKey
	env map[string]string
}

// Supervisor owns the control-channel lifecycle: handshake, the
// reader/parser/registry/validator/dispatcher pipeline while active,
// reconnect with exponential backoff on transport failure, and graceful
// drain on shutdown.
type Supervisor struct {
	cfg        Config
	dial       DialFunc
	registry   *Registry
	validator  *Validator
	dispatcher *Dispatcher

	state atomic.Int32
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithDialFunc replaces the TCP dialer (primarily for testing).
func WithDialFunc(dial DialFunc) SupervisorOption {
	return func(s *Supervisor) {
		s.dial = dial
	}
}

// WithRegistry replaces the session registry, allowing tests to inject a
// registry with a fake clock.
func WithRegistry(registry *Registry) SupervisorOption {
	return func(s *Supervisor) {
		s.registry = registry
		s.dispatcher = NewDispatcher(registry)
	}
}

func NewSupervisor(cfg Config, directory UserDirectory, verifier TwoFactorVerifier, options ...SupervisorOption) *Supervisor {
	cfg = cfg.withDefaults()
	registry := NewRegistry()
	s := &Supervisor{
		cfg:        cfg,
		registry:   registry,
		validator:  NewValidator(directory, verifier),
		dispatcher: NewDispatcher(registry),
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.dial = func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(state State) {
	old := State(s.state.Swap(int32(state)))
	if old != state {
		log.Debug().Stringer("from", old).Stringer("to", state).Msg("supervisor state change")
	}
}

// Run connects to the control channel and processes notifications until the
// context is cancelled (clean shutdown, returns nil) or the configured retry
// cap is exhausted (returns RetriesExhaustedErr).
func (s *Supervisor) Run(ctx context.Context) error {
	completions := make(chan completion, s.cfg.Workers*2)
	workerCtx, stopWorkers := context.WithCancel(context.Background())

	var workers sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.validateLoop(workerCtx, completions)
		}()
	}
	go s.purgeLoop(workerCtx)
	defer workers.Wait()
	defer stopWorkers()

	failures := 0
	backoff := s.cfg.InitialBackoff
	for {
		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(StateDisconnected)
				return nil
			}
			failures++
			log.Error().Err(err).Int("failures", failures).Msg("control channel connect failed")
			if s.cfg.MaxRetries > 0 && failures >= s.cfg.MaxRetries {
				s.setState(StateDisconnected)
				return RetriesExhaustedErr
			}
			if !sleepCtx(ctx, backoff) {
				s.setState(StateDisconnected)
				return nil
			}
			backoff = nextBackoff(backoff, s.cfg.MaxBackoff)
			continue
		}
		failures = 0
		backoff = s.cfg.InitialBackoff

		err = s.serve(ctx, conn, completions)
		_ = conn.Close()
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return nil
		}
		log.Warn().Err(err).Dur("backoff", backoff).Msg("control channel lost, reconnecting")
		if !sleepCtx(ctx, backoff) {
			s.setState(StateDisconnected)
			return nil
		}
		backoff = nextBackoff(backoff, s.cfg.MaxBackoff)
	}
}

// serve runs one connection: handshake, then the read pipeline until the
// transport fails or the context is cancelled. On cancellation it drains
// in-flight work before returning so pending decisions still reach the
// daemon through the still-open socket.
func (s *Supervisor) serve(ctx context.Context, conn net.Conn, completions chan<- completion) error {
	s.setState(StateHandshaking)
	// Stops the daemon from re-prompting clients itself; our directives are
	// the only authentication answers on this channel.
	if _, err := io.WriteString(conn, "auth-retry none\n"); err != nil {
		return errors.Wrap(TransportErr, err.Error())
	}

	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	writeDone := make(chan error, 1)
	go func() {
		err := s.dispatcher.Run(writerCtx, conn)
		if err != nil {
			// Unblock the reader so the connection is torn down as a unit.
			_ = conn.SetReadDeadline(time.Now())
		}
		writeDone <- err
	}()

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-stopWatch:
		}
	}()

	s.setState(StateActive)
	log.Info().Str("host", s.cfg.Host).Int("port", s.cfg.Port).Msg("connected to management interface")

	parser := NewParser(
		s.onOpen,
		func(key ConnectionKey, env map[string]string) { s.onComplete(ctx, key, env, completions) },
		s.onDisconnect,
	)
	reader := NewFrameReader(conn)
	var readErr error
	for {
		line, err := reader.Next()
		if err != nil {
			readErr = err
			break
		}
		parser.Feed(line)
	}

	if ctx.Err() != nil {
		s.drain()
		stopWriter()
		<-writeDone
		return nil
	}

	stopWriter()
	<-writeDone
	return errors.Wrap(TransportErr, readErr.Error())
}

// drain waits up to the grace period for in-flight validations to decide and
// for the dispatcher to flush, then force-closes whatever remains. Remaining
// sessions are abandoned: no command is sent.
func (s *Supervisor) drain() {
	s.setState(StateDraining)
	deadline := time.Now().Add(s.cfg.DrainGrace)
	for s.registry.Validating() > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if remaining := time.Until(deadline); remaining > 0 {
		s.dispatcher.AwaitEmpty(remaining)
	}
	if abandoned := s.registry.CloseAll(); len(abandoned) > 0 {
		log.Warn().Int("sessions", len(abandoned)).Msg("abandoned undecided sessions on shutdown")
	}
}

func (s *Supervisor) onOpen(key ConnectionKey) {
	if _, err := s.registry.Open(key); err != nil {
		log.Warn().Err(err).Stringer("key", key).Msg("ignoring duplicate connection notification")
		return
	}
	log.Info().Stringer("key", key).Msg("authentication request")
}

func (s *Supervisor) onComplete(ctx context.Context, key ConnectionKey, env map[string]string, completions chan<- completion) {
	if _, err := s.registry.Complete(key, env); err != nil {
		log.Warn().Err(err).Stringer("key", key).Msg("ignoring environment completion")
		return
	}
	select {
	case completions <- completion{key: key, env: env}:
	case <-ctx.Done():
	}
}

func (s *Supervisor) onDisconnect(clientID string) {
	closed := s.registry.CloseClient(clientID)
	log.Info().Str("client_id", clientID).Int("sessions", len(closed)).Msg("client disconnected")
}

func (s *Supervisor) validateLoop(ctx context.Context, completions <-chan completion) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-completions:
			s.validateOne(ctx, c)
		}
	}
}

func (s *Supervisor) validateOne(ctx context.Context, c completion) {
	vctx, cancel := context.WithTimeout(ctx, s.cfg.ValidationTimeout)
	defer cancel()

	decision := s.validator.Validate(vctx, c.env)
	if err := s.registry.Decide(c.key, decision); err != nil {
		log.Info().Err(err).Stringer("key", c.key).Msg("decision dropped")
		return
	}
	s.dispatcher.Enqueue(c.key, decision)
}

func (s *Supervisor) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.PurgeIdle(s.cfg.IdleSessionWindow)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
