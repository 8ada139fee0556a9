package mgmt

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type directive struct {
	key      ConnectionKey
	decision Decision
}

// Dispatcher owns the only writer to the control socket. Decisions arrive
// concurrently from the validation workers, are queued, and are drained by
// one writer at a time so byte-level framing on the shared socket is never
// interleaved. Directives left undelivered by a transport failure stay
// queued and are retried once the supervisor re-establishes the link,
// unless their session has since been closed.
type Dispatcher struct {
	registry *Registry

	mu      sync.Mutex
	pending []directive
	empty   *sync.Cond
	wake    chan struct{}
}

func NewDispatcher(registry *Registry) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		wake:     make(chan struct{}, 1),
	}
	d.empty = sync.NewCond(&d.mu)
	return d
}

// Enqueue queues one directive for delivery.
func (d *Dispatcher) Enqueue(key ConnectionKey, decision Decision) {
	d.mu.Lock()
	d.pending = append(d.pending, directive{key: key, decision: decision})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue onto w until the context is cancelled or a write
// fails. On write failure the directive is requeued at the front and a
// TransportErr is returned so the supervisor can reconnect.
func (d *Dispatcher) Run(ctx context.Context, w io.Writer) error {
	for {
		dir, ok := d.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-d.wake:
				continue
			}
		}

		if !d.registry.Exists(dir.key) {
			log.Info().Stringer("key", dir.key).Msg("discarding directive for closed session")
			d.signalIfEmpty()
			continue
		}

		if _, err := io.WriteString(w, FormatDirective(dir.key, dir.decision)+"\n"); err != nil {
			d.requeueFront(dir)
			return errors.Wrap(TransportErr, err.Error())
		}

		d.registry.Close(dir.key)
		evt := log.Info().
			Stringer("key", dir.key).
			Bool("allow", dir.decision.Allow)
		if !dir.decision.Allow {
			evt = evt.Str("reason", dir.decision.Reason)
		}
		evt.Msg("dispatched decision")
		d.signalIfEmpty()
	}
}

// AwaitEmpty blocks until the queue is empty or the timeout expires,
// reporting whether it drained. Used by the supervisor while draining.
func (d *Dispatcher) AwaitEmpty(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		d.mu.Lock()
		d.empty.Broadcast()
		d.mu.Unlock()
	})
	defer timer.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.pending) > 0 && time.Now().Before(deadline) {
		d.empty.Wait()
	}
	return len(d.pending) == 0
}

func (d *Dispatcher) next() (directive, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return directive{}, false
	}
	dir := d.pending[0]
	d.pending = d.pending[1:]
	return dir, true
}

func (d *Dispatcher) requeueFront(dir directive) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append([]directive{dir}, d.pending...)
}

func (d *Dispatcher) signalIfEmpty() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		d.empty.Broadcast()
	}
}
