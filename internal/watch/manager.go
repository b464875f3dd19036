package watch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	watchapi "k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// State is the connection lifecycle surfaced to the presentation layer.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// retryDelay is the fixed pause before the single reconnect attempt that
// follows an unexpected closure. No exponential backoff: recovery latency
// stays bounded at the cost of repeated retries under a long outage.
const retryDelay = 5 * time.Second

// ClientFunc resolves a cluster identifier (kubeconfig context name) to a
// clientset.
type ClientFunc func(ctx context.Context, clusterID string) (kubernetes.Interface, error)

// Manager owns at most one live connection per (cluster, kind) pair.
// Namespace selection never reconnects anything; filtering is downstream.
type Manager struct {
	mu      sync.Mutex
	conns   map[string]*Conn
	clients ClientFunc

	retryDelay time.Duration
	epochs     atomic.Uint64
}

func NewManager(clients ClientFunc) *Manager {
	return &Manager{
		conns:      make(map[string]*Conn),
		clients:    clients,
		retryDelay: retryDelay,
	}
}

// Connect returns the live connection for (clusterID, kind), starting one
// only if none exists. The keying includes the kind: the upstream watch
// API is kind-scoped, so one connection can never cover several kinds.
func (m *Manager) Connect(clusterID string, kind Kind) (*Conn, error) {
	if clusterID == "" {
		return nil, fmt.Errorf("connect: empty cluster id")
	}
	if _, ok := ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("connect: unsupported kind %q", kind)
	}

	key := clusterID + "/" + string(kind)

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conns[key]; ok && !c.isStopped() {
		return c, nil
	}

	c := &Conn{
		mgr:       m,
		clusterID: clusterID,
		kind:      kind,
		state:     StateConnecting,
		events:    make(chan Event, 256),
		stop:      make(chan struct{}),
	}
	m.conns[key] = c
	go c.run()
	return c, nil
}

// DisconnectAll tears down every live connection; used on shutdown and
// when the owning session goes away.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
}

// Conn is one live subscription. Events are delivered on a single channel
// in stream order; the channel closes after Disconnect.
type Conn struct {
	mgr       *Manager
	clusterID string
	kind      Kind

	mu      sync.Mutex
	state   State
	stopped bool
	epoch   atomic.Uint64

	events chan Event
	stop   chan struct{}
}

func (c *Conn) ClusterID() string { return c.clusterID }

func (c *Conn) Kind() Kind { return c.kind }

func (c *Conn) Events() <-chan Event { return c.events }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Epoch identifies the current stream attachment. Consumers compare it to
// Event.Epoch to reject events left over from a replaced stream.
func (c *Conn) Epoch() uint64 { return c.epoch.Load() }

// Disconnect closes the connection on purpose, suppressing the reconnect
// path. Safe to call more than once.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.state = StateClosed
	close(c.stop)
	c.mu.Unlock()
}

func (c *Conn) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if !c.stopped {
		c.state = s
	}
	c.mu.Unlock()
}

// emit delivers an event unless the connection is being torn down. The
// buffer absorbs bursts; a consumer that stopped draining would otherwise
// wedge the reader goroutine on a dead session.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.stop:
	}
}

// run is the connection loop: bootstrap list, then stream, then exactly
// one delayed retry per unexpected closure. It exits only on Disconnect.
func (c *Conn) run() {
	defer close(c.events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.stop
		cancel()
	}()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		epoch := c.mgr.epochs.Add(1)
		c.epoch.Store(epoch)
		c.setState(StateConnecting)

		if err := c.streamOnce(ctx, epoch); err != nil {
			if c.isStopped() {
				return
			}
			c.setState(StateError)
			c.emit(Event{Kind: Error, Message: err.Error(), Epoch: epoch})
			log.Printf("watch %s/%s: %v (retrying in %s)", c.clusterID, c.kind, err, c.mgr.retryDelay)
		}

		select {
		case <-c.stop:
			return
		case <-time.After(c.mgr.retryDelay):
		}
	}
}

// streamOnce performs one bootstrap-then-stream cycle. It returns nil only
// when the caller requested the stop; any other return is an unexpected
// closure the loop will retry.
func (c *Conn) streamOnce(ctx context.Context, epoch uint64) error {
	cs, err := c.mgr.clients(ctx, c.clusterID)
	if err != nil {
		return fmt.Errorf("cluster client: %w", err)
	}
	rc, err := newResourceClient(cs, c.kind)
	if err != nil {
		return err
	}

	// Bootstrap: the bulk list seeds the snapshot so the UI never flashes
	// empty, and the watch picks up from the list's resourceVersion so
	// stream events are deltas on top of the seed, never double counted.
	records, rv, err := rc.List(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap list: %w", err)
	}

	c.emit(Event{Kind: Synced, Epoch: epoch})
	for _, rec := range records {
		c.emit(Event{Kind: Added, Record: rec, Epoch: epoch})
	}

	w, err := rc.Watch(ctx, rv)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Stop()

	c.setState(StateOpen)

	for {
		select {
		case <-c.stop:
			return nil
		case ev, ok := <-w.ResultChan():
			if !ok {
				if c.isStopped() {
					return nil
				}
				return fmt.Errorf("stream closed by server")
			}
			c.forward(rc, ev, epoch)
		}
	}
}

func (c *Conn) forward(rc resourceClient, ev watchapi.Event, epoch uint64) {
	switch ev.Type {
	case watchapi.Added, watchapi.Modified, watchapi.Deleted:
		rec, ok := rc.Convert(ev.Object)
		if !ok {
			// Malformed payload: drop, never tear down.
			log.Printf("watch %s/%s: dropping event with unexpected object %T", c.clusterID, c.kind, ev.Object)
			return
		}
		c.emit(Event{Kind: EventKind(ev.Type), Record: rec, Epoch: epoch})
	case watchapi.Error:
		c.emit(Event{Kind: Error, Message: fmt.Sprintf("stream error: %v", ev.Object), Epoch: epoch})
	case watchapi.Bookmark:
		// Nothing to fold.
	}
}
