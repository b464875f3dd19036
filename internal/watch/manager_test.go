package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	watchapi "k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	fakek8s "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

// watcherSource hands out a fresh fake watcher per watch call so tests can
// simulate server-side closures and count reconnect attempts.
type watcherSource struct {
	mu       sync.Mutex
	watchers []*watchapi.FakeWatcher
}

func (s *watcherSource) react(action k8stesting.Action) (bool, watchapi.Interface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := watchapi.NewFake()
	s.watchers = append(s.watchers, w)
	return true, w, nil
}

func (s *watcherSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *watcherSource) latest() *watchapi.FakeWatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchers[len(s.watchers)-1]
}

func newTestManager(objects ...runtime.Object) (*Manager, *watcherSource) {
	cs := fakek8s.NewSimpleClientset(objects...)
	src := &watcherSource{}
	cs.PrependWatchReactor("pods", src.react)
	m := NewManager(func(ctx context.Context, clusterID string) (kubernetes.Interface, error) {
		return cs, nil
	})
	m.retryDelay = 30 * time.Millisecond
	return m, src
}

func testPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func nextEvent(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func waitForWatchers(t *testing.T, src *watcherSource, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for src.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("watch attempts = %d, want %d", src.count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectBootstrapSeedsThenStreams(t *testing.T) {
	m, src := newTestManager(testPod("web-1"))

	c, err := m.Connect("kind-dev", KindPods)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	if ev := nextEvent(t, c); ev.Kind != Synced {
		t.Fatalf("first event = %s, want SYNCED", ev.Kind)
	}
	seed := nextEvent(t, c)
	if seed.Kind != Added || seed.Record.Name != "web-1" {
		t.Fatalf("seed event = %s %s, want ADDED web-1", seed.Kind, seed.Record.Name)
	}

	waitForWatchers(t, src, 1)
	src.latest().Modify(testPod("web-1"))
	if ev := nextEvent(t, c); ev.Kind != Modified {
		t.Errorf("stream event = %s, want MODIFIED", ev.Kind)
	}
}

func TestConnectIsIdempotentPerClusterAndKind(t *testing.T) {
	m, _ := newTestManager()

	a, err := m.Connect("kind-dev", KindPods)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer a.Disconnect()

	b, err := m.Connect("kind-dev", KindPods)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if a != b {
		t.Error("second Connect for the same (cluster, kind) opened a duplicate")
	}

	other, err := m.Connect("kind-dev", KindServices)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer other.Disconnect()
	if other == a {
		t.Error("different kind reused the pods connection")
	}
}

func TestUnexpectedClosureTriggersSingleDelayedReconnect(t *testing.T) {
	m, src := newTestManager(testPod("web-1"))

	c, err := m.Connect("kind-dev", KindPods)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	waitForWatchers(t, src, 1)
	// Drain the first bootstrap so the buffer cannot fill.
	nextEvent(t, c) // SYNCED
	nextEvent(t, c) // ADDED web-1

	firstEpoch := c.Epoch()
	src.latest().Stop() // server-side closure, not requested by the caller

	// Exactly one reconnect lands after the fixed delay; the retry
	// re-bootstraps, so a fresh SYNCED arrives with a newer epoch.
	waitForWatchers(t, src, 2)

	for {
		ev := nextEvent(t, c)
		if ev.Kind == Synced {
			if ev.Epoch <= firstEpoch {
				t.Errorf("reconnect epoch = %d, want > %d", ev.Epoch, firstEpoch)
			}
			break
		}
	}

	if got := src.count(); got != 2 {
		t.Errorf("watch attempts = %d, want exactly 2", got)
	}
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	m, src := newTestManager(testPod("web-1"))

	c, err := m.Connect("kind-dev", KindPods)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitForWatchers(t, src, 1)
	c.Disconnect()

	if got := c.State(); got != StateClosed {
		t.Errorf("State() = %s, want closed", got)
	}

	// A late server-side closure of the now-stale stream must not revive it.
	src.latest().Stop()
	time.Sleep(5 * m.retryDelay)
	if got := src.count(); got != 1 {
		t.Errorf("watch attempts = %d after Disconnect, want 1", got)
	}

	// The event channel drains and closes.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel never closed after Disconnect")
		}
	}
}

func TestConnectAfterDisconnectOpensFreshConnection(t *testing.T) {
	m, _ := newTestManager()

	a, _ := m.Connect("kind-dev", KindPods)
	a.Disconnect()

	b, err := m.Connect("kind-dev", KindPods)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer b.Disconnect()
	if a == b {
		t.Error("Connect returned the disconnected handle")
	}
}

func TestConnectRejectsBadInput(t *testing.T) {
	m, _ := newTestManager()
	if _, err := m.Connect("", KindPods); err == nil {
		t.Error("empty cluster id accepted")
	}
	if _, err := m.Connect("kind-dev", Kind("volumes")); err == nil {
		t.Error("unsupported kind accepted")
	}
}
