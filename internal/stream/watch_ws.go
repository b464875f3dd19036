package stream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"kdash/internal/watch"
)

// WatchWS is the live-view endpoint. Each socket is one dashboard session:
// the browser sends control frames (cluster, kind, namespaces, query,
// sort) and receives derived view frames, connection state changes, and
// transient error notices.
type WatchWS struct {
	// Clients resolves a cluster ID to a clientset, typically backed by
	// the kubeconfig context manager.
	Clients watch.ClientFunc
}

// controlFrame is what the presentation layer sends back. Pointer fields
// distinguish "unchanged" from "set to empty".
type controlFrame struct {
	Cluster    string      `json:"cluster,omitempty"`
	Kind       string      `json:"kind,omitempty"`
	Namespaces *[]string   `json:"namespaces,omitempty"`
	Query      *string     `json:"query,omitempty"`
	Sort       *watch.Sort `json:"sort,omitempty"`
}

type viewFrame struct {
	Type  string         `json:"type"`
	Items []watch.Record `json:"items"`
}

type stateFrame struct {
	Type    string      `json:"type"`
	State   watch.State `json:"state"`
	Cluster string      `json:"cluster"`
	Kind    watch.Kind  `json:"kind"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (h *WatchWS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	mgr := watch.NewManager(h.Clients)
	defer mgr.DisconnectAll()

	// keepalive ping
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(2*time.Second))
			}
		}
	}()

	controls := make(chan controlFrame)
	go func() {
		defer close(controls)
		for {
			var ctl controlFrame
			if err := conn.ReadJSON(&ctl); err != nil {
				return
			}
			select {
			case controls <- ctl:
			case <-ctx.Done():
				return
			}
		}
	}()

	session := &watchSession{ws: conn, mgr: mgr}
	session.run(ctx, controls)
}

// watchSession owns a snapshot and is its only writer: every Apply runs
// on the run goroutine, mirroring the original single-threaded model.
type watchSession struct {
	ws  *websocket.Conn
	mgr *watch.Manager

	conn *watch.Conn
	rec  *watch.Reconciler

	namespaces []string
	query      string
	sort       watch.Sort

	lastState watch.State
}

func (s *watchSession) run(ctx context.Context, controls <-chan controlFrame) {
	stateTicker := time.NewTicker(time.Second)
	defer stateTicker.Stop()

	for {
		var events <-chan watch.Event
		if s.conn != nil {
			events = s.conn.Events()
		}

		select {
		case <-ctx.Done():
			return

		case ctl, ok := <-controls:
			if !ok {
				return
			}
			s.handleControl(ctl)

		case ev, ok := <-events:
			if !ok {
				// Channel closes only after a deliberate disconnect.
				s.conn = nil
				continue
			}
			// Correlation check: events minted by a stream attachment
			// that has since been replaced must not touch the snapshot.
			if ev.Epoch != s.conn.Epoch() {
				continue
			}
			changed, notice := s.rec.Apply(ev)
			if notice != "" {
				s.send(errorFrame{Type: "error", Message: notice})
			}
			if changed {
				s.pushView()
			}

		case <-stateTicker.C:
			s.pushStateIfChanged()
		}
	}
}

func (s *watchSession) handleControl(ctl controlFrame) {
	if ctl.Namespaces != nil {
		s.namespaces = *ctl.Namespaces
	}
	if ctl.Query != nil {
		s.query = *ctl.Query
	}
	if ctl.Sort != nil {
		s.sort = *ctl.Sort
	}

	if ctl.Cluster != "" || ctl.Kind != "" {
		if err := s.switchTarget(ctl.Cluster, ctl.Kind); err != nil {
			s.send(errorFrame{Type: "error", Message: err.Error()})
			return
		}
	}

	if s.rec == nil {
		return
	}
	if ctl.Namespaces != nil {
		s.rec.SetNamespaces(s.namespaces)
	}
	s.pushView()
	s.pushStateIfChanged()
}

// switchTarget re-points the session at a (cluster, kind) pair. The old
// connection is disconnected first so its reconnect path is suppressed
// and two live handles can never feed one snapshot; the snapshot itself
// is rebuilt from scratch, never migrated across contexts.
func (s *watchSession) switchTarget(clusterID string, kindStr string) error {
	if clusterID == "" && s.conn != nil {
		clusterID = s.conn.ClusterID()
	}
	kind := watch.Kind(kindStr)
	if kindStr == "" && s.conn != nil {
		kind = s.conn.Kind()
	}

	if s.conn != nil && s.conn.ClusterID() == clusterID && s.conn.Kind() == kind {
		return nil
	}

	if s.conn != nil {
		s.conn.Disconnect()
		s.conn = nil
	}

	conn, err := s.mgr.Connect(clusterID, kind)
	if err != nil {
		return err
	}
	s.conn = conn
	s.rec = watch.NewReconciler(s.namespaces)
	s.lastState = ""
	return nil
}

func (s *watchSession) pushView() {
	items := watch.Derive(s.rec.Records(), s.query, s.sort)
	s.send(viewFrame{Type: "view", Items: items})
}

func (s *watchSession) pushStateIfChanged() {
	if s.conn == nil {
		return
	}
	state := s.conn.State()
	if state == s.lastState {
		return
	}
	s.lastState = state
	s.send(stateFrame{Type: "state", State: state, Cluster: s.conn.ClusterID(), Kind: s.conn.Kind()})
}

func (s *watchSession) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("watch ws: marshal frame: %v", err)
		return
	}
	_ = s.ws.WriteMessage(websocket.TextMessage, b)
}
