package watch

// Snapshot is the reconciler's in-memory collection: at most one record
// per namespace/name key, held in insertion order. Insertion order is the
// "no active sort" view order, nothing more.
type Snapshot struct {
	order   []string
	records map[string]Record
}

func NewSnapshot() *Snapshot {
	return &Snapshot{records: make(map[string]Record)}
}

func (s *Snapshot) Len() int { return len(s.order) }

func (s *Snapshot) Get(key string) (Record, bool) {
	r, ok := s.records[key]
	return r, ok
}

// Records returns the snapshot contents in insertion order. The slice is
// fresh on every call; callers can hand it to Derive without copying.
func (s *Snapshot) Records() []Record {
	out := make([]Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.records[key])
	}
	return out
}

func (s *Snapshot) upsert(rec Record) {
	key := rec.Key()
	if _, ok := s.records[key]; !ok {
		s.order = append(s.order, key)
	}
	s.records[key] = rec
}

func (s *Snapshot) delete(key string) bool {
	if _, ok := s.records[key]; !ok {
		return false
	}
	delete(s.records, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Snapshot) reset() {
	s.order = s.order[:0]
	for k := range s.records {
		delete(s.records, k)
	}
}

// Reconciler folds stream events into a Snapshot while enforcing the
// namespace allowlist. It is not safe for concurrent use; the session
// goroutine that owns it is the only writer.
type Reconciler struct {
	snap    *Snapshot
	allowed []string
}

func NewReconciler(allowed []string) *Reconciler {
	return &Reconciler{snap: NewSnapshot(), allowed: allowed}
}

func (r *Reconciler) Snapshot() *Snapshot { return r.snap }

func (r *Reconciler) Records() []Record { return r.snap.Records() }

// Apply folds one event. changed reports whether the snapshot mutated;
// notice carries a user-facing message for ERROR events (the snapshot is
// deliberately left alone for those — stale data beats no data).
//
// The event union is inherently racy: the stream does not guarantee
// ADDED-first, so ADDED and MODIFIED are both idempotent upserts, and
// DELETED of an absent key is a no-op.
func (r *Reconciler) Apply(ev Event) (changed bool, notice string) {
	switch ev.Kind {
	case Error:
		return false, ev.Message
	case Synced:
		// Fresh bootstrap: rebuild from scratch, the seed follows.
		if r.snap.Len() == 0 {
			return false, ""
		}
		r.snap.reset()
		return true, ""
	case Added, Modified:
		if !r.namespaceAllowed(ev.Record.Namespace) {
			return false, ""
		}
		rec := ev.Record
		if rec.Terminating {
			rec.Status = "Terminating"
		}
		r.snap.upsert(rec)
		return true, ""
	case Deleted:
		if !r.namespaceAllowed(ev.Record.Namespace) {
			return false, ""
		}
		return r.snap.delete(ev.Record.Key()), ""
	default:
		return false, ""
	}
}

// SetNamespaces swaps the allowlist and drops records that fell out of it.
// No refetch: the connection is cluster-wide, narrowing is purely local.
func (r *Reconciler) SetNamespaces(allowed []string) (changed bool) {
	r.allowed = allowed
	if len(allowed) == 0 {
		return false
	}
	for _, key := range append([]string(nil), r.snap.order...) {
		rec := r.snap.records[key]
		if !r.namespaceAllowed(rec.Namespace) {
			r.snap.delete(key)
			changed = true
		}
	}
	return changed
}

func (r *Reconciler) namespaceAllowed(ns string) bool {
	if len(r.allowed) == 0 {
		return true
	}
	for _, a := range r.allowed {
		if a == ns {
			return true
		}
	}
	return false
}
