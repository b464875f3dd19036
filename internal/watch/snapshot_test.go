package watch

import (
	"reflect"
	"testing"
	"time"
)

func rec(ns, name, status string) Record {
	return Record{
		Kind:      KindPods,
		Namespace: ns,
		Name:      name,
		Status:    status,
		Created:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestApplyDeleteAbsentKeyIsNoOp(t *testing.T) {
	r := NewReconciler(nil)
	r.Apply(Event{Kind: Added, Record: rec("default", "web-1", "Running")})
	before := r.Records()

	changed, _ := r.Apply(Event{Kind: Deleted, Record: rec("default", "gone", "Running")})
	if changed {
		t.Fatal("deleting an absent key reported a mutation")
	}
	if !reflect.DeepEqual(before, r.Records()) {
		t.Errorf("snapshot changed: %v -> %v", before, r.Records())
	}
}

func TestApplyDuplicateAddedUpserts(t *testing.T) {
	r := NewReconciler(nil)
	r.Apply(Event{Kind: Added, Record: rec("default", "web-1", "Pending")})
	r.Apply(Event{Kind: Added, Record: rec("default", "web-1", "Running")})

	if got := r.Snapshot().Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	got, _ := r.Snapshot().Get("default/web-1")
	if got.Status != "Running" {
		t.Errorf("Status = %q, want Running (second ADDED wins)", got.Status)
	}
}

func TestApplyModifiedBeforeAdded(t *testing.T) {
	r := NewReconciler(nil)
	r.Apply(Event{Kind: Modified, Record: rec("default", "web-1", "Pending")})
	r.Apply(Event{Kind: Added, Record: rec("default", "web-1", "Running")})

	if got := r.Snapshot().Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	got, _ := r.Snapshot().Get("default/web-1")
	if got.Status != "Running" {
		t.Errorf("Status = %q, want Running (last write wins)", got.Status)
	}
}

func TestApplyNamespaceFilterExclusion(t *testing.T) {
	r := NewReconciler([]string{"ns-a"})
	changed, _ := r.Apply(Event{Kind: Added, Record: rec("ns-b", "web-1", "Running")})
	if changed {
		t.Error("event outside the allowlist mutated the snapshot")
	}
	if got := r.Snapshot().Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}

	changed, _ = r.Apply(Event{Kind: Added, Record: rec("ns-a", "web-1", "Running")})
	if !changed || r.Snapshot().Len() != 1 {
		t.Errorf("allowlisted event not applied: changed=%v len=%d", changed, r.Snapshot().Len())
	}
}

func TestApplyTerminatingOverridesStatus(t *testing.T) {
	r := NewReconciler(nil)
	terminating := rec("default", "web-1", "Running")
	terminating.Terminating = true
	r.Apply(Event{Kind: Modified, Record: terminating})

	got, _ := r.Snapshot().Get("default/web-1")
	if got.Status != "Terminating" {
		t.Errorf("Status = %q, want Terminating", got.Status)
	}
}

func TestApplyErrorLeavesSnapshotAlone(t *testing.T) {
	r := NewReconciler(nil)
	r.Apply(Event{Kind: Added, Record: rec("default", "web-1", "Running")})

	changed, notice := r.Apply(Event{Kind: Error, Message: "stream hiccup"})
	if changed {
		t.Error("ERROR event mutated the snapshot")
	}
	if notice != "stream hiccup" {
		t.Errorf("notice = %q, want the error message", notice)
	}
	if r.Snapshot().Len() != 1 {
		t.Errorf("Len() = %d, want 1 (stale data is kept)", r.Snapshot().Len())
	}
}

func TestApplySyncedRebuildsFromScratch(t *testing.T) {
	r := NewReconciler(nil)
	r.Apply(Event{Kind: Added, Record: rec("default", "stale-1", "Running")})
	r.Apply(Event{Kind: Added, Record: rec("default", "stale-2", "Running")})

	r.Apply(Event{Kind: Synced})
	if r.Snapshot().Len() != 0 {
		t.Fatalf("Len() = %d after SYNCED, want 0", r.Snapshot().Len())
	}

	r.Apply(Event{Kind: Added, Record: rec("default", "fresh-1", "Running")})
	if _, ok := r.Snapshot().Get("default/stale-1"); ok {
		t.Error("stale record survived the rebuild")
	}
	if _, ok := r.Snapshot().Get("default/fresh-1"); !ok {
		t.Error("fresh seed missing after rebuild")
	}
}

func TestSetNamespacesDropsInPlace(t *testing.T) {
	r := NewReconciler(nil)
	r.Apply(Event{Kind: Added, Record: rec("ns-a", "a-1", "Running")})
	r.Apply(Event{Kind: Added, Record: rec("ns-b", "b-1", "Running")})
	r.Apply(Event{Kind: Added, Record: rec("ns-a", "a-2", "Running")})

	if changed := r.SetNamespaces([]string{"ns-a"}); !changed {
		t.Fatal("narrowing the allowlist reported no change")
	}

	got := r.Records()
	if len(got) != 2 {
		t.Fatalf("Records() = %d entries, want 2", len(got))
	}
	for _, rec := range got {
		if rec.Namespace != "ns-a" {
			t.Errorf("record %s outside the allowlist survived", rec.Key())
		}
	}
	// Insertion order of the survivors is preserved.
	if got[0].Name != "a-1" || got[1].Name != "a-2" {
		t.Errorf("order = [%s %s], want [a-1 a-2]", got[0].Name, got[1].Name)
	}
}

func TestApplyPreservesInsertionOrder(t *testing.T) {
	r := NewReconciler(nil)
	names := []string{"c", "a", "b"}
	for _, n := range names {
		r.Apply(Event{Kind: Added, Record: rec("default", n, "Running")})
	}
	// A MODIFIED does not move the record.
	r.Apply(Event{Kind: Modified, Record: rec("default", "c", "Pending")})

	got := r.Records()
	for i, n := range names {
		if got[i].Name != n {
			t.Fatalf("Records()[%d] = %s, want %s", i, got[i].Name, n)
		}
	}
}
