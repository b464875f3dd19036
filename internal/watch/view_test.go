package watch

import (
	"testing"
	"time"
)

func TestNextSortTriStateCycle(t *testing.T) {
	s := Sort{}
	s = NextSort(s, FieldName)
	if s != (Sort{Field: FieldName, Direction: Ascending}) {
		t.Fatalf("first click = %+v, want name/asc", s)
	}
	s = NextSort(s, FieldName)
	if s != (Sort{Field: FieldName, Direction: Descending}) {
		t.Fatalf("second click = %+v, want name/desc", s)
	}
	s = NextSort(s, FieldName)
	if s != (Sort{}) {
		t.Fatalf("third click = %+v, want none", s)
	}
	s = NextSort(s, FieldName)
	if s != (Sort{Field: FieldName, Direction: Ascending}) {
		t.Fatalf("fourth click = %+v, want name/asc again", s)
	}
}

func TestNextSortFieldSwitchStartsAscending(t *testing.T) {
	s := Sort{Field: FieldName, Direction: Descending}
	s = NextSort(s, FieldAge)
	if s != (Sort{Field: FieldAge, Direction: Ascending}) {
		t.Fatalf("switching column = %+v, want age/asc", s)
	}
}

func TestDeriveQueryWithSort(t *testing.T) {
	records := []Record{
		rec("default", "web-1", "Running"),
		rec("default", "web-2", "Running"),
		rec("default", "db-1", "Running"),
	}

	got := Derive(records, "web", Sort{Field: FieldName, Direction: Descending})
	if len(got) != 2 {
		t.Fatalf("derived %d records, want 2", len(got))
	}
	if got[0].Name != "web-2" || got[1].Name != "web-1" {
		t.Errorf("order = [%s %s], want [web-2 web-1]", got[0].Name, got[1].Name)
	}
}

func TestDeriveQueryMatchesOwnerAndLabels(t *testing.T) {
	byOwner := rec("default", "api-7d9f", "Running")
	byOwner.Owner = "checkout"
	byLabel := rec("default", "worker-1", "Running")
	byLabel.Labels = map[string]string{"team": "Payments"}
	miss := rec("default", "other", "Running")

	records := []Record{byOwner, byLabel, miss}

	if got := Derive(records, "CHECKOUT", Sort{}); len(got) != 1 || got[0].Name != "api-7d9f" {
		t.Errorf("owner match = %v, want [api-7d9f]", names(got))
	}
	if got := Derive(records, "payments", Sort{}); len(got) != 1 || got[0].Name != "worker-1" {
		t.Errorf("label value match = %v, want [worker-1]", names(got))
	}
	if got := Derive(records, "team", Sort{}); len(got) != 1 || got[0].Name != "worker-1" {
		t.Errorf("label key match = %v, want [worker-1]", names(got))
	}
}

func TestDeriveEmptyQueryNoSortKeepsOrder(t *testing.T) {
	records := []Record{
		rec("default", "c", "Running"),
		rec("default", "a", "Running"),
		rec("default", "b", "Running"),
	}
	got := Derive(records, "", Sort{})
	want := []string{"c", "a", "b"}
	for i, n := range want {
		if got[i].Name != n {
			t.Fatalf("order = %v, want %v", names(got), want)
		}
	}
}

func TestDeriveReadyRatioOrdering(t *testing.T) {
	quarter := rec("default", "quarter", "Running")
	quarter.Ready, quarter.Desired = 1, 4
	full := rec("default", "full", "Running")
	full.Ready, full.Desired = 3, 3

	got := Derive([]Record{full, quarter}, "", Sort{Field: FieldReady, Direction: Ascending})
	if got[0].Name != "quarter" || got[1].Name != "full" {
		t.Errorf("order = %v, want [quarter full]", names(got))
	}

	// Counter-example: the larger raw ready count has the smaller ratio.
	fifth := rec("default", "fifth", "Running")
	fifth.Ready, fifth.Desired = 2, 10
	whole := rec("default", "whole", "Running")
	whole.Ready, whole.Desired = 1, 1

	got = Derive([]Record{whole, fifth}, "", Sort{Field: FieldReady, Direction: Ascending})
	if got[0].Name != "fifth" || got[1].Name != "whole" {
		t.Errorf("order = %v, want [fifth whole] (ratio beats raw count)", names(got))
	}
}

func TestDeriveAgeSort(t *testing.T) {
	old := rec("default", "old", "Running")
	old.Created = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	young := rec("default", "young", "Running")
	young.Created = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	got := Derive([]Record{old, young}, "", Sort{Field: FieldAge, Direction: Ascending})
	if got[0].Name != "young" {
		t.Errorf("ascending age should put the youngest first, got %v", names(got))
	}
}

func TestDeriveDoesNotMutateInput(t *testing.T) {
	records := []Record{
		rec("default", "b", "Running"),
		rec("default", "a", "Running"),
	}
	_ = Derive(records, "", Sort{Field: FieldName, Direction: Ascending})
	if records[0].Name != "b" || records[1].Name != "a" {
		t.Errorf("input slice reordered: %v", names(records))
	}
}

func names(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}
