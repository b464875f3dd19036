package watch

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Field names a sortable column of the rendered table.
type Field string

const (
	FieldName      Field = "name"
	FieldNamespace Field = "namespace"
	FieldStatus    Field = "status"
	FieldReady     Field = "ready"
	FieldRestarts  Field = "restarts"
	FieldAge       Field = "age"
	FieldOwner     Field = "owner"
)

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Sort is the active sort instruction. The zero value means "insertion
// order, no active sort" — the third state of the tri-state column cycle.
type Sort struct {
	Field     Field     `json:"field,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

func (s Sort) active() bool {
	return s.Field != "" && (s.Direction == Ascending || s.Direction == Descending)
}

// NextSort advances the tri-state cycle for a column click:
// asc → desc → none → asc. Clicking a different column starts at asc.
func NextSort(cur Sort, field Field) Sort {
	if cur.Field != field {
		return Sort{Field: field, Direction: Ascending}
	}
	switch cur.Direction {
	case Ascending:
		return Sort{Field: field, Direction: Descending}
	case Descending:
		return Sort{}
	default:
		return Sort{Field: field, Direction: Ascending}
	}
}

// Derive is the pure view pipeline: filter by the free-text query, then
// sort. Inputs are never mutated; with no active sort the filtered records
// keep their snapshot order.
func Derive(records []Record, query string, s Sort) []Record {
	out := make([]Record, 0, len(records))
	q := strings.ToLower(strings.TrimSpace(query))
	for _, rec := range records {
		if q == "" || matchesQuery(rec, q) {
			out = append(out, rec)
		}
	}

	if !s.active() {
		return out
	}

	dir := 1
	if s.Direction == Descending {
		dir = -1
	}
	cmp := comparator(s.Field)
	sort.SliceStable(out, func(i, j int) bool {
		return cmp(out[i], out[j])*dir < 0
	})
	return out
}

// matchesQuery retains a record when the lowercased query is a substring
// of its name, namespace, owner-reference name, or any label key/value.
func matchesQuery(rec Record, q string) bool {
	if strings.Contains(strings.ToLower(rec.Name), q) ||
		strings.Contains(strings.ToLower(rec.Namespace), q) ||
		strings.Contains(strings.ToLower(rec.Owner), q) {
		return true
	}
	for k, v := range rec.Labels {
		if strings.Contains(strings.ToLower(k), q) || strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func comparator(field Field) func(a, b Record) int {
	col := collate.New(language.Und)
	switch field {
	case FieldNamespace:
		return func(a, b Record) int { return col.CompareString(a.Namespace, b.Namespace) }
	case FieldStatus:
		return func(a, b Record) int { return col.CompareString(a.Status, b.Status) }
	case FieldOwner:
		return func(a, b Record) int { return col.CompareString(a.Owner, b.Owner) }
	case FieldReady:
		// Completion fraction, not raw counts: 2/10 sorts below 1/1.
		return func(a, b Record) int { return cmpFloat(a.ReadyRatio(), b.ReadyRatio()) }
	case FieldRestarts:
		return func(a, b Record) int { return int(a.Restarts - b.Restarts) }
	case FieldAge:
		// Ascending age = youngest first, so compare creation millis reversed.
		return func(a, b Record) int { return cmpInt64(b.Created.UnixMilli(), a.Created.UnixMilli()) }
	default:
		return func(a, b Record) int { return col.CompareString(a.Name, b.Name) }
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
