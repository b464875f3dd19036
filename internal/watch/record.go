package watch

import "time"

// Kind identifies a watched resource kind. Values double as URL path
// segments and watch endpoint identifiers.
type Kind string

const (
	KindPods        Kind = "pods"
	KindJobs        Kind = "jobs"
	KindReplicaSets Kind = "replicasets"
	KindServices    Kind = "services"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindPods, KindJobs, KindReplicaSets, KindServices:
		return Kind(s), true
	default:
		return "", false
	}
}

// Record is the flattened, render-ready shape of one cluster object.
// (Namespace, Name) is the identity key; everything else may change
// between events for the same key.
type Record struct {
	Kind      Kind              `json:"kind"`
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	Ready     int32             `json:"ready"`
	Desired   int32             `json:"desired"`
	Restarts  int32             `json:"restarts,omitempty"`
	Node      string            `json:"node,omitempty"`
	Owner     string            `json:"owner,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Created   time.Time         `json:"created"`

	// Terminating is set when the object carries a deletionTimestamp.
	// The reconciler turns it into a synthetic "Terminating" status.
	Terminating bool `json:"terminating,omitempty"`
}

func (r Record) Key() string {
	return r.Namespace + "/" + r.Name
}

// ReadyRatio is the completion fraction used by the "ready" sort column,
// so ordering follows fraction complete rather than absolute counts.
func (r Record) ReadyRatio() float64 {
	if r.Desired == 0 {
		return 0
	}
	return float64(r.Ready) / float64(r.Desired)
}
