package watch

// EventKind tags a stream event. The first four mirror the upstream watch
// protocol; Synced is emitted by the connection manager at the start of
// every bootstrap list so consumers can rebuild their snapshot instead of
// layering a fresh list on top of stale state.
type EventKind string

const (
	Added    EventKind = "ADDED"
	Modified EventKind = "MODIFIED"
	Deleted  EventKind = "DELETED"
	Error    EventKind = "ERROR"
	Synced   EventKind = "SYNCED"
)

// Event is one notification from a connection. Record is zero for ERROR
// and SYNCED events; Message carries human-readable detail for ERROR.
//
// Epoch is the correlation token: it identifies the stream attachment the
// event came from, so a consumer can drop events left over from a stream
// that has since been replaced.
type Event struct {
	Kind    EventKind `json:"kind"`
	Record  Record    `json:"record,omitempty"`
	Message string    `json:"message,omitempty"`
	Epoch   uint64    `json:"-"`
}
