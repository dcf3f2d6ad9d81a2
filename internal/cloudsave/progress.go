package cloudsave

// OperationKind identifies what a cloud operation does.
type OperationKind string

const (
	OpUpload   OperationKind = "upload"
	OpDownload OperationKind = "download"
	OpDelete   OperationKind = "delete"
	OpList     OperationKind = "list"
	OpRestore  OperationKind = "restore"
)

// OperationStatus is the lifecycle state of a cloud operation.
type OperationStatus string

const (
	StatusStarting   OperationStatus = "starting"
	StatusInProgress OperationStatus = "in_progress"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// ProgressEvent reports the state of one operation. Every operation
// emits one Starting event, zero or more InProgress events, and exactly
// one terminal event (Completed or Failed). Error is a human-readable
// message set only on failure; callers needing structured errors must
// catch them at the call site, not through the progress channel.
type ProgressEvent struct {
	OperationID    string
	GameID         string
	Kind           OperationKind
	BytesProcessed int64
	TotalBytes     int64
	Status         OperationStatus
	Error          string
}

// Notifier delivers progress events to at most one consumer over a
// buffered channel. Delivery is best effort: if nobody is draining the
// channel, events are dropped rather than buffered without bound or
// blocking the operation.
type Notifier struct {
	ch chan ProgressEvent
}

// NewNotifier creates a Notifier with the given channel buffer size.
func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &Notifier{ch: make(chan ProgressEvent, buffer)}
}

// Events returns the receive side of the progress channel.
func (n *Notifier) Events() <-chan ProgressEvent { return n.ch }

// Publish sends an event without blocking. A nil Notifier is valid and
// drops everything.
func (n *Notifier) Publish(ev ProgressEvent) {
	if n == nil {
		return
	}
	select {
	case n.ch <- ev:
	default:
	}
}
