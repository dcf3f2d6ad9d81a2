package cloudsave

import "time"

// OperationRecord is the persisted audit trail of one cloud operation.
type OperationRecord struct {
	ID          string
	GameID      string
	Kind        OperationKind
	Status      OperationStatus
	ObjectKey   string
	SizeBytes   int64
	Checksum    string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// OperationRecorder records cloud operations for history and audit.
// It is a capability the sync service depends on abstractly: when no
// persistent store is available the service is wired with NopRecorder
// instead of a nil handle, so recording failures can never take the
// sync path down with them.
type OperationRecorder interface {
	// RecordStart persists a new record in its starting state.
	RecordStart(rec *OperationRecord) error

	// RecordFinish marks a record terminal with the given status and,
	// on failure, the error message.
	RecordFinish(id string, status OperationStatus, errMsg string, completedAt time.Time) error
}

// NopRecorder discards all records. Used when history persistence is
// disabled or unavailable.
type NopRecorder struct{}

func NewNopRecorder() *NopRecorder { return &NopRecorder{} }

func (*NopRecorder) RecordStart(*OperationRecord) error { return nil }
func (*NopRecorder) RecordFinish(string, OperationStatus, string, time.Time) error {
	return nil
}
