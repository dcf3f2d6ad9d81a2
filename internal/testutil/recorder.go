package testutil

import (
	"fmt"
	"sync"
	"time"

	"cloudsave/internal/cloudsave"
)

// MemoryRecorder keeps operation records in memory for assertions.
type MemoryRecorder struct {
	mu      sync.Mutex
	Records []*cloudsave.OperationRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) RecordStart(rec *cloudsave.OperationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *rec
	r.Records = append(r.Records, &copied)
	return nil
}

func (r *MemoryRecorder) RecordFinish(id string, status cloudsave.OperationStatus, errMsg string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.Records {
		if rec.ID == id {
			rec.Status = status
			rec.Error = errMsg
			rec.CompletedAt = completedAt
			return nil
		}
	}
	return fmt.Errorf("no record with id %s", id)
}

// Find returns the record with the given ID, or nil.
func (r *MemoryRecorder) Find(id string) *cloudsave.OperationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.Records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

var _ cloudsave.OperationRecorder = (*MemoryRecorder)(nil)
