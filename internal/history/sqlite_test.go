package history_test

import (
	"strings"
	"testing"
	"time"

	"cloudsave/internal/cloudsave"
	"cloudsave/internal/history"
)

func newStore(t *testing.T) *history.SQLiteStore {
	t.Helper()
	store, err := history.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func record(id, gameID string, startedAt time.Time) *cloudsave.OperationRecord {
	return &cloudsave.OperationRecord{
		ID:        id,
		GameID:    gameID,
		Kind:      cloudsave.OpUpload,
		Status:    cloudsave.StatusStarting,
		ObjectKey: "saves/player1/" + gameID + "_" + id + ".zip",
		SizeBytes: 1024,
		Checksum:  "abc123",
		StartedAt: startedAt,
	}
}

func TestSQLiteStore_StartAndFinish(t *testing.T) {
	store := newStore(t)
	started := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	if err := store.RecordStart(record("op-1", "105600", started)); err != nil {
		t.Fatalf("RecordStart() error = %v", err)
	}

	completed := started.Add(3 * time.Second)
	if err := store.RecordFinish("op-1", cloudsave.StatusCompleted, "", completed); err != nil {
		t.Fatalf("RecordFinish() error = %v", err)
	}

	records, err := store.ListOperations("", 0)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListOperations() returned %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.ID != "op-1" {
		t.Errorf("ID = %q", rec.ID)
	}
	if rec.Status != cloudsave.StatusCompleted {
		t.Errorf("Status = %q, want %q", rec.Status, cloudsave.StatusCompleted)
	}
	if rec.Kind != cloudsave.OpUpload {
		t.Errorf("Kind = %q, want %q", rec.Kind, cloudsave.OpUpload)
	}
	if !rec.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", rec.CompletedAt, completed)
	}
	if rec.SizeBytes != 1024 || rec.Checksum != "abc123" {
		t.Errorf("record fields = %+v", rec)
	}
}

func TestSQLiteStore_RecordsFailure(t *testing.T) {
	store := newStore(t)
	started := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	if err := store.RecordStart(record("op-1", "105600", started)); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordFinish("op-1", cloudsave.StatusFailed, "network unreachable", started.Add(time.Second)); err != nil {
		t.Fatalf("RecordFinish() error = %v", err)
	}

	records, err := store.ListOperations("105600", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Status != cloudsave.StatusFailed || records[0].Error != "network unreachable" {
		t.Errorf("record = %+v", records[0])
	}
}

func TestSQLiteStore_FinishUnknownID(t *testing.T) {
	store := newStore(t)

	err := store.RecordFinish("never-started", cloudsave.StatusCompleted, "", time.Now())
	if err == nil {
		t.Fatal("RecordFinish() succeeded for an unknown id")
	}
	if !strings.Contains(err.Error(), "never-started") {
		t.Errorf("error = %v, want the unknown id named", err)
	}
}

func TestSQLiteStore_ListOperations(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	for i, spec := range []struct {
		id     string
		gameID string
	}{
		{"op-1", "105600"},
		{"op-2", "292030"},
		{"op-3", "105600"},
	} {
		if err := store.RecordStart(record(spec.id, spec.gameID, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("newest first", func(t *testing.T) {
		records, err := store.ListOperations("", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d records, want 3", len(records))
		}
		if records[0].ID != "op-3" || records[2].ID != "op-1" {
			t.Errorf("order = [%s %s %s], want newest first", records[0].ID, records[1].ID, records[2].ID)
		}
	})

	t.Run("filtered by game", func(t *testing.T) {
		records, err := store.ListOperations("292030", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 || records[0].ID != "op-2" {
			t.Errorf("records = %+v, want only op-2", records)
		}
	})

	t.Run("limit applies", func(t *testing.T) {
		records, err := store.ListOperations("", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 2 {
			t.Errorf("got %d records, want 2", len(records))
		}
	})

	t.Run("empty store", func(t *testing.T) {
		fresh := newStore(t)
		records, err := fresh.ListOperations("", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 0 {
			t.Errorf("got %d records, want 0", len(records))
		}
	})
}
