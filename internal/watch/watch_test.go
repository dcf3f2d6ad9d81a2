package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloudsave/internal/cloudsave"
	"cloudsave/internal/watch"
)

// stubSyncer records sync requests and signals each one on a channel.
type stubSyncer struct {
	mu    sync.Mutex
	calls []string
	done  chan string
}

func newStubSyncer() *stubSyncer {
	return &stubSyncer{done: make(chan string, 16)}
}

func (s *stubSyncer) SyncGame(_ context.Context, gameID string, _ string) (*cloudsave.SyncOutcome, error) {
	s.mu.Lock()
	s.calls = append(s.calls, gameID)
	s.mu.Unlock()
	s.done <- gameID
	return &cloudsave.SyncOutcome{Action: cloudsave.ActionNone}, nil
}

func (s *stubSyncer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	d := watch.NewDebouncer(50 * time.Millisecond)

	var mu sync.Mutex
	fired := 0
	for i := 0; i < 5; i++ {
		d.Do(func() {
			mu.Lock()
			fired++
			mu.Unlock()
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("burst fired %d times, want 1", fired)
	}
}

func TestDebouncer_FiresPerQuietPeriod(t *testing.T) {
	d := watch.NewDebouncer(20 * time.Millisecond)

	ch := make(chan struct{}, 2)
	d.Do(func() { ch <- struct{}{} })
	<-ch
	d.Do(func() { ch <- struct{}{} })
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("second invocation never fired")
	}
}

func TestWatcher_RunRequiresTargets(t *testing.T) {
	w := watch.NewWatcher(newStubSyncer(), nil, time.Millisecond)
	if err := w.Run(context.Background(), nil); err == nil {
		t.Error("Run() accepted an empty target list")
	}
}

func TestWatcher_SyncsAfterWrite(t *testing.T) {
	saveDir := t.TempDir()
	syncer := newStubSyncer()
	w := watch.NewWatcher(syncer, nil, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- w.Run(ctx, []watch.Target{{GameID: "105600", SavePath: saveDir}})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(saveDir, "slot1.dat"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case gameID := <-syncer.done:
		if gameID != "105600" {
			t.Errorf("synced game %q, want 105600", gameID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no sync triggered after a write")
	}

	cancel()
	if err := <-errc; err != context.Canceled {
		t.Errorf("Run() returned %v, want context.Canceled", err)
	}
}

func TestWatcher_CoalescesWriteBursts(t *testing.T) {
	saveDir := t.TempDir()
	syncer := newStubSyncer()
	w := watch.NewWatcher(syncer, nil, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, []watch.Target{{GameID: "105600", SavePath: saveDir}})

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		name := filepath.Join(saveDir, "slot1.dat")
		if err := os.WriteFile(name, []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-syncer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("no sync triggered after a write burst")
	}

	// The quiet period collapses the burst into a single sync.
	time.Sleep(200 * time.Millisecond)
	if got := syncer.callCount(); got != 1 {
		t.Errorf("burst triggered %d syncs, want 1", got)
	}
}
