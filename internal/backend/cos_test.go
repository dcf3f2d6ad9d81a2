package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloudsave/internal/cloudsave"
	"cloudsave/internal/testutil"
)

// testCOSBackend returns a backend pointed at a local test server with
// a deterministic clock and id generator.
func testCOSBackend(t *testing.T, handler http.Handler) *COSBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b := NewCOSBackend("AKIDtest", "secrettest", "bucket-1250000000", "ap-guangzhou",
		cloudsave.NopLogger{}, testutil.FixedClock(), testutil.NewStubIDGenerator())
	b.endpoint = srv.URL
	return b
}

func writeSaveFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "slot1.dat")
	if err := os.WriteFile(path, []byte("save data"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCOSBackend_Upload(t *testing.T) {
	var gotPath, gotAuth, gotChecksum string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotChecksum = r.Header.Get("x-cos-meta-sha256")
		w.WriteHeader(http.StatusOK)
	})
	b := testCOSBackend(t, handler)

	save := &cloudsave.GameSave{AppID: 105600, Name: "Terraria", SavePath: writeSaveFile(t)}
	meta, err := b.Upload(context.Background(), save, "player1")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	wantPath := "/saves/player1/105600_20240115_103000_id-1.zip"
	if gotPath != wantPath {
		t.Errorf("request path = %q, want %q", gotPath, wantPath)
	}
	if !strings.Contains(gotAuth, "q-ak=AKIDtest") {
		t.Errorf("authorization missing access key: %q", gotAuth)
	}
	if gotChecksum != meta.Checksum {
		t.Errorf("x-cos-meta-sha256 = %q, metadata checksum = %q", gotChecksum, meta.Checksum)
	}

	if meta.GameID != "105600" {
		t.Errorf("GameID = %q, want %q", meta.GameID, "105600")
	}
	if meta.ObjectKey != strings.TrimPrefix(wantPath, "/") {
		t.Errorf("ObjectKey = %q", meta.ObjectKey)
	}
	if !meta.Compressed {
		t.Error("Compressed = false, want true")
	}
}

func TestCOSBackend_Upload_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "access denied", http.StatusForbidden)
	})
	b := testCOSBackend(t, handler)

	save := &cloudsave.GameSave{AppID: 105600, Name: "Terraria", SavePath: writeSaveFile(t)}
	_, err := b.Upload(context.Background(), save, "player1")
	if err == nil {
		t.Fatal("Upload() succeeded against a 403 response")
	}
	if !strings.Contains(err.Error(), "HTTP 403") {
		t.Errorf("error = %v, want HTTP 403 mention", err)
	}
}

func TestCOSBackend_List(t *testing.T) {
	var gotQuery string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`<ListBucketResult>
<Contents>
  <Key>saves/player1/105600_20240110_090000_a.zip</Key>
  <LastModified>2024-01-10T09:00:00Z</LastModified>
  <Size>100</Size>
</Contents>
<Contents>
  <Key>saves/player1/105600_20240112_090000_b.zip</Key>
  <LastModified>2024-01-12T09:00:00Z</LastModified>
  <Size>200</Size>
</Contents>
<Contents>
  <Key>saves/player1/292030_20240111_090000_c.zip</Key>
  <LastModified>2024-01-11T09:00:00Z</LastModified>
  <Size>300</Size>
</Contents>
</ListBucketResult>`))
	})
	b := testCOSBackend(t, handler)

	t.Run("filters by game and sorts newest first", func(t *testing.T) {
		saves, err := b.List(context.Background(), "player1", "105600")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(saves) != 2 {
			t.Fatalf("List() returned %d saves, want 2", len(saves))
		}
		if saves[0].ObjectKey != "saves/player1/105600_20240112_090000_b.zip" {
			t.Errorf("first ObjectKey = %q, want the newer snapshot", saves[0].ObjectKey)
		}
		if saves[0].GameID != "105600" {
			t.Errorf("GameID = %q, want %q", saves[0].GameID, "105600")
		}
		if gotQuery != "prefix=saves%2Fplayer1%2F" {
			t.Errorf("query = %q", gotQuery)
		}
	})

	t.Run("empty game id returns everything", func(t *testing.T) {
		saves, err := b.List(context.Background(), "player1", "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(saves) != 3 {
			t.Errorf("List() returned %d saves, want 3", len(saves))
		}
	})
}

func TestCOSBackend_Download(t *testing.T) {
	payload := []byte("archive bytes")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/saves/player1/105600_a.zip" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write(payload)
	})
	b := testCOSBackend(t, handler)

	target := filepath.Join(t.TempDir(), "restored.zip")
	meta := &cloudsave.SaveMetadata{ObjectKey: "saves/player1/105600_a.zip"}
	if err := b.Download(context.Background(), meta, target); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("downloaded %q, want %q", got, payload)
	}
}

func TestCOSBackend_TestConnection(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
		wantMsg string
	}{
		{"ok", http.StatusOK, false, ""},
		{"not found still reachable", http.StatusNotFound, false, ""},
		{"forbidden", http.StatusForbidden, true, "access denied"},
		{"server error", http.StatusInternalServerError, true, "HTTP 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			b := testCOSBackend(t, handler)

			err := b.TestConnection(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("TestConnection() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestCOSBackend_GetStorageInfo(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<Contents><Key>saves/player1/a.zip</Key><Size>100</Size></Contents>
<Contents><Key>saves/player1/b.zip</Key><Size>400</Size></Contents>`))
	})
	b := testCOSBackend(t, handler)

	info, err := b.GetStorageInfo(context.Background(), "player1")
	if err != nil {
		t.Fatalf("GetStorageInfo() error = %v", err)
	}
	if info.UsedBytes != 500 {
		t.Errorf("UsedBytes = %d, want 500", info.UsedBytes)
	}
	if info.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", info.FileCount)
	}
}
