package locator

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cloudsave/internal/cloudsave"
	"cloudsave/internal/testutil"
)

// populateSaveDir fills dir with enough fresh files to pass the
// validity check.
func populateSaveDir(t *testing.T, dir string, files int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < files; i++ {
		name := filepath.Join(dir, "slot"+string(rune('1'+i))+".dat")
		if err := os.WriteFile(name, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// freshClock returns a clock just ahead of the directory mtimes the
// test creates, keeping every candidate within the staleness bound.
func freshClock() *testutil.StubClock {
	return testutil.NewStubClock(time.Now().Add(time.Minute))
}

func TestResolver_Locate_ManualMapping(t *testing.T) {
	dir := t.TempDir()
	savePath := filepath.Join(dir, "mapped-saves")
	populateSaveDir(t, savePath, 1)

	store := NewMappingStore(filepath.Join(dir, "mappings.toml"))
	if err := store.Register(105600, savePath); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(store, "", "", nil, freshClock())
	save, err := r.Locate(&cloudsave.Game{ID: "105600", Name: "Terraria"})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if save == nil || save.SavePath != savePath {
		t.Fatalf("Locate() = %+v, want mapped path %q", save, savePath)
	}
	if save.AppID != 105600 {
		t.Errorf("AppID = %d, want 105600", save.AppID)
	}
}

func TestResolver_Locate_MappingToMissingPathFallsThrough(t *testing.T) {
	dir := t.TempDir()
	store := NewMappingStore(filepath.Join(dir, "mappings.toml"))
	if err := store.Register(105600, filepath.Join(dir, "gone")); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(store, "", "", nil, freshClock())
	r.knownFolderOverride = []string{}
	save, err := r.Locate(&cloudsave.Game{ID: "105600", Name: "Terraria"})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if save != nil {
		t.Errorf("Locate() = %+v, want nil for a dangling mapping with no other layer", save)
	}
}

func TestResolver_Locate_SteamCloudRemote(t *testing.T) {
	steamRoot := t.TempDir()
	remote := filepath.Join(steamRoot, "userdata", "123456", "105600", "remote")
	populateSaveDir(t, remote, 1)

	r := NewResolver(nil, steamRoot, "123456", nil, freshClock())
	save, err := r.Locate(&cloudsave.Game{ID: "105600", Name: "Terraria"})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if save == nil || save.SavePath != remote {
		t.Fatalf("Locate() = %+v, want remote path %q", save, remote)
	}
}

func TestResolver_Locate_KnownFolders(t *testing.T) {
	t.Run("matches a valid save directory", func(t *testing.T) {
		known := t.TempDir()
		saveDir := filepath.Join(known, "Terraria")
		populateSaveDir(t, saveDir, 3)

		r := NewResolver(nil, "", "", nil, freshClock())
		r.knownFolderOverride = []string{known}

		save, err := r.Locate(&cloudsave.Game{ID: "105600", Name: "Terraria"})
		if err != nil {
			t.Fatalf("Locate() error = %v", err)
		}
		if save == nil || save.SavePath != saveDir {
			t.Fatalf("Locate() = %+v, want %q", save, saveDir)
		}
	})

	t.Run("rejects directories with too few files", func(t *testing.T) {
		known := t.TempDir()
		populateSaveDir(t, filepath.Join(known, "Terraria"), 2)

		r := NewResolver(nil, "", "", nil, freshClock())
		r.knownFolderOverride = []string{known}

		save, err := r.Locate(&cloudsave.Game{ID: "105600", Name: "Terraria"})
		if err != nil {
			t.Fatalf("Locate() error = %v", err)
		}
		if save != nil {
			t.Errorf("Locate() = %+v, want nil for a near-empty candidate", save)
		}
	})

	t.Run("rejects stale directories", func(t *testing.T) {
		known := t.TempDir()
		saveDir := filepath.Join(known, "Terraria")
		populateSaveDir(t, saveDir, 3)

		// A clock far in the future makes the fresh mtime look stale.
		stale := testutil.NewStubClock(time.Now().Add(31 * 24 * time.Hour))
		r := NewResolver(nil, "", "", nil, stale)
		r.knownFolderOverride = []string{known}

		save, err := r.Locate(&cloudsave.Game{ID: "105600", Name: "Terraria"})
		if err != nil {
			t.Fatalf("Locate() error = %v", err)
		}
		if save != nil {
			t.Errorf("Locate() = %+v, want nil for a stale candidate", save)
		}
	})

	t.Run("fuzzy-matches sanitized names", func(t *testing.T) {
		known := t.TempDir()
		saveDir := filepath.Join(known, "Lost Castle 2")
		populateSaveDir(t, saveDir, 3)

		r := NewResolver(nil, "", "", nil, freshClock())
		r.knownFolderOverride = []string{known}

		save, err := r.Locate(&cloudsave.Game{ID: "2445690", Name: "Lost Castle 2™"})
		if err != nil {
			t.Fatalf("Locate() error = %v", err)
		}
		if save == nil || save.SavePath != saveDir {
			t.Fatalf("Locate() = %+v, want %q", save, saveDir)
		}
	})
}

func TestResolver_Locate_InstallDirectory(t *testing.T) {
	install := t.TempDir()
	saveDir := filepath.Join(install, "data", "SaveGames")
	populateSaveDir(t, saveDir, 3)

	r := NewResolver(nil, "", "", nil, freshClock())
	r.knownFolderOverride = []string{}

	save, err := r.Locate(&cloudsave.Game{ID: "365450", Name: "Hacknet", InstallPath: install})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if save == nil || save.SavePath != saveDir {
		t.Fatalf("Locate() = %+v, want %q", save, saveDir)
	}
}

func TestResolver_Locate_DepthBound(t *testing.T) {
	install := t.TempDir()
	deep := filepath.Join(install, "a", "b", "c", "saves")
	populateSaveDir(t, deep, 3)

	r := NewResolver(nil, "", "", nil, freshClock())
	r.knownFolderOverride = []string{}

	save, err := r.Locate(&cloudsave.Game{ID: "365450", Name: "Hacknet", InstallPath: install})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if save != nil {
		t.Errorf("Locate() = %+v, want nil beyond the scan depth", save)
	}
}

func TestResolver_Locate_BadGameID(t *testing.T) {
	r := NewResolver(nil, "", "", nil, freshClock())
	if _, err := r.Locate(&cloudsave.Game{ID: "not-a-number", Name: "X"}); err == nil {
		t.Error("Locate() accepted a non-numeric game id")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Terraria", "Terraria"},
		{"Baldur's Gate 3", "Baldur's Gate 3"},
		{"The Evil: Within", "The Evil_ Within"},
		{"Half/Life", "Half_Life"},
		{"Game™", "Game"},
		{"Name®  With   Spaces", "Name With Spaces"},
		{`a*b?c"d<e>f|g`, "a_b_c_d_e_f_g"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateSearchNames(t *testing.T) {
	got := generateSearchNames("Lost Castle 2™", "/games/steamapps/common/LostCastle2")
	want := []string{"Lost Castle 2", "Lost Castle 2™", "LostCastle2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("generateSearchNames() = %v, want %v", got, want)
	}

	t.Run("deduplicates identical forms", func(t *testing.T) {
		got := generateSearchNames("Hacknet", "/games/Hacknet")
		want := []string{"Hacknet"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("generateSearchNames() = %v, want %v", got, want)
		}
	})
}
