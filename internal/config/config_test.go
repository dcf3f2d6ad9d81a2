package config_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"cloudsave/internal/config"
)

func TestNewConfig(t *testing.T) {
	cfg := config.NewConfig("player1", "/data/cloudsave")

	if cfg.UserID != "player1" {
		t.Errorf("UserID = %q, want %q", cfg.UserID, "player1")
	}
	if cfg.LogDir != filepath.Join("/data/cloudsave", "log") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Backend.Type != "cos" {
		t.Errorf("Backend.Type = %q, want cos", cfg.Backend.Type)
	}
	if cfg.History.Type != "sqlite" {
		t.Errorf("History.Type = %q, want sqlite", cfg.History.Type)
	}
	if cfg.History.DataDir != filepath.Join("/data/cloudsave", "data") {
		t.Errorf("History.DataDir = %q", cfg.History.DataDir)
	}
	if cfg.Locator.MappingsPath != filepath.Join("/data/cloudsave", "mappings.toml") {
		t.Errorf("Locator.MappingsPath = %q", cfg.Locator.MappingsPath)
	}
	if cfg.Watch.DebounceSeconds != 5 {
		t.Errorf("Watch.DebounceSeconds = %d, want 5", cfg.Watch.DebounceSeconds)
	}
}

func TestManager_RoundTrip(t *testing.T) {
	cfg := config.NewConfig("player1", "/data/cloudsave")
	cfg.Backend.COSSecretID = "AKIDtest"
	cfg.Backend.COSBucket = "bucket-1250000000"
	cfg.Backend.COSRegion = "ap-guangzhou"
	cfg.Locator.SteamUserID = "123456"
	cfg.Watch.Games = []string{"105600", "Hacknet"}

	m := &config.Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.UserID != cfg.UserID {
		t.Errorf("UserID = %q, want %q", got.UserID, cfg.UserID)
	}
	if got.Backend != cfg.Backend {
		t.Errorf("Backend = %+v, want %+v", got.Backend, cfg.Backend)
	}
	if got.Locator != cfg.Locator {
		t.Errorf("Locator = %+v, want %+v", got.Locator, cfg.Locator)
	}
	if len(got.Watch.Games) != 2 || got.Watch.Games[0] != "105600" {
		t.Errorf("Watch.Games = %v", got.Watch.Games)
	}
}

func TestManager_ReadTaggedUnion(t *testing.T) {
	input := `user_id = "player1"

[backend]
type = "s3"
s3_bucket = "game-saves"
s3_prefix = "cloudsave/"
s3_region = "us-west-2"
s3_access_key_id = "AKIAEXAMPLE"
s3_secret_access_key = "secret"

[history]
type = "none"
`
	m := &config.Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if cfg.Backend.Type != "s3" {
		t.Errorf("Backend.Type = %q, want s3", cfg.Backend.Type)
	}
	if cfg.Backend.S3Bucket != "game-saves" || cfg.Backend.S3Prefix != "cloudsave/" {
		t.Errorf("S3 fields = %+v", cfg.Backend)
	}
	if cfg.Backend.COSBucket != "" {
		t.Errorf("COSBucket = %q, want empty for an s3 backend", cfg.Backend.COSBucket)
	}
	if cfg.History.Type != "none" {
		t.Errorf("History.Type = %q, want none", cfg.History.Type)
	}
}

func TestManager_ReadRejectsMalformed(t *testing.T) {
	m := &config.Manager{}
	if _, err := m.Read(strings.NewReader("user_id = ")); err == nil {
		t.Error("Read() accepted malformed input")
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cloudsave.toml")
	cfg := config.NewConfig("player1", "/data/cloudsave")

	if err := config.WriteToFile(path, cfg); err != nil {
		t.Fatalf("WriteToFile() error = %v", err)
	}

	got, err := config.ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.UserID != "player1" {
		t.Errorf("UserID = %q", got.UserID)
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudsave.toml")
	cfg := config.NewConfig("player1", "/data/cloudsave")

	if err := config.Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := config.Init(path, cfg); err == nil {
		t.Error("Init() overwrote an existing config")
	}
}

func TestReadFromFile_Missing(t *testing.T) {
	if _, err := config.ReadFromFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("ReadFromFile() succeeded on a missing file")
	}
}
