package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for cloudsave.
type Config struct {
	UserID  string        `toml:"user_id"`
	BaseDir string        `toml:"base_dir"`
	LogDir  string        `toml:"log_dir"`
	Backend BackendConfig `toml:"backend"`
	History HistoryConfig `toml:"history"`
	Locator LocatorConfig `toml:"locator"`
	Watch   WatchConfig   `toml:"watch"`
}

// BackendConfig represents configuration for a cloud storage backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BackendConfig struct {
	Type string `toml:"type"` // "cos" or "s3"

	// COS-specific fields (only used when Type == "cos")
	COSSecretID  string `toml:"cos_secret_id,omitempty"`
	COSSecretKey string `toml:"cos_secret_key,omitempty"`
	COSBucket    string `toml:"cos_bucket,omitempty"`
	COSRegion    string `toml:"cos_region,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// HistoryConfig represents configuration for the operation history store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type HistoryConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "none"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// LocatorConfig holds save-location resolver settings.
type LocatorConfig struct {
	SteamRoot    string `toml:"steam_root,omitempty"`    // empty means autodetect
	SteamUserID  string `toml:"steam_user_id,omitempty"` // numeric userdata directory name
	MappingsPath string `toml:"mappings_path,omitempty"` // manual override store; defaults under BaseDir
}

// WatchConfig holds settings for the filesystem watch loop.
type WatchConfig struct {
	DebounceSeconds int      `toml:"debounce_seconds"` // quiet period before a change triggers a sync
	Games           []string `toml:"games,omitempty"`  // game names or app ids to watch
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(userID, baseDir string) *Config {
	return &Config{
		UserID:  userID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Backend: BackendConfig{
			Type: "cos",
		},
		History: HistoryConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Locator: LocatorConfig{
			MappingsPath: filepath.Join(baseDir, "mappings.toml"),
		},
		Watch: WatchConfig{
			DebounceSeconds: 5,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile writes a Config to the specified file path, creating the
// parent directory when missing.
func WriteToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := WriteToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
