package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// MappingStore persists manual save-path overrides keyed by app id.
// Overrides always win over heuristic detection.
type MappingStore struct {
	path string
}

type mappingFile struct {
	Mappings map[string]string `toml:"mappings"`
}

// NewMappingStore creates a store backed by the TOML file at path. The
// file is created lazily on the first Register.
func NewMappingStore(path string) *MappingStore {
	return &MappingStore{path: path}
}

// Register records an override for appID, replacing an existing one.
func (m *MappingStore) Register(appID uint32, savePath string) error {
	data, err := m.load()
	if err != nil {
		return err
	}
	data.Mappings[formatAppID(appID)] = savePath
	return m.save(data)
}

// Get returns the override for appID, or ok=false when none is set.
func (m *MappingStore) Get(appID uint32) (string, bool, error) {
	data, err := m.load()
	if err != nil {
		return "", false, err
	}
	path, ok := data.Mappings[formatAppID(appID)]
	return path, ok, nil
}

// Remove deletes the override for appID. It reports whether an
// override existed.
func (m *MappingStore) Remove(appID uint32) (bool, error) {
	data, err := m.load()
	if err != nil {
		return false, err
	}
	key := formatAppID(appID)
	if _, ok := data.Mappings[key]; !ok {
		return false, nil
	}
	delete(data.Mappings, key)
	if err := m.save(data); err != nil {
		return false, err
	}
	return true, nil
}

// All returns every override keyed by app id.
func (m *MappingStore) All() (map[uint32]string, error) {
	data, err := m.load()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]string, len(data.Mappings))
	for key, path := range data.Mappings {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			// Entries with non-numeric keys were written by hand;
			// skip rather than fail the whole listing.
			continue
		}
		out[uint32(id)] = path
	}
	return out, nil
}

func (m *MappingStore) load() (*mappingFile, error) {
	data := &mappingFile{Mappings: make(map[string]string)}
	content, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading mappings from %s: %w", m.path, err)
	}
	if err := toml.Unmarshal(content, data); err != nil {
		return nil, fmt.Errorf("decoding mappings from %s: %w", m.path, err)
	}
	if data.Mappings == nil {
		data.Mappings = make(map[string]string)
	}
	return data, nil
}

func (m *MappingStore) save(data *mappingFile) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("creating mappings directory: %w", err)
	}
	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("creating mappings file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(data); err != nil {
		return fmt.Errorf("encoding mappings to %s: %w", m.path, err)
	}
	return nil
}

func formatAppID(appID uint32) string {
	return strconv.FormatUint(uint64(appID), 10)
}
