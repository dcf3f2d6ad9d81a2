package history

import (
	"fmt"
	"path/filepath"

	"cloudsave/internal/cloudsave"
	"cloudsave/internal/config"
)

// NewRecorderFromConfig creates an OperationRecorder based on the history config type.
func NewRecorderFromConfig(cfg config.HistoryConfig) (cloudsave.OperationRecorder, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite history")
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "history.db"))
	case "memory":
		return NewSQLiteStore(":memory:")
	case "none", "":
		return cloudsave.NewNopRecorder(), nil
	default:
		return nil, fmt.Errorf("unknown history type: %s", cfg.Type)
	}
}
