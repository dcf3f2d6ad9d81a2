// Package backend provides the cloud storage provider implementations
// behind the cloudsave.Backend interface.
package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloudsave/internal/archive"
)

// materialize writes a downloaded archive to disk. A ".zip" target gets
// the raw archive verbatim (custom download location); anything else is
// treated as a save location and unpacked.
func materialize(data []byte, targetPath string) error {
	if strings.EqualFold(filepath.Ext(targetPath), ".zip") {
		if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
			return fmt.Errorf("creating download directory: %w", err)
		}
		if err := os.WriteFile(targetPath, data, 0644); err != nil {
			return fmt.Errorf("writing archive: %w", err)
		}
		return nil
	}
	if err := archive.Unpack(data, targetPath); err != nil {
		return fmt.Errorf("unpacking save: %w", err)
	}
	return nil
}
