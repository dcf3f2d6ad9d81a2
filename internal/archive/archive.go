// Package archive packs save data into zip containers and unpacks them
// back to files or directory trees.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Pack compresses the file or directory at path into a zip archive.
// A single file becomes an archive with exactly one entry named by the
// file's base name. A directory is added recursively with entry names
// relative to the directory root, preserving structure and skipping
// nothing.
func Pack(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat save path: %w", err)
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	if info.IsDir() {
		err = addDir(w, path, "")
	} else {
		err = addFile(w, path, filepath.Base(path))
	}
	if err != nil {
		w.Close()
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func addDir(w *zip.Writer, dir string, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		name := prefix + entry.Name()
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := addDir(w, path, name+"/"); err != nil {
				return err
			}
			continue
		}
		if err := addFile(w, path, name); err != nil {
			return err
		}
	}
	return nil
}

func addFile(w *zip.Writer, path string, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	entry, err := w.Create(name)
	if err != nil {
		return fmt.Errorf("creating archive entry %s: %w", name, err)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("writing archive entry %s: %w", name, err)
	}
	return nil
}

// Unpack extracts a zip archive to targetPath. If the archive holds
// exactly one entry and targetPath carries a file extension, the entry's
// bytes are written directly to targetPath. Otherwise targetPath is
// treated as a directory root and every entry is recreated under it.
// The archive does not record which mode created it, so the shape of
// the target decides.
func Unpack(data []byte, targetPath string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}

	if parent := filepath.Dir(targetPath); parent != "." {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return fmt.Errorf("creating parent directory: %w", err)
		}
	}

	if len(r.File) == 1 && filepath.Ext(targetPath) != "" {
		return writeEntry(r.File[0], targetPath)
	}

	if err := os.MkdirAll(targetPath, 0755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}
	for _, f := range r.File {
		rel, ok := safeEntryPath(f.Name)
		if !ok {
			continue
		}
		dest := filepath.Join(targetPath, rel)
		if strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", dest, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("creating parent for %s: %w", dest, err)
		}
		if err := writeEntry(f, dest); err != nil {
			return err
		}
	}
	return nil
}

// safeEntryPath normalizes an entry name and rejects names that would
// escape the extraction root.
func safeEntryPath(name string) (string, bool) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == "." || filepath.IsAbs(cleaned) {
		return "", false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", false
	}
	return cleaned, true
}

func writeEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entryMode(f))
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return out.Close()
}

func entryMode(f *zip.File) fs.FileMode {
	if mode := f.Mode().Perm(); mode != 0 {
		return mode
	}
	return 0644
}
