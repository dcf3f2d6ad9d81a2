// Package locator resolves where a game keeps its save data on disk.
// Resolution is layered: a manual override always wins, then the Steam
// Cloud remote directory, then fuzzy matching under platform known
// folders, and finally a bounded scan of the install directory.
package locator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloudsave/internal/cloudsave"
)

// saveKeywords mark directory names that plausibly hold save data.
var saveKeywords = []string{"save", "saved", "profile", "userdata", "savegame", "saves"}

const (
	// maxSaveAge bounds how stale a candidate directory's mtime may be.
	maxSaveAge = 30 * 24 * time.Hour
	// minSaveFiles is the fewest direct files a candidate must hold.
	minSaveFiles = 3
	// installScanDepth bounds the install-directory walk.
	installScanDepth = 3
)

// Resolver implements layered save-location detection.
type Resolver struct {
	mappings    *MappingStore
	steamRoot   string
	steamUserID string
	logger      cloudsave.Logger
	clock       cloudsave.Clock

	// knownFolderOverride replaces the platform known-folder list in
	// tests.
	knownFolderOverride []string
}

// NewResolver creates a Resolver. mappings may be nil to disable manual
// overrides; steamRoot may be empty when Steam is not installed.
func NewResolver(mappings *MappingStore, steamRoot, steamUserID string, logger cloudsave.Logger, clock cloudsave.Clock) *Resolver {
	if logger == nil {
		logger = cloudsave.NopLogger{}
	}
	if clock == nil {
		clock = cloudsave.RealClock{}
	}
	return &Resolver{
		mappings:    mappings,
		steamRoot:   steamRoot,
		steamUserID: steamUserID,
		logger:      logger,
		clock:       clock,
	}
}

// Locate finds the save directory for game, trying each layer in order.
// A (nil, nil) return means no layer produced a result.
func (r *Resolver) Locate(game *cloudsave.Game) (*cloudsave.GameSave, error) {
	appID64, err := strconv.ParseUint(game.ID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing game id %q: %w", game.ID, err)
	}
	appID := uint32(appID64)

	if r.mappings != nil {
		mapped, ok, err := r.mappings.Get(appID)
		if err != nil {
			return nil, fmt.Errorf("reading manual mapping: %w", err)
		}
		if ok {
			if _, err := os.Stat(mapped); err == nil {
				r.logger.Debug("save located via manual mapping", "game", game.Name, "path", mapped)
				return &cloudsave.GameSave{AppID: appID, Name: game.Name, SavePath: mapped}, nil
			}
			r.logger.Warn("manual mapping points at missing path", "game", game.Name, "path", mapped)
		}
	}

	if r.steamRoot != "" {
		if remote, ok := CloudRemotePath(r.steamRoot, appID, r.steamUserID); ok {
			r.logger.Debug("save located via Steam Cloud remote", "game", game.Name, "path", remote)
			return &cloudsave.GameSave{AppID: appID, Name: game.Name, SavePath: remote}, nil
		}
	}

	if path, ok := r.checkKnownFolders(game.Name, game.InstallPath); ok {
		r.logger.Debug("save located via known folders", "game", game.Name, "path", path)
		return &cloudsave.GameSave{AppID: appID, Name: game.Name, SavePath: path}, nil
	}

	if path, ok := r.checkInstallDirectory(game.InstallPath); ok {
		r.logger.Debug("save located in install directory", "game", game.Name, "path", path)
		return &cloudsave.GameSave{AppID: appID, Name: game.Name, SavePath: path}, nil
	}

	r.logger.Debug("no save location found", "game", game.Name)
	return nil, nil
}

// checkKnownFolders fuzzy-matches the game's search names against
// directories directly under the platform known folders, accepting only
// candidates that pass the validity check.
func (r *Resolver) checkKnownFolders(gameName, installPath string) (string, bool) {
	names := generateSearchNames(gameName, installPath)
	for _, base := range r.knownFolders() {
		if _, err := os.Stat(base); err != nil {
			continue
		}
		for _, name := range names {
			if match, ok := findFuzzyMatch(base, name); ok && r.isValidSaveDir(match) {
				return match, true
			}
		}
	}
	return "", false
}

// checkInstallDirectory scans installPath up to installScanDepth levels
// for a directory whose name contains a save keyword.
func (r *Resolver) checkInstallDirectory(installPath string) (string, bool) {
	if installPath == "" {
		return "", false
	}
	if _, err := os.Stat(installPath); err != nil {
		return "", false
	}

	var found string
	filepath.WalkDir(installPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return filepath.SkipAll
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(installPath, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && strings.Count(rel, string(filepath.Separator)) >= installScanDepth {
			return filepath.SkipDir
		}
		dirName := strings.ToLower(d.Name())
		for _, keyword := range saveKeywords {
			if strings.Contains(dirName, keyword) && r.isValidSaveDir(path) {
				found = path
				return filepath.SkipAll
			}
		}
		return nil
	})
	return found, found != ""
}

// isValidSaveDir accepts a directory modified within maxSaveAge that
// directly contains at least minSaveFiles files. The bound filters out
// abandoned installs and near-empty stubs.
func (r *Resolver) isValidSaveDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if r.clock.Now().Sub(info.ModTime()) > maxSaveAge {
		return false
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	files := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			files++
			if files >= minSaveFiles {
				return true
			}
		}
	}
	return false
}

// knownFolders lists the platform directories games conventionally
// write saves under.
func (r *Resolver) knownFolders() []string {
	if r.knownFolderOverride != nil {
		return r.knownFolderOverride
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return []string{
			filepath.Join(home, "Saved Games"),
			filepath.Join(home, "Documents", "My Games"),
			filepath.Join(home, "Documents"),
			filepath.Join(home, "AppData", "Roaming"),
			filepath.Join(home, "AppData", "Local"),
		}
	}
	return []string{
		filepath.Join(home, ".local", "share"),
		filepath.Join(home, ".config"),
		filepath.Join(home, "Documents"),
	}
}

// generateSearchNames builds the deduplicated candidate names for
// fuzzy matching: the raw game name, its sanitized form, and the
// install directory's base name in both forms.
func generateSearchNames(gameName, installPath string) []string {
	var names []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		for _, existing := range names {
			if existing == name {
				return
			}
		}
		names = append(names, name)
	}

	add(gameName)
	add(sanitizeName(gameName))
	if installPath != "" {
		dir := filepath.Base(installPath)
		add(dir)
		add(sanitizeName(dir))
	}
	sort.Strings(names)
	return names
}

// sanitizeName maps filesystem-reserved characters to underscores and
// trademark symbols to spaces, then collapses runs of whitespace.
func sanitizeName(name string) string {
	mapped := strings.Map(func(c rune) rune {
		switch c {
		case ':', '/', '\\', '*', '?', '"', '<', '>', '|':
			return '_'
		case '™', '®', '©':
			return ' '
		}
		return c
	}, name)
	return strings.Join(strings.Fields(mapped), " ")
}

// findFuzzyMatch scans the immediate children of base for a directory
// whose lowercased name equals or substring-matches searchName in
// either direction.
func findFuzzyMatch(base, searchName string) (string, bool) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", false
	}
	searchLower := strings.ToLower(searchName)

	// Exact match takes priority over substring hits.
	for _, entry := range entries {
		if entry.IsDir() && strings.ToLower(entry.Name()) == searchLower {
			return filepath.Join(base, entry.Name()), true
		}
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirLower := strings.ToLower(entry.Name())
		if strings.Contains(dirLower, searchLower) || strings.Contains(searchLower, dirLower) {
			return filepath.Join(base, entry.Name()), true
		}
	}
	return "", false
}

// Compile-time check that Resolver implements the SaveLocator interface.
var _ cloudsave.SaveLocator = (*Resolver)(nil)
