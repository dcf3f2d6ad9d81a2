package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"cloudsave/internal/cloudsave"
)

// DefaultSteamRoot returns the conventional Steam installation root for
// the current platform, or an error when none of the candidates exist.
func DefaultSteamRoot() (string, error) {
	var candidates []string
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		candidates = []string{
			`C:\Program Files (x86)\Steam`,
			`C:\Program Files\Steam`,
		}
	case "darwin":
		candidates = []string{
			filepath.Join(home, "Library", "Application Support", "Steam"),
		}
	default:
		candidates = []string{
			filepath.Join(home, ".local", "share", "Steam"),
			filepath.Join(home, ".steam", "steam"),
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("no Steam installation found")
}

// ScanInstalledGames discovers installed games by parsing
// libraryfolders.vdf for library paths and each library's
// appmanifest_*.acf files for app id, name, and install directory.
func ScanInstalledGames(steamRoot string) ([]*cloudsave.Game, error) {
	vdfPath := filepath.Join(steamRoot, "config", "libraryfolders.vdf")
	content, err := os.ReadFile(vdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", vdfPath, err)
	}

	libraries := parseLibraryFolders(string(content))
	// The root itself is always a library even when the vdf omits it.
	libraries = append([]string{steamRoot}, libraries...)

	var games []*cloudsave.Game
	seen := make(map[string]bool)
	for _, lib := range libraries {
		steamapps := filepath.Join(lib, "steamapps")
		entries, err := os.ReadDir(steamapps)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasPrefix(name, "appmanifest_") || !strings.HasSuffix(name, ".acf") {
				continue
			}
			game, err := parseAppManifest(filepath.Join(steamapps, name), steamapps)
			if err != nil {
				continue
			}
			if seen[game.ID] {
				continue
			}
			seen[game.ID] = true
			games = append(games, game)
		}
	}
	return games, nil
}

// CloudRemotePath finds the Steam Cloud remote directory for an app:
// <root>/userdata/<user>/<appid>/remote. When steamUserID is empty every
// user directory is checked; only non-empty directories qualify.
func CloudRemotePath(steamRoot string, appID uint32, steamUserID string) (string, bool) {
	userdata := filepath.Join(steamRoot, "userdata")

	var users []string
	if steamUserID != "" {
		users = []string{steamUserID}
	} else {
		entries, err := os.ReadDir(userdata)
		if err != nil {
			return "", false
		}
		for _, entry := range entries {
			if entry.IsDir() {
				users = append(users, entry.Name())
			}
		}
	}

	for _, user := range users {
		remote := filepath.Join(userdata, user, strconv.FormatUint(uint64(appID), 10), "remote")
		if isNonEmptyDir(remote) {
			return remote, true
		}
	}
	return "", false
}

// parseLibraryFolders extracts "path" values from libraryfolders.vdf.
// The format is Valve's KeyValues text; a full parser is overkill for
// pulling one key, so this scans line by line.
func parseLibraryFolders(content string) []string {
	var paths []string
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := parseVDFLine(line)
		if ok && key == "path" {
			paths = append(paths, value)
		}
	}
	return paths
}

// parseAppManifest reads appid, name and installdir out of an ACF file.
func parseAppManifest(manifestPath, steamapps string) (*cloudsave.Game, error) {
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}

	var appID, name, installDir string
	for _, line := range strings.Split(string(content), "\n") {
		key, value, ok := parseVDFLine(line)
		if !ok {
			continue
		}
		switch key {
		case "appid":
			appID = value
		case "name":
			name = value
		case "installdir":
			installDir = value
		}
	}

	if appID == "" || name == "" || installDir == "" {
		return nil, fmt.Errorf("incomplete app manifest %s", manifestPath)
	}
	if _, err := strconv.ParseUint(appID, 10, 32); err != nil {
		return nil, fmt.Errorf("invalid appid in %s: %w", manifestPath, err)
	}

	return &cloudsave.Game{
		ID:          appID,
		Name:        name,
		InstallPath: filepath.Join(steamapps, "common", installDir),
	}, nil
}

// parseVDFLine splits a quoted key/value pair like
//
//	"appid"		"105600"
//
// returning ok=false for braces, comments, and single-token lines.
func parseVDFLine(line string) (key, value string, ok bool) {
	var tokens []string
	rest := strings.TrimSpace(line)
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start+1:], '"')
		if end < 0 {
			break
		}
		tokens = append(tokens, rest[start+1:start+1+end])
		rest = rest[start+1+end+1:]
	}
	if len(tokens) < 2 {
		return "", "", false
	}
	return tokens[0], tokens[1], true
}

func isNonEmptyDir(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}
