// Package gamemap normalizes game identifiers found in storage keys.
// Historical uploads encoded a game's display name (in several
// case/underscore variants) instead of its numeric app id; this package
// maps known variants to ids and expands an id back into every alias so
// legacy-named objects can still be matched.
package gamemap

import "strings"

// UnknownGame tags objects whose key carries no game-identifying
// segment. Keys written by a legacy bug used a bare "save_" prefix;
// those saves cannot be attributed to a game and are never guessed.
const UnknownGame = "unknown"

// nameToAppID maps known display-name variants to numeric app ids.
var nameToAppID = map[string]string{
	"Wallpaper Engine":              "431960",
	"wallpaper_engine":              "431960",
	"WallpaperEngine":               "431960",
	"Terraria":                      "105600",
	"Baldur's Gate 3":               "1086940",
	"BaldursGate3":                  "1086940",
	"Senren＊Banka":                  "1144400",
	"SenrenBanka":                   "1144400",
	"ASTLIBRA ～生きた証～ Revision": "1718570",
	"ASTLIBRA":                      "1718570",
	"Lost Castle 2":                 "2445690",
	"LostCastle2":                   "2445690",
	"The Binding of Isaac: Rebirth": "250900",
	"Isaac":                         "250900",
	"Hacknet":                       "365450",
	"Cultist Simulator":             "718670",
	"CultistSimulator":              "718670",
	"Counter-Strike 2":              "730",
	"CS2":                           "730",
	"Lossless Scaling":              "993090",
	"LosslessScaling":               "993090",
}

// AppIDFor resolves a display-name variant to its numeric app id.
// Unrecognized names pass through unchanged.
func AppIDFor(name string) string {
	if id, ok := nameToAppID[name]; ok {
		return id
	}
	// Retry with spaces collapsed to underscores, lowercased.
	normalized := strings.ToLower(strings.ReplaceAll(name, " ", "_"))
	if id, ok := nameToAppID[normalized]; ok {
		return id
	}
	return name
}

// AliasesFor expands an app id into every name it may appear under in
// legacy object keys, the id itself included.
func AliasesFor(appID string) []string {
	aliases := []string{appID}
	for name, id := range nameToAppID {
		if id == appID {
			aliases = append(aliases, name)
		}
	}
	return aliases
}

// IsNumericID reports whether s looks like a numeric app id.
func IsNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ExtractGameID pulls the game identifier out of a storage key and maps
// legacy display names to app ids. Supported layouts:
//
//	saves/<user>/<game>/<file>.zip
//	saves/<user>/<game>_<timestamp>_<uuid>.zip
//
// Keys using the ambiguous legacy "save_" filename prefix are tagged
// UnknownGame rather than guessed.
func ExtractGameID(objectKey string) string {
	raw := rawGameID(objectKey)

	if IsNumericID(raw) {
		return raw
	}
	if raw == "save" || strings.Contains(objectKey, "/save_") {
		return UnknownGame
	}
	mapped := AppIDFor(raw)
	return mapped
}

func rawGameID(objectKey string) string {
	parts := strings.Split(objectKey, "/")
	if len(parts) < 3 {
		return UnknownGame
	}
	// Directory layout: saves/<user>/<game>/<file>.zip
	if len(parts) >= 4 {
		return parts[2]
	}

	filename := parts[2]
	if strings.HasPrefix(filename, "save_") {
		return "save"
	}
	if i := strings.Index(filename, "_"); i >= 0 {
		return filename[:i]
	}
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[:i]
	}
	return filename
}
