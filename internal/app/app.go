// Package app is the application layer between the CLI and the sync
// service. It constructs every dependency from config, exposes
// high-level operations that accept raw game names or app ids, and
// manages resource lifecycles on Close.
package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"cloudsave/internal/backend"
	"cloudsave/internal/cloudsave"
	"cloudsave/internal/config"
	"cloudsave/internal/gamemap"
	"cloudsave/internal/history"
	"cloudsave/internal/locator"
)

// progressBuffer is the event channel capacity; slow consumers drop
// events rather than stall transfers.
const progressBuffer = 64

// App wires the backend, locator, history store, and sync service
// together for one CLI invocation.
type App struct {
	cfg      *config.Config
	backend  cloudsave.Backend
	recorder cloudsave.OperationRecorder
	mappings *locator.MappingStore
	resolver *locator.Resolver
	notifier *cloudsave.Notifier
	service  *cloudsave.SyncService
	logFile  *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Sync", "Upload").
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("no user_id configured")
	}

	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	clock := cloudsave.RealClock{}
	idgen := cloudsave.UUIDGenerator{}

	be, err := backend.NewBackendFromConfig(ctx, cfg.Backend, log, clock, idgen)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	recorder, err := history.NewRecorderFromConfig(cfg.History)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating history store: %w", err)
	}

	steamRoot := cfg.Locator.SteamRoot
	if steamRoot == "" {
		// Autodetection failure is tolerable: manual mappings and
		// known-folder matching still work without Steam.
		if root, err := locator.DefaultSteamRoot(); err == nil {
			steamRoot = root
		} else {
			log.Debug("no Steam installation detected", "error", err)
		}
	}

	mappings := locator.NewMappingStore(cfg.Locator.MappingsPath)
	resolver := locator.NewResolver(mappings, steamRoot, cfg.Locator.SteamUserID, log, clock)

	notifier := cloudsave.NewNotifier(progressBuffer)
	svc := cloudsave.NewSyncService(be, resolver, recorder, notifier, log, clock, idgen, cfg.UserID)

	return &App{
		cfg:      cfg,
		backend:  be,
		recorder: recorder,
		mappings: mappings,
		resolver: resolver,
		notifier: notifier,
		service:  svc,
		logFile:  logFile,
	}, nil
}

// Service exposes the underlying sync service for callers that drive it
// directly, like the watch loop.
func (a *App) Service() *cloudsave.SyncService { return a.service }

// Events returns the progress event stream.
func (a *App) Events() <-chan cloudsave.ProgressEvent { return a.notifier.Events() }

// ResolveGameID turns a user-supplied game name or numeric app id into
// a numeric app id string.
func (a *App) ResolveGameID(arg string) (string, error) {
	if gamemap.IsNumericID(arg) {
		return arg, nil
	}
	if id := gamemap.AppIDFor(arg); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("unknown game %q: use a numeric app id or a known game name", arg)
}

// Sync reconciles one game. When localPath is empty the save location
// is resolved through the locator layers.
func (a *App) Sync(ctx context.Context, gameArg, localPath string) (*cloudsave.SyncOutcome, error) {
	gameID, err := a.ResolveGameID(gameArg)
	if err != nil {
		return nil, err
	}
	if localPath != "" {
		return a.service.SyncGame(ctx, gameID, localPath)
	}
	return a.service.LocateAndSync(ctx, &cloudsave.Game{ID: gameID, Name: gameArg})
}

// SyncAll scans installed games, resolves each save location, and
// reconciles every game that has one. Games without a detectable save
// location are skipped with a report entry.
func (a *App) SyncAll(ctx context.Context) ([]cloudsave.SyncReport, error) {
	games, err := a.ScanGames()
	if err != nil {
		return nil, err
	}

	var reports []cloudsave.SyncReport
	for _, game := range games {
		outcome, err := a.service.LocateAndSync(ctx, game)
		reports = append(reports, cloudsave.SyncReport{GameID: game.ID, Outcome: outcome, Err: err})
	}
	return reports, nil
}

// Upload packs and uploads the save at localPath for the given game.
// When localPath is empty the save location is resolved first.
func (a *App) Upload(ctx context.Context, gameArg, localPath string) (*cloudsave.SaveMetadata, error) {
	gameID, err := a.ResolveGameID(gameArg)
	if err != nil {
		return nil, err
	}
	if localPath == "" {
		save, err := a.Locate(gameArg)
		if err != nil {
			return nil, err
		}
		localPath = save.SavePath
	}
	return a.service.Upload(ctx, gameID, localPath)
}

// Download fetches the newest snapshot (or the one matching objectKey
// when non-empty) into localPath.
func (a *App) Download(ctx context.Context, gameArg, objectKey, localPath string) (*cloudsave.SaveMetadata, error) {
	meta, err := a.findSnapshot(ctx, gameArg, objectKey)
	if err != nil {
		return nil, err
	}
	if err := a.service.Download(ctx, meta, localPath); err != nil {
		return nil, err
	}
	return meta, nil
}

// Restore downloads a snapshot over localPath, backing up any existing
// data at the target first.
func (a *App) Restore(ctx context.Context, gameArg, objectKey, localPath string) (*cloudsave.SaveMetadata, error) {
	meta, err := a.findSnapshot(ctx, gameArg, objectKey)
	if err != nil {
		return nil, err
	}
	if localPath == "" {
		save, err := a.Locate(gameArg)
		if err != nil {
			return nil, err
		}
		localPath = save.SavePath
	}
	if err := a.service.Restore(ctx, meta, localPath); err != nil {
		return nil, err
	}
	return meta, nil
}

// Delete removes a snapshot from the cloud.
func (a *App) Delete(ctx context.Context, gameArg, objectKey string) error {
	meta, err := a.findSnapshot(ctx, gameArg, objectKey)
	if err != nil {
		return err
	}
	return a.service.Delete(ctx, meta)
}

// List returns the user's snapshots, optionally narrowed to one game.
func (a *App) List(ctx context.Context, gameArg string) ([]*cloudsave.SaveMetadata, error) {
	gameID := ""
	if gameArg != "" {
		id, err := a.ResolveGameID(gameArg)
		if err != nil {
			return nil, err
		}
		gameID = id
	}
	return a.service.List(ctx, gameID)
}

// StorageInfo returns the usage summary.
func (a *App) StorageInfo(ctx context.Context) (*cloudsave.StorageInfo, error) {
	return a.service.StorageInfo(ctx)
}

// TestConnection verifies the backend is reachable with the configured
// credentials.
func (a *App) TestConnection(ctx context.Context) error {
	return a.backend.TestConnection(ctx)
}

// ScanGames discovers installed games from the Steam libraries.
func (a *App) ScanGames() ([]*cloudsave.Game, error) {
	steamRoot := a.cfg.Locator.SteamRoot
	if steamRoot == "" {
		root, err := locator.DefaultSteamRoot()
		if err != nil {
			return nil, fmt.Errorf("finding Steam installation: %w", err)
		}
		steamRoot = root
	}
	return locator.ScanInstalledGames(steamRoot)
}

// Locate resolves a game's save location through the resolver layers.
func (a *App) Locate(gameArg string) (*cloudsave.GameSave, error) {
	gameID, err := a.ResolveGameID(gameArg)
	if err != nil {
		return nil, err
	}

	game := &cloudsave.Game{ID: gameID, Name: gameArg}
	// Use install metadata when the game is found in a Steam library;
	// the install path feeds the fuzzy-match and install-dir layers.
	if games, err := a.ScanGames(); err == nil {
		for _, g := range games {
			if g.ID == gameID {
				game = g
				break
			}
		}
	}

	save, err := a.resolver.Locate(game)
	if err != nil {
		return nil, err
	}
	if save == nil {
		return nil, fmt.Errorf("no save location found for %s", gameArg)
	}
	return save, nil
}

// SetMapping registers a manual save-path override for a game.
func (a *App) SetMapping(gameArg, path string) error {
	gameID, err := a.ResolveGameID(gameArg)
	if err != nil {
		return err
	}
	appID, err := parseAppID(gameID)
	if err != nil {
		return err
	}
	return a.mappings.Register(appID, path)
}

// UnsetMapping removes a manual override. It reports whether one existed.
func (a *App) UnsetMapping(gameArg string) (bool, error) {
	gameID, err := a.ResolveGameID(gameArg)
	if err != nil {
		return false, err
	}
	appID, err := parseAppID(gameID)
	if err != nil {
		return false, err
	}
	return a.mappings.Remove(appID)
}

// Mappings lists every manual override keyed by app id.
func (a *App) Mappings() (map[uint32]string, error) {
	return a.mappings.All()
}

// History returns the most recent recorded operations, newest first.
// It returns nil when history persistence is disabled.
func (a *App) History(gameArg string, limit int) ([]*cloudsave.OperationRecord, error) {
	store, ok := a.recorder.(*history.SQLiteStore)
	if !ok {
		return nil, nil
	}
	gameID := ""
	if gameArg != "" {
		id, err := a.ResolveGameID(gameArg)
		if err != nil {
			return nil, err
		}
		gameID = id
	}
	return store.ListOperations(gameID, limit)
}

// findSnapshot lists a game's snapshots and picks the newest, or the
// one whose object key matches objectKey.
func (a *App) findSnapshot(ctx context.Context, gameArg, objectKey string) (*cloudsave.SaveMetadata, error) {
	gameID, err := a.ResolveGameID(gameArg)
	if err != nil {
		return nil, err
	}
	saves, err := a.service.List(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(saves) == 0 {
		return nil, fmt.Errorf("no cloud snapshots for %s", gameArg)
	}
	if objectKey == "" {
		return saves[0], nil
	}
	for _, meta := range saves {
		if meta.ObjectKey == objectKey {
			return meta, nil
		}
	}
	return nil, fmt.Errorf("no snapshot with key %s for %s", objectKey, gameArg)
}

// Close releases the history store and log file.
func (a *App) Close() error {
	var firstErr error
	if store, ok := a.recorder.(*history.SQLiteStore); ok {
		if err := store.Close(); err != nil {
			firstErr = fmt.Errorf("closing history store: %w", err)
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}

func parseAppID(gameID string) (uint32, error) {
	id, err := strconv.ParseUint(gameID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid app id %q: %w", gameID, err)
	}
	return uint32(id), nil
}
