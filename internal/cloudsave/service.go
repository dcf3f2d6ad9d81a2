package cloudsave

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// SaveLocator finds the local save data for a game. A (nil, nil) return
// means no save location could be determined; the locator never
// fabricates a path.
type SaveLocator interface {
	Locate(game *Game) (*GameSave, error)
}

// SyncService is the orchestration layer over a storage backend: it
// decides per game whether to upload, download, or do nothing, emits
// progress events, and records every operation.
//
// Mutating operations on the same game are serialized through a per-game
// mutex; operations on different games run independently with no
// cross-game ordering.
type SyncService struct {
	backend  Backend
	locator  SaveLocator
	recorder OperationRecorder
	notifier *Notifier
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	userID   string

	mu        sync.Mutex
	gameLocks map[string]*sync.Mutex
}

// NewSyncService creates a SyncService with the provided dependencies.
// locator may be nil when callers always supply explicit paths; notifier
// may be nil to disable progress events.
func NewSyncService(backend Backend, locator SaveLocator, recorder OperationRecorder, notifier *Notifier, logger Logger, clock Clock, idgen IDGenerator, userID string) *SyncService {
	return &SyncService{
		backend:   backend,
		locator:   locator,
		recorder:  recorder,
		notifier:  notifier,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		userID:    userID,
		gameLocks: make(map[string]*sync.Mutex),
	}
}

// gameLock returns the mutex serializing mutating operations for one game.
func (s *SyncService) gameLock(gameID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.gameLocks[gameID]
	if !ok {
		l = &sync.Mutex{}
		s.gameLocks[gameID] = l
	}
	return l
}

// SyncAction is the decision for one game's local/cloud pair.
type SyncAction int

const (
	ActionNone SyncAction = iota
	ActionUpload
	ActionDownload
)

func (a SyncAction) String() string {
	switch a {
	case ActionUpload:
		return "upload"
	case ActionDownload:
		return "download"
	default:
		return "none"
	}
}

// Decide is the sync decision table: last-write-wins on a single
// timestamp per game. It is a pure function of its four inputs; no
// other state affects the outcome.
func Decide(localExists bool, localMtime time.Time, cloudExists bool, cloudTime time.Time) SyncAction {
	switch {
	case !localExists && !cloudExists:
		return ActionNone
	case !localExists:
		return ActionDownload
	case !cloudExists:
		return ActionUpload
	case localMtime.After(cloudTime):
		return ActionUpload
	case cloudTime.After(localMtime):
		return ActionDownload
	default:
		return ActionNone
	}
}

// SyncOutcome reports what a sync did for one game.
type SyncOutcome struct {
	Action   SyncAction
	Snapshot *SaveMetadata // the uploaded or downloaded snapshot, nil for ActionNone
}

// Upload packs and uploads the save at localPath for the given game.
func (s *SyncService) Upload(ctx context.Context, gameID string, localPath string) (*SaveMetadata, error) {
	appID, err := parseAppID(gameID)
	if err != nil {
		return nil, err
	}

	opID := s.idgen.New()
	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: gameID, Kind: OpUpload, Status: StatusStarting,
	})
	s.recordStart(opID, gameID, OpUpload, localPath)

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, s.fail(opID, gameID, OpUpload, 0, fmt.Errorf("reading local save: %w", err))
	}

	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: gameID, Kind: OpUpload,
		TotalBytes: info.Size(), Status: StatusInProgress,
	})

	save := &GameSave{
		AppID:    appID,
		Name:     filepath.Base(localPath),
		SavePath: localPath,
	}

	meta, err := s.backend.Upload(ctx, save, s.userID)
	if err != nil {
		return nil, s.fail(opID, gameID, OpUpload, info.Size(), err)
	}

	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: gameID, Kind: OpUpload,
		BytesProcessed: info.Size(), TotalBytes: info.Size(), Status: StatusCompleted,
	})
	s.recordFinish(opID, StatusCompleted, "")
	s.logger.Info("save uploaded", "game", gameID, "key", meta.ObjectKey, "bytes", meta.SizeBytes)
	return meta, nil
}

// Download fetches a snapshot into localPath.
func (s *SyncService) Download(ctx context.Context, meta *SaveMetadata, localPath string) error {
	opID := s.idgen.New()
	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: meta.GameID, Kind: OpDownload,
		TotalBytes: meta.SizeBytes, Status: StatusStarting,
	})
	s.recordStart(opID, meta.GameID, OpDownload, meta.ObjectKey)

	if err := s.backend.Download(ctx, meta, localPath); err != nil {
		return s.fail(opID, meta.GameID, OpDownload, meta.SizeBytes, err)
	}

	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: meta.GameID, Kind: OpDownload,
		BytesProcessed: meta.SizeBytes, TotalBytes: meta.SizeBytes, Status: StatusCompleted,
	})
	s.recordFinish(opID, StatusCompleted, "")
	s.logger.Info("save downloaded", "game", meta.GameID, "key", meta.ObjectKey, "path", localPath)
	return nil
}

// Restore downloads a snapshot over localPath, first copying any
// existing data at the target to a timestamped backup path. The backup
// happens unconditionally whenever the target exists, independent of
// any sync decision.
func (s *SyncService) Restore(ctx context.Context, meta *SaveMetadata, localPath string) error {
	if _, err := os.Stat(localPath); err == nil {
		backupPath := localPath + ".bak." + strconv.FormatInt(s.clock.Now().Unix(), 10)
		if err := copyTree(localPath, backupPath); err != nil {
			return fmt.Errorf("backing up existing save: %w", err)
		}
		s.logger.Info("created backup before restore", "path", backupPath)
	}

	opID := s.idgen.New()
	s.recordStart(opID, meta.GameID, OpRestore, meta.ObjectKey)
	if err := s.Download(ctx, meta, localPath); err != nil {
		s.recordFinish(opID, StatusFailed, err.Error())
		return err
	}
	s.recordFinish(opID, StatusCompleted, "")
	return nil
}

// Delete removes a snapshot from the cloud.
func (s *SyncService) Delete(ctx context.Context, meta *SaveMetadata) error {
	lock := s.gameLock(meta.GameID)
	lock.Lock()
	defer lock.Unlock()

	opID := s.idgen.New()
	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: meta.GameID, Kind: OpDelete, Status: StatusStarting,
	})
	s.recordStart(opID, meta.GameID, OpDelete, meta.ObjectKey)

	if err := s.backend.Delete(ctx, meta); err != nil {
		return s.fail(opID, meta.GameID, OpDelete, 0, err)
	}

	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: meta.GameID, Kind: OpDelete, Status: StatusCompleted,
	})
	s.recordFinish(opID, StatusCompleted, "")
	s.logger.Info("save deleted", "game", meta.GameID, "key", meta.ObjectKey)
	return nil
}

// List returns the user's snapshots, optionally narrowed to one game,
// newest first.
func (s *SyncService) List(ctx context.Context, gameID string) ([]*SaveMetadata, error) {
	opID := s.idgen.New()
	listID := gameID
	if listID == "" {
		listID = "all"
	}
	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: listID, Kind: OpList, Status: StatusStarting,
	})

	saves, err := s.backend.List(ctx, s.userID, gameID)
	if err != nil {
		return nil, s.fail(opID, listID, OpList, 0, err)
	}

	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: listID, Kind: OpList, Status: StatusCompleted,
	})
	return saves, nil
}

// StorageInfo returns the user's usage summary with best-effort
// bucket-wide totals. A failure of the bucket-wide listing degrades to
// missing fields; it never fails the per-user call.
func (s *SyncService) StorageInfo(ctx context.Context) (*StorageInfo, error) {
	info, err := s.backend.GetStorageInfo(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("getting storage info: %w", err)
	}

	bucketBytes, bucketObjects, err := s.backend.GetBucketStorageInfo(ctx)
	if err != nil {
		s.logger.Warn("bucket storage info unavailable", "error", err)
		return info, nil
	}
	info.BucketUsedBytes = &bucketBytes
	info.BucketTotalObjects = &bucketObjects
	return info, nil
}

// SyncGame reconciles one game's local save with the cloud using
// last-write-wins: list cloud snapshots, compare the newest against the
// local modification time, then upload, download, or do nothing.
func (s *SyncService) SyncGame(ctx context.Context, gameID string, localPath string) (*SyncOutcome, error) {
	lock := s.gameLock(gameID)
	lock.Lock()
	defer lock.Unlock()

	saves, err := s.List(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing cloud saves for %s: %w", gameID, err)
	}

	var newest *SaveMetadata
	if len(saves) > 0 {
		newest = saves[0]
	}

	localExists := false
	var localMtime time.Time
	if info, err := os.Stat(localPath); err == nil {
		localExists = true
		localMtime = info.ModTime()
	}

	var cloudTime time.Time
	if newest != nil {
		cloudTime = newest.Timestamp
	}

	switch Decide(localExists, localMtime, newest != nil, cloudTime) {
	case ActionUpload:
		meta, err := s.Upload(ctx, gameID, localPath)
		if err != nil {
			return nil, err
		}
		return &SyncOutcome{Action: ActionUpload, Snapshot: meta}, nil
	case ActionDownload:
		if err := s.Download(ctx, newest, localPath); err != nil {
			return nil, err
		}
		return &SyncOutcome{Action: ActionDownload, Snapshot: newest}, nil
	default:
		return &SyncOutcome{Action: ActionNone}, nil
	}
}

// LocateAndSync resolves the game's save location and syncs it.
// Games with no detectable save location sync as cloud-only: if a cloud
// snapshot exists nothing is downloaded (there is nowhere to put it),
// and a NotFound outcome is reported via the error.
func (s *SyncService) LocateAndSync(ctx context.Context, game *Game) (*SyncOutcome, error) {
	if s.locator == nil {
		return nil, fmt.Errorf("no save locator configured")
	}
	save, err := s.locator.Locate(game)
	if err != nil {
		return nil, fmt.Errorf("locating save for %s: %w", game.Name, err)
	}
	if save == nil {
		return nil, fmt.Errorf("no save location found for %s (%s)", game.Name, game.ID)
	}
	return s.SyncGame(ctx, game.ID, save.SavePath)
}

// SyncTarget names one game to reconcile.
type SyncTarget struct {
	GameID    string
	LocalPath string
}

// SyncReport is the per-game result of a batch sync.
type SyncReport struct {
	GameID  string
	Outcome *SyncOutcome
	Err     error
}

// SyncAll reconciles a batch of games. One game's failure never aborts
// the rest; each game gets its own report.
func (s *SyncService) SyncAll(ctx context.Context, targets []SyncTarget) []SyncReport {
	reports := make([]SyncReport, 0, len(targets))
	for _, t := range targets {
		outcome, err := s.SyncGame(ctx, t.GameID, t.LocalPath)
		if err != nil {
			s.logger.Error("sync failed", "game", t.GameID, "error", err)
		}
		reports = append(reports, SyncReport{GameID: t.GameID, Outcome: outcome, Err: err})
	}
	return reports
}

// BatchUpload uploads several saves, collecting per-game results.
func (s *SyncService) BatchUpload(ctx context.Context, targets []SyncTarget) []SyncReport {
	reports := make([]SyncReport, 0, len(targets))
	for _, t := range targets {
		meta, err := s.Upload(ctx, t.GameID, t.LocalPath)
		rep := SyncReport{GameID: t.GameID, Err: err}
		if err == nil {
			rep.Outcome = &SyncOutcome{Action: ActionUpload, Snapshot: meta}
		}
		reports = append(reports, rep)
	}
	return reports
}

// BatchDownload fetches the newest snapshot of several games,
// collecting per-game results.
func (s *SyncService) BatchDownload(ctx context.Context, targets []SyncTarget) []SyncReport {
	reports := make([]SyncReport, 0, len(targets))
	for _, t := range targets {
		rep := SyncReport{GameID: t.GameID}
		saves, err := s.List(ctx, t.GameID)
		switch {
		case err != nil:
			rep.Err = err
		case len(saves) == 0:
			rep.Err = fmt.Errorf("no cloud snapshots for %s", t.GameID)
		default:
			if err := s.Download(ctx, saves[0], t.LocalPath); err != nil {
				rep.Err = err
			} else {
				rep.Outcome = &SyncOutcome{Action: ActionDownload, Snapshot: saves[0]}
			}
		}
		reports = append(reports, rep)
	}
	return reports
}

func (s *SyncService) fail(opID, gameID string, kind OperationKind, total int64, err error) error {
	s.notifier.Publish(ProgressEvent{
		OperationID: opID, GameID: gameID, Kind: kind,
		TotalBytes: total, Status: StatusFailed, Error: err.Error(),
	})
	s.recordFinish(opID, StatusFailed, err.Error())
	return err
}

func (s *SyncService) recordStart(opID, gameID string, kind OperationKind, objectKey string) {
	err := s.recorder.RecordStart(&OperationRecord{
		ID:        opID,
		GameID:    gameID,
		Kind:      kind,
		Status:    StatusStarting,
		ObjectKey: objectKey,
		StartedAt: s.clock.Now(),
	})
	if err != nil {
		s.logger.Warn("recording operation start failed", "op", opID, "error", err)
	}
}

func (s *SyncService) recordFinish(opID string, status OperationStatus, errMsg string) {
	if err := s.recorder.RecordFinish(opID, status, errMsg, s.clock.Now()); err != nil {
		s.logger.Warn("recording operation finish failed", "op", opID, "error", err)
	}
}

func parseAppID(gameID string) (uint32, error) {
	id, err := strconv.ParseUint(gameID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid game id %q, expected numeric app id", gameID)
	}
	return uint32(id), nil
}

// copyTree copies a file, or a directory recursively, from src to dst.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, fi.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
