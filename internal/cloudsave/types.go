package cloudsave

import "time"

// Game identifies an installed game known to the system.
type Game struct {
	ID          string
	Name        string
	InstallPath string
}

// GameSave is a located local save for a game. SavePath may point at a
// single file or at a directory tree.
type GameSave struct {
	AppID    uint32
	Name     string
	SavePath string
}

// SaveMetadata describes one uploaded save archive. It is created by a
// backend on successful upload and is immutable afterwards; the cloud
// backend is the system of record, the sync service only holds
// short-lived copies for decision-making.
type SaveMetadata struct {
	GameID     string
	Timestamp  time.Time
	SizeBytes  int64
	Checksum   string
	Compressed bool
	// ObjectKey is the backend-specific locator for the archive
	// (a storage key). It uniquely identifies the snapshot within
	// one backend and bucket.
	ObjectKey string
}

// StorageInfo is a point-in-time storage usage summary for one user.
// The bucket-wide fields are best effort: computing them requires a
// separate listing that may fail independently, in which case they
// stay nil.
type StorageInfo struct {
	UsedBytes          int64
	FileCount          int64
	TotalBytes         *int64 // nil means no fixed quota
	BucketUsedBytes    *int64
	BucketTotalObjects *int64
}

// UploadProgress is the partial-progress record returned by a resumed
// chunk upload.
type UploadProgress struct {
	BytesUploaded int64
	TotalBytes    int64
	Checksum      string
}
