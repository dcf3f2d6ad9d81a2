package cloudsave

import (
	"context"
	"strings"
	"unicode"
)

// Backend provides an interface for cloud save storage providers.
// Implementations own archive packing, checksum computation, and the
// provider wire protocol; callers deal only in SaveMetadata.
//
// Mutating calls are retryable at the object level: each upload creates
// a new distinct object (the key carries a generated unique suffix), so
// callers retrying an upload should check for duplicates first rather
// than retry blindly.
type Backend interface {
	// Upload packs the save, uploads it, and returns the metadata of
	// the new snapshot.
	Upload(ctx context.Context, save *GameSave, userID string) (*SaveMetadata, error)

	// Download fetches a snapshot and materializes it at targetPath.
	// If targetPath ends in ".zip" the raw archive is written verbatim;
	// otherwise the archive is unpacked there. Content integrity is
	// checked against the stored checksum, but a mismatch or an
	// unverifiable checksum kind degrades to a warning, never a
	// failure: the two providers return different digest kinds.
	Download(ctx context.Context, meta *SaveMetadata, targetPath string) error

	// List returns the user's snapshots, newest first by timestamp.
	// gameID narrows the result to one game when non-empty; legacy
	// display-name keys that alias the id are included.
	List(ctx context.Context, userID string, gameID string) ([]*SaveMetadata, error)

	// Delete removes a snapshot permanently.
	Delete(ctx context.Context, meta *SaveMetadata) error

	// ResumeUpload uploads one chunk of a previously started upload at
	// the given byte offset and returns the partial-progress record.
	ResumeUpload(ctx context.Context, uploadID string, offset int64, chunk []byte) (*UploadProgress, error)

	// TestConnection verifies that the bucket is reachable with the
	// configured credentials.
	TestConnection(ctx context.Context) error

	// GetStorageInfo returns the user's storage usage summary.
	GetStorageInfo(ctx context.Context, userID string) (*StorageInfo, error)

	// GetBucketStorageInfo returns bucket-wide totals (bytes, objects).
	// It walks the full listing, so it may be slow on large buckets.
	GetBucketStorageInfo(ctx context.Context) (int64, int64, error)
}

// SanitizeUserID reduces a free-text user identifier to the character
// set safe for storage keys: letters, digits, '_' and '-'.
func SanitizeUserID(userID string) string {
	var b strings.Builder
	for _, r := range userID {
		if r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
