package cloudsave

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChecksumKind classifies a stored digest of unknown provenance by its
// length. The two providers return different digest kinds: COS listings
// carry MD5 ETags, uploads record SHA-256, and some legacy objects have
// SHA-1 or malformed values.
type ChecksumKind int

const (
	ChecksumSHA256  ChecksumKind = iota // 64 hex chars, verifiable
	ChecksumMD5                         // 32 hex chars, provider ETag
	ChecksumSHA1                        // 40 hex chars
	ChecksumUnknown                     // anything else
)

func (k ChecksumKind) String() string {
	switch k {
	case ChecksumSHA256:
		return "sha256"
	case ChecksumMD5:
		return "md5"
	case ChecksumSHA1:
		return "sha1"
	default:
		return "unknown"
	}
}

// ClassifyChecksum determines the digest kind from its length.
func ClassifyChecksum(checksum string) ChecksumKind {
	switch len(checksum) {
	case 64:
		return ChecksumSHA256
	case 32:
		return ChecksumMD5
	case 40:
		return ChecksumSHA1
	default:
		return ChecksumUnknown
	}
}

// SHA256Hex returns the SHA-256 digest of data as a lowercase hex string.
// This is the strong digest attached to uploads.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// VerifyChecksum checks downloaded data against the stored digest.
// Only SHA-256 digests are actually compared; other kinds cannot be
// reconciled across providers and are accepted as-is. A mismatch is
// logged as a warning, never returned as an error: rejecting a download
// over a digest-kind difference would make cross-provider restores
// impossible.
func VerifyChecksum(data []byte, stored string, logger Logger) {
	computed := SHA256Hex(data)
	switch ClassifyChecksum(stored) {
	case ChecksumSHA256:
		if computed != stored {
			logger.Warn("sha256 checksum mismatch, continuing download",
				"expected", stored, "calculated", computed, "size", len(data))
		} else {
			logger.Debug("sha256 checksum verified", "checksum", stored)
		}
	case ChecksumMD5:
		logger.Debug("md5/etag checksum detected, skipping verification",
			"stored", stored, "sha256", computed)
	case ChecksumSHA1:
		logger.Debug("sha1 checksum detected, skipping verification",
			"stored", stored, "sha256", computed)
	default:
		logger.Warn("unknown checksum format, no verification possible",
			"stored", stored, "length", len(stored), "sha256", computed)
	}
}
