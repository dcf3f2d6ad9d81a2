package backend

import (
	"context"
	"fmt"

	"cloudsave/internal/cloudsave"
	"cloudsave/internal/config"
)

// NewBackendFromConfig creates a Backend implementation based on the backend config type.
func NewBackendFromConfig(ctx context.Context, cfg config.BackendConfig, logger cloudsave.Logger, clock cloudsave.Clock, idgen cloudsave.IDGenerator) (cloudsave.Backend, error) {
	switch cfg.Type {
	case "cos":
		if cfg.COSBucket == "" || cfg.COSRegion == "" {
			return nil, fmt.Errorf("cos backend requires cos_bucket and cos_region to be set")
		}
		return NewCOSBackend(cfg.COSSecretID, cfg.COSSecretKey, cfg.COSBucket, cfg.COSRegion, logger, clock, idgen), nil
	case "s3":
		return NewS3Backend(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, logger, clock, idgen)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
