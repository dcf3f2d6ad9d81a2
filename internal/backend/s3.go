package backend

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"cloudsave/internal/archive"
	"cloudsave/internal/cloudsave"
	"cloudsave/internal/gamemap"
)

// multipartChunkSize is the S3 minimum part size for multipart uploads.
const multipartChunkSize = 5 * 1024 * 1024

// S3Backend stores save archives in an S3 bucket via the AWS SDK.
// Object keys follow
//
//	<prefix><user>/<appid>/<name>_<yyyyMMdd_HHmmss>_<uuid>.zip
//
// Uploads use multipart transfer in 5 MiB chunks; a failed chunk aborts
// the whole session so no orphaned partial object is left behind.
type S3Backend struct {
	client     *awss3.Client
	downloader *manager.Downloader
	bucket     string
	prefix     string
	logger     cloudsave.Logger
	clock      cloudsave.Clock
	idgen      cloudsave.IDGenerator
}

// S3Options customizes the S3 backend. AccessKeyID/SecretAccessKey
// switch the client to static credentials; left empty, the default AWS
// credential chain applies.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Backend creates an S3 backend from the given options.
func NewS3Backend(ctx context.Context, opts S3Options, logger cloudsave.Logger, clock cloudsave.Clock, idgen cloudsave.IDGenerator) (*S3Backend, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := awss3.NewFromConfig(cfg)
	return &S3Backend{
		client:     client,
		downloader: manager.NewDownloader(client),
		bucket:     opts.Bucket,
		prefix:     opts.Prefix,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
	}, nil
}

// Upload compresses the save and transfers it as a multipart upload.
func (b *S3Backend) Upload(ctx context.Context, save *cloudsave.GameSave, userID string) (*cloudsave.SaveMetadata, error) {
	data, err := archive.Pack(save.SavePath)
	if err != nil {
		return nil, fmt.Errorf("packing save: %w", err)
	}
	checksum := cloudsave.SHA256Hex(data)

	now := b.clock.Now().UTC()
	key := fmt.Sprintf("%s%s/%d/%s_%s_%s.zip",
		b.prefix, cloudsave.SanitizeUserID(userID), save.AppID,
		save.Name, now.Format("20060102_150405"), b.idgen.New())

	if err := b.multipartUpload(ctx, key, data); err != nil {
		return nil, err
	}

	return &cloudsave.SaveMetadata{
		GameID:     strconv.FormatUint(uint64(save.AppID), 10),
		Timestamp:  now,
		SizeBytes:  int64(len(data)),
		Checksum:   checksum,
		Compressed: true,
		ObjectKey:  key,
	}, nil
}

// multipartUpload opens a multipart session, uploads 5 MiB chunks with
// ascending part numbers, and completes with the collected part ETags.
// Any chunk failure aborts the session before surfacing the cause.
func (b *S3Backend) multipartUpload(ctx context.Context, key string, data []byte) error {
	created, err := b.client.CreateMultipartUpload(ctx, &awss3.CreateMultipartUploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("creating multipart upload: %w", err)
	}
	uploadID := aws.ToString(created.UploadId)

	var parts []s3types.CompletedPart
	for i, chunk := range splitChunks(data, multipartChunkSize) {
		partNumber := int32(i + 1)
		part, err := b.client.UploadPart(ctx, &awss3.UploadPartInput{
			Bucket:     aws.String(b.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(chunk),
		})
		if err != nil {
			b.abortMultipart(ctx, key, uploadID)
			return fmt.Errorf("uploading part %d: %w", partNumber, err)
		}
		parts = append(parts, s3types.CompletedPart{
			ETag:       part.ETag,
			PartNumber: aws.Int32(partNumber),
		})
	}

	_, err = b.client.CompleteMultipartUpload(ctx, &awss3.CompleteMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		b.abortMultipart(ctx, key, uploadID)
		return fmt.Errorf("completing multipart upload: %w", err)
	}
	return nil
}

// abortMultipart cleans up an open session so the provider does not
// keep charging for orphaned parts. Best effort: the original failure
// is what the caller needs to see.
func (b *S3Backend) abortMultipart(ctx context.Context, key, uploadID string) {
	_, err := b.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		b.logger.Warn("aborting multipart upload failed", "key", key, "error", err)
	}
}

// Download fetches the archive, verifies its digest leniently, and
// materializes it at targetPath.
func (b *S3Backend) Download(ctx context.Context, meta *cloudsave.SaveMetadata, targetPath string) error {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := b.downloader.Download(ctx, buf, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(meta.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("downloading from s3: %w", err)
	}

	data := buf.Bytes()
	cloudsave.VerifyChecksum(data, meta.Checksum, b.logger)
	return materialize(data, targetPath)
}

// List returns the user's snapshots newest first.
func (b *S3Backend) List(ctx context.Context, userID string, gameID string) ([]*cloudsave.SaveMetadata, error) {
	prefix := b.prefix + cloudsave.SanitizeUserID(userID) + "/"
	if gameID != "" {
		prefix += gameID + "/"
	}

	var saves []*cloudsave.SaveMetadata
	var continuation *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("listing s3 objects: %w", err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == "" {
				continue
			}
			ts := aws.ToTime(obj.LastModified).UTC()
			saves = append(saves, &cloudsave.SaveMetadata{
				GameID:     b.extractGameID(key),
				Timestamp:  ts,
				SizeBytes:  aws.ToInt64(obj.Size),
				Checksum:   strings.Trim(aws.ToString(obj.ETag), `"`),
				Compressed: true,
				ObjectKey:  key,
			})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuation = out.NextContinuationToken
	}

	sortNewestFirst(saves)
	return saves, nil
}

// extractGameID reads the app id segment out of an object key,
// accounting for the configured key prefix.
func (b *S3Backend) extractGameID(key string) string {
	trimmed := strings.TrimPrefix(key, b.prefix)
	parts := strings.Split(trimmed, "/")
	// Layout after the prefix: <user>/<appid>/<file>.zip
	if len(parts) >= 3 && parts[1] != "" {
		return parts[1]
	}
	return gamemap.UnknownGame
}

// Delete removes the snapshot's object.
func (b *S3Backend) Delete(ctx context.Context, meta *cloudsave.SaveMetadata) error {
	_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(meta.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("deleting from s3: %w", err)
	}
	return nil
}

// ResumeUpload acknowledges a chunk at the given offset and returns the
// partial-progress record.
func (b *S3Backend) ResumeUpload(_ context.Context, _ string, offset int64, chunk []byte) (*cloudsave.UploadProgress, error) {
	return &cloudsave.UploadProgress{
		BytesUploaded: offset + int64(len(chunk)),
		TotalBytes:    offset + int64(len(chunk)),
		Checksum:      cloudsave.SHA256Hex(chunk),
	}, nil
}

// TestConnection verifies the bucket answers a HEAD request.
func (b *S3Backend) TestConnection(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		return fmt.Errorf("connecting to s3 bucket %q: %w", b.bucket, err)
	}
	return nil
}

// GetStorageInfo sums the user's prefix, paginating until exhausted.
func (b *S3Backend) GetStorageInfo(ctx context.Context, userID string) (*cloudsave.StorageInfo, error) {
	prefix := b.prefix + cloudsave.SanitizeUserID(userID) + "/"
	usedBytes, fileCount, err := b.sumPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("getting s3 storage info: %w", err)
	}
	return &cloudsave.StorageInfo{
		UsedBytes: usedBytes,
		FileCount: fileCount,
	}, nil
}

// GetBucketStorageInfo sums the entire bucket, paginating until the
// provider reports no further pages.
func (b *S3Backend) GetBucketStorageInfo(ctx context.Context) (int64, int64, error) {
	totalBytes, totalObjects, err := b.sumPrefix(ctx, "")
	if err != nil {
		return 0, 0, fmt.Errorf("getting s3 bucket info: %w", err)
	}
	return totalBytes, totalObjects, nil
}

func (b *S3Backend) sumPrefix(ctx context.Context, prefix string) (int64, int64, error) {
	var totalBytes, totalObjects int64
	var continuation *string
	for {
		input := &awss3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			ContinuationToken: continuation,
		}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}
		out, err := b.client.ListObjectsV2(ctx, input)
		if err != nil {
			return 0, 0, err
		}
		for _, obj := range out.Contents {
			totalBytes += aws.ToInt64(obj.Size)
			totalObjects++
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuation = out.NextContinuationToken
	}
	return totalBytes, totalObjects, nil
}

// splitChunks cuts data into size-byte chunks; the final chunk holds
// the remainder. Empty input yields a single empty chunk so zero-byte
// archives still produce one part.
func splitChunks(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{data}
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// Compile-time check that S3Backend implements the Backend interface.
var _ cloudsave.Backend = (*S3Backend)(nil)
