package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloudsave/internal/archive"
	"cloudsave/internal/cloudsave"
	"cloudsave/internal/gamemap"
)

// COSBackend stores save archives in a Tencent COS bucket over its REST
// API with hand-rolled request signing. Object keys follow
//
//	saves/<user>/<appid>_<yyyyMMdd_HHmmss>_<uuid>.zip
//
// which must match previously uploaded data exactly.
type COSBackend struct {
	client    *http.Client
	secretID  string
	secretKey string
	bucket    string
	region    string
	logger    cloudsave.Logger
	clock     cloudsave.Clock
	idgen     cloudsave.IDGenerator

	// endpoint overrides the https://<host> base URL in tests.
	endpoint string
}

// NewCOSBackend creates a COS backend for the given bucket and region.
func NewCOSBackend(secretID, secretKey, bucket, region string, logger cloudsave.Logger, clock cloudsave.Clock, idgen cloudsave.IDGenerator) *COSBackend {
	return &COSBackend{
		client:    &http.Client{Timeout: 5 * time.Minute},
		secretID:  secretID,
		secretKey: secretKey,
		bucket:    bucket,
		region:    region,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// host returns the bucket-region virtual host the signature covers.
func (c *COSBackend) host() string {
	return fmt.Sprintf("%s.cos.%s.myqcloud.com", c.bucket, c.region)
}

func (c *COSBackend) baseURL() string {
	if c.endpoint != "" {
		return c.endpoint
	}
	return "https://" + c.host()
}

// newSignedRequest builds a request with Authorization and an explicit
// Host header. The Host header must match the virtual host exactly
// because the signature covers it.
func (c *COSBackend) newSignedRequest(ctx context.Context, method, objectKey, rawQuery string, body []byte) (*http.Request, error) {
	auth, err := buildAuthorization(c.secretID, c.secretKey, method, objectKey, rawQuery, c.host(), c.clock.Now())
	if err != nil {
		return nil, err
	}

	u := c.baseURL() + "/" + strings.TrimPrefix(objectKey, "/")
	if rawQuery != "" {
		u += "?" + rawQuery
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Host", c.host())
	req.Host = c.host()
	return req, nil
}

// do executes the request and converts non-2xx responses into protocol
// errors carrying status and body.
func (c *COSBackend) do(req *http.Request, action string) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: HTTP %d - %s", action, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// Upload compresses the save, computes its SHA-256, and PUTs it with
// the digest attached as object metadata.
func (c *COSBackend) Upload(ctx context.Context, save *cloudsave.GameSave, userID string) (*cloudsave.SaveMetadata, error) {
	data, err := archive.Pack(save.SavePath)
	if err != nil {
		return nil, fmt.Errorf("packing save: %w", err)
	}
	checksum := cloudsave.SHA256Hex(data)

	now := c.clock.Now().UTC()
	objectKey := fmt.Sprintf("saves/%s/%d_%s_%s.zip",
		cloudsave.SanitizeUserID(userID), save.AppID, now.Format("20060102_150405"), c.idgen.New())

	req, err := c.newSignedRequest(ctx, http.MethodPut, objectKey, "", data)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	req.Header.Set("x-cos-meta-sha256", checksum)

	if _, err := c.do(req, "uploading to cos"); err != nil {
		return nil, err
	}

	return &cloudsave.SaveMetadata{
		GameID:     strconv.FormatUint(uint64(save.AppID), 10),
		Timestamp:  now,
		SizeBytes:  int64(len(data)),
		Checksum:   checksum,
		Compressed: true,
		ObjectKey:  objectKey,
	}, nil
}

// Download fetches the archive, verifies its digest leniently, and
// materializes it at targetPath.
func (c *COSBackend) Download(ctx context.Context, meta *cloudsave.SaveMetadata, targetPath string) error {
	req, err := c.newSignedRequest(ctx, http.MethodGet, meta.ObjectKey, "", nil)
	if err != nil {
		return err
	}
	data, err := c.do(req, "downloading from cos")
	if err != nil {
		return err
	}

	cloudsave.VerifyChecksum(data, meta.Checksum, c.logger)
	return materialize(data, targetPath)
}

// List returns the user's snapshots newest first, resolving legacy
// display-name keys through the game mapping.
func (c *COSBackend) List(ctx context.Context, userID string, gameID string) ([]*cloudsave.SaveMetadata, error) {
	prefix := fmt.Sprintf("saves/%s/", cloudsave.SanitizeUserID(userID))
	rawQuery := "prefix=" + queryEscape(prefix)

	req, err := c.newSignedRequest(ctx, http.MethodGet, "", rawQuery, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, "listing cos saves")
	if err != nil {
		return nil, err
	}

	saves := parseListing(string(body), c.clock.Now(), c.logger)
	for _, s := range saves {
		s.GameID = gamemap.ExtractGameID(s.ObjectKey)
	}

	if gameID != "" {
		aliases := gamemap.AliasesFor(gameID)
		filtered := saves[:0]
		for _, s := range saves {
			for _, a := range aliases {
				if s.GameID == a {
					filtered = append(filtered, s)
					break
				}
			}
		}
		saves = filtered
	}

	sortNewestFirst(saves)
	return saves, nil
}

// Delete removes the snapshot's object.
func (c *COSBackend) Delete(ctx context.Context, meta *cloudsave.SaveMetadata) error {
	req, err := c.newSignedRequest(ctx, http.MethodDelete, meta.ObjectKey, "", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, "deleting from cos")
	return err
}

// ResumeUpload acknowledges a chunk at the given offset. COS single-PUT
// uploads have no server-side session, so this only reports partial
// progress for the caller's bookkeeping.
func (c *COSBackend) ResumeUpload(_ context.Context, _ string, offset int64, chunk []byte) (*cloudsave.UploadProgress, error) {
	return &cloudsave.UploadProgress{
		BytesUploaded: offset + int64(len(chunk)),
		TotalBytes:    offset + int64(len(chunk)),
		Checksum:      cloudsave.SHA256Hex(chunk),
	}, nil
}

// TestConnection checks bucket reachability. With credentials a signed
// listing is attempted; 404 still proves the bucket answered. Without
// credentials only plain connectivity is checked.
func (c *COSBackend) TestConnection(ctx context.Context) error {
	if c.secretID == "" || c.secretKey == "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL()+"/", nil)
		if err != nil {
			return err
		}
		req.Host = c.host()
		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("connecting to cos: %w", err)
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode < 300, resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
			return nil
		default:
			return fmt.Errorf("bucket not reachable: HTTP %d", resp.StatusCode)
		}
	}

	req, err := c.newSignedRequest(ctx, http.MethodGet, "", "", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to cos: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode < 300, resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("access denied, check credentials and bucket permissions")
	default:
		return fmt.Errorf("bucket access failed: HTTP %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// GetStorageInfo sums the user's prefix listing.
func (c *COSBackend) GetStorageInfo(ctx context.Context, userID string) (*cloudsave.StorageInfo, error) {
	prefix := fmt.Sprintf("saves/%s/", cloudsave.SanitizeUserID(userID))
	rawQuery := "prefix=" + queryEscape(prefix)

	req, err := c.newSignedRequest(ctx, http.MethodGet, "", rawQuery, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, "getting cos storage info")
	if err != nil {
		return nil, err
	}

	usedBytes, fileCount := parseUsage(string(body))
	return &cloudsave.StorageInfo{
		UsedBytes: usedBytes,
		FileCount: fileCount,
	}, nil
}

// GetBucketStorageInfo sums the whole bucket listing.
func (c *COSBackend) GetBucketStorageInfo(ctx context.Context) (int64, int64, error) {
	req, err := c.newSignedRequest(ctx, http.MethodGet, "", "", nil)
	if err != nil {
		return 0, 0, err
	}
	body, err := c.do(req, "getting cos bucket info")
	if err != nil {
		return 0, 0, err
	}

	totalBytes, totalObjects := parseUsage(string(body))
	return totalBytes, totalObjects, nil
}

// sortNewestFirst orders snapshots by timestamp descending.
func sortNewestFirst(saves []*cloudsave.SaveMetadata) {
	sort.SliceStable(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
}

// Compile-time check that COSBackend implements the Backend interface.
var _ cloudsave.Backend = (*COSBackend)(nil)
