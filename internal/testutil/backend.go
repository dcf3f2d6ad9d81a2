package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloudsave/internal/cloudsave"
)

// MockBackend is an in-memory cloudsave.Backend for tests. It records
// every call and serves snapshots from a seeded list.
type MockBackend struct {
	mu sync.Mutex

	// Saves is returned by List, filtered by gameID when non-empty.
	Saves []*cloudsave.SaveMetadata

	// Errors to inject per operation; nil means success.
	UploadErr     error
	DownloadErr   error
	ListErr       error
	DeleteErr     error
	ConnectionErr error

	// BucketInfoErr makes GetBucketStorageInfo fail while the per-user
	// call still succeeds.
	BucketInfoErr error

	// Call log, e.g. "Upload(105600)", "Download(saves/u/x.zip)".
	Calls []string

	// UploadTimestamp stamps metadata returned by Upload.
	UploadTimestamp time.Time
}

// NewMockBackend creates an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{UploadTimestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (m *MockBackend) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// CallLog returns a copy of the recorded calls.
func (m *MockBackend) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.Calls...)
}

func (m *MockBackend) Upload(_ context.Context, save *cloudsave.GameSave, userID string) (*cloudsave.SaveMetadata, error) {
	m.record(fmt.Sprintf("Upload(%d)", save.AppID))
	if m.UploadErr != nil {
		return nil, m.UploadErr
	}
	meta := &cloudsave.SaveMetadata{
		GameID:     fmt.Sprintf("%d", save.AppID),
		Timestamp:  m.UploadTimestamp,
		SizeBytes:  1,
		Checksum:   SHA256Hex([]byte(save.SavePath)),
		Compressed: true,
		ObjectKey:  fmt.Sprintf("saves/%s/%d_%s.zip", userID, save.AppID, save.Name),
	}
	m.mu.Lock()
	m.Saves = append([]*cloudsave.SaveMetadata{meta}, m.Saves...)
	m.mu.Unlock()
	return meta, nil
}

func (m *MockBackend) Download(_ context.Context, meta *cloudsave.SaveMetadata, targetPath string) error {
	m.record(fmt.Sprintf("Download(%s)", meta.ObjectKey))
	return m.DownloadErr
}

func (m *MockBackend) List(_ context.Context, _ string, gameID string) ([]*cloudsave.SaveMetadata, error) {
	m.record(fmt.Sprintf("List(%s)", gameID))
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*cloudsave.SaveMetadata
	for _, s := range m.Saves {
		if gameID == "" || s.GameID == gameID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockBackend) Delete(_ context.Context, meta *cloudsave.SaveMetadata) error {
	m.record(fmt.Sprintf("Delete(%s)", meta.ObjectKey))
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.Saves {
		if s.ObjectKey == meta.ObjectKey {
			m.Saves = append(m.Saves[:i], m.Saves[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockBackend) ResumeUpload(_ context.Context, uploadID string, offset int64, chunk []byte) (*cloudsave.UploadProgress, error) {
	m.record(fmt.Sprintf("ResumeUpload(%s)", uploadID))
	return &cloudsave.UploadProgress{
		BytesUploaded: offset + int64(len(chunk)),
		TotalBytes:    offset + int64(len(chunk)),
		Checksum:      SHA256Hex(chunk),
	}, nil
}

func (m *MockBackend) TestConnection(_ context.Context) error {
	m.record("TestConnection()")
	return m.ConnectionErr
}

func (m *MockBackend) GetStorageInfo(_ context.Context, userID string) (*cloudsave.StorageInfo, error) {
	m.record(fmt.Sprintf("GetStorageInfo(%s)", userID))
	m.mu.Lock()
	defer m.mu.Unlock()
	info := &cloudsave.StorageInfo{FileCount: int64(len(m.Saves))}
	for _, s := range m.Saves {
		info.UsedBytes += s.SizeBytes
	}
	return info, nil
}

func (m *MockBackend) GetBucketStorageInfo(_ context.Context) (int64, int64, error) {
	m.record("GetBucketStorageInfo()")
	if m.BucketInfoErr != nil {
		return 0, 0, m.BucketInfoErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var bytes int64
	for _, s := range m.Saves {
		bytes += s.SizeBytes
	}
	return bytes, int64(len(m.Saves)), nil
}

// Compile-time check that MockBackend implements the Backend interface.
var _ cloudsave.Backend = (*MockBackend)(nil)
