package cloud

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"efm-go/internal/efm"
)

// MemoryOps is an in-memory object store with per-key failure injection,
// useful for testing. Safe for concurrent use.
type MemoryOps struct {
	mu          sync.RWMutex
	objects     map[string][]byte
	failUploads map[string]error
	failDeletes map[string]error
	connectErr  error
	uploadLog   []string
	deleteLog   []string
	downloadLog []string
}

var (
	_ efm.CloudOps   = (*MemoryOps)(nil)
	_ efm.CloudMover = (*MemoryOps)(nil)
)

func NewMemoryOps() *MemoryOps {
	return &MemoryOps{
		objects:     make(map[string][]byte),
		failUploads: make(map[string]error),
		failDeletes: make(map[string]error),
	}
}

// FailUpload makes every upload of key fail with err. A nil err clears it.
func (m *MemoryOps) FailUpload(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failUploads, key)
		return
	}
	m.failUploads[key] = err
}

// FailDelete makes every deletion of key fail with err. A nil err clears it.
func (m *MemoryOps) FailDelete(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failDeletes, key)
		return
	}
	m.failDeletes[key] = err
}

// FailConnection makes TestConnection return err.
func (m *MemoryOps) FailConnection(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// Put seeds an object.
func (m *MemoryOps) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// Get returns a copy of an object's content.
func (m *MemoryOps) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return append([]byte(nil), data...), ok
}

// Keys lists stored keys in sorted order.
func (m *MemoryOps) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Uploads lists the keys of successful uploads in call order.
func (m *MemoryOps) Uploads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.uploadLog...)
}

// Deletes lists the keys of successful deletions in call order.
func (m *MemoryOps) Deletes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleteLog...)
}

// Downloads lists the keys of successful downloads in call order.
func (m *MemoryOps) Downloads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.downloadLog...)
}

func (m *MemoryOps) Upload(ctx context.Context, localPath, key string, progress chan<- efm.ProgressEvent) error {
	m.mu.RLock()
	injected := m.failUploads[key]
	m.mu.RUnlock()
	if injected != nil {
		efm.Emit(ctx, progress, efm.PartUploadFailed{Key: key, Error: injected.Error()})
		return efm.NewCloudSyncError("uploading "+key, injected)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return efm.NewCloudSyncError("reading "+localPath, err)
	}

	m.mu.Lock()
	m.objects[key] = data
	m.uploadLog = append(m.uploadLog, key)
	m.mu.Unlock()

	return efm.Emit(ctx, progress, efm.PartUploaded{Key: key, Part: 1})
}

func (m *MemoryOps) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDeletes[key]; err != nil {
		return efm.NewCloudSyncError("deleting "+key, err)
	}
	delete(m.objects, key)
	m.deleteLog = append(m.deleteLog, key)
	return nil
}

func (m *MemoryOps) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryOps) Download(ctx context.Context, key, destPath string, progress chan<- efm.ProgressEvent) error {
	data, ok := m.Get(key)
	if !ok {
		return efm.NewDownloadError("object not found: "+key, nil)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return efm.NewDownloadError("creating directory for "+destPath, err)
	}
	tmp := destPath + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return efm.NewDownloadError(fmt.Sprintf("writing %s", tmp), err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return efm.NewDownloadError("renaming into "+destPath, err)
	}

	m.mu.Lock()
	m.downloadLog = append(m.downloadLog, key)
	m.mu.Unlock()

	size := int64(len(data))
	return efm.Emit(ctx, progress, efm.FileDownloadProgress{Key: key, BytesWritten: size, TotalBytes: size})
}

func (m *MemoryOps) TestConnection(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.connectErr != nil {
		return efm.NewCloudSyncError("connecting", m.connectErr)
	}
	return nil
}

func (m *MemoryOps) Move(ctx context.Context, fromKey, toKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[fromKey]
	if !ok {
		if _, done := m.objects[toKey]; done {
			return nil
		}
		return efm.NewCloudSyncError("object not found: "+fromKey, nil)
	}
	m.objects[toKey] = data
	delete(m.objects, fromKey)
	return nil
}
