package objectstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/lectern-ai/lectern/internal/core"
)

// MemoryStore is an in-process ObjectClient for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte // bucket + "/" + key
}

var _ core.ObjectClient = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read upload body: %w", err)
	}
	m.mu.Lock()
	m.blobs[bucket+"/"+key] = body
	m.mu.Unlock()
	return "memory://" + bucket + "/" + key, nil
}

func (m *MemoryStore) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	body, ok := m.blobs[bucket+"/"+key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	return cp, nil
}

func (m *MemoryStore) DeleteFile(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.blobs, bucket+"/"+key)
	m.mu.Unlock()
	return nil
}
