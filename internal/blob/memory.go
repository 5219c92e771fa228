package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	meta Object
	data []byte
}

func NewMemory() *Memory {
	return &Memory{objects: map[string]memoryObject{}, now: time.Now}
}

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if key == "" {
		return Object{}, fmt.Errorf("blob: key is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, fmt.Errorf("blob: read upload: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return Object{}, fmt.Errorf("blob: short upload: got %d of %d bytes", len(data), size)
	}
	meta := Object{Key: key, Size: int64(len(data)), ContentType: contentType, StoredAt: m.now().UTC()}
	m.mu.Lock()
	m.objects[key] = memoryObject{meta: meta, data: data}
	m.mu.Unlock()
	return meta, nil
}

func (m *Memory) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, Object{}, err
	}
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, Object{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.meta, nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
