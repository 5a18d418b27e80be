package blobstore

import (
	"context"
	"strings"
	"sync"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

// Memory is a process-local BlobStore used when no bucket is configured.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Save(_ context.Context, folder, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &domain.ErrValidation{Field: "file", Message: "arquivo vazio"}
	}
	key := objectKey(folder, filename)
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.objects[key] = buf
	m.mu.Unlock()
	return key, nil
}

func (m *Memory) Retrieve(_ context.Context, folder, key string) (*domain.BlobFile, error) {
	full := key
	if folder != "" && !strings.HasPrefix(key, folder+"/") {
		full = folder + "/" + key
	}
	m.mu.RLock()
	data, ok := m.objects[full]
	m.mu.RUnlock()
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "arquivo", ID: full}
	}
	return describe(full, "", data), nil
}
