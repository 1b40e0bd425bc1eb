package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore — потокобезопасное хранилище в памяти для тестов.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte) (string, error) {
	locator := uuid.NewString()
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[locator] = cp
	return locator, nil
}

func (s *MemoryStore) Get(ctx context.Context, locator string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[locator]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, locator)
	return nil
}

// Len — число блобов; используется тестами для проверки каскадного удаления.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

var _ BlobStore = (*MemoryStore)(nil)
