package blob

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	uploadedAt  time.Time
}

// MemoryStore is an in-memory Store for tests and ephemeral setups.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Get(_ context.Context, path string) (*Object, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, ErrNotFound
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return &Object{Pathname: path, Data: data, ContentType: obj.contentType}, nil
}

func (s *MemoryStore) Put(_ context.Context, path string, data []byte, contentType string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	s.objects[path] = memoryObject{data: buf, contentType: contentType, uploadedAt: time.Now()}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []Item
	for p, obj := range s.objects {
		if strings.HasPrefix(p, prefix) {
			items = append(items, Item{Pathname: p, Size: int64(len(obj.data)), UploadedAt: obj.uploadedAt})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Pathname < items[j].Pathname })
	return items, nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, path)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
