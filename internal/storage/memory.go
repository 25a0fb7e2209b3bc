package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is an in-process blob store for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
	}
}

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[objectPath(bucket, key)]
	if !ok {
		return Object{}, fmt.Errorf("get object %s/%s: %w", bucket, key, ErrNotFound)
	}
	return cloneObject(obj), nil
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	return s.PutObject(ctx, bucket, key, Object{Data: data, ContentType: contentType})
}

// PutObject stores obj including its metadata.
func (s *MemoryStore) PutObject(ctx context.Context, bucket, key string, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectPath(bucket, key)] = cloneObject(obj)
	return nil
}

// Keys lists the object keys held in bucket, sorted.
func (s *MemoryStore) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := bucket + "/"
	var keys []string
	for path := range s.objects {
		if key, ok := strings.CutPrefix(path, prefix); ok {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

func objectPath(bucket, key string) string {
	return bucket + "/" + key
}

func cloneObject(obj Object) Object {
	return Object{
		Data:        slices.Clone(obj.Data),
		ContentType: obj.ContentType,
		Metadata:    maps.Clone(obj.Metadata),
	}
}
