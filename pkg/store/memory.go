// Copyright 2024-2026 Aiku AI

package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store with an in-memory sorted map. It is intended
// for tests and local dry runs; it honors the same ordering semantics as
// the Pebble implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (s *MemoryStore) Set(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix []byte, opts ScanOptions, fn ScanFunc) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	if opts.Reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	for _, k := range keys {
		if opts.After != nil {
			cmp := bytes.Compare([]byte(k), opts.After)
			if opts.Reverse && cmp >= 0 {
				continue
			}
			if !opts.Reverse && cmp <= 0 {
				continue
			}
		}
		s.mu.RLock()
		value, ok := s.data[k]
		s.mu.RUnlock()
		if !ok {
			// Deleted while scanning.
			continue
		}
		keep, err := fn([]byte(k), value)
		if err != nil {
			return err
		}
		if !keep {
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
