// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package storage

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize bounds the in-process pointer tier.
const DefaultMemorySize = 4096

// MemoryStore is a bounded in-process PointerStore.
type MemoryStore struct {
	cache *lru.Cache[string, CachePointer]
	now   func() time.Time
}

// NewMemoryStore returns a store that keeps at most size pointers.
func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	cache, err := lru.New[string, CachePointer](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*CachePointer, error) {
	p, ok := m.cache.Get(key)
	if !ok {
		return nil, ErrPointerNotFound
	}
	return &p, nil
}

func (m *MemoryStore) Upsert(_ context.Context, key, url string) error {
	m.cache.Add(key, CachePointer{Key: key, URL: url, UpdatedAt: m.now().UTC()})
	return nil
}

// Len returns the number of cached pointers.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
