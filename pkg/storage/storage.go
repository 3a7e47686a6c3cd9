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

// Package storage holds the pointer records that map cache keys to the
// public URLs of stored objects.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrPointerNotFound is returned by Get when no pointer exists for a key.
var ErrPointerNotFound = errors.New("pointer not found")

// CachePointer records where the object for a cache key lives.
// It is overwritten on every resolution and never expires.
type CachePointer struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PointerStore persists CachePointers.
type PointerStore interface {
	// Get returns the pointer for key, or ErrPointerNotFound.
	Get(ctx context.Context, key string) (*CachePointer, error)

	// Upsert creates or overwrites the pointer for key.
	Upsert(ctx context.Context, key, url string) error
}
