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
	"errors"

	"github.com/fawa-io/ttscache/pkg/fwlog"
)

// TieredStore layers PointerStores from fastest to most durable.
type TieredStore struct {
	tiers []PointerStore
}

// NewTieredStore returns a store that reads tiers in order.
func NewTieredStore(tiers ...PointerStore) *TieredStore {
	return &TieredStore{tiers: tiers}
}

// Get returns the first hit and copies it into the faster tiers that missed.
// A tier error is returned only when no tier has the pointer.
func (t *TieredStore) Get(ctx context.Context, key string) (*CachePointer, error) {
	var lastErr error
	for i, tier := range t.tiers {
		p, err := tier.Get(ctx, key)
		if err == nil {
			for _, faster := range t.tiers[:i] {
				if err := faster.Upsert(ctx, key, p.URL); err != nil {
					fwlog.Debugf("failed to backfill pointer %s: %v", key, err)
				}
			}
			return p, nil
		}
		if !errors.Is(err, ErrPointerNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrPointerNotFound
}

// Upsert writes every tier, durable first. It fails only when no tier
// accepted the pointer, returning the last error seen.
func (t *TieredStore) Upsert(ctx context.Context, key, url string) error {
	var lastErr error
	written := 0
	for i := len(t.tiers) - 1; i >= 0; i-- {
		if err := t.tiers[i].Upsert(ctx, key, url); err != nil {
			lastErr = err
			continue
		}
		written++
	}
	if written == 0 {
		return lastErr
	}
	return nil
}
