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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fawa-io/ttscache/pkg/fwlog"
)

// DefaultKeyPrefix namespaces pointer records in a shared Redis.
const DefaultKeyPrefix = "ttscache:pointer:"

// Connection defaults. Pointer lookups are best-effort, so an unreachable
// server should fail fast rather than stall a resolution.
const (
	DefaultDialTimeout = 2 * time.Second
	DefaultIOTimeout   = time.Second
)

// DragonflyOptions configures the Redis/Dragonfly connection.
type DragonflyOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// DialTimeout and IOTimeout default to DefaultDialTimeout and
	// DefaultIOTimeout when zero.
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// DragonflyStore implements PointerStore on Dragonfly/Redis.
type DragonflyStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewDragonflyStore creates a store for the server in opts. Connections are
// opened lazily on first use, so an unreachable server surfaces as errors
// from Get and Upsert rather than here.
func NewDragonflyStore(opts DragonflyOptions) *DragonflyStore {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = DefaultIOTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.IOTimeout,
		WriteTimeout: opts.IOTimeout,
		MaxRetries:   1,
	})
	return NewDragonflyStoreWithClient(client, opts.KeyPrefix)
}

// NewDragonflyStoreWithClient wraps an existing client.
// An empty prefix means DefaultKeyPrefix.
func NewDragonflyStoreWithClient(client redis.Cmdable, prefix string) *DragonflyStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &DragonflyStore{client: client, prefix: prefix, now: time.Now}
}

// Get implements PointerStore.
func (d *DragonflyStore) Get(ctx context.Context, key string) (*CachePointer, error) {
	val, err := d.client.Get(ctx, d.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPointerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pointer %s: %w", key, err)
	}

	var p CachePointer
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("failed to decode pointer %s: %w", key, err)
	}
	return &p, nil
}

// Upsert implements PointerStore. Records are stored without a TTL.
func (d *DragonflyStore) Upsert(ctx context.Context, key, url string) error {
	data, err := json.Marshal(&CachePointer{Key: key, URL: url, UpdatedAt: d.now().UTC()})
	if err != nil {
		return err
	}
	if err := d.client.Set(ctx, d.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save pointer %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (d *DragonflyStore) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping dragonfly: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (d *DragonflyStore) Close() error {
	switch client := d.client.(type) {
	case *redis.Client:
		fwlog.Info("Closing Redis/Dragonfly connection...")
		return client.Close()
	case *redis.ClusterClient:
		fwlog.Info("Closing Redis/Dragonfly cluster connection...")
		return client.Close()
	}
	return nil
}
