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
// Package lazy builds named shared resources on first use.
package lazy

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Group holds resources of type T keyed by name. Each name is built at
// most once; concurrent first callers wait on a single build. A failed
// build is not remembered.
type Group[T any] struct {
	sf    singleflight.Group
	mu    sync.RWMutex
	built map[string]T
}

// Get returns the resource for name, calling build if it does not exist yet.
func (g *Group[T]) Get(name string, build func() (T, error)) (T, error) {
	if v, ok := g.lookup(name); ok {
		return v, nil
	}

	v, err, _ := g.sf.Do(name, func() (any, error) {
		// A build that finished between lookup and Do is reused.
		if v, ok := g.lookup(name); ok {
			return v, nil
		}
		v, err := build()
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		g.mu.Lock()
		if g.built == nil {
			g.built = make(map[string]T)
		}
		g.built[name] = v
		g.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Loaded returns the resource for name without building it.
func (g *Group[T]) Loaded(name string) (T, bool) {
	return g.lookup(name)
}

// Forget drops the resource for name so the next Get rebuilds it.
func (g *Group[T]) Forget(name string) {
	g.mu.Lock()
	delete(g.built, name)
	g.mu.Unlock()
	g.sf.Forget(name)
}

func (g *Group[T]) lookup(name string) (T, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.built[name]
	return v, ok
}
