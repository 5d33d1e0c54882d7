// Copyright 2024 LatentFS Authors
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

package cache

import (
	"context"
	"time"

	"stagefs/internal/common"
	"stagefs/internal/vfs"
)

// DefaultMaxEntries caps memory usage of a store's stat cache.
const DefaultMaxEntries = 10000

// CachedStore serves ReadStat from a StatCache and forwards everything else.
// Every mutation invalidates the paths it can affect before returning.
type CachedStore struct {
	vfs.Store
	stats *StatCache
}

var _ vfs.Store = (*CachedStore)(nil)
var _ Invalidator = (*CachedStore)(nil)

// NewCachedStore wraps s with a stat cache using the given TTL.
func NewCachedStore(s vfs.Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: s,
		stats: NewStatCache(ttl, DefaultMaxEntries),
	}
}

// StatCache exposes the cache for inspection.
func (c *CachedStore) StatCache() *StatCache {
	return c.stats
}

// Invalidate drops every cached stat.
func (c *CachedStore) Invalidate() {
	c.stats.Invalidate()
}

func (c *CachedStore) ReadStat(ctx context.Context, path string) (vfs.Stat, error) {
	path = common.CleanPath(path)
	if st, ok := c.stats.Get(path); ok {
		return st, nil
	}

	st, err := c.Store.ReadStat(ctx, path)
	if err != nil {
		return vfs.Stat{}, err
	}
	c.stats.Set(path, st)
	return st, nil
}

func (c *CachedStore) Overwrite(ctx context.Context, path string, content []byte, opts *vfs.StatOptions) error {
	path = common.CleanPath(path)
	defer c.stats.InvalidatePath(path)
	return c.Store.Overwrite(ctx, path, content, opts)
}

func (c *CachedStore) Create(ctx context.Context, path string, content []byte, opts *vfs.StatOptions) error {
	path = common.CleanPath(path)
	defer c.stats.InvalidatePathAndParent(path, common.ParentPath(path))
	return c.Store.Create(ctx, path, content, opts)
}

func (c *CachedStore) Move(ctx context.Context, from, to string) error {
	from, to = common.CleanPath(from), common.CleanPath(to)
	defer func() {
		c.stats.InvalidateRename(from, to, common.ParentPath(from), common.ParentPath(to))
		c.stats.InvalidatePrefix(from)
	}()
	return c.Store.Move(ctx, from, to)
}

func (c *CachedStore) Delete(ctx context.Context, path string) error {
	path = common.CleanPath(path)
	defer c.stats.InvalidatePathAndParent(path, common.ParentPath(path))
	return c.Store.Delete(ctx, path)
}
