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

package action

import (
	"context"
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/sets/linkedhashset"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stagefs/internal/vfs"
)

// Options binds a collector to the store it materializes from.
// The callbacks are only used by ExportActions.
type Options struct {
	ReadContent func(ctx context.Context, path string) ([]byte, error)
	ReadStat    func(ctx context.Context, path string) (vfs.Stat, error)
}

// OptionsFor reads content and stats from a store obtained on demand.
func OptionsFor(store func(ctx context.Context) (vfs.Store, error)) Options {
	return Options{
		ReadContent: func(ctx context.Context, path string) ([]byte, error) {
			s, err := store(ctx)
			if err != nil {
				return nil, err
			}
			return s.Read(ctx, path)
		},
		ReadStat: func(ctx context.Context, path string) (vfs.Stat, error) {
			s, err := store(ctx)
			if err != nil {
				return vfs.Stat{}, err
			}
			return s.ReadStat(ctx, path)
		},
	}
}

// Collector tracks pending intents per path and compacts them as they arrive.
// A path is in at most one of toOverwrite, toCreate, toDelete, or the keys of
// toMove. toMoveRevert is the inverse of toMove.
//
// All containers keep insertion order so exports replay in staging order.
// Not safe for concurrent mutation.
type Collector struct {
	opts Options

	toOverwrite  *linkedhashset.Set
	toCreate     *linkedhashset.Set
	toDelete     *linkedhashset.Set
	toMove       *linkedhashmap.Map
	toMoveRevert *linkedhashmap.Map
}

// NewCollector returns an empty collector.
func NewCollector(opts Options) *Collector {
	return &Collector{
		opts:         opts,
		toOverwrite:  linkedhashset.New(),
		toCreate:     linkedhashset.New(),
		toDelete:     linkedhashset.New(),
		toMove:       linkedhashmap.New(),
		toMoveRevert: linkedhashmap.New(),
	}
}

// Clone returns a deep copy bound to opts. The copy shares no state with c.
func (c *Collector) Clone(opts Options) *Collector {
	clone := &Collector{
		opts:         opts,
		toOverwrite:  linkedhashset.New(c.toOverwrite.Values()...),
		toCreate:     linkedhashset.New(c.toCreate.Values()...),
		toDelete:     linkedhashset.New(c.toDelete.Values()...),
		toMove:       copyMap(c.toMove),
		toMoveRevert: copyMap(c.toMoveRevert),
	}
	return clone
}

func copyMap(m *linkedhashmap.Map) *linkedhashmap.Map {
	out := linkedhashmap.New()
	it := m.Iterator()
	for it.Next() {
		out.Put(it.Key(), it.Value())
	}
	return out
}

// Overwrite records that path now holds new content or metadata.
// A pending creation already covers it.
func (c *Collector) Overwrite(path string) {
	if c.toCreate.Contains(path) {
		return
	}
	c.toOverwrite.Add(path)
}

// Create records a new file at path. Recreating a deleted path is an overwrite.
func (c *Collector) Create(path string) {
	if c.toDelete.Contains(path) {
		// The path existed before it was deleted, so recreating it overwrites.
		c.toDelete.Remove(path)
		c.toOverwrite.Add(path)
		return
	}
	c.toCreate.Add(path)
}

// Move records a rename, collapsing it into earlier staged changes where it can.
func (c *Collector) Move(from, to string) {
	if from == to {
		return
	}

	// A pending creation simply lands at the new path.
	if c.toCreate.Contains(from) {
		c.toCreate.Remove(from)
		c.toCreate.Add(to)
		return
	}

	if c.toOverwrite.Contains(from) {
		c.toOverwrite.Remove(from)
		c.Move(from, to)
		c.toOverwrite.Add(to)
		return
	}

	if c.toDelete.Contains(to) {
		c.toDelete.Remove(to)
		c.toDelete.Add(from)
		c.toOverwrite.Add(to)
		return
	}

	// Chain A -> from -> to collapses into A -> to.
	if prev, ok := c.toMoveRevert.Get(from); ok {
		c.toMove.Remove(prev)
		c.toMoveRevert.Remove(from)
		from = prev.(string)
		if from == to {
			return
		}
	}

	c.toMove.Put(from, to)
	c.toMoveRevert.Put(to, from)
}

// Delete records the removal of path, cancelling any pending creation.
func (c *Collector) Delete(path string) {
	switch {
	case c.toCreate.Contains(path):
		c.toCreate.Remove(path)
	case c.toOverwrite.Contains(path):
		c.toOverwrite.Remove(path)
		c.toDelete.Add(path)
	default:
		if source, ok := c.toMoveRevert.Get(path); ok {
			c.toMoveRevert.Remove(path)
			c.toMove.Remove(source)
			c.toDelete.Add(source)
			return
		}
		c.toDelete.Add(path)
	}
}

func (c *Collector) WillCreate(path string) bool    { return c.toCreate.Contains(path) }
func (c *Collector) WillOverwrite(path string) bool { return c.toOverwrite.Contains(path) }
func (c *Collector) WillDelete(path string) bool    { return c.toDelete.Contains(path) }

func (c *Collector) WillMove(path string) bool {
	_, ok := c.toMove.Get(path)
	return ok
}

func (c *Collector) WillMoveTo(path, to string) bool {
	dest, ok := c.toMove.Get(path)
	return ok && dest.(string) == to
}

// Empty reports whether nothing is staged.
func (c *Collector) Empty() bool {
	return c.toOverwrite.Empty() && c.toCreate.Empty() && c.toDelete.Empty() && c.toMove.Empty()
}

// ExportActions materializes the staged intents as
// deletes, then moves, then creates, then overwrites, each in staging order.
// Content and stat reads for creates and overwrites run concurrently; the
// first failure aborts the export.
func (c *Collector) ExportActions(ctx context.Context) ([]Action, error) {
	deletes := stringValues(c.toDelete.Values())
	creates := stringValues(c.toCreate.Values())
	overwrites := stringValues(c.toOverwrite.Values())

	log.Tracef("[Collector] ExportActions: delete=%d move=%d create=%d overwrite=%d",
		len(deletes), c.toMove.Size(), len(creates), len(overwrites))

	g, gctx := errgroup.WithContext(ctx)
	created := c.materialize(gctx, g, creates, Create)
	overwritten := c.materialize(gctx, g, overwrites, Overwrite)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("export actions: %w", err)
	}

	actions := make([]Action, 0, len(deletes)+c.toMove.Size()+len(creates)+len(overwrites))
	for _, p := range deletes {
		actions = append(actions, Delete(p))
	}
	it := c.toMove.Iterator()
	for it.Next() {
		actions = append(actions, Move(it.Key().(string), it.Value().(string)))
	}
	actions = append(actions, created...)
	actions = append(actions, overwritten...)
	return actions, nil
}

// materialize schedules content and stat reads for paths on g. The returned
// slice is filled in place and is only valid after g.Wait succeeds.
func (c *Collector) materialize(ctx context.Context, g *errgroup.Group, paths []string,
	build func(string, []byte, *vfs.StatOptions) Action) []Action {
	out := make([]Action, len(paths))

	for i, p := range paths {
		out[i] = build(p, nil, nil)
		g.Go(func() error {
			data, err := c.opts.ReadContent(ctx, p)
			if err != nil {
				return err
			}
			out[i].Content = data
			return nil
		})
		g.Go(func() error {
			st, err := c.opts.ReadStat(ctx, p)
			if err != nil {
				return err
			}
			out[i].Stat = &vfs.StatOptions{Mode: st.Mode}
			return nil
		})
	}
	return out
}

func stringValues(values []interface{}) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.(string)
	}
	return out
}
