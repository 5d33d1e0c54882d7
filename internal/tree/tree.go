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

// Package tree stages file mutations against a backing store, keeping a
// compacted record of what changed so trees can be branched and merged.
package tree

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"stagefs/internal/action"
	"stagefs/internal/common"
	"stagefs/internal/vfs"
)

// StoreFactory builds the backing store for a tree. Each tree and each
// branch calls it at most once, on first use.
type StoreFactory func(ctx context.Context) (vfs.Store, error)

// Filter decides whether a path shows up in directory listings.
type Filter func(path string, isDir bool) bool

// Option configures a Tree.
type Option func(*Tree)

// WithFilter hides paths rejected by f from Directory listings and visits.
func WithFilter(f Filter) Option {
	return func(t *Tree) {
		t.filter = f
	}
}

// Tree is a staging area over a lazily created store.
// Every mutation is applied to the store first and recorded after it succeeds.
//
// A Tree is meant for a single writer.
type Tree struct {
	newStore StoreFactory
	filter   Filter

	storeOnce sync.Once
	store     vfs.Store
	storeErr  error

	collector *action.Collector
}

var _ action.Exporter = (*Tree)(nil)

// New returns an empty tree over the store produced by factory.
func New(factory StoreFactory, opts ...Option) *Tree {
	t := &Tree{newStore: factory}
	for _, opt := range opts {
		opt(t)
	}
	t.collector = action.NewCollector(action.OptionsFor(t.Store))
	return t
}

// Store returns the backing store, building it on first use.
// The first result, including an error, is kept for the life of the tree.
// The factory sees ctx's values but not its cancellation.
func (t *Tree) Store(ctx context.Context) (vfs.Store, error) {
	t.storeOnce.Do(func() {
		t.store, t.storeErr = t.newStore(context.WithoutCancel(ctx))
		if t.storeErr != nil {
			t.storeErr = fmt.Errorf("create store: %w", t.storeErr)
		}
	})
	return t.store, t.storeErr
}

// Branch returns an independent tree with a copy of the staged changes.
// The branch builds its own store from the same factory.
func (t *Tree) Branch() *Tree {
	b := &Tree{newStore: t.newStore, filter: t.filter}
	b.collector = t.collector.Clone(action.OptionsFor(b.Store))
	return b
}

// ExportActions materializes the staged changes.
func (t *Tree) ExportActions(ctx context.Context) ([]action.Action, error) {
	return t.collector.ExportActions(ctx)
}

// Get returns the file at path, or nil if nothing exists there.
func (t *Tree) Get(ctx context.Context, path string) (*File, error) {
	path = common.CleanPath(path)
	st, err := t.statIfExists(ctx, path)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	if st.IsDir() {
		return nil, common.PathIsDirectory(path)
	}
	return t.file(path), nil
}

// GetDir returns a view of the directory at path, which need not exist.
func (t *Tree) GetDir(ctx context.Context, path string) (*Directory, error) {
	path = common.CleanPath(path)
	st, err := t.statIfExists(ctx, path)
	if err != nil {
		return nil, err
	}
	if st != nil && st.IsFile() {
		return nil, common.PathIsFile(path)
	}
	return t.dir(path), nil
}

// Overwrite replaces an existing file. stat fields are applied over the
// current stat; nil content keeps the current bytes.
func (t *Tree) Overwrite(ctx context.Context, path string, content []byte, stat *vfs.StatOptions) error {
	path = common.CleanPath(path)
	origin, err := t.statIfExists(ctx, path)
	if err != nil {
		return err
	}
	if origin == nil {
		return common.FileDoesNotExist(path)
	}

	s, err := t.Store(ctx)
	if err != nil {
		return err
	}
	if err := s.Overwrite(ctx, path, content, stat.MergeOver(*origin)); err != nil {
		return err
	}

	log.Debugf("[Tree] Overwrite: path=%s len=%d", path, len(content))
	t.collector.Overwrite(path)
	return nil
}

// Create writes a new file. The store rejects paths that already exist.
func (t *Tree) Create(ctx context.Context, path string, content []byte, stat *vfs.StatOptions) error {
	path = common.CleanPath(path)
	s, err := t.Store(ctx)
	if err != nil {
		return err
	}
	if content == nil {
		content = []byte{}
	}
	if err := s.Create(ctx, path, content, stat); err != nil {
		return err
	}

	log.Debugf("[Tree] Create: path=%s len=%d", path, len(content))
	t.collector.Create(path)
	return nil
}

func (t *Tree) Delete(ctx context.Context, path string) error {
	path = common.CleanPath(path)
	s, err := t.Store(ctx)
	if err != nil {
		return err
	}
	if err := s.Delete(ctx, path); err != nil {
		return err
	}

	log.Debugf("[Tree] Delete: path=%s", path)
	t.collector.Delete(path)
	return nil
}

func (t *Tree) Move(ctx context.Context, from, to string) error {
	from, to = common.CleanPath(from), common.CleanPath(to)
	s, err := t.Store(ctx)
	if err != nil {
		return err
	}
	if err := s.Move(ctx, from, to); err != nil {
		return err
	}

	log.Debugf("[Tree] Move: from=%s to=%s", from, to)
	t.collector.Move(from, to)
	return nil
}

// Staged reports whether the tree has any pending changes.
func (t *Tree) Staged() bool {
	return !t.collector.Empty()
}

func (t *Tree) statIfExists(ctx context.Context, path string) (*vfs.Stat, error) {
	s, err := t.Store(ctx)
	if err != nil {
		return nil, err
	}
	return vfs.StatIfExists(ctx, s, path)
}

func (t *Tree) file(path string) *File {
	return &File{path: path, tree: t}
}

func (t *Tree) dir(path string) *Directory {
	return &Directory{path: path, tree: t}
}

func (t *Tree) included(path string, isDir bool) bool {
	return t.filter == nil || t.filter(path, isDir)
}
