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

package vfs

import (
	"context"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"stagefs/internal/common"
)

// Overlay layers a writable upper store over a read-only lower store.
// Reads fall through to the lower store when the upper store has no entry.
// Writes always land in the upper store (copy-on-write), and files removed
// from the lower store are hidden behind whiteouts.
//
// Overlay only moves regular files; directories are never renamed.
type Overlay struct {
	mu        sync.RWMutex
	upper     Store
	lower     Store
	whiteouts map[string]struct{}
}

// NewOverlay returns an overlay over lower with a fresh in-memory upper store.
func NewOverlay(lower Store) *Overlay {
	return NewOverlayWithUpper(NewMemoryStore(), lower)
}

// NewOverlayWithUpper returns an overlay with an explicit upper store.
func NewOverlayWithUpper(upper, lower Store) *Overlay {
	return &Overlay{
		upper:     upper,
		lower:     lower,
		whiteouts: make(map[string]struct{}),
	}
}

// Whiteouts returns the hidden lower paths in sorted order.
func (o *Overlay) Whiteouts() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	paths := make([]string, 0, len(o.whiteouts))
	for p := range o.whiteouts {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (o *Overlay) hidden(path string) bool {
	_, ok := o.whiteouts[path]
	return ok
}

// layerFor returns the store that currently serves path, or nil if none does.
// Must be called with mu held.
func (o *Overlay) layerFor(ctx context.Context, path string) (Store, *Stat, error) {
	st, err := StatIfExists(ctx, o.upper, path)
	if err != nil || st != nil {
		return o.upper, st, err
	}
	if o.hidden(path) {
		return nil, nil, nil
	}
	st, err = StatIfExists(ctx, o.lower, path)
	if err != nil || st == nil {
		return nil, nil, err
	}
	return o.lower, st, nil
}

func (o *Overlay) Read(ctx context.Context, path string) ([]byte, error) {
	path = common.CleanPath(path)

	o.mu.RLock()
	defer o.mu.RUnlock()

	layer, _, err := o.layerFor(ctx, path)
	if err != nil {
		return nil, err
	}
	if layer == nil {
		return nil, common.FileDoesNotExist(path)
	}
	return layer.Read(ctx, path)
}

func (o *Overlay) ReadStat(ctx context.Context, path string) (Stat, error) {
	path = common.CleanPath(path)

	o.mu.RLock()
	defer o.mu.RUnlock()

	_, st, err := o.layerFor(ctx, path)
	if err != nil {
		return Stat{}, err
	}
	if st == nil {
		return Stat{}, common.FileDoesNotExist(path)
	}
	return *st, nil
}

func (o *Overlay) ReadDir(ctx context.Context, path string) (DirListing, error) {
	path = common.CleanPath(path)

	o.mu.RLock()
	defer o.mu.RUnlock()

	upper, upperErr := o.upper.ReadDir(ctx, path)
	if upperErr != nil && !common.IsNotExist(upperErr) {
		return DirListing{}, upperErr
	}
	lower, lowerErr := o.lower.ReadDir(ctx, path)
	if lowerErr != nil && !common.IsNotExist(lowerErr) {
		return DirListing{}, lowerErr
	}
	if upperErr != nil && lowerErr != nil {
		return DirListing{}, common.FileDoesNotExist(path)
	}

	dirs := make(map[string]struct{})
	files := make(map[string]struct{})
	for _, d := range upper.Dirs {
		dirs[d] = struct{}{}
	}
	for _, f := range upper.Files {
		files[f] = struct{}{}
	}
	for _, d := range lower.Dirs {
		if _, isFile := files[d]; !isFile {
			dirs[d] = struct{}{}
		}
	}
	for _, f := range lower.Files {
		if _, isDir := dirs[f]; isDir || o.hidden(f) {
			continue
		}
		files[f] = struct{}{}
	}

	return DirListing{Files: sortedKeys(files), Dirs: sortedKeys(dirs)}, nil
}

func (o *Overlay) Overwrite(ctx context.Context, path string, content []byte, opts *StatOptions) error {
	path = common.CleanPath(path)

	o.mu.Lock()
	defer o.mu.Unlock()

	layer, st, err := o.layerFor(ctx, path)
	if err != nil {
		return err
	}
	if st == nil {
		return common.FileDoesNotExist(path)
	}
	if st.IsDir() {
		return common.PathIsDirectory(path)
	}
	if layer == o.upper {
		return o.upper.Overwrite(ctx, path, content, opts)
	}

	// Copy up from the lower layer before applying the change.
	if content == nil {
		if content, err = o.lower.Read(ctx, path); err != nil {
			return err
		}
	}
	log.Debugf("[Overlay] Overwrite: copy-up path=%s", path)
	return o.upper.Create(ctx, path, content, opts.MergeOver(*st))
}

func (o *Overlay) Create(ctx context.Context, path string, content []byte, opts *StatOptions) error {
	path = common.CleanPath(path)

	o.mu.Lock()
	defer o.mu.Unlock()

	_, st, err := o.layerFor(ctx, path)
	if err != nil {
		return err
	}
	if st != nil {
		if st.IsDir() {
			return common.PathIsDirectory(path)
		}
		return common.FileAlreadyExists(path)
	}

	if err := o.upper.Create(ctx, path, content, opts); err != nil {
		return err
	}
	delete(o.whiteouts, path)
	return nil
}

func (o *Overlay) Move(ctx context.Context, from, to string) error {
	from, to = common.CleanPath(from), common.CleanPath(to)

	o.mu.Lock()
	defer o.mu.Unlock()

	layer, st, err := o.layerFor(ctx, from)
	if err != nil {
		return err
	}
	if st == nil {
		return common.FileDoesNotExist(from)
	}
	if from == to {
		return nil
	}
	if st.IsDir() {
		return common.PathIsDirectory(from)
	}
	_, target, err := o.layerFor(ctx, to)
	if err != nil {
		return err
	}
	if target != nil {
		return common.FileAlreadyExists(to)
	}

	if layer == o.upper {
		// Keep upper-only moves native so the upper store can rename in place.
		if err := o.upper.Move(ctx, from, to); err != nil {
			return err
		}
	} else {
		content, err := o.lower.Read(ctx, from)
		if err != nil {
			return err
		}
		if err := o.upper.Create(ctx, to, content, st.Options()); err != nil {
			return err
		}
	}
	delete(o.whiteouts, to)
	o.whiteoutLower(ctx, from)

	log.Debugf("[Overlay] Move: from=%s to=%s", from, to)
	return nil
}

func (o *Overlay) Delete(ctx context.Context, path string) error {
	path = common.CleanPath(path)

	o.mu.Lock()
	defer o.mu.Unlock()

	layer, st, err := o.layerFor(ctx, path)
	if err != nil {
		return err
	}
	if st == nil {
		return common.FileDoesNotExist(path)
	}
	if st.IsDir() {
		return common.PathIsDirectory(path)
	}
	if layer == o.upper {
		if err := o.upper.Delete(ctx, path); err != nil {
			return err
		}
	}
	o.whiteoutLower(ctx, path)

	log.Debugf("[Overlay] Delete: path=%s", path)
	return nil
}

// whiteoutLower hides path if the lower layer still has it.
func (o *Overlay) whiteoutLower(ctx context.Context, path string) {
	if st, err := StatIfExists(ctx, o.lower, path); err == nil && st != nil {
		o.whiteouts[path] = struct{}{}
	}
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
