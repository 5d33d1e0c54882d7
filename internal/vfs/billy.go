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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	log "github.com/sirupsen/logrus"

	"stagefs/internal/common"
)

const dirMode os.FileMode = 0o755

// BillyStore implements Store over a billy filesystem.
// Paths are interpreted relative to the filesystem root.
//
// Thread-safe: memfs keeps its tree in plain maps, so every call goes
// through mu.
type BillyStore struct {
	mu    sync.RWMutex
	fs    billy.Filesystem
	name  string
	chmod func(path string, content []byte, mode os.FileMode) error
}

// NewBillyStore wraps fs. Modes are applied with billy.Chmod when fs
// implements it, otherwise by rewriting the file.
func NewBillyStore(name string, fs billy.Filesystem) *BillyStore {
	s := &BillyStore{fs: fs, name: name}
	if ch, ok := fs.(billy.Chmod); ok {
		s.chmod = s.chmodWith(ch)
	} else {
		s.chmod = s.rewrite
	}
	return s
}

// NewMemoryStore returns an empty in-memory store.
//
// memfs.New wraps the memory filesystem in a chroot helper whose Chmod
// always fails, so modes are applied by rewriting the file instead.
func NewMemoryStore() *BillyStore {
	s := NewBillyStore("memory", memfs.New())
	s.chmod = s.rewrite
	return s
}

// NewOSStore returns a store rooted at dir on the local filesystem.
func NewOSStore(dir string) *BillyStore {
	return NewBillyStore(dir, osfs.New(dir, osfs.WithBoundOS()))
}

// Filesystem exposes the wrapped filesystem for seeding and inspection.
func (s *BillyStore) Filesystem() billy.Filesystem {
	return s.fs
}

func (s *BillyStore) String() string {
	return fmt.Sprintf("billy(%s)", s.name)
}

func (s *BillyStore) Read(ctx context.Context, path string) ([]byte, error) {
	path = common.CleanPath(path)

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, common.PathIsDirectory(path)
	}

	data, err := util.ReadFile(s.fs, path)
	if err != nil {
		return nil, translateError("read", path, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (s *BillyStore) ReadDir(ctx context.Context, path string) (DirListing, error) {
	path = common.CleanPath(path)

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stat(path)
	if err != nil {
		return DirListing{}, err
	}
	if !st.IsDir() {
		return DirListing{}, common.PathIsFile(path)
	}

	infos, err := s.fs.ReadDir(path)
	if err != nil {
		return DirListing{}, translateError("readdir", path, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	var listing DirListing
	for _, fi := range infos {
		child := common.JoinPath(path, fi.Name())
		if fi.IsDir() {
			listing.Dirs = append(listing.Dirs, child)
		} else {
			listing.Files = append(listing.Files, child)
		}
	}
	return listing, nil
}

func (s *BillyStore) ReadStat(ctx context.Context, path string) (Stat, error) {
	path = common.CleanPath(path)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stat(path)
}

func (s *BillyStore) Overwrite(ctx context.Context, path string, content []byte, opts *StatOptions) error {
	path = common.CleanPath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stat(path)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return common.PathIsDirectory(path)
	}

	log.Tracef("[Store] Overwrite: %s path=%s len=%d", s, path, len(content))
	return s.write(path, content, opts, st.Mode)
}

func (s *BillyStore) Create(ctx context.Context, path string, content []byte, opts *StatOptions) error {
	path = common.CleanPath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureAbsent(path); err != nil {
		return err
	}
	if opts == nil {
		opts = &StatOptions{Mode: DefaultFileMode}
	}
	if content == nil {
		content = []byte{}
	}

	log.Tracef("[Store] Create: %s path=%s len=%d mode=%o", s, path, len(content), opts.Mode)
	return s.write(path, content, opts, opts.Mode)
}

func (s *BillyStore) Move(ctx context.Context, from, to string) error {
	from, to = common.CleanPath(from), common.CleanPath(to)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stat(from)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if err := s.ensureAbsent(to); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(common.ParentPath(to), dirMode); err != nil {
		return translateError("mkdir", common.ParentPath(to), err)
	}

	log.Tracef("[Store] Move: %s from=%s to=%s", s, from, to)

	if st.IsDir() {
		return translateError("rename", from, s.fs.Rename(from, to))
	}

	// memfs.Rename also relocates siblings sharing the source name as a
	// prefix, so regular files are copied and then removed.
	data, err := util.ReadFile(s.fs, from)
	if err != nil {
		return translateError("read", from, err)
	}
	if err := s.write(to, data, &StatOptions{Mode: st.Mode}, st.Mode); err != nil {
		return err
	}
	return translateError("remove", from, s.fs.Remove(from))
}

func (s *BillyStore) Delete(ctx context.Context, path string) error {
	path = common.CleanPath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stat(path)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return common.PathIsDirectory(path)
	}

	log.Tracef("[Store] Delete: %s path=%s", s, path)
	return translateError("remove", path, s.fs.Remove(path))
}

// stat must be called with mu held.
func (s *BillyStore) stat(path string) (Stat, error) {
	fi, err := s.fs.Stat(path)
	if err != nil {
		return Stat{}, translateError("stat", path, err)
	}
	return StatFromFileInfo(fi), nil
}

func (s *BillyStore) ensureAbsent(path string) error {
	st, err := s.stat(path)
	if err == nil {
		if st.IsDir() {
			return common.PathIsDirectory(path)
		}
		return common.FileAlreadyExists(path)
	}
	if !common.IsNotExist(err) {
		return err
	}
	return nil
}

// write must be called with mu held. Nil content leaves the bytes in place.
func (s *BillyStore) write(path string, content []byte, opts *StatOptions, perm uint32) error {
	if err := s.fs.MkdirAll(common.ParentPath(path), dirMode); err != nil {
		return translateError("mkdir", common.ParentPath(path), err)
	}

	if opts != nil {
		return s.chmod(path, content, os.FileMode(opts.Mode))
	}
	if content == nil {
		return nil
	}
	if err := util.WriteFile(s.fs, path, content, os.FileMode(perm)); err != nil {
		return translateError("write", path, err)
	}
	return nil
}

func (s *BillyStore) chmodWith(ch billy.Chmod) func(string, []byte, os.FileMode) error {
	return func(path string, content []byte, mode os.FileMode) error {
		if content != nil {
			if err := util.WriteFile(s.fs, path, content, mode); err != nil {
				return translateError("write", path, err)
			}
		}
		return translateError("chmod", path, ch.Chmod(path, mode))
	}
}

// rewrite replaces the file at path with content under mode. memfs only
// assigns a mode when a file is created, so an existing file is removed
// first. Nil content keeps the current bytes.
func (s *BillyStore) rewrite(path string, content []byte, mode os.FileMode) error {
	if content == nil {
		data, err := util.ReadFile(s.fs, path)
		if err != nil {
			return translateError("read", path, err)
		}
		content = data
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return translateError("remove", path, err)
	}
	if err := util.WriteFile(s.fs, path, content, mode); err != nil {
		return translateError("write", path, err)
	}
	return nil
}
