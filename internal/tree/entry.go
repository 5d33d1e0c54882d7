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

package tree

import (
	"context"
	"errors"
	"io/fs"

	"stagefs/internal/common"
	"stagefs/internal/vfs"
)

// File is a lazy view of a file in a tree. Nothing is read until asked for.
type File struct {
	path string
	tree *Tree
}

func (f *File) Path() string { return f.path }

// Content reads the current bytes from the tree's store.
func (f *File) Content(ctx context.Context) ([]byte, error) {
	s, err := f.tree.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, f.path)
}

// Stat reads the current metadata from the tree's store.
func (f *File) Stat(ctx context.Context) (vfs.Stat, error) {
	s, err := f.tree.Store(ctx)
	if err != nil {
		return vfs.Stat{}, err
	}
	return s.ReadStat(ctx, f.path)
}

// FileVisitor is called for each file reached by Directory.Visit.
// Returning fs.SkipAll stops the walk without an error.
type FileVisitor func(ctx context.Context, f *File) error

// Directory is a view of a directory path. The directory need not exist.
type Directory struct {
	path string
	tree *Tree
}

func (d *Directory) Path() string { return d.path }

// Dir resolves name against this directory and returns it as a Directory.
func (d *Directory) Dir(ctx context.Context, name string) (*Directory, error) {
	return d.tree.GetDir(ctx, common.ResolvePath(d.path, name))
}

// File resolves name against this directory. It returns nil if nothing exists there.
func (d *Directory) File(ctx context.Context, name string) (*File, error) {
	return d.tree.Get(ctx, common.ResolvePath(d.path, name))
}

// List returns the direct children that pass the tree's filter.
// A directory that does not exist lists as empty.
func (d *Directory) List(ctx context.Context) ([]*File, []*Directory, error) {
	s, err := d.tree.Store(ctx)
	if err != nil {
		return nil, nil, err
	}

	listing, err := s.ReadDir(ctx, d.path)
	if err != nil {
		if common.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var files []*File
	var dirs []*Directory
	for _, p := range listing.Files {
		if d.tree.included(p, false) {
			files = append(files, d.tree.file(p))
		}
	}
	for _, p := range listing.Dirs {
		if d.tree.included(p, true) {
			dirs = append(dirs, d.tree.dir(p))
		}
	}
	return files, dirs, nil
}

// Visit walks every file below the directory depth first: the files of a
// directory come before the contents of its sub-directories.
func (d *Directory) Visit(ctx context.Context, visitor FileVisitor) error {
	err := d.visit(ctx, visitor)
	if errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func (d *Directory) visit(ctx context.Context, visitor FileVisitor) error {
	files, dirs, err := d.List(ctx)
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visitor(ctx, f); err != nil {
			return err
		}
	}
	for _, sub := range dirs {
		if err := sub.visit(ctx, visitor); err != nil {
			return err
		}
	}
	return nil
}
