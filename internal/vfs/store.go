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

	"stagefs/internal/common"
)

// Store is the backing storage a staging tree reads from and writes to.
// All paths are absolute and slash separated.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	ReadDir(ctx context.Context, path string) (DirListing, error)
	// ReadStat fails with common.ErrFileDoesNotExist if nothing exists at path.
	ReadStat(ctx context.Context, path string) (Stat, error)

	// Overwrite replaces an existing file. Nil content keeps the current bytes
	// and nil opts keeps the current mode.
	Overwrite(ctx context.Context, path string, content []byte, opts *StatOptions) error
	// Create writes a new file, creating parent directories as needed.
	Create(ctx context.Context, path string, content []byte, opts *StatOptions) error
	Move(ctx context.Context, from, to string) error
	Delete(ctx context.Context, path string) error
}

// StatIfExists returns the stat for path, or nil when nothing exists there.
func StatIfExists(ctx context.Context, s Store, path string) (*Stat, error) {
	st, err := s.ReadStat(ctx, path)
	if err != nil {
		if common.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}
