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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefs/internal/common"
)

// testOverlay returns an overlay whose lower layer holds the given files.
func testOverlay(t *testing.T, files map[string]string) (*Overlay, *BillyStore) {
	t.Helper()
	lower := NewMemoryStore()
	seed(t, lower, files)
	return NewOverlay(lower), lower
}

func readString(t *testing.T, s Store, path string) string {
	t.Helper()
	data, err := s.Read(context.Background(), path)
	require.NoError(t, err)
	return string(data)
}

func TestOverlay_ReadFallsThrough(t *testing.T) {
	t.Parallel()

	o, _ := testOverlay(t, map[string]string{"/a": "lower"})
	assert.Equal(t, "lower", readString(t, o, "/a"))

	_, err := o.Read(context.Background(), "/missing")
	assert.ErrorIs(t, err, common.ErrFileDoesNotExist)
}

func TestOverlay_OverwriteCopiesUp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, lower := testOverlay(t, map[string]string{"/a": "lower"})

	t.Run("content", func(t *testing.T) {
		require.NoError(t, o.Overwrite(ctx, "/a", []byte("upper"), nil))
		assert.Equal(t, "upper", readString(t, o, "/a"))
		assert.Equal(t, "lower", readString(t, lower, "/a"), "lower layer is never written")
	})

	t.Run("mode only keeps content", func(t *testing.T) {
		o2, _ := testOverlay(t, map[string]string{"/b": "keep"})
		require.NoError(t, o2.Overwrite(ctx, "/b", nil, &StatOptions{Mode: 0o400}))
		assert.Equal(t, "keep", readString(t, o2, "/b"))

		st, err := o2.ReadStat(ctx, "/b")
		require.NoError(t, err)
		assert.Equal(t, uint32(0o400), st.Mode)
	})

	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, o.Overwrite(ctx, "/none", nil, nil), common.ErrFileDoesNotExist)
	})
}

func TestOverlay_DeleteWhiteout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, lower := testOverlay(t, map[string]string{"/dir/a": "a", "/dir/b": "b"})

	require.NoError(t, o.Delete(ctx, "/dir/a"))

	_, err := o.ReadStat(ctx, "/dir/a")
	assert.ErrorIs(t, err, common.ErrFileDoesNotExist)
	assert.Equal(t, "a", readString(t, lower, "/dir/a"))
	assert.Equal(t, []string{"/dir/a"}, o.Whiteouts())

	listing, err := o.ReadDir(ctx, "/dir")
	require.NoError(t, err)
	assert.Equal(t, []string{"/dir/b"}, listing.Files)

	assert.ErrorIs(t, o.Delete(ctx, "/dir/a"), common.ErrFileDoesNotExist)

	t.Run("create over whiteout", func(t *testing.T) {
		require.NoError(t, o.Create(ctx, "/dir/a", []byte("new"), nil))
		assert.Equal(t, "new", readString(t, o, "/dir/a"))
		assert.Empty(t, o.Whiteouts())
	})
}

func TestOverlay_Move(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, _ := testOverlay(t, map[string]string{"/c": "c", "/d": "d"})

	require.NoError(t, o.Move(ctx, "/c", "/c2"))
	assert.Equal(t, "c", readString(t, o, "/c2"))
	_, err := o.ReadStat(ctx, "/c")
	assert.ErrorIs(t, err, common.ErrFileDoesNotExist)

	assert.ErrorIs(t, o.Move(ctx, "/c", "/x"), common.ErrFileDoesNotExist)
	assert.ErrorIs(t, o.Move(ctx, "/d", "/c2"), common.ErrFileAlreadyExists)
	assert.NoError(t, o.Move(ctx, "/d", "/d"))

	t.Run("upper only file", func(t *testing.T) {
		require.NoError(t, o.Create(ctx, "/new", []byte("n"), nil))
		require.NoError(t, o.Move(ctx, "/new", "/dir/new"))
		assert.Equal(t, "n", readString(t, o, "/dir/new"))
		assert.NotContains(t, o.Whiteouts(), "/new")
	})
}

func TestOverlay_CreateConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, _ := testOverlay(t, map[string]string{"/a": "a", "/dir/x": "x"})

	assert.ErrorIs(t, o.Create(ctx, "/a", []byte("b"), nil), common.ErrFileAlreadyExists)
	assert.ErrorIs(t, o.Create(ctx, "/dir", []byte("b"), nil), common.ErrPathIsDirectory)
}

func TestOverlay_ReadDirMergesLayers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, _ := testOverlay(t, map[string]string{"/r/lower.txt": "l", "/r/sub/x": "x"})
	require.NoError(t, o.Create(ctx, "/r/upper.txt", []byte("u"), nil))
	require.NoError(t, o.Create(ctx, "/r/newdir/y", []byte("y"), nil))

	listing, err := o.ReadDir(ctx, "/r")
	require.NoError(t, err)
	assert.Equal(t, []string{"/r/lower.txt", "/r/upper.txt"}, listing.Files)
	assert.Equal(t, []string{"/r/newdir", "/r/sub"}, listing.Dirs)

	_, err = o.ReadDir(ctx, "/absent")
	assert.ErrorIs(t, err, common.ErrFileDoesNotExist)
}
