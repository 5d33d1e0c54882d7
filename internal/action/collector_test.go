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
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefs/internal/vfs"
)

var (
	fakeContent = []byte("fake content")
	fakeMode    = uint32(0o755)
)

// fakeOptions answers every read with the same content and mode.
func fakeOptions() Options {
	return Options{
		ReadContent: func(ctx context.Context, path string) ([]byte, error) {
			return fakeContent, nil
		},
		ReadStat: func(ctx context.Context, path string) (vfs.Stat, error) {
			return vfs.Stat{Mode: fakeMode, Type: vfs.FileTypeRegularFile}, nil
		},
	}
}

func fakeStat() *vfs.StatOptions {
	return &vfs.StatOptions{Mode: fakeMode}
}

func export(t *testing.T, c *Collector) []Action {
	t.Helper()
	actions, err := c.ExportActions(context.Background())
	require.NoError(t, err)
	return actions
}

func TestCollector_SingleOperations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stage func(c *Collector)
		want  []Action
	}{
		{"overwrite", func(c *Collector) { c.Overwrite("/a") }, []Action{Overwrite("/a", fakeContent, fakeStat())}},
		{"create", func(c *Collector) { c.Create("/a") }, []Action{Create("/a", fakeContent, fakeStat())}},
		{"delete", func(c *Collector) { c.Delete("/a") }, []Action{Delete("/a")}},
		{"move", func(c *Collector) { c.Move("/a", "/b") }, []Action{Move("/a", "/b")}},
		{"nothing", func(c *Collector) {}, []Action{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewCollector(fakeOptions())
			tt.stage(c)
			assert.Equal(t, tt.want, export(t, c))
		})
	}
}

func TestCollector_Compaction(t *testing.T) {
	t.Parallel()

	t.Run("create then delete cancels", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Create("/a")
		c.Delete("/a")
		assert.False(t, c.WillCreate("/a"))
		assert.False(t, c.WillDelete("/a"))
		assert.Empty(t, export(t, c))
		assert.True(t, c.Empty())
	})

	t.Run("overwrite then delete keeps only the delete", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Overwrite("/a")
		c.Delete("/a")
		assert.True(t, c.WillDelete("/a"))
		assert.False(t, c.WillOverwrite("/a"))
		assert.Equal(t, []Action{Delete("/a")}, export(t, c))
	})

	t.Run("overwrite after create stays a create", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Create("/a")
		c.Overwrite("/a")
		assert.False(t, c.WillOverwrite("/a"))
		assert.Equal(t, []Action{Create("/a", fakeContent, fakeStat())}, export(t, c))
	})

	t.Run("create after delete becomes overwrite", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Delete("/a")
		c.Create("/a")
		assert.False(t, c.WillDelete("/a"))
		assert.True(t, c.WillOverwrite("/a"))
		assert.Equal(t, []Action{Overwrite("/a", fakeContent, fakeStat())}, export(t, c))
	})

	t.Run("move chain collapses", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Move("/a", "/b")
		c.Move("/b", "/c")
		assert.True(t, c.WillMove("/a"))
		assert.True(t, c.WillMoveTo("/a", "/c"))
		assert.False(t, c.WillMove("/b"))
		assert.Equal(t, []Action{Move("/a", "/c")}, export(t, c))
	})

	t.Run("round trip cancels", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Move("/a", "/b")
		c.Move("/b", "/a")
		assert.False(t, c.WillMove("/a"))
		assert.False(t, c.WillMove("/b"))
		assert.Empty(t, export(t, c))
	})

	t.Run("self move is a no-op", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Overwrite("/a")
		c.Move("/a", "/a")
		assert.True(t, c.WillOverwrite("/a"))
		assert.False(t, c.WillMove("/a"))
	})

	t.Run("moving a created file relabels the creation", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Create("/a")
		c.Move("/a", "/b")
		assert.False(t, c.WillCreate("/a"))
		assert.True(t, c.WillCreate("/b"))
		assert.False(t, c.WillMove("/a"))
		assert.Equal(t, []Action{Create("/b", fakeContent, fakeStat())}, export(t, c))
	})

	t.Run("moving an overwritten file moves then overwrites", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Overwrite("/a")
		c.Move("/a", "/b")
		assert.False(t, c.WillOverwrite("/a"))
		assert.True(t, c.WillOverwrite("/b"))
		assert.Equal(t, []Action{Move("/a", "/b"), Overwrite("/b", fakeContent, fakeStat())}, export(t, c))
	})

	t.Run("moving onto a deleted path", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Delete("/b")
		c.Move("/a", "/b")
		assert.True(t, c.WillDelete("/a"))
		assert.False(t, c.WillDelete("/b"))
		assert.True(t, c.WillOverwrite("/b"))
		assert.False(t, c.WillMove("/a"))
		assert.Equal(t, []Action{Delete("/a"), Overwrite("/b", fakeContent, fakeStat())}, export(t, c))
	})

	t.Run("deleting a move destination deletes the source", func(t *testing.T) {
		t.Parallel()
		c := NewCollector(fakeOptions())
		c.Move("/a", "/b")
		c.Delete("/b")
		assert.False(t, c.WillMove("/a"))
		assert.True(t, c.WillDelete("/a"))
		assert.False(t, c.WillDelete("/b"))
		assert.Equal(t, []Action{Delete("/a")}, export(t, c))
	})
}

func TestCollector_ExportOrder(t *testing.T) {
	t.Parallel()

	c := NewCollector(fakeOptions())
	c.Overwrite("/o1")
	c.Create("/c1")
	c.Move("/m1", "/m2")
	c.Delete("/d1")
	c.Overwrite("/o2")
	c.Delete("/d2")
	c.Create("/c2")
	c.Move("/m3", "/m4")

	assert.Equal(t, []Action{
		Delete("/d1"),
		Delete("/d2"),
		Move("/m1", "/m2"),
		Move("/m3", "/m4"),
		Create("/c1", fakeContent, fakeStat()),
		Create("/c2", fakeContent, fakeStat()),
		Overwrite("/o1", fakeContent, fakeStat()),
		Overwrite("/o2", fakeContent, fakeStat()),
	}, export(t, c))
}

func TestCollector_ExportIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewCollector(fakeOptions())
	c.Create("/a")
	c.Delete("/b")
	assert.Equal(t, export(t, c), export(t, c))
}

func TestCollector_ExportReadsEveryPath(t *testing.T) {
	t.Parallel()

	var contentReads, statReads atomic.Int32
	c := NewCollector(Options{
		ReadContent: func(ctx context.Context, path string) ([]byte, error) {
			contentReads.Add(1)
			return []byte(path), nil
		},
		ReadStat: func(ctx context.Context, path string) (vfs.Stat, error) {
			statReads.Add(1)
			return vfs.Stat{Mode: 0o600}, nil
		},
	})
	c.Create("/x")
	c.Overwrite("/y")
	c.Delete("/z")
	c.Move("/m", "/n")

	actions := export(t, c)
	require.Len(t, actions, 4)
	assert.Equal(t, int32(2), contentReads.Load())
	assert.Equal(t, int32(2), statReads.Load())
	assert.Equal(t, "/x", string(actions[2].Content))
	assert.Equal(t, "/y", string(actions[3].Content))
}

func TestCollector_ExportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	opts := fakeOptions()
	opts.ReadStat = func(ctx context.Context, path string) (vfs.Stat, error) {
		return vfs.Stat{}, boom
	}

	c := NewCollector(opts)
	c.Overwrite("/a")
	_, err := c.ExportActions(context.Background())
	assert.ErrorIs(t, err, boom)

	t.Run("deletes and moves need no reads", func(t *testing.T) {
		c := NewCollector(opts)
		c.Delete("/a")
		c.Move("/b", "/c")
		assert.Len(t, export(t, c), 2)
	})
}

func TestCollector_Clone(t *testing.T) {
	t.Parallel()

	original := NewCollector(fakeOptions())
	original.Create("/a")
	original.Overwrite("/b")
	original.Move("/c", "/d")
	original.Delete("/e")
	before := export(t, original)

	clone := original.Clone(fakeOptions())
	assert.Equal(t, before, export(t, clone))

	clone.Delete("/a")
	clone.Move("/d", "/f")
	clone.Create("/g")
	assert.Equal(t, before, export(t, original), "mutating the clone leaves the original alone")

	original.Delete("/b")
	assert.True(t, clone.WillOverwrite("/b"), "mutating the original leaves the clone alone")
	assert.True(t, clone.WillMoveTo("/c", "/f"))
	assert.True(t, original.WillMoveTo("/c", "/d"))
}

func TestCollector_CloneUsesNewOptions(t *testing.T) {
	t.Parallel()

	original := NewCollector(fakeOptions())
	original.Create("/a")

	clone := original.Clone(Options{
		ReadContent: func(ctx context.Context, path string) ([]byte, error) {
			return []byte("other"), nil
		},
		ReadStat: func(ctx context.Context, path string) (vfs.Stat, error) {
			return vfs.Stat{Mode: 0o600}, nil
		},
	})

	assert.Equal(t, []Action{Create("/a", []byte("other"), &vfs.StatOptions{Mode: 0o600})}, export(t, clone))
	assert.Equal(t, []Action{Create("/a", fakeContent, fakeStat())}, export(t, original))
}
