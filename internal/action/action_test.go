package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefs/internal/common"
	"stagefs/internal/vfs"
)

func TestKind(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindOverwrite, KindCreate, KindDelete, KindMove} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("rename")
	assert.Error(t, err)
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestActionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "delete /a", Delete("/a").String())
	assert.Equal(t, "move /a -> /b", Move("/a", "/b").String())
	assert.Equal(t, "create /a (3 bytes, mode 0644)", Create("/a", []byte("abc"), &vfs.StatOptions{Mode: 0o644}).String())
	assert.Equal(t, "overwrite /a (0 bytes)", Overwrite("/a", nil, nil).String())
}

func TestCreateNeverHasNilContent(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, Create("/a", nil, nil).Content)
}

func TestList_Apply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := vfs.NewMemoryStore()
	require.NoError(t, s.Create(ctx, "/a", []byte("a"), nil))
	require.NoError(t, s.Create(ctx, "/old", []byte("x"), nil))
	require.NoError(t, s.Create(ctx, "/c", []byte("c"), nil))

	list := List{
		Delete("/old"),
		Move("/c", "/c2"),
		Create("/b", []byte("b"), nil),
		Overwrite("/a", []byte("A"), &vfs.StatOptions{Mode: 0o400}),
	}
	exported, err := list.ExportActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Action(list), exported)

	require.NoError(t, list.Apply(ctx, s))

	_, err = s.ReadStat(ctx, "/old")
	assert.ErrorIs(t, err, common.ErrFileDoesNotExist)
	data, err := s.Read(ctx, "/c2")
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))
	data, err = s.Read(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))

	err = List{Delete("/missing")}.Apply(ctx, s)
	assert.ErrorIs(t, err, common.ErrFileDoesNotExist)
}
