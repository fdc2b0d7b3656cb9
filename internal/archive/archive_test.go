package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supersim/internal/errors"
	"supersim/internal/slogutil"
	"supersim/internal/snapshot"
	"supersim/internal/testutil"
)

func basic(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.DecodeBytes(testutil.LoadFixture(t, "basic").Data)
	require.NoError(t, err)
	return snap
}

func TestWriteRead(t *testing.T) {
	snap := basic(t)
	meta := NewMeta(snap, "after fetch")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, meta, snap))

	entry, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, entry.Meta.ID)
	assert.Equal(t, "after fetch", entry.Meta.Label)
	assert.Equal(t, int64(3), entry.Meta.Tick)
	assert.Equal(t, 27, entry.Meta.Objects)
	assert.Equal(t, snap.Len(), entry.Snapshot.Len())

	want, err := snap.Marshal()
	require.NoError(t, err)
	got, err := entry.Snapshot.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestRead_Garbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not zstd at all")))
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archives")
	store, err := Open(dir, slogutil.NewDiscardLogger())
	require.NoError(t, err)

	snap := basic(t)
	first, err := store.Save(snap, "one")
	require.NoError(t, err)
	second, err := store.Save(snap, "two")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// stray files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)

	entry, err := store.Load(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", entry.Meta.Label)

	require.NoError(t, store.Delete(first.ID))
	_, err = store.Load(first.ID)
	assert.Equal(t, errors.ObjectNotFound, errors.CodeOf(err))
	assert.Equal(t, errors.ObjectNotFound, errors.CodeOf(store.Delete(first.ID)))

	_, err = store.Load("../../etc/passwd")
	assert.Equal(t, errors.ObjectNotFound, errors.CodeOf(err))
}
