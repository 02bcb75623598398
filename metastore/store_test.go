package metastore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickherd/topology"
)

func TestRoundTrip(t *testing.T) {
	store := &Store{Dir: t.TempDir()}

	topo, err := topology.New(3, 2, "round-trip-secret")
	require.NoError(t, err)
	require.NoError(t, topo.RemoveKeeper(2))
	topo.AddServer()

	require.NoError(t, store.Save(topo))

	loaded, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, topo.Keepers.IDs(), loaded.Keepers.IDs())
	assert.Equal(t, topo.Keepers.Max(), loaded.Keepers.Max())
	assert.Equal(t, topo.Servers.IDs(), loaded.Servers.IDs())
	assert.Equal(t, topo.Servers.Max(), loaded.Servers.Max())
	assert.Equal(t, topo.Secret, loaded.Secret)
}

func TestSaveOverwrites(t *testing.T) {
	store := &Store{Dir: t.TempDir()}

	topo, err := topology.New(1, 1, "s")
	require.NoError(t, err)
	require.NoError(t, store.Save(topo))

	topo.AddKeeper()
	require.NoError(t, store.Save(topo))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []topology.NodeID{1, 2}, loaded.Keepers.IDs())
}

func TestLoadMissingFile(t *testing.T) {
	store := &Store{Dir: t.TempDir()}

	_, err := store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), MetadataFilename)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	store := &Store{Dir: dir}

	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFilename), []byte("not json"), 0o644))

	_, err := store.Load()
	require.Error(t, err)
}

func TestLockReacquire(t *testing.T) {
	store := &Store{Dir: t.TempDir()}

	unlock, err := store.Lock()
	require.NoError(t, err)
	unlock()

	// Re-acquiring after release must work.
	unlock, err = store.Lock()
	require.NoError(t, err)
	unlock()
}
