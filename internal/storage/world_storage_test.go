package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-terrain/internal/util"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/worker"
	"github.com/annel0/voxel-terrain/internal/world"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

func setupTestStorage(t *testing.T) *WorldStorage {
	t.Helper()
	storage, err := NewWorldStorage(t.TempDir())
	require.NoError(t, err, "Не удалось создать хранилище")
	t.Cleanup(func() { storage.Close() })
	return storage
}

func sampleBlocks() []block.Block {
	blocks := make([]block.Block, world.ChunkVolume)
	for i := 0; i < 2000; i++ {
		blocks[i] = block.NewColored(block.Stone, uint8(i), uint8(i>>3), 7)
	}
	blocks[5000] = block.New(block.Glass)
	blocks[world.ChunkVolume-1] = block.New(block.Water)
	return blocks
}

func TestSaveAndLoadChunk(t *testing.T) {
	storage := setupTestStorage(t)
	idx := vec.Vec3{X: 3, Y: -1, Z: 7}

	blocks, ok, err := storage.LoadChunk(idx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, blocks)

	want := sampleBlocks()
	require.NoError(t, storage.SaveChunk(idx, want))

	got, ok, err := storage.LoadChunk(idx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	list, err := storage.ListChunks()
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec3{idx}, list)

	require.NoError(t, storage.DeleteChunk(idx))
	_, ok, err = storage.LoadChunk(idx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveChunkRejectsWrongSize(t *testing.T) {
	storage := setupTestStorage(t)
	assert.Error(t, storage.SaveChunk(vec.Vec3{}, make([]block.Block, 10)))
}

func TestLoadMalformedChunk(t *testing.T) {
	storage := setupTestStorage(t)
	idx := vec.Vec3{X: 1}

	err := storage.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(idx), []byte("не zstd"))
	})
	require.NoError(t, err)

	_, ok, err := storage.LoadChunk(idx)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrMalformedChunk))

	// корректный zstd, но обрезанный поток
	raw := EncodeBlocks(sampleBlocks())
	err = storage.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(idx), storage.codec.compressor.EncodeAll(raw[:len(raw)/2], nil))
	})
	require.NoError(t, err)
	_, _, err = storage.LoadChunk(idx)
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestStorageClosed(t *testing.T) {
	storage, err := NewInMemoryWorldStorage()
	require.NoError(t, err)
	require.NoError(t, storage.Close())
	require.NoError(t, storage.Close())

	_, _, err = storage.LoadChunk(vec.Vec3{})
	assert.ErrorIs(t, err, ErrStorageClosed)
	assert.ErrorIs(t, storage.SaveChunk(vec.Vec3{}, sampleBlocks()), ErrStorageClosed)
	_, err = storage.ListChunks()
	assert.ErrorIs(t, err, ErrStorageClosed)
}

func TestStoragePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewWorldStorage(dir)
	require.NoError(t, err)
	require.NoError(t, storage.SaveChunk(vec.Vec3{Y: 2}, sampleBlocks()))
	require.NoError(t, storage.Close())

	reopened, err := NewWorldStorage(dir)
	require.NoError(t, err)
	defer reopened.Close()
	got, ok, err := reopened.LoadChunk(vec.Vec3{Y: 2})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleBlocks(), got)
}

func TestTerrainRoundTripThroughStorage(t *testing.T) {
	storage, err := NewInMemoryWorldStorage()
	require.NoError(t, err)
	defer storage.Close()

	size := vec.Vec3{X: 2, Y: 1, Z: 1}
	opts := world.Options{Size: size, Role: world.RoleServer, Density: util.FlatDensity{Height: 10}}

	// незаполненные чанки не сохраняются
	require.NoError(t, world.NewTerrain(nil, opts).Save(storage))
	list, err := storage.ListChunks()
	require.NoError(t, err)
	assert.Empty(t, list)

	pool := worker.NewPool(2)
	defer pool.Close()

	tr := world.NewTerrain(pool, opts)
	require.NoError(t, tr.Generate(context.Background()))
	require.True(t, tr.SetBlock(40, 20, 3, block.NewColored(block.Sand, 1, 2, 3)))
	require.True(t, tr.RemoveBlock(5, 9, 5))
	require.NoError(t, tr.Save(storage))

	list, err = storage.ListChunks()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	opts.Source = storage
	opts.Density = util.FlatDensity{Height: 1}
	loaded := world.NewTerrain(pool, opts)
	require.NoError(t, loaded.Generate(context.Background()))

	assert.Equal(t, block.NewColored(block.Sand, 1, 2, 3), loaded.GetBlockSafe(40, 20, 3))
	assert.True(t, loaded.GetBlockSafe(5, 9, 5).IsAir())
	assert.Equal(t, 9, loaded.HighestY(6, 6), "блоки взяты из хранилища, а не из генератора")
}
