package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxel-terrain/internal/logging"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// ErrStorageClosed хранилище уже закрыто
var ErrStorageClosed = errors.New("storage: closed")

const chunkKeyPrefix = "chunk:"

// WorldStorage представляет собой хранилище блоков мира в BadgerDB.
// Значение каждого чанка это сжатый zstd поток записей блоков.
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	codec   *chunkCodec
	mutex   sync.RWMutex
	isReady bool
}

var (
	_ world.ChunkSource = (*WorldStorage)(nil)
	_ world.ChunkSink   = (*WorldStorage)(nil)
)

// NewWorldStorage создает новое хранилище мира в каталоге dataPath/world
func NewWorldStorage(dataPath string) (*WorldStorage, error) {
	return NewWorldStorageWithLogger(dataPath, nil)
}

// NewWorldStorageWithLogger как NewWorldStorage, но журнал BadgerDB пишется в logger.
// nil отключает логирование BadgerDB.
func NewWorldStorageWithLogger(dataPath string, logger *logging.Logger) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil
	if logger != nil {
		opts.Logger = badgerLogger{l: logger}
	}
	return openWorldStorage(opts, dbPath)
}

// NewInMemoryWorldStorage хранилище без диска, для тестов и одноразовых миров
func NewInMemoryWorldStorage() (*WorldStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openWorldStorage(opts, "")
}

func openWorldStorage(opts badger.Options, dbPath string) (*WorldStorage, error) {
	codec, err := newChunkCodec()
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(opts)
	if err != nil {
		codec.close()
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		codec:   codec,
		isReady: true,
	}, nil
}

// Path каталог базы (пусто для хранилища в памяти)
func (ws *WorldStorage) Path() string {
	return ws.dbPath
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	ws.codec.close()
	return ws.db.Close()
}

func chunkKey(index vec.Vec3) []byte {
	return []byte(fmt.Sprintf("%s%d:%d:%d", chunkKeyPrefix, index.X, index.Y, index.Z))
}

func parseChunkKey(key []byte) (vec.Vec3, error) {
	var idx vec.Vec3
	if _, err := fmt.Sscanf(string(key), chunkKeyPrefix+"%d:%d:%d", &idx.X, &idx.Y, &idx.Z); err != nil {
		return vec.Vec3{}, fmt.Errorf("некорректный ключ чанка %q: %w", key, err)
	}
	return idx, nil
}

// SaveChunk сохраняет все блоки чанка
func (ws *WorldStorage) SaveChunk(index vec.Vec3, blocks []block.Block) error {
	if len(blocks) != world.ChunkVolume {
		return fmt.Errorf("чанк %v: ожидалось %d блоков, получено %d", index, world.ChunkVolume, len(blocks))
	}

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrStorageClosed
	}

	data := ws.codec.encode(blocks)
	err := ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(index), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	logging.Trace("Чанк %v сохранён (%d байт)", index, len(data))
	return nil
}

// LoadChunk загружает блоки чанка. Второй результат false, если чанк не сохранялся.
func (ws *WorldStorage) LoadChunk(index vec.Vec3) ([]block.Block, bool, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, false, ErrStorageClosed
	}

	var data []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(index))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	blocks, err := ws.codec.decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("чанк %v: %w", index, err)
	}
	return blocks, true, nil
}

// DeleteChunk удаляет сохранённый чанк
func (ws *WorldStorage) DeleteChunk(index vec.Vec3) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrStorageClosed
	}

	return ws.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(chunkKey(index))
	})
}

// ListChunks индексы всех сохранённых чанков
func (ws *WorldStorage) ListChunks() ([]vec.Vec3, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, ErrStorageClosed
	}

	var out []vec.Vec3
	err := ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(chunkKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			idx, err := parseChunkKey(it.Item().Key())
			if err != nil {
				logging.Warn("Пропускаем запись: %v", err)
				continue
			}
			out = append(out, idx)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода BadgerDB: %w", err)
	}
	return out, nil
}
