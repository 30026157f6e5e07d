package sync

import (
	"time"

	"github.com/annel0/voxel-terrain/internal/eventbus"
	"github.com/annel0/voxel-terrain/internal/logging"
)

// SyncManager реплицирует правки блоков между узлами через шину:
// BatchManager, SyncProducer, SyncConsumer.
type SyncManager struct {
	bm       *BatchManager
	producer *SyncProducer
	consumer *SyncConsumer
}

type SyncConfig struct {
	NodeID     string // совпадает с Source событий BlockChange этого узла
	Bus        eventbus.EventBus
	Target     BlockApplier
	BatchSize  int
	FlushEvery time.Duration
	Compress   bool
}

func NewSyncManager(cfg SyncConfig) (*SyncManager, error) {
	compressor := NewPassthroughCompressor()
	if cfg.Compress {
		zc, err := NewZstdCompressor()
		if err != nil {
			return nil, err
		}
		compressor = zc
	}

	bm := NewBatchManager(cfg.Bus, cfg.NodeID, cfg.BatchSize, cfg.FlushEvery, compressor)
	producer, err := NewSyncProducer(cfg.Bus, cfg.NodeID, bm)
	if err != nil {
		bm.Stop()
		return nil, err
	}

	consumer, err := NewSyncConsumer(cfg.Bus, cfg.NodeID, cfg.Target)
	if err != nil {
		producer.Stop()
		bm.Stop()
		return nil, err
	}

	logging.Info("🔄 SyncManager инициализирован: node=%s, batch=%d, flush=%v, encoding=%s",
		cfg.NodeID, bm.capacity, bm.flushEvery, compressor.Encoding())

	return &SyncManager{
		bm:       bm,
		producer: producer,
		consumer: consumer,
	}, nil
}

// Applied число изменений других узлов, применённых к миру
func (sm *SyncManager) Applied() int64 { return sm.consumer.Applied() }

func (sm *SyncManager) Stop() {
	sm.producer.Stop()
	sm.consumer.Stop()
	sm.bm.Stop()
	logging.Info("🔄 SyncManager остановлен")
}
