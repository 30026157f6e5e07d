package sync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/voxel-terrain/internal/eventbus"
	"github.com/annel0/voxel-terrain/internal/logging"
	"github.com/annel0/voxel-terrain/internal/vec"
)

// EventBlockBatch тип события с пакетом изменений блоков узла
const EventBlockBatch = "BlockBatch"

// BlockBatchVersion версия схемы BlockBatchPayload
const BlockBatchVersion = 1

// BlockBatchPayload полезная нагрузка BlockBatch. Data кодируется компрессором Encoding.
type BlockBatchPayload struct {
	Encoding string `json:"encoding"`
	Count    int    `json:"count"`
	Data     []byte `json:"data"`
}

// BatchManager накапливает изменения блоков и отправляет их пакетами через EventBus.
// Повторные изменения одной позиции внутри пакета схлопываются, побеждает последнее.
type BatchManager struct {
	mu       sync.Mutex
	buf      []eventbus.BlockChangePayload
	byPos    map[vec.Vec3]int
	capacity int

	flushEvery time.Duration
	bus        eventbus.EventBus
	source     string // идентификатор узла
	compressor DeltaCompressor

	kick     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewBatchManager создаёт менеджер с указанным лимитом буфера и интервалом отправки.
// Заполненный буфер отправляется, не дожидаясь таймера.
func NewBatchManager(bus eventbus.EventBus, source string, capacity int, flushEvery time.Duration, compressor DeltaCompressor) *BatchManager {
	if compressor == nil {
		compressor = NewPassthroughCompressor()
	}
	if capacity <= 0 {
		capacity = 256
	}
	if flushEvery <= 0 {
		flushEvery = 100 * time.Millisecond
	}
	bm := &BatchManager{
		byPos:      make(map[vec.Vec3]int),
		capacity:   capacity,
		flushEvery: flushEvery,
		bus:        bus,
		source:     source,
		compressor: compressor,
		kick:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go bm.loop()
	return bm
}

// AddChange добавляет изменение в буфер. Не публикует сам: вызывается из
// обработчика шины, где синхронная публикация могла бы заблокировать доставку.
func (bm *BatchManager) AddChange(ch eventbus.BlockChangePayload) {
	bm.mu.Lock()
	if i, ok := bm.byPos[ch.Position]; ok {
		bm.buf[i] = ch
	} else {
		bm.byPos[ch.Position] = len(bm.buf)
		bm.buf = append(bm.buf, ch)
	}
	full := len(bm.buf) >= bm.capacity
	bm.mu.Unlock()

	if full {
		select {
		case bm.kick <- struct{}{}:
		default:
		}
	}
}

// Pending число изменений, ожидающих отправки
func (bm *BatchManager) Pending() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return len(bm.buf)
}

func (bm *BatchManager) loop() {
	defer close(bm.done)
	ticker := time.NewTicker(bm.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bm.flush()
		case <-bm.kick:
			bm.flush()
		case <-bm.quit:
			bm.flush()
			return
		}
	}
}

// take забирает накопленные изменения
func (bm *BatchManager) take() []eventbus.BlockChangePayload {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if len(bm.buf) == 0 {
		return nil
	}
	changes := bm.buf
	bm.buf = make([]eventbus.BlockChangePayload, 0, len(changes))
	bm.byPos = make(map[vec.Vec3]int, len(changes))
	return changes
}

// flush отсылает накопленные изменения единым сообщением.
func (bm *BatchManager) flush() {
	changes := bm.take()
	if len(changes) == 0 {
		return
	}

	data, err := bm.compressor.Compress(changes)
	if err != nil {
		logging.Warn("BatchManager compress error: %v", err)
		return
	}
	payload, err := jsonPayload(BlockBatchPayload{
		Encoding: bm.compressor.Encoding(),
		Count:    len(changes),
		Data:     data,
	})
	if err != nil {
		logging.Warn("BatchManager marshal error: %v", err)
		return
	}

	env := &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    bm.source,
		EventType: EventBlockBatch,
		Version:   BlockBatchVersion,
		Priority:  eventbus.PriorityHigh,
		Payload:   payload,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := bm.bus.Publish(ctx, env); err != nil {
		logging.Warn("BatchManager publish error (%d changes lost): %v", len(changes), err)
		return
	}
	logging.Trace("BatchManager: отправлен пакет из %d изменений (%d байт)", len(changes), len(data))
}

// Stop завершает работу менеджера и отправляет оставшиеся изменения.
func (bm *BatchManager) Stop() {
	bm.stopOnce.Do(func() { close(bm.quit) })
	<-bm.done
}
