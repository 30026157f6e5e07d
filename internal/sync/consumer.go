package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/annel0/voxel-terrain/internal/eventbus"
	"github.com/annel0/voxel-terrain/internal/logging"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// BlockApplier принимает изменения других узлов (world.Terrain.ApplyBlock)
type BlockApplier interface {
	ApplyBlock(x, y, z int, b block.Block) bool
}

// SyncConsumer слушает BlockBatch сообщения других узлов и применяет изменения к миру.
type SyncConsumer struct {
	sub     eventbus.Subscription
	source  string
	target  BlockApplier
	applied atomic.Int64
	skipped atomic.Int64
}

func NewSyncConsumer(bus eventbus.EventBus, source string, target BlockApplier) (*SyncConsumer, error) {
	sc := &SyncConsumer{source: source, target: target}
	sub, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{EventBlockBatch}}, sc.handle)
	if err != nil {
		return nil, err
	}
	sc.sub = sub
	return sc, nil
}

func (sc *SyncConsumer) handle(_ context.Context, ev *eventbus.Envelope) {
	if ev.Source == sc.source {
		return
	}
	changes, err := DecodeBatch(ev)
	if err != nil {
		logging.Warn("SyncConsumer: пакет %s от %s: %v", ev.ID, ev.Source, err)
		return
	}

	for _, ch := range changes {
		if err := sc.applyChange(ch); err != nil {
			sc.skipped.Add(1)
			logging.Debug("SyncConsumer: %v", err)
			continue
		}
		sc.applied.Add(1)
	}
	logging.Trace("SyncConsumer: применено %d изменений от %s", len(changes), ev.Source)
}

// applyChange применяет отдельное изменение
func (sc *SyncConsumer) applyChange(ch eventbus.BlockChangePayload) error {
	b := ch.Block
	if !b.IsAir() && !block.IsValidMaterial(b.Material) {
		return fmt.Errorf("неизвестный материал %d в %v", b.Material, ch.Position)
	}
	if !sc.target.ApplyBlock(ch.Position.X, ch.Position.Y, ch.Position.Z, b) {
		return fmt.Errorf("позиция %v вне мира", ch.Position)
	}
	return nil
}

// Applied число применённых изменений
func (sc *SyncConsumer) Applied() int64 { return sc.applied.Load() }

// Skipped число отброшенных изменений
func (sc *SyncConsumer) Skipped() int64 { return sc.skipped.Load() }

func (sc *SyncConsumer) Stop() { sc.sub.Unsubscribe() }

// DecodeBatch разбирает BlockBatch событие
func DecodeBatch(ev *eventbus.Envelope) ([]eventbus.BlockChangePayload, error) {
	if ev.EventType != EventBlockBatch {
		return nil, fmt.Errorf("ожидалось %s, получено %s", EventBlockBatch, ev.EventType)
	}
	var payload BlockBatchPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", EventBlockBatch, err)
	}
	compressor, err := CompressorFor(payload.Encoding)
	if err != nil {
		return nil, err
	}
	changes, err := compressor.Decompress(payload.Data)
	if err != nil {
		return nil, err
	}
	if len(changes) != payload.Count {
		return nil, fmt.Errorf("в пакете %d изменений, заявлено %d", len(changes), payload.Count)
	}
	return changes, nil
}

func jsonPayload(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
