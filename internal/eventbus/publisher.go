package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/voxel-terrain/internal/logging"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// BlockChangeVersion версия схемы BlockChangePayload
const BlockChangeVersion = 1

// BlockChangePayload полезная нагрузка события BlockChange
type BlockChangePayload struct {
	Chunk    vec.Vec3    `json:"chunk"`
	Index    int         `json:"index"`
	Position vec.Vec3    `json:"position"`
	Block    block.Block `json:"block"`
}

// WorldReadyPayload полезная нагрузка события WorldReady
type WorldReadyPayload struct {
	Stats world.Stats `json:"stats"`
}

// BlockChangePublisher пересылает изменения блоков мира в шину
type BlockChangePublisher struct {
	bus     EventBus
	source  string
	timeout time.Duration
}

// NewBlockChangePublisher создаёт издателя. source попадает в Envelope.Source.
func NewBlockChangePublisher(bus EventBus, source string) *BlockChangePublisher {
	return &BlockChangePublisher{bus: bus, source: source, timeout: 2 * time.Second}
}

// Attach включает запись изменений в мире и подписывает издателя
func (p *BlockChangePublisher) Attach(t *world.Terrain) {
	t.SetChangeTracking(true)
	t.OnBlockModified(p.HandleChange)
}

// HandleChange реализует world.BlockChangeHandler. Ошибки публикации только логируются:
// правка мира уже применена.
func (p *BlockChangePublisher) HandleChange(change world.BlockChange) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.PublishChange(ctx, change); err != nil {
		logging.Warn("Не удалось опубликовать изменение блока %v: %v", change.Position(), err)
	}
}

// PublishChange публикует одно изменение блока
func (p *BlockChangePublisher) PublishChange(ctx context.Context, change world.BlockChange) error {
	payload := BlockChangePayload{
		Chunk:    change.Chunk,
		Index:    change.Index,
		Position: change.Position(),
		Block:    change.Block,
	}
	ev, err := p.envelope(EventBlockChange, BlockChangeVersion, PriorityNormal, payload)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, ev)
}

// PublishWorldReady сообщает о завершении предгенерации
func (p *BlockChangePublisher) PublishWorldReady(ctx context.Context, stats world.Stats) error {
	ev, err := p.envelope(EventWorldReady, 1, PriorityHigh, WorldReadyPayload{Stats: stats})
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, ev)
}

func (p *BlockChangePublisher) envelope(eventType string, version, priority int, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    p.source,
		EventType: eventType,
		Version:   version,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// DecodeBlockChange разбирает полезную нагрузку события BlockChange
func DecodeBlockChange(ev *Envelope) (BlockChangePayload, error) {
	var payload BlockChangePayload
	if ev.EventType != EventBlockChange {
		return payload, fmt.Errorf("unexpected event type %q", ev.EventType)
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s: %w", ev.EventType, err)
	}
	return payload, nil
}
