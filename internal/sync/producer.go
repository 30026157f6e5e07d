package sync

import (
	"context"

	"github.com/annel0/voxel-terrain/internal/eventbus"
	"github.com/annel0/voxel-terrain/internal/logging"
)

// SyncProducer подписывается на изменения блоков своего узла и передаёт их BatchManager'у.
type SyncProducer struct {
	bm  *BatchManager
	sub eventbus.Subscription
}

func NewSyncProducer(bus eventbus.EventBus, source string, bm *BatchManager) (*SyncProducer, error) {
	sp := &SyncProducer{bm: bm}
	filter := eventbus.Filter{Types: []string{eventbus.EventBlockChange}, Sources: []string{source}}
	sub, err := bus.Subscribe(context.Background(), filter, sp.handle)
	if err != nil {
		return nil, err
	}
	sp.sub = sub
	return sp, nil
}

func (sp *SyncProducer) handle(_ context.Context, ev *eventbus.Envelope) {
	change, err := eventbus.DecodeBlockChange(ev)
	if err != nil {
		logging.Warn("SyncProducer: %v", err)
		return
	}
	sp.bm.AddChange(change)
}

func (sp *SyncProducer) Stop() { sp.sub.Unsubscribe() }
