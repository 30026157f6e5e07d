package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/annel0/voxel-terrain/internal/logging"
)

// DefaultInvalidationSubject subject уведомлений. Вне пространства terrain.*,
// чтобы не попадать в стрим событий мира.
const DefaultInvalidationSubject = "terrain-cache.invalidate"

// NATSInvalidator реализует CacheInvalidator через NATS Pub/Sub (без JetStream:
// пропущенное уведомление означает лишь устаревшую запись до истечения TTL).
type NATSInvalidator struct {
	conn    *nats.Conn
	subject string
	nodeID  string

	mu           sync.Mutex
	subscription *nats.Subscription
	closed       bool

	publishedCount atomic.Int64
	receivedCount  atomic.Int64
	errorsCount    atomic.Int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	NATSURL       string        `yaml:"nats_url"`
	Subject       string        `yaml:"subject"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// InvalidationMessage сообщение об изменённом чанке.
type InvalidationMessage struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// NewNATSInvalidator подключается к NATS. nodeID отличает собственные уведомления.
func NewNATSInvalidator(config InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	if config.Subject == "" {
		config.Subject = DefaultInvalidationSubject
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = -1
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}

	conn, err := nats.Connect(config.NATSURL,
		nats.Name("voxel-terrain-cache"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logging.Warn("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logging.Info("NATS invalidator initialized: %s (subject: %s)", config.NATSURL, config.Subject)
	return newNATSInvalidator(conn, config.Subject, nodeID), nil
}

func newNATSInvalidator(conn *nats.Conn, subject, nodeID string) *NATSInvalidator {
	return &NATSInvalidator{conn: conn, subject: subject, nodeID: nodeID}
}

// PublishInvalidation отправляет уведомление об инвалидации ключа.
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(InvalidationMessage{
		Key:       key,
		Timestamp: time.Now().UTC(),
		NodeID:    n.nodeID,
	})
	if err != nil {
		n.errorsCount.Add(1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		n.errorsCount.Add(1)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	n.publishedCount.Add(1)
	logging.Trace("Published invalidation for key: %s", key)
	return nil
}

// SubscribeInvalidations подписывается на уведомления других узлов до отмены ctx.
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nats.ErrConnectionClosed
	}
	if n.subscription != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}

	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.handleMessage(msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	n.subscription = sub

	go func() {
		<-ctx.Done()
		n.unsubscribe()
	}()

	logging.Info("Subscribed to cache invalidations on subject: %s", n.subject)
	return nil
}

// handleMessage разбирает уведомление и вызывает handler для чужих ключей
func (n *NATSInvalidator) handleMessage(data []byte, handler InvalidationHandler) {
	n.receivedCount.Add(1)

	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		n.errorsCount.Add(1)
		logging.Warn("Failed to unmarshal invalidation message: %v", err)
		return
	}
	if msg.NodeID == n.nodeID {
		return
	}
	if err := handler(msg.Key); err != nil {
		n.errorsCount.Add(1)
		logging.Warn("Invalidation handler failed for key %s: %v", msg.Key, err)
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.mu.Lock()
	sub := n.subscription
	n.subscription = nil
	n.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			logging.Warn("Failed to unsubscribe from invalidations: %v", err)
		}
	}
}

// GetMetrics возвращает счётчики invalidator'а.
func (n *NATSInvalidator) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"published_count": n.publishedCount.Load(),
		"received_count":  n.receivedCount.Load(),
		"errors_count":    n.errorsCount.Load(),
		"connected":       n.conn.IsConnected(),
	}
}

// Close отписывается и закрывает соединение. Повторный вызов ничего не делает.
func (n *NATSInvalidator) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.unsubscribe()
	n.conn.Close()
	logging.Info("NATS invalidator closed")
	return nil
}
