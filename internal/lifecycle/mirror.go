// Package lifecycle contains subscribers that react to chat lifecycle
// events published on the bus.
package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nfrund/signalhub/internal/chat"
	"github.com/nfrund/signalhub/internal/pubsub"
	"github.com/nfrund/signalhub/internal/store"
)

// Mirror keeps the persistent store in sync with expiry and reap events,
// so durable records do not outlive the entities they describe.
type Mirror struct {
	store  store.Store
	logger *slog.Logger
}

// NewMirror creates a Mirror and subscribes it to the lifecycle topics.
func NewMirror(ctx context.Context, st store.Store, sub pubsub.Subscriber) (*Mirror, error) {
	m := &Mirror{
		store:  st,
		logger: slog.Default().With("service", "lifecycle-mirror"),
	}

	if err := sub.Subscribe(ctx, chat.TopicRoomExpired, m.handleRoomExpired); err != nil {
		return nil, err
	}
	for _, topic := range []string{chat.TopicClientLeft, chat.TopicClientReaped} {
		if err := sub.Subscribe(ctx, topic, m.handleClientGone); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mirror) handleRoomExpired(ctx context.Context, msg pubsub.Message) error {
	var event chat.RoomEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		m.logger.Error("could not decode room event", "error", err)
		return nil
	}
	if err := m.store.DeleteRoom(ctx, event.RoomID); err != nil {
		m.logger.Warn("could not delete room record", "room_id", event.RoomID, "error", err)
		return nil
	}
	m.commit(ctx)
	return nil
}

func (m *Mirror) handleClientGone(ctx context.Context, msg pubsub.Message) error {
	var event chat.ClientEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		m.logger.Error("could not decode client event", "error", err)
		return nil
	}
	if err := m.store.DeleteClient(ctx, event.ClientID); err != nil {
		m.logger.Warn("could not delete client record", "client_id", event.ClientID, "error", err)
		return nil
	}
	m.commit(ctx)
	return nil
}

// commit flushes buffered writes after a deletion. Write-through backends
// treat this as a no-op.
func (m *Mirror) commit(ctx context.Context) {
	if err := m.store.Commit(ctx); err != nil {
		m.logger.Warn("could not commit store changes", "error", err)
	}
}
