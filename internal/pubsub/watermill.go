package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Metadata keys used to carry Message fields through watermill.
const (
	metaKeyClientID = "client_id"
	metaKeyTopic    = "topic"
)

// WatermillBridge implements Publisher and Subscriber on top of watermill's
// in-memory GoChannel.
type WatermillBridge struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter
}

// NewWatermillBridge initializes the in-process bus.
func NewWatermillBridge() *WatermillBridge {
	logger := watermill.NewStdLogger(false, false)
	goChannel := gochannel.NewGoChannel(gochannel.Config{}, logger)

	return &WatermillBridge{
		pub:    goChannel,
		sub:    goChannel,
		logger: logger,
	}
}

func toWatermill(msg Message) *message.Message {
	wm := message.NewMessage(watermill.NewUUID(), msg.Payload)
	wm.Metadata.Set(metaKeyClientID, msg.ClientID)
	wm.Metadata.Set(metaKeyTopic, msg.Topic)
	for k, v := range msg.Metadata {
		wm.Metadata.Set(k, v)
	}
	return wm
}

func fromWatermill(wm *message.Message) Message {
	msg := Message{
		Topic:    wm.Metadata.Get(metaKeyTopic),
		ClientID: wm.Metadata.Get(metaKeyClientID),
		Payload:  wm.Payload,
		Metadata: make(map[string]string),
	}
	for k, v := range wm.Metadata {
		if k != metaKeyClientID && k != metaKeyTopic {
			msg.Metadata[k] = v
		}
	}
	return msg
}

// Publish implements Publisher.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	return wb.pub.Publish(msg.Topic, toWatermill(msg))
}

// Subscribe implements Subscriber. The handler runs on a background
// goroutine; a handler error nacks the message and is logged.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wm := range messages {
			if err := handler(ctx, fromWatermill(wm)); err != nil {
				slog.Error("failed to handle bus message", "topic", topic, "msg_id", wm.UUID, "error", err)
				wm.Nack()
			} else {
				wm.Ack()
			}
		}
		slog.Debug("subscription message loop ended", "topic", topic)
	}()

	return nil
}

// Close shuts down the bridge.
func (wb *WatermillBridge) Close() error {
	return wb.sub.Close()
}
