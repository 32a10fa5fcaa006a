package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-resty/resty/v2"

	"fingerprint-be/internal/pkg/logger"
	"fingerprint-be/internal/websocket"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the progress topic and delivers each event to the
// websocket hub and, when configured, to an external callback endpoint.
type consumerService struct {
	pubSub      *gochannel.GoChannel
	topicName   string
	hub         *websocket.Hub
	callbackURL string
	client      *resty.Client
	logger      logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	hub *websocket.Hub,
	callbackURL string,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:      pubSub,
		topicName:   topicName,
		hub:         hub,
		callbackURL: callbackURL,
		client:      resty.New().SetTimeout(5 * time.Second),
		logger:      log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var event ProgressEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		cs.logger.Error("Consumer", "Failed to unmarshal progress event", map[string]interface{}{"error": err.Error()})
		msg.Ack() // never retry a malformed event
		return
	}

	if event.SubjectID != "" {
		cs.hub.Send(event.SubjectID, event)
	} else {
		cs.hub.Broadcast(event)
	}

	if cs.callbackURL != "" {
		// Callback delivery is best-effort; a slow or dead endpoint must not
		// back-pressure the capture pipeline.
		resp, err := cs.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(event).
			Post(cs.callbackURL)
		if err != nil {
			cs.logger.Warn("Consumer", "Callback delivery failed", map[string]interface{}{
				"url":   cs.callbackURL,
				"error": err.Error(),
			})
		} else if resp.IsError() {
			cs.logger.Warn("Consumer", "Callback endpoint returned error", map[string]interface{}{
				"url":    cs.callbackURL,
				"status": resp.StatusCode(),
			})
		}
	}

	msg.Ack()
}
