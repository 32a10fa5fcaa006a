package service

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"fingerprint-be/internal/pkg/logger"
)

// ProgressTopic is the in-process topic capture progress events flow over.
const ProgressTopic = "fingerprint.progress"

// Event types pushed to clients during capture sessions.
const (
	EventOperationStarted   = "operation_started"
	EventSampleStarted      = "sample_started"
	EventSampleCaptured     = "sample_captured"
	EventFingerRemoved      = "finger_removed"
	EventOperationCompleted = "operation_completed"
	EventOperationFailed    = "operation_failed"
	EventError              = "error"
)

// ProgressEvent is the payload delivered to websocket clients and callback
// endpoints.
type ProgressEvent struct {
	EventType string                 `json:"eventType"`
	Message   string                 `json:"message"`
	SubjectID string                 `json:"subjectId,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// IProgressNotifier publishes capture progress. Delivery is best-effort: a
// failed notification never fails the capture it describes.
type IProgressNotifier interface {
	NotifyStart(subject, operation string, totalSamples int)
	NotifySampleStarted(subject string, sample, total int)
	NotifySampleCaptured(subject string, sample, total int, image []byte, quality float64)
	NotifyFingerRemoved(subject string, sample, total int)
	NotifyComplete(subject, operation string, data map[string]interface{})
	NotifyError(subject, code, message string)
}

type progressNotifier struct {
	pubSub *gochannel.GoChannel
	topic  string
	logger logger.ILogger
}

func NewProgressNotifier(pubSub *gochannel.GoChannel, topic string, log logger.ILogger) IProgressNotifier {
	return &progressNotifier{
		pubSub: pubSub,
		topic:  topic,
		logger: log,
	}
}

func (n *progressNotifier) publish(event ProgressEvent) {
	event.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Notifier", "Failed to marshal progress event", map[string]interface{}{"error": err.Error()})
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := n.pubSub.Publish(n.topic, msg); err != nil {
		n.logger.Warn("Notifier", "Failed to publish progress event", map[string]interface{}{
			"eventType": event.EventType,
			"error":     err.Error(),
		})
	}
}

func (n *progressNotifier) NotifyStart(subject, operation string, totalSamples int) {
	n.publish(ProgressEvent{
		EventType: EventOperationStarted,
		Message:   "Operation started: " + operation,
		SubjectID: subject,
		Data: map[string]interface{}{
			"operation":    operation,
			"totalSamples": totalSamples,
		},
	})
}

func (n *progressNotifier) NotifySampleStarted(subject string, sample, total int) {
	n.publish(ProgressEvent{
		EventType: EventSampleStarted,
		Message:   "Place finger on the sensor",
		SubjectID: subject,
		Data: map[string]interface{}{
			"sample": sample,
			"total":  total,
		},
	})
}

func (n *progressNotifier) NotifySampleCaptured(subject string, sample, total int, image []byte, quality float64) {
	progress := 0
	if total > 0 {
		progress = sample * 100 / total
	}
	n.publish(ProgressEvent{
		EventType: EventSampleCaptured,
		Message:   "Sample captured",
		SubjectID: subject,
		Data: map[string]interface{}{
			"sample":   sample,
			"total":    total,
			"progress": progress,
			"quality":  quality,
			"image":    base64.StdEncoding.EncodeToString(image),
		},
	})
}

func (n *progressNotifier) NotifyFingerRemoved(subject string, sample, total int) {
	message := "Remove finger and place it again"
	if sample >= total {
		message = "Processing final template"
	}
	n.publish(ProgressEvent{
		EventType: EventFingerRemoved,
		Message:   message,
		SubjectID: subject,
		Data: map[string]interface{}{
			"sample": sample,
			"total":  total,
		},
	})
}

func (n *progressNotifier) NotifyComplete(subject, operation string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["operation"] = operation
	n.publish(ProgressEvent{
		EventType: EventOperationCompleted,
		Message:   "Operation completed: " + operation,
		SubjectID: subject,
		Data:      data,
	})
}

func (n *progressNotifier) NotifyError(subject, code, message string) {
	n.publish(ProgressEvent{
		EventType: EventOperationFailed,
		Message:   message,
		SubjectID: subject,
		Data: map[string]interface{}{
			"errorCode": code,
		},
	})
}
