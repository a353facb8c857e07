package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-relay/internal/metrics"
)

// defaultHandleTimeout bounds the processing of one MQTT message.
const defaultHandleTimeout = 60 * time.Second

// MessageProcessor is the pipeline a Handler feeds.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, deviceID string, body map[string]any) (Outcome, error)
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Processor MessageProcessor

	// Publisher and NextTopic enable forwarding. Handled messages are
	// republished unchanged to NextTopic when both are set.
	Publisher Publisher
	NextTopic string
	QoS       byte

	// Timeout bounds each message. Defaults to one minute.
	Timeout time.Duration

	Logger Logger
}

// Handler adapts a MessageProcessor to MQTT message delivery.
type Handler struct {
	processor MessageProcessor
	publisher Publisher
	nextTopic string
	qos       byte
	timeout   time.Duration
	logger    Logger
	baseCtx   context.Context
}

// NewHandler creates a handler. ctx is the parent of every per-message
// context, so cancelling it stops in-flight processing.
func NewHandler(ctx context.Context, cfg HandlerConfig) (*Handler, error) {
	if cfg.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHandleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Handler{
		processor: cfg.Processor,
		publisher: cfg.Publisher,
		nextTopic: cfg.NextTopic,
		qos:       cfg.QoS,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		baseCtx:   ctx,
	}, nil
}

// HandleMessage processes one telemetry payload received on topic.
// Its signature matches mqtt.MessageHandler.
func (h *Handler) HandleMessage(topic string, payload []byte) error {
	reqID := uuid.NewString()

	msg, err := ParseMessage(topic, payload)
	if err != nil {
		metrics.Messages.WithLabelValues("invalid").Inc()
		h.logger.Warn("dropping invalid telemetry message", "request_id", reqID, "topic", topic, "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(WithRequestID(h.baseCtx, reqID), h.timeout)
	defer cancel()

	start := time.Now()
	outcome, err := h.processor.ProcessMessage(ctx, msg.Device, msg.Body)
	if err != nil {
		h.logger.Error("processing telemetry message failed",
			"request_id", reqID,
			"device", msg.Device,
			"status", outcome.Status,
			"error", err,
		)
		return err
	}

	h.logger.Debug("telemetry message processed",
		"request_id", reqID,
		"device", msg.Device,
		"status", outcome.Status,
		"accounts", len(outcome.Accounts),
		"duration", time.Since(start),
	)

	if h.publisher != nil && h.nextTopic != "" {
		if err := h.publisher.Publish(h.nextTopic, payload, h.qos, false); err != nil {
			h.logger.Warn("forwarding message failed", "request_id", reqID, "topic", h.nextTopic, "error", err)
			return err
		}
	}
	return nil
}
