package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-relay/internal/directory"
	"github.com/nerrad567/gray-logic-relay/internal/metrics"
)

// Status is the outcome class of one processed message.
type Status string

const (
	// StatusDispatched means the device was found and every account was attempted.
	StatusDispatched Status = "dispatched"

	// StatusUnknownDevice means no account has the device. It is not an error.
	StatusUnknownDevice Status = "unknown_device"

	// StatusDuplicate means the message was a duplicate delivery and was skipped.
	StatusDuplicate Status = "duplicate"

	// StatusFailed means the message could not be processed.
	StatusFailed Status = "failed"
)

// Outcome describes what happened to one message.
type Outcome struct {
	Status   Status          `json:"status"`
	DeviceID string          `json:"device_id"`
	Accounts []AccountResult `json:"accounts,omitempty"`
}

// DirectorySource provides the merged account directory.
type DirectorySource interface {
	Directory(ctx context.Context, force bool) (*directory.Directory, error)
}

// VariableResolver resolves the per-account variables of a device.
type VariableResolver interface {
	Resolve(ctx context.Context, dir *directory.Directory, deviceID string) ([]directory.Resolution, bool)
}

// TelemetryRecorder receives every processed body.
type TelemetryRecorder interface {
	Record(deviceID string, body map[string]any, timestamp int64)
}

// ProcessorConfig holds the collaborators of a Processor.
// Directory and Resolver are required; the rest are optional steps.
type ProcessorConfig struct {
	Directory DirectorySource
	Resolver  VariableResolver
	Renamer   *FieldRenamer
	Merger    *LocationMerger
	Mirror    TelemetryRecorder
	Logger    Logger
}

// Processor runs the relay pipeline for one message at a time. It holds no
// per-message state and is safe for concurrent use.
type Processor struct {
	directory  DirectorySource
	resolver   VariableResolver
	renamer    *FieldRenamer
	merger     *LocationMerger
	mirror     TelemetryRecorder
	dispatcher *Dispatcher
	logger     Logger
}

// NewProcessor creates a processor from cfg.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Directory == nil {
		return nil, errors.New("directory source is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("variable resolver is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Processor{
		directory:  cfg.Directory,
		resolver:   cfg.Resolver,
		renamer:    cfg.Renamer,
		merger:     cfg.Merger,
		mirror:     cfg.Mirror,
		dispatcher: NewDispatcher(cfg.Logger),
		logger:     cfg.Logger,
	}, nil
}

// ProcessMessage records body for deviceID in every account that has the
// device.
//
// Duplicates return immediately without touching the directory. An unknown
// device is logged and returns StatusUnknownDevice with a nil error. A
// directory failure, or the first failed account update, is returned as the
// error; accounts already updated stay updated.
func (p *Processor) ProcessMessage(ctx context.Context, deviceID string, body map[string]any) (Outcome, error) {
	outcome := Outcome{DeviceID: deviceID}
	reqID := RequestID(ctx)

	if IsDuplicate(body) {
		outcome.Status = StatusDuplicate
		metrics.Messages.WithLabelValues(string(outcome.Status)).Inc()
		p.logger.Debug("skipping duplicate message", "request_id", reqID, "device", deviceID)
		return outcome, nil
	}

	// merged is the untransformed body saved as the device's new state.
	merged := body
	if p.merger != nil {
		merged = p.merger.Merge(ctx, deviceID, body)
	}
	fields := merged
	if p.renamer != nil {
		fields = p.renamer.Transform(merged)
	}

	dir, err := p.directory.Directory(ctx, false)
	if err != nil {
		outcome.Status = StatusFailed
		metrics.Messages.WithLabelValues(string(outcome.Status)).Inc()
		return outcome, fmt.Errorf("loading directory: %w", err)
	}

	resolutions, found := p.resolver.Resolve(ctx, dir, deviceID)
	if !found {
		outcome.Status = StatusUnknownDevice
		p.logger.Info("missing device", "request_id", reqID, "device", deviceID, "directory_devices", dir.Len())
	} else {
		outcome.Status = StatusDispatched
		outcome.Accounts, err = p.dispatcher.Dispatch(ctx, deviceID, resolutions, fields)
	}

	if p.mirror != nil {
		p.mirror.Record(deviceID, fields, ParseTimestamp(fields))
	}

	if err != nil {
		metrics.Messages.WithLabelValues(string(StatusFailed)).Inc()
		return outcome, err
	}

	if p.merger != nil {
		if saveErr := p.merger.Save(ctx, deviceID, merged); saveErr != nil {
			p.logger.Warn("saving device state failed", "request_id", reqID, "device", deviceID, "error", saveErr)
		}
	}

	metrics.Messages.WithLabelValues(string(outcome.Status)).Inc()
	return outcome, nil
}
