package relay

import "context"

// locationFields are carried between location and sensor messages.
var locationFields = []string{FieldLat, FieldLng, FieldDeviceLat, FieldDeviceLng}

// StateStore persists the last reported body of each device.
type StateStore interface {
	// Reported returns the last saved body for deviceID, or an empty map
	// without error when the device has never reported.
	Reported(ctx context.Context, deviceID string) (map[string]any, error)

	// SaveReported replaces the saved body for deviceID.
	SaveReported(ctx context.Context, deviceID string, body map[string]any) error
}

// LocationMerger completes a message with fields from the previous one.
//
// Location and sensor readings arrive in separate messages. A message with a
// device position gets the previous sensor values; a message without one gets
// the previous position.
type LocationMerger struct {
	store  StateStore
	logger Logger
}

// NewLocationMerger creates a merger backed by store.
func NewLocationMerger(store StateStore, logger Logger) *LocationMerger {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LocationMerger{store: store, logger: logger}
}

// ContainsLocation reports whether body carries a device position.
func ContainsLocation(body map[string]any) bool {
	return truthy(body[FieldDeviceLat]) && truthy(body[FieldDeviceLng])
}

// Merge returns body completed from the device's saved state. Failures to
// read the state are logged and body is returned as is.
func (m *LocationMerger) Merge(ctx context.Context, deviceID string, body map[string]any) map[string]any {
	state, err := m.store.Reported(ctx, deviceID)
	if err != nil {
		m.logger.Warn("reading device state failed", "device", deviceID, "error", err)
		return body
	}
	if len(state) == 0 {
		return body
	}

	if ContainsLocation(body) {
		merged := copyBody(state)
		for _, key := range locationFields {
			if truthy(body[key]) {
				merged[key] = body[key]
			}
		}
		// The saved state may predate this message's own metadata.
		for _, key := range []string{FieldTimestamp, FieldDuplicate} {
			if v, ok := body[key]; ok {
				merged[key] = v
			} else {
				delete(merged, key)
			}
		}
		m.logger.Debug("copied previous sensor values", "device", deviceID)
		return merged
	}

	merged := copyBody(body)
	for _, key := range locationFields {
		if truthy(state[key]) {
			merged[key] = state[key]
		}
	}
	m.logger.Debug("copied previous location", "device", deviceID)
	return merged
}

// Save records body as the device's reported state.
func (m *LocationMerger) Save(ctx context.Context, deviceID string, body map[string]any) error {
	return m.store.SaveReported(ctx, deviceID, body)
}
