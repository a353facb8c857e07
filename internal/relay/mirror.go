package relay

import (
	"math"
	"time"

	"github.com/goccy/go-json"
)

// TelemetryWriter stores one set of numeric fields for a device.
type TelemetryWriter interface {
	WriteTelemetry(deviceID string, fields map[string]any, timestamp time.Time)
}

// Mirror copies the numeric fields of processed messages to a time-series store.
type Mirror struct {
	writer TelemetryWriter
	now    func() time.Time
}

// NewMirror creates a mirror writing through w.
func NewMirror(w TelemetryWriter) *Mirror {
	return &Mirror{writer: w, now: time.Now}
}

// Record writes the numeric fields of body at timestamp (Unix ms). A zero
// timestamp means now. Bodies without numeric fields are not written.
func (m *Mirror) Record(deviceID string, body map[string]any, timestamp int64) {
	fields := NumericFields(body)
	if len(fields) == 0 {
		return
	}
	ts := m.now()
	if timestamp > 0 {
		ts = time.UnixMilli(timestamp)
	}
	m.writer.WriteTelemetry(deviceID, fields, ts)
}

// NumericFields returns the finite numeric fields of body as float64,
// excluding the reserved timestamp and duplicate fields.
func NumericFields(body map[string]any) map[string]any {
	fields := make(map[string]any)
	for k, v := range body {
		if k == FieldTimestamp || k == FieldDuplicate {
			continue
		}
		var f float64
		switch x := v.(type) {
		case json.Number:
			parsed, err := x.Float64()
			if err != nil {
				continue
			}
			f = parsed
		case float64:
			f = x
		case float32:
			f = float64(x)
		case int:
			f = float64(x)
		case int64:
			f = float64(x)
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		fields[k] = f
	}
	return fields
}
