package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement telemetry is written to.
const Measurement = "telemetry"

// WriteTelemetry queues one point for deviceID. Empty field sets and writes
// after Close are dropped.
func (c *Client) WriteTelemetry(deviceID string, fields map[string]any, timestamp time.Time) {
	if len(fields) == 0 || !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		Measurement,
		map[string]string{"device_id": deviceID},
		fields,
		timestamp,
	)
	c.writeAPI.WritePoint(point)
}
