// Package influxdb mirrors relayed telemetry into InfluxDB v2.
//
// Every message the relay processes can be copied here as one point in the
// "telemetry" measurement, tagged with the device ID and carrying the
// message's numeric fields. Writes are non-blocking and batched; failures
// arrive asynchronously through the SetOnError callback and never affect
// delivery to the dashboard accounts.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("2C30EB", map[string]any{"tmp": 21.5}, time.Now())
package influxdb
