// Package mqtt connects the relay to the site MQTT broker.
//
// The relay subscribes to device telemetry published by protocol bridges,
// processes each message, and optionally republishes it for the next stage.
// The client reconnects automatically and restores its subscriptions, and it
// publishes a retained online/offline status with a Last Will so other
// services can see when the relay is down.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.MQTT.Topics.Telemetry, 1, handler.HandleMessage)
//
// Handlers run on paho's goroutines. A handler panic is recovered and logged;
// a returned error is logged and the message is not redelivered.
package mqtt
