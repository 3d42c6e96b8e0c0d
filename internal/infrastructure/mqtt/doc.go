// Package mqtt provides MQTT client connectivity for PinGrid Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the only path between the Core and the fleet of embedded
// controllers. Devices are slow, may be offline, and acknowledge
// asynchronously; the broker decouples the Core from their availability.
//
//	PinGrid Core ↔ MQTT Broker ↔ Devices (remote agents)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all inbound device events addressed to this controller
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceEvents("ctl-1"), 1,
//	    func(topic string, payload []byte) error {
//	        _, deviceID, event, err := mqtt.ParseDeviceEvent(topic)
//	        ...
//	    })
//
//	// Publish a configuration command
//	topic := mqtt.Topics{}.SensorsConfigure("ctl-1", "esp32-a1")
//	client.Publish(topic, payload, 1, false)
package mqtt
