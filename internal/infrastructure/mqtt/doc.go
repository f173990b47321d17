// Package mqtt provides the message bus transport for the services client.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - The services topic hierarchy (see Topics)
//
// # Architecture
//
// The client never talks to backend services directly. Every request is
// published to the broker, picked up by the middleman, and answered on a
// per-client reply topic:
//
//	services client ↔ MQTT broker ↔ middleman ↔ database / config store / plots
//
// # Handler Concurrency
//
// Incoming messages are dispatched on separate goroutines (paho's
// OrderMatters is off), so handlers may call Publish and wait for the
// broker's acknowledgement, and a slow handler does not hold up delivery of
// replies or alerts. Handlers must be safe for concurrent use; messages on
// one topic may be handled out of order.
//
// The Client is a borrowed handle: the services facade uses it but never
// closes or reconnects it. The embedding application owns its lifecycle.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) outside a trusted DAQ network
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Service.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllAlerts(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("alert %s: %s", mqtt.LastLevel(topic), payload)
//	        return nil
//	    })
package mqtt
