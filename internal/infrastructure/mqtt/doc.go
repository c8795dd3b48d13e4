// Package mqtt is the bench controller's connection to the broker.
//
// MQTT is the rig's external message bus: dashboards, data loggers and
// scripts operate instruments by publishing commands and subscribing
// to retained state, without holding an HTTP connection open. This
// package wraps the paho client with the pieces every caller needs and
// nothing else: connect with LWT, publish, subscribe with replay after
// reconnect, and a health check.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.Topics.Prefix}
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish(topics.State("furnace-1", "measure"), []byte(`{"value":23.0}`), 1, true)
//
// Presence works through the status topic: a retained "online" message
// goes out on every (re)connect, a retained "offline" on graceful
// shutdown, and the Last Will covers crashes. Watching
// benchrig/system/status is therefore enough to know whether the rig
// is reachable.
//
// Subscriptions are tracked locally and replayed after every
// reconnect, so handlers survive broker restarts. Handler panics are
// contained per message; a panicking handler loses that message, not
// the connection.
//
// Enable cfg.Broker.TLS outside of single-machine development. The
// client never logs credentials or payload bodies.
package mqtt
