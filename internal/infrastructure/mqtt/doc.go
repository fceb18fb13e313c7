// Package mqtt is the StudioTether daemon's broker session.
//
// The daemon treats MQTT as a lightweight studio bus with three branches:
//
//	studiotether/status        retained presence, also the LWT target
//	studiotether/event/...     connection and capture notifications
//	studiotether/cmd/...       inbound remote commands
//
// Dashboards and overlay renderers follow the event branch without
// coupling to the daemon's process; automation controllers (capture
// consoles, stream decks) drive navigation and settings through the
// command branch. Everything stateful lives on one retained topic, so a
// subscriber joining mid-session sees current presence immediately.
//
// # Lifecycle
//
// Connect performs the only blocking dial; every later reconnect belongs
// to paho and is invisible to callers beyond the optional
// SetOnConnect/SetOnDisconnect callbacks. Tracked subscriptions are
// replayed after each reconnect, and the LWT guarantees an offline
// payload lands on the status topic even if the process dies.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	client.Subscribe(topics.AllCommands(), 1, dispatchCommand)
//	client.Publish(topics.CaptureEvent(), payload, 1, false)
//
// TLS (minimum 1.2) and username auth come from config; local development
// brokers may run anonymous and plaintext.
package mqtt
