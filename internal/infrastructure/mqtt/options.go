package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mkarlberg/studiotether/internal/infrastructure/config"
)

// Operation limits. Connect and publish block the caller, so both carry
// hard timeouts; reconnects after that are paho's business.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds, handed straight to paho
	defaultKeepAlive         = 60 * time.Second

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// Presence payload vocabulary. These strings are wire contract for anything
// watching studiotether/status.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"

	reasonUnexpectedDisconnect = "unexpected_disconnect"
	reasonGracefulShutdown     = "graceful_shutdown"
)

// presence is the wire form of every status payload: the LWT the broker
// fires on our behalf, the post-connect online announcement, and the
// graceful offline notice sent during Close.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// presencePayload renders a status payload for the given state. Marshal of
// a flat string struct cannot fail, so the error is discarded.
func presencePayload(status, clientID, reason string) string {
	data, _ := json.Marshal(presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(data)
}

// brokerOptions translates MQTTConfig into a paho options block.
//
// Sessions are always clean: the daemon replays its own subscriptions on
// reconnect, so broker-side session state would only mask bugs. Reconnect
// pacing comes from config; paho backs off between the two bounds on its
// own.
func brokerOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// setLastWill registers the LWT on the status topic. The broker publishes
// it if the session dies without a DISCONNECT packet, so dashboards see
// offline even when the daemon never got a chance to say so. QoS 1 and
// retained, matching the daemon's own status publishes.
func setLastWill(opts *pahomqtt.ClientOptions, clientID string) {
	payload := presencePayload(presenceOffline, clientID, reasonUnexpectedDisconnect)
	opts.SetWill(Topics{}.SystemStatus(), payload, 1, true)
}
