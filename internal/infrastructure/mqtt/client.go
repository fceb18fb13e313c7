package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mkarlberg/studiotether/internal/infrastructure/config"
)

// Client is the daemon's broker session. It wraps paho.mqtt.golang with
// subscription replay after reconnect, presence publishing on the status
// topic, and panic containment around message handlers.
//
// All methods are safe for concurrent use. A zero-value Client reports
// disconnected and rejects publish and subscribe calls; only Connect
// produces a usable session.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// stateMu guards up, the connection callbacks, and the logger.
	stateMu      sync.RWMutex
	up           bool
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger

	// subMu guards subs, the replay table keyed by topic filter.
	subMu sync.RWMutex
	subs  map[string]route
}

// Logger is the slice of logging.Logger this package needs.
// slog.Logger satisfies it too.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// route is a tracked subscription, replayed after every reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives inbound messages. paho invokes handlers on its
// own goroutines, so long work should be handed off. A returned error is
// logged and otherwise dropped; MQTT has no nack.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and returns a live session.
//
// The options block carries the LWT, so the broker flips the retained
// status topic to offline if this process dies mid-session. On every
// (re)connect the client replays its subscription table and announces
// itself online. Only the initial attempt is bounded by the timeout
// here; after that paho owns the retry loop.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := brokerOptions(cfg)
	setLastWill(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:  cfg,
		subs: make(map[string]route),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.onConnected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), ErrConnectionFailed, defaultConnectTimeout); err != nil {
		return nil, err
	}

	// The OnConnect handler runs on a paho goroutine and may not have
	// fired yet. Mark the session up here so IsConnected is true the
	// moment Connect returns; the handler still does replay and presence.
	c.stateMu.Lock()
	c.up = true
	c.stateMu.Unlock()

	return c, nil
}

// await blocks until the broker acknowledges token or limit passes,
// wrapping either failure in op.
func await(token pahomqtt.Token, op error, limit time.Duration) error {
	if !token.WaitTimeout(limit) {
		return fmt.Errorf("%w: no broker ack within %v", op, limit)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", op, err)
	}
	return nil
}

// onConnected runs on every successful connect, initial or otherwise.
func (c *Client) onConnected() {
	c.stateMu.Lock()
	c.up = true
	notify := c.onConnect
	c.stateMu.Unlock()

	c.replaySubscriptions()
	c.announcePresence(presenceOnline, "")

	if notify != nil {
		notify()
	}
}

// onConnectionLost runs when the session drops. paho keeps retrying in
// the background; this only flips local state and notifies the owner.
func (c *Client) onConnectionLost(err error) {
	c.stateMu.Lock()
	c.up = false
	notify := c.onDisconnect
	c.stateMu.Unlock()

	if notify != nil {
		notify(err)
	}
}

// replaySubscriptions re-issues every tracked subscription. Errors are
// ignored: if the session drops again mid-replay, the next reconnect
// replays the full table anyway.
func (c *Client) replaySubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, r := range c.subs {
		c.client.Subscribe(topic, r.qos, c.guard(r.handler))
	}
}

// announcePresence publishes a retained presence payload on the status
// topic and returns the token so callers that care can wait on it.
func (c *Client) announcePresence(status, reason string) pahomqtt.Token {
	payload := presencePayload(status, c.cfg.Broker.ClientID, reason)
	return c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close announces a graceful offline (distinct from the LWT crash
// payload), lets in-flight operations drain, and disconnects. Closing a
// never-connected client is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.announcePresence(presenceOffline, reasonGracefulShutdown).WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.stateMu.Lock()
	c.up = false
	c.stateMu.Unlock()

	return nil
}

// HealthCheck reports whether the broker session is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the last known session state. The paho check runs
// only after our own flag, which keeps the zero value safe.
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.up && c.client.IsConnected()
}

// SetOnConnect registers a callback invoked on the initial connect and on
// every reconnect after that.
func (c *Client) SetOnConnect(fn func()) {
	c.stateMu.Lock()
	c.onConnect = fn
	c.stateMu.Unlock()
}

// SetOnDisconnect registers a callback invoked when the session drops.
// The error carries paho's reason for the loss.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.stateMu.Lock()
	c.onDisconnect = fn
	c.stateMu.Unlock()
}

// SetLogger wires a logger for handler errors and recovered panics.
// Without one, those are dropped silently.
func (c *Client) SetLogger(logger Logger) {
	c.stateMu.Lock()
	c.logger = logger
	c.stateMu.Unlock()
}

func (c *Client) currentLogger() Logger {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.logger
}

// guard adapts a MessageHandler to paho's signature, containing panics so
// a broken handler cannot take down paho's router goroutine.
func (c *Client) guard(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.currentLogger(); logger != nil {
					logger.Error("mqtt handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.currentLogger(); logger != nil {
				logger.Warn("mqtt handler error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
