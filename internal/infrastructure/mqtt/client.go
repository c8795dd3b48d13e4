package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/benchrig/benchrig-core/internal/infrastructure/config"
)

// Client is the daemon's handle on the broker. It wraps paho with the
// pieces the rig needs: an online/offline announcement on the system
// status topic, subscriptions that survive a reconnect, and panic
// containment around message handlers so a bad payload cannot take the
// paho router down.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// mu guards connection state, callbacks and the logger.
	mu           sync.RWMutex
	connected    bool
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger

	// subMu guards the resubscription table.
	subMu sync.RWMutex
	subs  map[string]subscription
}

// Logger is the slice of logging.Logger this package needs. slog
// satisfies it too.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription remembers enough to re-subscribe after a reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives inbound messages. paho calls handlers on its
// own goroutines, so a handler that blocks stalls delivery for its
// subscription only. A returned error is logged and otherwise ignored;
// MQTT has no negative acknowledgement to send.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by cfg and waits for the session
// to come up. The connection carries a retained last-will so peers see
// "offline" if this process dies without saying goodbye; a retained
// "online" announcement follows every successful (re)connect.
// Reconnection with backoff is handled by paho underneath.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.brokerUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.brokerDown(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: no session within %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback fires asynchronously; mark the client
	// connected now so IsConnected is true the moment Connect returns.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c, nil
}

// brokerUp runs on every successful connect, initial and after loss.
func (c *Client) brokerUp() {
	c.mu.Lock()
	c.connected = true
	cb := c.onConnect
	c.mu.Unlock()

	c.resubscribeAll()
	c.announce("online", "")

	if cb != nil {
		cb()
	}
}

func (c *Client) brokerDown(err error) {
	c.mu.Lock()
	c.connected = false
	cb := c.onDisconnect
	c.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// resubscribeAll replays the subscription table after a reconnect.
// Failures are left to the next reconnect cycle.
func (c *Client) resubscribeAll() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subs {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// announce publishes a retained presence document on the status topic.
func (c *Client) announce(status, reason string) {
	topic := Topics{Prefix: c.cfg.Topics.Prefix}.SystemStatus()
	c.client.Publish(topic, byte(c.cfg.QoS), true, statusPayload(c.cfg.Broker.ClientID, status, reason))
}

// Close says goodbye properly: a retained "offline" with a graceful
// reason (distinct from the crash-path last-will), then a quiesced
// disconnect that lets in-flight publishes drain.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		topic := Topics{Prefix: c.cfg.Topics.Prefix}.SystemStatus()
		token := c.client.Publish(topic, byte(c.cfg.QoS), true,
			statusPayload(c.cfg.Broker.ClientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports broker connectivity.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is currently up. It consults
// both our own state and paho's, since paho learns about a dropped TCP
// connection first.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect registers a callback run after every connect, including
// reconnects.
func (c *Client) SetOnConnect(cb func()) {
	c.mu.Lock()
	c.onConnect = cb
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback run when the session drops; the
// error says why.
func (c *Client) SetOnDisconnect(cb func(err error)) {
	c.mu.Lock()
	c.onDisconnect = cb
	c.mu.Unlock()
}

// SetLogger attaches a logger for handler errors and recovered panics.
// Without one those are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho's signature, containing
// panics and logging returned errors. One broken handler must not
// poison the shared paho callback goroutines.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.getLogger(); l != nil {
					l.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if l := c.getLogger(); l != nil {
				l.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
