package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/benchrig/benchrig-core/internal/infrastructure/config"
)

const (
	// defaultConnectTimeout bounds the initial session handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds waiting for a publish or subscribe
	// token.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce, in milliseconds, is handed to paho's
	// Disconnect so pending work can drain.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the MQTT ping interval.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the highest level the protocol defines.
	maxQoS = 2
)

// buildClientOptions translates the config section into paho options:
// broker URL, identity, credentials, clean session, and reconnect
// backoff between the configured initial and max delays.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// configureLWT arms the broker-side last will: a retained offline
// document on the status topic, delivered if this client vanishes
// without a graceful Close. Peers watching the status topic therefore
// always see the truth, whichever way the process went down.
func configureLWT(opts *pahomqtt.ClientOptions, cfg config.MQTTConfig) {
	topic := Topics{Prefix: cfg.Topics.Prefix}.SystemStatus()
	opts.SetWill(topic, statusPayload(cfg.Broker.ClientID, "offline", "unexpected_disconnect"), 1, true)
}

// statusMessage is the presence document on the system status topic.
type statusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// statusPayload renders a presence document. reason is omitted when
// empty, so plain "online" announcements stay lean.
func statusPayload(clientID, status, reason string) string {
	b, _ := json.Marshal(statusMessage{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(b)
}
