package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps a single message at 1MB. Nothing the rig
// publishes comes near this; the guard exists so a runaway caller
// fails here instead of at the broker.
const maxPayloadSize = 1 << 20

// validateTopic applies the checks shared by publish and subscribe.
func validateTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// awaitToken blocks until the broker acknowledges the operation the
// token tracks, folding ack timeouts and broker refusals into a single
// error wrapped around opErr.
func awaitToken(token pahomqtt.Token, opErr error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: no ack within %v", opErr, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", opErr, err)
	}
	return nil
}

// Publish sends payload to topic and waits for the broker's ack.
// retained asks the broker to hand the message to future subscribers
// as well; use it for state and presence, never for commands or acks,
// which are events rather than values.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validateTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds the %d byte cap", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return awaitToken(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes retained at the configured default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
