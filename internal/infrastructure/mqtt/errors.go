package mqtt

import "errors"

// Sentinel errors for broker operations, matched with errors.Is.
var (
	// ErrNotConnected means the session is down; paho is reconnecting
	// in the background, operations can be retried later.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed means the initial dial in Connect failed.
	ErrConnectionFailed = errors.New("mqtt: connect failed")

	// ErrPublishFailed wraps broker or timeout failures on publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps broker or timeout failures on subscribe.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps broker or timeout failures on
	// unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1, or 2")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
