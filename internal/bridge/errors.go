package bridge

import "errors"

var (
	// ErrBadTopic indicates a message on a topic that does not parse as
	// {prefix}/command/{instrument}/{path}/{verb}.
	ErrBadTopic = errors.New("bridge: not a command topic")

	// ErrNotRunning indicates a command addressed to an instrument the
	// registry is not running.
	ErrNotRunning = errors.New("bridge: instrument not running")

	// ErrUnknownVerb indicates a command verb other than get, set or
	// invoke.
	ErrUnknownVerb = errors.New("bridge: unknown verb")
)
