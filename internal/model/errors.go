package model

import "errors"

var (
	// ErrNotRunning is returned when an operation requires the websocket
	// server to be running and it is not.
	ErrNotRunning = errors.New("terminal server not running")

	// ErrUnknownHandle is returned when an operation references a terminal
	// handle that has no registration.
	ErrUnknownHandle = errors.New("unknown terminal handle")

	// ErrStaleConnection is returned when a handle is registered but its
	// physical connection has closed or was never established.
	ErrStaleConnection = errors.New("terminal connection no longer valid")

	// ErrBindExhausted is returned when no listening port could be secured
	// after the retry ceiling.
	ErrBindExhausted = errors.New("couldn't find an available port")

	// ErrBadMessage is returned when a low-level websocket send fails.
	ErrBadMessage = errors.New("failed to send message")

	// ErrTransport wraps faults surfaced from the transport layer during
	// accept, send, or shutdown.
	ErrTransport = errors.New("terminal transport fault")

	// ErrCommandRequired is returned when a session creation request is missing the command.
	ErrCommandRequired = errors.New("command is required")

	// ErrSessionNotFound is returned when a terminal session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConcurrencyLimit is returned when the maximum number of concurrent sessions is reached.
	ErrConcurrencyLimit = errors.New("concurrent session limit exceeded")
)
