package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for the messaging transport.
var (
	// ErrConnectRejected indicates the server answered the handshake with a
	// connect_error frame (typically a bad or expired token).
	ErrConnectRejected = errors.New("connection rejected")

	// ErrHandshake indicates the first frame was not a handshake frame.
	ErrHandshake = errors.New("unexpected handshake")

	// ErrMalformedFrame indicates a frame whose payload could not be decoded.
	// The connection itself is still usable.
	ErrMalformedFrame = errors.New("malformed frame")
)

// APIError is a non-2xx response from the REST API. Message is the server's
// message field when present, otherwise a generic text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}
