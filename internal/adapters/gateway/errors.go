package gateway

import "errors"

// Sentinel kinds for gateway errors.
var (
	// ErrUnauthorized means the bearer token was refused; the user must log in again.
	ErrUnauthorized = errors.New("gateway: unauthorized")
	// ErrRejectedByServer wraps a business rejection; the error text carries the server message.
	ErrRejectedByServer = errors.New("gateway: rejected by server")
	// ErrTransport covers network failures, timeouts and unexpected statuses.
	ErrTransport = errors.New("gateway: transport failure")
	// ErrDecode means the server answered with a body we could not read.
	ErrDecode = errors.New("gateway: malformed response")

	ErrInvalidToken = errors.New("gateway: malformed bearer token")
	ErrTokenExpired = errors.New("gateway: bearer token expired")
)
