// internal/websocket/errors.go
package websocket

import "errors"

var (
	ErrTabNotFound  = errors.New("tab not found")
	ErrInvalidInput = errors.New("invalid message payload")
)
