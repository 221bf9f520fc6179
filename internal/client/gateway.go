package client

import (
	"context"
	"errors"
)

// ErrNotReady means the transport is not connected or not authenticated.
var ErrNotReady = errors.New("gateway not ready")

type Gateway interface {
	Send(ctx context.Context, phoneNumber, message string) (remoteMessageID string, err error)
	Ready(ctx context.Context) error
}
