package canbus

import (
	"context"

	"go.einride.tech/can"
)

// FrameSource supplies inbound raw frames. The live implementation
// wraps SocketCAN; tests and bench setups feed frames directly.
type FrameSource interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}
