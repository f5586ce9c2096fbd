//go:build !linux

package canbus

import (
	"context"
	"fmt"
)

// SocketCAN is only available on linux; other platforms run with the
// synthetic generator.
func NewSocketCANSource(_ context.Context, ifname string) (FrameSource, error) {
	return nil, fmt.Errorf("socketcan interface %s: not supported on this platform", ifname)
}
