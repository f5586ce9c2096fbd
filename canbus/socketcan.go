//go:build linux

package canbus

import (
	"context"
	"fmt"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// SocketCANSource reads frames from a SocketCAN interface.
type SocketCANSource struct {
	conn net.Conn
	recv *socketcan.Receiver
}

func NewSocketCANSource(ctx context.Context, ifname string) (FrameSource, error) {
	conn, err := socketcan.DialContext(ctx, "can", ifname)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", ifname, err)
	}
	return &SocketCANSource{conn: conn, recv: socketcan.NewReceiver(conn)}, nil
}

// ReadFrame blocks until a frame arrives or the context is cancelled.
func (s *SocketCANSource) ReadFrame(ctx context.Context) (can.Frame, error) {
	frameChan := make(chan can.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		if s.recv.Receive() {
			frameChan <- s.recv.Frame()
		} else {
			errChan <- fmt.Errorf("socketcan receive failed")
		}
	}()

	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f := <-frameChan:
		return f, nil
	case err := <-errChan:
		return can.Frame{}, err
	}
}

func (s *SocketCANSource) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
