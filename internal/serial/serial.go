// Package serial provides the point-to-point serial link with hardware
// abstraction. The real implementation uses go.bug.st/serial; the fake
// implementation allows testing without a device.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sweeney/ledlink/internal/bytechan"
)

// Port is an open serial device. Read must return within a bounded time
// (a read timeout) so the receive loop can observe cancellation.
type Port interface {
	io.ReadWriter
	Close() error
}

// Terminator ends every transmitted line.
const Terminator = "\r\n"

// Pump moves received bytes into ch, one non-blocking push per byte, until
// ctx is done or the port fails. Bytes rejected by a full channel are
// counted by the channel.
func Pump(ctx context.Context, r io.Reader, ch *bytechan.Channel) error {
	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			ch.Push(buf[i])
		}
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("serial read: %w", err)
		}
	}
}

// Link writes terminated lines to a port. It is safe for concurrent use.
type Link struct {
	mu   sync.Mutex
	w    io.Writer
	sent atomic.Uint64
}

// NewLink creates a transmitter on w.
func NewLink(w io.Writer) *Link {
	return &Link{w: w}
}

// Transmit writes line followed by CRLF in a single write.
func (l *Link) Transmit(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := []byte(line + Terminator)
	n, err := l.w.Write(msg)
	if err != nil {
		return fmt.Errorf("transmit %q: %w", line, err)
	}
	if n != len(msg) {
		return fmt.Errorf("transmit %q: %w", line, io.ErrShortWrite)
	}
	l.sent.Add(1)
	return nil
}

// Sent returns the number of lines transmitted successfully.
func (l *Link) Sent() uint64 { return l.sent.Load() }

// ErrClosed is returned by a closed fake port.
var ErrClosed = errors.New("serial: port closed")
