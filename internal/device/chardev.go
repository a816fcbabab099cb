package device

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// CharDevBackend writes to a printer exposed as a Linux character device
// (e.g. /dev/usb/lp0), used when USB bulk-endpoint access is unavailable
// (spec §4.5 "Character-device fallback"). Writes are unbuffered with an
// explicit flush.
type CharDevBackend struct {
	mutexGuard

	paths []string

	stateMu   sync.Mutex
	f         *os.File
	path      string
	connected bool
}

// NewCharDevBackend builds a fallback backend trying paths in order; a nil
// slice uses CharDevicePaths.
func NewCharDevBackend(paths []string) *CharDevBackend {
	if len(paths) == 0 {
		paths = CharDevicePaths
	}
	return &CharDevBackend{paths: paths}
}

// Connect opens the first writable candidate path.
func (b *CharDevBackend) Connect(ctx context.Context) error {
	return b.WithLock(func() error {
		return b.connectLocked()
	})
}

func (b *CharDevBackend) connectLocked() error {
	b.stateMu.Lock()
	already := b.connected
	b.stateMu.Unlock()
	if already {
		return nil
	}

	var lastErr error
	for _, path := range b.paths {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_SYNC, 0)
		if err != nil {
			lastErr = err
			continue
		}
		b.stateMu.Lock()
		b.f = f
		b.path = path
		b.connected = true
		b.stateMu.Unlock()
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no character device path available")
	}
	return &ErrConnectionFailed{Err: lastErr}
}

// Disconnect closes the underlying file handle.
func (b *CharDevBackend) Disconnect() error {
	return b.WithLock(func() error {
		b.stateMu.Lock()
		defer b.stateMu.Unlock()
		if b.f != nil {
			err := b.f.Close()
			b.f = nil
			b.connected = false
			return err
		}
		return nil
	})
}

// IsConnected reports the last known connection state.
func (b *CharDevBackend) IsConnected() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.connected
}

// SendRaw writes the whole payload (no chunking needed for a character
// device) and flushes explicitly.
func (b *CharDevBackend) SendRaw(ctx context.Context, data []byte) error {
	return b.WithLock(func() error {
		if !b.IsConnected() {
			if err := b.connectLocked(); err != nil {
				return err
			}
		}
		b.stateMu.Lock()
		f := b.f
		b.stateMu.Unlock()

		if _, err := f.Write(data); err != nil {
			b.stateMu.Lock()
			b.connected = false
			b.stateMu.Unlock()
			return &ErrConnectionFailed{Err: fmt.Errorf("char device write: %w", err)}
		}
		return f.Sync()
	})
}
