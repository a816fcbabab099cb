// Package device implements the printer device backend (component C1):
// USB bulk-endpoint discovery and write, with a character-device fallback,
// a single-writer discipline, and reconnection.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotConnected reports that a device has no open connection. The
// backends in this package do not return it: a failed connect from SendRaw
// surfaces as *ErrConnectionFailed.
var ErrNotConnected = errors.New("device: not connected")

// ErrConnectionFailed wraps a failure to open or write to the physical
// device; the pipeline maps this to job state aborted(8).
type ErrConnectionFailed struct {
	Err error
}

func (e *ErrConnectionFailed) Error() string {
	return fmt.Sprintf("printer connection error: %v", e.Err)
}

func (e *ErrConnectionFailed) Unwrap() error { return e.Err }

// Backend is the contract both device implementations satisfy (spec §4.5).
type Backend interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SendRaw(ctx context.Context, data []byte) error
	IsConnected() bool
}

// VIDPID is a USB vendor/product id pair.
type VIDPID struct {
	Vendor, Product uint16
	Description     string
}

// KnownThermalPrinters is the built-in allow-list of common thermal printer
// VID/PID pairs, carried from the reference implementation's
// known_thermal_printers table.
var KnownThermalPrinters = []VIDPID{
	{0x04b8, 0x0202, "Epson TM series"},
	{0x04b8, 0x0e03, "Epson TM-T20"},
	{0x04b8, 0x0e15, "Epson TM-T82"},
	{0x0fe6, 0x811e, "Star TSP650"},
	{0x0fe6, 0x811f, "Star TSP700"},
	{0x0fe6, 0x8120, "Star TSP800"},
	{0x1504, 0x0006, "Citizen CT-S310"},
	{0x2d84, 0x0011, "Generic thermal printer"},
	{0x28e9, 0x0289, "Generic ESC/POS"},
}

// PrinterClassCode is the USB interface class for printers (spec §4.5 step 3).
const PrinterClassCode = 0x07

// defaultMaxPacketSize is the bulk-write chunk size fallback when a
// device's endpoint descriptor doesn't report one.
const defaultMaxPacketSize = 64

// defaultWriteTimeout is the bulk-write bound (USB_TIMEOUT default, 5s).
const defaultWriteTimeout = 5 * time.Second

// CharDevicePaths are the character-device fallback candidates tried in
// order, first writable one wins (spec §4.5 "Character-device fallback").
var CharDevicePaths = []string{"/dev/usb/lp0", "/dev/usb/lp1", "/dev/lp0", "/dev/lp1"}

// mutexGuard implements the process-wide single-holder device lock (spec
// §4.3 step 4, §5 "Device Backend handle: exclusive mutex, no reentry").
// It is embedded by both backend implementations so neither one needs to
// duplicate the locking discipline.
type mutexGuard struct {
	mu sync.Mutex
}

// WithLock runs fn while holding the device's exclusive lock. sync.Mutex
// does not guarantee that waiters acquire it in arrival order; acceptance
// order for job writes is enforced by the pipeline's turn chain instead.
func (g *mutexGuard) WithLock(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}

// Kind selects which Backend implementation New constructs.
type Kind int

const (
	// KindAuto builds the USB backend, exactly as KindUSB does; it does
	// not fall back to the character device when USB discovery fails.
	// Callers that want that fallback must build a KindCharDev backend
	// themselves.
	KindAuto Kind = iota
	KindUSB
	KindCharDev
)

// New builds the configured Backend implementation. Dispatch happens once
// at construction time, per spec §9 "pick at construction time behind a
// single interface type" — no runtime polymorphism beyond that boundary.
func New(kind Kind, usbOpts USBOptions, charDevPaths []string) Backend {
	switch kind {
	case KindCharDev:
		return NewCharDevBackend(charDevPaths)
	default:
		return NewUSBBackend(usbOpts)
	}
}
