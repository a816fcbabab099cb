package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

// USBOptions configures USB discovery (spec §4.5 "USB backend").
type USBOptions struct {
	// Vendor/Product force a specific device; zero means auto-discover via
	// the allow-list then a class-0x07 scan.
	Vendor, Product uint16
	WriteTimeout    time.Duration
}

// USBBackend discovers and holds a USB printer connection, writing via its
// bulk OUT endpoint in bounded chunks.
type USBBackend struct {
	mutexGuard

	opts USBOptions
	ctx  *gousb.Context

	stateMu   sync.Mutex
	dev       *gousb.Device
	intfDone  func()
	out       *gousb.OutEndpoint
	connected bool
}

// NewUSBBackend constructs a USB backend. The gousb.Context is created
// lazily on first Connect so constructing a backend never touches the
// system's USB subsystem.
func NewUSBBackend(opts USBOptions) *USBBackend {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &USBBackend{opts: opts}
}

// Connect discovers and opens a USB thermal printer, per the three-step
// order in spec §4.5: configured VID/PID, then the allow-list, then a scan
// for any class-0x07 (Printer) interface.
func (b *USBBackend) Connect(ctx context.Context) error {
	return b.WithLock(func() error {
		return b.connectLocked(ctx)
	})
}

func (b *USBBackend) connectLocked(ctx context.Context) error {
	b.stateMu.Lock()
	already := b.connected
	b.stateMu.Unlock()
	if already {
		return nil
	}

	if b.ctx == nil {
		b.ctx = gousb.NewContext()
	}

	dev, err := b.findDevice()
	if err != nil {
		return &ErrConnectionFailed{Err: err}
	}

	if err := dev.SetAutoDetach(true); err != nil {
		// Not fatal: some platforms/devices don't support detach, or the
		// driver was never attached in the first place.
		_ = err
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		return &ErrConnectionFailed{Err: fmt.Errorf("claim interface: %w", err)}
	}

	out, err := firstBulkOutEndpoint(intf)
	if err != nil {
		done()
		dev.Close()
		return &ErrConnectionFailed{Err: err}
	}

	b.stateMu.Lock()
	b.dev = dev
	b.intfDone = done
	b.out = out
	b.connected = true
	b.stateMu.Unlock()
	return nil
}

// findDevice implements the discovery order: configured VID/PID, the
// built-in allow-list, then any class-0x07 interface.
func (b *USBBackend) findDevice() (*gousb.Device, error) {
	if b.opts.Vendor != 0 && b.opts.Product != 0 {
		dev, err := b.ctx.OpenDeviceWithVIDPID(gousb.ID(b.opts.Vendor), gousb.ID(b.opts.Product))
		if err == nil && dev != nil {
			return dev, nil
		}
	}

	for _, known := range KnownThermalPrinters {
		dev, err := b.ctx.OpenDeviceWithVIDPID(gousb.ID(known.Vendor), gousb.ID(known.Product))
		if err == nil && dev != nil {
			return dev, nil
		}
	}

	var found *gousb.Device
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		for _, cfg := range desc.Configs {
			for _, intf := range cfg.Interfaces {
				for _, alt := range intf.AltSettings {
					if alt.Class == gousb.ClassPrinter {
						return true
					}
				}
			}
		}
		return false
	})
	if err == nil {
		for i, d := range devs {
			if i == 0 {
				found = d
			} else {
				d.Close()
			}
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no compatible thermal printer found")
	}
	return found, nil
}

func firstBulkOutEndpoint(intf *gousb.Interface) (*gousb.OutEndpoint, error) {
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionOut && ep.TransferType == gousb.TransferTypeBulk {
			out, err := intf.OutEndpoint(ep.Number)
			if err != nil {
				return nil, fmt.Errorf("open bulk out endpoint: %w", err)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("no bulk OUT endpoint found")
}

// Disconnect releases the USB interface and device handle.
func (b *USBBackend) Disconnect() error {
	return b.WithLock(func() error {
		b.stateMu.Lock()
		defer b.stateMu.Unlock()
		if b.intfDone != nil {
			b.intfDone()
			b.intfDone = nil
		}
		if b.dev != nil {
			b.dev.Close()
			b.dev = nil
		}
		b.out = nil
		b.connected = false
		return nil
	})
}

// IsConnected reports the last known connection state.
func (b *USBBackend) IsConnected() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.connected
}

// SendRaw writes data in chunks bounded by the endpoint's max packet size
// (spec §4.3 step 5, §4.5 "Write discipline"). On error it marks itself
// disconnected; the caller's next SendRaw attempts one reconnection.
func (b *USBBackend) SendRaw(ctx context.Context, data []byte) error {
	return b.WithLock(func() error {
		if !b.IsConnected() {
			if err := b.connectLocked(ctx); err != nil {
				return err
			}
		}

		b.stateMu.Lock()
		out := b.out
		b.stateMu.Unlock()

		chunkSize := defaultMaxPacketSize
		if out.Desc.MaxPacketSize > 0 {
			chunkSize = out.Desc.MaxPacketSize
		}

		writeCtx, cancel := context.WithTimeout(ctx, b.opts.WriteTimeout)
		defer cancel()

		for off := 0; off < len(data); off += chunkSize {
			end := off + chunkSize
			if end > len(data) {
				end = len(data)
			}
			if _, err := out.WriteContext(writeCtx, data[off:end]); err != nil {
				b.stateMu.Lock()
				b.connected = false
				b.stateMu.Unlock()
				return &ErrConnectionFailed{Err: fmt.Errorf("bulk write: %w", err)}
			}
		}
		return nil
	})
}
