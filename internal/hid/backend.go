// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/als-brightness-daemon/internal/brightness"
)

// Class is the pseudo device class under which Studio Displays are addressed.
const Class = "hid"

// ErrUnsupportedAttribute is returned for attributes a Studio Display does not expose.
var ErrUnsupportedAttribute = errors.New("unsupported attribute")

// Backend reads and writes Studio Display levels, opening displays lazily by serial.
type Backend struct {
	displays map[string]*Display // serial -> display
	mu       sync.Mutex
	opener   DeviceOpener
}

// BackendOption is a functional option for configuring a Backend.
type BackendOption func(*Backend)

// WithOpener sets a custom device opener for testing.
func WithOpener(fn DeviceOpener) BackendOption {
	return func(b *Backend) {
		b.opener = fn
	}
}

// NewBackend creates a Backend that opens displays through hidapi.
func NewBackend(opts ...BackendOption) *Backend {
	b := &Backend{
		displays: make(map[string]*Display),
		opener:   OpenDisplay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) display(serial string) (*Display, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d, ok := b.displays[serial]; ok {
		return d, nil
	}

	device, err := b.opener(serial)
	if err != nil {
		return nil, err
	}
	d := NewDisplay(device)
	b.displays[serial] = d
	log.Info().Str("serial", serial).Str("product", device.Info().Product).Msg("Display opened")
	return d, nil
}

// forget drops a display after an I/O error so the next call reopens it,
// e.g. after the monitor was unplugged.
func (b *Backend) forget(serial string) {
	b.mu.Lock()
	d, ok := b.displays[serial]
	delete(b.displays, serial)
	b.mu.Unlock()

	if ok {
		if err := d.Close(); err != nil {
			log.Warn().Err(err).Str("serial", serial).Msg("Failed to close display")
		}
	}
}

// ReadAttribute implements brightness.Reader for the hid class.
func (b *Backend) ReadAttribute(class, serial, attr string) (uint32, error) {
	if class != Class {
		return 0, fmt.Errorf("%w: class %s", ErrUnsupportedAttribute, class)
	}

	switch attr {
	case brightness.AttrMaxBrightness:
		return MaxLevel, nil
	case brightness.AttrBrightness:
		d, err := b.display(serial)
		if err != nil {
			return 0, err
		}
		level, err := d.Level()
		if err != nil {
			b.forget(serial)
			return 0, err
		}
		return level, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedAttribute, attr)
	}
}

// SetBrightness implements brightness.Session for the hid class.
func (b *Backend) SetBrightness(class, serial string, level uint32) error {
	if class != Class {
		return fmt.Errorf("%w: class %s", ErrUnsupportedAttribute, class)
	}

	d, err := b.display(serial)
	if err != nil {
		return err
	}
	if err := d.SetLevel(level); err != nil {
		b.forget(serial)
		return err
	}
	return nil
}

// Close closes all open displays.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for serial, d := range b.displays {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("display %s: %w", serial, err))
		}
		delete(b.displays, serial)
	}
	return errors.Join(errs...)
}

// Router sends hid-class requests to a Backend and everything else to the
// given reader and session.
type Router struct {
	backend *Backend
	reader  brightness.Reader
	session brightness.Session
}

// NewRouter creates a Router.
func NewRouter(backend *Backend, reader brightness.Reader, session brightness.Session) *Router {
	return &Router{backend: backend, reader: reader, session: session}
}

// ReadAttribute implements brightness.Reader.
func (r *Router) ReadAttribute(class, name, attr string) (uint32, error) {
	if class == Class {
		return r.backend.ReadAttribute(class, name, attr)
	}
	return r.reader.ReadAttribute(class, name, attr)
}

// SetBrightness implements brightness.Session.
func (r *Router) SetBrightness(class, name string, level uint32) error {
	if class == Class {
		return r.backend.SetBrightness(class, name, level)
	}
	return r.session.SetBrightness(class, name, level)
}
