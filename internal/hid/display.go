// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	// ReportID is the HID report ID for brightness control.
	ReportID byte = 0x01

	// ReportSize is the size of the HID feature report in bytes.
	ReportSize = 7

	// MaxLevel is the highest level a display accepts; levels are percentages.
	MaxLevel uint32 = 100
)

// ErrDisplayClosed is returned when an operation is attempted on a closed display.
var ErrDisplayClosed = errors.New("display is closed")

// Display is an open Studio Display. All methods are safe for concurrent use.
type Display struct {
	device Device
	mu     sync.Mutex
	closed bool
}

// NewDisplay wraps an open HID device.
func NewDisplay(device Device) *Display {
	return &Display{device: device}
}

// Level reads the current brightness as a level between 0 and 100.
func (d *Display) Level() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDisplayClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID
	if _, err := d.device.GetFeatureReport(data); err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}

	return NitsToPercent(binary.LittleEndian.Uint32(data[1:5])), nil
}

// SetLevel writes a brightness level between 0 and 100.
func (d *Display) SetLevel(level uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDisplayClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID
	binary.LittleEndian.PutUint32(data[1:5], PercentToNits(level))
	if _, err := d.device.SendFeatureReport(data); err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}
	return nil
}

// Close closes the underlying HID device. Closing twice is a no-op.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.device.Close()
}
