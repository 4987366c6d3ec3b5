// SPDX-License-Identifier: GPL-3.0-only

package brightness

import "fmt"

// Screen drives a display backlight. The ambient-light value selects a
// percentage of the maximum brightness, shifted by a user offset in
// percentage points.
//
// Screen is not safe for concurrent use; callers serialize Adjust and the
// offset methods.
type Screen struct {
	controller
	maxBrightness uint32
	offset        int8
}

// NewScreen creates a screen backlight controller. The device's max_brightness
// is read once here and fixed for the controller's lifetime.
func NewScreen(session Session, class, name string, opts ...Option) (*Screen, error) {
	o := newOptions(opts)

	maxBrightness, err := o.reader.ReadAttribute(class, name, AttrMaxBrightness)
	if err != nil {
		return nil, fmt.Errorf("failed to read max brightness of %s/%s: %w", class, name, err)
	}

	s := &Screen{maxBrightness: maxBrightness}
	s.controller = newController("screen", session, class, name, s, o)
	return s, nil
}

// Decide computes the base percentage, applies the offset and converts the
// result to a hardware level bounded by the maximum brightness.
func (s *Screen) Decide(value uint32) Decision {
	pct := ScreenPercent(value)
	offsetPct := ApplyOffset(pct, s.offset)
	return Decision{
		Value:         value,
		Percent:       pct,
		OffsetPercent: offsetPct,
		Level:         PercentToLevel(offsetPct, s.maxBrightness),
	}
}

// Adjust applies the level for value if it differs from the current hardware level.
func (s *Screen) Adjust(value uint32) error {
	return s.adjust(value)
}

// Increase raises the offset by amount percentage points.
// The hardware is left untouched until the next Adjust.
func (s *Screen) Increase(amount int8) {
	s.offset += amount
}

// Decrease lowers the offset by amount percentage points.
func (s *Screen) Decrease(amount int8) {
	s.offset -= amount
}

// Offset returns the current offset in percentage points.
func (s *Screen) Offset() int8 {
	return s.offset
}

// MaxBrightness returns the maximum hardware level read at construction.
func (s *Screen) MaxBrightness() uint32 {
	return s.maxBrightness
}
