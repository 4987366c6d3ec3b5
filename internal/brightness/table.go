// SPDX-License-Identifier: GPL-3.0-only

// Package brightness maps ambient-light readings to backlight levels and applies
// them to screen and keyboard backlights, writing only when the level changes.
package brightness

import "math"

// Step maps every input below Below to Value.
type Step struct {
	Below uint32
	Value uint32
}

// Table is a step function over ambient-light values. Steps must be ordered by
// ascending Below; inputs at or above the last bound map to Above.
type Table struct {
	Steps []Step
	Above uint32
}

// Lookup returns the value of the first step whose bound is above v.
func (t Table) Lookup(v uint32) uint32 {
	for _, s := range t.Steps {
		if v < s.Below {
			return s.Value
		}
	}
	return t.Above
}

// keyboardTable glows brighter in dim and medium light and backs off again in
// bright surroundings.
var keyboardTable = Table{
	Steps: []Step{
		{Below: 55, Value: 1},
		{Below: 65, Value: 2},
		{Below: 70, Value: 3},
		{Below: 75, Value: 2},
		{Below: 80, Value: 1},
	},
	Above: 0,
}

// screenTable yields a percentage of the maximum hardware brightness and is
// non-decreasing in its input.
var screenTable = Table{
	Steps: []Step{
		{Below: 1, Value: 2},
		{Below: 5, Value: 4},
		{Below: 10, Value: 6},
		{Below: 20, Value: 7},
		{Below: 30, Value: 8},
		{Below: 40, Value: 9},
		{Below: 50, Value: 10},
		{Below: 60, Value: 20},
		{Below: 70, Value: 35},
		{Below: 80, Value: 40},
	},
	Above: 50,
}

// KeyboardLevel returns the keyboard backlight level (0-3) for an ambient-light value.
func KeyboardLevel(value uint32) uint32 {
	return keyboardTable.Lookup(value)
}

// ScreenPercent returns the base screen brightness percentage for an ambient-light value.
func ScreenPercent(value uint32) uint32 {
	return screenTable.Lookup(value)
}

// ApplyOffset shifts pct by offset percentage points. The result saturates at
// zero and at math.MaxUint32 instead of wrapping.
func ApplyOffset(pct uint32, offset int8) uint32 {
	switch {
	case offset > 0:
		add := uint32(offset)
		if pct > math.MaxUint32-add {
			return math.MaxUint32
		}
		return pct + add
	case offset < 0:
		sub := uint32(-int32(offset))
		if sub >= pct {
			return 0
		}
		return pct - sub
	default:
		return pct
	}
}

// PercentToLevel converts a percentage of maxBrightness into a hardware level.
// Zero percent turns the backlight off, any other percentage yields at least
// level 1, and the result never exceeds maxBrightness.
func PercentToLevel(pct, maxBrightness uint32) uint32 {
	if pct == 0 {
		return 0
	}

	level := uint64(pct) * uint64(maxBrightness) / 100
	if level < 1 {
		level = 1
	}
	if level > uint64(maxBrightness) {
		return maxBrightness
	}
	return uint32(level)
}
