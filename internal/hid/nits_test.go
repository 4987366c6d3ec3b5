// SPDX-License-Identifier: GPL-3.0-only

package hid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shini4i/als-brightness-daemon/internal/hid"
)

func TestNitsToPercent(t *testing.T) {
	tests := []struct {
		name     string
		nits     uint32
		expected uint32
	}{
		{name: "minimum luminance is 0", nits: 400, expected: 0},
		{name: "maximum luminance is 100", nits: 60000, expected: 100},
		{name: "midpoint is 50", nits: 30200, expected: 50},
		{name: "below minimum clamps", nits: 100, expected: 0},
		{name: "above maximum clamps", nits: 70000, expected: 100},
		{name: "just below half a level rounds down", nits: 697, expected: 0},
		{name: "half a level rounds up", nits: 698, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, hid.NitsToPercent(tt.nits))
		})
	}
}

func TestPercentToNits(t *testing.T) {
	assert.Equal(t, uint32(400), hid.PercentToNits(0))
	assert.Equal(t, uint32(15300), hid.PercentToNits(25))
	assert.Equal(t, uint32(60000), hid.PercentToNits(100))
	assert.Equal(t, uint32(60000), hid.PercentToNits(177))
}

func TestPercentNitsRoundTrip(t *testing.T) {
	for level := uint32(0); level <= hid.MaxLevel; level++ {
		assert.Equal(t, level, hid.NitsToPercent(hid.PercentToNits(level)), "round-trip failed for %d", level)
	}
}
