// SPDX-License-Identifier: GPL-3.0-only

package udev

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

var watchedDevices = []string{"backlight/intel_backlight", "leds/tpacpi::kbd_backlight"}

func TestNewMonitor(t *testing.T) {
	monitor := NewMonitor(watchedDevices, func(Event) {})
	assert.NotNil(t, monitor)
	assert.NotNil(t, monitor.handler)
	assert.Len(t, monitor.watched, 2)
	assert.Contains(t, monitor.watched, "leds/tpacpi::kbd_backlight")
}

func TestEvent_Device(t *testing.T) {
	assert.Equal(t, "backlight/intel_backlight", Event{Subsystem: "backlight", Name: "intel_backlight"}.Device())
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	monitor := NewMonitor(nil, nil)
	// Stop should be safe to call even if not started
	assert.NoError(t, monitor.Stop())
}

func TestMonitor_HandleEvent(t *testing.T) {
	tests := []struct {
		name          string
		uevent        netlink.UEvent
		expectHandler bool
		expectedEvent Event
	}{
		{
			name: "change of watched backlight triggers handler",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				KObj:   "/devices/pci0000:00/0000:00:02.0/drm/card0/card0-eDP-1/intel_backlight",
				Env:    map[string]string{"SUBSYSTEM": "backlight"},
			},
			expectHandler: true,
			expectedEvent: Event{Subsystem: "backlight", Name: "intel_backlight"},
		},
		{
			name: "change of watched keyboard led triggers handler",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				KObj:   "/devices/platform/thinkpad_acpi/leds/tpacpi::kbd_backlight",
				Env:    map[string]string{"SUBSYSTEM": "leds"},
			},
			expectHandler: true,
			expectedEvent: Event{Subsystem: "leds", Name: "tpacpi::kbd_backlight"},
		},
		{
			name: "unwatched led is ignored",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				KObj:   "/devices/platform/i8042/serio0/input/input3/input3::capslock",
				Env:    map[string]string{"SUBSYSTEM": "leds"},
			},
			expectHandler: false,
		},
		{
			name: "same name in other subsystem is ignored",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				KObj:   "/devices/virtual/leds/intel_backlight",
				Env:    map[string]string{"SUBSYSTEM": "leds"},
			},
			expectHandler: false,
		},
		{
			name: "add action is ignored",
			uevent: netlink.UEvent{
				Action: netlink.ADD,
				KObj:   "/devices/pci0000:00/0000:00:02.0/drm/card0/card0-eDP-1/intel_backlight",
				Env:    map[string]string{"SUBSYSTEM": "backlight"},
			},
			expectHandler: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			var received Event

			monitor := NewMonitor(watchedDevices, func(event Event) {
				handlerCalled = true
				received = event
			})
			monitor.handleEvent(tt.uevent)

			if tt.expectHandler {
				assert.True(t, handlerCalled, "handler should have been called")
				assert.Equal(t, tt.expectedEvent, received)
			} else {
				assert.False(t, handlerCalled, "handler should not have been called")
			}
		})
	}
}

func TestMonitor_HandleEvent_NilHandler(t *testing.T) {
	monitor := NewMonitor(watchedDevices, nil)
	uevent := netlink.UEvent{
		Action: netlink.CHANGE,
		KObj:   "/devices/virtual/backlight/intel_backlight",
		Env:    map[string]string{"SUBSYSTEM": "backlight"},
	}

	assert.NotPanics(t, func() {
		monitor.handleEvent(uevent)
	})
}

func TestMonitor_CreateMatcher(t *testing.T) {
	monitor := NewMonitor(watchedDevices, nil)
	matcher := monitor.createMatcher()

	assert.NotNil(t, matcher)
	assert.Len(t, matcher.Rules, 1)
	assert.NoError(t, matcher.Compile())

	tests := []struct {
		name     string
		uevent   netlink.UEvent
		expected bool
	}{
		{
			name: "matches backlight change",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				Env:    map[string]string{"SUBSYSTEM": "backlight"},
			},
			expected: true,
		},
		{
			name: "matches leds change",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				Env:    map[string]string{"SUBSYSTEM": "leds"},
			},
			expected: true,
		},
		{
			name: "does not match add action",
			uevent: netlink.UEvent{
				Action: netlink.ADD,
				Env:    map[string]string{"SUBSYSTEM": "backlight"},
			},
			expected: false,
		},
		{
			name: "does not match subsystem prefix",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				Env:    map[string]string{"SUBSYSTEM": "backlightx"},
			},
			expected: false,
		},
		{
			name: "does not match other subsystem",
			uevent: netlink.UEvent{
				Action: netlink.CHANGE,
				Env:    map[string]string{"SUBSYSTEM": "power_supply"},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matcher.Evaluate(tt.uevent))
		})
	}
}

func TestIsBufferOverflowError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error returns false", err: nil, expected: false},
		{name: "ENOBUFS errno returns true", err: unix.ENOBUFS, expected: true},
		{name: "wrapped ENOBUFS returns true", err: fmt.Errorf("recv: %w", unix.ENOBUFS), expected: true},
		{
			name:     "error message with 'no buffer space available' returns true",
			err:      errors.New("unable to check available uevent, err: no buffer space available"),
			expected: true,
		},
		{name: "generic error returns false", err: errors.New("some other error"), expected: false},
		{name: "different errno returns false", err: unix.EINVAL, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isBufferOverflowError(tt.err))
		})
	}
}
