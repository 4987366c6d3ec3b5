// SPDX-License-Identifier: GPL-3.0-only

package brightness

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/als-brightness-daemon/internal/sysfs"
)

// Decision describes how an ambient-light value was turned into a level.
// Percent and OffsetPercent are zero for controllers without a percentage stage.
type Decision struct {
	Value         uint32
	Percent       uint32
	OffsetPercent uint32
	Level         uint32
}

// Policy computes the target level for an ambient-light value.
type Policy interface {
	Decide(value uint32) Decision
}

// ChangeObserver is called after a new level was written to a device.
type ChangeObserver func(device string, old uint32, decision Decision)

// Option configures a controller.
type Option func(*options)

type options struct {
	reader   Reader
	observer ChangeObserver
}

// WithReader sets the attribute reader. Defaults to the sysfs reader.
func WithReader(r Reader) Option {
	return func(o *options) {
		o.reader = r
	}
}

// WithObserver registers a callback invoked after every applied level change.
func WithObserver(fn ChangeObserver) Option {
	return func(o *options) {
		o.observer = fn
	}
}

func newOptions(opts []Option) options {
	o := options{reader: sysfs.NewReader()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// controller is the read-compare-write skeleton shared by Keyboard and Screen.
// It holds no brightness state: the current level is re-read on every call.
type controller struct {
	kind     string
	class    string
	name     string
	policy   Policy
	reader   Reader
	session  Session
	observer ChangeObserver
}

func newController(kind string, session Session, class, name string, policy Policy, o options) controller {
	return controller{
		kind:     kind,
		class:    class,
		name:     name,
		policy:   policy,
		reader:   o.reader,
		session:  session,
		observer: o.observer,
	}
}

// Device returns the controlled device as "class/name".
func (c *controller) Device() string {
	return c.class + "/" + c.name
}

func (c *controller) adjust(value uint32) error {
	d := c.policy.Decide(value)

	current, err := c.reader.ReadAttribute(c.class, c.name, AttrBrightness)
	if err != nil {
		return fmt.Errorf("failed to read %s brightness: %w", c.Device(), err)
	}

	log.Debug().
		Str("backlight", c.kind).
		Uint32("value", value).
		Uint32("percent", d.Percent).
		Uint32("offset_percent", d.OffsetPercent).
		Uint32("level", d.Level).
		Uint32("current", current).
		Msg("Computed backlight level")

	if current == d.Level {
		return nil
	}

	log.Info().
		Str("backlight", c.kind).
		Str("device", c.Device()).
		Uint32("value", value).
		Uint32("old", current).
		Uint32("percent", d.Percent).
		Uint32("offset_percent", d.OffsetPercent).
		Uint32("new", d.Level).
		Msg("Adjusting backlight")

	if err := c.session.SetBrightness(c.class, c.name, d.Level); err != nil {
		return fmt.Errorf("failed to set %s brightness to %d: %w", c.Device(), d.Level, err)
	}

	if c.observer != nil {
		c.observer(c.Device(), current, d)
	}
	return nil
}
