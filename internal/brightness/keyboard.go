// SPDX-License-Identifier: GPL-3.0-only

package brightness

// Keyboard drives a keyboard backlight with a fixed set of levels 0-3.
type Keyboard struct {
	controller
}

// NewKeyboard creates a keyboard backlight controller for /sys/class/{class}/{name}.
func NewKeyboard(session Session, class, name string, opts ...Option) *Keyboard {
	k := &Keyboard{}
	k.controller = newController("keyboard", session, class, name, k, newOptions(opts))
	return k
}

// Decide maps value straight to a keyboard level.
func (k *Keyboard) Decide(value uint32) Decision {
	return Decision{Value: value, Level: KeyboardLevel(value)}
}

// Adjust applies the level for value if it differs from the current hardware level.
func (k *Keyboard) Adjust(value uint32) error {
	return k.adjust(value)
}
