// SPDX-License-Identifier: GPL-3.0-only

package brightness

//go:generate mockgen -source=backend.go -destination=mocks/backend_mock.go -package=mocks

const (
	// AttrBrightness is the device attribute holding the current hardware level.
	AttrBrightness = "brightness"

	// AttrMaxBrightness is the device attribute holding the maximum hardware level.
	AttrMaxBrightness = "max_brightness"
)

// Reader reads numeric device attributes, e.g. /sys/class/{class}/{name}/{attr}.
type Reader interface {
	// ReadAttribute returns the attribute value of the given device.
	ReadAttribute(class, name, attr string) (uint32, error)
}

// Session writes brightness levels on behalf of the user, typically through
// the logind session. Controllers borrow it and never close it.
type Session interface {
	// SetBrightness writes level to the given device.
	SetBrightness(class, name string, level uint32) error
}
