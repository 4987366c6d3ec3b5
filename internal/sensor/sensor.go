// SPDX-License-Identifier: GPL-3.0-only

// Package sensor reads ambient-light values from IIO illuminance sensors.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// IIORoot is the default directory holding IIO devices.
const IIORoot = "/sys/bus/iio/devices"

// attributes lists illuminance attributes in order of preference.
var attributes = []string{"in_illuminance_raw", "in_illuminance_input"}

// ErrNotFound is returned when no illuminance sensor is present.
var ErrNotFound = errors.New("no ambient light sensor found")

// ErrInvalidReading is returned when the sensor does not report a non-negative number.
var ErrInvalidReading = errors.New("invalid sensor reading")

// Sensor reads an illuminance attribute file.
type Sensor struct {
	path string
}

// New returns a Sensor reading from path.
func New(path string) *Sensor {
	return &Sensor{path: path}
}

// Discover returns a Sensor for the first IIO device under root that exposes
// an illuminance attribute.
func Discover(root string) (*Sensor, error) {
	devices, err := filepath.Glob(filepath.Join(root, "iio:device*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list IIO devices: %w", err)
	}
	sort.Strings(devices)

	for _, dev := range devices {
		for _, attr := range attributes {
			path := filepath.Join(dev, attr)
			if _, err := os.Stat(path); err == nil {
				return New(path), nil
			}
		}
	}
	return nil, fmt.Errorf("%w under %s", ErrNotFound, root)
}

// Path returns the attribute file the sensor reads from.
func (s *Sensor) Path() string {
	return s.path
}

// Read returns the current ambient-light value. Fractional readings, as
// reported by processed _input attributes, are truncated.
func (s *Sensor) Read() (uint32, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read sensor %s: %w", s.path, err)
	}

	text := strings.TrimSpace(string(data))
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || value < 0 || math.IsNaN(value) {
		return 0, fmt.Errorf("%w %q from %s", ErrInvalidReading, text, s.path)
	}
	if value > math.MaxUint32 {
		return math.MaxUint32, nil
	}
	return uint32(value), nil
}
