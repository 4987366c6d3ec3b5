// SPDX-License-Identifier: GPL-3.0-only

// Package sysfs reads numeric device attributes from /sys/class.
package sysfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ClassRoot is the default sysfs class directory.
const ClassRoot = "/sys/class"

// ErrInvalidValue is returned when an attribute does not hold a non-negative integer.
var ErrInvalidValue = errors.New("invalid attribute value")

// ErrNoDevice is returned when no device matches a lookup.
var ErrNoDevice = errors.New("no matching device")

// ReadValue reads a textual non-negative integer from path.
func ReadValue(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text := strings.TrimSpace(string(data))
	value, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w %q in %s", ErrInvalidValue, text, path)
	}
	return uint32(value), nil
}

// Reader resolves device attributes below a class root.
type Reader struct {
	root string
}

// ReaderOption is a functional option for configuring a Reader.
type ReaderOption func(*Reader)

// WithRoot sets the class root, e.g. a fake tree in tests.
func WithRoot(root string) ReaderOption {
	return func(r *Reader) {
		r.root = root
	}
}

// NewReader creates a Reader rooted at ClassRoot unless overridden.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{root: ClassRoot}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the attribute path {root}/{class}/{name}/{attr}.
func (r *Reader) Path(class, name, attr string) string {
	return filepath.Join(r.root, class, name, attr)
}

// ReadAttribute reads a numeric attribute of a device.
func (r *Reader) ReadAttribute(class, name, attr string) (uint32, error) {
	return ReadValue(r.Path(class, name, attr))
}

// FindDevice returns the alphabetically first device of class whose name
// matches pattern (filepath.Match syntax).
func (r *Reader) FindDevice(class, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(r.root, class, pattern))
	if err != nil {
		return "", fmt.Errorf("invalid device pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s/%s", ErrNoDevice, class, pattern)
	}

	sort.Strings(matches)
	return filepath.Base(matches[0]), nil
}
