// SPDX-License-Identifier: GPL-3.0-only

package sysfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/als-brightness-daemon/internal/sysfs"
)

func writeAttr(t *testing.T, root, class, name, attr, content string) {
	t.Helper()
	dir := filepath.Join(root, class, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, attr), []byte(content), 0o644))
}

func TestReadValue(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name        string
		content     string
		expected    uint32
		expectedErr error
	}{
		{name: "plain integer", content: "937", expected: 937},
		{name: "trailing newline", content: "120000\n", expected: 120000},
		{name: "zero", content: "0\n", expected: 0},
		{name: "negative value", content: "-1\n", expectedErr: sysfs.ErrInvalidValue},
		{name: "not a number", content: "max\n", expectedErr: sysfs.ErrInvalidValue},
		{name: "empty file", content: "", expectedErr: sysfs.ErrInvalidValue},
		{name: "overflows uint32", content: "4294967296", expectedErr: sysfs.ErrInvalidValue},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "attr"+string(rune('a'+i)))
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			value, err := sysfs.ReadValue(path)
			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestReadValue_MissingFile(t *testing.T) {
	_, err := sysfs.ReadValue(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, sysfs.ErrInvalidValue)
}

func TestReader_ReadAttribute(t *testing.T) {
	root := t.TempDir()
	writeAttr(t, root, "backlight", "intel_backlight", "max_brightness", "1000\n")
	writeAttr(t, root, "backlight", "intel_backlight", "brightness", "350\n")

	reader := sysfs.NewReader(sysfs.WithRoot(root))
	assert.Equal(t, filepath.Join(root, "backlight", "intel_backlight", "brightness"),
		reader.Path("backlight", "intel_backlight", "brightness"))

	maxBrightness, err := reader.ReadAttribute("backlight", "intel_backlight", "max_brightness")
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), maxBrightness)

	current, err := reader.ReadAttribute("backlight", "intel_backlight", "brightness")
	require.NoError(t, err)
	assert.Equal(t, uint32(350), current)
}

func TestNewReader_DefaultRoot(t *testing.T) {
	reader := sysfs.NewReader()
	assert.Equal(t, "/sys/class/leds/kbd/brightness", reader.Path("leds", "kbd", "brightness"))
}

func TestReader_FindDevice(t *testing.T) {
	root := t.TempDir()
	writeAttr(t, root, "leds", "input3::capslock", "brightness", "0")
	writeAttr(t, root, "leds", "tpacpi::kbd_backlight", "brightness", "1")
	writeAttr(t, root, "backlight", "nvidia_0", "brightness", "1")
	writeAttr(t, root, "backlight", "amdgpu_bl0", "brightness", "1")

	reader := sysfs.NewReader(sysfs.WithRoot(root))

	name, err := reader.FindDevice("leds", "*kbd_backlight*")
	require.NoError(t, err)
	assert.Equal(t, "tpacpi::kbd_backlight", name)

	name, err = reader.FindDevice("backlight", "*")
	require.NoError(t, err)
	assert.Equal(t, "amdgpu_bl0", name)

	_, err = reader.FindDevice("leds", "*micmute*")
	assert.ErrorIs(t, err, sysfs.ErrNoDevice)
}
