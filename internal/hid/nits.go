// SPDX-License-Identifier: GPL-3.0-only

package hid

const (
	// MinNits is the lowest luminance the Studio Display accepts.
	MinNits uint32 = 400

	// MaxNits is the highest luminance the Studio Display accepts.
	MaxNits uint32 = 60000

	nitsPerLevel = (MaxNits - MinNits) / MaxLevel
)

// NitsToPercent converts a luminance reported by the display to the nearest
// level between 0 and 100. Readings outside MinNits..MaxNits map to the
// nearest end of the scale.
func NitsToPercent(nits uint32) uint32 {
	switch {
	case nits <= MinNits:
		return 0
	case nits >= MaxNits:
		return MaxLevel
	}
	return (nits - MinNits + nitsPerLevel/2) / nitsPerLevel
}

// PercentToNits is the inverse of NitsToPercent. Levels above 100 are
// treated as 100.
func PercentToNits(percent uint32) uint32 {
	return MinNits + min(percent, MaxLevel)*nitsPerLevel
}
