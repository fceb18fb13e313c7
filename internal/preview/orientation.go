package preview

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// ReadOrientation returns the EXIF orientation (1..8) of a JPEG or
// TIFF-based RAW container. ok is false when the metadata is absent or
// unreadable; callers then fall back to the configured default rotation.
func ReadOrientation(data []byte) (int, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, false
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 0, false
	}
	return v, true
}

// ApplyOrientation normalises pixels for an EXIF orientation value so
// the result displays upright with no further transform.
func ApplyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		// Camera rotated 90° CW; imaging rotates counter-clockwise.
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// OrientationDegrees maps an EXIF orientation to the clockwise rotation
// recorded on the cache entry. Flips carry the rotation of their mirrored
// counterpart.
func OrientationDegrees(orientation int) int {
	switch orientation {
	case 3, 4:
		return 180
	case 5, 6:
		return 90
	case 7, 8:
		return 270
	default:
		return 0
	}
}

// Rotate applies a clockwise rotation of 0, 90, 180 or 270 degrees.
func Rotate(img image.Image, degrees int) image.Image {
	switch NormalizeRotation(degrees) {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// NormalizeRotation folds any degree value onto {0, 90, 180, 270},
// rounding to the nearest quarter turn.
func NormalizeRotation(degrees int) int {
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	// Round to the nearest quarter turn.
	return ((d + 45) / 90 % 4) * 90
}

// ValidRotation reports whether degrees is one of the four supported
// quarter-turn values.
func ValidRotation(degrees int) bool {
	switch degrees {
	case 0, 90, 180, 270:
		return true
	}
	return false
}
