package preview

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// RawDecoder is an optional capability for decoding a RAW container's
// preview image directly. Providers are consulted in registration order;
// one that does not handle the container format returns an error
// wrapping ErrUnsupported, and the pipeline moves on. Any other error
// counts as a real attempt that failed, after which the pipeline falls
// back to the embedded-JPEG container scan.
type RawDecoder interface {
	// Name identifies the provider in logs and results.
	Name() string

	// Decode returns the RAW file's preview as a decoded image.
	Decode(data []byte) (image.Image, error)
}

// ExifThumbnailDecoder extracts the preview JPEG recorded in a
// TIFF-based RAW container's metadata (ARW, NEF, CR2, DNG and friends).
// Thumbnails below MinBytes are reported as unsupported so the container
// scan can find the full-size embedded preview instead; EXIF first
// thumbnails are usually 160x120 micro-images not worth showing.
type ExifThumbnailDecoder struct {
	// MinBytes rejects thumbnails smaller than this.
	// Default: the embedded-preview threshold (10 KiB).
	MinBytes int
}

// Name implements RawDecoder.
func (d ExifThumbnailDecoder) Name() string { return "exif" }

// Decode implements RawDecoder.
func (d ExifThumbnailDecoder) Decode(data []byte) (image.Image, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: not a TIFF container: %v", ErrUnsupported, err)
	}

	thumb, err := x.JpegThumbnail()
	if err != nil {
		return nil, fmt.Errorf("%w: no metadata thumbnail", ErrUnsupported)
	}

	min := d.MinBytes
	if min <= 0 {
		min = minEmbeddedBytes
	}
	if len(thumb) < min {
		return nil, fmt.Errorf("%w: metadata thumbnail below %d bytes", ErrUnsupported, min)
	}

	img, err := imaging.Decode(bytes.NewReader(thumb))
	if err != nil {
		return nil, fmt.Errorf("decode metadata thumbnail: %w", err)
	}
	return img, nil
}
